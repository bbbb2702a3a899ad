package domain

import "time"

// LogLevel is the severity of a system log entry.
type LogLevel string

const (
	LogLevelDebug    LogLevel = "debug"
	LogLevelInfo     LogLevel = "info"
	LogLevelWarn     LogLevel = "warn"
	LogLevelError    LogLevel = "error"
	LogLevelCritical LogLevel = "critical"
)

// Valid reports whether l is a known level.
func (l LogLevel) Valid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError, LogLevelCritical:
		return true
	}
	return false
}

// SystemLogEntry is an append-only telemetry record.
type SystemLogEntry struct {
	ID           string
	Level        LogLevel
	Message      string
	ErrorMessage *string
	ErrorStack   *string
	Fingerprint  *string
	Component    *string
	RequestID    *string
	SessionID    *string
	Endpoint     *string
	Method       *string
	StatusCode   *int
	DurationMs   *int
	UserID       *string
	IPAddress    *string
	UserAgent    *string
	Context      map[string]any
	TicketID     *string
	CreatedAt    time.Time
}
