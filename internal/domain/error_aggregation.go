package domain

import "time"

// ErrorAggregation is the running counter kept for one fingerprint.
type ErrorAggregation struct {
	Fingerprint      string
	SampleMessage    string
	SampleStack      *string
	Component        *string
	Endpoint         *string
	TotalOccurrences int64
	UniqueUsers      int64
	FirstSeen        time.Time
	LastSeen         time.Time
	Resolved         bool
}
