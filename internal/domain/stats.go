package domain

// TicketGroupCount is one row of the (status, priority, category) rollup.
type TicketGroupCount struct {
	Status   TicketStatus
	Priority TicketPriority
	Category TicketCategory
	Count    int64
}

// DurationAverage is the mean of a duration sample in seconds.
type DurationAverage struct {
	Seconds float64
	Samples int64
}

// TicketStats is the read-time rollup over the ticket store.
type TicketStats struct {
	Total                int64
	Open                 int64
	InAnalysis           int64
	Resolved             int64
	ByPriority           map[TicketPriority]int64
	ByCategory           map[TicketCategory]int64
	AvgFirstResponseMins int64
	AvgResolutionHours   float64
	FirstResponseSamples int64
	ResolutionSamples    int64
}
