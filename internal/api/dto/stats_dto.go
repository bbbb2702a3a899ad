package dto

import "github.com/triagedesk/triage-service/internal/domain"

// StatsResponse is the ticket rollup.
type StatsResponse struct {
	Total                int64                           `json:"total"`
	Open                 int64                           `json:"open"`
	InAnalysis           int64                           `json:"in_analysis"`
	Resolved             int64                           `json:"resolved"`
	ByPriority           map[domain.TicketPriority]int64 `json:"by_priority"`
	ByCategory           map[domain.TicketCategory]int64 `json:"by_category"`
	AvgFirstResponseMins int64                           `json:"avg_first_response_minutes"`
	AvgResolutionHours   float64                         `json:"avg_resolution_hours"`
}
