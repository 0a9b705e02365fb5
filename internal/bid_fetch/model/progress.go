package model

import "time"

// Progress steps reported while a search runs.
const (
	StepSearching   = "searching"
	StepDownloading = "downloading"
	StepReporting   = "reporting"
	StepDone        = "done"
	StepFailed      = "failed"
)

// SearchProgress is a snapshot of a running or finished search.
type SearchProgress struct {
	SearchID      string    `json:"search_id"`
	TotalBids     int       `json:"total_bids"`
	ProcessedBids int       `json:"processed_bids"`
	CurrentBid    string    `json:"current_bid"`
	CurrentStep   string    `json:"current_step"`
	Errors        []string  `json:"errors"`
	StartTime     time.Time `json:"start_time"`
}

// Percent is processed/total in percent, 0 before the total is known.
func (p SearchProgress) Percent() float64 {
	if p.TotalBids <= 0 {
		return 0
	}
	return float64(p.ProcessedBids) / float64(p.TotalBids) * 100
}

// View adds the derived fields for the status endpoint.
func (p SearchProgress) View(now time.Time) map[string]any {
	errs := p.Errors
	if errs == nil {
		errs = []string{}
	}
	return map[string]any{
		"search_id":        p.SearchID,
		"total_bids":       p.TotalBids,
		"processed_bids":   p.ProcessedBids,
		"current_bid":      p.CurrentBid,
		"current_step":     p.CurrentStep,
		"progress_percent": p.Percent(),
		"errors":           errs,
		"elapsed_time":     int(now.Sub(p.StartTime).Seconds()),
	}
}
