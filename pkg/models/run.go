package models

import "time"

// ItemState is the lifecycle state of a WorkItem inside a run.
type ItemState string

const (
	StatePending  ItemState = "pending"
	StateFetching ItemState = "fetching"
	StateScoring  ItemState = "scoring"
	StateDone     ItemState = "done"
)

// Outcome records how a Done item finished.
type Outcome string

const (
	OutcomeScored          Outcome = "scored"           // every article scored
	OutcomeNoNews          Outcome = "no_news"          // fetch succeeded with zero articles
	OutcomeFetchFailed     Outcome = "fetch_failed"     // fetch failed terminally
	OutcomePartiallyScored Outcome = "partially_scored" // at least one scoring call failed
)

// RunStatus is the terminal status of a pipeline run.
type RunStatus string

const (
	RunComplete RunStatus = "complete"
	RunPartial  RunStatus = "partial"
	RunFailed   RunStatus = "failed"
)

// Progress is a point-in-time snapshot of a run.
type Progress struct {
	RunID     string    `json:"run_id"`
	Total     int       `json:"total"`
	Skipped   int       `json:"skipped"` // completed by an earlier run
	Pending   int       `json:"pending"`
	InFlight  int       `json:"in_flight"`
	Done      int       `json:"done"`
	Failed    int       `json:"failed"` // Done with fetch_failed or partially_scored
	QuotaHit  bool      `json:"quota_hit"`
	Cancelled bool      `json:"cancelled"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
