package models

import "time"

// RoundStatus represents round statuses matching the ENUM in the DB.
type RoundStatus string

const (
	RoundStatusPending   RoundStatus = "pending"
	RoundStatusActive    RoundStatus = "active"
	RoundStatusCompleted RoundStatus = "completed"
)

// Round is one numbered pairing cycle within a phase. A pending round with
// MatchCount > 0 is a prepared-but-not-started round: its matches exist but
// the start commit never landed, so it can be resumed or cancelled.
type Round struct {
	ID          int         `json:"id" db:"id"`
	PhaseID     int         `json:"phase_id" db:"phase_id"`
	RoundNumber int         `json:"round_number" db:"round_number"`
	Status      RoundStatus `json:"status" db:"status"`
	StartedAt   *time.Time  `json:"started_at,omitempty" db:"started_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`

	// Aggregate match counts, computed by the repository query.
	MatchCount      int `json:"match_count" db:"-"`
	CompletedCount  int `json:"completed_count" db:"-"`
	InProgressCount int `json:"in_progress_count" db:"-"`
	PendingCount    int `json:"pending_count" db:"-"`

	Matches []Match `json:"matches,omitempty" db:"-"`
}

// AllMatchesDone reports whether every generated match has been completed.
// A round with no matches is never considered done.
func (r *Round) AllMatchesDone() bool {
	return r.MatchCount > 0 && r.CompletedCount == r.MatchCount
}
