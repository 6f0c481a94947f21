package models

import "time"

// MatchStatus represents match statuses matching the ENUM in the DB.
type MatchStatus string

const (
	MatchStatusPending   MatchStatus = "pending"
	MatchStatusActive    MatchStatus = "active"
	MatchStatusCompleted MatchStatus = "completed"
)

// Match is a single pairing within a round. AwayRegistrationID is nil for a
// bye. Aggregate counts over a round's matches are the signal the round
// state machine reads to decide whether the round may be completed.
type Match struct {
	ID                   int         `json:"id" db:"id"`
	RoundID              int         `json:"round_id" db:"round_id"`
	TableNumber          int         `json:"table_number" db:"table_number"`
	HomeRegistrationID   int         `json:"home_registration_id" db:"home_registration_id"`
	AwayRegistrationID   *int        `json:"away_registration_id,omitempty" db:"away_registration_id"`
	Status               MatchStatus `json:"status" db:"status"`
	WinnerRegistrationID *int        `json:"winner_registration_id,omitempty" db:"winner_registration_id"`
	PairingUID           string      `json:"pairing_uid" db:"pairing_uid"`
	CreatedAt            time.Time   `json:"created_at" db:"created_at"`
}

// IsBye reports whether the match is a bye (single participant, auto-win).
func (m *Match) IsBye() bool {
	return m.AwayRegistrationID == nil
}
