package models

import "time"

// Standing is a per-phase score line for a registration, rebuilt from
// completed match results whenever a round completes.
type Standing struct {
	ID             int       `json:"id" db:"id"`
	PhaseID        int       `json:"phase_id" db:"phase_id"`
	RegistrationID int       `json:"registration_id" db:"registration_id"`
	Wins           int       `json:"wins" db:"wins"`
	Losses         int       `json:"losses" db:"losses"`
	Byes           int       `json:"byes" db:"byes"`
	Points         int       `json:"points" db:"points"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`

	Registration *Registration `json:"registration,omitempty" db:"-"`
}
