package models

import "time"

// RegistrationStatus represents registration statuses matching the ENUM in the DB.
type RegistrationStatus string

const (
	RegistrationStatusRegistered   RegistrationStatus = "registered"
	RegistrationStatusWaitlist     RegistrationStatus = "waitlist"
	RegistrationStatusConfirmed    RegistrationStatus = "confirmed"
	RegistrationStatusCheckedIn    RegistrationStatus = "checked_in"
	RegistrationStatusDropped      RegistrationStatus = "dropped"
	RegistrationStatusDisqualified RegistrationStatus = "disqualified"
)

// Registration ties a user to a tournament. One row per (tournament, user)
// pair, enforced by a unique constraint. Status never silently regresses;
// undoing a check-in is an explicit staff operation.
type Registration struct {
	ID            int                `json:"id" db:"id"`
	TournamentID  int                `json:"tournament_id" db:"tournament_id"`
	UserID        int                `json:"user_id" db:"user_id"`
	Status        RegistrationStatus `json:"status" db:"status"`
	CheckedInAt   *time.Time         `json:"checked_in_at,omitempty" db:"checked_in_at"`
	CheckedInLate bool               `json:"checked_in_late" db:"checked_in_late"`
	CreatedAt     time.Time          `json:"created_at" db:"created_at"`

	User *User `json:"user,omitempty" db:"-"`
}
