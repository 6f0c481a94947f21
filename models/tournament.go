package models

import "time"

// TournamentStatus represents tournament statuses matching the ENUM in the DB.
type TournamentStatus string

const (
	StatusDraft     TournamentStatus = "draft"
	StatusUpcoming  TournamentStatus = "upcoming"
	StatusActive    TournamentStatus = "active"
	StatusCompleted TournamentStatus = "completed"
	StatusCancelled TournamentStatus = "cancelled"
)

// Tournament represents a competitive event run by an organizer.
// Status transitions are monotonic (draft -> upcoming -> active -> completed,
// or -> cancelled); the round/admission core only reads this field.
type Tournament struct {
	ID                    int              `json:"id" db:"id"`
	Name                  string           `json:"name" db:"name"`
	Description           *string          `json:"description,omitempty" db:"description"`
	OrganizerID           int              `json:"organizer_id" db:"organizer_id"`
	Status                TournamentStatus `json:"status" db:"status"`
	MaxParticipants       *int             `json:"max_participants,omitempty" db:"max_participants"`
	AllowLateRegistration bool             `json:"allow_late_registration" db:"allow_late_registration"`
	CheckInWindowMinutes  int              `json:"check_in_window_minutes" db:"check_in_window_minutes"`
	LateCheckInMaxRound   *int             `json:"late_check_in_max_round,omitempty" db:"late_check_in_max_round"`
	CurrentRound          *int             `json:"current_round,omitempty" db:"current_round"`
	StartDate             time.Time        `json:"start_date" db:"start_date"`
	EndDate               *time.Time       `json:"end_date,omitempty" db:"end_date"`
	Location              *string          `json:"location,omitempty" db:"location"`
	CreatedAt             time.Time        `json:"created_at" db:"created_at"`
	LogoKey               *string          `json:"-" db:"logo_key"`
	LogoURL               *string          `json:"logo_url,omitempty" db:"-"`

	// Optional nested entities (not mapped directly)
	Organizer     *User          `json:"organizer,omitempty" db:"-"`
	Phases        []Phase        `json:"phases,omitempty" db:"-"`
	Registrations []Registration `json:"registrations,omitempty" db:"-"`
}
