// Package admission decides whether a player may register or check in for a
// tournament at a given instant. Decisions are pure functions over a
// tournament snapshot: no I/O, no errors. Missing optional fields are
// treated as their zero defaults, never rejected.
package admission

import (
	"time"

	"github.com/openbracket/tournament-engine/models"
)

// RegistrationWindow is the outcome of a registration-open check. Late
// admission is reported separately so callers can message and audit it
// differently from a normal registration.
type RegistrationWindow struct {
	Open bool `json:"open"`
	Late bool `json:"late"`
}

// CheckInWindow is the outcome of a check-in-open check. WindowStart and
// WindowEnd describe the normal temporal window regardless of whether the
// late path produced the result.
type CheckInWindow struct {
	Open        bool      `json:"open"`
	Late        bool      `json:"late"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
}

// CheckRegistrationOpen classifies whether registration is currently
// permitted for the tournament:
//
//	upcoming                     -> open, not late
//	active + late reg allowed    -> open, late
//	active + late reg disallowed -> closed
//	anything else                -> closed
func CheckRegistrationOpen(t *models.Tournament) RegistrationWindow {
	if t == nil {
		return RegistrationWindow{}
	}
	switch t.Status {
	case models.StatusUpcoming:
		return RegistrationWindow{Open: true}
	case models.StatusActive:
		if t.AllowLateRegistration {
			return RegistrationWindow{Open: true, Late: true}
		}
		return RegistrationWindow{}
	default:
		return RegistrationWindow{}
	}
}

// CheckCheckInOpen classifies whether check-in is currently permitted. The
// normal window is [startDate - checkInWindowMinutes, startDate]. After the
// tournament has started, the late valve applies while the current round is
// still below lateCheckInMaxRound; a nil current round counts as 0, a nil
// max round disables the valve entirely.
func CheckCheckInOpen(t *models.Tournament, now time.Time) CheckInWindow {
	if t == nil {
		return CheckInWindow{}
	}

	start := t.StartDate.Add(-time.Duration(t.CheckInWindowMinutes) * time.Minute)
	w := CheckInWindow{
		WindowStart: start,
		WindowEnd:   t.StartDate,
	}

	if !now.Before(start) && !now.After(t.StartDate) {
		w.Open = true
		return w
	}

	if t.Status == models.StatusActive && t.LateCheckInMaxRound != nil {
		current := 0
		if t.CurrentRound != nil {
			current = *t.CurrentRound
		}
		if current < *t.LateCheckInMaxRound {
			w.Open = true
			w.Late = true
		}
	}
	return w
}
