// Package rounds derives the round-lifecycle state of a phase from persisted
// round rows. Derivation never trusts client-held flags: two concurrent
// organizer sessions reading the same rows converge to the same state, and a
// prepared round survives process restarts as resumable instead of orphaned.
package rounds

import "github.com/openbracket/tournament-engine/models"

// State is the lifecycle state of a phase's round progression.
type State string

const (
	// StateIdle means no active or prepared round exists; the next round
	// may be generated.
	StateIdle State = "idle"
	// StateGenerating means a pairing-generation call is in flight.
	// In-memory overlay only, never derived from rows.
	StateGenerating State = "generating"
	// StatePreview means a pairing proposal is persisted as a pending round
	// awaiting organizer confirmation, and this process created it.
	StatePreview State = "preview"
	// StatePendingResume means a pending round with generated matches was
	// found on reload with no in-memory preview: a previous start commit
	// crashed or the acting client went away. Resumable or cancellable.
	StatePendingResume State = "pending_resume"
	// StateStarting means a commit-to-start call is in flight. Overlay only.
	StateStarting State = "starting"
	// StateActive means the phase has a started round with matches in play.
	StateActive State = "active"
	// StateCompleting means a completion call is in flight. Overlay only.
	StateCompleting State = "completing"
)

// InFlight reports whether the state is a transitional overlay that only
// exists while a call is in flight.
func (s State) InFlight() bool {
	return s == StateGenerating || s == StateStarting || s == StateCompleting
}

// Snapshot is the authoritative derived state of a phase's rounds.
type Snapshot struct {
	State           State         `json:"state"`
	Round           *models.Round `json:"round,omitempty"`
	NextRoundNumber int           `json:"next_round_number"`
	AllMatchesDone  bool          `json:"all_matches_done"`
}

// Derive computes the phase state from persisted round rows alone. An active
// round wins over everything else (the single-active-round invariant makes
// more than one impossible to create); otherwise a pending round with
// generated matches is resumable; otherwise the phase is idle.
//
// Derive never returns StatePreview: preview is pending_resume plus the
// in-memory knowledge that this process generated the round, which the
// orchestrator layers on top.
func Derive(rows []*models.Round) Snapshot {
	snap := Snapshot{State: StateIdle, NextRoundNumber: 1}
	for _, r := range rows {
		if r != nil && r.RoundNumber >= snap.NextRoundNumber {
			snap.NextRoundNumber = r.RoundNumber + 1
		}
	}

	var resumable *models.Round
	for _, r := range rows {
		if r == nil {
			continue
		}
		switch r.Status {
		case models.RoundStatusActive:
			snap.State = StateActive
			snap.Round = r
			snap.AllMatchesDone = r.AllMatchesDone()
			return snap
		case models.RoundStatusPending:
			if r.MatchCount > 0 && (resumable == nil || r.RoundNumber > resumable.RoundNumber) {
				resumable = r
			}
		}
	}

	if resumable != nil {
		snap.State = StatePendingResume
		snap.Round = resumable
	}
	return snap
}
