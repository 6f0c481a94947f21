package models

import "time"

// PhaseFormat represents the pairing format of a phase.
type PhaseFormat string

const (
	PhaseFormatSwiss             PhaseFormat = "swiss"
	PhaseFormatSingleElimination PhaseFormat = "single_elimination"
)

// Phase is a sub-stage of a tournament (e.g. Swiss rounds, then a top cut).
// Created once at tournament setup; its shape is immutable during play.
type Phase struct {
	ID            int         `json:"id" db:"id"`
	TournamentID  int         `json:"tournament_id" db:"tournament_id"`
	Name          string      `json:"name" db:"name"`
	Ordinal       int         `json:"ordinal" db:"ordinal"`
	Format        PhaseFormat `json:"format" db:"format"`
	PlannedRounds *int        `json:"planned_rounds,omitempty" db:"planned_rounds"`
	CreatedAt     time.Time   `json:"created_at" db:"created_at"`

	Rounds []Round `json:"rounds,omitempty" db:"-"`
}
