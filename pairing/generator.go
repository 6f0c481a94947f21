// Package pairing generates pairing proposals for a round. The round
// orchestrator depends only on the Generator interface; generation is pure
// proposal-building with no persistence, so a failed call leaves nothing
// behind.
package pairing

import (
	"context"

	"github.com/openbracket/tournament-engine/models"
)

// Pairing is a single proposed match. AwayRegistrationID is nil for a bye.
type Pairing struct {
	UID                string `json:"uid"`
	TableNumber        int    `json:"table_number"`
	HomeRegistrationID int    `json:"home_registration_id"`
	AwayRegistrationID *int   `json:"away_registration_id,omitempty"`
}

// Proposal is a generated set of pairings for one round, not yet committed.
type Proposal struct {
	RoundNumber       int       `json:"round_number"`
	Pairings          []Pairing `json:"pairings"`
	ByeRegistrationID *int      `json:"bye_registration_id,omitempty"`
}

// GenerateParams carries the inputs a generator may use. Standings may be
// empty before the first round completes.
type GenerateParams struct {
	Phase         *models.Phase
	RoundNumber   int
	Registrations []*models.Registration
	Standings     []*models.Standing
}

type Generator interface {
	GeneratePairings(ctx context.Context, params GenerateParams) (*Proposal, error)

	GetName() string
}
