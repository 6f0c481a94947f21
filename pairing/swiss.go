package pairing

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/openbracket/tournament-engine/models"
)

type SwissGenerator struct{}

func NewSwissGenerator() Generator {
	return &SwissGenerator{}
}

func (g *SwissGenerator) GetName() string {
	return "Swiss"
}

// GeneratePairings pairs checked-in players by current standing: the field is
// ordered by points (registration order before round one), then folded into
// adjacent pairs. With an odd field the lowest-ranked player receives the
// bye.
func (g *SwissGenerator) GeneratePairings(ctx context.Context, params GenerateParams) (*Proposal, error) {
	if params.Phase == nil {
		return nil, fmt.Errorf("SwissGenerator: phase is required")
	}
	regs := params.Registrations
	if len(regs) < 2 {
		return nil, fmt.Errorf("SwissGenerator: not enough participants (found %d, min 2 required)", len(regs))
	}

	points := make(map[int]int, len(params.Standings))
	for _, s := range params.Standings {
		if s != nil {
			points[s.RegistrationID] = s.Points
		}
	}

	ordered := make([]*models.Registration, len(regs))
	copy(ordered, regs)
	sort.SliceStable(ordered, func(i, j int) bool {
		pi, pj := points[ordered[i].ID], points[ordered[j].ID]
		if pi != pj {
			return pi > pj
		}
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	proposal := &Proposal{RoundNumber: params.RoundNumber}

	if len(ordered)%2 == 1 {
		bye := ordered[len(ordered)-1]
		ordered = ordered[:len(ordered)-1]
		byeID := bye.ID
		proposal.ByeRegistrationID = &byeID
	}

	table := 0
	for i := 0; i+1 < len(ordered); i += 2 {
		table++
		awayID := ordered[i+1].ID
		proposal.Pairings = append(proposal.Pairings, Pairing{
			UID:                uuid.NewString(),
			TableNumber:        table,
			HomeRegistrationID: ordered[i].ID,
			AwayRegistrationID: &awayID,
		})
	}

	if proposal.ByeRegistrationID != nil {
		proposal.Pairings = append(proposal.Pairings, Pairing{
			UID:                uuid.NewString(),
			TableNumber:        table + 1,
			HomeRegistrationID: *proposal.ByeRegistrationID,
		})
	}

	return proposal, nil
}
