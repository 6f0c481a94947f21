package pairing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbracket/tournament-engine/models"
)

func reg(id int, createdOffset time.Duration) *models.Registration {
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	return &models.Registration{
		ID:        id,
		Status:    models.RegistrationStatusCheckedIn,
		CreatedAt: base.Add(createdOffset),
	}
}

func TestSwissGeneratorEvenField(t *testing.T) {
	g := NewSwissGenerator()
	proposal, err := g.GeneratePairings(context.Background(), GenerateParams{
		Phase:       &models.Phase{ID: 1, Format: models.PhaseFormatSwiss},
		RoundNumber: 1,
		Registrations: []*models.Registration{
			reg(10, 0), reg(11, time.Minute), reg(12, 2*time.Minute), reg(13, 3*time.Minute),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, proposal.RoundNumber)
	assert.Nil(t, proposal.ByeRegistrationID)
	require.Len(t, proposal.Pairings, 2)

	// Before round one the field is in registration order, folded adjacently.
	assert.Equal(t, 10, proposal.Pairings[0].HomeRegistrationID)
	require.NotNil(t, proposal.Pairings[0].AwayRegistrationID)
	assert.Equal(t, 11, *proposal.Pairings[0].AwayRegistrationID)
	assert.Equal(t, 1, proposal.Pairings[0].TableNumber)
	assert.Equal(t, 2, proposal.Pairings[1].TableNumber)
	assert.NotEmpty(t, proposal.Pairings[0].UID)
	assert.NotEqual(t, proposal.Pairings[0].UID, proposal.Pairings[1].UID)
}

func TestSwissGeneratorOddFieldGetsBye(t *testing.T) {
	g := NewSwissGenerator()
	proposal, err := g.GeneratePairings(context.Background(), GenerateParams{
		Phase:       &models.Phase{ID: 1, Format: models.PhaseFormatSwiss},
		RoundNumber: 2,
		Registrations: []*models.Registration{
			reg(10, 0), reg(11, time.Minute), reg(12, 2*time.Minute),
		},
		Standings: []*models.Standing{
			{RegistrationID: 10, Points: 3},
			{RegistrationID: 11, Points: 0},
			{RegistrationID: 12, Points: 3},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, proposal.ByeRegistrationID)

	// Lowest-ranked player takes the bye.
	assert.Equal(t, 11, *proposal.ByeRegistrationID)
	require.Len(t, proposal.Pairings, 2)
	assert.Equal(t, 10, proposal.Pairings[0].HomeRegistrationID)
	assert.Equal(t, 12, *proposal.Pairings[0].AwayRegistrationID)
	assert.Nil(t, proposal.Pairings[1].AwayRegistrationID)
	assert.Equal(t, 11, proposal.Pairings[1].HomeRegistrationID)
}

func TestSwissGeneratorRejectsTinyField(t *testing.T) {
	g := NewSwissGenerator()
	_, err := g.GeneratePairings(context.Background(), GenerateParams{
		Phase:         &models.Phase{ID: 1},
		RoundNumber:   1,
		Registrations: []*models.Registration{reg(10, 0)},
	})
	assert.Error(t, err)
}
