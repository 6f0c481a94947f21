package services

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbracket/tournament-engine/models"
	"github.com/openbracket/tournament-engine/rounds"
)

type roundFixture struct {
	tournaments   *fakeTournamentRepo
	phases        *fakePhaseRepo
	roundRepo     *fakeRoundRepo
	registrations *fakeRegistrationRepo
	standings     *fakeStandingRepo
	generator     *countingGenerator
	tournament    *models.Tournament
	phase         *models.Phase
	svc           RoundService
}

func newRoundFixture(t *testing.T, players int, plannedRounds *int) *roundFixture {
	t.Helper()

	f := &roundFixture{
		tournaments: newFakeTournamentRepo(),
		phases:      newFakePhaseRepo(),
		roundRepo:   newFakeRoundRepo(),
		standings:   newFakeStandingRepo(),
		generator:   newCountingGenerator(),
	}
	f.registrations = newFakeRegistrationRepo(f.tournaments)

	f.tournament = f.tournaments.add(&models.Tournament{
		Name:        "City Open",
		OrganizerID: 1,
		Status:      models.StatusActive,
		StartDate:   time.Now().Add(-time.Hour),
	})
	f.phase = f.phases.add(&models.Phase{
		TournamentID:  f.tournament.ID,
		Name:          "Swiss",
		Ordinal:       1,
		Format:        models.PhaseFormatSwiss,
		PlannedRounds: plannedRounds,
	})

	now := time.Now()
	for i := 0; i < players; i++ {
		f.registrations.nextID++
		reg := &models.Registration{
			ID:           f.registrations.nextID,
			TournamentID: f.tournament.ID,
			UserID:       100 + i,
			Status:       models.RegistrationStatusCheckedIn,
			CheckedInAt:  &now,
			CreatedAt:    now.Add(time.Duration(i) * time.Minute),
		}
		f.registrations.byID[reg.ID] = reg
	}

	f.svc = f.newService()
	t.Cleanup(f.svc.Close)
	return f
}

// newService builds a fresh RoundService over the same fakes, simulating a
// process restart that loses all in-memory overlays.
func (f *roundFixture) newService() RoundService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRoundService(
		f.phases, f.roundRepo, f.registrations, f.standings,
		f.generator, NewStandingsService(f.standings), nil, logger,
	)
}

func (f *roundFixture) prepare(t *testing.T) *PreviewData {
	t.Helper()
	preview, err := f.svc.PrepareRound(context.Background(), f.phase.ID)
	require.NoError(t, err)
	require.NotNil(t, preview)
	return preview
}

func (f *roundFixture) state(t *testing.T) *PhaseSnapshot {
	t.Helper()
	snap, err := f.svc.PhaseState(context.Background(), f.phase.ID)
	require.NoError(t, err)
	return snap
}

func TestPrepareRoundCreatesPreview(t *testing.T) {
	f := newRoundFixture(t, 4, nil)

	preview := f.prepare(t)

	assert.Equal(t, models.RoundStatusPending, preview.Round.Status)
	assert.Equal(t, 1, preview.Round.RoundNumber)
	assert.Len(t, preview.Matches, 2)
	assert.Nil(t, preview.ByeRegistrationID)

	snap := f.state(t)
	assert.Equal(t, rounds.StatePreview, snap.State)
	require.NotNil(t, snap.Round)
	assert.Equal(t, preview.Round.ID, snap.Round.ID)
}

func TestPrepareRoundOddFieldPersistsByeAsCompleted(t *testing.T) {
	f := newRoundFixture(t, 5, nil)

	preview := f.prepare(t)

	require.NotNil(t, preview.ByeRegistrationID)
	var byeMatches int
	for _, m := range preview.Matches {
		if m.IsBye() {
			byeMatches++
			assert.Equal(t, models.MatchStatusCompleted, m.Status)
			require.NotNil(t, m.WinnerRegistrationID)
			assert.Equal(t, *preview.ByeRegistrationID, *m.WinnerRegistrationID)
		}
	}
	assert.Equal(t, 1, byeMatches)
}

func TestPrepareRoundRejectsActiveRoundWithoutGenerating(t *testing.T) {
	f := newRoundFixture(t, 4, nil)

	preview := f.prepare(t)
	require.NoError(t, f.svc.ConfirmAndStartRound(context.Background(), preview.Round.ID))

	_, err := f.svc.PrepareRound(context.Background(), f.phase.ID)
	assert.ErrorIs(t, err, ErrRoundAlreadyActive)
	// The guard fires on fresh rows before any pairing work starts.
	assert.Equal(t, 1, f.generator.callCount())
}

func TestPrepareRoundRejectsResumablePending(t *testing.T) {
	f := newRoundFixture(t, 4, nil)

	f.prepare(t)
	calls := f.generator.callCount()

	// A second organizer session (fresh process) sees the persisted pending
	// round and must not generate over it.
	other := f.newService()
	defer other.Close()
	_, err := other.PrepareRound(context.Background(), f.phase.ID)
	assert.ErrorIs(t, err, ErrRoundPendingResume)
	assert.Equal(t, calls, f.generator.callCount())
}

func TestPrepareRoundPlannedRoundsExhausted(t *testing.T) {
	planned := 1
	f := newRoundFixture(t, 4, &planned)

	preview := f.prepare(t)
	require.NoError(t, f.svc.ConfirmAndStartRound(context.Background(), preview.Round.ID))
	f.roundRepo.completeAllMatches(preview.Round.ID)
	require.NoError(t, f.svc.CompleteRound(context.Background(), preview.Round.ID))

	_, err := f.svc.PrepareRound(context.Background(), f.phase.ID)
	assert.ErrorIs(t, err, ErrPhaseRoundsExhausted)
}

func TestConfirmAndStartRound(t *testing.T) {
	f := newRoundFixture(t, 4, nil)

	preview := f.prepare(t)
	require.NoError(t, f.svc.ConfirmAndStartRound(context.Background(), preview.Round.ID))

	stored, err := f.roundRepo.GetByID(context.Background(), preview.Round.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoundStatusActive, stored.Status)
	assert.NotNil(t, stored.StartedAt)

	snap := f.state(t)
	assert.Equal(t, rounds.StateActive, snap.State)
}

func TestConfirmIsIdempotentForActiveRound(t *testing.T) {
	f := newRoundFixture(t, 4, nil)

	preview := f.prepare(t)
	require.NoError(t, f.svc.ConfirmAndStartRound(context.Background(), preview.Round.ID))
	// Retried confirm after the first one landed converges to success.
	require.NoError(t, f.svc.ConfirmAndStartRound(context.Background(), preview.Round.ID))

	assert.Equal(t, rounds.StateActive, f.state(t).State)
}

func TestConfirmFailureLeavesRoundResumable(t *testing.T) {
	f := newRoundFixture(t, 4, nil)

	preview := f.prepare(t)
	f.roundRepo.failStart = errTransport

	err := f.svc.ConfirmAndStartRound(context.Background(), preview.Round.ID)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRoundConflict)

	stored, getErr := f.roundRepo.GetByID(context.Background(), preview.Round.ID)
	require.NoError(t, getErr)
	assert.Equal(t, models.RoundStatusPending, stored.Status)

	// A reload that lost the in-memory preview ownership derives the same
	// rows as resumable, not as a fresh preview.
	reloaded := f.newService()
	defer reloaded.Close()
	snap, snapErr := reloaded.PhaseState(context.Background(), f.phase.ID)
	require.NoError(t, snapErr)
	assert.Equal(t, rounds.StatePendingResume, snap.State)
	require.NotNil(t, snap.Round)
	assert.Equal(t, preview.Round.ID, snap.Round.ID)

	// The retry succeeds once the connection recovers.
	f.roundRepo.failStart = nil
	require.NoError(t, reloaded.ConfirmAndStartRound(context.Background(), preview.Round.ID))
	assert.Equal(t, rounds.StateActive, f.state(t).State)
}

func TestCancelPreparedRoundDeletesRoundAndMatches(t *testing.T) {
	f := newRoundFixture(t, 4, nil)

	preview := f.prepare(t)
	require.NoError(t, f.svc.CancelPreparedRound(context.Background(), preview.Round.ID))

	_, err := f.svc.PhaseState(context.Background(), f.phase.ID)
	require.NoError(t, err)
	snap := f.state(t)
	assert.Equal(t, rounds.StateIdle, snap.State)
	// The cancelled round number is reusable.
	assert.Equal(t, 1, snap.NextRoundNumber)

	rows, err := f.roundRepo.ListByPhase(context.Background(), f.phase.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestCancelRejectsNonPendingRound(t *testing.T) {
	f := newRoundFixture(t, 4, nil)

	preview := f.prepare(t)
	require.NoError(t, f.svc.ConfirmAndStartRound(context.Background(), preview.Round.ID))

	err := f.svc.CancelPreparedRound(context.Background(), preview.Round.ID)
	assert.ErrorIs(t, err, ErrRoundNotPending)
}

func TestCompleteRoundGatesOnAllMatchesDone(t *testing.T) {
	f := newRoundFixture(t, 4, nil)

	preview := f.prepare(t)
	require.NoError(t, f.svc.ConfirmAndStartRound(context.Background(), preview.Round.ID))

	err := f.svc.CompleteRound(context.Background(), preview.Round.ID)
	assert.ErrorIs(t, err, ErrRoundNotFinished)
	assert.Equal(t, 0, f.standings.rebuilds)

	f.roundRepo.completeAllMatches(preview.Round.ID)
	require.NoError(t, f.svc.CompleteRound(context.Background(), preview.Round.ID))

	stored, getErr := f.roundRepo.GetByID(context.Background(), preview.Round.ID)
	require.NoError(t, getErr)
	assert.Equal(t, models.RoundStatusCompleted, stored.Status)
	assert.Equal(t, 1, f.standings.rebuilds)
	assert.Equal(t, rounds.StateIdle, f.state(t).State)
}

func TestCompleteRoundRequiresActiveRound(t *testing.T) {
	f := newRoundFixture(t, 4, nil)

	preview := f.prepare(t)
	err := f.svc.CompleteRound(context.Background(), preview.Round.ID)
	assert.ErrorIs(t, err, ErrRoundNotActive)
}

func TestCompleteRoundFailureKeepsRoundActive(t *testing.T) {
	f := newRoundFixture(t, 4, nil)

	preview := f.prepare(t)
	require.NoError(t, f.svc.ConfirmAndStartRound(context.Background(), preview.Round.ID))
	f.roundRepo.completeAllMatches(preview.Round.ID)

	f.roundRepo.failComplete = errTransport
	err := f.svc.CompleteRound(context.Background(), preview.Round.ID)
	require.Error(t, err)

	stored, getErr := f.roundRepo.GetByID(context.Background(), preview.Round.ID)
	require.NoError(t, getErr)
	assert.Equal(t, models.RoundStatusActive, stored.Status)

	f.roundRepo.failComplete = nil
	require.NoError(t, f.svc.CompleteRound(context.Background(), preview.Round.ID))
}

func TestFullThreeRoundFlow(t *testing.T) {
	planned := 3
	f := newRoundFixture(t, 4, &planned)
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		preview := f.prepare(t)
		assert.Equal(t, want, preview.Round.RoundNumber)

		require.NoError(t, f.svc.ConfirmAndStartRound(ctx, preview.Round.ID))
		f.roundRepo.completeAllMatches(preview.Round.ID)
		require.NoError(t, f.svc.CompleteRound(ctx, preview.Round.ID))
	}

	assert.Equal(t, 3, f.standings.rebuilds)

	_, err := f.svc.PrepareRound(ctx, f.phase.ID)
	assert.ErrorIs(t, err, ErrPhaseRoundsExhausted)

	snap := f.state(t)
	assert.Equal(t, rounds.StateIdle, snap.State)
	assert.Equal(t, 4, snap.NextRoundNumber)
}

func TestPhaseStateUnknownPhase(t *testing.T) {
	f := newRoundFixture(t, 4, nil)

	_, err := f.svc.PhaseState(context.Background(), 999)
	assert.ErrorIs(t, err, ErrPhaseNotFound)
}
