package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbracket/tournament-engine/models"
)

func newRegistrationFixture(t *testing.T, tournament *models.Tournament) (*registrationService, *fakeTournamentRepo, *fakeRegistrationRepo) {
	t.Helper()
	tournaments := newFakeTournamentRepo()
	tournaments.add(tournament)
	registrations := newFakeRegistrationRepo(tournaments)
	svc := NewRegistrationService(registrations, tournaments, nil).(*registrationService)
	return svc, tournaments, registrations
}

func intPtr(v int) *int { return &v }

func TestRegisterUpcomingTournament(t *testing.T) {
	svc, _, _ := newRegistrationFixture(t, &models.Tournament{
		Status:    models.StatusUpcoming,
		StartDate: time.Now().Add(24 * time.Hour),
	})

	reg, err := svc.Register(context.Background(), 1, 42)
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationStatusRegistered, reg.Status)
	assert.Equal(t, 42, reg.UserID)
}

func TestRegisterClosedWindowCreatesNoRow(t *testing.T) {
	for _, status := range []models.TournamentStatus{
		models.StatusDraft,
		models.StatusCompleted,
		models.StatusCancelled,
	} {
		t.Run(string(status), func(t *testing.T) {
			svc, _, registrations := newRegistrationFixture(t, &models.Tournament{
				Status:    status,
				StartDate: time.Now().Add(24 * time.Hour),
			})

			_, err := svc.Register(context.Background(), 1, 42)
			assert.ErrorIs(t, err, ErrRegistrationClosed)
			assert.Empty(t, registrations.byID)
		})
	}
}

func TestRegisterActiveTournamentNeedsLateFlag(t *testing.T) {
	svc, tournaments, _ := newRegistrationFixture(t, &models.Tournament{
		Status:    models.StatusActive,
		StartDate: time.Now().Add(-time.Hour),
	})

	_, err := svc.Register(context.Background(), 1, 42)
	assert.ErrorIs(t, err, ErrRegistrationClosed)

	tournaments.byID[1].AllowLateRegistration = true
	reg, err := svc.Register(context.Background(), 1, 42)
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationStatusRegistered, reg.Status)
}

func TestRegisterOverflowGoesToWaitlist(t *testing.T) {
	svc, _, _ := newRegistrationFixture(t, &models.Tournament{
		Status:          models.StatusUpcoming,
		StartDate:       time.Now().Add(24 * time.Hour),
		MaxParticipants: intPtr(2),
	})
	ctx := context.Background()

	first, err := svc.Register(ctx, 1, 10)
	require.NoError(t, err)
	second, err := svc.Register(ctx, 1, 11)
	require.NoError(t, err)
	third, err := svc.Register(ctx, 1, 12)
	require.NoError(t, err)

	assert.Equal(t, models.RegistrationStatusRegistered, first.Status)
	assert.Equal(t, models.RegistrationStatusRegistered, second.Status)
	// Overflow is an admitted waitlist row, not an error.
	assert.Equal(t, models.RegistrationStatusWaitlist, third.Status)
}

func TestRegisterCapacityCountsOnlyRegisteredRows(t *testing.T) {
	svc, _, registrations := newRegistrationFixture(t, &models.Tournament{
		Status:          models.StatusUpcoming,
		StartDate:       time.Now().Add(24 * time.Hour),
		MaxParticipants: intPtr(2),
	})

	// Waitlisted and dropped rows occupy no capacity.
	registrations.byID[1] = &models.Registration{ID: 1, TournamentID: 1, UserID: 20, Status: models.RegistrationStatusWaitlist}
	registrations.byID[2] = &models.Registration{ID: 2, TournamentID: 1, UserID: 21, Status: models.RegistrationStatusDropped}
	registrations.nextID = 2

	reg, err := svc.Register(context.Background(), 1, 22)
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationStatusRegistered, reg.Status)
}

func TestRegisterDuplicateConflict(t *testing.T) {
	svc, _, registrations := newRegistrationFixture(t, &models.Tournament{
		Status:    models.StatusUpcoming,
		StartDate: time.Now().Add(24 * time.Hour),
	})
	ctx := context.Background()

	_, err := svc.Register(ctx, 1, 42)
	require.NoError(t, err)
	_, err = svc.Register(ctx, 1, 42)
	assert.ErrorIs(t, err, ErrRegistrationConflict)
	assert.Len(t, registrations.byID, 1)
}

func TestRegisterUnknownTournament(t *testing.T) {
	svc, _, _ := newRegistrationFixture(t, &models.Tournament{
		Status:    models.StatusUpcoming,
		StartDate: time.Now().Add(24 * time.Hour),
	})

	_, err := svc.Register(context.Background(), 999, 42)
	assert.ErrorIs(t, err, ErrTournamentNotFound)
}

func TestConcurrentRegistrationRespectsCapacity(t *testing.T) {
	svc, _, registrations := newRegistrationFixture(t, &models.Tournament{
		Status:          models.StatusUpcoming,
		StartDate:       time.Now().Add(24 * time.Hour),
		MaxParticipants: intPtr(2),
	})
	ctx := context.Background()

	const requests = 8
	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func(userID int) {
			defer wg.Done()
			_, err := svc.Register(ctx, 1, userID)
			assert.NoError(t, err)
		}(100 + i)
	}
	wg.Wait()

	var registered, waitlisted int
	for _, r := range registrations.byID {
		switch r.Status {
		case models.RegistrationStatusRegistered:
			registered++
		case models.RegistrationStatusWaitlist:
			waitlisted++
		}
	}
	// No over-admission and no lost registration under contention.
	assert.Equal(t, 2, registered)
	assert.Equal(t, requests-2, waitlisted)
	assert.Len(t, registrations.byID, requests)
}

func TestCheckInWithinWindow(t *testing.T) {
	start := time.Now().Add(10 * time.Minute)
	svc, _, _ := newRegistrationFixture(t, &models.Tournament{
		Status:               models.StatusUpcoming,
		StartDate:            start,
		CheckInWindowMinutes: 30,
	})
	ctx := context.Background()

	_, err := svc.Register(ctx, 1, 42)
	require.NoError(t, err)

	reg, err := svc.CheckIn(ctx, 1, 42)
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationStatusCheckedIn, reg.Status)
	assert.False(t, reg.CheckedInLate)
	assert.NotNil(t, reg.CheckedInAt)
}

func TestCheckInBeforeWindowOpens(t *testing.T) {
	svc, _, _ := newRegistrationFixture(t, &models.Tournament{
		Status:               models.StatusUpcoming,
		StartDate:            time.Now().Add(2 * time.Hour),
		CheckInWindowMinutes: 30,
	})
	ctx := context.Background()

	_, err := svc.Register(ctx, 1, 42)
	require.NoError(t, err)

	_, err = svc.CheckIn(ctx, 1, 42)
	assert.ErrorIs(t, err, ErrCheckInClosed)
}

func TestCheckInAfterStartWithoutLateValve(t *testing.T) {
	svc, tournaments, registrations := newRegistrationFixture(t, &models.Tournament{
		Status:               models.StatusActive,
		StartDate:            time.Now().Add(-time.Hour),
		CheckInWindowMinutes: 30,
		CurrentRound:         intPtr(1),
	})
	registrations.byID[1] = &models.Registration{ID: 1, TournamentID: 1, UserID: 42, Status: models.RegistrationStatusRegistered}
	registrations.nextID = 1

	_, err := svc.CheckIn(context.Background(), 1, 42)
	assert.ErrorIs(t, err, ErrCheckInClosed)

	// Opening the late valve admits while the round cap allows.
	tournaments.byID[1].LateCheckInMaxRound = intPtr(3)
	reg, err := svc.CheckIn(context.Background(), 1, 42)
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationStatusCheckedIn, reg.Status)
	assert.True(t, reg.CheckedInLate)
}

func TestLateCheckInClosedAtMaxRound(t *testing.T) {
	svc, _, registrations := newRegistrationFixture(t, &models.Tournament{
		Status:               models.StatusActive,
		StartDate:            time.Now().Add(-time.Hour),
		CheckInWindowMinutes: 30,
		CurrentRound:         intPtr(3),
		LateCheckInMaxRound:  intPtr(3),
	})
	registrations.byID[1] = &models.Registration{ID: 1, TournamentID: 1, UserID: 42, Status: models.RegistrationStatusRegistered}
	registrations.nextID = 1

	_, err := svc.CheckIn(context.Background(), 1, 42)
	assert.ErrorIs(t, err, ErrCheckInClosed)
}

func TestCheckInIsIdempotent(t *testing.T) {
	svc, _, _ := newRegistrationFixture(t, &models.Tournament{
		Status:               models.StatusUpcoming,
		StartDate:            time.Now().Add(10 * time.Minute),
		CheckInWindowMinutes: 30,
	})
	ctx := context.Background()

	_, err := svc.Register(ctx, 1, 42)
	require.NoError(t, err)
	first, err := svc.CheckIn(ctx, 1, 42)
	require.NoError(t, err)

	second, err := svc.CheckIn(ctx, 1, 42)
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationStatusCheckedIn, second.Status)
	assert.Equal(t, first.ID, second.ID)
}

func TestCheckInRejectsWaitlistedPlayer(t *testing.T) {
	svc, _, registrations := newRegistrationFixture(t, &models.Tournament{
		Status:               models.StatusUpcoming,
		StartDate:            time.Now().Add(10 * time.Minute),
		CheckInWindowMinutes: 30,
	})
	registrations.byID[1] = &models.Registration{ID: 1, TournamentID: 1, UserID: 42, Status: models.RegistrationStatusWaitlist}
	registrations.nextID = 1

	_, err := svc.CheckIn(context.Background(), 1, 42)
	assert.ErrorIs(t, err, ErrCheckInBadStatus)
}

func TestCheckInWithoutRegistration(t *testing.T) {
	svc, _, _ := newRegistrationFixture(t, &models.Tournament{
		Status:               models.StatusUpcoming,
		StartDate:            time.Now().Add(10 * time.Minute),
		CheckInWindowMinutes: 30,
	})

	_, err := svc.CheckIn(context.Background(), 1, 42)
	assert.ErrorIs(t, err, ErrRegistrationNotFound)
}

func TestUndoCheckIn(t *testing.T) {
	svc, _, _ := newRegistrationFixture(t, &models.Tournament{
		Status:               models.StatusUpcoming,
		StartDate:            time.Now().Add(10 * time.Minute),
		CheckInWindowMinutes: 30,
	})
	ctx := context.Background()

	_, err := svc.Register(ctx, 1, 42)
	require.NoError(t, err)
	_, err = svc.CheckIn(ctx, 1, 42)
	require.NoError(t, err)

	reg, err := svc.UndoCheckIn(ctx, 1, 42)
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationStatusRegistered, reg.Status)
	assert.Nil(t, reg.CheckedInAt)
	assert.False(t, reg.CheckedInLate)

	_, err = svc.UndoCheckIn(ctx, 1, 42)
	assert.ErrorIs(t, err, ErrCheckInBadStatus)
}

func TestRegistrationWindowReport(t *testing.T) {
	svc, _, _ := newRegistrationFixture(t, &models.Tournament{
		Status:               models.StatusUpcoming,
		StartDate:            time.Now().Add(10 * time.Minute),
		CheckInWindowMinutes: 30,
	})

	windows, err := svc.RegistrationWindow(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, windows.Registration.Open)
	assert.False(t, windows.Registration.Late)
	assert.True(t, windows.CheckIn.Open)
}
