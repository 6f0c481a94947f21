package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openbracket/tournament-engine/models"
	"github.com/openbracket/tournament-engine/pairing"
	"github.com/openbracket/tournament-engine/realtime"
	"github.com/openbracket/tournament-engine/repositories"
	"github.com/openbracket/tournament-engine/rounds"
)

// StandingsCalculator recomputes a phase's standings. It runs on the
// caller's executor so round completion and recalculation commit together.
type StandingsCalculator interface {
	Recalculate(ctx context.Context, exec repositories.SQLExecutor, phaseID int) error
}

// PreviewData is a prepared-but-uncommitted round awaiting organizer
// confirmation.
type PreviewData struct {
	Round             *models.Round   `json:"round"`
	Matches           []*models.Match `json:"matches"`
	ByeRegistrationID *int            `json:"bye_registration_id,omitempty"`
}

// PhaseSnapshot is the authoritative derived round state of a phase.
type PhaseSnapshot struct {
	PhaseID int `json:"phase_id"`
	rounds.Snapshot
}

// RoundService orchestrates the round lifecycle: it translates each
// transition into exactly one external call (pairing generation, start
// commit, completion plus standings), and republishes the authoritative
// state by re-querying round rows after every transition instead of trusting
// its own optimistic view. Transitions are idempotent per round id, so a
// retried confirm that already landed converges instead of double-applying.
type RoundService interface {
	PrepareRound(ctx context.Context, phaseID int) (*PreviewData, error)
	ConfirmAndStartRound(ctx context.Context, roundID int) error
	CancelPreparedRound(ctx context.Context, roundID int) error
	CompleteRound(ctx context.Context, roundID int) error
	PhaseState(ctx context.Context, phaseID int) (*PhaseSnapshot, error)
	// NotifyRoundsChanged is the change-feed entry point: it schedules a
	// debounced re-derivation and republish for the phase.
	NotifyRoundsChanged(phaseID int)
	Close()
}

const refreshDebounce = 300 * time.Millisecond

type roundService struct {
	phaseRepo        repositories.PhaseRepository
	roundRepo        repositories.RoundRepository
	registrationRepo repositories.RegistrationRepository
	standingRepo     repositories.StandingRepository
	generator        pairing.Generator
	standings        StandingsCalculator
	hub              *realtime.Hub
	logger           *slog.Logger

	// In-memory transitional state, layered on top of derived state only
	// while a call is in flight or a preview belongs to this process.
	mu         sync.Mutex
	inFlight   map[int]rounds.State // phaseID -> generating/starting/completing
	preview    map[int]int          // phaseID -> round ID created by this process
	refreshers map[int]*realtime.Debouncer
	closed     bool
}

func NewRoundService(
	phaseRepo repositories.PhaseRepository,
	roundRepo repositories.RoundRepository,
	registrationRepo repositories.RegistrationRepository,
	standingRepo repositories.StandingRepository,
	generator pairing.Generator,
	standings StandingsCalculator,
	hub *realtime.Hub,
	logger *slog.Logger,
) RoundService {
	return &roundService{
		phaseRepo:        phaseRepo,
		roundRepo:        roundRepo,
		registrationRepo: registrationRepo,
		standingRepo:     standingRepo,
		generator:        generator,
		standings:        standings,
		hub:              hub,
		logger:           logger,
		inFlight:         make(map[int]rounds.State),
		preview:          make(map[int]int),
		refreshers:       make(map[int]*realtime.Debouncer),
	}
}

func (s *roundService) PrepareRound(ctx context.Context, phaseID int) (*PreviewData, error) {
	phase, err := s.getPhase(ctx, phaseID)
	if err != nil {
		return nil, err
	}

	// Derived purely from fresh rows: two concurrent organizer sessions
	// converge to the same decision, and the check happens before any
	// pairing call is made.
	derived, err := s.derive(ctx, phaseID)
	if err != nil {
		return nil, err
	}
	switch derived.State {
	case rounds.StateActive:
		return nil, ErrRoundAlreadyActive
	case rounds.StatePendingResume:
		return nil, ErrRoundPendingResume
	}
	if phase.PlannedRounds != nil && derived.NextRoundNumber > *phase.PlannedRounds {
		return nil, ErrPhaseRoundsExhausted
	}

	checkedIn := models.RegistrationStatusCheckedIn
	registrations, err := s.registrationRepo.ListByTournament(ctx, phase.TournamentID, &checkedIn, false)
	if err != nil {
		return nil, fmt.Errorf("failed to list checked-in players for tournament %d: %w", phase.TournamentID, err)
	}
	standings, err := s.standingRepo.ListByPhase(ctx, phaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load standings for phase %d: %w", phaseID, err)
	}

	s.setInFlight(phase, rounds.StateGenerating)

	proposal, err := s.generator.GeneratePairings(ctx, pairing.GenerateParams{
		Phase:         phase,
		RoundNumber:   derived.NextRoundNumber,
		Registrations: registrations,
		Standings:     standings,
	})
	if err != nil {
		// Generation is all-or-nothing: nothing was persisted, the phase
		// falls back to idle.
		s.clearInFlight(ctx, phase)
		return nil, fmt.Errorf("pairing generation failed for phase %d: %w", phaseID, err)
	}

	round := &models.Round{
		PhaseID:     phaseID,
		RoundNumber: proposal.RoundNumber,
		Status:      models.RoundStatusPending,
	}
	matches := make([]*models.Match, 0, len(proposal.Pairings))
	for _, p := range proposal.Pairings {
		m := &models.Match{
			TableNumber:        p.TableNumber,
			HomeRegistrationID: p.HomeRegistrationID,
			AwayRegistrationID: p.AwayRegistrationID,
			Status:             models.MatchStatusPending,
			PairingUID:         p.UID,
		}
		if m.IsBye() {
			// A bye is an auto-win, recorded as completed on creation.
			m.Status = models.MatchStatusCompleted
			winner := p.HomeRegistrationID
			m.WinnerRegistrationID = &winner
		}
		matches = append(matches, m)
	}

	if err := s.roundRepo.CreateWithMatches(ctx, round, matches); err != nil {
		s.clearInFlight(ctx, phase)
		if errors.Is(err, repositories.ErrRoundNumberConflict) {
			return nil, ErrRoundConflict
		}
		return nil, fmt.Errorf("failed to persist prepared round for phase %d: %w", phaseID, err)
	}

	s.mu.Lock()
	delete(s.inFlight, phaseID)
	s.preview[phaseID] = round.ID
	s.mu.Unlock()
	s.republish(ctx, phase)

	return &PreviewData{
		Round:             round,
		Matches:           matches,
		ByeRegistrationID: proposal.ByeRegistrationID,
	}, nil
}

func (s *roundService) ConfirmAndStartRound(ctx context.Context, roundID int) error {
	round, err := s.getRound(ctx, roundID)
	if err != nil {
		return err
	}
	phase, err := s.getPhase(ctx, round.PhaseID)
	if err != nil {
		return err
	}

	switch round.Status {
	case models.RoundStatusActive:
		// A retried confirm whose first attempt landed server-side.
		s.republish(ctx, phase)
		return nil
	case models.RoundStatusCompleted:
		return ErrRoundConflict
	}
	if round.MatchCount == 0 {
		return ErrRoundNotPending
	}

	s.setInFlight(phase, rounds.StateStarting)

	if err := s.roundRepo.Start(ctx, roundID); err != nil {
		s.clearInFlight(ctx, phase)
		if errors.Is(err, repositories.ErrRoundStateConflict) {
			fresh, readErr := s.getRound(ctx, roundID)
			if readErr == nil && fresh.Status == models.RoundStatusActive {
				return nil
			}
			return ErrRoundConflict
		}
		// The round still exists as pending: safely retryable, the next
		// derivation reports pending_resume.
		return fmt.Errorf("failed to start round %d: %w", roundID, err)
	}

	s.mu.Lock()
	delete(s.inFlight, phase.ID)
	delete(s.preview, phase.ID)
	s.mu.Unlock()
	s.republish(ctx, phase)
	return nil
}

func (s *roundService) CancelPreparedRound(ctx context.Context, roundID int) error {
	round, err := s.getRound(ctx, roundID)
	if err != nil {
		return err
	}
	if round.Status != models.RoundStatusPending {
		return ErrRoundNotPending
	}
	phase, err := s.getPhase(ctx, round.PhaseID)
	if err != nil {
		return err
	}

	if err := s.roundRepo.DeleteWithMatches(ctx, roundID); err != nil {
		if errors.Is(err, repositories.ErrRoundStateConflict) {
			return ErrRoundConflict
		}
		return fmt.Errorf("failed to cancel prepared round %d: %w", roundID, err)
	}

	s.mu.Lock()
	if s.preview[phase.ID] == roundID {
		delete(s.preview, phase.ID)
	}
	s.mu.Unlock()
	s.republish(ctx, phase)
	return nil
}

func (s *roundService) CompleteRound(ctx context.Context, roundID int) error {
	round, err := s.getRound(ctx, roundID)
	if err != nil {
		return err
	}
	if round.Status != models.RoundStatusActive {
		return ErrRoundNotActive
	}
	// Gate on counts from the fresh read above, not from any cached
	// snapshot a caller might hold.
	if !round.AllMatchesDone() {
		return ErrRoundNotFinished
	}
	phase, err := s.getPhase(ctx, round.PhaseID)
	if err != nil {
		return err
	}

	s.setInFlight(phase, rounds.StateCompleting)

	err = s.roundRepo.Complete(ctx, roundID, func(ctx context.Context, exec repositories.SQLExecutor) error {
		return s.standings.Recalculate(ctx, exec, phase.ID)
	})
	if err != nil {
		// Completion is retryable: the round stays active.
		s.clearInFlight(ctx, phase)
		if errors.Is(err, repositories.ErrRoundStateConflict) {
			return ErrRoundConflict
		}
		return fmt.Errorf("failed to complete round %d: %w", roundID, err)
	}

	s.mu.Lock()
	delete(s.inFlight, phase.ID)
	s.mu.Unlock()
	s.republish(ctx, phase)
	return nil
}

func (s *roundService) PhaseState(ctx context.Context, phaseID int) (*PhaseSnapshot, error) {
	var rows []*models.Round

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if _, err := s.getPhase(gCtx, phaseID); err != nil {
			return err
		}
		return nil
	})
	g.Go(func() error {
		r, err := s.roundRepo.ListByPhase(gCtx, phaseID)
		if err != nil {
			return fmt.Errorf("failed to list rounds for phase %d: %w", phaseID, err)
		}
		rows = r
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snap := s.overlay(phaseID, rounds.Derive(rows))
	return &PhaseSnapshot{PhaseID: phaseID, Snapshot: snap}, nil
}

func (s *roundService) NotifyRoundsChanged(phaseID int) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	d, ok := s.refreshers[phaseID]
	if !ok {
		d = realtime.NewDebouncer(refreshDebounce, func() { s.refresh(phaseID) })
		s.refreshers[phaseID] = d
	}
	s.mu.Unlock()
	d.Trigger()
}

func (s *roundService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for _, d := range s.refreshers {
		d.Close()
	}
}

func (s *roundService) refresh(phaseID int) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	phase, err := s.getPhase(ctx, phaseID)
	if err != nil {
		s.logger.Error("round state refresh failed", slog.Int("phase_id", phaseID), slog.Any("error", err))
		return
	}
	s.republish(ctx, phase)
}

// derive re-reads round rows and computes the persisted-state snapshot,
// without overlays.
func (s *roundService) derive(ctx context.Context, phaseID int) (rounds.Snapshot, error) {
	rows, err := s.roundRepo.ListByPhase(ctx, phaseID)
	if err != nil {
		return rounds.Snapshot{}, fmt.Errorf("failed to list rounds for phase %d: %w", phaseID, err)
	}
	return rounds.Derive(rows), nil
}

// overlay layers in-flight and preview knowledge over a derived snapshot.
func (s *roundService) overlay(phaseID int, snap rounds.Snapshot) rounds.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state, ok := s.inFlight[phaseID]; ok {
		snap.State = state
		return snap
	}
	if snap.State == rounds.StatePendingResume && snap.Round != nil && s.preview[phaseID] == snap.Round.ID {
		snap.State = rounds.StatePreview
	}
	return snap
}

func (s *roundService) setInFlight(phase *models.Phase, state rounds.State) {
	s.mu.Lock()
	s.inFlight[phase.ID] = state
	s.mu.Unlock()
	s.broadcast(phase, rounds.Snapshot{State: state})
}

// clearInFlight drops the overlay after a failed call and republishes the
// authoritative state so observers recover by re-derivation, never by
// undoing an optimistic change.
func (s *roundService) clearInFlight(ctx context.Context, phase *models.Phase) {
	s.mu.Lock()
	delete(s.inFlight, phase.ID)
	s.mu.Unlock()
	s.republish(ctx, phase)
}

func (s *roundService) republish(ctx context.Context, phase *models.Phase) {
	derived, err := s.derive(ctx, phase.ID)
	if err != nil {
		s.logger.Error("failed to re-derive round state", slog.Int("phase_id", phase.ID), slog.Any("error", err))
		return
	}
	s.broadcast(phase, s.overlay(phase.ID, derived))
}

func (s *roundService) broadcast(phase *models.Phase, snap rounds.Snapshot) {
	if s.hub == nil {
		return
	}
	s.hub.BroadcastToRoom("tournament_"+strconv.Itoa(phase.TournamentID), realtime.Message{
		Type:    realtime.EventRoundState,
		Payload: PhaseSnapshot{PhaseID: phase.ID, Snapshot: snap},
	})
}

func (s *roundService) getPhase(ctx context.Context, phaseID int) (*models.Phase, error) {
	phase, err := s.phaseRepo.GetByID(ctx, phaseID)
	if err != nil {
		if errors.Is(err, repositories.ErrPhaseNotFound) {
			return nil, ErrPhaseNotFound
		}
		return nil, fmt.Errorf("failed to load phase %d: %w", phaseID, err)
	}
	return phase, nil
}

func (s *roundService) getRound(ctx context.Context, roundID int) (*models.Round, error) {
	round, err := s.roundRepo.GetByID(ctx, roundID)
	if err != nil {
		if errors.Is(err, repositories.ErrRoundNotFound) {
			return nil, ErrRoundNotFound
		}
		return nil, fmt.Errorf("failed to load round %d: %w", roundID, err)
	}
	return round, nil
}
