package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/openbracket/tournament-engine/models"
	"github.com/openbracket/tournament-engine/repositories"
)

// MatchService records match progress. Result scoring stays thin here; what
// matters to the round engine is that status flips feed the aggregate counts
// the completion gate reads, so every mutation notifies the round service.
type MatchService interface {
	ListByRound(ctx context.Context, roundID int) ([]*models.Match, error)
	StartMatch(ctx context.Context, matchID int) error
	ReportResult(ctx context.Context, matchID int, winnerRegistrationID *int) error
}

type matchService struct {
	matchRepo repositories.MatchRepository
	roundRepo repositories.RoundRepository
	roundSvc  RoundService
}

func NewMatchService(
	matchRepo repositories.MatchRepository,
	roundRepo repositories.RoundRepository,
	roundSvc RoundService,
) MatchService {
	return &matchService{
		matchRepo: matchRepo,
		roundRepo: roundRepo,
		roundSvc:  roundSvc,
	}
}

func (s *matchService) ListByRound(ctx context.Context, roundID int) ([]*models.Match, error) {
	matches, err := s.matchRepo.ListByRound(ctx, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches for round %d: %w", roundID, err)
	}
	return matches, nil
}

func (s *matchService) StartMatch(ctx context.Context, matchID int) error {
	match, err := s.getMatch(ctx, matchID)
	if err != nil {
		return err
	}
	if err := s.matchRepo.SetActive(ctx, matchID); err != nil {
		if errors.Is(err, repositories.ErrMatchStateConflict) {
			return ErrMatchConflict
		}
		return fmt.Errorf("failed to start match %d: %w", matchID, err)
	}
	s.notify(ctx, match.RoundID)
	return nil
}

func (s *matchService) ReportResult(ctx context.Context, matchID int, winnerRegistrationID *int) error {
	match, err := s.getMatch(ctx, matchID)
	if err != nil {
		return err
	}
	if winnerRegistrationID != nil {
		if *winnerRegistrationID != match.HomeRegistrationID &&
			(match.AwayRegistrationID == nil || *winnerRegistrationID != *match.AwayRegistrationID) {
			return ErrValidationFailed
		}
	}
	if err := s.matchRepo.SetCompleted(ctx, matchID, winnerRegistrationID); err != nil {
		if errors.Is(err, repositories.ErrMatchStateConflict) {
			return ErrMatchConflict
		}
		return fmt.Errorf("failed to record result for match %d: %w", matchID, err)
	}
	s.notify(ctx, match.RoundID)
	return nil
}

func (s *matchService) getMatch(ctx context.Context, matchID int) (*models.Match, error) {
	match, err := s.matchRepo.GetByID(ctx, matchID)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to load match %d: %w", matchID, err)
	}
	return match, nil
}

func (s *matchService) notify(ctx context.Context, roundID int) {
	round, err := s.roundRepo.GetByID(ctx, roundID)
	if err != nil {
		return
	}
	s.roundSvc.NotifyRoundsChanged(round.PhaseID)
}
