package services

import (
	"context"
	"fmt"

	"github.com/openbracket/tournament-engine/models"
	"github.com/openbracket/tournament-engine/repositories"
)

// StandingsService rebuilds and serves per-phase standings. It implements
// StandingsCalculator so a round completion can recompute standings inside
// the completion transaction.
type StandingsService interface {
	StandingsCalculator
	ListByPhase(ctx context.Context, phaseID int) ([]*models.Standing, error)
}

type standingsService struct {
	standingRepo repositories.StandingRepository
}

func NewStandingsService(standingRepo repositories.StandingRepository) StandingsService {
	return &standingsService{standingRepo: standingRepo}
}

func (s *standingsService) Recalculate(ctx context.Context, exec repositories.SQLExecutor, phaseID int) error {
	if err := s.standingRepo.Rebuild(ctx, exec, phaseID); err != nil {
		return fmt.Errorf("standings recalculation failed for phase %d: %w", phaseID, err)
	}
	return nil
}

func (s *standingsService) ListByPhase(ctx context.Context, phaseID int) ([]*models.Standing, error) {
	standings, err := s.standingRepo.ListByPhase(ctx, phaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list standings for phase %d: %w", phaseID, err)
	}
	return standings, nil
}
