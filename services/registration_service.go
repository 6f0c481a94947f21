package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/openbracket/tournament-engine/admission"
	"github.com/openbracket/tournament-engine/models"
	"github.com/openbracket/tournament-engine/realtime"
	"github.com/openbracket/tournament-engine/repositories"
)

// RegistrationService is the single entry point for admission decisions:
// every register/check-in request re-reads the tournament, classifies the
// window with the pure admission policy, and delegates the capacity
// check-then-insert to one atomic repository call.
type RegistrationService interface {
	Register(ctx context.Context, tournamentID, userID int) (*models.Registration, error)
	CheckIn(ctx context.Context, tournamentID, userID int) (*models.Registration, error)
	UndoCheckIn(ctx context.Context, tournamentID, userID int) (*models.Registration, error)
	ListByTournament(ctx context.Context, tournamentID int, statusFilter *models.RegistrationStatus) ([]*models.Registration, error)
	RegistrationWindow(ctx context.Context, tournamentID int) (*AdmissionWindows, error)
}

// AdmissionWindows reports the current registration and check-in windows for
// a tournament, for UI messaging.
type AdmissionWindows struct {
	Registration admission.RegistrationWindow `json:"registration"`
	CheckIn      admission.CheckInWindow      `json:"check_in"`
}

type registrationService struct {
	registrationRepo repositories.RegistrationRepository
	tournamentRepo   repositories.TournamentRepository
	hub              *realtime.Hub
	now              func() time.Time
}

func NewRegistrationService(
	registrationRepo repositories.RegistrationRepository,
	tournamentRepo repositories.TournamentRepository,
	hub *realtime.Hub,
) RegistrationService {
	return &registrationService{
		registrationRepo: registrationRepo,
		tournamentRepo:   tournamentRepo,
		hub:              hub,
		now:              time.Now,
	}
}

func (s *registrationService) Register(ctx context.Context, tournamentID, userID int) (*models.Registration, error) {
	tournament, err := s.getTournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}

	if window := admission.CheckRegistrationOpen(tournament); !window.Open {
		return nil, ErrRegistrationClosed
	}

	reg, err := s.registrationRepo.RegisterAtomic(ctx, tournamentID, userID)
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrRegistrationConflict):
			return nil, ErrRegistrationConflict
		case errors.Is(err, repositories.ErrRegistrationTournamentInvalid):
			return nil, ErrTournamentNotFound
		case errors.Is(err, repositories.ErrRegistrationUserInvalid):
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to register user %d for tournament %d: %w", userID, tournamentID, err)
	}

	s.publish(tournamentID, reg)
	return reg, nil
}

func (s *registrationService) CheckIn(ctx context.Context, tournamentID, userID int) (*models.Registration, error) {
	tournament, err := s.getTournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}

	window := admission.CheckCheckInOpen(tournament, s.now())
	if !window.Open {
		return nil, ErrCheckInClosed
	}

	reg, err := s.findRegistration(ctx, userID, tournamentID)
	if err != nil {
		return nil, err
	}
	switch reg.Status {
	case models.RegistrationStatusRegistered, models.RegistrationStatusConfirmed:
	case models.RegistrationStatusCheckedIn:
		// Idempotent: re-checking-in an already-checked-in player converges.
		return reg, nil
	default:
		return nil, ErrCheckInBadStatus
	}

	if err := s.registrationRepo.CheckIn(ctx, reg.ID, window.Late); err != nil {
		if errors.Is(err, repositories.ErrRegistrationStateConflict) {
			return nil, ErrCheckInBadStatus
		}
		return nil, fmt.Errorf("failed to check in registration %d: %w", reg.ID, err)
	}

	reg.Status = models.RegistrationStatusCheckedIn
	reg.CheckedInLate = window.Late
	now := s.now()
	reg.CheckedInAt = &now

	s.publish(tournamentID, reg)
	return reg, nil
}

func (s *registrationService) UndoCheckIn(ctx context.Context, tournamentID, userID int) (*models.Registration, error) {
	reg, err := s.findRegistration(ctx, userID, tournamentID)
	if err != nil {
		return nil, err
	}

	if err := s.registrationRepo.UndoCheckIn(ctx, reg.ID); err != nil {
		if errors.Is(err, repositories.ErrRegistrationStateConflict) {
			return nil, ErrCheckInBadStatus
		}
		return nil, fmt.Errorf("failed to undo check-in for registration %d: %w", reg.ID, err)
	}

	reg.Status = models.RegistrationStatusRegistered
	reg.CheckedInAt = nil
	reg.CheckedInLate = false

	s.publish(tournamentID, reg)
	return reg, nil
}

func (s *registrationService) ListByTournament(ctx context.Context, tournamentID int, statusFilter *models.RegistrationStatus) ([]*models.Registration, error) {
	registrations, err := s.registrationRepo.ListByTournament(ctx, tournamentID, statusFilter, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list registrations for tournament %d: %w", tournamentID, err)
	}
	return registrations, nil
}

func (s *registrationService) RegistrationWindow(ctx context.Context, tournamentID int) (*AdmissionWindows, error) {
	tournament, err := s.getTournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	return &AdmissionWindows{
		Registration: admission.CheckRegistrationOpen(tournament),
		CheckIn:      admission.CheckCheckInOpen(tournament, s.now()),
	}, nil
}

func (s *registrationService) getTournament(ctx context.Context, tournamentID int) (*models.Tournament, error) {
	tournament, err := s.tournamentRepo.GetByID(ctx, tournamentID)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("failed to load tournament %d: %w", tournamentID, err)
	}
	return tournament, nil
}

func (s *registrationService) findRegistration(ctx context.Context, userID, tournamentID int) (*models.Registration, error) {
	reg, err := s.registrationRepo.FindByUserAndTournament(ctx, userID, tournamentID)
	if err != nil {
		if errors.Is(err, repositories.ErrRegistrationNotFound) {
			return nil, ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("failed to find registration for user %d in tournament %d: %w", userID, tournamentID, err)
	}
	return reg, nil
}

func (s *registrationService) publish(tournamentID int, reg *models.Registration) {
	if s.hub == nil {
		return
	}
	s.hub.BroadcastToRoom("tournament_"+strconv.Itoa(tournamentID), realtime.Message{
		Type:    realtime.EventRegistrationChanged,
		Payload: reg,
	})
}
