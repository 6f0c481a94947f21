package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/openbracket/tournament-engine/models"
	"github.com/openbracket/tournament-engine/repositories"
	"github.com/openbracket/tournament-engine/storage"
)

type CreateTournamentInput struct {
	Name                  string     `json:"name"`
	Description           *string    `json:"description"`
	MaxParticipants       *int       `json:"max_participants"`
	AllowLateRegistration bool       `json:"allow_late_registration"`
	CheckInWindowMinutes  int        `json:"check_in_window_minutes"`
	LateCheckInMaxRound   *int       `json:"late_check_in_max_round"`
	StartDate             time.Time  `json:"start_date"`
	EndDate               *time.Time `json:"end_date"`
	Location              *string    `json:"location"`
}

type AddPhaseInput struct {
	Name          string             `json:"name"`
	Format        models.PhaseFormat `json:"format"`
	PlannedRounds *int               `json:"planned_rounds"`
}

// TournamentService owns organizer-side tournament management. Status moves
// monotonically (draft -> upcoming -> active -> completed, or cancelled from
// any non-terminal state); the round/admission core never writes status, it
// only reads it.
type TournamentService interface {
	Create(ctx context.Context, organizerID int, input CreateTournamentInput) (*models.Tournament, error)
	GetByID(ctx context.Context, id int) (*models.Tournament, error)
	List(ctx context.Context, filter repositories.ListTournamentsFilter) ([]*models.Tournament, error)
	UpdateDetails(ctx context.Context, id, actorID int, input CreateTournamentInput) (*models.Tournament, error)
	UpdateStatus(ctx context.Context, id, actorID int, status models.TournamentStatus) (*models.Tournament, error)
	AddPhase(ctx context.Context, tournamentID, actorID int, input AddPhaseInput) (*models.Phase, error)
	ListPhases(ctx context.Context, tournamentID int) ([]*models.Phase, error)
	UploadLogo(ctx context.Context, id, actorID int, contentType string, file io.Reader) (*models.Tournament, error)
	AutoUpdateTournamentStatusesByDates(ctx context.Context) error
}

var allowedStatusTransitions = map[models.TournamentStatus][]models.TournamentStatus{
	models.StatusDraft:    {models.StatusUpcoming, models.StatusCancelled},
	models.StatusUpcoming: {models.StatusActive, models.StatusCancelled},
	models.StatusActive:   {models.StatusCompleted, models.StatusCancelled},
}

type tournamentService struct {
	tournamentRepo repositories.TournamentRepository
	phaseRepo      repositories.PhaseRepository
	uploader       storage.FileUploader
	logger         *slog.Logger
}

func NewTournamentService(
	tournamentRepo repositories.TournamentRepository,
	phaseRepo repositories.PhaseRepository,
	uploader storage.FileUploader,
	logger *slog.Logger,
) TournamentService {
	return &tournamentService{
		tournamentRepo: tournamentRepo,
		phaseRepo:      phaseRepo,
		uploader:       uploader,
		logger:         logger,
	}
}

func validateTournamentInput(input CreateTournamentInput) error {
	if input.Name == "" {
		return ErrTournamentNameRequired
	}
	if input.MaxParticipants != nil && *input.MaxParticipants <= 0 {
		return ErrTournamentInvalidCapacity
	}
	if input.CheckInWindowMinutes < 0 {
		return ErrValidationFailed
	}
	if input.EndDate != nil && !input.EndDate.After(input.StartDate) {
		return ErrTournamentInvalidDateRange
	}
	return nil
}

func (s *tournamentService) Create(ctx context.Context, organizerID int, input CreateTournamentInput) (*models.Tournament, error) {
	if err := validateTournamentInput(input); err != nil {
		return nil, err
	}

	t := &models.Tournament{
		Name:                  input.Name,
		Description:           input.Description,
		OrganizerID:           organizerID,
		Status:                models.StatusDraft,
		MaxParticipants:       input.MaxParticipants,
		AllowLateRegistration: input.AllowLateRegistration,
		CheckInWindowMinutes:  input.CheckInWindowMinutes,
		LateCheckInMaxRound:   input.LateCheckInMaxRound,
		StartDate:             input.StartDate,
		EndDate:               input.EndDate,
		Location:              input.Location,
	}
	if err := s.tournamentRepo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to create tournament: %w", err)
	}
	s.attachLogoURL(t)
	return t, nil
}

func (s *tournamentService) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	t, err := s.tournamentRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("failed to get tournament %d: %w", id, err)
	}
	s.attachLogoURL(t)
	return t, nil
}

func (s *tournamentService) List(ctx context.Context, filter repositories.ListTournamentsFilter) ([]*models.Tournament, error) {
	tournaments, err := s.tournamentRepo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list tournaments: %w", err)
	}
	for _, t := range tournaments {
		s.attachLogoURL(t)
	}
	return tournaments, nil
}

func (s *tournamentService) UpdateDetails(ctx context.Context, id, actorID int, input CreateTournamentInput) (*models.Tournament, error) {
	t, err := s.requireOrganizer(ctx, id, actorID)
	if err != nil {
		return nil, err
	}
	if err := validateTournamentInput(input); err != nil {
		return nil, err
	}

	t.Name = input.Name
	t.Description = input.Description
	t.MaxParticipants = input.MaxParticipants
	t.AllowLateRegistration = input.AllowLateRegistration
	t.CheckInWindowMinutes = input.CheckInWindowMinutes
	t.LateCheckInMaxRound = input.LateCheckInMaxRound
	t.StartDate = input.StartDate
	t.EndDate = input.EndDate
	t.Location = input.Location

	if err := s.tournamentRepo.UpdateDetails(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to update tournament %d: %w", id, err)
	}
	s.attachLogoURL(t)
	return t, nil
}

func (s *tournamentService) UpdateStatus(ctx context.Context, id, actorID int, status models.TournamentStatus) (*models.Tournament, error) {
	t, err := s.requireOrganizer(ctx, id, actorID)
	if err != nil {
		return nil, err
	}

	switch status {
	case models.StatusDraft, models.StatusUpcoming, models.StatusActive, models.StatusCompleted, models.StatusCancelled:
	default:
		return nil, ErrTournamentInvalidStatus
	}

	allowed := false
	for _, next := range allowedStatusTransitions[t.Status] {
		if next == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, ErrTournamentInvalidStatusTransition
	}

	if err := s.tournamentRepo.UpdateStatus(ctx, id, t.Status, status); err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			// Guarded update missed: another session moved the status first.
			return nil, ErrTournamentInvalidStatusTransition
		}
		return nil, fmt.Errorf("failed to update tournament %d status: %w", id, err)
	}

	t.Status = status
	s.attachLogoURL(t)
	return t, nil
}

func (s *tournamentService) AddPhase(ctx context.Context, tournamentID, actorID int, input AddPhaseInput) (*models.Phase, error) {
	t, err := s.requireOrganizer(ctx, tournamentID, actorID)
	if err != nil {
		return nil, err
	}
	if input.Name == "" {
		return nil, ErrPhaseNameRequired
	}
	switch input.Format {
	case models.PhaseFormatSwiss, models.PhaseFormatSingleElimination:
	default:
		return nil, ErrPhaseInvalidFormat
	}

	existing, err := s.phaseRepo.ListByTournament(ctx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list phases for tournament %d: %w", tournamentID, err)
	}

	phase := &models.Phase{
		TournamentID:  t.ID,
		Name:          input.Name,
		Ordinal:       len(existing) + 1,
		Format:        input.Format,
		PlannedRounds: input.PlannedRounds,
	}
	if err := s.phaseRepo.Create(ctx, phase); err != nil {
		return nil, fmt.Errorf("failed to create phase for tournament %d: %w", tournamentID, err)
	}
	return phase, nil
}

func (s *tournamentService) ListPhases(ctx context.Context, tournamentID int) ([]*models.Phase, error) {
	phases, err := s.phaseRepo.ListByTournament(ctx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list phases for tournament %d: %w", tournamentID, err)
	}
	return phases, nil
}

func (s *tournamentService) UploadLogo(ctx context.Context, id, actorID int, contentType string, file io.Reader) (*models.Tournament, error) {
	if s.uploader == nil {
		return nil, ErrLogoStorageUnavailable
	}
	t, err := s.requireOrganizer(ctx, id, actorID)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("tournaments/%d/logo", id)
	result, err := s.uploader.Upload(ctx, key, contentType, file)
	if err != nil {
		return nil, fmt.Errorf("failed to upload logo for tournament %d: %w", id, err)
	}
	if err := s.tournamentRepo.UpdateLogoKey(ctx, id, &result.Key); err != nil {
		return nil, fmt.Errorf("failed to save logo key for tournament %d: %w", id, err)
	}

	t.LogoKey = &result.Key
	s.attachLogoURL(t)
	return t, nil
}

// AutoUpdateTournamentStatusesByDates is the scheduler entry point: it flips
// upcoming tournaments past their start date to active, and active
// tournaments past their end date to completed.
func (s *tournamentService) AutoUpdateTournamentStatusesByDates(ctx context.Context) error {
	due, err := s.tournamentRepo.ListDueForStatusUpdate(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tournaments due for status update: %w", err)
	}

	for _, t := range due {
		var next models.TournamentStatus
		switch t.Status {
		case models.StatusUpcoming:
			next = models.StatusActive
		case models.StatusActive:
			next = models.StatusCompleted
		default:
			continue
		}

		if err := s.tournamentRepo.UpdateStatus(ctx, t.ID, t.Status, next); err != nil {
			// A concurrent organizer action may have moved the status; skip
			// and let the next tick re-evaluate.
			s.logger.Warn("scheduler status update skipped",
				slog.Int("tournament_id", t.ID),
				slog.String("from", string(t.Status)),
				slog.String("to", string(next)),
				slog.Any("error", err))
			continue
		}
		s.logger.Info("tournament status advanced by scheduler",
			slog.Int("tournament_id", t.ID),
			slog.String("from", string(t.Status)),
			slog.String("to", string(next)))
	}
	return nil
}

func (s *tournamentService) requireOrganizer(ctx context.Context, tournamentID, actorID int) (*models.Tournament, error) {
	t, err := s.GetByID(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if t.OrganizerID != actorID {
		return nil, ErrForbiddenOperation
	}
	return t, nil
}

func (s *tournamentService) attachLogoURL(t *models.Tournament) {
	if t == nil || t.LogoKey == nil || s.uploader == nil {
		return
	}
	url := s.uploader.GetPublicURL(*t.LogoKey)
	if url != "" {
		t.LogoURL = &url
	}
}
