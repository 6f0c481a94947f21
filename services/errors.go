package services

import "errors"

// Shared errors used across services and the HTTP mapping layer.
var (
	ErrNotFound = errors.New("requested resource not found")

	// Validation / closed-window errors. Reported to the caller as
	// actionable messages, never retried automatically.
	ErrValidationFailed                  = errors.New("validation failed")
	ErrPasswordTooShort                  = errors.New("password is too short")
	ErrRegistrationClosed                = errors.New("tournament registration is not open")
	ErrCheckInClosed                     = errors.New("check-in window is not open")
	ErrCheckInBadStatus                  = errors.New("registration status does not allow check-in")
	ErrTournamentNameRequired            = errors.New("tournament name is required")
	ErrTournamentInvalidDateRange        = errors.New("tournament end date must be after start date")
	ErrTournamentInvalidCapacity         = errors.New("tournament max participants must be positive")
	ErrTournamentInvalidStatus           = errors.New("invalid tournament status provided")
	ErrTournamentInvalidStatusTransition = errors.New("invalid tournament status transition")
	ErrPhaseNameRequired                 = errors.New("phase name is required")
	ErrPhaseInvalidFormat                = errors.New("invalid phase format provided")
	ErrLogoStorageUnavailable            = errors.New("logo storage is not configured")

	// Conflict errors. Surfaced distinctly from validation so the caller
	// reloads and re-derives instead of blindly retrying.
	ErrRegistrationConflict = errors.New("user is already registered for this tournament")
	ErrRoundAlreadyActive   = errors.New("an active round already exists for this phase")
	ErrRoundPendingResume   = errors.New("a prepared round is awaiting confirmation or cancellation")
	ErrRoundNotPending      = errors.New("round is not awaiting confirmation")
	ErrRoundNotActive       = errors.New("round is not active")
	ErrRoundNotFinished     = errors.New("round still has unfinished matches")
	ErrRoundConflict        = errors.New("round was modified by another session")
	ErrPhaseRoundsExhausted = errors.New("all planned rounds for this phase have been played")
	ErrMatchConflict        = errors.New("match was modified by another session")

	// Authentication and authorization errors.
	ErrAuthInvalidCredentials = errors.New("invalid email or password")
	ErrAuthEmailTaken         = errors.New("email is already taken")
	ErrForbiddenOperation     = errors.New("operation not allowed for the current user")

	// Entity-specific not-found errors (more context than ErrNotFound).
	ErrUserNotFound         = errors.New("user not found")
	ErrTournamentNotFound   = errors.New("tournament not found")
	ErrPhaseNotFound        = errors.New("phase not found")
	ErrRoundNotFound        = errors.New("round not found")
	ErrRegistrationNotFound = errors.New("registration not found")
	ErrMatchNotFound        = errors.New("match not found")
)
