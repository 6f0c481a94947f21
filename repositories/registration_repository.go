package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/openbracket/tournament-engine/models"
)

var (
	ErrRegistrationNotFound = errors.New("registration not found")
	// ErrRegistrationConflict is a duplicate (tournament, user) pair. Never
	// silently deduplicated: the caller must see the rejection.
	ErrRegistrationConflict          = errors.New("user is already registered for this tournament")
	ErrRegistrationUserInvalid       = errors.New("registration user conflict or invalid")
	ErrRegistrationTournamentInvalid = errors.New("registration tournament conflict or invalid")
	// ErrRegistrationStateConflict means a guarded status change matched
	// zero rows: the registration left the expected status concurrently.
	ErrRegistrationStateConflict = errors.New("registration is not in the expected status")
)

type RegistrationRepository interface {
	// RegisterAtomic performs the capacity check and the insert as one
	// transaction, locking the tournament row so two concurrent registrants
	// cannot both read the same occupancy. Overflow places the row on the
	// waitlist; it is never an error.
	RegisterAtomic(ctx context.Context, tournamentID, userID int) (*models.Registration, error)
	FindByID(ctx context.Context, id int) (*models.Registration, error)
	FindByUserAndTournament(ctx context.Context, userID, tournamentID int) (*models.Registration, error)
	ListByTournament(ctx context.Context, tournamentID int, statusFilter *models.RegistrationStatus, includeUser bool) ([]*models.Registration, error)
	// CheckIn advances registered/confirmed to checked_in, recording whether
	// the late path admitted.
	CheckIn(ctx context.Context, id int, late bool) error
	// UndoCheckIn regresses checked_in to registered. Explicit staff
	// operation, guarded on the current status.
	UndoCheckIn(ctx context.Context, id int) error
	UpdateStatus(ctx context.Context, id int, from, to models.RegistrationStatus) error
}

type postgresRegistrationRepository struct {
	db *sql.DB
}

func NewPostgresRegistrationRepository(db *sql.DB) RegistrationRepository {
	return &postgresRegistrationRepository{db: db}
}

func (r *postgresRegistrationRepository) RegisterAtomic(ctx context.Context, tournamentID, userID int) (*models.Registration, error) {
	reg := &models.Registration{
		TournamentID: tournamentID,
		UserID:       userID,
		Status:       models.RegistrationStatusRegistered,
	}

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		// The row lock serializes concurrent registrants for one tournament.
		var maxParticipants *int
		err := tx.QueryRowContext(ctx,
			`SELECT max_participants FROM tournaments WHERE id = $1 FOR UPDATE`,
			tournamentID,
		).Scan(&maxParticipants)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrRegistrationTournamentInvalid
			}
			return fmt.Errorf("failed to lock tournament %d: %w", tournamentID, err)
		}

		if maxParticipants != nil {
			// Only rows already admitted as registered count toward the cap;
			// waitlist and confirmed do not.
			var registered int
			err := tx.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM registrations WHERE tournament_id = $1 AND status = 'registered'`,
				tournamentID,
			).Scan(&registered)
			if err != nil {
				return fmt.Errorf("failed to count registrations for tournament %d: %w", tournamentID, err)
			}
			if registered >= *maxParticipants {
				reg.Status = models.RegistrationStatusWaitlist
			}
		}

		insert := `
			INSERT INTO registrations (tournament_id, user_id, status)
			VALUES ($1, $2, $3)
			RETURNING id, created_at`
		err = tx.QueryRowContext(ctx, insert, tournamentID, userID, reg.Status).
			Scan(&reg.ID, &reg.CreatedAt)
		if err != nil {
			return r.handleRegistrationError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reg, nil
}

func (r *postgresRegistrationRepository) scanRegistration(rowScanner interface {
	Scan(dest ...interface{}) error
}, reg *models.Registration) error {
	return rowScanner.Scan(
		&reg.ID,
		&reg.TournamentID,
		&reg.UserID,
		&reg.Status,
		&reg.CheckedInAt,
		&reg.CheckedInLate,
		&reg.CreatedAt,
	)
}

func (r *postgresRegistrationRepository) findOne(ctx context.Context, query string, args ...interface{}) (*models.Registration, error) {
	reg := &models.Registration{}
	err := r.scanRegistration(r.db.QueryRowContext(ctx, query, args...), reg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("failed to find registration: %w", err)
	}
	return reg, nil
}

func (r *postgresRegistrationRepository) FindByID(ctx context.Context, id int) (*models.Registration, error) {
	query := `
		SELECT id, tournament_id, user_id, status, checked_in_at, checked_in_late, created_at
		FROM registrations WHERE id = $1`
	return r.findOne(ctx, query, id)
}

func (r *postgresRegistrationRepository) FindByUserAndTournament(ctx context.Context, userID, tournamentID int) (*models.Registration, error) {
	query := `
		SELECT id, tournament_id, user_id, status, checked_in_at, checked_in_late, created_at
		FROM registrations WHERE user_id = $1 AND tournament_id = $2`
	return r.findOne(ctx, query, userID, tournamentID)
}

func (r *postgresRegistrationRepository) ListByTournament(ctx context.Context, tournamentID int, statusFilter *models.RegistrationStatus, includeUser bool) ([]*models.Registration, error) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString(`
		SELECT reg.id, reg.tournament_id, reg.user_id, reg.status, reg.checked_in_at, reg.checked_in_late, reg.created_at`)
	if includeUser {
		queryBuilder.WriteString(`,
		COALESCE(u.id, 0), COALESCE(u.first_name, ''), COALESCE(u.last_name, ''), u.nickname`)
	}
	queryBuilder.WriteString(`
		FROM registrations reg`)
	if includeUser {
		queryBuilder.WriteString(`
		LEFT JOIN users u ON reg.user_id = u.id`)
	}
	queryBuilder.WriteString(` WHERE reg.tournament_id = $1`)

	args := []interface{}{tournamentID}
	if statusFilter != nil {
		queryBuilder.WriteString(` AND reg.status = $2`)
		args = append(args, *statusFilter)
	}
	queryBuilder.WriteString(` ORDER BY reg.created_at ASC`)

	rows, err := r.db.QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list registrations by tournament: %w", err)
	}
	defer rows.Close()

	registrations := make([]*models.Registration, 0)
	for rows.Next() {
		var reg models.Registration
		var u models.User
		scanDest := []interface{}{&reg.ID, &reg.TournamentID, &reg.UserID, &reg.Status, &reg.CheckedInAt, &reg.CheckedInLate, &reg.CreatedAt}
		if includeUser {
			scanDest = append(scanDest, &u.ID, &u.FirstName, &u.LastName, &u.Nickname)
		}
		if err := rows.Scan(scanDest...); err != nil {
			return nil, fmt.Errorf("failed to scan registration row: %w", err)
		}
		if includeUser && u.ID > 0 {
			reg.User = &u
		}
		registrations = append(registrations, &reg)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating registration rows: %w", err)
	}
	return registrations, nil
}

func (r *postgresRegistrationRepository) CheckIn(ctx context.Context, id int, late bool) error {
	query := `
		UPDATE registrations
		SET status = 'checked_in', checked_in_at = NOW(), checked_in_late = $1
		WHERE id = $2 AND status IN ('registered', 'confirmed')`

	result, err := r.db.ExecContext(ctx, query, late, id)
	if err != nil {
		return fmt.Errorf("failed to check in registration %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrRegistrationStateConflict)
}

func (r *postgresRegistrationRepository) UndoCheckIn(ctx context.Context, id int) error {
	query := `
		UPDATE registrations
		SET status = 'registered', checked_in_at = NULL, checked_in_late = FALSE
		WHERE id = $1 AND status = 'checked_in'`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to undo check-in for registration %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrRegistrationStateConflict)
}

func (r *postgresRegistrationRepository) UpdateStatus(ctx context.Context, id int, from, to models.RegistrationStatus) error {
	query := `UPDATE registrations SET status = $1 WHERE id = $2 AND status = $3`
	result, err := r.db.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return fmt.Errorf("failed to update registration %d status: %w", id, err)
	}
	return checkAffectedRows(result, ErrRegistrationStateConflict)
}

func (r *postgresRegistrationRepository) handleRegistrationError(err error) error {
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Code {
		case "23505":
			if pqErr.Constraint == "registrations_tournament_id_user_id_key" {
				return ErrRegistrationConflict
			}
		case "23503":
			switch pqErr.Constraint {
			case "registrations_user_id_fkey":
				return ErrRegistrationUserInvalid
			case "registrations_tournament_id_fkey":
				return ErrRegistrationTournamentInvalid
			}
		}
	}
	return fmt.Errorf("failed to create registration: %w", err)
}
