package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/openbracket/tournament-engine/models"
)

var (
	ErrMatchNotFound = errors.New("match not found")
	// ErrMatchStateConflict means a guarded status change matched zero rows.
	ErrMatchStateConflict = errors.New("match is not in the expected status")
)

type MatchRepository interface {
	GetByID(ctx context.Context, id int) (*models.Match, error)
	ListByRound(ctx context.Context, roundID int) ([]*models.Match, error)
	// SetActive moves a pending match into play.
	SetActive(ctx context.Context, id int) error
	// SetCompleted records the winner (nil for a draw) and completes the
	// match. Guarded so a finished match cannot be re-finished.
	SetCompleted(ctx context.Context, id int, winnerRegistrationID *int) error
}

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

const matchColumns = `
	id, round_id, table_number, home_registration_id, away_registration_id,
	status, winner_registration_id, pairing_uid, created_at`

func (r *postgresMatchRepository) scanMatch(rowScanner interface {
	Scan(dest ...interface{}) error
}, m *models.Match) error {
	return rowScanner.Scan(
		&m.ID,
		&m.RoundID,
		&m.TableNumber,
		&m.HomeRegistrationID,
		&m.AwayRegistrationID,
		&m.Status,
		&m.WinnerRegistrationID,
		&m.PairingUID,
		&m.CreatedAt,
	)
}

func (r *postgresMatchRepository) GetByID(ctx context.Context, id int) (*models.Match, error) {
	query := fmt.Sprintf(`SELECT %s FROM matches WHERE id = $1`, matchColumns)

	m := &models.Match{}
	err := r.scanMatch(r.db.QueryRowContext(ctx, query, id), m)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to get match %d: %w", id, err)
	}
	return m, nil
}

func (r *postgresMatchRepository) ListByRound(ctx context.Context, roundID int) ([]*models.Match, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM matches
		WHERE round_id = $1
		ORDER BY table_number ASC, id ASC`, matchColumns)

	rows, err := r.db.QueryContext(ctx, query, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches for round %d: %w", roundID, err)
	}
	defer rows.Close()

	matches := make([]*models.Match, 0)
	for rows.Next() {
		var m models.Match
		if err := r.scanMatch(rows, &m); err != nil {
			return nil, fmt.Errorf("failed to scan match row: %w", err)
		}
		matches = append(matches, &m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating match rows: %w", err)
	}
	return matches, nil
}

func (r *postgresMatchRepository) SetActive(ctx context.Context, id int) error {
	query := `UPDATE matches SET status = 'active' WHERE id = $1 AND status = 'pending'`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to activate match %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrMatchStateConflict)
}

func (r *postgresMatchRepository) SetCompleted(ctx context.Context, id int, winnerRegistrationID *int) error {
	query := `
		UPDATE matches SET status = 'completed', winner_registration_id = $1
		WHERE id = $2 AND status IN ('pending', 'active')`
	result, err := r.db.ExecContext(ctx, query, winnerRegistrationID, id)
	if err != nil {
		return fmt.Errorf("failed to complete match %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrMatchStateConflict)
}
