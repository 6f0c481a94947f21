package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/openbracket/tournament-engine/models"
)

var (
	ErrRoundNotFound = errors.New("round not found")
	// ErrRoundStateConflict means a guarded transition matched zero rows:
	// the round is no longer in the status the caller saw.
	ErrRoundStateConflict  = errors.New("round is not in the expected status")
	ErrRoundNumberConflict = errors.New("round number already exists for this phase")
	ErrRoundPhaseInvalid   = errors.New("round phase conflict or invalid")
)

type RoundRepository interface {
	GetByID(ctx context.Context, id int) (*models.Round, error)
	ListByPhase(ctx context.Context, phaseID int) ([]*models.Round, error)
	// CreateWithMatches persists a prepared round and its generated matches
	// in one transaction: either the whole proposal lands or none of it.
	CreateWithMatches(ctx context.Context, round *models.Round, matches []*models.Match) error
	// DeleteWithMatches cancels a prepared round. Guarded on pending status.
	DeleteWithMatches(ctx context.Context, roundID int) error
	// Start commits a pending round to active and advances the owning
	// tournament's current_round in the same transaction.
	Start(ctx context.Context, roundID int) error
	// Complete moves an active round to completed and runs post (standings
	// recalculation) inside the same transaction.
	Complete(ctx context.Context, roundID int, post func(ctx context.Context, exec SQLExecutor) error) error
}

type postgresRoundRepository struct {
	db *sql.DB
}

func NewPostgresRoundRepository(db *sql.DB) RoundRepository {
	return &postgresRoundRepository{db: db}
}

// roundWithCountsQuery aggregates match counts alongside each round row so
// callers always see fresh counts with the round itself.
const roundWithCountsQuery = `
	SELECT r.id, r.phase_id, r.round_number, r.status, r.started_at, r.completed_at, r.created_at,
	       COUNT(m.id)                                          AS match_count,
	       COUNT(m.id) FILTER (WHERE m.status = 'completed')    AS completed_count,
	       COUNT(m.id) FILTER (WHERE m.status = 'active')       AS in_progress_count,
	       COUNT(m.id) FILTER (WHERE m.status = 'pending')      AS pending_count
	FROM rounds r
	LEFT JOIN matches m ON m.round_id = r.id`

func (r *postgresRoundRepository) scanRound(rowScanner interface {
	Scan(dest ...interface{}) error
}, round *models.Round) error {
	return rowScanner.Scan(
		&round.ID,
		&round.PhaseID,
		&round.RoundNumber,
		&round.Status,
		&round.StartedAt,
		&round.CompletedAt,
		&round.CreatedAt,
		&round.MatchCount,
		&round.CompletedCount,
		&round.InProgressCount,
		&round.PendingCount,
	)
}

func (r *postgresRoundRepository) GetByID(ctx context.Context, id int) (*models.Round, error) {
	query := roundWithCountsQuery + `
	WHERE r.id = $1
	GROUP BY r.id`

	round := &models.Round{}
	err := r.scanRound(r.db.QueryRowContext(ctx, query, id), round)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoundNotFound
		}
		return nil, fmt.Errorf("failed to get round %d: %w", id, err)
	}
	return round, nil
}

func (r *postgresRoundRepository) ListByPhase(ctx context.Context, phaseID int) ([]*models.Round, error) {
	query := roundWithCountsQuery + `
	WHERE r.phase_id = $1
	GROUP BY r.id
	ORDER BY r.round_number ASC`

	rows, err := r.db.QueryContext(ctx, query, phaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rounds for phase %d: %w", phaseID, err)
	}
	defer rows.Close()

	rounds := make([]*models.Round, 0)
	for rows.Next() {
		var round models.Round
		if err := r.scanRound(rows, &round); err != nil {
			return nil, fmt.Errorf("failed to scan round row: %w", err)
		}
		rounds = append(rounds, &round)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating round rows: %w", err)
	}
	return rounds, nil
}

func (r *postgresRoundRepository) CreateWithMatches(ctx context.Context, round *models.Round, matches []*models.Match) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		insertRound := `
			INSERT INTO rounds (phase_id, round_number, status)
			VALUES ($1, $2, 'pending')
			RETURNING id, status, created_at`

		err := tx.QueryRowContext(ctx, insertRound, round.PhaseID, round.RoundNumber).
			Scan(&round.ID, &round.Status, &round.CreatedAt)
		if err != nil {
			return r.handleRoundError(err)
		}

		insertMatch := `
			INSERT INTO matches
				(round_id, table_number, home_registration_id, away_registration_id, status, winner_registration_id, pairing_uid)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id, created_at`

		for _, m := range matches {
			m.RoundID = round.ID
			err := tx.QueryRowContext(ctx, insertMatch,
				m.RoundID,
				m.TableNumber,
				m.HomeRegistrationID,
				m.AwayRegistrationID,
				m.Status,
				m.WinnerRegistrationID,
				m.PairingUID,
			).Scan(&m.ID, &m.CreatedAt)
			if err != nil {
				return fmt.Errorf("failed to create match for round %d: %w", round.ID, err)
			}
		}

		round.MatchCount = len(matches)
		round.PendingCount = len(matches)
		return nil
	})
}

func (r *postgresRoundRepository) DeleteWithMatches(ctx context.Context, roundID int) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM matches WHERE round_id = $1`, roundID); err != nil {
			return fmt.Errorf("failed to delete matches for round %d: %w", roundID, err)
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM rounds WHERE id = $1 AND status = 'pending'`, roundID)
		if err != nil {
			return fmt.Errorf("failed to delete round %d: %w", roundID, err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check affected rows: %w", err)
		}
		if rowsAffected == 0 {
			// Either missing or already started; the caller re-reads to tell
			// which, the transaction rolls back the match deletion.
			return ErrRoundStateConflict
		}
		return nil
	})
}

func (r *postgresRoundRepository) Start(ctx context.Context, roundID int) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		update := `
			UPDATE rounds SET status = 'active', started_at = NOW()
			WHERE id = $1 AND status = 'pending'
			RETURNING phase_id, round_number`

		var phaseID, roundNumber int
		err := tx.QueryRowContext(ctx, update, roundID).Scan(&phaseID, &roundNumber)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrRoundStateConflict
			}
			return fmt.Errorf("failed to start round %d: %w", roundID, err)
		}

		bump := `
			UPDATE tournaments SET current_round = $1
			WHERE id = (SELECT tournament_id FROM phases WHERE id = $2)`
		if _, err := tx.ExecContext(ctx, bump, roundNumber, phaseID); err != nil {
			return fmt.Errorf("failed to advance current round for phase %d: %w", phaseID, err)
		}
		return nil
	})
}

func (r *postgresRoundRepository) Complete(ctx context.Context, roundID int, post func(ctx context.Context, exec SQLExecutor) error) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		update := `
			UPDATE rounds SET status = 'completed', completed_at = NOW()
			WHERE id = $1 AND status = 'active'`

		result, err := tx.ExecContext(ctx, update, roundID)
		if err != nil {
			return fmt.Errorf("failed to complete round %d: %w", roundID, err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check affected rows: %w", err)
		}
		if rowsAffected == 0 {
			return ErrRoundStateConflict
		}

		if post != nil {
			if err := post(ctx, tx); err != nil {
				return fmt.Errorf("round %d completion hook failed: %w", roundID, err)
			}
		}
		return nil
	})
}

func (r *postgresRoundRepository) handleRoundError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Constraint {
		case "rounds_phase_id_round_number_key":
			return ErrRoundNumberConflict
		case "rounds_phase_id_fkey":
			return ErrRoundPhaseInvalid
		}
	}
	return fmt.Errorf("failed to create round: %w", err)
}
