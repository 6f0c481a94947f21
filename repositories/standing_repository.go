package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/openbracket/tournament-engine/models"
)

type StandingRepository interface {
	ListByPhase(ctx context.Context, phaseID int) ([]*models.Standing, error)
	// Rebuild recomputes the phase's standings from completed matches of
	// completed rounds. Runs on the caller's executor so it can share a
	// round-completion transaction.
	Rebuild(ctx context.Context, exec SQLExecutor, phaseID int) error
}

type postgresStandingRepository struct {
	db *sql.DB
}

func NewPostgresStandingRepository(db *sql.DB) StandingRepository {
	return &postgresStandingRepository{db: db}
}

func (r *postgresStandingRepository) ListByPhase(ctx context.Context, phaseID int) ([]*models.Standing, error) {
	query := `
		SELECT id, phase_id, registration_id, wins, losses, byes, points, updated_at
		FROM standings
		WHERE phase_id = $1
		ORDER BY points DESC, wins DESC, registration_id ASC`

	rows, err := r.db.QueryContext(ctx, query, phaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list standings for phase %d: %w", phaseID, err)
	}
	defer rows.Close()

	standings := make([]*models.Standing, 0)
	for rows.Next() {
		var s models.Standing
		if err := rows.Scan(&s.ID, &s.PhaseID, &s.RegistrationID, &s.Wins, &s.Losses, &s.Byes, &s.Points, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan standing row: %w", err)
		}
		standings = append(standings, &s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating standing rows: %w", err)
	}
	return standings, nil
}

func (r *postgresStandingRepository) Rebuild(ctx context.Context, exec SQLExecutor, phaseID int) error {
	if _, err := exec.ExecContext(ctx, `DELETE FROM standings WHERE phase_id = $1`, phaseID); err != nil {
		return fmt.Errorf("failed to clear standings for phase %d: %w", phaseID, err)
	}

	// A bye counts as a win worth the same points. Three points per win,
	// zero per loss.
	query := `
		INSERT INTO standings (phase_id, registration_id, wins, losses, byes, points, updated_at)
		SELECT $1,
		       participant.registration_id,
		       COUNT(*) FILTER (WHERE m.winner_registration_id = participant.registration_id AND m.away_registration_id IS NOT NULL),
		       COUNT(*) FILTER (WHERE m.winner_registration_id IS DISTINCT FROM participant.registration_id AND m.winner_registration_id IS NOT NULL),
		       COUNT(*) FILTER (WHERE m.away_registration_id IS NULL),
		       COUNT(*) FILTER (WHERE m.winner_registration_id = participant.registration_id OR m.away_registration_id IS NULL) * 3,
		       NOW()
		FROM matches m
		JOIN rounds r ON r.id = m.round_id
		CROSS JOIN LATERAL (
			VALUES (m.home_registration_id), (m.away_registration_id)
		) AS participant(registration_id)
		WHERE r.phase_id = $1
		  AND r.status = 'completed'
		  AND m.status = 'completed'
		  AND participant.registration_id IS NOT NULL
		GROUP BY participant.registration_id`

	if _, err := exec.ExecContext(ctx, query, phaseID); err != nil {
		return fmt.Errorf("failed to rebuild standings for phase %d: %w", phaseID, err)
	}
	return nil
}
