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
	ErrPhaseNotFound          = errors.New("phase not found")
	ErrPhaseOrdinalConflict   = errors.New("phase ordinal already used for this tournament")
	ErrPhaseTournamentInvalid = errors.New("phase tournament conflict or invalid")
)

type PhaseRepository interface {
	Create(ctx context.Context, p *models.Phase) error
	GetByID(ctx context.Context, id int) (*models.Phase, error)
	ListByTournament(ctx context.Context, tournamentID int) ([]*models.Phase, error)
}

type postgresPhaseRepository struct {
	db *sql.DB
}

func NewPostgresPhaseRepository(db *sql.DB) PhaseRepository {
	return &postgresPhaseRepository{db: db}
}

func (r *postgresPhaseRepository) Create(ctx context.Context, p *models.Phase) error {
	query := `
		INSERT INTO phases (tournament_id, name, ordinal, format, planned_rounds)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		p.TournamentID,
		p.Name,
		p.Ordinal,
		p.Format,
		p.PlannedRounds,
	).Scan(&p.ID, &p.CreatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			switch pqErr.Code {
			case "23505":
				if pqErr.Constraint == "phases_tournament_id_ordinal_key" {
					return ErrPhaseOrdinalConflict
				}
			case "23503":
				if pqErr.Constraint == "phases_tournament_id_fkey" {
					return ErrPhaseTournamentInvalid
				}
			}
		}
		return fmt.Errorf("failed to create phase: %w", err)
	}
	return nil
}

func (r *postgresPhaseRepository) GetByID(ctx context.Context, id int) (*models.Phase, error) {
	query := `
		SELECT id, tournament_id, name, ordinal, format, planned_rounds, created_at
		FROM phases WHERE id = $1`

	p := &models.Phase{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID,
		&p.TournamentID,
		&p.Name,
		&p.Ordinal,
		&p.Format,
		&p.PlannedRounds,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPhaseNotFound
		}
		return nil, fmt.Errorf("failed to get phase %d: %w", id, err)
	}
	return p, nil
}

func (r *postgresPhaseRepository) ListByTournament(ctx context.Context, tournamentID int) ([]*models.Phase, error) {
	query := `
		SELECT id, tournament_id, name, ordinal, format, planned_rounds, created_at
		FROM phases WHERE tournament_id = $1
		ORDER BY ordinal ASC`

	rows, err := r.db.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list phases for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	phases := make([]*models.Phase, 0)
	for rows.Next() {
		var p models.Phase
		if err := rows.Scan(&p.ID, &p.TournamentID, &p.Name, &p.Ordinal, &p.Format, &p.PlannedRounds, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan phase row: %w", err)
		}
		phases = append(phases, &p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating phase rows: %w", err)
	}
	return phases, nil
}
