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
	ErrTournamentNotFound     = errors.New("tournament not found")
	ErrTournamentNameConflict = errors.New("tournament name already exists")
)

type ListTournamentsFilter struct {
	OrganizerID *int
	Status      *models.TournamentStatus
	Limit       int
	Offset      int
}

type TournamentRepository interface {
	Create(ctx context.Context, t *models.Tournament) error
	GetByID(ctx context.Context, id int) (*models.Tournament, error)
	List(ctx context.Context, filter ListTournamentsFilter) ([]*models.Tournament, error)
	UpdateDetails(ctx context.Context, t *models.Tournament) error
	UpdateStatus(ctx context.Context, id int, from, to models.TournamentStatus) error
	UpdateCurrentRound(ctx context.Context, exec SQLExecutor, id int, roundNumber int) error
	UpdateLogoKey(ctx context.Context, id int, logoKey *string) error
	ListDueForStatusUpdate(ctx context.Context) ([]*models.Tournament, error)
}

type postgresTournamentRepository struct {
	db *sql.DB
}

func NewPostgresTournamentRepository(db *sql.DB) TournamentRepository {
	return &postgresTournamentRepository{db: db}
}

const tournamentColumns = `
	id, name, description, organizer_id, status, max_participants,
	allow_late_registration, check_in_window_minutes, late_check_in_max_round,
	current_round, start_date, end_date, location, created_at, logo_key`

func (r *postgresTournamentRepository) scanTournament(rowScanner interface {
	Scan(dest ...interface{}) error
}, t *models.Tournament) error {
	return rowScanner.Scan(
		&t.ID,
		&t.Name,
		&t.Description,
		&t.OrganizerID,
		&t.Status,
		&t.MaxParticipants,
		&t.AllowLateRegistration,
		&t.CheckInWindowMinutes,
		&t.LateCheckInMaxRound,
		&t.CurrentRound,
		&t.StartDate,
		&t.EndDate,
		&t.Location,
		&t.CreatedAt,
		&t.LogoKey,
	)
}

func (r *postgresTournamentRepository) Create(ctx context.Context, t *models.Tournament) error {
	query := `
		INSERT INTO tournaments
			(name, description, organizer_id, status, max_participants,
			 allow_late_registration, check_in_window_minutes, late_check_in_max_round,
			 start_date, end_date, location)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		t.Name,
		t.Description,
		t.OrganizerID,
		t.Status,
		t.MaxParticipants,
		t.AllowLateRegistration,
		t.CheckInWindowMinutes,
		t.LateCheckInMaxRound,
		t.StartDate,
		t.EndDate,
		t.Location,
	).Scan(&t.ID, &t.CreatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			if pqErr.Constraint == "tournaments_name_key" {
				return ErrTournamentNameConflict
			}
		}
		return fmt.Errorf("failed to create tournament: %w", err)
	}
	return nil
}

func (r *postgresTournamentRepository) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	query := fmt.Sprintf(`SELECT %s FROM tournaments WHERE id = $1`, tournamentColumns)

	t := &models.Tournament{}
	err := r.scanTournament(r.db.QueryRowContext(ctx, query, id), t)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("failed to get tournament %d: %w", id, err)
	}
	return t, nil
}

func (r *postgresTournamentRepository) List(ctx context.Context, filter ListTournamentsFilter) ([]*models.Tournament, error) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString(fmt.Sprintf(`SELECT %s FROM tournaments WHERE 1=1`, tournamentColumns))

	args := make([]interface{}, 0, 4)
	argCounter := 1

	if filter.OrganizerID != nil {
		queryBuilder.WriteString(fmt.Sprintf(" AND organizer_id = $%d", argCounter))
		args = append(args, *filter.OrganizerID)
		argCounter++
	}
	if filter.Status != nil {
		queryBuilder.WriteString(fmt.Sprintf(" AND status = $%d", argCounter))
		args = append(args, *filter.Status)
		argCounter++
	}

	queryBuilder.WriteString(" ORDER BY start_date ASC, id ASC")

	if filter.Limit > 0 {
		queryBuilder.WriteString(fmt.Sprintf(" LIMIT $%d", argCounter))
		args = append(args, filter.Limit)
		argCounter++
	}
	if filter.Offset > 0 {
		queryBuilder.WriteString(fmt.Sprintf(" OFFSET $%d", argCounter))
		args = append(args, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tournaments: %w", err)
	}
	defer rows.Close()

	tournaments := make([]*models.Tournament, 0)
	for rows.Next() {
		var t models.Tournament
		if err := r.scanTournament(rows, &t); err != nil {
			return nil, fmt.Errorf("failed to scan tournament row: %w", err)
		}
		tournaments = append(tournaments, &t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tournament rows: %w", err)
	}
	return tournaments, nil
}

func (r *postgresTournamentRepository) UpdateDetails(ctx context.Context, t *models.Tournament) error {
	query := `
		UPDATE tournaments
		SET name = $1, description = $2, max_participants = $3,
		    allow_late_registration = $4, check_in_window_minutes = $5,
		    late_check_in_max_round = $6, start_date = $7, end_date = $8, location = $9
		WHERE id = $10`

	result, err := r.db.ExecContext(ctx, query,
		t.Name,
		t.Description,
		t.MaxParticipants,
		t.AllowLateRegistration,
		t.CheckInWindowMinutes,
		t.LateCheckInMaxRound,
		t.StartDate,
		t.EndDate,
		t.Location,
		t.ID,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			if pqErr.Constraint == "tournaments_name_key" {
				return ErrTournamentNameConflict
			}
		}
		return fmt.Errorf("failed to update tournament %d: %w", t.ID, err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

// UpdateStatus advances status only from the expected current value, so a
// stale organizer session loses cleanly instead of overwriting.
func (r *postgresTournamentRepository) UpdateStatus(ctx context.Context, id int, from, to models.TournamentStatus) error {
	query := `UPDATE tournaments SET status = $1 WHERE id = $2 AND status = $3`
	result, err := r.db.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return fmt.Errorf("failed to update tournament %d status: %w", id, err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) UpdateCurrentRound(ctx context.Context, exec SQLExecutor, id int, roundNumber int) error {
	query := `UPDATE tournaments SET current_round = $1 WHERE id = $2`
	result, err := exec.ExecContext(ctx, query, roundNumber, id)
	if err != nil {
		return fmt.Errorf("failed to update tournament %d current round: %w", id, err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) UpdateLogoKey(ctx context.Context, id int, logoKey *string) error {
	query := `UPDATE tournaments SET logo_key = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, logoKey, id)
	if err != nil {
		return fmt.Errorf("failed to update tournament %d logo: %w", id, err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

// ListDueForStatusUpdate returns tournaments whose status lags their dates:
// upcoming past start_date, or active past end_date.
func (r *postgresTournamentRepository) ListDueForStatusUpdate(ctx context.Context) ([]*models.Tournament, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM tournaments
		WHERE (status = 'upcoming' AND start_date <= NOW())
		   OR (status = 'active' AND end_date IS NOT NULL AND end_date <= NOW())
		ORDER BY id ASC`, tournamentColumns)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tournaments due for status update: %w", err)
	}
	defer rows.Close()

	tournaments := make([]*models.Tournament, 0)
	for rows.Next() {
		var t models.Tournament
		if err := r.scanTournament(rows, &t); err != nil {
			return nil, fmt.Errorf("failed to scan tournament row: %w", err)
		}
		tournaments = append(tournaments, &t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tournament rows: %w", err)
	}
	return tournaments, nil
}
