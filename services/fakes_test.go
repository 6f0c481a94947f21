package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/openbracket/tournament-engine/models"
	"github.com/openbracket/tournament-engine/pairing"
	"github.com/openbracket/tournament-engine/repositories"
)

// In-memory fakes mirroring the guarded-update and atomic-registration
// semantics of the Postgres repositories.

type fakeTournamentRepo struct {
	mu     sync.Mutex
	nextID int
	byID   map[int]*models.Tournament
}

func newFakeTournamentRepo() *fakeTournamentRepo {
	return &fakeTournamentRepo{byID: make(map[int]*models.Tournament)}
}

func (f *fakeTournamentRepo) add(t *models.Tournament) *models.Tournament {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	t.ID = f.nextID
	f.byID[t.ID] = t
	return t
}

func (f *fakeTournamentRepo) Create(ctx context.Context, t *models.Tournament) error {
	f.add(t)
	return nil
}

func (f *fakeTournamentRepo) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byID[id]
	if !ok {
		return nil, repositories.ErrTournamentNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTournamentRepo) List(ctx context.Context, filter repositories.ListTournamentsFilter) ([]*models.Tournament, error) {
	return nil, nil
}

func (f *fakeTournamentRepo) UpdateDetails(ctx context.Context, t *models.Tournament) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[t.ID]; !ok {
		return repositories.ErrTournamentNotFound
	}
	cp := *t
	f.byID[t.ID] = &cp
	return nil
}

func (f *fakeTournamentRepo) UpdateStatus(ctx context.Context, id int, from, to models.TournamentStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byID[id]
	if !ok || t.Status != from {
		return repositories.ErrTournamentNotFound
	}
	t.Status = to
	return nil
}

func (f *fakeTournamentRepo) UpdateCurrentRound(ctx context.Context, exec repositories.SQLExecutor, id int, roundNumber int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byID[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.CurrentRound = &roundNumber
	return nil
}

func (f *fakeTournamentRepo) UpdateLogoKey(ctx context.Context, id int, logoKey *string) error {
	return nil
}

func (f *fakeTournamentRepo) ListDueForStatusUpdate(ctx context.Context) ([]*models.Tournament, error) {
	return nil, nil
}

type fakeRegistrationRepo struct {
	mu          sync.Mutex
	nextID      int
	byID        map[int]*models.Registration
	tournaments *fakeTournamentRepo
}

func newFakeRegistrationRepo(tournaments *fakeTournamentRepo) *fakeRegistrationRepo {
	return &fakeRegistrationRepo{
		byID:        make(map[int]*models.Registration),
		tournaments: tournaments,
	}
}

func (f *fakeRegistrationRepo) RegisterAtomic(ctx context.Context, tournamentID, userID int) (*models.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.tournaments.mu.Lock()
	t, ok := f.tournaments.byID[tournamentID]
	var maxParticipants *int
	if ok {
		maxParticipants = t.MaxParticipants
	}
	f.tournaments.mu.Unlock()
	if !ok {
		return nil, repositories.ErrRegistrationTournamentInvalid
	}

	registered := 0
	for _, r := range f.byID {
		if r.TournamentID == tournamentID {
			if r.UserID == userID {
				return nil, repositories.ErrRegistrationConflict
			}
			if r.Status == models.RegistrationStatusRegistered {
				registered++
			}
		}
	}

	status := models.RegistrationStatusRegistered
	if maxParticipants != nil && registered >= *maxParticipants {
		status = models.RegistrationStatusWaitlist
	}

	f.nextID++
	reg := &models.Registration{
		ID:           f.nextID,
		TournamentID: tournamentID,
		UserID:       userID,
		Status:       status,
		CreatedAt:    time.Now(),
	}
	f.byID[reg.ID] = reg
	cp := *reg
	return &cp, nil
}

func (f *fakeRegistrationRepo) FindByID(ctx context.Context, id int) (*models.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.byID[id]
	if !ok {
		return nil, repositories.ErrRegistrationNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeRegistrationRepo) FindByUserAndTournament(ctx context.Context, userID, tournamentID int) (*models.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.byID {
		if r.UserID == userID && r.TournamentID == tournamentID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, repositories.ErrRegistrationNotFound
}

func (f *fakeRegistrationRepo) ListByTournament(ctx context.Context, tournamentID int, statusFilter *models.RegistrationStatus, includeUser bool) ([]*models.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.Registration, 0)
	for _, r := range f.byID {
		if r.TournamentID != tournamentID {
			continue
		}
		if statusFilter != nil && r.Status != *statusFilter {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeRegistrationRepo) CheckIn(ctx context.Context, id int, late bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.byID[id]
	if !ok {
		return repositories.ErrRegistrationStateConflict
	}
	if r.Status != models.RegistrationStatusRegistered && r.Status != models.RegistrationStatusConfirmed {
		return repositories.ErrRegistrationStateConflict
	}
	now := time.Now()
	r.Status = models.RegistrationStatusCheckedIn
	r.CheckedInAt = &now
	r.CheckedInLate = late
	return nil
}

func (f *fakeRegistrationRepo) UndoCheckIn(ctx context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.byID[id]
	if !ok || r.Status != models.RegistrationStatusCheckedIn {
		return repositories.ErrRegistrationStateConflict
	}
	r.Status = models.RegistrationStatusRegistered
	r.CheckedInAt = nil
	r.CheckedInLate = false
	return nil
}

func (f *fakeRegistrationRepo) UpdateStatus(ctx context.Context, id int, from, to models.RegistrationStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.byID[id]
	if !ok || r.Status != from {
		return repositories.ErrRegistrationStateConflict
	}
	r.Status = to
	return nil
}

type fakePhaseRepo struct {
	mu     sync.Mutex
	nextID int
	byID   map[int]*models.Phase
}

func newFakePhaseRepo() *fakePhaseRepo {
	return &fakePhaseRepo{byID: make(map[int]*models.Phase)}
}

func (f *fakePhaseRepo) add(p *models.Phase) *models.Phase {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	p.ID = f.nextID
	f.byID[p.ID] = p
	return p
}

func (f *fakePhaseRepo) Create(ctx context.Context, p *models.Phase) error {
	f.add(p)
	return nil
}

func (f *fakePhaseRepo) GetByID(ctx context.Context, id int) (*models.Phase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[id]
	if !ok {
		return nil, repositories.ErrPhaseNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakePhaseRepo) ListByTournament(ctx context.Context, tournamentID int) ([]*models.Phase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.Phase, 0)
	for _, p := range f.byID {
		if p.TournamentID == tournamentID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out, nil
}

type fakeRoundRepo struct {
	mu          sync.Mutex
	nextRoundID int
	nextMatchID int
	rounds      map[int]*models.Round
	matches     map[int][]*models.Match // keyed by round ID

	failStart    error
	failComplete error
}

func newFakeRoundRepo() *fakeRoundRepo {
	return &fakeRoundRepo{
		rounds:  make(map[int]*models.Round),
		matches: make(map[int][]*models.Match),
	}
}

func (f *fakeRoundRepo) withCounts(r *models.Round) *models.Round {
	cp := *r
	cp.MatchCount = 0
	cp.CompletedCount = 0
	cp.InProgressCount = 0
	cp.PendingCount = 0
	for _, m := range f.matches[r.ID] {
		cp.MatchCount++
		switch m.Status {
		case models.MatchStatusCompleted:
			cp.CompletedCount++
		case models.MatchStatusActive:
			cp.InProgressCount++
		case models.MatchStatusPending:
			cp.PendingCount++
		}
	}
	return &cp
}

func (f *fakeRoundRepo) GetByID(ctx context.Context, id int) (*models.Round, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rounds[id]
	if !ok {
		return nil, repositories.ErrRoundNotFound
	}
	return f.withCounts(r), nil
}

func (f *fakeRoundRepo) ListByPhase(ctx context.Context, phaseID int) ([]*models.Round, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.Round, 0)
	for _, r := range f.rounds {
		if r.PhaseID == phaseID {
			out = append(out, f.withCounts(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoundNumber < out[j].RoundNumber })
	return out, nil
}

func (f *fakeRoundRepo) CreateWithMatches(ctx context.Context, round *models.Round, matches []*models.Match) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rounds {
		if r.PhaseID == round.PhaseID && r.RoundNumber == round.RoundNumber {
			return repositories.ErrRoundNumberConflict
		}
	}
	f.nextRoundID++
	round.ID = f.nextRoundID
	round.Status = models.RoundStatusPending
	round.CreatedAt = time.Now()
	stored := *round
	f.rounds[round.ID] = &stored
	for _, m := range matches {
		f.nextMatchID++
		m.ID = f.nextMatchID
		m.RoundID = round.ID
		m.CreatedAt = time.Now()
		cp := *m
		f.matches[round.ID] = append(f.matches[round.ID], &cp)
	}
	round.MatchCount = len(matches)
	return nil
}

func (f *fakeRoundRepo) DeleteWithMatches(ctx context.Context, roundID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rounds[roundID]
	if !ok || r.Status != models.RoundStatusPending {
		return repositories.ErrRoundStateConflict
	}
	delete(f.rounds, roundID)
	delete(f.matches, roundID)
	return nil
}

func (f *fakeRoundRepo) Start(ctx context.Context, roundID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failStart != nil {
		return f.failStart
	}
	r, ok := f.rounds[roundID]
	if !ok || r.Status != models.RoundStatusPending {
		return repositories.ErrRoundStateConflict
	}
	now := time.Now()
	r.Status = models.RoundStatusActive
	r.StartedAt = &now
	return nil
}

func (f *fakeRoundRepo) Complete(ctx context.Context, roundID int, post func(ctx context.Context, exec repositories.SQLExecutor) error) error {
	f.mu.Lock()
	if f.failComplete != nil {
		err := f.failComplete
		f.mu.Unlock()
		return err
	}
	r, ok := f.rounds[roundID]
	if !ok || r.Status != models.RoundStatusActive {
		f.mu.Unlock()
		return repositories.ErrRoundStateConflict
	}
	now := time.Now()
	r.Status = models.RoundStatusCompleted
	r.CompletedAt = &now
	f.mu.Unlock()

	if post != nil {
		return post(ctx, nil)
	}
	return nil
}

// completeAllMatches marks every match of the round completed, simulating
// reported results.
func (f *fakeRoundRepo) completeAllMatches(roundID int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.matches[roundID] {
		m.Status = models.MatchStatusCompleted
	}
}

type fakeStandingRepo struct {
	mu        sync.Mutex
	byPhase   map[int][]*models.Standing
	rebuilds  int
	failError error
}

func newFakeStandingRepo() *fakeStandingRepo {
	return &fakeStandingRepo{byPhase: make(map[int][]*models.Standing)}
}

func (f *fakeStandingRepo) ListByPhase(ctx context.Context, phaseID int) ([]*models.Standing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byPhase[phaseID], nil
}

func (f *fakeStandingRepo) Rebuild(ctx context.Context, exec repositories.SQLExecutor, phaseID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failError != nil {
		return f.failError
	}
	f.rebuilds++
	return nil
}

// countingGenerator wraps a real generator and counts invocations, so tests
// can assert guards fire before any pairing call is made.
type countingGenerator struct {
	inner pairing.Generator
	mu    sync.Mutex
	calls int
}

func newCountingGenerator() *countingGenerator {
	return &countingGenerator{inner: pairing.NewSwissGenerator()}
}

func (g *countingGenerator) GeneratePairings(ctx context.Context, params pairing.GenerateParams) (*pairing.Proposal, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	return g.inner.GeneratePairings(ctx, params)
}

func (g *countingGenerator) GetName() string { return g.inner.GetName() }

func (g *countingGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

var errTransport = errors.New("connection reset by peer")
