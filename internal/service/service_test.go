package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/AdamBeresnev/fpv-bracket/internal/bracket"
	"github.com/AdamBeresnev/fpv-bracket/internal/store"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

// setupTestDB creates an in-memory SQLite database and applies migrations
func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	database, err := sqlx.Connect("sqlite3", "file::memory:?_foreign_keys=on")
	require.NoError(t, err, "Failed to connect to in-memory DB")
	database.SetMaxOpenConns(1)

	driver, err := sqlite3.WithInstance(database.DB, &sqlite3.Config{})
	require.NoError(t, err, "Failed to create migrate driver instance")

	m, err := migrate.NewWithDatabaseInstance(
		"file://../../migrations",
		"sqlite3",
		driver,
	)
	require.NoError(t, err, "Failed to create migrate instance")

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		require.NoError(t, err, "Failed to apply migrations")
	}

	return database
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Publish(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

type harness struct {
	db          *sqlx.DB
	store       *store.TournamentStore
	tournaments *TournamentService
	brackets    *BracketService
	events      *recorder
	reg         *prometheus.Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db := setupTestDB(t)
	t.Cleanup(func() { db.Close() })

	h := &harness{
		db:     db,
		store:  store.NewTournamentStore(db),
		events: &recorder{},
		reg:    prometheus.NewRegistry(),
	}
	deps := Deps{
		DB:        db,
		Store:     h.store,
		Locks:     NewLocks(),
		Metrics:   NewMetrics(h.reg),
		Publisher: h.events,
	}
	h.tournaments = NewTournamentService(deps)
	h.brackets = NewBracketService(deps)
	return h
}

// qualified creates a tournament with n entrants whose qualification ranks follow creation order.
// It returns the tournament id and the entrant ids indexed by rank-1.
func (h *harness) qualified(t *testing.T, discipline bracket.Discipline, mode bracket.ScoringMode, n int) (uuid.UUID, []uuid.UUID) {
	t.Helper()
	ctx := context.Background()

	id, err := h.tournaments.CreateTournament(ctx, TournamentInput{
		Name:           gofakeit.Company(),
		Discipline:     discipline,
		TimeLimit:      120,
		RegulationLaps: 3,
		ScoringMode:    mode,
	})
	require.NoError(t, err)

	inputs := make([]EntrantInput, n)
	for i := range inputs {
		inputs[i] = EntrantInput{
			Name:   fmt.Sprintf("%s %d", gofakeit.FirstName(), i+1),
			PilotA: gofakeit.FirstName(),
			PilotB: gofakeit.FirstName(),
		}
	}
	entrants, err := h.tournaments.AddEntrants(ctx, id, inputs)
	require.NoError(t, err)
	require.NoError(t, h.tournaments.StartQualification(ctx, id))

	ids := make([]uuid.UUID, n)
	runs := make([]RunInput, n)
	for i, e := range entrants {
		ids[i] = e.ID
		runs[i] = RunInput{EntrantID: e.ID, Outcome: bracket.OutcomeFinished, TimeSeconds: 30 + float64(i)}
	}
	require.NoError(t, h.tournaments.RecordQualification(ctx, id, runs))
	return id, ids
}

// finishOrder builds a heat where the entrants finish in the given order.
func finishOrder(ids ...uuid.UUID) []RunInput {
	runs := make([]RunInput, len(ids))
	for i, id := range ids {
		runs[i] = RunInput{EntrantID: id, Outcome: bracket.OutcomeFinished, TimeSeconds: 40 + float64(i)}
	}
	return runs
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue next
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func memberOrder(t *testing.T, h *harness, stageID uuid.UUID, groupNo int) []uuid.UUID {
	t.Helper()

	rows, err := h.store.GetMembers(context.Background(), h.db, stageID)
	require.NoError(t, err)
	var ids []uuid.UUID
	for _, r := range rows {
		if r.GroupNo == groupNo {
			ids = append(ids, r.EntrantID)
		}
	}
	return ids
}
