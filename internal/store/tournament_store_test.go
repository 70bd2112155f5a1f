package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/AdamBeresnev/fpv-bracket/internal/bracket"
	"github.com/AdamBeresnev/fpv-bracket/internal/utils"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDB creates an in-memory SQLite database and applies migrations
func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	database, err := sqlx.Connect("sqlite3", "file::memory:?_foreign_keys=on")
	require.NoError(t, err, "Failed to connect to in-memory DB")
	// Every pooled connection would otherwise open its own empty database.
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

func seedTournament(t *testing.T, db *sqlx.DB, store *TournamentStore) *bracket.Tournament {
	t.Helper()

	tournament := &bracket.Tournament{
		ID:             uuid.New(),
		Name:           "Spring Cup",
		Discipline:     bracket.DroneIndividual,
		TimeLimit:      120,
		RegulationLaps: 3,
		ScoringMode:    bracket.ModeGroup4,
		Status:         bracket.TournamentSetup,
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, store.CreateTournament(context.Background(), db, tournament))
	return tournament
}

func seedEntrants(t *testing.T, db *sqlx.DB, store *TournamentStore, tournamentID uuid.UUID, names ...string) []bracket.Entrant {
	t.Helper()

	entrants := make([]bracket.Entrant, len(names))
	for i, name := range names {
		entrants[i] = bracket.Entrant{ID: uuid.New(), TournamentID: tournamentID, Name: name}
	}
	require.NoError(t, store.CreateEntrants(context.Background(), db, entrants))
	return entrants
}

func TestCreateTournament(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := NewTournamentStore(db)
	ctx := context.Background()

	tournament := &bracket.Tournament{
		ID:             uuid.New(),
		Name:           "Test Tournament",
		Discipline:     bracket.SimTeam,
		TimeLimit:      90.5,
		RegulationLaps: 4,
		ScoringMode:    bracket.ModeGroup8,
		Status:         bracket.TournamentSetup,
		CreatedAt:      time.Now().UTC(),
	}

	tx, err := db.BeginTxx(ctx, nil)
	require.NoError(t, err)

	err = store.CreateTournament(ctx, tx, tournament)
	require.NoError(t, err)

	err = tx.Commit()
	require.NoError(t, err)

	fetched, err := store.GetTournament(ctx, db, tournament.ID)
	require.NoError(t, err)

	assert.Equal(t, tournament.ID, fetched.ID)
	assert.Equal(t, tournament.Name, fetched.Name)
	assert.Equal(t, tournament.Discipline, fetched.Discipline)
	assert.Equal(t, tournament.TimeLimit, fetched.TimeLimit)
	assert.Equal(t, tournament.RegulationLaps, fetched.RegulationLaps)
	assert.Equal(t, tournament.ScoringMode, fetched.ScoringMode)
	assert.Equal(t, tournament.Status, fetched.Status)
	assert.WithinDuration(t, tournament.CreatedAt, fetched.CreatedAt, time.Second)

	require.NoError(t, store.UpdateTournamentStatus(ctx, db, tournament.ID, bracket.TournamentQualification))
	fetched, err = store.GetTournament(ctx, db, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, bracket.TournamentQualification, fetched.Status)

	err = store.UpdateTournamentStatus(ctx, db, uuid.New(), bracket.TournamentFinished)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestCreateEntrants(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := NewTournamentStore(db)
	ctx := context.Background()
	tournament := seedTournament(t, db, store)

	entrants := []bracket.Entrant{
		{ID: uuid.New(), TournamentID: tournament.ID, Name: "Team A", PilotA: utils.StringOrNil("Ann"), PilotB: utils.StringOrNil("Bob")},
		{ID: uuid.New(), TournamentID: tournament.ID, Name: "Solo"},
	}

	tx, err := db.BeginTxx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, store.CreateEntrants(ctx, tx, entrants))
	require.NoError(t, tx.Commit())

	fetched, err := store.GetEntrants(ctx, db, tournament.ID)
	require.NoError(t, err)
	require.Len(t, fetched, 2)

	assert.Equal(t, "Solo", fetched[0].Name)
	assert.Nil(t, fetched[0].PilotA)
	assert.Equal(t, "Team A", fetched[1].Name)
	assert.Equal(t, "Ann", *fetched[1].PilotA)
	assert.Equal(t, "Bob", *fetched[1].PilotB)

	dup := []bracket.Entrant{{ID: uuid.New(), TournamentID: tournament.ID, Name: "Solo"}}
	assert.Error(t, store.CreateEntrants(ctx, db, dup), "names are unique per tournament")
}

func TestSetStartNumbersSwap(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := NewTournamentStore(db)
	ctx := context.Background()
	tournament := seedTournament(t, db, store)
	entrants := seedEntrants(t, db, store, tournament.ID, "A", "B")

	require.NoError(t, store.SetStartNumbers(ctx, db, map[uuid.UUID]int{entrants[0].ID: 1, entrants[1].ID: 2}))
	require.NoError(t, store.SetStartNumbers(ctx, db, map[uuid.UUID]int{entrants[0].ID: 2, entrants[1].ID: 1}))

	fetched, err := store.GetEntrants(ctx, db, tournament.ID)
	require.NoError(t, err)
	require.Len(t, fetched, 2)
	assert.Equal(t, "B", fetched[0].Name)
	assert.Equal(t, 1, *fetched[0].StartNumber)
	assert.Equal(t, "A", fetched[1].Name)
	assert.Equal(t, 2, *fetched[1].StartNumber)
}

func TestQualificationUpsertAndDelete(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := NewTournamentStore(db)
	ctx := context.Background()
	tournament := seedTournament(t, db, store)
	entrants := seedEntrants(t, db, store, tournament.ID, "A")

	result := &bracket.QualificationResult{
		ID:            uuid.New(),
		TournamentID:  tournament.ID,
		EntrantID:     entrants[0].ID,
		Outcome:       bracket.OutcomeDNF,
		TimeSeconds:   40,
		Laps:          2,
		ProjectedTime: utils.Ptr(60.0),
	}
	require.NoError(t, store.UpsertQualification(ctx, db, result))

	result.ID = uuid.New()
	result.Outcome = bracket.OutcomeFinished
	result.TimeSeconds = 55.5
	result.Laps = 3
	result.AllLaps = true
	result.ProjectedTime = utils.Ptr(55.5)
	require.NoError(t, store.UpsertQualification(ctx, db, result))

	results, err := store.GetQualificationResults(ctx, db, tournament.ID)
	require.NoError(t, err)
	require.Len(t, results, 1, "a second record replaces the first")
	assert.Equal(t, bracket.OutcomeFinished, results[0].Outcome)
	assert.Equal(t, 55.5, results[0].TimeSeconds)
	assert.True(t, results[0].AllLaps)

	require.NoError(t, store.DeleteQualification(ctx, db, tournament.ID, entrants[0].ID))
	results, err = store.GetQualificationResults(ctx, db, tournament.ID)
	require.NoError(t, err)
	assert.Empty(t, results)

	assert.ErrorIs(t, store.DeleteQualification(ctx, db, tournament.ID, entrants[0].ID), sql.ErrNoRows)
}
