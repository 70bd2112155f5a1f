package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/AdamBeresnev/fpv-bracket/internal/bracket"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// TournamentStore persists the tournament graph. Reads take a QueryerContext and writes an ExtContext so
// that the same methods run on the pool or inside a service transaction.
type TournamentStore struct {
	db *sqlx.DB
}

func NewTournamentStore(db *sqlx.DB) *TournamentStore {
	return &TournamentStore{db: db}
}

func (s *TournamentStore) DB() *sqlx.DB {
	return s.db
}

func checkAffectedRows(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if rowsAffected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *TournamentStore) CreateTournament(ctx context.Context, e sqlx.ExtContext, tournament *bracket.Tournament) error {
	_, err := sqlx.NamedExecContext(ctx, e, `INSERT INTO tournaments (id, name, discipline, time_limit, regulation_laps, scoring_mode, status, created_at)
        VALUES (:id, :name, :discipline, :time_limit, :regulation_laps, :scoring_mode, :status, :created_at)`, tournament)
	return err
}

func (s *TournamentStore) GetTournament(ctx context.Context, q sqlx.QueryerContext, id uuid.UUID) (*bracket.Tournament, error) {
	var tournament bracket.Tournament
	if err := sqlx.GetContext(ctx, q, &tournament, "SELECT * FROM tournaments WHERE id = ?", id); err != nil {
		return nil, err
	}
	return &tournament, nil
}

func (s *TournamentStore) ListTournaments(ctx context.Context, q sqlx.QueryerContext) ([]bracket.Tournament, error) {
	var tournaments []bracket.Tournament
	err := sqlx.SelectContext(ctx, q, &tournaments, "SELECT * FROM tournaments ORDER BY created_at DESC, name ASC")
	return tournaments, err
}

func (s *TournamentStore) UpdateTournamentStatus(ctx context.Context, e sqlx.ExtContext, id uuid.UUID, status bracket.TournamentStatus) error {
	res, err := e.ExecContext(ctx, "UPDATE tournaments SET status = ? WHERE id = ?", status, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(res)
}

func (s *TournamentStore) CreateEntrants(ctx context.Context, e sqlx.ExtContext, entrants []bracket.Entrant) error {
	if len(entrants) == 0 {
		return nil
	}
	_, err := sqlx.NamedExecContext(ctx, e, `INSERT INTO entrants (id, tournament_id, name, start_number, pilot_a, pilot_b)
            VALUES (:id, :tournament_id, :name, :start_number, :pilot_a, :pilot_b)`, entrants)
	return err
}

func (s *TournamentStore) GetEntrants(ctx context.Context, q sqlx.QueryerContext, tournamentID uuid.UUID) ([]bracket.Entrant, error) {
	var entrants []bracket.Entrant
	err := sqlx.SelectContext(ctx, q, &entrants, `SELECT * FROM entrants WHERE tournament_id = ?
        ORDER BY start_number IS NULL, start_number ASC, name ASC`, tournamentID)
	return entrants, err
}

func (s *TournamentStore) SetStartNumbers(ctx context.Context, e sqlx.ExtContext, numbers map[uuid.UUID]int) error {
	// Clear first so the unique (tournament, start_number) index never sees a transient duplicate.
	for id := range numbers {
		if _, err := e.ExecContext(ctx, "UPDATE entrants SET start_number = NULL WHERE id = ?", id); err != nil {
			return err
		}
	}
	for id, n := range numbers {
		res, err := e.ExecContext(ctx, "UPDATE entrants SET start_number = ? WHERE id = ?", n, id)
		if err != nil {
			return err
		}
		if err := checkAffectedRows(res); err != nil {
			return err
		}
	}
	return nil
}

func (s *TournamentStore) UpsertQualification(ctx context.Context, e sqlx.ExtContext, result *bracket.QualificationResult) error {
	_, err := sqlx.NamedExecContext(ctx, e, `INSERT INTO qualification_results
            (id, tournament_id, entrant_id, outcome, time_seconds, laps, all_laps, projected_time)
        VALUES (:id, :tournament_id, :entrant_id, :outcome, :time_seconds, :laps, :all_laps, :projected_time)
        ON CONFLICT (tournament_id, entrant_id) DO UPDATE SET
            outcome = excluded.outcome,
            time_seconds = excluded.time_seconds,
            laps = excluded.laps,
            all_laps = excluded.all_laps,
            projected_time = excluded.projected_time`, result)
	return err
}

func (s *TournamentStore) GetQualificationResults(ctx context.Context, q sqlx.QueryerContext, tournamentID uuid.UUID) ([]bracket.QualificationResult, error) {
	var results []bracket.QualificationResult
	err := sqlx.SelectContext(ctx, q, &results, "SELECT * FROM qualification_results WHERE tournament_id = ?", tournamentID)
	return results, err
}

func (s *TournamentStore) DeleteQualification(ctx context.Context, e sqlx.ExtContext, tournamentID, entrantID uuid.UUID) error {
	res, err := e.ExecContext(ctx, "DELETE FROM qualification_results WHERE tournament_id = ? AND entrant_id = ?", tournamentID, entrantID)
	if err != nil {
		return err
	}
	return checkAffectedRows(res)
}
