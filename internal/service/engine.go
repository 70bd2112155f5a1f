package service

import (
	"context"
	"fmt"

	"github.com/AdamBeresnev/fpv-bracket/internal/bracket"
	"github.com/AdamBeresnev/fpv-bracket/internal/store"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Deps is shared by every service of one process. Services built from the same Deps share its Locks.
type Deps struct {
	DB        *sqlx.DB
	Store     *store.TournamentStore
	Locks     *Locks
	Metrics   *Metrics
	Publisher Publisher
}

type engine struct {
	db        *sqlx.DB
	store     *store.TournamentStore
	locks     *Locks
	metrics   *Metrics
	publisher Publisher
}

func newEngine(d Deps) engine {
	if d.Locks == nil {
		d.Locks = NewLocks()
	}
	if d.Store == nil {
		d.Store = store.NewTournamentStore(d.DB)
	}
	return engine{db: d.DB, store: d.Store, locks: d.Locks, metrics: d.Metrics, publisher: d.Publisher}
}

func (e *engine) publish(typ EventType, tournamentID uuid.UUID, stageID *uuid.UUID) {
	if e.publisher == nil {
		return
	}
	e.publisher.Publish(Event{Type: typ, TournamentID: tournamentID, StageID: stageID})
}

func (e *engine) tournament(ctx context.Context, q sqlx.QueryerContext, id uuid.UUID) (*bracket.Tournament, error) {
	t, err := e.store.GetTournament(ctx, q, id)
	if err != nil {
		return nil, notFound(err, "tournament", id)
	}
	return t, nil
}

func (e *engine) stage(ctx context.Context, q sqlx.QueryerContext, id uuid.UUID) (*bracket.Stage, error) {
	st, err := e.store.GetStage(ctx, q, id)
	if err != nil {
		return nil, notFound(err, "stage", id)
	}
	return st, nil
}

// stageTournament resolves the owning tournament of a stage so stage-keyed calls can take its lock.
func (e *engine) stageTournament(ctx context.Context, stageID uuid.UUID) (uuid.UUID, error) {
	st, err := e.stage(ctx, e.db, stageID)
	if err != nil {
		return uuid.Nil, err
	}
	return st.TournamentID, nil
}

func requireStatus(t *bracket.Tournament, want bracket.TournamentStatus) error {
	if t.Status != want {
		return preconditionf("tournament %q is %s, expected %s", t.Name, t.Status, want)
	}
	return nil
}

func commit(tx *sqlx.Tx) error {
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}
