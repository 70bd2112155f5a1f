package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/AdamBeresnev/fpv-bracket/internal/bracket"
	"github.com/AdamBeresnev/fpv-bracket/internal/seeding"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// BracketService runs the stage graph of a tournament: opening, recording, advancing and rolling back stages.
type BracketService struct {
	engine
}

func NewBracketService(d Deps) *BracketService {
	return &BracketService{engine: newEngine(d)}
}

// plan returns the stage plan for the tournament's ranked field.
func (e *engine) plan(ctx context.Context, q sqlx.QueryerContext, t *bracket.Tournament) ([]seeding.StageDef, int, error) {
	results, err := e.store.GetQualificationResults(ctx, q, t.ID)
	if err != nil {
		return nil, 0, err
	}
	if len(results) == 0 {
		return nil, 0, preconditionf("qualification has no ranked results")
	}
	size := seeding.BracketSize(len(results))
	defs, err := seeding.Plan(t.Discipline, t.ScoringMode, size)
	if err != nil {
		return nil, 0, err
	}
	return defs, size, nil
}

// createStage persists a stage with its groups. slots holds, per group number, the entrant of each slot;
// uuid.Nil marks a slot left empty by an undersized source.
func (e *engine) createStage(ctx context.Context, tx *sqlx.Tx, tournamentID uuid.UUID, index int, def seeding.StageDef, slots map[int][]uuid.UUID) (*bracket.Stage, error) {
	st := &bracket.Stage{
		ID:            uuid.New(),
		TournamentID:  tournamentID,
		Index:         index,
		Code:          def.Code,
		GroupSize:     def.GroupSize,
		GroupCount:    def.GroupCount,
		Qualifiers:    def.Qualifiers,
		HeatsPerGroup: def.HeatsPerGroup,
		Tracks:        def.Tracks,
		Scheme:        string(def.Scheme),
		Final:         def.Final,
		Status:        bracket.StageActive,
		CreatedAt:     time.Now().UTC(),
	}
	if err := e.store.CreateStage(ctx, tx, st); err != nil {
		return nil, fmt.Errorf("failed to create stage: %w", err)
	}

	groups := make([]bracket.Group, 0, def.GroupCount)
	var members []bracket.GroupMember
	for no := 1; no <= def.GroupCount; no++ {
		g := bracket.Group{ID: uuid.New(), StageID: st.ID, Number: no}
		groups = append(groups, g)
		for i, id := range slots[no] {
			if id == uuid.Nil {
				continue
			}
			members = append(members, bracket.GroupMember{GroupID: g.ID, EntrantID: id, Slot: i + 1})
		}
	}
	if err := e.store.CreateGroups(ctx, tx, groups); err != nil {
		return nil, fmt.Errorf("failed to create groups: %w", err)
	}
	if err := e.store.AddMembers(ctx, tx, members); err != nil {
		return nil, fmt.Errorf("failed to add group members: %w", err)
	}
	return st, nil
}

// OpenFirstStage seeds the ranked qualification field into the groups of stage 0.
// Entrants ranked below the bracket size are dropped.
func (s *BracketService) OpenFirstStage(ctx context.Context, tournamentID uuid.UUID) (uuid.UUID, error) {
	defer s.locks.Lock(tournamentID)()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return uuid.Nil, err
	}
	defer tx.Rollback()

	tournament, err := s.tournament(ctx, tx, tournamentID)
	if err != nil {
		return uuid.Nil, err
	}
	if err := requireStatus(tournament, bracket.TournamentQualification); err != nil {
		return uuid.Nil, err
	}

	defs, size, err := s.plan(ctx, tx, tournament)
	if err != nil {
		return uuid.Nil, err
	}
	if err := seeding.Validate(defs, size); err != nil {
		return uuid.Nil, fmt.Errorf("invalid stage plan: %w", err)
	}
	ranked, err := s.rankQualification(ctx, tx, tournamentID)
	if err != nil {
		return uuid.Nil, err
	}

	byRank := make(map[int]uuid.UUID, len(ranked))
	for _, r := range ranked {
		byRank[r.Rank] = r.EntrantID
	}
	def := defs[0]
	slots := make(map[int][]uuid.UUID, def.GroupCount)
	for _, g := range seeding.SortedGroups(def.Seeding) {
		for _, rank := range def.Seeding[g] {
			slots[g] = append(slots[g], byRank[rank])
		}
	}

	st, err := s.createStage(ctx, tx, tournamentID, 0, def, slots)
	if err != nil {
		return uuid.Nil, err
	}
	if err := s.store.UpdateTournamentStatus(ctx, tx, tournamentID, bracket.TournamentBracket); err != nil {
		return uuid.Nil, err
	}
	if err := commit(tx); err != nil {
		return uuid.Nil, err
	}

	slog.Info("stage opened", "tournament_id", tournamentID, "stage_id", st.ID, "stage_code", st.Code, "bracket_size", size)
	s.metrics.transition(TransitionOpen)
	s.publish(EventStageOpened, tournamentID, &st.ID)
	return st.ID, nil
}

// readyStage returns the active stage once all its heats are in and no tie blocks it.
func (s *BracketService) readyStage(ctx context.Context, tx *sqlx.Tx, tournament *bracket.Tournament) (*stageView, error) {
	if err := requireStatus(tournament, bracket.TournamentBracket); err != nil {
		return nil, err
	}
	st, err := s.store.GetActiveStage(ctx, tx, tournament.ID)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, preconditionf("tournament %q has no active stage", tournament.Name)
	}
	v, err := s.loadStage(ctx, tx, st)
	if err != nil {
		return nil, err
	}

	if missing := v.missing(); len(missing) > 0 {
		return nil, &PreconditionError{Message: fmt.Sprintf("stage %s is not complete", st.Code), Missing: missing}
	}
	if ties := v.allTies(); len(ties) > 0 {
		s.metrics.tiesBlocked(len(ties))
		return nil, &PreconditionError{Message: fmt.Sprintf("stage %s has unresolved ties", st.Code), Ties: ties}
	}
	return v, nil
}

// Advance closes the active stage and seeds its qualifiers into the next one through the progress table.
// On the final it changes nothing and returns the final's id; finishing is a separate confirmation.
func (s *BracketService) Advance(ctx context.Context, tournamentID uuid.UUID) (uuid.UUID, error) {
	defer s.locks.Lock(tournamentID)()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return uuid.Nil, err
	}
	defer tx.Rollback()

	tournament, err := s.tournament(ctx, tx, tournamentID)
	if err != nil {
		return uuid.Nil, err
	}
	v, err := s.readyStage(ctx, tx, tournament)
	if err != nil {
		return uuid.Nil, err
	}
	cur := v.stage
	if cur.Final {
		return cur.ID, nil
	}

	defs, _, err := s.plan(ctx, tx, tournament)
	if err != nil {
		return uuid.Nil, err
	}
	if cur.Index+1 >= len(defs) {
		return cur.ID, nil
	}
	def := defs[cur.Index+1]

	placed := make(map[seeding.Ref]uuid.UUID)
	for _, g := range v.groups {
		for _, st := range v.standings(g.Number, nil) {
			placed[seeding.Ref{Place: st.Rank, Group: g.Number}] = st.EntrantID
		}
	}
	slots := make(map[int][]uuid.UUID, def.GroupCount)
	for _, g := range seeding.SortedGroups(def.Progress) {
		for _, ref := range def.Progress[g] {
			// Missing refs come from short source groups and leave the slot empty.
			slots[g] = append(slots[g], placed[ref])
		}
	}

	next, err := s.createStage(ctx, tx, tournamentID, cur.Index+1, def, slots)
	if err != nil {
		return uuid.Nil, err
	}
	if err := s.store.UpdateStageStatus(ctx, tx, cur.ID, bracket.StageDone); err != nil {
		return uuid.Nil, err
	}
	if err := commit(tx); err != nil {
		return uuid.Nil, err
	}

	slog.Info("stage advanced", "tournament_id", tournamentID, "stage_id", next.ID, "stage_code", next.Code, "from", cur.Code)
	s.metrics.transition(TransitionAdvance)
	s.publish(EventStageOpened, tournamentID, &next.ID)
	return next.ID, nil
}

// Finish confirms the final result and closes the tournament.
func (s *BracketService) Finish(ctx context.Context, tournamentID uuid.UUID) error {
	defer s.locks.Lock(tournamentID)()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	tournament, err := s.tournament(ctx, tx, tournamentID)
	if err != nil {
		return err
	}
	v, err := s.readyStage(ctx, tx, tournament)
	if err != nil {
		return err
	}
	if !v.stage.Final {
		return preconditionf("stage %s is not the final", v.stage.Code)
	}

	if err := s.store.UpdateStageStatus(ctx, tx, v.stage.ID, bracket.StageDone); err != nil {
		return err
	}
	if err := s.store.UpdateTournamentStatus(ctx, tx, tournamentID, bracket.TournamentFinished); err != nil {
		return err
	}
	if err := commit(tx); err != nil {
		return err
	}

	slog.Info("tournament finished", "tournament_id", tournamentID, "stage_id", v.stage.ID)
	s.metrics.transition(TransitionFinish)
	s.publish(EventTournamentFinished, tournamentID, &v.stage.ID)
	return nil
}

// Rollback undoes the latest transition. A finished tournament reopens its final; otherwise the active stage is
// deleted with all its results and the previous stage, or qualification, becomes current again.
func (s *BracketService) Rollback(ctx context.Context, tournamentID uuid.UUID) error {
	defer s.locks.Lock(tournamentID)()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	tournament, err := s.tournament(ctx, tx, tournamentID)
	if err != nil {
		return err
	}
	stages, err := s.store.GetStages(ctx, tx, tournamentID)
	if err != nil {
		return err
	}

	var current *uuid.UUID
	switch tournament.Status {
	case bracket.TournamentFinished:
		if len(stages) == 0 {
			return preconditionf("finished tournament has no stages")
		}
		final := stages[len(stages)-1]
		if err := s.store.UpdateStageStatus(ctx, tx, final.ID, bracket.StageActive); err != nil {
			return err
		}
		if err := s.store.UpdateTournamentStatus(ctx, tx, tournamentID, bracket.TournamentBracket); err != nil {
			return err
		}
		current = &final.ID

	case bracket.TournamentBracket:
		active, err := s.store.GetActiveStage(ctx, tx, tournamentID)
		if err != nil {
			return err
		}
		if active == nil {
			return preconditionf("nothing to roll back")
		}
		if err := s.store.DeleteStage(ctx, tx, active.ID); err != nil {
			return fmt.Errorf("failed to delete stage: %w", err)
		}
		if active.Index == 0 {
			if err := s.store.UpdateTournamentStatus(ctx, tx, tournamentID, bracket.TournamentQualification); err != nil {
				return err
			}
			break
		}
		for i := range stages {
			if stages[i].Index == active.Index-1 {
				if err := s.store.UpdateStageStatus(ctx, tx, stages[i].ID, bracket.StageActive); err != nil {
					return err
				}
				current = &stages[i].ID
			}
		}

	default:
		return preconditionf("nothing to roll back")
	}

	if err := commit(tx); err != nil {
		return err
	}

	slog.Info("stage rolled back", "tournament_id", tournamentID, "from_status", tournament.Status)
	s.metrics.transition(TransitionRollback)
	s.publish(EventStageRolledBack, tournamentID, current)
	return nil
}
