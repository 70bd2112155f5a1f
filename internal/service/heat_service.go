package service

import (
	"context"
	"fmt"

	"github.com/AdamBeresnev/fpv-bracket/internal/bracket"
	"github.com/AdamBeresnev/fpv-bracket/internal/ranking"
	"github.com/AdamBeresnev/fpv-bracket/internal/scoring"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// RecordHeat stores one heat of a group, replacing whatever was recorded under the same (heat, track) key.
// A regular heat must cover the whole group; a tie-break heat exactly one unresolved tied block.
func (s *BracketService) RecordHeat(ctx context.Context, stageID uuid.UUID, groupNo, heatNo, trackNo int, inputs []RunInput) error {
	tournamentID, err := s.stageTournament(ctx, stageID)
	if err != nil {
		return err
	}
	defer s.locks.Lock(tournamentID)()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	tournament, v, err := s.activeStageView(ctx, tx, stageID)
	if err != nil {
		return err
	}
	if err := s.recordHeat(ctx, tx, tournament, v, groupNo, heatNo, trackNo, inputs); err != nil {
		return err
	}
	if err := commit(tx); err != nil {
		return err
	}

	s.metrics.heatRecorded(tournament.Discipline)
	s.publish(EventHeatRecorded, tournamentID, &stageID)
	return nil
}

// ResolveTie records the next tie-break heat of a group, numbered the way the stage expects.
func (s *BracketService) ResolveTie(ctx context.Context, stageID uuid.UUID, groupNo int, inputs []RunInput) error {
	tournamentID, err := s.stageTournament(ctx, stageID)
	if err != nil {
		return err
	}
	defer s.locks.Lock(tournamentID)()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	tournament, v, err := s.activeStageView(ctx, tx, stageID)
	if err != nil {
		return err
	}
	if _, ok := v.group(groupNo); !ok {
		return &NotFoundError{Resource: "group", ID: fmt.Sprint(groupNo)}
	}
	heatNo, trackNo := v.nextTieBreak(groupNo)
	if err := s.recordHeat(ctx, tx, tournament, v, groupNo, heatNo, trackNo, inputs); err != nil {
		return err
	}
	if err := commit(tx); err != nil {
		return err
	}

	s.metrics.heatRecorded(tournament.Discipline)
	s.publish(EventHeatRecorded, tournamentID, &stageID)
	return nil
}

func (s *BracketService) activeStageView(ctx context.Context, tx *sqlx.Tx, stageID uuid.UUID) (*bracket.Tournament, *stageView, error) {
	st, err := s.stage(ctx, tx, stageID)
	if err != nil {
		return nil, nil, err
	}
	tournament, err := s.tournament(ctx, tx, st.TournamentID)
	if err != nil {
		return nil, nil, err
	}
	if err := requireStatus(tournament, bracket.TournamentBracket); err != nil {
		return nil, nil, err
	}
	if st.Status != bracket.StageActive {
		return nil, nil, preconditionf("stage %s is not active", st.Code)
	}
	v, err := s.loadStage(ctx, tx, st)
	if err != nil {
		return nil, nil, err
	}
	return tournament, v, nil
}

func (s *BracketService) recordHeat(ctx context.Context, tx *sqlx.Tx, tournament *bracket.Tournament, v *stageView, groupNo, heatNo, trackNo int, inputs []RunInput) error {
	group, ok := v.group(groupNo)
	if !ok {
		return &NotFoundError{Resource: "group", ID: fmt.Sprint(groupNo)}
	}
	tieBreak, ok := v.isTieBreakKey(groupNo, heatNo, trackNo)
	if !ok {
		return validationf("heat %d on track %d is not a heat of stage %s", heatNo, trackNo, v.stage.Code)
	}

	ids := make([]uuid.UUID, 0, len(inputs))
	seen := make(map[uuid.UUID]bool, len(inputs))
	for _, in := range inputs {
		if seen[in.EntrantID] {
			return validationf("entrant %s appears twice", in.EntrantID)
		}
		seen[in.EntrantID] = true
		ids = append(ids, in.EntrantID)
	}

	if tieBreak {
		if missing := v.missingHeats(groupNo); len(missing) > 0 {
			return &PreconditionError{Message: fmt.Sprintf("group %d has regular heats outstanding", groupNo), Missing: missing}
		}
		key := heatKey{heatNo, trackNo}
		blocks := v.ties(groupNo, &key)
		if len(blocks) == 0 {
			return preconditionf("group %d has no tie to break", groupNo)
		}
		matched := false
		for _, b := range blocks {
			matched = matched || sameSet(b, ids)
		}
		if !matched {
			return validationf("a tie-break heat must include exactly the tied entrants")
		}
	} else if !sameSet(memberIDs(v.members[groupNo]), ids) {
		return validationf("heat must cover all %d entrants of group %d", len(v.members[groupNo]), groupNo)
	}

	runs := make(map[uuid.UUID]run, len(inputs))
	obs := make([]ranking.Observation, 0, len(inputs))
	for _, in := range inputs {
		r, err := normalizeRun(tournament, in)
		if err != nil {
			return err
		}
		runs[in.EntrantID] = r
		obs = append(obs, ranking.Observation{
			EntrantID:   in.EntrantID,
			Seed:        v.seeds[in.EntrantID],
			Outcome:     r.outcome,
			TimeSeconds: r.time,
			Laps:        r.laps,
		})
	}

	scheme := v.scheme()
	results := make([]bracket.HeatResult, 0, len(obs))
	for _, p := range ranking.RankTimeTrial(obs) {
		r := runs[p.EntrantID]
		result := bracket.HeatResult{
			EntrantID:     p.EntrantID,
			Outcome:       r.outcome,
			TimeSeconds:   r.time,
			Laps:          r.laps,
			AllLaps:       r.allLaps,
			ProjectedTime: r.projected,
			Place:         p.Place,
		}
		if !tieBreak {
			result.Points = scoring.PointsFor(scheme, p.Place, r.outcome == bracket.OutcomeDNF)
		}
		results = append(results, result)
	}

	heat := bracket.Heat{GroupID: group.ID, HeatNo: heatNo, TrackNo: trackNo, TieBreak: tieBreak}
	if err := s.store.SaveHeat(ctx, tx, &heat, results); err != nil {
		return fmt.Errorf("failed to save heat: %w", err)
	}
	if !tieBreak {
		// Any earlier tie-break was decided on totals that no longer hold.
		if err := s.store.DeleteTieBreakHeats(ctx, tx, group.ID); err != nil {
			return fmt.Errorf("failed to clear tie-break heats: %w", err)
		}
	}
	return nil
}
