package service

import (
	"context"
	"fmt"

	"github.com/AdamBeresnev/fpv-bracket/internal/bracket"
	"github.com/AdamBeresnev/fpv-bracket/internal/ranking"
	"github.com/AdamBeresnev/fpv-bracket/internal/utils"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// RunInput is one timed run as entered by the race director. Teams may give both pilot times instead of a total.
type RunInput struct {
	EntrantID   uuid.UUID       `json:"entrant_id"`
	Outcome     bracket.Outcome `json:"outcome"`
	TimeSeconds float64         `json:"time_seconds"`
	Laps        int             `json:"laps"`
	PilotATime  *float64        `json:"pilot_a_time,omitempty"`
	PilotBTime  *float64        `json:"pilot_b_time,omitempty"`
}

type run struct {
	outcome   bracket.Outcome
	time      float64
	laps      int
	allLaps   bool
	projected *float64
}

type RankedEntrant struct {
	Rank          int             `json:"rank"`
	EntrantID     uuid.UUID       `json:"entrant_id"`
	Name          string          `json:"name"`
	StartNumber   *int            `json:"start_number,omitempty"`
	Outcome       bracket.Outcome `json:"outcome"`
	TimeSeconds   float64         `json:"time_seconds"`
	Laps          int             `json:"laps"`
	AllLaps       bool            `json:"all_laps"`
	ProjectedTime *float64        `json:"projected_time,omitempty"`
}

// normalizeRun validates a run against the tournament rules. A finished run over the time limit counts as a DNF.
func normalizeRun(t *bracket.Tournament, in RunInput) (run, error) {
	r := run{outcome: in.Outcome, time: in.TimeSeconds, laps: in.Laps}

	if in.Outcome != bracket.OutcomeFinished && in.Outcome != bracket.OutcomeDNF {
		return r, validationf("entrant %s: outcome must be %s or %s", in.EntrantID, bracket.OutcomeFinished, bracket.OutcomeDNF)
	}
	if (in.PilotATime == nil) != (in.PilotBTime == nil) {
		return r, validationf("entrant %s: both pilot times are required", in.EntrantID)
	}
	if in.PilotATime != nil {
		if t.Discipline != bracket.SimTeam {
			return r, validationf("entrant %s: pilot times are only accepted for teams", in.EntrantID)
		}
		if *in.PilotATime < 0 || *in.PilotBTime < 0 {
			return r, validationf("entrant %s: pilot times must not be negative", in.EntrantID)
		}
		r.time = *in.PilotATime + *in.PilotBTime
	}
	if r.time < 0 {
		return r, validationf("entrant %s: time must not be negative", in.EntrantID)
	}
	if r.laps < 0 || r.laps > t.RegulationLaps {
		return r, validationf("entrant %s: laps must be between 0 and %d", in.EntrantID, t.RegulationLaps)
	}

	if r.outcome == bracket.OutcomeFinished {
		if r.time <= 0 {
			return r, validationf("entrant %s: a finished run needs a time", in.EntrantID)
		}
		r.laps = t.RegulationLaps
		if t.TimeLimit > 0 && r.time > t.TimeLimit {
			r.outcome = bracket.OutcomeDNF
		}
	}
	r.allLaps = r.outcome == bracket.OutcomeFinished
	r.time = utils.Round2(r.time)
	r.projected = ranking.ProjectedTime(r.time, t.RegulationLaps, r.laps, r.allLaps)
	return r, nil
}

// RecordQualification upserts one result per entrant. The whole batch is rejected on the first invalid run.
func (s *TournamentService) RecordQualification(ctx context.Context, tournamentID uuid.UUID, inputs []RunInput) error {
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
	if err := requireStatus(tournament, bracket.TournamentQualification); err != nil {
		return err
	}
	if len(inputs) == 0 {
		return validationf("no results given")
	}

	entrants, err := s.store.GetEntrants(ctx, tx, tournamentID)
	if err != nil {
		return err
	}
	known := make(map[uuid.UUID]bool, len(entrants))
	for _, e := range entrants {
		known[e.ID] = true
	}

	seen := make(map[uuid.UUID]bool, len(inputs))
	for _, in := range inputs {
		if !known[in.EntrantID] {
			return validationf("entrant %s is not part of this tournament", in.EntrantID)
		}
		if seen[in.EntrantID] {
			return validationf("entrant %s appears twice", in.EntrantID)
		}
		seen[in.EntrantID] = true

		r, err := normalizeRun(tournament, in)
		if err != nil {
			return err
		}
		result := bracket.QualificationResult{
			ID:            uuid.New(),
			TournamentID:  tournamentID,
			EntrantID:     in.EntrantID,
			Outcome:       r.outcome,
			TimeSeconds:   r.time,
			Laps:          r.laps,
			AllLaps:       r.allLaps,
			ProjectedTime: r.projected,
		}
		if err := s.store.UpsertQualification(ctx, tx, &result); err != nil {
			return fmt.Errorf("failed to save qualification result: %w", err)
		}
	}

	if err := commit(tx); err != nil {
		return err
	}
	s.publish(EventQualificationUpdated, tournamentID, nil)
	return nil
}

func (s *TournamentService) DeleteQualification(ctx context.Context, tournamentID, entrantID uuid.UUID) error {
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
	if err := requireStatus(tournament, bracket.TournamentQualification); err != nil {
		return err
	}
	if err := s.store.DeleteQualification(ctx, tx, tournamentID, entrantID); err != nil {
		return notFound(err, "qualification result", entrantID)
	}
	if err := commit(tx); err != nil {
		return err
	}

	s.publish(EventQualificationUpdated, tournamentID, nil)
	return nil
}

// QualificationRanking ranks every recorded qualification run. Entrants without a result are left out.
func (s *TournamentService) QualificationRanking(ctx context.Context, tournamentID uuid.UUID) ([]RankedEntrant, error) {
	defer s.locks.RLock(tournamentID)()

	if _, err := s.tournament(ctx, s.db, tournamentID); err != nil {
		return nil, err
	}
	return s.rankQualification(ctx, s.db, tournamentID)
}

func (e *engine) rankQualification(ctx context.Context, q sqlx.QueryerContext, tournamentID uuid.UUID) ([]RankedEntrant, error) {
	entrants, err := e.store.GetEntrants(ctx, q, tournamentID)
	if err != nil {
		return nil, err
	}
	results, err := e.store.GetQualificationResults(ctx, q, tournamentID)
	if err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]bracket.Entrant, len(entrants))
	for _, ent := range entrants {
		byID[ent.ID] = ent
	}
	resultByID := make(map[uuid.UUID]bracket.QualificationResult, len(results))
	obs := make([]ranking.Observation, 0, len(results))
	for _, r := range results {
		resultByID[r.EntrantID] = r
		obs = append(obs, ranking.Observation{
			EntrantID:   r.EntrantID,
			Seed:        utils.OrZero(byID[r.EntrantID].StartNumber),
			Outcome:     r.Outcome,
			TimeSeconds: r.TimeSeconds,
			Laps:        r.Laps,
		})
	}

	placed := ranking.RankTimeTrial(obs)
	ranked := make([]RankedEntrant, 0, len(placed))
	for _, p := range placed {
		ent, r := byID[p.EntrantID], resultByID[p.EntrantID]
		ranked = append(ranked, RankedEntrant{
			Rank:          utils.OrZero(p.Place),
			EntrantID:     ent.ID,
			Name:          ent.Name,
			StartNumber:   ent.StartNumber,
			Outcome:       r.Outcome,
			TimeSeconds:   r.TimeSeconds,
			Laps:          r.Laps,
			AllLaps:       r.AllLaps,
			ProjectedTime: r.ProjectedTime,
		})
	}
	return ranked, nil
}

func seedsOf(ranked []RankedEntrant) map[uuid.UUID]int {
	seeds := make(map[uuid.UUID]int, len(ranked))
	for _, r := range ranked {
		seeds[r.EntrantID] = r.Rank
	}
	return seeds
}
