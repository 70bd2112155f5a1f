package service

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/AdamBeresnev/fpv-bracket/internal/bracket"
	"github.com/AdamBeresnev/fpv-bracket/internal/ranking"
	"github.com/AdamBeresnev/fpv-bracket/internal/utils"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// QualificationStageCode labels entrants eliminated by qualification in the overall standings.
const QualificationStageCode = "Q"

// PlacedEntrant is one line of the final classification. Place is nil for entrants who never set a time.
type PlacedEntrant struct {
	Place             *int      `json:"place,omitempty"`
	EntrantID         uuid.UUID `json:"entrant_id"`
	Name              string    `json:"name"`
	StartNumber       *int      `json:"start_number,omitempty"`
	StageCode         string    `json:"stage_code,omitempty"`
	GroupNo           int       `json:"group,omitempty"`
	GroupRank         int       `json:"group_rank,omitempty"`
	Total             int       `json:"total"`
	QualificationRank int       `json:"qualification_rank,omitempty"`
}

func (s *BracketService) readStage(ctx context.Context, stageID uuid.UUID) (*stageView, error) {
	tournamentID, err := s.stageTournament(ctx, stageID)
	if err != nil {
		return nil, err
	}
	defer s.locks.RLock(tournamentID)()

	st, err := s.stage(ctx, s.db, stageID)
	if err != nil {
		return nil, err
	}
	return s.loadStage(ctx, s.db, st)
}

func (s *BracketService) GetStage(ctx context.Context, stageID uuid.UUID) (*bracket.Stage, error) {
	tournamentID, err := s.stageTournament(ctx, stageID)
	if err != nil {
		return nil, err
	}
	defer s.locks.RLock(tournamentID)()

	return s.stage(ctx, s.db, stageID)
}

func (s *BracketService) GetStages(ctx context.Context, tournamentID uuid.UUID) ([]bracket.Stage, error) {
	defer s.locks.RLock(tournamentID)()

	if _, err := s.tournament(ctx, s.db, tournamentID); err != nil {
		return nil, err
	}
	return s.store.GetStages(ctx, s.db, tournamentID)
}

func (s *BracketService) ComputeGroupRanking(ctx context.Context, stageID uuid.UUID, groupNo int) ([]ranking.Standing, error) {
	v, err := s.readStage(ctx, stageID)
	if err != nil {
		return nil, err
	}
	if _, ok := v.group(groupNo); !ok {
		return nil, &NotFoundError{Resource: "group", ID: fmt.Sprint(groupNo)}
	}
	return v.standings(groupNo, nil), nil
}

// ComputeStageStandings ranks every group of a stage, in group order.
func (s *BracketService) ComputeStageStandings(ctx context.Context, stageID uuid.UUID) ([]GroupStandings, error) {
	v, err := s.readStage(ctx, stageID)
	if err != nil {
		return nil, err
	}
	return v.allStandings(), nil
}

func (s *BracketService) CheckStageComplete(ctx context.Context, stageID uuid.UUID) (bool, []MissingItem, error) {
	v, err := s.readStage(ctx, stageID)
	if err != nil {
		return false, nil, err
	}
	missing := v.missing()
	return len(missing) == 0, missing, nil
}

// DetectTies returns the tied blocks that block the stage. Groups with heats outstanding report none.
func (s *BracketService) DetectTies(ctx context.Context, stageID uuid.UUID) ([][]uuid.UUID, error) {
	v, err := s.readStage(ctx, stageID)
	if err != nil {
		return nil, err
	}
	return v.allTies(), nil
}

// ComputeOverallStandings classifies every entrant of a finished tournament: finalists by final rank, then the
// entrants eliminated in each earlier stage from the latest backwards, then qualification non-qualifiers.
func (s *BracketService) ComputeOverallStandings(ctx context.Context, tournamentID uuid.UUID) ([]PlacedEntrant, error) {
	defer s.locks.RLock(tournamentID)()

	tournament, err := s.tournament(ctx, s.db, tournamentID)
	if err != nil {
		return nil, err
	}
	if err := requireStatus(tournament, bracket.TournamentFinished); err != nil {
		return nil, err
	}
	stages, err := s.store.GetStages(ctx, s.db, tournamentID)
	if err != nil {
		return nil, err
	}
	entrants, err := s.store.GetEntrants(ctx, s.db, tournamentID)
	if err != nil {
		return nil, err
	}
	ranked, err := s.rankQualification(ctx, s.db, tournamentID)
	if err != nil {
		return nil, err
	}

	standings := make([][]GroupStandings, len(stages))
	g, gCtx := errgroup.WithContext(ctx)
	for i := range stages {
		g.Go(func() error {
			v, err := s.loadStage(gCtx, s.db, &stages[i])
			if err != nil {
				return fmt.Errorf("failed to load stage %s: %w", stages[i].Code, err)
			}
			standings[i] = v.allStandings()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return classify(stages, standings, entrants, ranked), nil
}

type stageLine struct {
	groupNo int
	ranking.Standing
}

func classify(stages []bracket.Stage, standings [][]GroupStandings, entrants []bracket.Entrant, ranked []RankedEntrant) []PlacedEntrant {
	byID := make(map[uuid.UUID]bracket.Entrant, len(entrants))
	for _, e := range entrants {
		byID[e.ID] = e
	}
	seeds := seedsOf(ranked)

	var out []PlacedEntrant
	placed := make(map[uuid.UUID]bool, len(entrants))
	add := func(p PlacedEntrant) {
		e := byID[p.EntrantID]
		p.Name = e.Name
		p.StartNumber = e.StartNumber
		p.QualificationRank = seeds[p.EntrantID]
		out = append(out, p)
		placed[p.EntrantID] = true
	}

	// Stages are walked from the final down; everyone not yet placed was eliminated in that stage.
	for i := len(stages) - 1; i >= 0; i-- {
		var lines []stageLine
		for _, gs := range standings[i] {
			for _, st := range gs.Standings {
				if !placed[st.EntrantID] {
					lines = append(lines, stageLine{groupNo: gs.GroupNo, Standing: st})
				}
			}
		}
		slices.SortStableFunc(lines, func(a, b stageLine) int {
			if c := cmp.Compare(a.Rank, b.Rank); c != 0 {
				return c
			}
			if c := cmp.Compare(b.Total, a.Total); c != 0 {
				return c
			}
			if c := cmp.Compare(b.Wins, a.Wins); c != 0 {
				return c
			}
			return cmp.Compare(seeds[a.EntrantID], seeds[b.EntrantID])
		})
		for _, l := range lines {
			add(PlacedEntrant{
				EntrantID: l.EntrantID,
				StageCode: stages[i].Code,
				GroupNo:   l.groupNo,
				GroupRank: l.Rank,
				Total:     l.Total,
			})
		}
	}

	for _, r := range ranked {
		if !placed[r.EntrantID] {
			add(PlacedEntrant{EntrantID: r.EntrantID, StageCode: QualificationStageCode})
		}
	}
	for i := range out {
		out[i].Place = utils.Ptr(i + 1)
	}

	for _, e := range entrants {
		if !placed[e.ID] {
			add(PlacedEntrant{EntrantID: e.ID})
		}
	}
	return out
}
