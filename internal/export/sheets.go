// Package export renders stage standings and the final classification as XLSX workbooks and CSV files.
package export

import (
	"context"
	"fmt"
	"strings"

	"github.com/AdamBeresnev/fpv-bracket/internal/bracket"
	"github.com/AdamBeresnev/fpv-bracket/internal/service"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Sheet is one table: a header row and the data rows below it. Nil cells stay empty.
type Sheet struct {
	Name   string
	Header []string
	Rows   [][]any
}

var stageHeader = []string{"Group", "Rank", "Start No", "Name", "Points", "Wins", "Bonus", "Total", "Qualified"}

var overallHeader = []string{"Place", "Start No", "Name", "Eliminated In", "Group", "Group Rank", "Total", "Qualification Rank"}

type StandingsSource interface {
	GetStage(ctx context.Context, stageID uuid.UUID) (*bracket.Stage, error)
	GetStages(ctx context.Context, tournamentID uuid.UUID) ([]bracket.Stage, error)
	ComputeStageStandings(ctx context.Context, stageID uuid.UUID) ([]service.GroupStandings, error)
	ComputeOverallStandings(ctx context.Context, tournamentID uuid.UUID) ([]service.PlacedEntrant, error)
}

type EntrantSource interface {
	GetTournament(ctx context.Context, id uuid.UUID) (*bracket.Tournament, error)
	GetEntrants(ctx context.Context, tournamentID uuid.UUID) ([]bracket.Entrant, error)
}

// StageSheet lists every group of a stage in rank order.
func StageSheet(code string, groups []service.GroupStandings, startNumbers map[uuid.UUID]int) Sheet {
	sheet := Sheet{Name: "Stage " + code, Header: stageHeader}
	for _, g := range groups {
		for _, s := range g.Standings {
			var startNo any
			if n, ok := startNumbers[s.EntrantID]; ok {
				startNo = n
			}
			qualified := ""
			if s.Qualified {
				qualified = "yes"
			}
			sheet.Rows = append(sheet.Rows, []any{g.GroupNo, s.Rank, startNo, s.Name, s.Points, s.Wins, s.Bonus, s.Total, qualified})
		}
	}
	return sheet
}

func OverallSheet(placed []service.PlacedEntrant) Sheet {
	sheet := Sheet{Name: "Overall", Header: overallHeader}
	for _, p := range placed {
		sheet.Rows = append(sheet.Rows, []any{
			intOrNil(p.Place),
			intOrNil(p.StartNumber),
			p.Name,
			p.StageCode,
			zeroAsNil(p.GroupNo),
			zeroAsNil(p.GroupRank),
			p.Total,
			zeroAsNil(p.QualificationRank),
		})
	}
	return sheet
}

// StageSheetByID resolves a stage and the start numbers of its tournament before building its sheet.
func StageSheetByID(ctx context.Context, standings StandingsSource, entrants EntrantSource, stageID uuid.UUID) (Sheet, error) {
	st, err := standings.GetStage(ctx, stageID)
	if err != nil {
		return Sheet{}, err
	}
	startNumbers, err := startNumbersOf(ctx, entrants, st.TournamentID)
	if err != nil {
		return Sheet{}, err
	}
	groups, err := standings.ComputeStageStandings(ctx, stageID)
	if err != nil {
		return Sheet{}, err
	}
	return StageSheet(st.Code, groups, startNumbers), nil
}

func startNumbersOf(ctx context.Context, entrants EntrantSource, tournamentID uuid.UUID) (map[uuid.UUID]int, error) {
	list, err := entrants.GetEntrants(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]int, len(list))
	for _, e := range list {
		if e.StartNumber != nil {
			out[e.ID] = *e.StartNumber
		}
	}
	return out, nil
}

// TournamentSheets builds one sheet per stage, computed concurrently, led by the overall classification
// once the tournament is finished.
func TournamentSheets(ctx context.Context, standings StandingsSource, entrants EntrantSource, tournamentID uuid.UUID) ([]Sheet, error) {
	tournament, err := entrants.GetTournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	startNumbers, err := startNumbersOf(ctx, entrants, tournamentID)
	if err != nil {
		return nil, err
	}

	stages, err := standings.GetStages(ctx, tournamentID)
	if err != nil {
		return nil, err
	}

	stageSheets := make([]Sheet, len(stages))
	g, gCtx := errgroup.WithContext(ctx)
	for i, st := range stages {
		g.Go(func() error {
			groups, err := standings.ComputeStageStandings(gCtx, st.ID)
			if err != nil {
				return fmt.Errorf("failed to compute standings of stage %s: %w", st.Code, err)
			}
			stageSheets[i] = StageSheet(st.Code, groups, startNumbers)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var sheets []Sheet
	if tournament.Status == bracket.TournamentFinished {
		placed, err := standings.ComputeOverallStandings(ctx, tournamentID)
		if err != nil {
			return nil, err
		}
		sheets = append(sheets, OverallSheet(placed))
	}
	return append(sheets, stageSheets...), nil
}

// sheetName strips the characters a workbook refuses in sheet names, so "1/8" becomes "1-8".
func sheetName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '?', '*', '[', ']':
			return '-'
		}
		return r
	}, name)
	if runes := []rune(name); len(runes) > 31 {
		name = string(runes[:31])
	}
	return name
}

func intOrNil(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func zeroAsNil(v int) any {
	if v == 0 {
		return nil
	}
	return v
}
