package ranking

import (
	"cmp"
	"slices"

	"github.com/AdamBeresnev/fpv-bracket/internal/bracket"
	"github.com/AdamBeresnev/fpv-bracket/internal/scoring"
	"github.com/google/uuid"
)

type Member struct {
	EntrantID uuid.UUID
	Seed      int
	Name      string
}

// HeatEntry is one stored result of one heat of a group.
type HeatEntry struct {
	HeatID    uuid.UUID
	HeatNo    int
	TrackNo   int
	TieBreak  bool
	EntrantID uuid.UUID
	Outcome   bracket.Outcome
	Place     *int
	Points    int
}

type Standing struct {
	EntrantID     uuid.UUID `json:"entrant_id"`
	Name          string    `json:"name"`
	Seed          int       `json:"seed"`
	Points        int       `json:"points"`
	Wins          int       `json:"wins"`
	Bonus         int       `json:"bonus"`
	Total         int       `json:"total"`
	HeatsPlayed   int       `json:"heats_played"`
	TieBreakPlace *int      `json:"tie_break_place,omitempty"`
	TieBreakHeat  uuid.UUID `json:"-"`
	TieBreakNo    int       `json:"-"`
	Rank          int       `json:"rank"`
	Qualified     bool      `json:"qualified"`
}

// Standings accumulates the regular heats of one group and ranks its members.
//
// Order: total desc, place in the latest tie-break heat asc (entrants that played one first), heat wins desc,
// seed asc. Tie-break heats award neither points nor wins.
func Standings(members []Member, entries []HeatEntry, scheme scoring.Scheme, qualifiers int) []Standing {
	byID := make(map[uuid.UUID]*Standing, len(members))
	out := make([]Standing, len(members))
	for i, m := range members {
		out[i] = Standing{EntrantID: m.EntrantID, Name: m.Name, Seed: m.Seed}
		byID[m.EntrantID] = &out[i]
	}

	for _, e := range entries {
		s, ok := byID[e.EntrantID]
		if !ok {
			continue
		}
		if e.TieBreak {
			if s.TieBreakPlace == nil || e.HeatNo > s.TieBreakNo {
				s.TieBreakPlace = e.Place
				s.TieBreakHeat = e.HeatID
				s.TieBreakNo = e.HeatNo
			}
			continue
		}
		s.HeatsPlayed++
		s.Points += e.Points
		if e.Outcome == bracket.OutcomeFinished && e.Place != nil && *e.Place == 1 {
			s.Wins++
		}
	}

	for i := range out {
		if scheme.WinBonus() && out[i].Wins >= 2 {
			out[i].Bonus = 1
		}
		out[i].Total = out[i].Points + out[i].Bonus
	}

	slices.SortStableFunc(out, compareStandings)
	for i := range out {
		out[i].Rank = i + 1
		out[i].Qualified = qualifiers > 0 && out[i].Rank <= qualifiers
	}
	return out
}

func tieBreakKey(p *int) int {
	if p == nil {
		return int(^uint(0) >> 1)
	}
	return *p
}

func compareStandings(a, b Standing) int {
	if c := cmp.Compare(b.Total, a.Total); c != 0 {
		return c
	}
	if c := cmp.Compare(tieBreakKey(a.TieBreakPlace), tieBreakKey(b.TieBreakPlace)); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Wins, a.Wins); c != 0 {
		return c
	}
	if c := cmp.Compare(seedKey(a.Seed), seedKey(b.Seed)); c != 0 {
		return c
	}
	return cmp.Compare(a.EntrantID.String(), b.EntrantID.String())
}

// separated reports whether a shared tie-break heat decided between two entrants on equal totals.
func separated(a, b Standing) bool {
	return a.TieBreakHeat != uuid.Nil && a.TieBreakHeat == b.TieBreakHeat &&
		a.TieBreakPlace != nil && b.TieBreakPlace != nil
}

// PodiumPlaces is how many final places a tie must touch to hold up the finish.
const PodiumPlaces = 3

// BoundaryTies returns the blocks of entrants whose equal totals still need a tie-break heat.
// Outside the final only the qualifier cutoff matters. In the final only ties touching the podium do.
func BoundaryTies(standings []Standing, qualifiers int, final bool) [][]uuid.UUID {
	if final {
		return finalTies(standings)
	}
	if qualifiers <= 0 || len(standings) <= qualifiers {
		return nil
	}
	last, first := standings[qualifiers-1], standings[qualifiers]
	if last.Total != first.Total || separated(last, first) {
		return nil
	}
	return [][]uuid.UUID{block(standings, last.Total)}
}

func finalTies(standings []Standing) [][]uuid.UUID {
	var ties [][]uuid.UUID
	reported := make(map[int]bool)
	for i := 0; i < PodiumPlaces && i+1 < len(standings); i++ {
		a, b := standings[i], standings[i+1]
		if a.Total != b.Total || separated(a, b) || reported[a.Total] {
			continue
		}
		reported[a.Total] = true
		ties = append(ties, block(standings, a.Total))
	}
	return ties
}

func block(standings []Standing, total int) []uuid.UUID {
	var ids []uuid.UUID
	for _, s := range standings {
		if s.Total == total {
			ids = append(ids, s.EntrantID)
		}
	}
	return ids
}
