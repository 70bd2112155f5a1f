// Package ranking orders heat observations and accumulates group standings. Everything here is a pure
// function of its inputs: standings are recomputed from stored results on every read.
package ranking

import (
	"cmp"
	"slices"

	"github.com/AdamBeresnev/fpv-bracket/internal/bracket"
	"github.com/AdamBeresnev/fpv-bracket/internal/utils"
	"github.com/google/uuid"
)

// Observation is one entrant's run in a heat or in qualification.
// Seed is the deterministic tie-break: lower ranks first, zero means unknown and sorts last.
type Observation struct {
	EntrantID   uuid.UUID       `json:"entrant_id"`
	Seed        int             `json:"seed"`
	Outcome     bracket.Outcome `json:"outcome"`
	TimeSeconds float64         `json:"time_seconds"`
	Laps        int             `json:"laps"`
}

type Placed struct {
	Observation
	Place *int `json:"place,omitempty"`
}

func outcomeClass(o bracket.Outcome) int {
	switch o {
	case bracket.OutcomeFinished:
		return 0
	case bracket.OutcomeDNF:
		return 1
	default:
		return 2
	}
}

func seedKey(seed int) int {
	if seed <= 0 {
		return int(^uint(0) >> 1)
	}
	return seed
}

func compareObservations(a, b Observation) int {
	if c := cmp.Compare(outcomeClass(a.Outcome), outcomeClass(b.Outcome)); c != 0 {
		return c
	}
	switch a.Outcome {
	case bracket.OutcomeFinished:
		if c := cmp.Compare(a.TimeSeconds, b.TimeSeconds); c != 0 {
			return c
		}
	case bracket.OutcomeDNF:
		if c := cmp.Compare(b.Laps, a.Laps); c != 0 {
			return c
		}
	}
	if c := cmp.Compare(seedKey(a.Seed), seedKey(b.Seed)); c != 0 {
		return c
	}
	return cmp.Compare(a.EntrantID.String(), b.EntrantID.String())
}

// RankTimeTrial orders finishers by time, then non-finishers by laps completed, and assigns places 1..N.
// Pending entrants trail the field without a place.
func RankTimeTrial(obs []Observation) []Placed {
	sorted := slices.Clone(obs)
	slices.SortStableFunc(sorted, compareObservations)

	out := make([]Placed, 0, len(sorted))
	place := 0
	for _, o := range sorted {
		p := Placed{Observation: o}
		if o.Outcome != bracket.OutcomePending {
			place++
			p.Place = utils.Ptr(place)
		}
		out = append(out, p)
	}
	return out
}

// ProjectedTime estimates a full-distance time for a partial run. It is for display only.
func ProjectedTime(timeSeconds float64, regulationLaps, laps int, allLaps bool) *float64 {
	if laps <= 0 {
		return nil
	}
	if allLaps || laps >= regulationLaps {
		return utils.Ptr(utils.Round2(timeSeconds))
	}
	return utils.Ptr(utils.Round2(timeSeconds * float64(regulationLaps) / float64(laps)))
}
