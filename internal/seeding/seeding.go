// Package seeding holds the regulation seeding and progress tables and the stage plans built from them.
package seeding

import (
	"fmt"
	"maps"
	"slices"

	"github.com/AdamBeresnev/fpv-bracket/internal/bracket"
	"github.com/AdamBeresnev/fpv-bracket/internal/scoring"
)

var bracketSizes = []int{32, 16, 8, 4}

// BracketSize returns the largest supported bracket that fits n entrants, never below 4.
func BracketSize(n int) int {
	for _, size := range bracketSizes {
		if size <= n {
			return size
		}
	}
	return 4
}

type StageDef struct {
	Code          string
	GroupSize     int
	GroupCount    int
	Qualifiers    int
	HeatsPerGroup int
	Tracks        int
	Scheme        scoring.Scheme
	Final         bool
	Seeding       map[int][]int
	Progress      map[int][]Ref
}

// Combos lists every (heat, track) pair a group must record before the stage is complete.
func (d StageDef) Combos() [][2]int {
	return Combos(d.HeatsPerGroup, d.Tracks)
}

func Combos(heats, tracks int) [][2]int {
	out := make([][2]int, 0, heats*tracks)
	for h := 1; h <= heats; h++ {
		for t := 1; t <= tracks; t++ {
			out = append(out, [2]int{h, t})
		}
	}
	return out
}

type layout struct {
	code       string
	groupCount int
	seeding    map[int][]int
	progress   map[int][]Ref
}

var layouts = map[int]map[int][]layout{
	4: {
		32: {
			{code: "1/8", groupCount: 8, seeding: seed32w4},
			{code: "1/4", groupCount: 4, progress: progress8to4},
			{code: "1/2", groupCount: 2, progress: progress4to2},
			{code: "F", groupCount: 1, progress: progress2toFinal},
		},
		16: {
			{code: "1/4", groupCount: 4, seeding: seed16w4},
			{code: "1/2", groupCount: 2, progress: progress4to2},
			{code: "F", groupCount: 1, progress: progress2toFinal},
		},
		8: {
			{code: "1/2", groupCount: 2, seeding: seed8w4},
			{code: "F", groupCount: 1, progress: progress2toFinal},
		},
		4: {
			{code: "F", groupCount: 1, seeding: seed4},
		},
	},
	8: {
		32: {
			{code: "1/4", groupCount: 4, seeding: seed32w8},
			{code: "1/2", groupCount: 2, progress: progress4to2w8},
			{code: "F", groupCount: 1, progress: progress2toFinalW8},
		},
		16: {
			{code: "1/2", groupCount: 2, seeding: seed16w8},
			{code: "F", groupCount: 1, progress: progress2toFinalW8},
		},
		8: {
			{code: "F", groupCount: 1, seeding: seed8w8},
		},
		4: {
			{code: "F", groupCount: 1, seeding: seed4},
		},
	},
}

// Plan returns the ordered stage definitions for a bracket of the given size.
func Plan(discipline bracket.Discipline, mode bracket.ScoringMode, size int) ([]StageDef, error) {
	width := mode.GroupWidth()
	ls, ok := layouts[width][size]
	if !ok {
		return nil, fmt.Errorf("no stage plan for bracket size %d with groups of %d", size, width)
	}

	defs := make([]StageDef, 0, len(ls))
	for i, l := range ls {
		final := i == len(ls)-1
		d := StageDef{
			Code:       l.code,
			GroupSize:  width,
			GroupCount: l.groupCount,
			Qualifiers: width / 2,
			Scheme:     scoring.ForStage(discipline, mode, final),
			Final:      final,
			Seeding:    cloneSeeding(l.seeding),
			Progress:   cloneProgress(l.progress),
		}
		if size < width {
			d.GroupSize = size
		}
		if final {
			d.Qualifiers = 0
		}

		switch {
		case discipline.IsSimulator():
			d.HeatsPerGroup, d.Tracks = 3, 2
		case final:
			d.HeatsPerGroup, d.Tracks = 3, 1
		default:
			d.HeatsPerGroup, d.Tracks = 1, 1
		}
		defs = append(defs, d)
	}
	return defs, nil
}

// Validate checks that a plan's tables are total: every seeded rank and every qualifying
// (place, group) of the previous stage fills exactly one slot.
func Validate(defs []StageDef, size int) error {
	if len(defs) == 0 {
		return fmt.Errorf("empty plan")
	}

	first := defs[0]
	seen := make(map[int]bool, size)
	for g, ranks := range first.Seeding {
		if g < 1 || g > first.GroupCount {
			return fmt.Errorf("stage %s: seeding group %d out of range", first.Code, g)
		}
		if len(ranks) != first.GroupSize {
			return fmt.Errorf("stage %s: group %d has %d slots, want %d", first.Code, g, len(ranks), first.GroupSize)
		}
		for _, r := range ranks {
			if r < 1 || r > size || seen[r] {
				return fmt.Errorf("stage %s: rank %d duplicated or out of range", first.Code, r)
			}
			seen[r] = true
		}
	}
	if len(seen) != size {
		return fmt.Errorf("stage %s: seeding covers %d ranks, want %d", first.Code, len(seen), size)
	}

	for i := 1; i < len(defs); i++ {
		prev, cur := defs[i-1], defs[i]
		used := make(map[Ref]bool)
		for g, refs := range cur.Progress {
			if g < 1 || g > cur.GroupCount {
				return fmt.Errorf("stage %s: progress group %d out of range", cur.Code, g)
			}
			if len(refs) != cur.GroupSize {
				return fmt.Errorf("stage %s: group %d has %d slots, want %d", cur.Code, g, len(refs), cur.GroupSize)
			}
			for _, ref := range refs {
				if ref.Place < 1 || ref.Place > prev.Qualifiers || ref.Group < 1 || ref.Group > prev.GroupCount || used[ref] {
					return fmt.Errorf("stage %s: reference %+v duplicated or out of range", cur.Code, ref)
				}
				used[ref] = true
			}
		}
		if len(used) != prev.Qualifiers*prev.GroupCount {
			return fmt.Errorf("stage %s: progress uses %d qualifiers, want %d", cur.Code, len(used), prev.Qualifiers*prev.GroupCount)
		}
	}
	return nil
}

// SortedGroups returns the group numbers of a seeding or progress table in ascending order.
func SortedGroups[V any](m map[int]V) []int {
	return slices.Sorted(maps.Keys(m))
}

func cloneSeeding(m map[int][]int) map[int][]int {
	if m == nil {
		return nil
	}
	out := make(map[int][]int, len(m))
	for k, v := range m {
		out[k] = slices.Clone(v)
	}
	return out
}

func cloneProgress(m map[int][]Ref) map[int][]Ref {
	if m == nil {
		return nil
	}
	out := make(map[int][]Ref, len(m))
	for k, v := range m {
		out[k] = slices.Clone(v)
	}
	return out
}
