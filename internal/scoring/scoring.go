// Package scoring maps heat placements to points under the regulation schemes.
package scoring

import "github.com/AdamBeresnev/fpv-bracket/internal/bracket"

type Scheme string

const (
	Group4    Scheme = "group4"
	Group8    Scheme = "group8"
	Final4    Scheme = "final4"
	Simulator Scheme = "simulator"
)

var tables = map[Scheme]map[int]int{
	Group4:    {1: 4, 2: 3, 3: 2, 4: 1},
	Group8:    {1: 4, 2: 3, 3: 2, 4: 1, 5: 0, 6: 0, 7: 0, 8: 0},
	Final4:    {1: 3, 2: 2, 3: 1, 4: 0},
	Simulator: {1: 4, 2: 3, 3: 2, 4: 1},
}

func (s Scheme) Valid() bool {
	_, ok := tables[s]
	return ok
}

// WinBonus reports whether two or more heat wins earn an extra point.
func (s Scheme) WinBonus() bool {
	return s == Final4
}

// MaxPoints is the score for a single heat win.
func (s Scheme) MaxPoints() int {
	return tables[s][1]
}

// PointsFor returns the points for a finish place. A DNF or missing place is always worth nothing.
func PointsFor(s Scheme, place *int, dnf bool) int {
	if dnf || place == nil || *place < 1 {
		return 0
	}
	return tables[s][*place]
}

// ForStage selects the scheme for a stage once, so callers never branch on discipline strings.
func ForStage(discipline bracket.Discipline, mode bracket.ScoringMode, final bool) Scheme {
	switch {
	case discipline.IsSimulator():
		return Simulator
	case mode == bracket.ModeGroup8:
		return Group8
	case final:
		return Final4
	default:
		return Group4
	}
}
