package service

import (
	"context"
	"slices"

	"github.com/AdamBeresnev/fpv-bracket/internal/bracket"
	"github.com/AdamBeresnev/fpv-bracket/internal/ranking"
	"github.com/AdamBeresnev/fpv-bracket/internal/scoring"
	"github.com/AdamBeresnev/fpv-bracket/internal/seeding"
	"github.com/AdamBeresnev/fpv-bracket/internal/store"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type GroupStandings struct {
	GroupNo   int                `json:"group"`
	Standings []ranking.Standing `json:"standings"`
}

type heatKey struct {
	heatNo, trackNo int
}

// stageView is a stage with everything needed to rank it, read in one pass.
type stageView struct {
	stage   *bracket.Stage
	groups  []bracket.Group
	members map[int][]store.MemberRow
	rows    map[int][]bracket.HeatRow
	seeds   map[uuid.UUID]int
}

func (e *engine) loadStage(ctx context.Context, q sqlx.QueryerContext, st *bracket.Stage) (*stageView, error) {
	groups, err := e.store.GetGroups(ctx, q, st.ID)
	if err != nil {
		return nil, err
	}
	members, err := e.store.GetMembers(ctx, q, st.ID)
	if err != nil {
		return nil, err
	}
	rows, err := e.store.GetHeatRows(ctx, q, st.ID)
	if err != nil {
		return nil, err
	}
	ranked, err := e.rankQualification(ctx, q, st.TournamentID)
	if err != nil {
		return nil, err
	}

	v := &stageView{
		stage:   st,
		groups:  groups,
		members: make(map[int][]store.MemberRow, len(groups)),
		rows:    make(map[int][]bracket.HeatRow, len(groups)),
		seeds:   seedsOf(ranked),
	}
	groupNo := make(map[uuid.UUID]int, len(groups))
	for _, g := range groups {
		groupNo[g.ID] = g.Number
	}
	for _, m := range members {
		v.members[m.GroupNo] = append(v.members[m.GroupNo], m)
	}
	for _, r := range rows {
		no := groupNo[r.GroupID]
		v.rows[no] = append(v.rows[no], r)
	}
	return v, nil
}

func (v *stageView) scheme() scoring.Scheme {
	return scoring.Scheme(v.stage.Scheme)
}

func (v *stageView) group(no int) (bracket.Group, bool) {
	for _, g := range v.groups {
		if g.Number == no {
			return g, true
		}
	}
	return bracket.Group{}, false
}

// standings ranks one group. Results stored under skip are ignored, which lets a tie-break heat be re-entered.
func (v *stageView) standings(groupNo int, skip *heatKey) []ranking.Standing {
	members := make([]ranking.Member, 0, len(v.members[groupNo]))
	for _, m := range v.members[groupNo] {
		members = append(members, ranking.Member{EntrantID: m.EntrantID, Seed: v.seeds[m.EntrantID], Name: m.Name})
	}

	entries := make([]ranking.HeatEntry, 0, len(v.rows[groupNo]))
	for _, r := range v.rows[groupNo] {
		if skip != nil && r.HeatNo == skip.heatNo && r.TrackNo == skip.trackNo {
			continue
		}
		entries = append(entries, ranking.HeatEntry{
			HeatID:    r.HeatID,
			HeatNo:    r.HeatNo,
			TrackNo:   r.TrackNo,
			TieBreak:  r.TieBreak,
			EntrantID: r.EntrantID,
			Outcome:   r.Outcome,
			Place:     r.Place,
			Points:    r.Points,
		})
	}
	return ranking.Standings(members, entries, v.scheme(), v.stage.Qualifiers)
}

func (v *stageView) allStandings() []GroupStandings {
	out := make([]GroupStandings, 0, len(v.groups))
	for _, g := range v.groups {
		out = append(out, GroupStandings{GroupNo: g.Number, Standings: v.standings(g.Number, nil)})
	}
	return out
}

// missingHeats lists the regular (heat, track) combinations of a group that have no results yet.
func (v *stageView) missingHeats(groupNo int) []MissingItem {
	if len(v.members[groupNo]) == 0 {
		return nil
	}
	recorded := make(map[heatKey]bool)
	for _, r := range v.rows[groupNo] {
		if !r.TieBreak {
			recorded[heatKey{r.HeatNo, r.TrackNo}] = true
		}
	}

	var missing []MissingItem
	for _, c := range seeding.Combos(v.stage.HeatsPerGroup, v.stage.Tracks) {
		if !recorded[heatKey{c[0], c[1]}] {
			missing = append(missing, MissingItem{GroupNo: groupNo, HeatNo: c[0], TrackNo: c[1]})
		}
	}
	return missing
}

// ties reports the unresolved tied blocks of a group whose regular heats are all recorded.
func (v *stageView) ties(groupNo int, skip *heatKey) [][]uuid.UUID {
	if len(v.members[groupNo]) == 0 || len(v.missingHeats(groupNo)) > 0 {
		return nil
	}
	return ranking.BoundaryTies(v.standings(groupNo, skip), v.stage.Qualifiers, v.stage.Final)
}

func (v *stageView) allTies() [][]uuid.UUID {
	var ties [][]uuid.UUID
	for _, g := range v.groups {
		ties = append(ties, v.ties(g.Number, nil)...)
	}
	return ties
}

// missing lists every outstanding heat of the stage; simulator stages also wait on their boundary ties.
func (v *stageView) missing() []MissingItem {
	var missing []MissingItem
	for _, g := range v.groups {
		missing = append(missing, v.missingHeats(g.Number)...)
		if v.scheme() != scoring.Simulator {
			continue
		}
		for _, block := range v.ties(g.Number, nil) {
			heatNo, trackNo := v.nextTieBreak(g.Number)
			missing = append(missing, MissingItem{GroupNo: g.Number, HeatNo: heatNo, TrackNo: trackNo, Ties: block})
		}
	}
	return missing
}

func (v *stageView) tieBreakHeats(groupNo int) map[int]bool {
	heats := make(map[int]bool)
	for _, r := range v.rows[groupNo] {
		if r.TieBreak {
			heats[r.HeatNo] = true
		}
	}
	return heats
}

// nextTieBreak is the key of the next supplementary heat: in the final the next heat number on track 1,
// elsewhere the next number on the tie-break track.
func (v *stageView) nextTieBreak(groupNo int) (heatNo, trackNo int) {
	last := 0
	if v.stage.Final {
		last = v.stage.HeatsPerGroup
	}
	for h := range v.tieBreakHeats(groupNo) {
		last = max(last, h)
	}
	if v.stage.Final {
		return last + 1, 1
	}
	return last + 1, bracket.TieBreakTrack
}

// isTieBreakKey decides whether (heat, track) addresses a supplementary heat of the group.
// It returns false with ok=false when the key is neither a regular nor a tie-break heat.
func (v *stageView) isTieBreakKey(groupNo, heatNo, trackNo int) (tieBreak, ok bool) {
	st := v.stage
	if heatNo >= 1 && heatNo <= st.HeatsPerGroup && trackNo >= 1 && trackNo <= st.Tracks {
		return false, true
	}
	if st.Final {
		if trackNo != 1 || heatNo <= st.HeatsPerGroup {
			return false, false
		}
		next, _ := v.nextTieBreak(groupNo)
		return true, heatNo == next || v.tieBreakHeats(groupNo)[heatNo]
	}
	return true, trackNo == bracket.TieBreakTrack && heatNo >= 1
}

func memberIDs(rows []store.MemberRow) []uuid.UUID {
	ids := make([]uuid.UUID, len(rows))
	for i, m := range rows {
		ids[i] = m.EntrantID
	}
	return ids
}

func sameSet(a, b []uuid.UUID) bool {
	if len(a) != len(b) {
		return false
	}
	x, y := slices.Clone(a), slices.Clone(b)
	cmpID := func(p, q uuid.UUID) int { return slices.Compare(p[:], q[:]) }
	slices.SortFunc(x, cmpID)
	slices.SortFunc(y, cmpID)
	return slices.Equal(x, y)
}
