package bracket

import (
	"time"

	"github.com/google/uuid"
)

type StageStatus string

const (
	StageActive StageStatus = "active"
	StageDone   StageStatus = "done"
)

// TieBreakTrack marks supplementary heats outside the final.
const TieBreakTrack = 99

type Stage struct {
	ID            uuid.UUID   `db:"id" json:"id"`
	TournamentID  uuid.UUID   `db:"tournament_id" json:"tournament_id"`
	Index         int         `db:"stage_index" json:"index"`
	Code          string      `db:"code" json:"code"`
	GroupSize     int         `db:"group_size" json:"group_size"`
	GroupCount    int         `db:"group_count" json:"group_count"`
	Qualifiers    int         `db:"qualifiers" json:"qualifiers"`
	HeatsPerGroup int         `db:"heats_per_group" json:"heats_per_group"`
	Tracks        int         `db:"tracks" json:"tracks"`
	Scheme        string      `db:"scheme" json:"scheme"`
	Final         bool        `db:"is_final" json:"final"`
	Status        StageStatus `db:"status" json:"status"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
}

type Group struct {
	ID      uuid.UUID `db:"id" json:"id"`
	StageID uuid.UUID `db:"stage_id" json:"stage_id"`
	Number  int       `db:"group_no" json:"number"`
}

type GroupMember struct {
	GroupID   uuid.UUID `db:"group_id" json:"group_id"`
	EntrantID uuid.UUID `db:"entrant_id" json:"entrant_id"`
	Slot      int       `db:"slot" json:"slot"`
}
