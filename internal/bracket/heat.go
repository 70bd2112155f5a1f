package bracket

import "github.com/google/uuid"

type Heat struct {
	ID       uuid.UUID `db:"id" json:"id"`
	GroupID  uuid.UUID `db:"group_id" json:"group_id"`
	HeatNo   int       `db:"heat_no" json:"heat_no"`
	TrackNo  int       `db:"track_no" json:"track_no"`
	TieBreak bool      `db:"tie_break" json:"tie_break"`
}

type HeatResult struct {
	HeatID        uuid.UUID `db:"heat_id" json:"heat_id"`
	EntrantID     uuid.UUID `db:"entrant_id" json:"entrant_id"`
	Outcome       Outcome   `db:"outcome" json:"outcome"`
	TimeSeconds   float64   `db:"time_seconds" json:"time_seconds"`
	Laps          int       `db:"laps" json:"laps"`
	AllLaps       bool      `db:"all_laps" json:"all_laps"`
	ProjectedTime *float64  `db:"projected_time" json:"projected_time,omitempty"`
	Place         *int      `db:"place" json:"place,omitempty"`
	Points        int       `db:"points" json:"points"`
}

// HeatRow is a stored result joined with its heat key, as read back for standings.
type HeatRow struct {
	HeatResult
	GroupID  uuid.UUID `db:"group_id"`
	HeatNo   int       `db:"heat_no"`
	TrackNo  int       `db:"track_no"`
	TieBreak bool      `db:"tie_break"`
}
