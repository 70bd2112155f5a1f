package bracket

import "github.com/google/uuid"

// Entrant is a solo pilot, or a two-pilot team scored as a single unit.
type Entrant struct {
	ID           uuid.UUID `db:"id" json:"id"`
	TournamentID uuid.UUID `db:"tournament_id" json:"tournament_id"`
	Name         string    `db:"name" json:"name"`
	StartNumber  *int      `db:"start_number" json:"start_number,omitempty"`
	PilotA       *string   `db:"pilot_a" json:"pilot_a,omitempty"`
	PilotB       *string   `db:"pilot_b" json:"pilot_b,omitempty"`
}

// Outcome of one timed run. Pending is never persisted.
type Outcome string

const (
	OutcomeFinished Outcome = "finished"
	OutcomeDNF      Outcome = "dnf"
	OutcomePending  Outcome = "pending"
)

type QualificationResult struct {
	ID            uuid.UUID `db:"id" json:"id"`
	TournamentID  uuid.UUID `db:"tournament_id" json:"tournament_id"`
	EntrantID     uuid.UUID `db:"entrant_id" json:"entrant_id"`
	Outcome       Outcome   `db:"outcome" json:"outcome"`
	TimeSeconds   float64   `db:"time_seconds" json:"time_seconds"`
	Laps          int       `db:"laps" json:"laps"`
	AllLaps       bool      `db:"all_laps" json:"all_laps"`
	ProjectedTime *float64  `db:"projected_time" json:"projected_time,omitempty"`
}
