package bracket

import (
	"time"

	"github.com/google/uuid"
)

type TournamentStatus string

const (
	TournamentSetup         TournamentStatus = "setup"
	TournamentQualification TournamentStatus = "qualification"
	TournamentBracket       TournamentStatus = "bracket"
	TournamentFinished      TournamentStatus = "finished"
)

// Discipline picks the scoring policy and heat layout of every stage.
type Discipline string

const (
	DroneIndividual Discipline = "drone"
	SimIndividual   Discipline = "sim"
	SimTeam         Discipline = "sim_team"
)

func (d Discipline) Valid() bool {
	switch d {
	case DroneIndividual, SimIndividual, SimTeam:
		return true
	}
	return false
}

func (d Discipline) IsSimulator() bool {
	return d == SimIndividual || d == SimTeam
}

// ScoringMode selects the group width. Drone tournaments in group4 mode run the final under final4 points.
type ScoringMode string

const (
	ModeGroup4 ScoringMode = "group4"
	ModeGroup8 ScoringMode = "group8"
)

func (m ScoringMode) Valid() bool {
	return m == ModeGroup4 || m == ModeGroup8
}

func (m ScoringMode) GroupWidth() int {
	if m == ModeGroup8 {
		return 8
	}
	return 4
}

type Tournament struct {
	ID             uuid.UUID        `db:"id" json:"id"`
	Name           string           `db:"name" json:"name"`
	Discipline     Discipline       `db:"discipline" json:"discipline"`
	TimeLimit      float64          `db:"time_limit" json:"time_limit"`
	RegulationLaps int              `db:"regulation_laps" json:"regulation_laps"`
	ScoringMode    ScoringMode      `db:"scoring_mode" json:"scoring_mode"`
	Status         TournamentStatus `db:"status" json:"status"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
}
