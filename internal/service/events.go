package service

import "github.com/google/uuid"

type EventType string

const (
	EventTournamentUpdated    EventType = "tournament_updated"
	EventQualificationUpdated EventType = "qualification_updated"
	EventHeatRecorded         EventType = "heat_recorded"
	EventStageOpened          EventType = "stage_opened"
	EventStageRolledBack      EventType = "stage_rolled_back"
	EventTournamentFinished   EventType = "tournament_finished"
)

// Event is published after a mutation commits.
type Event struct {
	Type         EventType  `json:"type"`
	TournamentID uuid.UUID  `json:"tournament_id"`
	StageID      *uuid.UUID `json:"stage_id,omitempty"`
}

// Publisher receives committed events. Implementations must not block.
type Publisher interface {
	Publish(Event)
}
