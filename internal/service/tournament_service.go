package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/AdamBeresnev/fpv-bracket/internal/bracket"
	"github.com/AdamBeresnev/fpv-bracket/internal/seeding"
	"github.com/AdamBeresnev/fpv-bracket/internal/utils"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const (
	maxEntrantName = 50
	maxDemoFill    = 64
)

type TournamentService struct {
	engine
}

func NewTournamentService(d Deps) *TournamentService {
	return &TournamentService{engine: newEngine(d)}
}

type TournamentInput struct {
	Name           string              `json:"name"`
	Discipline     bracket.Discipline  `json:"discipline"`
	TimeLimit      float64             `json:"time_limit"`
	RegulationLaps int                 `json:"regulation_laps"`
	ScoringMode    bracket.ScoringMode `json:"scoring_mode"`
}

// EntrantInput describes a solo pilot, or a team when both pilot names are set.
type EntrantInput struct {
	Name   string `json:"name"`
	PilotA string `json:"pilot_a"`
	PilotB string `json:"pilot_b"`
}

type Overview struct {
	Tournament    *bracket.Tournament `json:"tournament"`
	Entrants      int                 `json:"entrants"`
	Ranked        int                 `json:"ranked"`
	BracketSize   int                 `json:"bracket_size"`
	PlannedStages []string            `json:"planned_stages"`
	Stages        []bracket.Stage     `json:"stages"`
	ActiveStage   *bracket.Stage      `json:"active_stage,omitempty"`
	StagesDone    int                 `json:"stages_done"`
}

func (s *TournamentService) CreateTournament(ctx context.Context, in TournamentInput) (uuid.UUID, error) {
	name := strings.TrimSpace(in.Name)
	switch {
	case name == "":
		return uuid.Nil, validationf("tournament name is required")
	case !in.Discipline.Valid():
		return uuid.Nil, validationf("unknown discipline %q", in.Discipline)
	case !in.ScoringMode.Valid():
		return uuid.Nil, validationf("unknown scoring mode %q", in.ScoringMode)
	case in.RegulationLaps < 1:
		return uuid.Nil, validationf("regulation laps must be at least 1")
	case in.TimeLimit < 0:
		return uuid.Nil, validationf("time limit must not be negative")
	}

	tournament := bracket.Tournament{
		ID:             uuid.New(),
		Name:           name,
		Discipline:     in.Discipline,
		TimeLimit:      in.TimeLimit,
		RegulationLaps: in.RegulationLaps,
		ScoringMode:    in.ScoringMode,
		Status:         bracket.TournamentSetup,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.CreateTournament(ctx, s.db, &tournament); err != nil {
		return uuid.Nil, fmt.Errorf("failed to create tournament: %w", err)
	}

	slog.Info("tournament created", "tournament_id", tournament.ID, "discipline", tournament.Discipline)
	return tournament.ID, nil
}

func (s *TournamentService) GetTournament(ctx context.Context, id uuid.UUID) (*bracket.Tournament, error) {
	defer s.locks.RLock(id)()
	return s.tournament(ctx, s.db, id)
}

func (s *TournamentService) ListTournaments(ctx context.Context) ([]bracket.Tournament, error) {
	return s.store.ListTournaments(ctx, s.db)
}

func (s *TournamentService) GetEntrants(ctx context.Context, tournamentID uuid.UUID) ([]bracket.Entrant, error) {
	defer s.locks.RLock(tournamentID)()

	if _, err := s.tournament(ctx, s.db, tournamentID); err != nil {
		return nil, err
	}
	return s.store.GetEntrants(ctx, s.db, tournamentID)
}

func (s *TournamentService) AddEntrants(ctx context.Context, tournamentID uuid.UUID, inputs []EntrantInput) ([]bracket.Entrant, error) {
	defer s.locks.Lock(tournamentID)()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	entrants, err := s.addEntrants(ctx, tx, tournamentID, inputs)
	if err != nil {
		return nil, err
	}
	if err := commit(tx); err != nil {
		return nil, err
	}

	s.publish(EventTournamentUpdated, tournamentID, nil)
	return entrants, nil
}

// DemoFill adds n placeholder entrants named "<prefix> 1".."<prefix> n" to an empty tournament.
func (s *TournamentService) DemoFill(ctx context.Context, tournamentID uuid.UUID, n int, prefix string) ([]bracket.Entrant, error) {
	if n < 1 || n > maxDemoFill {
		return nil, validationf("demo fill count must be between 1 and %d", maxDemoFill)
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "Pilot"
	}

	defer s.locks.Lock(tournamentID)()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	existing, err := s.store.GetEntrants(ctx, tx, tournamentID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, preconditionf("tournament already has %d entrants", len(existing))
	}

	inputs := make([]EntrantInput, n)
	for i := range inputs {
		inputs[i].Name = fmt.Sprintf("%s %d", prefix, i+1)
		inputs[i].PilotA = fmt.Sprintf("%s %dA", prefix, i+1)
		inputs[i].PilotB = fmt.Sprintf("%s %dB", prefix, i+1)
	}

	entrants, err := s.addEntrants(ctx, tx, tournamentID, inputs)
	if err != nil {
		return nil, err
	}
	if err := commit(tx); err != nil {
		return nil, err
	}

	s.publish(EventTournamentUpdated, tournamentID, nil)
	return entrants, nil
}

func (s *TournamentService) addEntrants(ctx context.Context, tx *sqlx.Tx, tournamentID uuid.UUID, inputs []EntrantInput) ([]bracket.Entrant, error) {
	tournament, err := s.tournament(ctx, tx, tournamentID)
	if err != nil {
		return nil, err
	}
	if err := requireStatus(tournament, bracket.TournamentSetup); err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		return nil, validationf("no entrants given")
	}

	existing, err := s.store.GetEntrants(ctx, tx, tournamentID)
	if err != nil {
		return nil, err
	}
	taken := make(map[string]bool, len(existing)+len(inputs))
	for _, e := range existing {
		taken[strings.ToLower(e.Name)] = true
	}

	team := tournament.Discipline == bracket.SimTeam
	entrants := make([]bracket.Entrant, 0, len(inputs))
	for _, in := range inputs {
		name := strings.TrimSpace(in.Name)
		if name == "" {
			return nil, validationf("entrant name is required")
		}
		if utf8.RuneCountInString(name) > maxEntrantName {
			return nil, validationf("entrant name %q is longer than %d characters", name, maxEntrantName)
		}
		if taken[strings.ToLower(name)] {
			return nil, validationf("duplicate entrant name %q", name)
		}
		taken[strings.ToLower(name)] = true

		e := bracket.Entrant{ID: uuid.New(), TournamentID: tournamentID, Name: name}
		if team {
			e.PilotA = utils.StringOrNil(in.PilotA)
			e.PilotB = utils.StringOrNil(in.PilotB)
			if e.PilotA == nil || e.PilotB == nil {
				return nil, validationf("team %q needs two pilots", name)
			}
		}
		entrants = append(entrants, e)
	}

	if err := s.store.CreateEntrants(ctx, tx, entrants); err != nil {
		return nil, fmt.Errorf("failed to create entrants: %w", err)
	}
	return entrants, nil
}

// DrawStartNumbers assigns a fresh random permutation of 1..N. Numbers are frozen once qualification starts.
func (s *TournamentService) DrawStartNumbers(ctx context.Context, tournamentID uuid.UUID) error {
	defer s.locks.Lock(tournamentID)()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	tournament, err := s.tournament(ctx, tx, tournamentID)
	if err != nil {
		return err
	}
	if err := requireStatus(tournament, bracket.TournamentSetup); err != nil {
		return err
	}

	entrants, err := s.store.GetEntrants(ctx, tx, tournamentID)
	if err != nil {
		return err
	}
	if len(entrants) == 0 {
		return preconditionf("no entrants to draw")
	}
	if err := s.store.SetStartNumbers(ctx, tx, drawNumbers(entrants)); err != nil {
		return fmt.Errorf("failed to set start numbers: %w", err)
	}
	if err := commit(tx); err != nil {
		return err
	}

	s.publish(EventTournamentUpdated, tournamentID, nil)
	return nil
}

func drawNumbers(entrants []bracket.Entrant) map[uuid.UUID]int {
	perm := rand.Perm(len(entrants))
	numbers := make(map[uuid.UUID]int, len(entrants))
	for i, e := range entrants {
		numbers[e.ID] = perm[i] + 1
	}
	return numbers
}

func (s *TournamentService) StartQualification(ctx context.Context, tournamentID uuid.UUID) error {
	defer s.locks.Lock(tournamentID)()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	tournament, err := s.tournament(ctx, tx, tournamentID)
	if err != nil {
		return err
	}
	if err := requireStatus(tournament, bracket.TournamentSetup); err != nil {
		return err
	}

	entrants, err := s.store.GetEntrants(ctx, tx, tournamentID)
	if err != nil {
		return err
	}
	if len(entrants) == 0 {
		return preconditionf("qualification needs at least one entrant")
	}
	for _, e := range entrants {
		if e.StartNumber == nil {
			if err := s.store.SetStartNumbers(ctx, tx, drawNumbers(entrants)); err != nil {
				return fmt.Errorf("failed to set start numbers: %w", err)
			}
			break
		}
	}

	if err := s.store.UpdateTournamentStatus(ctx, tx, tournamentID, bracket.TournamentQualification); err != nil {
		return err
	}
	if err := commit(tx); err != nil {
		return err
	}

	slog.Info("qualification started", "tournament_id", tournamentID, "entrants", len(entrants))
	s.publish(EventTournamentUpdated, tournamentID, nil)
	return nil
}

// TournamentOverview summarizes progress: planned stage codes against the stages opened so far.
func (s *TournamentService) TournamentOverview(ctx context.Context, tournamentID uuid.UUID) (*Overview, error) {
	defer s.locks.RLock(tournamentID)()

	tournament, err := s.tournament(ctx, s.db, tournamentID)
	if err != nil {
		return nil, err
	}
	entrants, err := s.store.GetEntrants(ctx, s.db, tournamentID)
	if err != nil {
		return nil, err
	}
	results, err := s.store.GetQualificationResults(ctx, s.db, tournamentID)
	if err != nil {
		return nil, err
	}
	stages, err := s.store.GetStages(ctx, s.db, tournamentID)
	if err != nil {
		return nil, err
	}

	ov := &Overview{
		Tournament: tournament,
		Entrants:   len(entrants),
		Ranked:     len(results),
		Stages:     stages,
	}
	if ov.Ranked > 0 {
		ov.BracketSize = seeding.BracketSize(ov.Ranked)
		plan, err := seeding.Plan(tournament.Discipline, tournament.ScoringMode, ov.BracketSize)
		if err != nil {
			return nil, err
		}
		for _, d := range plan {
			ov.PlannedStages = append(ov.PlannedStages, d.Code)
		}
	}
	for i := range stages {
		switch stages[i].Status {
		case bracket.StageDone:
			ov.StagesDone++
		case bracket.StageActive:
			ov.ActiveStage = &stages[i]
		}
	}
	return ov, nil
}
