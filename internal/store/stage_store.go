package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/AdamBeresnev/fpv-bracket/internal/bracket"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// MemberRow is a group member joined with its group number and entrant details.
type MemberRow struct {
	GroupID     uuid.UUID `db:"group_id"`
	GroupNo     int       `db:"group_no"`
	EntrantID   uuid.UUID `db:"entrant_id"`
	Slot        int       `db:"slot"`
	Name        string    `db:"name"`
	StartNumber *int      `db:"start_number"`
}

func (s *TournamentStore) CreateStage(ctx context.Context, e sqlx.ExtContext, stage *bracket.Stage) error {
	_, err := sqlx.NamedExecContext(ctx, e, `INSERT INTO stages (id, tournament_id, stage_index, code, group_size, group_count,
            qualifiers, heats_per_group, tracks, scheme, is_final, status, created_at)
        VALUES (:id, :tournament_id, :stage_index, :code, :group_size, :group_count,
            :qualifiers, :heats_per_group, :tracks, :scheme, :is_final, :status, :created_at)`, stage)
	return err
}

func (s *TournamentStore) GetStage(ctx context.Context, q sqlx.QueryerContext, id uuid.UUID) (*bracket.Stage, error) {
	var stage bracket.Stage
	if err := sqlx.GetContext(ctx, q, &stage, "SELECT * FROM stages WHERE id = ?", id); err != nil {
		return nil, err
	}
	return &stage, nil
}

func (s *TournamentStore) GetStages(ctx context.Context, q sqlx.QueryerContext, tournamentID uuid.UUID) ([]bracket.Stage, error) {
	var stages []bracket.Stage
	err := sqlx.SelectContext(ctx, q, &stages, "SELECT * FROM stages WHERE tournament_id = ? ORDER BY stage_index ASC", tournamentID)
	return stages, err
}

// GetActiveStage returns the highest-index active stage, or nil when the tournament has none.
func (s *TournamentStore) GetActiveStage(ctx context.Context, q sqlx.QueryerContext, tournamentID uuid.UUID) (*bracket.Stage, error) {
	var stage bracket.Stage
	err := sqlx.GetContext(ctx, q, &stage, `SELECT * FROM stages WHERE tournament_id = ? AND status = ?
        ORDER BY stage_index DESC LIMIT 1`, tournamentID, bracket.StageActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &stage, nil
}

func (s *TournamentStore) UpdateStageStatus(ctx context.Context, e sqlx.ExtContext, id uuid.UUID, status bracket.StageStatus) error {
	res, err := e.ExecContext(ctx, "UPDATE stages SET status = ? WHERE id = ?", status, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(res)
}

// DeleteStage removes a stage with its groups, members, heats and results.
func (s *TournamentStore) DeleteStage(ctx context.Context, e sqlx.ExtContext, id uuid.UUID) error {
	statements := []string{
		`DELETE FROM heat_results WHERE heat_id IN (
            SELECT h.id FROM heats h JOIN stage_groups g ON g.id = h.group_id WHERE g.stage_id = ?)`,
		`DELETE FROM heats WHERE group_id IN (SELECT id FROM stage_groups WHERE stage_id = ?)`,
		`DELETE FROM group_members WHERE group_id IN (SELECT id FROM stage_groups WHERE stage_id = ?)`,
		`DELETE FROM stage_groups WHERE stage_id = ?`,
	}
	for _, stmt := range statements {
		if _, err := e.ExecContext(ctx, stmt, id); err != nil {
			return err
		}
	}
	res, err := e.ExecContext(ctx, "DELETE FROM stages WHERE id = ?", id)
	if err != nil {
		return err
	}
	return checkAffectedRows(res)
}

func (s *TournamentStore) CreateGroups(ctx context.Context, e sqlx.ExtContext, groups []bracket.Group) error {
	if len(groups) == 0 {
		return nil
	}
	_, err := sqlx.NamedExecContext(ctx, e, `INSERT INTO stage_groups (id, stage_id, group_no) VALUES (:id, :stage_id, :group_no)`, groups)
	return err
}

func (s *TournamentStore) GetGroups(ctx context.Context, q sqlx.QueryerContext, stageID uuid.UUID) ([]bracket.Group, error) {
	var groups []bracket.Group
	err := sqlx.SelectContext(ctx, q, &groups, "SELECT * FROM stage_groups WHERE stage_id = ? ORDER BY group_no ASC", stageID)
	return groups, err
}

func (s *TournamentStore) GetGroup(ctx context.Context, q sqlx.QueryerContext, stageID uuid.UUID, groupNo int) (*bracket.Group, error) {
	var group bracket.Group
	if err := sqlx.GetContext(ctx, q, &group, "SELECT * FROM stage_groups WHERE stage_id = ? AND group_no = ?", stageID, groupNo); err != nil {
		return nil, err
	}
	return &group, nil
}

func (s *TournamentStore) AddMembers(ctx context.Context, e sqlx.ExtContext, members []bracket.GroupMember) error {
	if len(members) == 0 {
		return nil
	}
	_, err := sqlx.NamedExecContext(ctx, e, `INSERT INTO group_members (group_id, entrant_id, slot) VALUES (:group_id, :entrant_id, :slot)`, members)
	return err
}

func (s *TournamentStore) GetMembers(ctx context.Context, q sqlx.QueryerContext, stageID uuid.UUID) ([]MemberRow, error) {
	var rows []MemberRow
	err := sqlx.SelectContext(ctx, q, &rows, `
        SELECT gm.group_id, g.group_no, gm.entrant_id, gm.slot, e.name, e.start_number
        FROM stage_groups g
        JOIN group_members gm ON gm.group_id = g.id
        JOIN entrants e ON e.id = gm.entrant_id
        WHERE g.stage_id = ?
        ORDER BY g.group_no ASC, gm.slot ASC`, stageID)
	return rows, err
}

// SaveHeat creates the heat for (group, heat_no, track_no) if missing and replaces its results.
func (s *TournamentStore) SaveHeat(ctx context.Context, e sqlx.ExtContext, heat *bracket.Heat, results []bracket.HeatResult) error {
	var existing bracket.Heat
	err := sqlx.GetContext(ctx, e, &existing, "SELECT * FROM heats WHERE group_id = ? AND heat_no = ? AND track_no = ?",
		heat.GroupID, heat.HeatNo, heat.TrackNo)
	switch {
	case err == nil:
		heat.ID = existing.ID
		if _, err := e.ExecContext(ctx, "UPDATE heats SET tie_break = ? WHERE id = ?", heat.TieBreak, heat.ID); err != nil {
			return err
		}
		if _, err := e.ExecContext(ctx, "DELETE FROM heat_results WHERE heat_id = ?", heat.ID); err != nil {
			return err
		}
	case errors.Is(err, sql.ErrNoRows):
		if heat.ID == uuid.Nil {
			heat.ID = uuid.New()
		}
		if _, err := sqlx.NamedExecContext(ctx, e, `INSERT INTO heats (id, group_id, heat_no, track_no, tie_break)
            VALUES (:id, :group_id, :heat_no, :track_no, :tie_break)`, heat); err != nil {
			return err
		}
	default:
		return err
	}

	if len(results) == 0 {
		return nil
	}
	for i := range results {
		results[i].HeatID = heat.ID
	}
	_, err = sqlx.NamedExecContext(ctx, e, `INSERT INTO heat_results
            (heat_id, entrant_id, outcome, time_seconds, laps, all_laps, projected_time, place, points)
        VALUES (:heat_id, :entrant_id, :outcome, :time_seconds, :laps, :all_laps, :projected_time, :place, :points)`, results)
	return err
}

// DeleteTieBreakHeats drops a group's supplementary heats; they are stale once a regular heat changes.
func (s *TournamentStore) DeleteTieBreakHeats(ctx context.Context, e sqlx.ExtContext, groupID uuid.UUID) error {
	if _, err := e.ExecContext(ctx, `DELETE FROM heat_results WHERE heat_id IN (
            SELECT id FROM heats WHERE group_id = ? AND tie_break = 1)`, groupID); err != nil {
		return err
	}
	_, err := e.ExecContext(ctx, "DELETE FROM heats WHERE group_id = ? AND tie_break = 1", groupID)
	return err
}

func (s *TournamentStore) GetHeats(ctx context.Context, q sqlx.QueryerContext, groupID uuid.UUID) ([]bracket.Heat, error) {
	var heats []bracket.Heat
	err := sqlx.SelectContext(ctx, q, &heats, "SELECT * FROM heats WHERE group_id = ? ORDER BY heat_no ASC, track_no ASC", groupID)
	return heats, err
}

// GetHeatRows returns every stored result of a stage together with its heat key.
func (s *TournamentStore) GetHeatRows(ctx context.Context, q sqlx.QueryerContext, stageID uuid.UUID) ([]bracket.HeatRow, error) {
	var rows []bracket.HeatRow
	err := sqlx.SelectContext(ctx, q, &rows, `
        SELECT hr.*, h.group_id, h.heat_no, h.track_no, h.tie_break
        FROM heat_results hr
        JOIN heats h ON h.id = hr.heat_id
        JOIN stage_groups g ON g.id = h.group_id
        WHERE g.stage_id = ?
        ORDER BY g.group_no ASC, h.heat_no ASC, h.track_no ASC, hr.place ASC`, stageID)
	return rows, err
}
