package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/questline/eventhub/internal/services/eventhub/domain"
	"github.com/questline/eventhub/internal/services/eventhub/storage"
)

const progressColumns = `
	player_id,
	quest_id,
	stage_index,
	name,
	text,
	trigger_type,
	backup_text_id,
	backup_time_seconds,
	playlist_name,
	current_location,
	stage_count,
	delay_seconds,
	home_office,
	npc_name,
	home_radio
`

// GetQuestProgress loads the progress record for one player.
func (s *Store) GetQuestProgress(ctx context.Context, playerID string) (domain.QuestProgress, error) {
	if err := ctx.Err(); err != nil {
		return domain.QuestProgress{}, err
	}
	if err := s.ready(); err != nil {
		return domain.QuestProgress{}, err
	}
	if strings.TrimSpace(playerID) == "" {
		return domain.QuestProgress{}, fmt.Errorf("player id is required")
	}

	row := s.q.QueryRowContext(ctx, `
SELECT `+progressColumns+`
FROM quest_progress
WHERE player_id = ?
`, playerID)
	progress, err := scanProgress(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.QuestProgress{}, storage.ErrNotFound
		}
		return domain.QuestProgress{}, fmt.Errorf("get quest progress: %w", err)
	}

	triggers, err := s.progressTriggers(ctx, playerID)
	if err != nil {
		return domain.QuestProgress{}, err
	}
	progress.TriggerIDs = triggers
	return progress, nil
}

// PutQuestProgress upserts a progress record and replaces its trigger set.
func (s *Store) PutQuestProgress(ctx context.Context, progress domain.QuestProgress) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(progress.PlayerID) == "" {
		return fmt.Errorf("player id is required")
	}
	if strings.TrimSpace(progress.QuestID) == "" {
		return fmt.Errorf("quest id is required")
	}

	return s.runAtomic(ctx, func(q dbtx) error {
		_, err := q.ExecContext(ctx, `
INSERT INTO quest_progress (`+progressColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(player_id) DO UPDATE SET
	quest_id = excluded.quest_id,
	stage_index = excluded.stage_index,
	name = excluded.name,
	text = excluded.text,
	trigger_type = excluded.trigger_type,
	backup_text_id = excluded.backup_text_id,
	backup_time_seconds = excluded.backup_time_seconds,
	playlist_name = excluded.playlist_name,
	current_location = excluded.current_location,
	stage_count = excluded.stage_count,
	delay_seconds = excluded.delay_seconds,
	home_office = excluded.home_office,
	npc_name = excluded.npc_name,
	home_radio = excluded.home_radio
`,
			progress.PlayerID,
			progress.QuestID,
			progress.StageIndex,
			progress.Name,
			progress.Text,
			progress.TriggerType,
			progress.BackupTextID,
			progress.BackupTimeSeconds,
			progress.PlaylistName,
			progress.CurrentLocation,
			progress.StageCount,
			progress.DelaySeconds,
			progress.HomeOffice,
			progress.NPCName,
			progress.HomeRadio,
		)
		if err != nil {
			return fmt.Errorf("put quest progress: %w", err)
		}

		if _, err := q.ExecContext(ctx, `DELETE FROM progress_triggers WHERE player_id = ?`, progress.PlayerID); err != nil {
			return fmt.Errorf("clear progress triggers: %w", err)
		}
		for i, triggerID := range progress.TriggerIDs {
			if _, err := q.ExecContext(ctx, `
INSERT INTO progress_triggers (player_id, position, trigger_id) VALUES (?, ?, ?)
`, progress.PlayerID, i, triggerID); err != nil {
				return fmt.Errorf("insert progress trigger: %w", err)
			}
		}
		return nil
	})
}

// DeleteQuestProgress removes a player's progress record.
func (s *Store) DeleteQuestProgress(ctx context.Context, playerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(playerID) == "" {
		return fmt.Errorf("player id is required")
	}

	return s.runAtomic(ctx, func(q dbtx) error {
		if _, err := q.ExecContext(ctx, `DELETE FROM progress_triggers WHERE player_id = ?`, playerID); err != nil {
			return fmt.Errorf("delete progress triggers: %w", err)
		}
		if _, err := q.ExecContext(ctx, `DELETE FROM quest_progress WHERE player_id = ?`, playerID); err != nil {
			return fmt.Errorf("delete quest progress: %w", err)
		}
		return nil
	})
}

// ProgressByTrigger lists records whose trigger set contains sensorID,
// filtered to one player when playerID is non-empty.
func (s *Store) ProgressByTrigger(ctx context.Context, sensorID, playerID string) ([]domain.QuestProgress, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(sensorID) == "" {
		return nil, fmt.Errorf("sensor id is required")
	}

	query := `
SELECT ` + progressColumns + `
FROM quest_progress
WHERE EXISTS (
	SELECT 1 FROM progress_triggers t
	WHERE t.player_id = quest_progress.player_id AND t.trigger_id = ?
)`
	args := []any{sensorID}
	if playerID != "" {
		query += ` AND player_id = ?`
		args = append(args, playerID)
	}
	query += ` ORDER BY player_id`

	return s.queryProgress(ctx, query, args...)
}

// ProgressByQuestIn lists records whose quest id is in the given set.
func (s *Store) ProgressByQuestIn(ctx context.Context, questIDs []string) ([]domain.QuestProgress, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	if len(questIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(questIDs)), ", ")
	args := make([]any, 0, len(questIDs))
	for _, id := range questIDs {
		args = append(args, id)
	}
	query := `
SELECT ` + progressColumns + `
FROM quest_progress
WHERE quest_id IN (` + placeholders + `)
ORDER BY player_id`

	return s.queryProgress(ctx, query, args...)
}

func (s *Store) queryProgress(ctx context.Context, query string, args ...any) ([]domain.QuestProgress, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query quest progress: %w", err)
	}
	defer rows.Close()

	var records []domain.QuestProgress
	for rows.Next() {
		progress, err := scanProgress(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan quest progress: %w", err)
		}
		records = append(records, progress)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quest progress: %w", err)
	}

	for i := range records {
		triggers, err := s.progressTriggers(ctx, records[i].PlayerID)
		if err != nil {
			return nil, err
		}
		records[i].TriggerIDs = triggers
	}
	return records, nil
}

func (s *Store) progressTriggers(ctx context.Context, playerID string) ([]string, error) {
	rows, err := s.q.QueryContext(ctx, `
SELECT trigger_id FROM progress_triggers WHERE player_id = ? ORDER BY position
`, playerID)
	if err != nil {
		return nil, fmt.Errorf("list progress triggers: %w", err)
	}
	defer rows.Close()

	var triggers []string
	for rows.Next() {
		var triggerID string
		if err := rows.Scan(&triggerID); err != nil {
			return nil, fmt.Errorf("scan progress trigger: %w", err)
		}
		triggers = append(triggers, triggerID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate progress triggers: %w", err)
	}
	return triggers, nil
}

func scanProgress(scan func(dest ...any) error) (domain.QuestProgress, error) {
	var progress domain.QuestProgress
	err := scan(
		&progress.PlayerID,
		&progress.QuestID,
		&progress.StageIndex,
		&progress.Name,
		&progress.Text,
		&progress.TriggerType,
		&progress.BackupTextID,
		&progress.BackupTimeSeconds,
		&progress.PlaylistName,
		&progress.CurrentLocation,
		&progress.StageCount,
		&progress.DelaySeconds,
		&progress.HomeOffice,
		&progress.NPCName,
		&progress.HomeRadio,
	)
	return progress, err
}
