package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/questline/eventhub/internal/services/eventhub/domain"
)

// PutPendingTransition persists a deferred transition.
func (s *Store) PutPendingTransition(ctx context.Context, pt domain.PendingTransition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(pt.ID) == "" {
		return fmt.Errorf("pending transition id is required")
	}
	if strings.TrimSpace(pt.PlayerID) == "" {
		return fmt.Errorf("player id is required")
	}
	if strings.TrimSpace(pt.QuestID) == "" {
		return fmt.Errorf("quest id is required")
	}

	_, err := s.q.ExecContext(ctx, `
INSERT INTO pending_transitions (id, player_id, quest_id, stage_index, kind, sensor_id, due_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	player_id = excluded.player_id,
	quest_id = excluded.quest_id,
	stage_index = excluded.stage_index,
	kind = excluded.kind,
	sensor_id = excluded.sensor_id,
	due_at = excluded.due_at
`,
		pt.ID,
		pt.PlayerID,
		pt.QuestID,
		pt.StageIndex,
		string(pt.Kind),
		pt.SensorID,
		pt.DueAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("put pending transition: %w", err)
	}
	return nil
}

// DeletePendingTransition removes a deferred transition.
func (s *Store) DeletePendingTransition(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("pending transition id is required")
	}

	if _, err := s.q.ExecContext(ctx, `DELETE FROM pending_transitions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete pending transition: %w", err)
	}
	return nil
}

// ListPendingTransitions lists deferred transitions ordered by due time.
func (s *Store) ListPendingTransitions(ctx context.Context) ([]domain.PendingTransition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx, `
SELECT id, player_id, quest_id, stage_index, kind, sensor_id, due_at
FROM pending_transitions
ORDER BY due_at, id
`)
	if err != nil {
		return nil, fmt.Errorf("list pending transitions: %w", err)
	}
	defer rows.Close()

	var pending []domain.PendingTransition
	for rows.Next() {
		var pt domain.PendingTransition
		var kind string
		var dueAt int64
		if err := rows.Scan(&pt.ID, &pt.PlayerID, &pt.QuestID, &pt.StageIndex, &kind, &pt.SensorID, &dueAt); err != nil {
			return nil, fmt.Errorf("scan pending transition: %w", err)
		}
		pt.Kind = domain.TransitionKind(kind)
		pt.DueAt = time.UnixMilli(dueAt).UTC()
		pending = append(pending, pt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending transitions: %w", err)
	}
	return pending, nil
}
