package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/questline/eventhub/internal/services/eventhub/domain"
)

// SetCooldown stamps or refreshes the cooldown entry for a quest.
func (s *Store) SetCooldown(ctx context.Context, cooldown domain.Cooldown) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(cooldown.QuestID) == "" {
		return fmt.Errorf("quest id is required")
	}

	_, err := s.q.ExecContext(ctx, `
INSERT INTO quest_cooldowns (quest_id, cooldown_until)
VALUES (?, ?)
ON CONFLICT(quest_id) DO UPDATE SET cooldown_until = excluded.cooldown_until
`, cooldown.QuestID, cooldown.CooldownUntil.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("set cooldown: %w", err)
	}
	return nil
}

// Cooldowns returns a snapshot of quest id to cooldown expiry.
func (s *Store) Cooldowns(ctx context.Context) (map[string]time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx, `SELECT quest_id, cooldown_until FROM quest_cooldowns`)
	if err != nil {
		return nil, fmt.Errorf("list cooldowns: %w", err)
	}
	defer rows.Close()

	snapshot := make(map[string]time.Time)
	for rows.Next() {
		var questID string
		var until int64
		if err := rows.Scan(&questID, &until); err != nil {
			return nil, fmt.Errorf("scan cooldown: %w", err)
		}
		snapshot[questID] = time.UnixMilli(until).UTC()
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cooldowns: %w", err)
	}
	return snapshot, nil
}
