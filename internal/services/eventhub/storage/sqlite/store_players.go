package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/questline/eventhub/internal/services/eventhub/domain"
	"github.com/questline/eventhub/internal/services/eventhub/storage"
)

// GetPlayerState loads one player's live state including the completed set.
func (s *Store) GetPlayerState(ctx context.Context, id string) (domain.PlayerState, error) {
	if err := ctx.Err(); err != nil {
		return domain.PlayerState{}, err
	}
	if err := s.ready(); err != nil {
		return domain.PlayerState{}, err
	}
	if strings.TrimSpace(id) == "" {
		return domain.PlayerState{}, fmt.Errorf("player id is required")
	}

	var state domain.PlayerState
	row := s.q.QueryRowContext(ctx, `
SELECT id, current_location, quest_active, feedback_count
FROM players
WHERE id = ?
`, id)
	if err := row.Scan(&state.ID, &state.CurrentLocation, &state.QuestActive, &state.FeedbackCount); err != nil {
		if err == sql.ErrNoRows {
			return domain.PlayerState{}, storage.ErrNotFound
		}
		return domain.PlayerState{}, fmt.Errorf("get player state: %w", err)
	}

	completed, err := s.questsComplete(ctx, id)
	if err != nil {
		return domain.PlayerState{}, err
	}
	state.QuestsComplete = completed
	return state, nil
}

// CreatePlayerState inserts a fresh player record. It fails with
// ErrAlreadyExists when the player is already known.
func (s *Store) CreatePlayerState(ctx context.Context, state domain.PlayerState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(state.ID) == "" {
		return fmt.Errorf("player id is required")
	}

	_, err := s.q.ExecContext(ctx, `
INSERT INTO players (id, current_location, quest_active, feedback_count)
VALUES (?, ?, ?, ?)
`, state.ID, state.CurrentLocation, state.QuestActive, state.FeedbackCount)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("create player state: %w", err)
	}
	return nil
}

// PutPlayerState upserts a player record. The completed set is managed
// separately through AddQuestComplete and is left untouched.
func (s *Store) PutPlayerState(ctx context.Context, state domain.PlayerState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(state.ID) == "" {
		return fmt.Errorf("player id is required")
	}

	_, err := s.q.ExecContext(ctx, `
INSERT INTO players (id, current_location, quest_active, feedback_count)
VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	current_location = excluded.current_location,
	quest_active = excluded.quest_active,
	feedback_count = excluded.feedback_count
`, state.ID, state.CurrentLocation, state.QuestActive, state.FeedbackCount)
	if err != nil {
		return fmt.Errorf("put player state: %w", err)
	}
	return nil
}

// DeletePlayerState removes a player record and its completed set.
func (s *Store) DeletePlayerState(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("player id is required")
	}

	return s.runAtomic(ctx, func(q dbtx) error {
		if _, err := q.ExecContext(ctx, `DELETE FROM player_completions WHERE player_id = ?`, id); err != nil {
			return fmt.Errorf("delete player completions: %w", err)
		}
		if _, err := q.ExecContext(ctx, `DELETE FROM players WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete player state: %w", err)
		}
		return nil
	})
}

// AddQuestComplete merges a quest id into the player's completed set.
func (s *Store) AddQuestComplete(ctx context.Context, playerID, questID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(playerID) == "" {
		return fmt.Errorf("player id is required")
	}
	if strings.TrimSpace(questID) == "" {
		return fmt.Errorf("quest id is required")
	}

	_, err := s.q.ExecContext(ctx, `
INSERT OR IGNORE INTO player_completions (player_id, quest_id) VALUES (?, ?)
`, playerID, questID)
	if err != nil {
		return fmt.Errorf("add quest complete: %w", err)
	}
	return nil
}

// PlayersAtLocation lists players whose current location equals location.
func (s *Store) PlayersAtLocation(ctx context.Context, location string) ([]domain.PlayerState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(location) == "" {
		return nil, fmt.Errorf("location is required")
	}

	rows, err := s.q.QueryContext(ctx, `
SELECT id, current_location, quest_active, feedback_count
FROM players
WHERE current_location = ?
ORDER BY id
`, location)
	if err != nil {
		return nil, fmt.Errorf("players at location: %w", err)
	}
	defer rows.Close()

	var states []domain.PlayerState
	for rows.Next() {
		var state domain.PlayerState
		if err := rows.Scan(&state.ID, &state.CurrentLocation, &state.QuestActive, &state.FeedbackCount); err != nil {
			return nil, fmt.Errorf("scan player state: %w", err)
		}
		states = append(states, state)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate player states: %w", err)
	}

	for i := range states {
		completed, err := s.questsComplete(ctx, states[i].ID)
		if err != nil {
			return nil, err
		}
		states[i].QuestsComplete = completed
	}
	return states, nil
}

func (s *Store) questsComplete(ctx context.Context, playerID string) ([]string, error) {
	rows, err := s.q.QueryContext(ctx, `
SELECT quest_id FROM player_completions WHERE player_id = ? ORDER BY quest_id
`, playerID)
	if err != nil {
		return nil, fmt.Errorf("list quest completions: %w", err)
	}
	defer rows.Close()

	var completed []string
	for rows.Next() {
		var questID string
		if err := rows.Scan(&questID); err != nil {
			return nil, fmt.Errorf("scan quest completion: %w", err)
		}
		completed = append(completed, questID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quest completions: %w", err)
	}
	return completed, nil
}
