package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/questline/eventhub/internal/services/eventhub/domain"
)

// AppendEvent persists one raw event.
func (s *Store) AppendEvent(ctx context.Context, event domain.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(event.ID) == "" {
		return fmt.Errorf("event id is required")
	}
	if strings.TrimSpace(event.SensorID) == "" {
		return fmt.Errorf("sensor id is required")
	}
	if event.EventDate.IsZero() {
		event.EventDate = time.Now().UTC()
	}

	_, err := s.q.ExecContext(ctx, `
INSERT INTO events (id, sensor_id, player_id, value, event_date)
VALUES (?, ?, ?, ?, ?)
`,
		event.ID,
		event.SensorID,
		event.PlayerID,
		event.Value,
		event.EventDate.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// RecentEvents lists newest-first events, capped at limit.
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]domain.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.q.QueryContext(ctx, `
SELECT id, sensor_id, player_id, value, event_date
FROM events
ORDER BY event_date DESC, id DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var event domain.Event
		var eventDate int64
		if err := rows.Scan(&event.ID, &event.SensorID, &event.PlayerID, &event.Value, &eventDate); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		event.EventDate = time.UnixMilli(eventDate).UTC()
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
