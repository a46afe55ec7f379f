package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/questline/eventhub/internal/services/eventhub/storage"
)

// SetRadioPlaylist records a playlist assignment for a radio device.
func (s *Store) SetRadioPlaylist(ctx context.Context, radioID, playlistName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(radioID) == "" {
		return fmt.Errorf("radio id is required")
	}

	_, err := s.q.ExecContext(ctx, `
INSERT INTO radio_assignments (radio_id, playlist_name)
VALUES (?, ?)
ON CONFLICT(radio_id) DO UPDATE SET playlist_name = excluded.playlist_name
`, radioID, playlistName)
	if err != nil {
		return fmt.Errorf("set radio playlist: %w", err)
	}
	return nil
}

// GetRadioPlaylist returns the playlist assigned to a radio device.
func (s *Store) GetRadioPlaylist(ctx context.Context, radioID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := s.ready(); err != nil {
		return "", err
	}
	if strings.TrimSpace(radioID) == "" {
		return "", fmt.Errorf("radio id is required")
	}

	var playlistName string
	row := s.q.QueryRowContext(ctx, `SELECT playlist_name FROM radio_assignments WHERE radio_id = ?`, radioID)
	if err := row.Scan(&playlistName); err != nil {
		if err == sql.ErrNoRows {
			return "", storage.ErrNotFound
		}
		return "", fmt.Errorf("get radio playlist: %w", err)
	}
	return playlistName, nil
}
