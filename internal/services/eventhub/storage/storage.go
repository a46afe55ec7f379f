// Package storage defines the persistence contracts the event hub consumes.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/questline/eventhub/internal/services/eventhub/domain"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists indicates a create collided with an existing record.
var ErrAlreadyExists = errors.New("record already exists")

// PlayerStateStore persists live per-player state.
type PlayerStateStore interface {
	GetPlayerState(ctx context.Context, id string) (domain.PlayerState, error)
	CreatePlayerState(ctx context.Context, state domain.PlayerState) error
	PutPlayerState(ctx context.Context, state domain.PlayerState) error
	DeletePlayerState(ctx context.Context, id string) error
	// AddQuestComplete merges a quest id into the player's completed set.
	AddQuestComplete(ctx context.Context, playerID, questID string) error
	// PlayersAtLocation lists players whose current location equals location.
	PlayersAtLocation(ctx context.Context, location string) ([]domain.PlayerState, error)
}

// QuestProgressStore persists live quest progress, one record per player.
type QuestProgressStore interface {
	GetQuestProgress(ctx context.Context, playerID string) (domain.QuestProgress, error)
	PutQuestProgress(ctx context.Context, progress domain.QuestProgress) error
	DeleteQuestProgress(ctx context.Context, playerID string) error
	// ProgressByTrigger lists records whose trigger set contains sensorID,
	// filtered to one player when playerID is non-empty.
	ProgressByTrigger(ctx context.Context, sensorID, playerID string) ([]domain.QuestProgress, error)
	// ProgressByQuestIn lists records whose quest id is in the given set.
	ProgressByQuestIn(ctx context.Context, questIDs []string) ([]domain.QuestProgress, error)
}

// EventStore persists the raw event log.
type EventStore interface {
	AppendEvent(ctx context.Context, event domain.Event) error
	// RecentEvents lists newest-first events, capped at limit.
	RecentEvents(ctx context.Context, limit int) ([]domain.Event, error)
}

// CooldownStore persists quest cooldown windows.
type CooldownStore interface {
	// SetCooldown stamps or refreshes the cooldown entry for a quest.
	SetCooldown(ctx context.Context, cooldown domain.Cooldown) error
	// Cooldowns returns a snapshot of quest id to cooldown expiry.
	Cooldowns(ctx context.Context) (map[string]time.Time, error)
}

// PendingTransitionStore persists deferred transitions so timers can be
// re-derived after a restart.
type PendingTransitionStore interface {
	PutPendingTransition(ctx context.Context, pt domain.PendingTransition) error
	DeletePendingTransition(ctx context.Context, id string) error
	ListPendingTransitions(ctx context.Context) ([]domain.PendingTransition, error)
}

// RadioStore records playlist assignments for radio devices, keyed by the
// device's id.
type RadioStore interface {
	SetRadioPlaylist(ctx context.Context, radioID, playlistName string) error
	GetRadioPlaylist(ctx context.Context, radioID string) (string, error)
}

// Store is the full persistence surface of the event hub.
type Store interface {
	PlayerStateStore
	QuestProgressStore
	EventStore
	CooldownStore
	PendingTransitionStore
	RadioStore

	// WithinTx runs fn against a transactional view of the store and commits
	// all queued writes as one atomic unit. Not nestable.
	WithinTx(ctx context.Context, fn func(tx Store) error) error

	Close() error
}
