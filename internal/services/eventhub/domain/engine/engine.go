// Package engine implements the quest progression engine: event intake,
// stage advancement, quest completion, auto-start, and quest chaining.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/questline/eventhub/internal/platform/errors"
	"github.com/questline/eventhub/internal/services/eventhub/catalog"
	"github.com/questline/eventhub/internal/services/eventhub/domain"
	"github.com/questline/eventhub/internal/services/eventhub/storage"
)

// Store is the persistence surface the engine consumes.
type Store interface {
	storage.PlayerStateStore
	storage.QuestProgressStore
	storage.EventStore
	storage.CooldownStore
	storage.RadioStore
}

// Scheduler defers a transition until its due time.
type Scheduler interface {
	Schedule(ctx context.Context, pt domain.PendingTransition) error
}

// Engine orchestrates quest progression over the state store, consulting the
// catalog and the eligibility evaluator.
type Engine struct {
	store   Store
	catalog catalog.Provider
	sched   Scheduler
	clock   func() time.Time
	locks   *playerLocks
}

// New creates an engine. A nil clock defaults to time.Now.
func New(store Store, provider catalog.Provider, sched Scheduler, clock func() time.Time) *Engine {
	if clock == nil {
		clock = time.Now
	}
	return &Engine{
		store:   store,
		catalog: provider,
		sched:   sched,
		clock:   clock,
		locks:   newPlayerLocks(),
	}
}

// withStore returns a copy of the engine bound to a different store view.
// Used for transactional bulk ingestion; the lock table is shared.
func (e *Engine) withStore(store Store) *Engine {
	return &Engine{
		store:   store,
		catalog: e.catalog,
		sched:   e.sched,
		clock:   e.clock,
		locks:   e.locks,
	}
}

// StartQuest starts the given quest for the given player: the progress
// record snapshots stage 0, the player's active quest is set, and a declared
// cooldown is stamped. All validation happens before the first write.
func (e *Engine) StartQuest(ctx context.Context, playerID, questID string) (domain.QuestProgress, error) {
	if playerID == "" {
		return domain.QuestProgress{}, apperrors.New(apperrors.CodeInvalidArgument, "player id is required")
	}

	quests, err := e.readyQuests(ctx)
	if err != nil {
		return domain.QuestProgress{}, err
	}
	quest, ok := catalog.FindQuest(quests, questID)
	if !ok {
		return domain.QuestProgress{}, apperrors.WithMetadata(apperrors.CodeNotFound,
			fmt.Sprintf("quest %s not found", questID), map[string]string{"quest_id": questID})
	}
	if len(quest.Stages) == 0 {
		return domain.QuestProgress{}, apperrors.WithMetadata(apperrors.CodeQuestNoStages,
			fmt.Sprintf("quest %s has no stages", questID), map[string]string{"quest_id": questID})
	}

	var roster domain.RosterPlayer
	if !domain.IsRadioID(playerID) {
		players, err := e.catalog.Players(ctx)
		if err != nil {
			return domain.QuestProgress{}, apperrors.Wrap(apperrors.CodeProviderError, "load player roster", err)
		}
		roster, ok = catalog.FindPlayer(players, playerID)
		if !ok {
			return domain.QuestProgress{}, apperrors.WithMetadata(apperrors.CodeNotFound,
				fmt.Sprintf("player %s not found", playerID), map[string]string{"player_id": playerID})
		}
	}

	unlock := e.locks.lock(playerID)
	defer unlock()

	state, err := e.store.GetPlayerState(ctx, playerID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return domain.QuestProgress{}, apperrors.Wrap(apperrors.CodeProviderError, "load player state", err)
		}
		state = domain.PlayerState{ID: playerID}
	}

	stage := quest.Stages[0]
	progress := domain.QuestProgress{
		PlayerID:          playerID,
		QuestID:           quest.ID,
		StageIndex:        0,
		Name:              stage.Name,
		TriggerType:       stage.TriggerType,
		TriggerIDs:        domain.ExpandHomeTriggers(stage.TriggerIDs, roster.HomeOffice),
		BackupTextID:      stage.BackupTextID,
		BackupTimeSeconds: stage.BackupTimeSeconds,
		PlaylistName:      stage.PlaylistName,
		CurrentLocation:   state.CurrentLocation,
		StageCount:        len(quest.Stages),
		DelaySeconds:      stage.SleepTime,
		HomeOffice:        roster.HomeOffice,
		NPCName:           stage.NPCName,
		HomeRadio:         roster.HomeRadio,
	}

	if err := e.store.PutQuestProgress(ctx, progress); err != nil {
		return domain.QuestProgress{}, apperrors.Wrap(apperrors.CodeProviderError, "store quest progress", err)
	}
	state.QuestActive = quest.ID
	if err := e.store.PutPlayerState(ctx, state); err != nil {
		return domain.QuestProgress{}, apperrors.Wrap(apperrors.CodeProviderError, "store player state", err)
	}

	if quest.CooldownTimeMinutes > 0 {
		cooldown := domain.Cooldown{
			QuestID:       quest.ID,
			CooldownUntil: e.clock().Add(time.Duration(quest.CooldownTimeMinutes) * time.Minute),
		}
		if err := e.store.SetCooldown(ctx, cooldown); err != nil {
			return domain.QuestProgress{}, apperrors.Wrap(apperrors.CodeProviderError, "store cooldown", err)
		}
	}

	return progress, nil
}

// AddFeedback increments the player's feedback counter, creating the record
// on first contact.
func (e *Engine) AddFeedback(ctx context.Context, playerID string) (domain.PlayerState, error) {
	if playerID == "" {
		return domain.PlayerState{}, apperrors.New(apperrors.CodeInvalidArgument, "player id is required")
	}

	unlock := e.locks.lock(playerID)
	defer unlock()

	state, err := e.store.GetPlayerState(ctx, playerID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return domain.PlayerState{}, apperrors.Wrap(apperrors.CodeProviderError, "load player state", err)
		}
		state = domain.PlayerState{ID: playerID}
	}
	state.FeedbackCount++
	if err := e.store.PutPlayerState(ctx, state); err != nil {
		return domain.PlayerState{}, apperrors.Wrap(apperrors.CodeProviderError, "store player state", err)
	}
	return state, nil
}

// Progress returns the player's current quest progress.
func (e *Engine) Progress(ctx context.Context, playerID string) (domain.QuestProgress, error) {
	progress, err := e.store.GetQuestProgress(ctx, playerID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.QuestProgress{}, apperrors.WithMetadata(apperrors.CodeNotFound,
				fmt.Sprintf("no quest progress for player %s", playerID), map[string]string{"player_id": playerID})
		}
		return domain.QuestProgress{}, apperrors.Wrap(apperrors.CodeProviderError, "load quest progress", err)
	}
	return progress, nil
}

// readyQuests loads the catalog quests served to players.
func (e *Engine) readyQuests(ctx context.Context) ([]domain.Quest, error) {
	quests, err := e.catalog.Quests(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeProviderError, "load quest catalog", err)
	}
	return catalog.ReadyQuests(quests), nil
}
