package engine

import (
	"context"
	"errors"
	"log"

	apperrors "github.com/questline/eventhub/internal/platform/errors"
	"github.com/questline/eventhub/internal/platform/id"
	"github.com/questline/eventhub/internal/services/eventhub/catalog"
	"github.com/questline/eventhub/internal/services/eventhub/domain"
	"github.com/questline/eventhub/internal/services/eventhub/storage"
)

// HandleEvent ingests one event: the event is always persisted, matching
// progress records advance, and an unmatched event updates the player's
// location and may auto-start a quest. The persisted event is returned.
func (e *Engine) HandleEvent(ctx context.Context, ev domain.Event) (domain.Event, error) {
	if ev.SensorID == "" {
		return ev, apperrors.New(apperrors.CodeInvalidArgument, "sensor id is required")
	}
	if ev.ID == "" {
		eventID, err := id.NewID()
		if err != nil {
			return ev, apperrors.Wrap(apperrors.CodeUnknown, "generate event id", err)
		}
		ev.ID = eventID
	}
	if ev.EventDate.IsZero() {
		ev.EventDate = e.clock().UTC()
	}
	if err := e.store.AppendEvent(ctx, ev); err != nil {
		return ev, apperrors.Wrap(apperrors.CodeProviderError, "store event", err)
	}

	matches, err := e.store.ProgressByTrigger(ctx, ev.SensorID, ev.PlayerID)
	if err != nil {
		return ev, apperrors.Wrap(apperrors.CodeProviderError, "query progress by trigger", err)
	}

	var followups []followup
	if len(matches) == 0 {
		followups, err = e.handleUnmatched(ctx, ev)
		if err != nil {
			return ev, err
		}
	} else {
		for _, match := range matches {
			fs, err := e.advancePlayer(ctx, match.PlayerID, ev)
			if err != nil {
				log.Printf("advance player %s on sensor %s: %v", match.PlayerID, ev.SensorID, err)
				continue
			}
			followups = append(followups, fs...)
		}
	}
	for _, f := range followups {
		f(ctx)
	}
	return ev, nil
}

// HandleEvents ingests a batch, committing all writes as one transaction.
// Followups such as chaining and auto-start re-feeds run after the commit.
func (e *Engine) HandleEvents(ctx context.Context, events []domain.Event) ([]domain.Event, error) {
	tx, ok := e.store.(storage.Store)
	if !ok {
		// Store views without transaction support fall back per event.
		out := make([]domain.Event, 0, len(events))
		for _, ev := range events {
			persisted, err := e.HandleEvent(ctx, ev)
			if err != nil {
				return out, err
			}
			out = append(out, persisted)
		}
		return out, nil
	}

	out := make([]domain.Event, 0, len(events))
	err := tx.WithinTx(ctx, func(txStore storage.Store) error {
		scoped := e.withStore(txStore)
		for _, ev := range events {
			persisted, err := scoped.HandleEvent(ctx, ev)
			if err != nil {
				return err
			}
			out = append(out, persisted)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// advancePlayer re-reads the player's progress under the player lock and
// advances it when the trigger still matches. A catalog miss is logged and
// skipped; the event itself has already been persisted.
func (e *Engine) advancePlayer(ctx context.Context, playerID string, ev domain.Event) ([]followup, error) {
	quests, err := e.catalog.Quests(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeProviderError, "load quest catalog", err)
	}

	unlock := e.locks.lock(playerID)
	defer unlock()

	progress, err := e.store.GetQuestProgress(ctx, playerID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, apperrors.Wrap(apperrors.CodeProviderError, "load quest progress", err)
	}
	if !containsTrigger(progress.TriggerIDs, ev.SensorID) {
		return nil, nil
	}

	quest, ok := catalog.FindQuest(quests, progress.QuestID)
	if !ok {
		log.Printf("quest %s for player %s not in catalog, skipping advance", progress.QuestID, playerID)
		return nil, nil
	}
	return e.advanceLocked(ctx, progress, quest, ev)
}

// handleUnmatched records the player's new location and probes auto-start.
func (e *Engine) handleUnmatched(ctx context.Context, ev domain.Event) ([]followup, error) {
	if ev.PlayerID != "" && !domain.IsRadioID(ev.PlayerID) {
		if err := e.updateLocation(ctx, ev.PlayerID, ev.SensorID); err != nil {
			return nil, err
		}
	}
	return e.tryAutoStart(ctx, ev.SensorID)
}

func (e *Engine) updateLocation(ctx context.Context, playerID, location string) error {
	unlock := e.locks.lock(playerID)
	defer unlock()

	state, err := e.store.GetPlayerState(ctx, playerID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return apperrors.Wrap(apperrors.CodeProviderError, "load player state", err)
		}
		state = domain.PlayerState{ID: playerID}
	}
	state.CurrentLocation = location
	if err := e.store.PutPlayerState(ctx, state); err != nil {
		return apperrors.Wrap(apperrors.CodeProviderError, "store player state", err)
	}
	return nil
}

func containsTrigger(triggerIDs []string, id string) bool {
	for _, t := range triggerIDs {
		if t == id {
			return true
		}
	}
	return false
}
