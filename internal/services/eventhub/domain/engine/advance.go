package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	apperrors "github.com/questline/eventhub/internal/platform/errors"
	"github.com/questline/eventhub/internal/services/eventhub/catalog"
	"github.com/questline/eventhub/internal/services/eventhub/domain"
	"github.com/questline/eventhub/internal/services/eventhub/storage"
)

// followup is work that must run after the player lock is released, such as
// quest chaining or a synthetic event re-feed. Running it under the lock
// would deadlock on re-entry.
type followup func(ctx context.Context)

// advanceLocked applies the transition out of progress.StageIndex. The
// caller holds the player lock. When the stage being left declares a
// SleepTime the transition is deferred through the scheduler instead; for a
// terminal stage the record itself still moves to the completion sentinel
// immediately and only the player bookkeeping waits.
func (e *Engine) advanceLocked(ctx context.Context, progress domain.QuestProgress, quest domain.Quest, ev domain.Event) ([]followup, error) {
	if progress.StageIndex < 0 || progress.StageIndex >= len(quest.Stages) {
		return nil, nil
	}
	leaving := quest.Stages[progress.StageIndex]
	nextIndex := progress.StageIndex + 1
	terminal := nextIndex >= len(quest.Stages)

	if leaving.SleepTime > 0 {
		pt := domain.PendingTransition{
			PlayerID:   progress.PlayerID,
			QuestID:    progress.QuestID,
			StageIndex: progress.StageIndex,
			Kind:       domain.TransitionAdvance,
			SensorID:   ev.SensorID,
			DueAt:      e.clock().Add(time.Duration(leaving.SleepTime) * time.Second),
		}
		if terminal {
			pt.Kind = domain.TransitionComplete
			pt.StageIndex = domain.StageFinished
			e.applyTerminalRecord(&progress, leaving, ev)
			if err := e.store.PutQuestProgress(ctx, progress); err != nil {
				return nil, apperrors.Wrap(apperrors.CodeProviderError, "store quest progress", err)
			}
		}
		if err := e.sched.Schedule(ctx, pt); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeProviderError, "schedule transition", err)
		}
		return nil, nil
	}

	if terminal {
		e.applyTerminalRecord(&progress, leaving, ev)
		if err := e.store.PutQuestProgress(ctx, progress); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeProviderError, "store quest progress", err)
		}
		return e.completeLocked(ctx, progress.PlayerID, progress.QuestID, ev.SensorID)
	}
	return nil, e.applyAdvance(ctx, progress, quest, nextIndex, ev)
}

// applyTerminalRecord rewrites the record as finished. The narrative text
// and the playlist/delay fields come from the stage just completed.
func (e *Engine) applyTerminalRecord(p *domain.QuestProgress, leaving domain.QuestStage, ev domain.Event) {
	p.Text = leaving.Text
	if p.TriggerType == domain.TriggerLocation {
		p.CurrentLocation = ev.SensorID
	}
	p.StageIndex = domain.StageFinished
	p.TriggerIDs = nil
	p.Name = domain.QuestCompleteName
	p.PlaylistName = leaving.PlaylistName
	p.NPCName = leaving.NPCName
	p.DelaySeconds = leaving.SleepTime
}

// applyAdvance moves the record to the next stage. Trigger fields come from
// the stage being entered; text, playlist, and delay keep the one-stage lag
// and come from the stage being left.
func (e *Engine) applyAdvance(ctx context.Context, progress domain.QuestProgress, quest domain.Quest, nextIndex int, ev domain.Event) error {
	leaving := quest.Stages[nextIndex-1]
	entering := quest.Stages[nextIndex]

	progress.Text = leaving.Text
	if progress.TriggerType == domain.TriggerLocation {
		progress.CurrentLocation = ev.SensorID
	}
	progress.StageIndex = nextIndex
	progress.TriggerIDs = domain.ExpandHomeTriggers(entering.TriggerIDs, progress.HomeOffice)
	progress.TriggerType = entering.TriggerType
	progress.Name = entering.Name
	progress.BackupTextID = entering.BackupTextID
	progress.BackupTimeSeconds = entering.BackupTimeSeconds
	progress.NPCName = entering.NPCName
	progress.PlaylistName = leaving.PlaylistName
	progress.DelaySeconds = leaving.SleepTime

	if err := e.store.PutQuestProgress(ctx, progress); err != nil {
		return apperrors.Wrap(apperrors.CodeProviderError, "store quest progress", err)
	}

	state, err := e.store.GetPlayerState(ctx, progress.PlayerID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return apperrors.Wrap(apperrors.CodeProviderError, "load player state", err)
		}
		state = domain.PlayerState{ID: progress.PlayerID}
	}
	state.CurrentLocation = ev.SensorID
	if err := e.store.PutPlayerState(ctx, state); err != nil {
		return apperrors.Wrap(apperrors.CodeProviderError, "store player state", err)
	}

	if leaving.RadioID != "" && leaving.RadioPlaylistName != "" {
		e.assignRadioPlaylist(ctx, leaving, progress)
	}
	return nil
}

// assignRadioPlaylist applies the stage's radio side effect, resolving the
// home-radio placeholder against the progress record.
func (e *Engine) assignRadioPlaylist(ctx context.Context, stage domain.QuestStage, progress domain.QuestProgress) {
	radioID := stage.RadioID
	if radioID == domain.RadioHome {
		if progress.HomeRadio == "" {
			log.Printf("player %s has no home radio, skipping playlist %q", progress.PlayerID, stage.RadioPlaylistName)
			return
		}
		radioID = progress.HomeRadio
	}
	if err := e.store.SetRadioPlaylist(ctx, radioID, stage.RadioPlaylistName); err != nil {
		log.Printf("assign playlist %q to radio %s: %v", stage.RadioPlaylistName, radioID, err)
	}
}

// completeLocked applies the completion bookkeeping: the quest id joins the
// player's completed set, the active quest clears, and the player's location
// moves to the completing sensor. The caller holds the player lock; quest
// chaining is returned as a followup.
func (e *Engine) completeLocked(ctx context.Context, playerID, questID, sensorID string) ([]followup, error) {
	state, err := e.store.GetPlayerState(ctx, playerID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.Wrap(apperrors.CodeProviderError, "load player state", err)
		}
		state = domain.PlayerState{ID: playerID}
	}
	state.QuestActive = ""
	state.CurrentLocation = sensorID
	if err := e.store.PutPlayerState(ctx, state); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeProviderError, "store player state", err)
	}
	if err := e.store.AddQuestComplete(ctx, playerID, questID); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeProviderError, "store quest completion", err)
	}

	chain := func(ctx context.Context) {
		if err := e.CheckTriggerNextQuest(ctx, playerID, questID); err != nil {
			log.Printf("chain next quest for player %s after %s: %v", playerID, questID, err)
		}
	}
	return []followup{chain}, nil
}

// ApplyPending fires a deferred transition. The live record is re-read and
// the transition silently dropped when it no longer matches what was true at
// scheduling time.
func (e *Engine) ApplyPending(ctx context.Context, pt domain.PendingTransition) error {
	followups, err := e.applyPendingLocked(ctx, pt)
	if err != nil {
		return err
	}
	for _, f := range followups {
		f(ctx)
	}
	return nil
}

func (e *Engine) applyPendingLocked(ctx context.Context, pt domain.PendingTransition) ([]followup, error) {
	unlock := e.locks.lock(pt.PlayerID)
	defer unlock()

	progress, err := e.store.GetQuestProgress(ctx, pt.PlayerID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.Printf("pending %s for player %s: progress gone, dropping", pt.Kind, pt.PlayerID)
			return nil, nil
		}
		return nil, apperrors.Wrap(apperrors.CodeProviderError, "load quest progress", err)
	}
	if progress.QuestID != pt.QuestID || progress.StageIndex != pt.StageIndex {
		log.Printf("pending %s for player %s: state moved on (quest %s stage %d), dropping",
			pt.Kind, pt.PlayerID, progress.QuestID, progress.StageIndex)
		return nil, nil
	}

	switch pt.Kind {
	case domain.TransitionComplete:
		return e.completeLocked(ctx, pt.PlayerID, pt.QuestID, pt.SensorID)
	case domain.TransitionAdvance:
		quests, err := e.catalog.Quests(ctx)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeProviderError, "load quest catalog", err)
		}
		quest, ok := catalog.FindQuest(quests, pt.QuestID)
		if !ok {
			log.Printf("pending advance for player %s: quest %s not in catalog, dropping", pt.PlayerID, pt.QuestID)
			return nil, nil
		}
		ev := domain.Event{SensorID: pt.SensorID, PlayerID: pt.PlayerID}
		nextIndex := progress.StageIndex + 1
		if nextIndex >= len(quest.Stages) {
			e.applyTerminalRecord(&progress, quest.Stages[progress.StageIndex], ev)
			if err := e.store.PutQuestProgress(ctx, progress); err != nil {
				return nil, apperrors.Wrap(apperrors.CodeProviderError, "store quest progress", err)
			}
			return e.completeLocked(ctx, pt.PlayerID, pt.QuestID, pt.SensorID)
		}
		return nil, e.applyAdvance(ctx, progress, quest, nextIndex, ev)
	default:
		return nil, apperrors.New(apperrors.CodeInvalidArgument, fmt.Sprintf("unknown transition kind %q", pt.Kind))
	}
}
