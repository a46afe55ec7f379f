package engine

import (
	"context"
	"errors"
	"log"

	apperrors "github.com/questline/eventhub/internal/platform/errors"
	"github.com/questline/eventhub/internal/services/eventhub/domain"
	"github.com/questline/eventhub/internal/services/eventhub/domain/eligibility"
	"github.com/questline/eventhub/internal/services/eventhub/storage"
)

// TryAutoStart probes whether any player standing at the given sensor should
// have a location-triggered quest started for them. A started quest gets the
// sensor re-fed as a synthetic event so the starting trigger also counts as
// the first stage's trigger.
func (e *Engine) TryAutoStart(ctx context.Context, sensorID string) error {
	followups, err := e.tryAutoStart(ctx, sensorID)
	if err != nil {
		return err
	}
	for _, f := range followups {
		f(ctx)
	}
	return nil
}

func (e *Engine) tryAutoStart(ctx context.Context, sensorID string) ([]followup, error) {
	quests, err := e.readyQuests(ctx)
	if err != nil {
		return nil, err
	}
	candidates := firstStageCandidates(quests, domain.TriggerLocation, sensorID)
	if len(candidates) == 0 {
		return nil, nil
	}

	players, err := e.store.PlayersAtLocation(ctx, sensorID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeProviderError, "query players at location", err)
	}
	if len(players) == 0 {
		return nil, nil
	}
	cooldowns, err := e.store.Cooldowns(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeProviderError, "load cooldowns", err)
	}

	now := e.clock()
	var followups []followup
	for _, state := range players {
		if state.QuestActive != "" {
			continue
		}
		view := eligibility.PlayerView{ID: state.ID, QuestsComplete: state.QuestsComplete}
		eligible := eligibility.FindEligible(candidates, view, cooldowns, now)
		if len(eligible) == 0 {
			continue
		}
		if _, err := e.StartQuest(ctx, state.ID, eligible[0].ID); err != nil {
			log.Printf("auto-start quest %s for player %s: %v", eligible[0].ID, state.ID, err)
			continue
		}
		playerID := state.ID
		followups = append(followups, func(ctx context.Context) {
			synthetic := domain.Event{SensorID: sensorID, PlayerID: playerID}
			if _, err := e.HandleEvent(ctx, synthetic); err != nil {
				log.Printf("re-feed sensor %s for player %s: %v", sensorID, playerID, err)
			}
		})
	}
	return followups, nil
}

// CheckTriggerNextQuest chains quest completion into quest start: quests
// whose first stage triggers on the finished quest's id are evaluated for
// the player, the first eligible one starts, and the finished quest id is
// re-fed as a synthetic sensor so the chained quest consumes it.
func (e *Engine) CheckTriggerNextQuest(ctx context.Context, playerID, finishedQuestID string) error {
	quests, err := e.readyQuests(ctx)
	if err != nil {
		return err
	}
	candidates := firstStageCandidates(quests, domain.TriggerQuest, finishedQuestID)
	if len(candidates) == 0 {
		return nil
	}

	state, err := e.store.GetPlayerState(ctx, playerID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return apperrors.Wrap(apperrors.CodeProviderError, "load player state", err)
	}
	cooldowns, err := e.store.Cooldowns(ctx)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeProviderError, "load cooldowns", err)
	}

	view := eligibility.PlayerView{ID: state.ID, QuestsComplete: state.QuestsComplete}
	eligible := eligibility.FindEligible(candidates, view, cooldowns, e.clock())
	if len(eligible) == 0 {
		return nil
	}
	if _, err := e.StartQuest(ctx, playerID, eligible[0].ID); err != nil {
		return err
	}
	synthetic := domain.Event{SensorID: finishedQuestID, PlayerID: playerID}
	if _, err := e.HandleEvent(ctx, synthetic); err != nil {
		return err
	}
	return nil
}

// firstStageCandidates filters quests whose first stage has the given
// trigger type and lists the trigger id.
func firstStageCandidates(quests []domain.Quest, triggerType, triggerID string) []domain.Quest {
	var out []domain.Quest
	for _, q := range quests {
		if len(q.Stages) == 0 {
			continue
		}
		first := q.Stages[0]
		if first.TriggerType == triggerType && first.ContainsTrigger(triggerID) {
			out = append(out, q)
		}
	}
	return out
}
