// Package catalog serves the quest and player master data. The upstream
// source (a spreadsheet in production) is abstracted behind Provider; the
// engine only ever sees the typed Quest and RosterPlayer shapes.
package catalog

import (
	"context"

	"github.com/questline/eventhub/internal/services/eventhub/domain"
)

// Provider exposes the game master data. Implementations may cache; callers
// treat every call as potentially returning fresher data than the previous
// one and never assume immutability across calls.
type Provider interface {
	Quests(ctx context.Context) ([]domain.Quest, error)
	Players(ctx context.Context) ([]domain.RosterPlayer, error)
}

// ReadyQuests filters a quest list down to the states served to players.
func ReadyQuests(quests []domain.Quest) []domain.Quest {
	ready := make([]domain.Quest, 0, len(quests))
	for _, q := range quests {
		if q.Ready() {
			ready = append(ready, q)
		}
	}
	return ready
}

// FindQuest returns the quest with the given id, if present.
func FindQuest(quests []domain.Quest, id string) (domain.Quest, bool) {
	for _, q := range quests {
		if q.ID == id {
			return q, true
		}
	}
	return domain.Quest{}, false
}

// FindPlayer returns the roster player with the given id, if present.
func FindPlayer(players []domain.RosterPlayer, id string) (domain.RosterPlayer, bool) {
	for _, p := range players {
		if p.ID == id {
			return p, true
		}
	}
	return domain.RosterPlayer{}, false
}
