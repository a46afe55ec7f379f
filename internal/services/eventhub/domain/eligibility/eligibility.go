// Package eligibility decides which catalog quests a player may start.
//
// FindEligible is a pure, order-preserving pipeline over the candidate list:
// quests already completed are dropped, then the player precondition, the
// quest precondition, and the cooldown window are applied in that order.
// Callers use index 0 as "the" chosen quest when only one is needed.
package eligibility

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/questline/eventhub/internal/services/eventhub/domain"
)

// PlayerView is the minimal player state the evaluator consults.
type PlayerView struct {
	ID             string
	QuestsComplete []string
}

// Cooldowns maps quest ids to the instant their cooldown expires.
type Cooldowns map[string]time.Time

// FindEligible returns the candidates the player may start, in input order.
func FindEligible(candidates []domain.Quest, player PlayerView, cooldowns Cooldowns, now time.Time) []domain.Quest {
	completed := make(map[string]bool, len(player.QuestsComplete))
	for _, id := range player.QuestsComplete {
		completed[id] = true
	}

	eligible := make([]domain.Quest, 0, len(candidates))
	for _, quest := range candidates {
		if completed[quest.ID] {
			continue
		}
		if !playerPreconditionMet(quest.PreconditionsPlayer, player.ID) {
			continue
		}
		if !questPreconditionMet(quest.PreconditionsQuest, completed) {
			continue
		}
		if until, ok := cooldowns[quest.ID]; ok && until.After(now) {
			continue
		}
		eligible = append(eligible, quest)
	}
	return eligible
}

// playerPreconditionMet evaluates the player precondition grammar: a single
// id "P3", an inclusive range "P1-P3", or a comma-separated list "P1, P5".
// An empty or malformed precondition resolves to no restriction.
func playerPreconditionMet(raw, playerID string) bool {
	ids := resolvePlayerIDs(raw)
	if len(ids) == 0 {
		return true
	}
	for _, id := range ids {
		if id == playerID {
			return true
		}
	}
	return false
}

func resolvePlayerIDs(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	if strings.Contains(raw, ",") {
		var ids []string
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if _, err := playerNumber(part); err == nil {
				ids = append(ids, part)
			}
		}
		return ids
	}

	if strings.Contains(raw, "-") {
		parts := strings.SplitN(raw, "-", 2)
		lo, loErr := playerNumber(strings.TrimSpace(parts[0]))
		hi, hiErr := playerNumber(strings.TrimSpace(parts[1]))
		if loErr != nil || hiErr != nil || hi < lo {
			return nil
		}
		ids := make([]string, 0, hi-lo+1)
		for n := lo; n <= hi; n++ {
			ids = append(ids, fmt.Sprintf("P%d", n))
		}
		return ids
	}

	if _, err := playerNumber(raw); err != nil {
		return nil
	}
	return []string{raw}
}

func playerNumber(id string) (int, error) {
	rest, ok := strings.CutPrefix(id, "P")
	if !ok {
		return 0, fmt.Errorf("player id %q lacks P prefix", id)
	}
	return strconv.Atoi(rest)
}

// questPreconditionMet evaluates the quest precondition token list. Tokens
// are applied in order over a running eligibility flag: a plain token adds
// the quest when the named quest is complete, a "*" suffix adds it when any
// completed quest id starts with the prefix, and a "!" prefix removes it
// when the named quest is complete. Inclusive tokens OR together; negation
// subtracts even after a prior token added the quest. An empty token list
// means no restriction.
func questPreconditionMet(raw string, completed map[string]bool) bool {
	var tokens []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			tokens = append(tokens, part)
		}
	}
	if len(tokens) == 0 {
		return true
	}

	eligible := false
	for _, token := range tokens {
		switch {
		case strings.HasSuffix(token, "*"):
			prefix := strings.TrimSuffix(token, "*")
			for id := range completed {
				if strings.HasPrefix(id, prefix) {
					eligible = true
					break
				}
			}
		case strings.HasPrefix(token, "!"):
			if completed[strings.TrimPrefix(token, "!")] {
				eligible = false
			}
		default:
			if completed[token] {
				eligible = true
			}
		}
	}
	return eligible
}
