// Package domain defines the quest, player, and event types the engine
// operates on, plus the pure helpers shared across the service.
package domain

import "strings"

// Stage trigger types. TriggerType is free-form in the catalog; these are the
// values the engine gives special treatment.
const (
	// TriggerLocation marks a stage satisfied by a location sensor.
	TriggerLocation = "ORT"
	// TriggerQuest marks a stage satisfied by another quest's completion.
	TriggerQuest = "QUEST"
	// TriggerDummy marks a test stage.
	TriggerDummy = "DUMMY"
)

// TriggerHome is a placeholder trigger id expanded with the player's home
// office, so a generic "go home" stage matches a player-specific location.
const TriggerHome = "HOME"

// StageFinished is the stage index of a finished quest. The progress record
// is kept at this index for quest-chaining history.
const StageFinished = -1

// QuestCompleteName is the sentinel stage name written when a quest finishes.
const QuestCompleteName = "QUEST COMPLETE"

// Quest is an immutable catalog entry.
type Quest struct {
	ID                  string       `json:"id"`
	SubNumber           int          `json:"subNumber"`
	State               string       `json:"state"`
	Name                string       `json:"name"`
	Description         string       `json:"description"`
	Phases              []int        `json:"phase"`
	Repeatable          bool         `json:"repeatable"` // reserved
	Parallel            bool         `json:"parallel"`   // reserved
	CooldownTimeMinutes int          `json:"cooldownTimeMinutes"`
	PreconditionsPlayer string       `json:"preconditionsPlayer"`
	PreconditionsQuest  string       `json:"preconditionsQuest"`
	Stages              []QuestStage `json:"stages"`
}

// Ready reports whether the quest is in a lifecycle state served to players.
func (q Quest) Ready() bool {
	return strings.Contains(strings.ToLower(q.State), "ready")
}

// QuestStage is one step of a quest.
type QuestStage struct {
	Name              string   `json:"name"`
	TriggerType       string   `json:"triggerType"`
	TriggerIDs        []string `json:"triggerIds"`
	Text              string   `json:"text"`
	BackupTextID      string   `json:"backupTextId"`
	BackupTimeSeconds int      `json:"backupTimeSeconds"`
	PlaylistName      string   `json:"playlistName"`
	RadioID           string   `json:"radioId"`
	RadioPlaylistName string   `json:"radioPlaylistName"`
	Preconditions     string   `json:"preconditions"` // reserved
	SleepTime         int      `json:"sleepTime"`     // seconds before the transition out of this stage applies
	NPCName           string   `json:"npcName"`
}

// ContainsTrigger reports whether the stage lists the given trigger id.
func (s QuestStage) ContainsTrigger(id string) bool {
	for _, t := range s.TriggerIDs {
		if t == id {
			return true
		}
	}
	return false
}

// ExpandHomeTriggers resolves the TriggerHome placeholder by appending the
// player's home office to the trigger set. The placeholder itself is kept so
// the stored ids remain a superset of the catalog's.
func ExpandHomeTriggers(triggerIDs []string, homeOffice string) []string {
	out := make([]string, 0, len(triggerIDs)+1)
	out = append(out, triggerIDs...)
	if homeOffice == "" {
		return out
	}
	for _, t := range triggerIDs {
		if t == TriggerHome {
			out = append(out, homeOffice)
			break
		}
	}
	return out
}
