package domain

import "time"

// QuestProgress is the live progress record, one per player. The current
// stage's fields are duplicated onto the record so trigger-matching queries
// do not need to join against the catalog.
type QuestProgress struct {
	PlayerID          string   `json:"playerId"`
	QuestID           string   `json:"questId"`
	StageIndex        int      `json:"stageIndex"`
	Name              string   `json:"name"`
	Text              string   `json:"text"`
	TriggerType       string   `json:"triggerType"`
	TriggerIDs        []string `json:"triggerIds"`
	BackupTextID      string   `json:"backupTextId"`
	BackupTimeSeconds int      `json:"backupTimeSeconds"`
	PlaylistName      string   `json:"playlistName"`
	CurrentLocation   string   `json:"currentLocation"`
	StageCount        int      `json:"stageCount"`
	DelaySeconds      int      `json:"delaySeconds"`
	HomeOffice        string   `json:"homeOffice"`
	NPCName           string   `json:"npcName"`
	HomeRadio         string   `json:"homeRadio"`
}

// Finished reports whether the quest has run through all stages.
func (p QuestProgress) Finished() bool {
	return p.StageIndex == StageFinished
}

// Cooldown blocks a quest from being (re)started until CooldownUntil.
// At most one entry exists per quest; it is refreshed on every start.
type Cooldown struct {
	QuestID       string
	CooldownUntil time.Time
}

// TransitionKind distinguishes deferred stage advancement from deferred
// quest completion.
type TransitionKind string

const (
	// TransitionAdvance re-applies a stage advancement after its delay.
	TransitionAdvance TransitionKind = "advance"
	// TransitionComplete applies completion bookkeeping after its delay.
	TransitionComplete TransitionKind = "complete"
)

// PendingTransition is a persisted deferred transition. StageIndex records
// what was true when the timer was armed; the engine aborts the transition
// if the live record has moved on.
type PendingTransition struct {
	ID         string
	PlayerID   string
	QuestID    string
	StageIndex int
	Kind       TransitionKind
	SensorID   string
	DueAt      time.Time
}
