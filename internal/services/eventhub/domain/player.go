package domain

import "strings"

// RadioIDPrefix marks device ids, such as radios, that are not roster
// players. Quest starts for these ids skip roster validation.
const RadioIDPrefix = "R"

// RadioHome is a placeholder radio id resolved to the player's home radio
// when a stage assigns a playlist.
const RadioHome = "R HOME"

// IsRadioID reports whether the id denotes a radio device rather than a
// player.
func IsRadioID(id string) bool {
	return strings.HasPrefix(id, RadioIDPrefix)
}

// RosterPlayer is a catalog roster entry, read-only to the engine.
type RosterPlayer struct {
	ID             string   `json:"id"`
	HomeOffice     string   `json:"homeOffice"`
	HomeRadio      string   `json:"homeRadio"`
	Aisle          string   `json:"aisle"`
	Phase          string   `json:"phase"`
	QuestsComplete []string `json:"questsComplete"` // informational
	QuestsActive   []string `json:"questsActive"`   // informational
}

// PlayerState is the live per-player record.
type PlayerState struct {
	ID              string   `json:"id"`
	CurrentLocation string   `json:"currentLocation"`
	QuestActive     string   `json:"questActive"`
	QuestsComplete  []string `json:"questsComplete"`
	FeedbackCount   int      `json:"feedbackCount"`
}

// Completed reports whether the player has completed the given quest.
func (p PlayerState) Completed(questID string) bool {
	for _, id := range p.QuestsComplete {
		if id == questID {
			return true
		}
	}
	return false
}
