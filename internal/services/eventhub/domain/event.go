package domain

import "time"

// Event is an inbound sensor observation. PlayerID is optional; an empty
// PlayerID means the event may match any player's active quest.
type Event struct {
	ID        string    `json:"id"`
	SensorID  string    `json:"sensorId"`
	PlayerID  string    `json:"playerId"`
	Value     string    `json:"value"`
	EventDate time.Time `json:"eventDateUtc"`
}
