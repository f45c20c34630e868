package events

import (
	"encoding/json"
	"time"
)

// GameEvent is the envelope for every event published on a session topic.
type GameEvent struct {
	ID          string          `json:"id"`           // Event UUID
	SessionCode string          `json:"session_code"` // Join code of the session
	Type        EventType       `json:"type"`         // Event type
	Version     uint64          `json:"version"`      // Session state version at emit time
	Timestamp   time.Time       `json:"timestamp"`    // Event creation time
	Data        json.RawMessage `json:"data"`         // Event-specific payload
}

// EventType represents the type of game event.
type EventType string

const (
	EventTypeSessionStarted  EventType = "SessionStarted"
	EventTypeRoundOpened     EventType = "RoundOpened"
	EventTypeRoundClosed     EventType = "RoundClosed"
	EventTypeLeaderboard     EventType = "Leaderboard"
	EventTypeSessionFinished EventType = "SessionFinished"
	EventTypeSessionReset    EventType = "SessionReset"
)

// ParsePayload parses event data into the appropriate payload struct.
func ParsePayload(event *GameEvent) (interface{}, error) {
	switch event.Type {
	case EventTypeSessionStarted:
		var payload SessionStartedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeRoundOpened:
		var payload RoundOpenedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeRoundClosed:
		var payload RoundClosedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeLeaderboard:
		var payload LeaderboardPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeSessionFinished:
		var payload SessionFinishedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeSessionReset:
		var payload SessionResetPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	default:
		return nil, nil // Unknown event type
	}
}
