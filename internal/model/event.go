package model

import (
	"encoding/json"
	"time"
)

// Event is a persisted event record, mirroring what is published on the bus.
type Event struct {
	ID        int64           `json:"id"`
	Topic     string          `json:"topic"`
	SessionID string          `json:"session_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}
