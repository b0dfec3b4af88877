package model

import "time"

// TagRead is a decoded tag-reader event.
type TagRead struct {
	TagID      string    `json:"tag_id"`
	SourceIP   string    `json:"source_ip"`
	ReceivedAt time.Time `json:"received_at"`
}

// TagOutcome classifies what the ingest gate did with a read.
type TagOutcome string

const (
	// TagAccepted means the read passed the buffer window and was
	// attributed to the open session.
	TagAccepted TagOutcome = "accepted"
	// TagDuplicate means the same tag was accepted within the buffer window.
	TagDuplicate TagOutcome = "duplicate"
	// TagIgnored means no session was open, so the read was dropped.
	TagIgnored TagOutcome = "ignored"
)

// String returns the string representation of the outcome.
func (o TagOutcome) String() string {
	return string(o)
}

// TagObservation is the result of passing one read through the ingest gate.
type TagObservation struct {
	Read      TagRead    `json:"read"`
	Outcome   TagOutcome `json:"outcome"`
	SessionID string     `json:"session_id,omitempty"`
	// Appended is false when an accepted tag was already in the session.
	Appended bool `json:"appended"`
}
