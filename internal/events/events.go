package events

import (
	"context"
	"time"

	"github.com/alfredjeanlab/baywatch/internal/model"
)

// Event topic constants
const (
	TopicObjectArrived  = "baywatch.object.arrived"
	TopicObjectDeparted = "baywatch.object.departed"

	// Tag read outcomes.
	TopicTagAccepted  = "baywatch.tag.accepted"
	TopicTagDuplicate = "baywatch.tag.duplicate"
	TopicTagIgnored   = "baywatch.tag.ignored"

	// TopicAll matches every baywatch topic (NATS wildcard syntax).
	TopicAll = "baywatch.>"
)

// Event types

type ObjectArrived struct {
	SessionID   string    `json:"session_id"`
	TargetLabel string    `json:"target_label"`
	Confidence  float64   `json:"confidence"`
	StartedAt   time.Time `json:"started_at"`
}

type ObjectDeparted struct {
	Session      *model.Session `json:"session"`
	DwellSeconds float64        `json:"dwell_seconds"`
}

type TagObserved struct {
	SessionID  string    `json:"session_id,omitempty"`
	TagID      string    `json:"tag_id"`
	SourceIP   string    `json:"source_ip"`
	Outcome    string    `json:"outcome"`
	ReceivedAt time.Time `json:"received_at"`
}

// TagTopic maps a tag outcome to its topic.
func TagTopic(outcome model.TagOutcome) string {
	switch outcome {
	case model.TagAccepted:
		return TopicTagAccepted
	case model.TagDuplicate:
		return TopicTagDuplicate
	default:
		return TopicTagIgnored
	}
}

// NewTagObserved builds the payload for a tag observation.
func NewTagObserved(obs model.TagObservation) TagObserved {
	return TagObserved{
		SessionID:  obs.SessionID,
		TagID:      obs.Read.TagID,
		SourceIP:   obs.Read.SourceIP,
		Outcome:    obs.Outcome.String(),
		ReceivedAt: obs.Read.ReceivedAt,
	}
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
