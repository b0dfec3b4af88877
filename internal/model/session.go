package model

import (
	"errors"
	"time"
)

// ErrSessionClosed is returned when mutating a session after it was closed.
var ErrSessionClosed = errors.New("session is closed")

// SessionTag records the first acceptance of a tag within a session.
type SessionTag struct {
	TagID      string    `json:"tag_id"`
	SourceIP   string    `json:"source_ip"`
	AcceptedAt time.Time `json:"accepted_at"`
}

// Session is one dwell of the target object in front of the sensor.
//
// A session is open while EndedAt is nil. Tags holds each tag ID at most
// once, in first-acceptance order; Reads carries the same tags with their
// acceptance metadata.
type Session struct {
	ID          string       `json:"id"`
	TargetLabel string       `json:"target_label"`
	Confidence  float64      `json:"confidence"`
	StartedAt   time.Time    `json:"started_at"`
	EndedAt     *time.Time   `json:"ended_at,omitempty"`
	Tags        []string     `json:"tags"`
	Reads       []SessionTag `json:"reads,omitempty"`
	SourceIP    *string      `json:"source_ip,omitempty"`
}

// NewSession returns an open session with no tags.
func NewSession(id, targetLabel string, confidence float64, startedAt time.Time) *Session {
	return &Session{
		ID:          id,
		TargetLabel: targetLabel,
		Confidence:  confidence,
		StartedAt:   startedAt,
		Tags:        []string{},
	}
}

// IsOpen reports whether the session has not been closed.
func (s *Session) IsOpen() bool {
	return s.EndedAt == nil
}

// HasTag reports whether tagID is already part of the session.
func (s *Session) HasTag(tagID string) bool {
	for _, t := range s.Tags {
		if t == tagID {
			return true
		}
	}
	return false
}

// AddTag appends tagID unless it is already present. It returns true when the
// tag was appended. The first accepted read also fixes the session source IP.
func (s *Session) AddTag(read TagRead) (bool, error) {
	if !s.IsOpen() {
		return false, ErrSessionClosed
	}
	if s.HasTag(read.TagID) {
		return false, nil
	}
	s.Tags = append(s.Tags, read.TagID)
	s.Reads = append(s.Reads, SessionTag{
		TagID:      read.TagID,
		SourceIP:   read.SourceIP,
		AcceptedAt: read.ReceivedAt,
	})
	if s.SourceIP == nil && read.SourceIP != "" {
		ip := read.SourceIP
		s.SourceIP = &ip
	}
	return true, nil
}

// Close sets EndedAt. Closing twice returns ErrSessionClosed and leaves the
// original end time in place.
func (s *Session) Close(endedAt time.Time) error {
	if !s.IsOpen() {
		return ErrSessionClosed
	}
	s.EndedAt = &endedAt
	return nil
}

// Duration returns the dwell time. For an open session it is measured up to now.
func (s *Session) Duration(now time.Time) time.Duration {
	if s.EndedAt != nil {
		return s.EndedAt.Sub(s.StartedAt)
	}
	return now.Sub(s.StartedAt)
}

// Clone returns a deep copy that shares no mutable state with s.
func (s *Session) Clone() *Session {
	c := *s
	c.Tags = append([]string{}, s.Tags...)
	if s.Reads != nil {
		c.Reads = append([]SessionTag(nil), s.Reads...)
	}
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	if s.SourceIP != nil {
		ip := *s.SourceIP
		c.SourceIP = &ip
	}
	return &c
}

// SourceIPString returns the source IP or "" when no tag was accepted.
func (s *Session) SourceIPString() string {
	if s.SourceIP == nil {
		return ""
	}
	return *s.SourceIP
}

// SessionFilter selects sessions for listing.
type SessionFilter struct {
	TagID  string
	Open   *bool
	Since  *time.Time
	Limit  int
	Offset int
}
