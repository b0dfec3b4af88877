package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/alfredjeanlab/baywatch/internal/model"
	"github.com/alfredjeanlab/baywatch/internal/store"
)

// exportVersion is bumped when the record layout changes.
const exportVersion = "1"

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version      string    `json:"version"`
	Type         string    `json:"type"`
	Timestamp    time.Time `json:"timestamp"`
	SessionCount int       `json:"session_count"`
	TagCount     int       `json:"tag_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ExportJSONL writes every closed session in the store as JSONL to w, oldest
// first. The open session, if any, is left out until it closes.
func ExportJSONL(ctx context.Context, s store.Store, w io.Writer, now time.Time) error {
	closed := false
	sessions, _, err := s.ListSessions(ctx, model.SessionFilter{Open: &closed})
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].StartedAt.Equal(sessions[j].StartedAt) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].StartedAt.Before(sessions[j].StartedAt)
	})

	tags := 0
	for _, sess := range sessions {
		tags += len(sess.Tags)
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:      exportVersion,
		Type:         "header",
		Timestamp:    now.UTC(),
		SessionCount: len(sessions),
		TagCount:     tags,
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, sess := range sessions {
		if err := enc.Encode(record{Type: "session", Data: sess}); err != nil {
			return fmt.Errorf("encode session %s: %w", sess.ID, err)
		}
	}

	return nil
}
