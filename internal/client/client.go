// Package client provides a transport-agnostic interface for the baywatch
// daemon and an HTTP/JSON implementation that talks to its REST API.
package client

import (
	"context"
	"encoding/json"
	"time"

	"github.com/alfredjeanlab/baywatch/internal/model"
)

// Client is the interface the bw CLI commands use to query a running daemon.
type Client interface {
	Health(ctx context.Context) (string, error)
	Status(ctx context.Context) (*model.Status, error)

	ListSessions(ctx context.Context, req *ListSessionsRequest) (*ListSessionsResponse, error)
	GetSession(ctx context.Context, id string) (*model.Session, error)
	GetSessionEvents(ctx context.Context, id string) ([]*model.Event, error)

	// StreamEvents calls fn for each event on the live stream until ctx is
	// done, the server closes the stream, or fn returns an error.
	StreamEvents(ctx context.Context, topics []string, fn func(StreamEvent) error) error

	Close() error
}

// ListSessionsRequest holds parameters for listing sessions.
type ListSessionsRequest struct {
	Tag    string
	Open   *bool
	Since  *time.Time
	Limit  int
	Offset int
}

// ListSessionsResponse is the response from ListSessions.
type ListSessionsResponse struct {
	Sessions []*model.Session `json:"sessions"`
	Total    int              `json:"total"`
}

// StreamEvent is one server-sent event.
type StreamEvent struct {
	ID    string
	Topic string
	Data  json.RawMessage
}
