package store

import (
	"context"
	"errors"

	"github.com/alfredjeanlab/baywatch/internal/model"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("not found")

// Store defines the persistence interface for dwell sessions.
type Store interface {
	// Sessions
	CreateSession(ctx context.Context, s *model.Session) error
	// CloseSession writes the final state of a closed session, inserting it
	// when the arrival record is missing.
	CloseSession(ctx context.Context, s *model.Session) error
	GetSession(ctx context.Context, id string) (*model.Session, error)
	ListSessions(ctx context.Context, filter model.SessionFilter) ([]*model.Session, int, error) // returns sessions, total count, error

	// Events
	RecordEvent(ctx context.Context, event *model.Event) error
	GetEvents(ctx context.Context, sessionID string) ([]*model.Event, error)

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Close() error
}
