// Package memory implements store.Store in process memory. It is used when no
// database is configured; contents are lost on restart.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/alfredjeanlab/baywatch/internal/model"
	"github.com/alfredjeanlab/baywatch/internal/store"
)

// Store keeps sessions and events in maps guarded by a mutex.
type Store struct {
	txMu sync.Mutex // serializes transactions

	mu       sync.RWMutex
	sessions map[string]*model.Session
	events   []*model.Event
	nextID   int64
	now      func() time.Time
}

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		sessions: make(map[string]*model.Session),
		now:      time.Now,
	}
}

func (s *Store) CreateSession(_ context.Context, sess *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess.Clone()
	return nil
}

func (s *Store) CloseSession(_ context.Context, sess *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess.Clone()
	return nil
}

func (s *Store) GetSession(_ context.Context, id string) (*model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return sess.Clone(), nil
}

func (s *Store) ListSessions(_ context.Context, filter model.SessionFilter) ([]*model.Session, int, error) {
	s.mu.RLock()
	var matched []*model.Session
	for _, sess := range s.sessions {
		if filter.TagID != "" && !sess.HasTag(filter.TagID) {
			continue
		}
		if filter.Open != nil && sess.IsOpen() != *filter.Open {
			continue
		}
		if filter.Since != nil && sess.StartedAt.Before(*filter.Since) {
			continue
		}
		matched = append(matched, sess.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].StartedAt.Equal(matched[j].StartedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].StartedAt.After(matched[j].StartedAt)
	})

	total := len(matched)
	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil, total, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (s *Store) RecordEvent(_ context.Context, event *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	event.ID = s.nextID
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now()
	}
	e := *event
	e.Payload = slices.Clone(event.Payload)
	s.events = append(s.events, &e)
	return nil
}

func (s *Store) GetEvents(_ context.Context, sessionID string) ([]*model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Event
	for _, e := range s.events {
		if e.SessionID == sessionID {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

// RunInTransaction runs fn against the store and restores the previous
// contents if fn returns an error.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	sessions := make(map[string]*model.Session, len(s.sessions))
	for id, sess := range s.sessions {
		sessions[id] = sess
	}
	events := slices.Clone(s.events)
	nextID := s.nextID
	s.mu.RUnlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.sessions = sessions
		s.events = events
		s.nextID = nextID
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) Close() error { return nil }
