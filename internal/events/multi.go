package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// MultiPublisher fans each event out to every wrapped publisher. A failing
// publisher does not stop delivery to the others.
type MultiPublisher struct {
	mu   sync.RWMutex
	pubs []Publisher
}

// NewMultiPublisher combines pubs, skipping nil entries.
func NewMultiPublisher(pubs ...Publisher) *MultiPublisher {
	m := &MultiPublisher{}
	for _, p := range pubs {
		m.Add(p)
	}
	return m
}

// Add appends p. It is safe to call while events are being published.
func (m *MultiPublisher) Add(p Publisher) {
	if p == nil {
		return
	}
	m.mu.Lock()
	m.pubs = append(m.pubs, p)
	m.mu.Unlock()
}

// Len reports how many publishers are wrapped.
func (m *MultiPublisher) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pubs)
}

func (m *MultiPublisher) Publish(ctx context.Context, topic string, event any) error {
	m.mu.RLock()
	pubs := m.pubs
	m.mu.RUnlock()

	var errs []error
	for i, p := range pubs {
		if err := p.Publish(ctx, topic, event); err != nil {
			errs = append(errs, fmt.Errorf("publisher %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func (m *MultiPublisher) Close() error {
	m.mu.RLock()
	pubs := m.pubs
	m.mu.RUnlock()

	var errs []error
	for _, p := range pubs {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
