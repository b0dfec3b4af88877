// Package recorder turns correlation state changes into durable output: a
// log record per change, a persisted session history and published events.
//
// Log records are written synchronously by the callbacks. Persistence and
// publishing happen on a single background worker, in callback order, so a
// slow database or broker never holds up correlation. When the worker falls
// behind, tag events are shed; session open and close jobs are always kept.
package recorder

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alfredjeanlab/baywatch/internal/events"
	"github.com/alfredjeanlab/baywatch/internal/model"
	"github.com/alfredjeanlab/baywatch/internal/store"
)

const (
	defaultQueueSize = 1024
	opTimeout        = 5 * time.Second
)

type jobKind int

const (
	jobOpened jobKind = iota
	jobClosed
	jobTag
)

type job struct {
	kind    jobKind
	session *model.Session
	obs     model.TagObservation
}

// Recorder implements correlator.Sink.
type Recorder struct {
	store  store.Store
	pub    events.Publisher
	logger *slog.Logger

	limit int // max queued tag jobs
	wake  chan struct{}
	done  chan struct{}

	mu      sync.Mutex
	pending []job
	tags    int
	closed  bool

	dropped atomic.Uint64
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithQueueSize sets how many tag jobs may wait for the worker.
func WithQueueSize(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.limit = n
		}
	}
}

// New returns a recorder. A nil store disables persistence and a nil
// publisher disables events; logging is always on.
func New(st store.Store, pub events.Publisher, logger *slog.Logger, opts ...Option) *Recorder {
	if pub == nil {
		pub = &events.NoopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{
		store:  st,
		pub:    pub,
		logger: logger,
		limit:  defaultQueueSize,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	go r.run()
	return r
}

// SessionOpened logs the arrival and queues its persistence.
func (r *Recorder) SessionOpened(_ context.Context, s *model.Session) {
	r.logger.Info("object arrived",
		"session", s.ID,
		"label", s.TargetLabel,
		"confidence", s.Confidence,
		"started_at", s.StartedAt.Format(time.RFC3339Nano))
	r.enqueue(job{kind: jobOpened, session: s})
}

// SessionClosed logs the full dwell summary and queues its persistence.
func (r *Recorder) SessionClosed(_ context.Context, s *model.Session) {
	ended := s.StartedAt
	if s.EndedAt != nil {
		ended = *s.EndedAt
	}
	r.logger.Info("object departed",
		"session", s.ID,
		"started_at", s.StartedAt.Format(time.RFC3339Nano),
		"ended_at", ended.Format(time.RFC3339Nano),
		"dwell", s.Duration(ended).String(),
		"tags", s.Tags,
		"tag_count", len(s.Tags),
		"source_ip", s.SourceIPString())
	r.enqueue(job{kind: jobClosed, session: s})
}

// TagObserved logs the gate outcome for one read and queues the event.
func (r *Recorder) TagObserved(_ context.Context, obs model.TagObservation) {
	attrs := []any{"tag", obs.Read.TagID, "source_ip", obs.Read.SourceIP}
	switch obs.Outcome {
	case model.TagAccepted:
		r.logger.Info("tag accepted", append(attrs, "session", obs.SessionID, "appended", obs.Appended)...)
	case model.TagDuplicate:
		r.logger.Info("duplicate tag ignored", append(attrs, "session", obs.SessionID)...)
	default:
		r.logger.Info("tag ignored, no object present", attrs...)
	}
	r.enqueue(job{kind: jobTag, obs: obs})
}

// Dropped reports how many tag jobs were shed because the worker was behind,
// plus any job received after Close.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

// Close stops accepting work and waits for queued jobs to finish.
func (r *Recorder) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.signal()
	<-r.done
	return nil
}

func (r *Recorder) enqueue(j job) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.dropped.Add(1)
		return
	}
	if j.kind == jobTag && r.tags >= r.limit {
		r.mu.Unlock()
		r.dropped.Add(1)
		r.logger.Warn("recorder behind, dropping tag event", "tag", j.obs.Read.TagID, "session", j.obs.SessionID)
		return
	}
	r.pending = append(r.pending, j)
	if j.kind == jobTag {
		r.tags++
	}
	r.mu.Unlock()
	r.signal()
}

func (r *Recorder) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// run drains pending jobs in order until Close has been called and nothing
// is left.
func (r *Recorder) run() {
	defer close(r.done)
	for {
		r.mu.Lock()
		batch := r.pending
		r.pending = nil
		r.tags = 0
		closed := r.closed
		r.mu.Unlock()

		if len(batch) == 0 {
			if closed {
				return
			}
			<-r.wake
			continue
		}
		for _, j := range batch {
			ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
			r.process(ctx, j)
			cancel()
		}
	}
}

func (r *Recorder) process(ctx context.Context, j job) {
	switch j.kind {
	case jobOpened:
		payload := events.ObjectArrived{
			SessionID:   j.session.ID,
			TargetLabel: j.session.TargetLabel,
			Confidence:  j.session.Confidence,
			StartedAt:   j.session.StartedAt,
		}
		r.persist(ctx, j.session.ID, func(tx store.Store) error {
			if err := tx.CreateSession(ctx, j.session); err != nil {
				return err
			}
			return r.recordEvent(ctx, tx, events.TopicObjectArrived, j.session.ID, payload)
		})
		r.publish(ctx, events.TopicObjectArrived, payload)

	case jobClosed:
		var dwell float64
		if j.session.EndedAt != nil {
			dwell = j.session.Duration(*j.session.EndedAt).Seconds()
		}
		payload := events.ObjectDeparted{Session: j.session, DwellSeconds: dwell}
		r.persist(ctx, j.session.ID, func(tx store.Store) error {
			if err := tx.CloseSession(ctx, j.session); err != nil {
				return err
			}
			return r.recordEvent(ctx, tx, events.TopicObjectDeparted, j.session.ID, payload)
		})
		r.publish(ctx, events.TopicObjectDeparted, payload)

	case jobTag:
		topic := events.TagTopic(j.obs.Outcome)
		payload := events.NewTagObserved(j.obs)
		// Ignored reads belong to no session and are not kept.
		if j.obs.SessionID != "" {
			r.persist(ctx, j.obs.SessionID, func(tx store.Store) error {
				return r.recordEvent(ctx, tx, topic, j.obs.SessionID, payload)
			})
		}
		r.publish(ctx, topic, payload)
	}
}

func (r *Recorder) persist(ctx context.Context, sessionID string, fn func(tx store.Store) error) {
	if r.store == nil {
		return
	}
	if err := r.store.RunInTransaction(ctx, fn); err != nil {
		r.logger.Error("persisting session", "session", sessionID, "err", err)
	}
}

func (r *Recorder) recordEvent(ctx context.Context, tx store.Store, topic, sessionID string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return tx.RecordEvent(ctx, &model.Event{Topic: topic, SessionID: sessionID, Payload: data})
}

func (r *Recorder) publish(ctx context.Context, topic string, payload any) {
	if err := r.pub.Publish(ctx, topic, payload); err != nil {
		r.logger.Warn("publishing event", "topic", topic, "err", err)
	}
}
