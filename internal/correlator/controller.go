// Package correlator owns the presence-gated correlation state: the presence
// flag, the single open session and the tag ingest gate. Both input flows
// (frames and tag reads) are serialized through one mutex.
package correlator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/baywatch/internal/dedup"
	"github.com/alfredjeanlab/baywatch/internal/model"
)

// Sink receives session lifecycle and tag outcomes. Calls are made while the
// controller lock is held, in the order the state changed, so implementations
// must not block and must not call back into the Controller.
type Sink interface {
	SessionOpened(ctx context.Context, s *model.Session)
	SessionClosed(ctx context.Context, s *model.Session)
	TagObserved(ctx context.Context, obs model.TagObservation)
}

// Transition is the result of feeding one frame to the controller.
type Transition int

const (
	NoTransition Transition = iota
	Arrived
	Departed
)

func (t Transition) String() string {
	switch t {
	case Arrived:
		return "arrived"
	case Departed:
		return "departed"
	default:
		return "none"
	}
}

// Options configures a Controller.
type Options struct {
	TargetLabel string
	Dedup       *dedup.Cache
	NewID       func() string
	Sink        Sink
	Logger      *slog.Logger
}

// Controller is the presence state machine and tag ingest gate.
type Controller struct {
	target string
	dedup  *dedup.Cache
	newID  func() string
	sink   Sink
	logger *slog.Logger

	mu      sync.Mutex
	present bool
	open    *model.Session
	closed  uint64
}

// New returns a controller in the Absent state.
func New(opts Options) *Controller {
	c := &Controller{
		target: opts.TargetLabel,
		dedup:  opts.Dedup,
		newID:  opts.NewID,
		sink:   opts.Sink,
		logger: opts.Logger,
	}
	if c.dedup == nil {
		c.dedup = dedup.New(dedup.DefaultWindow)
	}
	if c.newID == nil {
		c.newID = func() string { return "" }
	}
	if c.sink == nil {
		c.sink = nopSink{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// ObserveFrame applies one classified frame. present reports whether the
// target was detected; det is the matching candidate when it was.
func (c *Controller) ObserveFrame(ctx context.Context, det model.Detection, present bool, now time.Time) Transition {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case present && !c.present:
		label := det.Label
		if label == "" {
			label = c.target
		}
		c.open = model.NewSession(c.newID(), label, det.Confidence, now)
		c.present = true
		c.sink.SessionOpened(ctx, c.open.Clone())
		return Arrived

	case !present && c.present:
		s := c.open
		c.open = nil
		c.present = false
		if err := s.Close(now); err != nil {
			// Only reachable if the session was closed elsewhere.
			c.logger.Error("closing session", "session", s.ID, "err", err)
		}
		c.closed++
		// The closed session is handed off; a new arrival always starts a
		// fresh Session, so nothing can append to s after this point.
		c.sink.SessionClosed(ctx, s)
		return Departed
	}
	return NoTransition
}

// OnTagRead passes a decoded tag read through the gate. Reads while absent are
// ignored; reads within the buffer window of the last accepted read of the
// same tag are duplicates; everything else is appended to the open session.
func (c *Controller) OnTagRead(ctx context.Context, read model.TagRead) model.TagObservation {
	c.mu.Lock()
	defer c.mu.Unlock()

	obs := model.TagObservation{Read: read}
	switch {
	case !c.present || c.open == nil:
		obs.Outcome = model.TagIgnored

	case !c.dedup.Accept(read.TagID, read.SourceIP, read.ReceivedAt):
		obs.Outcome = model.TagDuplicate
		obs.SessionID = c.open.ID

	default:
		obs.Outcome = model.TagAccepted
		obs.SessionID = c.open.ID
		appended, err := c.open.AddTag(read)
		if err != nil {
			c.logger.Error("appending tag", "session", c.open.ID, "tag", read.TagID, "err", err)
		}
		obs.Appended = appended
	}

	c.sink.TagObserved(ctx, obs)
	return obs
}

// Present reports the current presence flag.
func (c *Controller) Present() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.present
}

// OpenSession returns a copy of the open session, or nil when absent.
func (c *Controller) OpenSession() *model.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open == nil {
		return nil
	}
	return c.open.Clone()
}

// Status fills the correlation part of a status snapshot.
func (c *Controller) Status() model.Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := model.Status{
		Present:        c.present,
		TargetLabel:    c.target,
		SessionsClosed: c.closed,
		DedupEntries:   c.dedup.Len(),
		BufferWindow:   c.dedup.Window().String(),
	}
	if c.open != nil {
		st.OpenSession = c.open.Clone()
	}
	return st
}

type nopSink struct{}

func (nopSink) SessionOpened(context.Context, *model.Session)     {}
func (nopSink) SessionClosed(context.Context, *model.Session)     {}
func (nopSink) TagObserved(context.Context, model.TagObservation) {}
