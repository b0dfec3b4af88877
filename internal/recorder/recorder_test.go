package recorder

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alfredjeanlab/baywatch/internal/events"
	"github.com/alfredjeanlab/baywatch/internal/model"
	"github.com/alfredjeanlab/baywatch/internal/store"
	"github.com/alfredjeanlab/baywatch/internal/store/memory"
)

type capturePublisher struct {
	mu     sync.Mutex
	topics []string
	err    error
}

func (p *capturePublisher) Publish(_ context.Context, topic string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return p.err
}

func (p *capturePublisher) Close() error { return nil }

func newTestLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

var t0 = time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

func runDwell(r *Recorder) *model.Session {
	ctx := context.Background()
	s := model.NewSession("ds-rec1", "truck", 0.88, t0)
	r.SessionOpened(ctx, s.Clone())

	accepted := model.TagRead{TagID: "AA11", SourceIP: "10.2.0.4", ReceivedAt: t0.Add(time.Second)}
	_, _ = s.AddTag(accepted)
	r.TagObserved(ctx, model.TagObservation{Read: accepted, Outcome: model.TagAccepted, SessionID: s.ID, Appended: true})
	r.TagObserved(ctx, model.TagObservation{
		Read:      model.TagRead{TagID: "AA11", SourceIP: "10.2.0.4", ReceivedAt: t0.Add(2 * time.Second)},
		Outcome:   model.TagDuplicate,
		SessionID: s.ID,
	})
	r.TagObserved(ctx, model.TagObservation{
		Read:    model.TagRead{TagID: "BB22", SourceIP: "10.2.0.4", ReceivedAt: t0.Add(20 * time.Second)},
		Outcome: model.TagIgnored,
	})

	_ = s.Close(t0.Add(12 * time.Second))
	r.SessionClosed(ctx, s)
	return s
}

func TestRecorder_PersistsAndPublishes(t *testing.T) {
	st := memory.New()
	pub := &capturePublisher{}
	logger, buf := newTestLogger()

	r := New(st, pub, logger)
	runDwell(r)
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, err := st.GetSession(context.Background(), "ds-rec1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.IsOpen() || len(got.Tags) != 1 || got.Tags[0] != "AA11" || got.SourceIPString() != "10.2.0.4" {
		t.Fatalf("stored session = %+v", got)
	}

	evs, err := st.GetEvents(context.Background(), "ds-rec1")
	if err != nil {
		t.Fatalf("GetEvents: %v", err)
	}
	wantTopics := []string{
		events.TopicObjectArrived,
		events.TopicTagAccepted,
		events.TopicTagDuplicate,
		events.TopicObjectDeparted,
	}
	if len(evs) != len(wantTopics) {
		t.Fatalf("stored %d events, want %d", len(evs), len(wantTopics))
	}
	for i, want := range wantTopics {
		if evs[i].Topic != want {
			t.Errorf("event %d topic = %s, want %s", i, evs[i].Topic, want)
		}
	}

	// The ignored read is published but not stored.
	if len(pub.topics) != 5 || pub.topics[3] != events.TopicTagIgnored {
		t.Fatalf("published = %v", pub.topics)
	}

	logs := buf.String()
	for _, want := range []string{
		"object arrived",
		"tag accepted",
		"duplicate tag ignored",
		"tag ignored, no object present",
		"object departed",
		"dwell=12s",
		"tags=[AA11]",
		"source_ip=10.2.0.4",
	} {
		if !strings.Contains(logs, want) {
			t.Errorf("log output missing %q:\n%s", want, logs)
		}
	}
}

type failingStore struct {
	store.Store
}

func (failingStore) RunInTransaction(context.Context, func(store.Store) error) error {
	return errors.New("database unavailable")
}

func TestRecorder_FailuresAreBestEffort(t *testing.T) {
	pub := &capturePublisher{err: errors.New("broker down")}
	logger, buf := newTestLogger()

	r := New(failingStore{}, pub, logger)
	runDwell(r)
	r.Close()

	if len(pub.topics) != 5 {
		t.Fatalf("published %d events, want 5 despite store failures", len(pub.topics))
	}
	logs := buf.String()
	if !strings.Contains(logs, "persisting session") || !strings.Contains(logs, "publishing event") {
		t.Fatalf("expected failure logs:\n%s", logs)
	}
}

func TestRecorder_NilStoreAndPublisher(t *testing.T) {
	logger, buf := newTestLogger()
	r := New(nil, nil, logger)
	runDwell(r)
	r.Close()
	if !strings.Contains(buf.String(), "object departed") {
		t.Fatal("departure not logged")
	}
}

type blockingPublisher struct {
	release chan struct{}
}

func (p *blockingPublisher) Publish(context.Context, string, any) error {
	<-p.release
	return nil
}

func (p *blockingPublisher) Close() error { return nil }

func TestRecorder_FullQueueDrops(t *testing.T) {
	pub := &blockingPublisher{release: make(chan struct{})}
	logger, _ := newTestLogger()
	r := New(nil, pub, logger, WithQueueSize(1))

	obs := model.TagObservation{Read: model.TagRead{TagID: "AA11"}, Outcome: model.TagIgnored}
	for i := 0; i < 10; i++ {
		r.TagObserved(context.Background(), obs)
	}
	if r.Dropped() == 0 {
		t.Fatal("expected drops with a blocked worker and a queue of one")
	}
	close(pub.release)
	r.Close()

	// Callbacks after Close are logged and counted, never panic.
	before := r.Dropped()
	r.TagObserved(context.Background(), obs)
	if r.Dropped() != before+1 {
		t.Fatal("post-close job was not counted as dropped")
	}
}

// slowStore delays every transaction, like a database under load.
type slowStore struct {
	*memory.Store
	delay time.Duration
}

func (s slowStore) RunInTransaction(ctx context.Context, fn func(store.Store) error) error {
	time.Sleep(s.delay)
	return s.Store.RunInTransaction(ctx, fn)
}

func TestRecorder_SlowStoreKeepsLifecycle(t *testing.T) {
	ms := memory.New()
	logger, _ := newTestLogger()
	r := New(slowStore{Store: ms, delay: 20 * time.Millisecond}, nil, logger, WithQueueSize(4))
	ctx := context.Background()

	s := model.NewSession("ds-slow", "truck", 0.9, t0)
	r.SessionOpened(ctx, s.Clone())
	read := model.TagRead{TagID: "AA11", SourceIP: "10.2.0.4", ReceivedAt: t0.Add(time.Second)}
	_, _ = s.AddTag(read)
	for i := 0; i < 10; i++ {
		r.TagObserved(ctx, model.TagObservation{Read: read, Outcome: model.TagDuplicate, SessionID: s.ID})
	}
	_ = s.Close(t0.Add(time.Minute))
	r.SessionClosed(ctx, s)
	r.Close()

	if r.Dropped() == 0 {
		t.Fatal("expected tag events to be shed behind a slow store")
	}
	got, err := ms.GetSession(ctx, "ds-slow")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.IsOpen() {
		t.Fatal("closed session was persisted as open")
	}
	if len(got.Tags) != 1 || got.Tags[0] != "AA11" {
		t.Fatalf("tags = %v, want [AA11]", got.Tags)
	}

	evts, err := ms.GetEvents(ctx, "ds-slow")
	if err != nil {
		t.Fatalf("GetEvents: %v", err)
	}
	if first, last := evts[0].Topic, evts[len(evts)-1].Topic; first != events.TopicObjectArrived || last != events.TopicObjectDeparted {
		t.Fatalf("event order %s ... %s, want arrival first and departure last", first, last)
	}
}
