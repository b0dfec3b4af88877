package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
)

// topicRoot is the subject namespace every published baywatch event lives in.
const topicRoot = "baywatch."

// subscriberBuffer is the per-subscription channel capacity.
const subscriberBuffer = 64

// ErrForeignTopic is returned when publishing outside the baywatch namespace
// or to a wildcard subject.
var ErrForeignTopic = errors.New("topic outside baywatch namespace")

// natsOptions are shared by the publisher and subscriber: a named connection
// that reconnects forever and logs link changes.
func natsOptions(name string, extra ...nats.Option) []nats.Option {
	opts := []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "conn", name, "err", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats reconnected", "conn", name, "url", nc.ConnectedUrl())
		}),
	}
	return append(opts, extra...)
}

// checkTopic rejects subjects a publisher must not emit on.
func checkTopic(topic string) error {
	if !strings.HasPrefix(topic, topicRoot) || len(topic) == len(topicRoot) {
		return fmt.Errorf("%w: %q", ErrForeignTopic, topic)
	}
	if strings.ContainsAny(topic, "*> \t") {
		return fmt.Errorf("%w: %q is not a concrete subject", ErrForeignTopic, topic)
	}
	return nil
}

// NATSPublisher publishes session and tag events as JSON on baywatch.*
// subjects; the topic is used as the subject verbatim.
type NATSPublisher struct {
	conn *nats.Conn
}

func NewNATSPublisher(url string, opts ...nats.Option) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, natsOptions("baywatch-publisher", opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &NATSPublisher{conn: nc}, nil
}

func (p *NATSPublisher) Publish(_ context.Context, topic string, event any) error {
	if err := checkTopic(topic); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling %s event: %w", topic, err)
	}
	if err := p.conn.Publish(topic, data); err != nil {
		return fmt.Errorf("publishing %s: %w", topic, err)
	}
	return nil
}

func (p *NATSPublisher) Close() error {
	// Drain flushes buffered events before closing; fall back to a hard
	// close if the connection is already gone.
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
	return nil
}

// NATSSubscriber receives raw payloads from NATS subjects. It backs the
// detector frame source and any wildcard listener on baywatch.>.
type NATSSubscriber struct {
	conn    *nats.Conn
	dropped atomic.Uint64
}

// NewNATSSubscriber connects to NATS with automatic reconnection support.
// Extra nats.Option values are appended after the defaults.
func NewNATSSubscriber(url string, opts ...nats.Option) (*NATSSubscriber, error) {
	nc, err := nats.Connect(url, natsOptions("baywatch-subscriber", opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &NATSSubscriber{conn: nc}, nil
}

// Subscribe returns a channel of payloads for subject (wildcards allowed).
// A slow reader loses messages rather than stalling the NATS client; losses
// are counted in Dropped. The cancel function unsubscribes and closes the
// channel.
func (s *NATSSubscriber) Subscribe(subject string) (<-chan []byte, func(), error) {
	ch := make(chan []byte, subscriberBuffer)

	var (
		mu     sync.Mutex
		closed bool
		once   sync.Once
	)

	sub, err := s.conn.Subscribe(subject, func(msg *nats.Msg) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- msg.Data:
		default:
			if s.dropped.Add(1) == 1 {
				slog.Warn("nats subscriber behind, dropping messages", "subject", msg.Subject)
			}
		}
	})
	if err != nil {
		close(ch)
		return nil, nil, fmt.Errorf("subscribing to %s: %w", subject, err)
	}
	// The subscription must be registered server-side before returning so
	// that publishes on other connections are routed to it.
	if err := s.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		close(ch)
		return nil, nil, fmt.Errorf("flushing subscription to %s: %w", subject, err)
	}

	cancel := func() {
		once.Do(func() {
			_ = sub.Unsubscribe()
			mu.Lock()
			defer mu.Unlock()
			closed = true
			for {
				select {
				case <-ch:
				default:
					close(ch)
					return
				}
			}
		})
	}

	return ch, cancel, nil
}

// Dropped reports how many messages were discarded because a subscription
// channel was full.
func (s *NATSSubscriber) Dropped() uint64 { return s.dropped.Load() }

func (s *NATSSubscriber) Close() error {
	s.conn.Close()
	return nil
}
