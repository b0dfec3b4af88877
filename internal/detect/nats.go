package detect

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/alfredjeanlab/baywatch/internal/events"
)

// NATSSource receives JSON frames published on a NATS subject by a remote
// detector.
type NATSSource struct {
	subject string
	ch      <-chan []byte
	cancel  func()
}

// NewNATSSource subscribes to subject on sub.
func NewNATSSource(sub events.Subscriber, subject string) (*NATSSource, error) {
	if subject == "" {
		return nil, fmt.Errorf("detector subject is required")
	}
	ch, cancel, err := sub.Subscribe(subject)
	if err != nil {
		return nil, err
	}
	return &NATSSource{subject: subject, ch: ch, cancel: cancel}, nil
}

// Name identifies the source in logs and status output.
func (s *NATSSource) Name() string { return "nats:" + s.subject }

// Next blocks until a frame message arrives.
func (s *NATSSource) Next(ctx context.Context) (Frame, error) {
	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case data, ok := <-s.ch:
		if !ok {
			return Frame{}, io.EOF
		}
		return DecodeFrame(data, time.Now())
	}
}

// Close unsubscribes.
func (s *NATSSource) Close() error {
	s.cancel()
	return nil
}
