package detect

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// ReplaySource reads frames from a JSON-lines recording. With a positive
// speed, frames are paced by the gaps between their recorded timestamps
// divided by speed; with speed 0 they are delivered as fast as they are read.
type ReplaySource struct {
	path   string
	closer io.Closer
	br     *bufio.Reader
	speed  float64
	lastTS time.Time
	line   int
}

// OpenReplay opens a recording file.
func OpenReplay(path string, speed float64) (*ReplaySource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay: %w", err)
	}
	s := NewReplay(f, speed)
	s.path = path
	s.closer = f
	return s, nil
}

// NewReplay reads a recording from r.
func NewReplay(r io.Reader, speed float64) *ReplaySource {
	return &ReplaySource{
		path:  "stream",
		br:    bufio.NewReader(r),
		speed: speed,
	}
}

// Name identifies the source in logs and status output.
func (s *ReplaySource) Name() string { return "replay:" + s.path }

// Next returns the next recorded frame, or io.EOF at the end of the file.
// Blank lines and lines starting with '#' are skipped. An overlong line is a
// skipped frame.
func (s *ReplaySource) Next(ctx context.Context) (Frame, error) {
	for {
		raw, err := readFrameLine(s.br)
		if errors.Is(err, io.EOF) {
			return Frame{}, io.EOF
		}
		s.line++
		if errors.Is(err, ErrSkipFrame) {
			return Frame{}, fmt.Errorf("line %d: %w", s.line, err)
		}
		if err != nil {
			return Frame{}, fmt.Errorf("read replay: %w", err)
		}
		if len(raw) == 0 || bytes.HasPrefix(raw, []byte("#")) {
			continue
		}

		f, err := DecodeFrame(raw, time.Now())
		if err != nil {
			return Frame{}, fmt.Errorf("line %d: %w", s.line, err)
		}
		if err := s.pace(ctx, f.CapturedAt); err != nil {
			return Frame{}, err
		}
		return f, nil
	}
}

func (s *ReplaySource) pace(ctx context.Context, ts time.Time) error {
	defer func() { s.lastTS = ts }()
	if s.speed <= 0 || s.lastTS.IsZero() || !ts.After(s.lastTS) {
		return nil
	}
	wait := time.Duration(float64(ts.Sub(s.lastTS)) / s.speed)
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Close closes the underlying file, if any.
func (s *ReplaySource) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}
