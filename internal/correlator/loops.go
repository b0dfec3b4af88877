package correlator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/baywatch/internal/detect"
	"github.com/alfredjeanlab/baywatch/internal/model"
)

// FrameLoop drives the presence flow: acquire a frame, classify it, feed the
// controller.
type FrameLoop struct {
	src    detect.Source
	cls    *detect.Classifier
	ctrl   *Controller
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	stats model.DetectorStatus
}

// NewFrameLoop wires a source and classifier to ctrl.
func NewFrameLoop(src detect.Source, cls *detect.Classifier, ctrl *Controller, logger *slog.Logger) *FrameLoop {
	if logger == nil {
		logger = slog.Default()
	}
	return &FrameLoop{
		src:    src,
		cls:    cls,
		ctrl:   ctrl,
		logger: logger,
		now:    time.Now,
		stats:  model.DetectorStatus{Source: src.Name()},
	}
}

// Run processes frames until the source is exhausted or ctx is cancelled.
// Skipped frames are logged and never count as absence. A source failure
// other than a skip ends the loop with an error.
func (l *FrameLoop) Run(ctx context.Context) error {
	l.logger.Info("frame loop started", "source", l.src.Name(), "target", l.cls.Target(), "threshold", l.cls.Threshold())
	for {
		f, err := l.src.Next(ctx)
		switch {
		case err == nil:
		case errors.Is(err, detect.ErrSkipFrame):
			l.skip()
			l.logger.Warn("skipping frame", "err", err)
			continue
		case errors.Is(err, io.EOF):
			l.logger.Info("frame source exhausted", "source", l.src.Name())
			return nil
		case ctx.Err() != nil:
			return nil
		default:
			return fmt.Errorf("frame source %s: %w", l.src.Name(), err)
		}

		det, present, err := l.classify(f)
		if err != nil {
			l.skip()
			l.logger.Error("classifier failed, skipping frame", "seq", f.Seq, "err", err)
			continue
		}
		l.record(present)

		switch l.ctrl.ObserveFrame(ctx, det, present, l.now()) {
		case Arrived:
			l.logger.Debug("presence edge", "seq", f.Seq, "transition", Arrived)
		case Departed:
			l.logger.Debug("presence edge", "seq", f.Seq, "transition", Departed)
		}
	}
}

// classify isolates the classifier so a panic skips the frame instead of
// killing the presence flow.
func (l *FrameLoop) classify(f detect.Frame) (det model.Detection, present bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	det, present = l.cls.Classify(f.Detections)
	return det, present, nil
}

func (l *FrameLoop) skip() {
	l.mu.Lock()
	l.stats.FramesSkipped++
	l.mu.Unlock()
}

func (l *FrameLoop) record(present bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stats.FramesSeen++
	if present {
		l.stats.FramesPresent++
	}
	l.stats.LastFrameAt = l.now()
}

// Stats returns the frame counters.
func (l *FrameLoop) Stats() model.DetectorStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// TagSource yields decoded tag reads. Malformed frames are handled by the
// source; Next returns only valid reads or a terminal error.
type TagSource interface {
	Next(ctx context.Context) (model.TagRead, error)
}

// RunTags drives the tag flow until src fails or ctx is cancelled. The
// presence flow is unaffected by its return.
func RunTags(ctx context.Context, src TagSource, ctrl *Controller) error {
	for {
		read, err := src.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		ctrl.OnTagRead(ctx, read)
	}
}
