package detect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alfredjeanlab/baywatch/internal/model"
)

// ErrSkipFrame marks a frame that could not be acquired or classified. The
// frame loop logs it and moves on; it is never treated as an absent frame.
var ErrSkipFrame = errors.New("frame skipped")

// Frame is one processed video frame.
type Frame struct {
	Seq        uint64            `json:"seq"`
	CapturedAt time.Time         `json:"ts"`
	Detections []model.Detection `json:"detections"`
}

// Source produces frames. Next blocks until a frame is available. It returns
// an error wrapping ErrSkipFrame for recoverable per-frame failures and
// io.EOF when the source is exhausted.
type Source interface {
	Next(ctx context.Context) (Frame, error)
	Name() string
	Close() error
}

// skipf wraps a per-frame failure so callers can match ErrSkipFrame.
func skipf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSkipFrame, fmt.Sprintf(format, args...))
}

// wireFrame is the JSON shape emitted by external detectors. Boxes are sent
// as [x1, y1, x2, y2].
type wireFrame struct {
	Seq        uint64          `json:"seq"`
	TS         string          `json:"ts"`
	Detections []wireDetection `json:"detections"`
}

type wireDetection struct {
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	Box        []float64 `json:"box"`
}

// DecodeFrame parses one JSON-encoded frame. A missing timestamp is filled
// with now.
func DecodeFrame(data []byte, now time.Time) (Frame, error) {
	var wf wireFrame
	if err := json.Unmarshal(data, &wf); err != nil {
		return Frame{}, skipf("decode frame: %v", err)
	}

	f := Frame{Seq: wf.Seq, CapturedAt: now}
	if wf.TS != "" {
		ts, err := time.Parse(time.RFC3339Nano, wf.TS)
		if err != nil {
			return Frame{}, skipf("frame %d timestamp %q: %v", wf.Seq, wf.TS, err)
		}
		f.CapturedAt = ts
	}

	f.Detections = make([]model.Detection, 0, len(wf.Detections))
	for i, d := range wf.Detections {
		det := model.Detection{Label: d.Label, Confidence: d.Confidence}
		switch len(d.Box) {
		case 0:
		case 4:
			det.Box = model.Box{X1: d.Box[0], Y1: d.Box[1], X2: d.Box[2], Y2: d.Box[3]}
		default:
			return Frame{}, skipf("frame %d detection %d: box has %d values, want 4", wf.Seq, i, len(d.Box))
		}
		f.Detections = append(f.Detections, det)
	}
	return f, nil
}

// EncodeFrame is the inverse of DecodeFrame.
func EncodeFrame(f Frame) ([]byte, error) {
	wf := wireFrame{
		Seq:        f.Seq,
		Detections: make([]wireDetection, 0, len(f.Detections)),
	}
	if !f.CapturedAt.IsZero() {
		wf.TS = f.CapturedAt.UTC().Format(time.RFC3339Nano)
	}
	for _, d := range f.Detections {
		wf.Detections = append(wf.Detections, wireDetection{
			Label:      d.Label,
			Confidence: d.Confidence,
			Box:        []float64{d.Box.X1, d.Box.Y1, d.Box.X2, d.Box.Y2},
		})
	}
	return json.Marshal(wf)
}
