// Package detect turns raw per-frame detector output into a presence signal.
//
// A Source yields frames of detection candidates from some capture backend
// (an external detector process, a NATS subject, a recorded file, or an
// in-process OpenCV pipeline when built with the gocv tag). The Classifier
// picks at most one candidate per frame: the first one matching the target
// label with confidence strictly above the threshold.
package detect

import (
	"fmt"

	"github.com/alfredjeanlab/baywatch/internal/model"
)

// DefaultThreshold is the confidence a candidate must exceed to count.
const DefaultThreshold = 0.5

// Classifier selects the target object from a frame's candidates.
type Classifier struct {
	target    string
	threshold float64
}

// NewClassifier returns a classifier for the given label and threshold.
func NewClassifier(target string, threshold float64) (*Classifier, error) {
	if target == "" {
		return nil, fmt.Errorf("target label is required")
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("confidence threshold %v outside [0,1]", threshold)
	}
	return &Classifier{target: target, threshold: threshold}, nil
}

// Target returns the watched label.
func (c *Classifier) Target() string { return c.target }

// Threshold returns the confidence threshold.
func (c *Classifier) Threshold() float64 { return c.threshold }

// Classify scans candidates in reported order and returns the first match.
// Candidates with other labels or out-of-range confidence are ignored.
func (c *Classifier) Classify(candidates []model.Detection) (model.Detection, bool) {
	for _, d := range candidates {
		if d.Label != c.target || !d.HasValidConfidence() {
			continue
		}
		if d.Confidence > c.threshold {
			return d, true
		}
	}
	return model.Detection{}, false
}
