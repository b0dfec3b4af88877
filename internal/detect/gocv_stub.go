//go:build !gocv

package detect

import (
	"context"
	"errors"
)

// CaptureConfig describes an in-process capture and inference pipeline.
type CaptureConfig struct {
	Camera      string
	Weights     string
	ModelConfig string
	Names       string
	InputSize   int
	MinScore    float64
}

// ErrNoCapture is returned by OpenCapture in builds without OpenCV.
var ErrNoCapture = errors.New("built without gocv support (rebuild with -tags gocv)")

// CaptureSource is unavailable in this build.
type CaptureSource struct{}

// OpenCapture always fails in builds without OpenCV.
func OpenCapture(CaptureConfig) (*CaptureSource, error) { return nil, ErrNoCapture }

func (s *CaptureSource) Name() string                        { return "gocv" }
func (s *CaptureSource) Next(context.Context) (Frame, error) { return Frame{}, ErrNoCapture }
func (s *CaptureSource) Close() error                        { return nil }
