//go:build !gocv

package detect

import (
	"context"
	"errors"
	"testing"
)

func TestOpenCapture_Unavailable(t *testing.T) {
	_, err := OpenCapture(CaptureConfig{Camera: "0"})
	if !errors.Is(err, ErrNoCapture) {
		t.Fatalf("err = %v, want ErrNoCapture", err)
	}
	var s CaptureSource
	if _, err := s.Next(context.Background()); !errors.Is(err, ErrNoCapture) {
		t.Fatalf("Next err = %v", err)
	}
}
