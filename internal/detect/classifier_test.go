package detect

import (
	"math"
	"testing"

	"github.com/alfredjeanlab/baywatch/internal/model"
)

func TestNewClassifier_Validation(t *testing.T) {
	for _, tc := range []struct {
		name      string
		target    string
		threshold float64
		wantErr   bool
	}{
		{"default", "truck", DefaultThreshold, false},
		{"zero threshold", "truck", 0, false},
		{"one threshold", "truck", 1, false},
		{"empty target", "", 0.5, true},
		{"negative threshold", "truck", -0.1, true},
		{"threshold above one", "truck", 1.5, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewClassifier(tc.target, tc.threshold)
			if (err != nil) != tc.wantErr {
				t.Fatalf("NewClassifier(%q, %v) err = %v, wantErr %v", tc.target, tc.threshold, err, tc.wantErr)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	c, err := NewClassifier("truck", 0.5)
	if err != nil {
		t.Fatalf("NewClassifier: %v", err)
	}

	for _, tc := range []struct {
		name       string
		candidates []model.Detection
		want       bool
		wantConf   float64
	}{
		{"empty frame", nil, false, 0},
		{"other label", []model.Detection{{Label: "car", Confidence: 0.99}}, false, 0},
		{"above threshold", []model.Detection{{Label: "truck", Confidence: 0.83}}, true, 0.83},
		{"exactly threshold", []model.Detection{{Label: "truck", Confidence: 0.5}}, false, 0},
		{"below threshold", []model.Detection{{Label: "truck", Confidence: 0.49}}, false, 0},
		{"label is case sensitive", []model.Detection{{Label: "Truck", Confidence: 0.9}}, false, 0},
		{"first match wins", []model.Detection{
			{Label: "truck", Confidence: 0.3},
			{Label: "truck", Confidence: 0.6},
			{Label: "truck", Confidence: 0.9},
		}, true, 0.6},
		{"mixed labels", []model.Detection{
			{Label: "person", Confidence: 0.95},
			{Label: "truck", Confidence: 0.71},
		}, true, 0.71},
		{"invalid confidence skipped", []model.Detection{
			{Label: "truck", Confidence: 1.7},
			{Label: "truck", Confidence: math.NaN()},
			{Label: "truck", Confidence: 0.55},
		}, true, 0.55},
		{"only invalid confidence", []model.Detection{{Label: "truck", Confidence: -3}}, false, 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := c.Classify(tc.candidates)
			if ok != tc.want {
				t.Fatalf("Classify ok = %v, want %v", ok, tc.want)
			}
			if ok && got.Confidence != tc.wantConf {
				t.Fatalf("Classify confidence = %v, want %v", got.Confidence, tc.wantConf)
			}
		})
	}
}

func TestClassify_ZeroThresholdStillStrict(t *testing.T) {
	c, err := NewClassifier("truck", 0)
	if err != nil {
		t.Fatalf("NewClassifier: %v", err)
	}
	if _, ok := c.Classify([]model.Detection{{Label: "truck", Confidence: 0}}); ok {
		t.Fatal("confidence equal to a zero threshold must not count")
	}
	if _, ok := c.Classify([]model.Detection{{Label: "truck", Confidence: 0.01}}); !ok {
		t.Fatal("expected a match above a zero threshold")
	}
}
