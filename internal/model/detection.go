package model

import "math"

// Box is an axis-aligned bounding box in frame pixel coordinates.
type Box struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Width returns the horizontal extent of the box.
func (b Box) Width() float64 { return b.X2 - b.X1 }

// Height returns the vertical extent of the box.
func (b Box) Height() float64 { return b.Y2 - b.Y1 }

// Detection is one candidate reported by the object detector for a frame.
// Detections are consumed immediately and never persisted on their own.
type Detection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// HasValidConfidence reports whether the confidence lies in [0,1].
func (d Detection) HasValidConfidence() bool {
	if math.IsNaN(d.Confidence) {
		return false
	}
	return d.Confidence >= 0 && d.Confidence <= 1
}
