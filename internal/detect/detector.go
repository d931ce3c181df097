// Package detect defines the object-detection capability consumed by the
// capture pipeline and the vehicle-class filtering applied to its output.
package detect

import (
	"context"
	"image"
)

// Candidate is one detected region, as returned by a Detector: a class
// label, a confidence in [0,1], and a pixel-coordinate bounding box. ROI
// classification is attached later by the pipeline.
type Candidate struct {
	Label      string
	Confidence float64
	Box        image.Rectangle
}

// Center returns the centroid of the candidate's bounding box.
func (c Candidate) Center() (x, y float64) {
	return float64(c.Box.Min.X+c.Box.Max.X) / 2, float64(c.Box.Min.Y+c.Box.Max.Y) / 2
}

// Detector is the external detection capability: a synchronous call taking
// one frame and returning zero or more candidates. Implementations carry no
// per-call state; errors are recoverable and must be treated by callers as
// zero detections.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]Candidate, error)
}

// VehicleLabels is the allow-list of vehicle-like classes (COCO names).
var VehicleLabels = map[string]bool{
	"car":        true,
	"motorcycle": true,
	"bus":        true,
	"truck":      true,
}

// FilterVehicles keeps candidates whose label is on the vehicle allow-list
// and whose confidence exceeds minConfidence, preserving detector output
// order.
func FilterVehicles(cands []Candidate, minConfidence float64) []Candidate {
	var out []Candidate
	for _, c := range cands {
		if VehicleLabels[c.Label] && c.Confidence > minConfidence {
			out = append(out, c)
		}
	}
	return out
}
