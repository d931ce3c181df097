//go:build !cv
// +build !cv

package detect

import (
	"context"
	"fmt"
	"image"
)

// YOLODetector is a stub implementation when OpenCV support is disabled.
// Build with -tags=cv to enable DNN inference.
type YOLODetector struct{}

// NewYOLODetector is a stub implementation when OpenCV support is disabled.
func NewYOLODetector(modelPath string) (*YOLODetector, error) {
	return nil, fmt.Errorf("OpenCV support not enabled: rebuild with -tags=cv to enable DNN inference")
}

// Detect is never reachable in non-cv builds; NewYOLODetector always fails.
func (d *YOLODetector) Detect(ctx context.Context, img image.Image) ([]Candidate, error) {
	return nil, fmt.Errorf("OpenCV support not enabled")
}

// Close releases nothing in non-cv builds.
func (d *YOLODetector) Close() error { return nil }
