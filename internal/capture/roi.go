package capture

import "fmt"

// CameraROI is the capture zone: a rectangle in frame-relative coordinates,
// each field normalized to [0,1]. Immutable per pipeline instance.
type CameraROI struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// DefaultROI is the center-biased capture zone used when configuration does
// not supply one.
func DefaultROI() CameraROI {
	return CameraROI{X: 0.3, Y: 0.35, Width: 0.4, Height: 0.3}
}

// Validate checks that the rectangle lies within the unit square.
func (r CameraROI) Validate() error {
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"x", r.X}, {"y", r.Y}, {"width", r.Width}, {"height", r.Height},
	} {
		if f.value < 0 || f.value > 1 {
			return fmt.Errorf("roi %s must be in [0,1], got %v", f.name, f.value)
		}
	}
	if r.X+r.Width > 1 {
		return fmt.Errorf("roi x+width must be <= 1, got %v", r.X+r.Width)
	}
	if r.Y+r.Height > 1 {
		return fmt.Errorf("roi y+height must be <= 1, got %v", r.Y+r.Height)
	}
	return nil
}

// InCaptureZone reports whether the point (cx, cy), in pixel coordinates of
// a frameW x frameH frame, lies inside the capture zone. Bounds are
// inclusive. A vehicle is "in zone" once its bbox centroid enters the
// rectangle, even if its edges extend outside it.
//
// Pure function of its inputs.
func (r CameraROI) InCaptureZone(cx, cy float64, frameW, frameH int) bool {
	xMin := float64(frameW) * r.X
	xMax := float64(frameW) * (r.X + r.Width)
	yMin := float64(frameH) * r.Y
	yMax := float64(frameH) * (r.Y + r.Height)
	return cx >= xMin && cx <= xMax && cy >= yMin && cy <= yMax
}
