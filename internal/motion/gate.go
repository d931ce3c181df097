// Package motion maintains an adaptive per-pixel background model of the
// scene and reports the fraction of frame area that changed versus
// background.
package motion

import (
	"image"
	"image/color"
)

// Params configures the background model. Zero-valued fields fall back to
// defaults at use, matching the grid defaults elsewhere in the system.
type Params struct {
	// UpdateFraction is the EMA alpha applied to the per-pixel average and
	// spread on every observation. Default 0.02 (long history window).
	UpdateFraction float32
	// ClosenessMultiplier scales the per-pixel spread into the acceptance
	// window: deviations beyond multiplier*(spread+noise) are foreground.
	// Default 3.0.
	ClosenessMultiplier float32
	// NoiseFloor is the minimum expected luminance noise in [0,255] units,
	// keeping the acceptance window open on very stable pixels. Default 8.
	NoiseFloor float32
	// WorkWidth is the downscaled evaluation width. Frames are sampled down
	// to this width (height proportional) to bound per-frame cost.
	// Default 160.
	WorkWidth int
}

func (p Params) withDefaults() Params {
	if p.UpdateFraction <= 0 || p.UpdateFraction > 1 {
		p.UpdateFraction = 0.02
	}
	if p.ClosenessMultiplier <= 0 {
		p.ClosenessMultiplier = 3.0
	}
	if p.NoiseFloor <= 0 {
		p.NoiseFloor = 8
	}
	if p.WorkWidth <= 0 {
		p.WorkWidth = 160
	}
	return p
}

// Gate holds the per-pixel background estimate for one camera. It is owned
// by a single pipeline instance and is not safe for concurrent use.
//
// Each pixel keeps an exponentially weighted average luminance and an
// exponentially weighted spread (mean absolute deviation). A pixel whose
// observation deviates from its average by more than
// multiplier*(spread+noise) counts as foreground. Every observation updates
// the model, foreground or not, so the background adapts to gradual scene
// change (lighting, parked objects) without separate bookkeeping.
type Gate struct {
	params Params
	w, h   int
	avg    []float32
	spread []float32
	seeded bool
}

// NewGate returns a Gate with an empty background model. The first observed
// frame seeds the model and reports zero motion.
func NewGate(params Params) *Gate {
	return &Gate{params: params.withDefaults()}
}

// Observe updates the background model with the frame and returns the motion
// ratio: foreground pixels / total pixels, in [0,1]. Degraded or garbage
// input yields a degraded ratio, never an error.
func (g *Gate) Observe(img image.Image) float64 {
	if img == nil {
		return 0
	}
	lum, w, h := g.sample(img)
	if w == 0 || h == 0 {
		return 0
	}

	if !g.seeded || w != g.w || h != g.h {
		g.seed(lum, w, h)
		return 0
	}

	alpha := g.params.UpdateFraction
	mult := g.params.ClosenessMultiplier
	noise := g.params.NoiseFloor

	foreground := 0
	for i, px := range lum {
		diff := px - g.avg[i]
		if diff < 0 {
			diff = -diff
		}
		if diff > mult*(g.spread[i]+noise) {
			foreground++
		}
		g.avg[i] += alpha * (px - g.avg[i])
		g.spread[i] += alpha * (diff - g.spread[i])
	}
	return float64(foreground) / float64(len(lum))
}

// seed initialises the model from the first frame (or after a resolution
// change, which invalidates any prior estimate).
func (g *Gate) seed(lum []float32, w, h int) {
	g.w, g.h = w, h
	g.avg = make([]float32, len(lum))
	copy(g.avg, lum)
	g.spread = make([]float32, len(lum))
	g.seeded = true
}

// sample downscales the frame to the working resolution by point sampling
// and converts to luminance.
func (g *Gate) sample(img image.Image) ([]float32, int, int) {
	b := img.Bounds()
	srcW, srcH := b.Dx(), b.Dy()
	if srcW == 0 || srcH == 0 {
		return nil, 0, 0
	}

	w := g.params.WorkWidth
	if srcW < w {
		w = srcW
	}
	h := srcH * w / srcW
	if h == 0 {
		h = 1
	}

	lum := make([]float32, w*h)
	for y := 0; y < h; y++ {
		sy := b.Min.Y + y*srcH/h
		for x := 0; x < w; x++ {
			sx := b.Min.X + x*srcW/w
			gray := color.GrayModel.Convert(img.At(sx, sy)).(color.Gray)
			lum[y*w+x] = float32(gray.Y)
		}
	}
	return lum, w, h
}
