package capture

import (
	"context"
	"image"
	"image/draw"
	"time"

	"github.com/roadside-data/capture.report/internal/dedup"
	"github.com/roadside-data/capture.report/internal/detect"
	"github.com/roadside-data/capture.report/internal/monitoring"
	"github.com/roadside-data/capture.report/internal/ratelimit"
	"github.com/roadside-data/capture.report/internal/timeutil"
)

// RejectReason names the stage that stopped a frame.
type RejectReason string

const (
	ReasonNoMotion          RejectReason = "no_motion"
	ReasonNoDetection       RejectReason = "no_detection"
	ReasonNoDetectionInZone RejectReason = "no_detection_in_zone"
	ReasonRateLimited       RejectReason = "rate_limited"
	ReasonDuplicate         RejectReason = "duplicate"
	ReasonError             RejectReason = "error"
)

// Frame is one decoded video frame entering the pipeline.
type Frame struct {
	Image image.Image
	Seq   int64
	Time  time.Time
}

// Outcome is the pipeline's verdict on a frame. When Admitted is true,
// SubImage holds the padded vehicle crop and Detection the winning
// candidate; otherwise Reason names the rejecting stage.
type Outcome struct {
	Admitted  bool
	Reason    RejectReason
	SubImage  image.Image
	Detection detect.Candidate
}

// Params tunes the admission cascade. Zero values take defaults matching
// typical roadside deployments.
type Params struct {
	ROI                 CameraROI
	MotionThreshold     float64
	DetectorConfidence  float64
	SimilarityThreshold float64
	DedupCacheSize      int
	MinCaptureInterval  time.Duration
	CropPadding         float64
}

func (p Params) withDefaults() Params {
	if p.ROI == (CameraROI{}) {
		p.ROI = DefaultROI()
	}
	if p.MotionThreshold == 0 {
		p.MotionThreshold = 0.05
	}
	if p.DetectorConfidence == 0 {
		p.DetectorConfidence = 0.6
	}
	if p.SimilarityThreshold == 0 {
		p.SimilarityThreshold = 0.85
	}
	if p.DedupCacheSize == 0 {
		p.DedupCacheSize = 30
	}
	if p.MinCaptureInterval == 0 {
		p.MinCaptureInterval = 2 * time.Second
	}
	if p.CropPadding == 0 {
		p.CropPadding = 0.2
	}
	return p
}

// MotionGate scores a frame for foreground activity in [0,1].
type MotionGate interface {
	Observe(img image.Image) float64
}

// Pipeline runs the admission cascade for a single camera. Not safe for
// concurrent use: one Pipeline per stream, driven from one goroutine.
// Stages run cheapest first so most frames exit early.
type Pipeline struct {
	params   Params
	gate     MotionGate
	detector detect.Detector
	limiter  *ratelimit.Limiter
	cache    *dedup.Cache
	clock    timeutil.Clock
	stats    *FrameStats
}

// NewPipeline creates a pipeline over the given gate and detector.
func NewPipeline(params Params, gate MotionGate, detector detect.Detector, clock timeutil.Clock) *Pipeline {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	p := params.withDefaults()
	return &Pipeline{
		params:   p,
		gate:     gate,
		detector: detector,
		limiter:  ratelimit.New(p.MinCaptureInterval),
		cache:    dedup.NewCache(p.DedupCacheSize, p.SimilarityThreshold),
		clock:    clock,
		stats:    NewFrameStats(clock),
	}
}

// Process runs one frame through the cascade and returns the verdict.
// Panics in a stage are contained: the frame is rejected with
// ReasonError and the stream keeps running.
func (p *Pipeline) Process(ctx context.Context, frame Frame) (out Outcome) {
	start := p.clock.Now()
	defer func() {
		if r := recover(); r != nil {
			monitoring.Logf("[Pipeline] Recovered from panic processing frame %d: %v", frame.Seq, r)
			p.stats.AddError()
			out = Outcome{Reason: ReasonError}
		}
		p.stats.AddLatency(p.clock.Since(start))
	}()

	p.stats.AddFrame()

	ratio := p.gate.Observe(frame.Image)
	if ratio <= p.params.MotionThreshold {
		return Outcome{Reason: ReasonNoMotion}
	}
	p.stats.AddMotion()

	cands, err := p.detector.Detect(ctx, frame.Image)
	if err != nil {
		// A failed detector call is treated as zero detections so the
		// stream keeps flowing; the error still counts.
		monitoring.Logf("[Pipeline] Detection failed on frame %d: %v", frame.Seq, err)
		p.stats.AddError()
		cands = nil
	}
	vehicles := detect.FilterVehicles(cands, p.params.DetectorConfidence)
	if len(vehicles) == 0 {
		return Outcome{Reason: ReasonNoDetection}
	}
	p.stats.AddDetected()

	b := frame.Image.Bounds()
	winner, ok := p.firstInZone(vehicles, b.Dx(), b.Dy())
	if !ok {
		return Outcome{Reason: ReasonNoDetectionInZone}
	}
	p.stats.AddInZone()

	if !p.limiter.Allow(p.clock.Now()) {
		return Outcome{Reason: ReasonRateLimited}
	}

	crop := cropPadded(frame.Image, winner.Box, p.params.CropPadding)
	fp, err := dedup.FromImage(crop)
	if err != nil {
		monitoring.Logf("[Pipeline] Fingerprint failed on frame %d: %v", frame.Seq, err)
		p.stats.AddError()
		return Outcome{Reason: ReasonError}
	}
	if p.cache.IsDuplicate(fp) {
		p.stats.AddDuplicate()
		return Outcome{Reason: ReasonDuplicate}
	}

	p.stats.AddAdmitted()
	return Outcome{Admitted: true, SubImage: crop, Detection: winner}
}

// RecordCapture marks a successful forward so the rate limiter opens its
// next window from the actual capture time, not the admission time.
func (p *Pipeline) RecordCapture(now time.Time) {
	p.limiter.Record(now)
}

// Stats exposes the pipeline's counters for the periodic reporter.
func (p *Pipeline) Stats() *FrameStats {
	return p.stats
}

// firstInZone returns the first candidate, in detector order, whose
// centroid falls inside the capture zone.
func (p *Pipeline) firstInZone(cands []detect.Candidate, frameW, frameH int) (detect.Candidate, bool) {
	for _, c := range cands {
		cx, cy := c.Center()
		if p.params.ROI.InCaptureZone(cx, cy, frameW, frameH) {
			return c, true
		}
	}
	return detect.Candidate{}, false
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// cropPadded extracts box from img expanded by padding on each side,
// clamped to the frame. Images without a SubImage method are copied.
func cropPadded(img image.Image, box image.Rectangle, padding float64) image.Image {
	padX := int(float64(box.Dx()) * padding)
	padY := int(float64(box.Dy()) * padding)
	r := image.Rect(box.Min.X-padX, box.Min.Y-padY, box.Max.X+padX, box.Max.Y+padY)
	r = r.Intersect(img.Bounds())
	if r.Empty() {
		r = img.Bounds()
	}

	if si, ok := img.(subImager); ok {
		return si.SubImage(r)
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst
}
