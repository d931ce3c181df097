package capture

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roadside-data/capture.report/internal/detect"
	"github.com/roadside-data/capture.report/internal/timeutil"
)

type fakeGate struct {
	ratio float64
}

func (g *fakeGate) Observe(img image.Image) float64 {
	return g.ratio
}

type fakeDetector struct {
	cands []detect.Candidate
	err   error
	calls int
}

func (d *fakeDetector) Detect(ctx context.Context, img image.Image) ([]detect.Candidate, error) {
	d.calls++
	return d.cands, d.err
}

// testFrame builds a 1000x1000 frame with a checkerboard patch whose
// block size depends on seed, so crops from different seeds hash
// dissimilarly while equal seeds hash identically.
func testFrame(seq int64, seed uint8) Frame {
	img := image.NewGray(image.Rect(0, 0, 1000, 1000))
	bs := 8 + int(seed)%40
	for y := 400; y < 600; y++ {
		for x := 400; x < 600; x++ {
			if (x/bs+y/bs)%2 == 0 {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return Frame{Image: img, Seq: seq}
}

// centerCar is a confident detection whose centroid (500,500) sits in the
// default capture zone of a 1000x1000 frame.
func centerCar(conf float64) detect.Candidate {
	return detect.Candidate{Label: "car", Confidence: conf, Box: image.Rect(420, 430, 580, 570)}
}

func newTestPipeline(gate MotionGate, det detect.Detector, clock timeutil.Clock) *Pipeline {
	return NewPipeline(Params{}, gate, det, clock)
}

func TestProcessAdmitsVehicle(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	det := &fakeDetector{cands: []detect.Candidate{centerCar(0.9)}}
	p := newTestPipeline(&fakeGate{ratio: 0.2}, det, clock)

	out := p.Process(context.Background(), testFrame(1, 42))
	require.True(t, out.Admitted)
	assert.Empty(t, out.Reason)
	assert.Equal(t, "car", out.Detection.Label)
	require.NotNil(t, out.SubImage)

	// Crop is the bbox padded 20% per side, clamped to the frame.
	b := out.SubImage.Bounds()
	assert.Equal(t, image.Rect(388, 402, 612, 598), b)

	snap := p.Stats().Snapshot()
	assert.Equal(t, int64(1), snap.Frames)
	assert.Equal(t, int64(1), snap.Motion)
	assert.Equal(t, int64(1), snap.Detected)
	assert.Equal(t, int64(1), snap.InZone)
	assert.Equal(t, int64(1), snap.Admitted)
	assert.Equal(t, int64(0), snap.Errors)
}

func TestProcessNoMotion(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	det := &fakeDetector{cands: []detect.Candidate{centerCar(0.9)}}
	p := newTestPipeline(&fakeGate{ratio: 0.05}, det, clock)

	// Exactly at the threshold rejects; the detector never runs.
	out := p.Process(context.Background(), testFrame(1, 1))
	assert.False(t, out.Admitted)
	assert.Equal(t, ReasonNoMotion, out.Reason)
	assert.Equal(t, 0, det.calls)

	snap := p.Stats().Snapshot()
	assert.Equal(t, int64(1), snap.Frames)
	assert.Equal(t, int64(0), snap.Motion)
}

func TestProcessLowConfidence(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	det := &fakeDetector{cands: []detect.Candidate{centerCar(0.4)}}
	p := newTestPipeline(&fakeGate{ratio: 0.2}, det, clock)

	out := p.Process(context.Background(), testFrame(1, 1))
	assert.Equal(t, ReasonNoDetection, out.Reason)

	snap := p.Stats().Snapshot()
	assert.Equal(t, int64(1), snap.Motion)
	assert.Equal(t, int64(0), snap.Detected)
}

func TestProcessNonVehicleLabel(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	det := &fakeDetector{cands: []detect.Candidate{
		{Label: "person", Confidence: 0.95, Box: image.Rect(420, 430, 580, 570)},
	}}
	p := newTestPipeline(&fakeGate{ratio: 0.2}, det, clock)

	out := p.Process(context.Background(), testFrame(1, 1))
	assert.Equal(t, ReasonNoDetection, out.Reason)
}

func TestProcessOutOfZone(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	// Centroid (50,50) is far outside the default zone.
	det := &fakeDetector{cands: []detect.Candidate{
		{Label: "truck", Confidence: 0.9, Box: image.Rect(0, 0, 100, 100)},
	}}
	p := newTestPipeline(&fakeGate{ratio: 0.2}, det, clock)

	out := p.Process(context.Background(), testFrame(1, 1))
	assert.Equal(t, ReasonNoDetectionInZone, out.Reason)

	snap := p.Stats().Snapshot()
	assert.Equal(t, int64(1), snap.Detected)
	assert.Equal(t, int64(0), snap.InZone)
}

func TestProcessFirstInZoneWins(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	det := &fakeDetector{cands: []detect.Candidate{
		{Label: "bus", Confidence: 0.9, Box: image.Rect(0, 0, 100, 100)},
		{Label: "car", Confidence: 0.7, Box: image.Rect(420, 430, 580, 570)},
		{Label: "truck", Confidence: 0.99, Box: image.Rect(430, 440, 570, 560)},
	}}
	p := newTestPipeline(&fakeGate{ratio: 0.2}, det, clock)

	out := p.Process(context.Background(), testFrame(1, 7))
	require.True(t, out.Admitted)
	// Detector order decides, not confidence.
	assert.Equal(t, "car", out.Detection.Label)
}

func TestProcessRateLimited(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	det := &fakeDetector{cands: []detect.Candidate{centerCar(0.9)}}
	p := newTestPipeline(&fakeGate{ratio: 0.2}, det, clock)

	out := p.Process(context.Background(), testFrame(1, 3))
	require.True(t, out.Admitted)
	p.RecordCapture(clock.Now())

	// Half a second later: admitted by every stage except the limiter.
	clock.Advance(500 * time.Millisecond)
	out = p.Process(context.Background(), testFrame(2, 99))
	assert.Equal(t, ReasonRateLimited, out.Reason)

	// A rate-limited frame is never fingerprinted, so the same frame
	// passes once the window reopens.
	clock.Advance(1500 * time.Millisecond)
	out = p.Process(context.Background(), testFrame(3, 99))
	assert.True(t, out.Admitted)
}

func TestProcessDuplicate(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	det := &fakeDetector{cands: []detect.Candidate{centerCar(0.9)}}
	p := newTestPipeline(&fakeGate{ratio: 0.2}, det, clock)

	frame := testFrame(1, 5)
	out := p.Process(context.Background(), frame)
	require.True(t, out.Admitted)
	p.RecordCapture(clock.Now())

	// Same image after the rate window: identical crop, identical hash.
	clock.Advance(3 * time.Second)
	frame.Seq = 2
	out = p.Process(context.Background(), frame)
	assert.Equal(t, ReasonDuplicate, out.Reason)

	snap := p.Stats().Snapshot()
	assert.Equal(t, int64(1), snap.Admitted)
	assert.Equal(t, int64(1), snap.Duplicates)
}

func TestProcessDetectorError(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	det := &fakeDetector{err: errors.New("inference backend gone")}
	p := newTestPipeline(&fakeGate{ratio: 0.2}, det, clock)

	// A failed detector call degrades to zero detections.
	out := p.Process(context.Background(), testFrame(1, 1))
	assert.Equal(t, ReasonNoDetection, out.Reason)

	snap := p.Stats().Snapshot()
	assert.Equal(t, int64(1), snap.Errors)
	assert.Equal(t, int64(0), snap.Detected)
}

type panicGate struct{}

func (panicGate) Observe(img image.Image) float64 {
	panic("gate exploded")
}

func TestProcessRecoversFromPanic(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	p := newTestPipeline(panicGate{}, &fakeDetector{}, clock)

	out := p.Process(context.Background(), testFrame(1, 1))
	assert.False(t, out.Admitted)
	assert.Equal(t, ReasonError, out.Reason)

	snap := p.Stats().Snapshot()
	assert.Equal(t, int64(1), snap.Errors)
	assert.Len(t, snap.Latencies, 1)
}

func TestCropPaddedClamps(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 100, 100))
	// Box at the frame edge: padding cannot push past the bounds.
	crop := cropPadded(img, image.Rect(0, 0, 50, 50), 0.2)
	assert.Equal(t, image.Rect(0, 0, 60, 60), crop.Bounds())
}

func TestCropPaddedFallbackCopy(t *testing.T) {
	// image.Uniform has no SubImage method; the crop must be copied.
	img := image.NewUniform(color.Gray{Y: 128})
	crop := cropPadded(img, image.Rect(10, 10, 20, 20), 0)
	b := crop.Bounds()
	assert.Equal(t, 10, b.Dx())
	assert.Equal(t, 10, b.Dy())
}
