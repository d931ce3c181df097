package capture

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/roadside-data/capture.report/internal/monitoring"
	"github.com/roadside-data/capture.report/internal/timeutil"
)

// maxLatencySamples bounds the per-interval latency window so a stalled
// reporter cannot grow it without limit.
const maxLatencySamples = 4096

// FrameStats tracks cumulative pipeline counters with thread-safe
// operations. Counters only ever increase; the periodic report logs the
// delta since the previous report, the rate lines and LogTotals cover
// the whole run.
type FrameStats struct {
	mu         sync.Mutex
	clock      timeutil.Clock
	frames     int64
	motion     int64
	detected   int64
	inZone     int64
	duplicates int64
	admitted   int64
	errors     int64
	latencies  []float64
	start      time.Time
	lastReport time.Time
	reported   StatsSnapshot
}

// StatsSnapshot is a point-in-time copy of the cumulative counters.
type StatsSnapshot struct {
	Frames     int64
	Motion     int64
	Detected   int64
	InZone     int64
	Duplicates int64
	Admitted   int64
	Errors     int64
	Latencies  []float64
	Duration   time.Duration
}

// NewFrameStats creates a new FrameStats instance.
func NewFrameStats(clock timeutil.Clock) *FrameStats {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	now := clock.Now()
	return &FrameStats{
		clock:      clock,
		start:      now,
		lastReport: now,
	}
}

// AddFrame counts a frame entering the pipeline.
func (fs *FrameStats) AddFrame() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.frames++
}

// AddMotion counts a frame that passed the motion gate.
func (fs *FrameStats) AddMotion() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.motion++
}

// AddDetected counts a frame with at least one vehicle candidate.
func (fs *FrameStats) AddDetected() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.detected++
}

// AddInZone counts a frame whose best candidate centroid fell in the
// capture zone.
func (fs *FrameStats) AddInZone() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.inZone++
}

// AddDuplicate counts a frame rejected by the dedup cache.
func (fs *FrameStats) AddDuplicate() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.duplicates++
}

// AddAdmitted counts a frame that cleared the full cascade.
func (fs *FrameStats) AddAdmitted() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.admitted++
}

// AddError counts a frame that failed with a processing error.
func (fs *FrameStats) AddError() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.errors++
}

// AddLatency records one frame's end-to-end processing time.
func (fs *FrameStats) AddLatency(d time.Duration) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if len(fs.latencies) < maxLatencySamples {
		fs.latencies = append(fs.latencies, d.Seconds()*1000)
	}
}

// Snapshot returns a copy of the cumulative counters. Reading a snapshot
// never resets anything.
func (fs *FrameStats) Snapshot() StatsSnapshot {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.snapshotLocked()
}

func (fs *FrameStats) snapshotLocked() StatsSnapshot {
	latencies := make([]float64, len(fs.latencies))
	copy(latencies, fs.latencies)
	return StatsSnapshot{
		Frames:     fs.frames,
		Motion:     fs.motion,
		Detected:   fs.detected,
		InZone:     fs.inZone,
		Duplicates: fs.duplicates,
		Admitted:   fs.admitted,
		Errors:     fs.errors,
		Latencies:  latencies,
		Duration:   fs.clock.Now().Sub(fs.start),
	}
}

// LogStats logs the delta since the previous report plus run-total rate
// lines. Counters are never reset; only the latency window and the
// report watermark move. Intervals with no frames are logged too so a
// stalled source is visible in the logs.
func (fs *FrameStats) LogStats(cameraID string) {
	fs.mu.Lock()
	now := fs.clock.Now()
	cur := fs.snapshotLocked()
	elapsed := now.Sub(fs.lastReport)
	prev := fs.reported
	latencies := fs.latencies
	fs.latencies = nil
	fs.reported = cur
	fs.lastReport = now
	fs.mu.Unlock()

	frames := cur.Frames - prev.Frames
	fps := 0.0
	if elapsed > 0 {
		fps = float64(frames) / elapsed.Seconds()
	}

	logMsg := fmt.Sprintf("Capture stats [%s]: %d frames (%.1f fps), %d motion, %d detected, %d in-zone, %d admitted",
		cameraID, frames, fps,
		cur.Motion-prev.Motion, cur.Detected-prev.Detected,
		cur.InZone-prev.InZone, cur.Admitted-prev.Admitted)
	if d := cur.Duplicates - prev.Duplicates; d > 0 {
		logMsg += fmt.Sprintf(", %d duplicates", d)
	}
	if e := cur.Errors - prev.Errors; e > 0 {
		logMsg += fmt.Sprintf(", %d errors", e)
	}
	if mean, p95, ok := latencySummary(latencies); ok {
		logMsg += fmt.Sprintf(", latency %.1fms mean / %.1fms p95", mean, p95)
	}
	logMsg += fmt.Sprintf(" | totals: %d frames, %d admitted, %.1f%% ROI pass, %.1f%% dedup",
		cur.Frames, cur.Admitted, cur.ROIPassRate(), cur.DedupRate())
	monitoring.Logf("[Capture] %s", logMsg)
}

// LogTotals logs the lifetime counters. Used for the shutdown flush so
// short runs still show their full totals.
func (fs *FrameStats) LogTotals(cameraID string) {
	snap := fs.Snapshot()
	monitoring.Logf("[Capture] Capture totals [%s]: %d frames over %s, %d motion, %d detected, %d in-zone, %d admitted, %d duplicates, %d errors, %.1f%% ROI pass, %.1f%% dedup",
		cameraID, snap.Frames, snap.Duration.Round(time.Second),
		snap.Motion, snap.Detected, snap.InZone, snap.Admitted,
		snap.Duplicates, snap.Errors, snap.ROIPassRate(), snap.DedupRate())
}

// ROIPassRate is the percentage of detected frames whose candidate fell
// in the capture zone. Zero when nothing was detected yet.
func (s StatsSnapshot) ROIPassRate() float64 {
	return percent(s.InZone, s.Detected)
}

// DedupRate is the percentage of zone-qualified captures suppressed as
// duplicates. Zero before the first qualifying capture.
func (s StatsSnapshot) DedupRate() float64 {
	return percent(s.Duplicates, s.Admitted+s.Duplicates)
}

func percent(part, whole int64) float64 {
	if whole == 0 {
		return 0
	}
	return 100 * float64(part) / float64(whole)
}

// latencySummary returns the mean and 95th percentile of the sample
// window in milliseconds. ok is false when the window is empty.
func latencySummary(samples []float64) (mean, p95 float64, ok bool) {
	if len(samples) == 0 {
		return 0, 0, false
	}
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)
	mean = stat.Mean(sorted, nil)
	p95 = stat.Quantile(0.95, stat.Empirical, sorted, nil)
	return mean, p95, true
}
