package stream

import (
	"context"
	"image"
	"sync/atomic"
	"time"

	"github.com/roadside-data/capture.report/internal/capture"
	"github.com/roadside-data/capture.report/internal/monitoring"
	"github.com/roadside-data/capture.report/internal/timeutil"
)

// State describes the driver's connection lifecycle.
type State int32

const (
	StateConnecting State = iota
	StateStreaming
	StateReconnecting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateReconnecting:
		return "reconnecting"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Processor runs the admission cascade on sampled frames.
type Processor interface {
	Process(ctx context.Context, frame capture.Frame) capture.Outcome
	RecordCapture(now time.Time)
	Stats() *capture.FrameStats
}

// Forwarder ships an admitted crop to storage and returns the stored key.
type Forwarder interface {
	Forward(ctx context.Context, img image.Image, when time.Time) (key string, err error)
}

// Journal records successful captures locally. Optional.
type Journal interface {
	RecordCapture(ctx context.Context, key, label string, confidence float64, when time.Time) error
}

// DriverConfig contains configuration options for the stream driver.
type DriverConfig struct {
	CameraID         string
	URL              string
	Open             SourceOpener
	Processor        Processor
	Forwarder        Forwarder
	Journal          Journal
	FrameStride      int
	StatsInterval    time.Duration
	ReconnectBackoff time.Duration
	Clock            timeutil.Clock
}

// Driver owns one camera feed: it connects, samples every Nth frame into
// the processor, forwards admitted captures, and reconnects with a fixed
// backoff when the feed drops.
type Driver struct {
	cfg   DriverConfig
	state atomic.Int32
}

// NewDriver creates a driver with the provided configuration.
func NewDriver(cfg DriverConfig) *Driver {
	if cfg.Open == nil {
		cfg.Open = OpenRTSP
	}
	if cfg.FrameStride <= 0 {
		cfg.FrameStride = 3
	}
	if cfg.StatsInterval == 0 {
		cfg.StatsInterval = time.Minute
	}
	if cfg.ReconnectBackoff == 0 {
		cfg.ReconnectBackoff = 5 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	return &Driver{cfg: cfg}
}

// State returns the current lifecycle state.
func (d *Driver) State() State {
	return State(d.state.Load())
}

func (d *Driver) setState(s State) {
	d.state.Store(int32(s))
}

// Run connects to the stream and processes frames until ctx is cancelled.
// Connection failures and dropped feeds are retried indefinitely.
func (d *Driver) Run(ctx context.Context) error {
	go d.startStatsLogging(ctx)

	var seq int64
	for {
		if ctx.Err() != nil {
			d.setState(StateStopped)
			return ctx.Err()
		}

		source, err := d.cfg.Open(d.cfg.URL)
		if err != nil {
			if ctx.Err() != nil {
				d.setState(StateStopped)
				return ctx.Err()
			}
			monitoring.Logf("[Stream] Failed to connect to %s: %v (retrying in %v)",
				d.cfg.URL, err, d.cfg.ReconnectBackoff)
			d.setState(StateReconnecting)
			d.cfg.Clock.Sleep(d.cfg.ReconnectBackoff)
			continue
		}

		monitoring.Logf("[Stream] Connected to %s (camera %s)", d.cfg.URL, d.cfg.CameraID)
		d.setState(StateStreaming)
		seq = d.readLoop(ctx, source, seq)

		if ctx.Err() != nil {
			d.setState(StateStopped)
			return ctx.Err()
		}

		monitoring.Logf("[Stream] Feed from %s ended, reconnecting in %v",
			d.cfg.URL, d.cfg.ReconnectBackoff)
		d.setState(StateReconnecting)
		d.cfg.Clock.Sleep(d.cfg.ReconnectBackoff)
	}
}

// readLoop consumes frames until the source drains or ctx is cancelled,
// releasing the source handle on every exit path. Returns the updated
// frame sequence so stride sampling survives reconnects.
func (d *Driver) readLoop(ctx context.Context, source Source, seq int64) int64 {
	defer source.Close()

	for {
		select {
		case <-ctx.Done():
			return seq
		default:
		}

		img, ok := source.Read()
		if !ok {
			return seq
		}
		seq++

		// Sample every Nth frame; detection cannot keep up with full
		// frame rate and admission does not need it to.
		if seq%int64(d.cfg.FrameStride) != 0 {
			continue
		}

		d.handleFrame(ctx, capture.Frame{Image: img, Seq: seq, Time: d.cfg.Clock.Now()})
	}
}

// handleFrame runs one sampled frame through the processor and forwards
// the crop when it is admitted. The processor recovers its own panics; a
// panic in the forwarder or journal is contained here so the read loop
// moves on to the next frame.
func (d *Driver) handleFrame(ctx context.Context, frame capture.Frame) {
	defer func() {
		if r := recover(); r != nil {
			monitoring.Logf("[Stream] Recovered from panic handling frame %d: %v", frame.Seq, r)
			d.cfg.Processor.Stats().AddError()
		}
	}()

	out := d.cfg.Processor.Process(ctx, frame)
	if !out.Admitted {
		monitoring.Debugf("[Stream] Frame %d rejected: %s", frame.Seq, out.Reason)
		return
	}

	key, err := d.cfg.Forwarder.Forward(ctx, out.SubImage, frame.Time)
	if err != nil {
		monitoring.Logf("[Stream] Failed to forward capture from frame %d: %v", frame.Seq, err)
		d.cfg.Processor.Stats().AddError()
		return
	}

	// The rate window opens from the confirmed forward, so a failed
	// upload does not consume it.
	d.cfg.Processor.RecordCapture(frame.Time)
	monitoring.Logf("[Stream] Captured %s (%s %.2f) from frame %d",
		key, out.Detection.Label, out.Detection.Confidence, frame.Seq)

	if d.cfg.Journal != nil {
		if err := d.cfg.Journal.RecordCapture(ctx, key, out.Detection.Label, out.Detection.Confidence, frame.Time); err != nil {
			monitoring.Logf("[Stream] Failed to journal capture %s: %v", key, err)
		}
	}
}

// startStatsLogging periodically logs processor statistics. An initial
// report fires shortly after startup to avoid a long silence on first run.
func (d *Driver) startStatsLogging(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-d.cfg.Clock.After(2 * time.Second):
		d.cfg.Processor.Stats().LogStats(d.cfg.CameraID)
	}

	ticker := d.cfg.Clock.NewTicker(d.cfg.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			d.cfg.Processor.Stats().LogStats(d.cfg.CameraID)
		}
	}
}
