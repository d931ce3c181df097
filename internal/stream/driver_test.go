package stream

import (
	"context"
	"errors"
	"fmt"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roadside-data/capture.report/internal/capture"
	"github.com/roadside-data/capture.report/internal/detect"
	"github.com/roadside-data/capture.report/internal/timeutil"
)

type scriptSource struct {
	frames int
	read   int
	closed bool
}

func (s *scriptSource) Read() (image.Image, bool) {
	if s.read >= s.frames {
		return nil, false
	}
	s.read++
	return image.NewGray(image.Rect(0, 0, 2, 2)), true
}

func (s *scriptSource) Close() error {
	s.closed = true
	return nil
}

type fakeProcessor struct {
	stats    *capture.FrameStats
	outcomes map[int64]capture.Outcome
	seqs     []int64
	recorded []time.Time
}

func newFakeProcessor(clock timeutil.Clock) *fakeProcessor {
	return &fakeProcessor{
		stats:    capture.NewFrameStats(clock),
		outcomes: map[int64]capture.Outcome{},
	}
}

func (p *fakeProcessor) Process(ctx context.Context, frame capture.Frame) capture.Outcome {
	p.seqs = append(p.seqs, frame.Seq)
	if out, ok := p.outcomes[frame.Seq]; ok {
		return out
	}
	return capture.Outcome{Reason: capture.ReasonNoMotion}
}

func (p *fakeProcessor) RecordCapture(now time.Time) {
	p.recorded = append(p.recorded, now)
}

func (p *fakeProcessor) Stats() *capture.FrameStats {
	return p.stats
}

type fakeForwarder struct {
	keys []string
	err  error
}

func (f *fakeForwarder) Forward(ctx context.Context, img image.Image, when time.Time) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	key := fmt.Sprintf("capture-%d", len(f.keys))
	f.keys = append(f.keys, key)
	return key, nil
}

type journalEntry struct {
	key        string
	label      string
	confidence float64
}

type fakeJournal struct {
	entries []journalEntry
}

func (j *fakeJournal) RecordCapture(ctx context.Context, key, label string, confidence float64, when time.Time) error {
	j.entries = append(j.entries, journalEntry{key, label, confidence})
	return nil
}

// cancelOpener yields the given sources in order, then cancels the
// context so Run terminates instead of reconnecting forever.
func cancelOpener(cancel context.CancelFunc, sources ...Source) SourceOpener {
	i := 0
	return func(url string) (Source, error) {
		if i >= len(sources) {
			cancel()
			return nil, errors.New("no more sources")
		}
		s := sources[i]
		i++
		return s, nil
	}
}

func TestDriverStrideSampling(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	proc := newFakeProcessor(clock)
	source := &scriptSource{frames: 9}

	d := NewDriver(DriverConfig{
		CameraID:  "cam01",
		URL:       "rtsp://example/stream",
		Open:      cancelOpener(cancel, source),
		Processor: proc,
		Forwarder: &fakeForwarder{},
		Clock:     clock,
	})

	err := d.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	// Default stride 3 over 9 frames samples sequence numbers 3, 6, 9.
	assert.Equal(t, []int64{3, 6, 9}, proc.seqs)
	assert.True(t, source.closed)
	assert.Equal(t, StateStopped, d.State())
}

func TestDriverSeqSurvivesReconnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	proc := newFakeProcessor(clock)
	first := &scriptSource{frames: 4}
	second := &scriptSource{frames: 5}

	d := NewDriver(DriverConfig{
		Open:      cancelOpener(cancel, first, second),
		Processor: proc,
		Forwarder: &fakeForwarder{},
		Clock:     clock,
	})

	err := d.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	// 4 then 5 frames is one continuous sequence of 9: stride samples
	// must not restart at the reconnect boundary.
	assert.Equal(t, []int64{3, 6, 9}, proc.seqs)
	assert.True(t, first.closed)
	assert.True(t, second.closed)

	// The gap between feeds waits out the reconnect backoff.
	sleeps := clock.Sleeps()
	require.NotEmpty(t, sleeps)
	assert.Equal(t, 5*time.Second, sleeps[0])
}

func TestDriverForwardsAdmitted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	proc := newFakeProcessor(clock)
	proc.outcomes[6] = capture.Outcome{
		Admitted:  true,
		SubImage:  image.NewGray(image.Rect(0, 0, 2, 2)),
		Detection: detect.Candidate{Label: "truck", Confidence: 0.91},
	}
	fwd := &fakeForwarder{}
	journal := &fakeJournal{}

	d := NewDriver(DriverConfig{
		Open:      cancelOpener(cancel, &scriptSource{frames: 9}),
		Processor: proc,
		Forwarder: fwd,
		Journal:   journal,
		Clock:     clock,
	})

	err := d.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.Len(t, fwd.keys, 1)
	require.Len(t, proc.recorded, 1)
	assert.Equal(t, time.Unix(1000, 0), proc.recorded[0])

	require.Len(t, journal.entries, 1)
	assert.Equal(t, fwd.keys[0], journal.entries[0].key)
	assert.Equal(t, "truck", journal.entries[0].label)
	assert.Equal(t, 0.91, journal.entries[0].confidence)
}

func TestDriverForwardFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	proc := newFakeProcessor(clock)
	proc.outcomes[3] = capture.Outcome{
		Admitted: true,
		SubImage: image.NewGray(image.Rect(0, 0, 2, 2)),
	}
	journal := &fakeJournal{}

	d := NewDriver(DriverConfig{
		Open:      cancelOpener(cancel, &scriptSource{frames: 3}),
		Processor: proc,
		Forwarder: &fakeForwarder{err: errors.New("bucket unreachable")},
		Journal:   journal,
		Clock:     clock,
	})

	err := d.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	// A failed forward must not consume the rate window or reach the
	// journal, but it counts as an error.
	assert.Empty(t, proc.recorded)
	assert.Empty(t, journal.entries)
	snap := proc.stats.Snapshot()
	assert.Equal(t, int64(1), snap.Errors)
}

func TestDriverRetriesConnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	proc := newFakeProcessor(clock)

	attempts := 0
	source := &scriptSource{frames: 3}
	open := func(url string) (Source, error) {
		attempts++
		switch {
		case attempts <= 2:
			return nil, errors.New("connection refused")
		case attempts == 3:
			return source, nil
		default:
			cancel()
			return nil, errors.New("no more sources")
		}
	}

	d := NewDriver(DriverConfig{
		Open:             open,
		Processor:        proc,
		Forwarder:        &fakeForwarder{},
		ReconnectBackoff: time.Second,
		Clock:            clock,
	})

	err := d.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, []int64{3}, proc.seqs)
	// Two failed connects plus one drained feed, each with a backoff.
	assert.Len(t, clock.Sleeps(), 3)
	assert.Equal(t, time.Second, clock.Sleeps()[0])
}

type panicForwarder struct{}

func (panicForwarder) Forward(ctx context.Context, img image.Image, when time.Time) (string, error) {
	panic("encoder state corrupted")
}

func TestDriverSurvivesForwarderPanic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	proc := newFakeProcessor(clock)
	proc.outcomes[3] = capture.Outcome{
		Admitted: true,
		SubImage: image.NewGray(image.Rect(0, 0, 2, 2)),
	}
	source := &scriptSource{frames: 9}

	d := NewDriver(DriverConfig{
		Open:      cancelOpener(cancel, source),
		Processor: proc,
		Forwarder: panicForwarder{},
		Clock:     clock,
	})

	err := d.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	// The panic is contained: later frames are still sampled, the source
	// handle is still released, and the panic counts as an error.
	assert.Equal(t, []int64{3, 6, 9}, proc.seqs)
	assert.True(t, source.closed)
	assert.Empty(t, proc.recorded)
	assert.Equal(t, int64(1), proc.stats.Snapshot().Errors)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "streaming", StateStreaming.String())
	assert.Equal(t, "reconnecting", StateReconnecting.String())
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "unknown", State(99).String())
}
