package ratelimit

import (
	"testing"
	"time"
)

func TestFirstCandidateAlwaysPasses(t *testing.T) {
	l := New(2 * time.Second)
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	if !l.Allow(now) {
		t.Error("first candidate was not allowed with zero last-accept time")
	}
}

func TestIntervalBoundaryInclusive(t *testing.T) {
	l := New(2 * time.Second)
	t0 := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	l.Record(t0)

	cases := []struct {
		delta time.Duration
		want  bool
	}{
		{0, false},
		{500 * time.Millisecond, false},
		{1999 * time.Millisecond, false},
		{2 * time.Second, true}, // exactly at the boundary
		{10 * time.Second, true},
	}
	for _, tc := range cases {
		if got := l.Allow(t0.Add(tc.delta)); got != tc.want {
			t.Errorf("Allow(t0+%v) = %v, want %v", tc.delta, got, tc.want)
		}
	}
}

func TestAllowDoesNotAdvanceClock(t *testing.T) {
	l := New(2 * time.Second)
	t0 := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	l.Record(t0)

	// Repeated Allow calls at the same instant must not consume anything.
	later := t0.Add(3 * time.Second)
	for i := 0; i < 5; i++ {
		if !l.Allow(later) {
			t.Fatalf("Allow call %d changed limiter state", i)
		}
	}
	if got := l.LastAccept(); !got.Equal(t0) {
		t.Errorf("LastAccept = %v, want %v", got, t0)
	}
}

func TestRecordAdvancesClock(t *testing.T) {
	l := New(2 * time.Second)
	t0 := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	l.Record(t0)
	l.Record(t0.Add(10 * time.Second))

	if l.Allow(t0.Add(11 * time.Second)) {
		t.Error("candidate 1s after a recorded capture was allowed")
	}
	if !l.Allow(t0.Add(12 * time.Second)) {
		t.Error("candidate 2s after a recorded capture was rejected")
	}
}
