package testfixtures

import (
	"testing"
	"time"
)

func TestClockDefaultsToReferenceTime(t *testing.T) {
	clock := NewClock(time.Time{})
	if !clock.Now().Equal(ReferenceTime()) {
		t.Fatalf("expected ReferenceTime, got %v", clock.Now())
	}
}

func TestClockAdvanceAndSet(t *testing.T) {
	start := time.Date(2025, time.May, 1, 20, 0, 0, 0, time.UTC)
	clock := NewClock(start)

	if updated := clock.AdvanceMinutes(59); !updated.Equal(start.Add(59 * time.Minute)) {
		t.Fatalf("advance returned %v", updated)
	}
	if updated := clock.Advance(2 * time.Minute); !updated.Equal(start.Add(61 * time.Minute)) {
		t.Fatalf("advance returned %v", updated)
	}

	clock.Set(start)
	if got := clock.Now(); !got.Equal(start) {
		t.Fatalf("expected %v, got %v", start, got)
	}
}

func TestClockNowFuncTracksUpdates(t *testing.T) {
	clock := NewClock(time.Time{})
	nowFn := clock.NowFunc()

	clock.AdvanceMinutes(1)
	if got := nowFn(); !got.Equal(ReferenceTime().Add(time.Minute)) {
		t.Fatalf("expected updated time, got %v", got)
	}

	var nilClock *Clock
	if nilClock.NowFunc() == nil {
		t.Fatalf("expected nil clock to fall back to time.Now")
	}
}
