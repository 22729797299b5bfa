package attempt

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"assessment-attempt-service/internal/domain"
)

func TestTickerClockEmitsAtMostTotal(t *testing.T) {
	clock := NewTickerClock(2 * time.Millisecond)
	var ticks atomic.Int32

	if err := clock.Arm(3, func() { ticks.Add(1) }); err != nil {
		t.Fatalf("arm: %v", err)
	}
	time.Sleep(60 * time.Millisecond)

	if got := ticks.Load(); got != 3 {
		t.Fatalf("expected 3 ticks, got %d", got)
	}
	clock.Disarm()
}

func TestTickerClockDisarmStopsTicks(t *testing.T) {
	clock := NewTickerClock(2 * time.Millisecond)
	var ticks atomic.Int32

	if err := clock.Arm(1000, func() { ticks.Add(1) }); err != nil {
		t.Fatalf("arm: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	clock.Disarm()
	clock.Disarm()
	if clock.Armed() {
		t.Fatalf("expected disarmed")
	}

	time.Sleep(5 * time.Millisecond)
	settled := ticks.Load()
	time.Sleep(20 * time.Millisecond)
	if ticks.Load() != settled {
		t.Fatalf("expected no ticks after disarm")
	}
}

func TestClockRejectsDoubleArm(t *testing.T) {
	clocks := map[string]Clock{
		"ticker": NewTickerClock(time.Hour),
		"manual": NewManualClock(),
	}
	for name, clock := range clocks {
		if err := clock.Arm(5, func() {}); err != nil {
			t.Fatalf("%s arm: %v", name, err)
		}
		if err := clock.Arm(5, func() {}); !errors.Is(err, domain.ErrAlreadyArmed) {
			t.Fatalf("%s: expected already armed, got %v", name, err)
		}
		clock.Disarm()
		if err := clock.Arm(5, func() {}); err != nil {
			t.Fatalf("%s: expected re-arm after disarm, got %v", name, err)
		}
		clock.Disarm()
	}
}

func TestManualClockAdvance(t *testing.T) {
	clock := NewManualClock()
	ticks := 0
	_ = clock.Arm(3, func() { ticks++ })

	if got := clock.Advance(2); got != 2 {
		t.Fatalf("expected 2 delivered, got %d", got)
	}
	if got := clock.Advance(5); got != 1 {
		t.Fatalf("expected only the remaining tick, got %d", got)
	}
	if ticks != 3 {
		t.Fatalf("expected 3 ticks, got %d", ticks)
	}
	if clock.Arms() != 1 {
		t.Fatalf("expected one arm, got %d", clock.Arms())
	}
}
