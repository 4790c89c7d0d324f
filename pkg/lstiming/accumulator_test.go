package lstiming

import (
	"testing"
	"time"
)

func TestAdvanceProducesWholeFrames(t *testing.T) {
	acc := NewFrameAccumulator(50) // 20ms per frame
	if got := acc.Advance(45 * time.Millisecond); got != 2 {
		t.Fatalf("Advance(45ms) = %d frames, want 2", got)
	}
}

func TestAdvanceCarriesRemainderForward(t *testing.T) {
	acc := NewFrameAccumulator(50)
	acc.Advance(25 * time.Millisecond) // 1 frame, 5ms carried
	if got := acc.Advance(15 * time.Millisecond); got != 1 {
		t.Fatalf("second Advance(15ms) = %d frames, want 1 (5ms carried + 15ms = 20ms)", got)
	}
}

func TestAdvanceWithNoElapsedTimeYieldsNoFrames(t *testing.T) {
	acc := NewFrameAccumulator(50)
	if got := acc.Advance(0); got != 0 {
		t.Fatalf("Advance(0) = %d, want 0", got)
	}
}

func TestLagReflectsCarriedRemainder(t *testing.T) {
	acc := NewFrameAccumulator(50) // 20ms per frame
	acc.Advance(25 * time.Millisecond)
	if got := acc.Lag(); got != 5*time.Millisecond {
		t.Fatalf("Lag() = %v, want 5ms", got)
	}
}
