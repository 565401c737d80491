package render

import (
	"sort"
	"testing"
)

func TestFrameFileName_PadsToFourDigits(t *testing.T) {
	if got := FrameFileName(0, 600); got != "frame_0000.png" {
		t.Fatalf("expected frame_0000.png, got %s", got)
	}
	if got := FrameFileName(599, 600); got != "frame_0599.png" {
		t.Fatalf("expected frame_0599.png, got %s", got)
	}
}

func TestFrameFileName_WidensForLargeSequences(t *testing.T) {
	if got := FrameDigits(10000); got != 4 {
		t.Fatalf("expected 4 digits for 10000 frames, got %d", got)
	}
	if got := FrameDigits(10001); got != 5 {
		t.Fatalf("expected 5 digits for 10001 frames, got %d", got)
	}
	if got := FrameFileName(10000, 10001); got != "frame_10000.png" {
		t.Fatalf("unexpected name %s", got)
	}
}

func TestFrameFileName_LexicalOrderMatchesIndexOrder(t *testing.T) {
	total := 1500
	names := make([]string, total)
	for i := range names {
		names[total-1-i] = FrameFileName(i, total)
	}
	sort.Strings(names)
	for i, name := range names {
		if name != FrameFileName(i, total) {
			t.Fatalf("position %d holds %s", i, name)
		}
	}
}

func TestFramePattern(t *testing.T) {
	if got := FramePattern(30); got != "frame_%04d.png" {
		t.Fatalf("expected frame_%%04d.png, got %s", got)
	}
	if got := FramePattern(123456); got != "frame_%06d.png" {
		t.Fatalf("expected frame_%%06d.png, got %s", got)
	}
}

func TestValidFrameCount(t *testing.T) {
	if ValidFrameCount(0) || ValidFrameCount(-3) {
		t.Fatalf("expected non-positive counts to be invalid")
	}
	if !ValidFrameCount(1) {
		t.Fatalf("expected a single frame to be valid")
	}
}

func TestJobState_ActiveAndTerminal(t *testing.T) {
	for _, s := range []JobState{StatePreparing, StateRendering, StateEncoding} {
		if !s.Active() || s.Terminal() {
			t.Fatalf("expected %s to be active and not terminal", s)
		}
	}
	for _, s := range []JobState{StateQueued, StateSucceeded, StateFailed} {
		if s.Active() {
			t.Fatalf("expected %s not to hold the slot", s)
		}
	}
	if !StateSucceeded.Terminal() || !StateFailed.Terminal() || StateQueued.Terminal() {
		t.Fatalf("unexpected terminal states")
	}
}
