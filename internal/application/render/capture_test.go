package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	renderdomain "framecast/internal/domain/render"
)

func newTestEngine(t *testing.T, checker FrameChecker) *CaptureEngine {
	t.Helper()
	engine := NewCaptureEngine(CaptureConfig{MaxAttempts: 3, FrameTimeout: time.Second}, checker, zaptest.NewLogger(t))
	engine.wait = noWait
	return engine
}

func countFrames(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	return len(entries)
}

func TestCaptureAll_WritesEveryFrameInOrder(t *testing.T) {
	dir := t.TempDir()
	session := newFakeSession()
	engine := newTestEngine(t, newFakeChecker())

	var order []int
	engine.observe = func(a renderdomain.FrameCaptureAttempt) {
		if a.Outcome != renderdomain.OutcomeSuccess {
			t.Fatalf("unexpected outcome %s for frame %d", a.Outcome, a.Frame)
		}
		order = append(order, a.Frame)
	}

	if err := engine.CaptureAll(context.Background(), session, "http://surface/", 30, dir); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got := countFrames(t, dir); got != 30 {
		t.Fatalf("expected 30 frames, got %d", got)
	}
	for i, frame := range order {
		if frame != i {
			t.Fatalf("frame %d captured at position %d", frame, i)
		}
	}
	if session.navigates != 0 {
		t.Fatalf("expected no reloads, got %d", session.navigates)
	}
	if _, err := os.Stat(filepath.Join(dir, "frame_0029.png")); err != nil {
		t.Fatalf("expected last frame on disk: %v", err)
	}
}

func TestCaptureAll_RetriesTransientFailure(t *testing.T) {
	dir := t.TempDir()
	session := newFakeSession()
	session.failures[5] = 1
	engine := newTestEngine(t, newFakeChecker())

	var outcomes []renderdomain.AttemptOutcome
	engine.observe = func(a renderdomain.FrameCaptureAttempt) {
		if a.Frame == 5 {
			outcomes = append(outcomes, a.Outcome)
		}
	}

	if err := engine.CaptureAll(context.Background(), session, "http://surface/", 10, dir); err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
	if session.attempts(5) != 2 {
		t.Fatalf("expected 2 attempts on frame 5, got %d", session.attempts(5))
	}
	if session.navigates != 1 {
		t.Fatalf("expected one reload, got %d", session.navigates)
	}
	if len(outcomes) != 2 || outcomes[0] != renderdomain.OutcomeSurfaceError || outcomes[1] != renderdomain.OutcomeSuccess {
		t.Fatalf("unexpected outcomes %v", outcomes)
	}
	if got := countFrames(t, dir); got != 10 {
		t.Fatalf("expected 10 frames, got %d", got)
	}
}

func TestCaptureAll_GivesUpAfterMaxAttempts(t *testing.T) {
	dir := t.TempDir()
	session := newFakeSession()
	session.failures[12] = -1
	engine := newTestEngine(t, newFakeChecker())

	err := engine.CaptureAll(context.Background(), session, "http://surface/", 30, dir)
	if err == nil {
		t.Fatalf("expected capture failure")
	}
	if kind := renderdomain.KindOf(err); kind != renderdomain.KindCapture {
		t.Fatalf("expected capture kind, got %q (%v)", kind, err)
	}
	if !errors.Is(err, session.failErr) {
		t.Fatalf("expected last attempt error to be wrapped, got %v", err)
	}
	if session.attempts(12) != 3 {
		t.Fatalf("expected 3 attempts on frame 12, got %d", session.attempts(12))
	}
	if session.navigates != 2 {
		t.Fatalf("expected 2 reloads between attempts, got %d", session.navigates)
	}
	if session.maxFrame != 12 {
		t.Fatalf("expected capture to stop at frame 12, reached %d", session.maxFrame)
	}
	if got := countFrames(t, dir); got != 12 {
		t.Fatalf("expected 12 frames left on disk, got %d", got)
	}
}

func TestCaptureAll_EntryPointMissing(t *testing.T) {
	session := newFakeSession()
	session.failures[0] = -1
	session.failErr = fmt.Errorf("evaluate: %w", renderdomain.ErrEntryPointMissing)
	engine := newTestEngine(t, newFakeChecker())

	err := engine.CaptureAll(context.Background(), session, "http://surface/", 5, t.TempDir())
	if !errors.Is(err, renderdomain.ErrEntryPointMissing) {
		t.Fatalf("expected ErrEntryPointMissing, got %v", err)
	}
	if session.attempts(0) != 3 {
		t.Fatalf("expected 3 attempts, got %d", session.attempts(0))
	}
}

func TestCaptureAll_ReloadFailureIsSessionError(t *testing.T) {
	session := newFakeSession()
	session.failures[2] = -1
	session.navigateErr = errors.New("browser crashed")
	engine := newTestEngine(t, newFakeChecker())

	err := engine.CaptureAll(context.Background(), session, "http://surface/", 5, t.TempDir())
	if kind := renderdomain.KindOf(err); kind != renderdomain.KindSession {
		t.Fatalf("expected session kind, got %q (%v)", kind, err)
	}
	if session.attempts(2) != 1 {
		t.Fatalf("expected capture to stop after the failed reload, got %d attempts", session.attempts(2))
	}
}

func TestCaptureAll_RejectsDimensionChange(t *testing.T) {
	checker := newFakeChecker()
	checker.sizes["frame_0002.png"] = [2]int{800, 600}
	session := newFakeSession()
	engine := newTestEngine(t, checker)

	invalid := 0
	engine.observe = func(a renderdomain.FrameCaptureAttempt) {
		if a.Outcome == renderdomain.OutcomeInvalidFile {
			invalid++
		}
	}

	err := engine.CaptureAll(context.Background(), session, "http://surface/", 4, t.TempDir())
	if !errors.Is(err, renderdomain.ErrFrameInvalid) {
		t.Fatalf("expected ErrFrameInvalid, got %v", err)
	}
	if invalid != 3 {
		t.Fatalf("expected 3 invalid-file attempts, got %d", invalid)
	}
}

func TestCaptureAll_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session := newFakeSession()
	session.onCapture = func(index int) {
		if index == 3 {
			cancel()
		}
	}
	engine := newTestEngine(t, newFakeChecker())

	err := engine.CaptureAll(ctx, session, "http://surface/", 10, t.TempDir())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if kind := renderdomain.KindOf(err); kind != renderdomain.KindCanceled {
		t.Fatalf("expected canceled kind, got %q", kind)
	}
	if session.navigates != 0 {
		t.Fatalf("expected no reload after cancel, got %d", session.navigates)
	}
	if session.attempts(3) != 1 {
		t.Fatalf("expected a single attempt on frame 3, got %d", session.attempts(3))
	}
}

func TestCaptureAll_InvalidFrameCount(t *testing.T) {
	engine := newTestEngine(t, newFakeChecker())
	err := engine.CaptureAll(context.Background(), newFakeSession(), "http://surface/", 0, t.TempDir())
	if renderdomain.KindOf(err) != renderdomain.KindCapture {
		t.Fatalf("expected capture error for zero frames, got %v", err)
	}
}

func TestCaptureConfig_Defaults(t *testing.T) {
	cfg := CaptureConfig{SettleDelay: -time.Second}.normalized()
	if cfg.MaxAttempts != 3 || cfg.FrameTimeout != 10*time.Second || cfg.NavigateTimeout != 30*time.Second {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.SettleDelay != 0 {
		t.Fatalf("expected negative settle delay to clamp to 0, got %s", cfg.SettleDelay)
	}
}
