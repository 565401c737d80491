package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	renderdomain "framecast/internal/domain/render"
)

const (
	defaultMaxAttempts     = 3
	defaultFrameTimeout    = 10 * time.Second
	defaultNavigateTimeout = 30 * time.Second
)

// CaptureConfig bounds the per-frame capture protocol.
type CaptureConfig struct {
	MaxAttempts     int
	FrameTimeout    time.Duration
	SettleDelay     time.Duration
	NavigateTimeout time.Duration
}

func (c CaptureConfig) normalized() CaptureConfig {
	if c.MaxAttempts < 1 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.FrameTimeout <= 0 {
		c.FrameTimeout = defaultFrameTimeout
	}
	if c.NavigateTimeout <= 0 {
		c.NavigateTimeout = defaultNavigateTimeout
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	}
	return c
}

// CaptureEngine drives a session through the full frame range in ascending
// order. A frame that exhausts its attempts fails the whole job.
type CaptureEngine struct {
	cfg     CaptureConfig
	checker FrameChecker
	logger  *zap.Logger

	wait    func(ctx context.Context, d time.Duration) error
	now     func() time.Time
	observe func(renderdomain.FrameCaptureAttempt)
}

// NewCaptureEngine creates a capture engine with the given retry policy.
func NewCaptureEngine(cfg CaptureConfig, checker FrameChecker, logger *zap.Logger) *CaptureEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CaptureEngine{
		cfg:     cfg.normalized(),
		checker: checker,
		logger:  logger,
		wait:    sleepContext,
		now:     time.Now,
	}
}

// Config returns the effective capture policy.
func (e *CaptureEngine) Config() CaptureConfig {
	return e.cfg
}

// CaptureAll captures frames 0..total-1 into dir. The session must already be
// on pageURL; pageURL is used to reload after a failed attempt.
func (e *CaptureEngine) CaptureAll(ctx context.Context, session Session, pageURL string, total int, dir string) error {
	if !renderdomain.ValidFrameCount(total) {
		return renderdomain.Fail(renderdomain.KindCapture, "capture", fmt.Errorf("invalid frame count %d", total))
	}

	width, height := 0, 0
	for index := 0; index < total; index++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("frame %d: %w", index, err)
		}
		w, h, err := e.captureFrame(ctx, session, pageURL, index, total, dir, width, height)
		if err != nil {
			return err
		}
		if index == 0 {
			width, height = w, h
		}
		if (index+1)%100 == 0 || index+1 == total {
			e.logger.Debug("frames captured", zap.Int("done", index+1), zap.Int("total", total))
		}
	}
	return nil
}

func (e *CaptureEngine) captureFrame(ctx context.Context, session Session, pageURL string, index, total int, dir string, wantW, wantH int) (int, int, error) {
	path := filepath.Join(dir, renderdomain.FrameFileName(index, total))

	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		started := e.now()
		w, h, err := e.attempt(ctx, session, index, path, wantW, wantH)
		e.record(renderdomain.FrameCaptureAttempt{
			Frame:   index,
			Attempt: attempt,
			Outcome: classifyAttempt(err),
			Elapsed: e.now().Sub(started),
			Err:     err,
		})
		if err == nil {
			return w, h, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, 0, fmt.Errorf("frame %d: %w", index, ctxErr)
		}

		lastErr = err
		e.logger.Warn("frame capture failed",
			zap.Int("frame", index),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", e.cfg.MaxAttempts),
			zap.Bool("entry_point_missing", errors.Is(err, renderdomain.ErrEntryPointMissing)),
			zap.Error(err),
		)
		_ = os.Remove(path)

		if attempt == e.cfg.MaxAttempts {
			break
		}
		if err := session.Navigate(ctx, pageURL, e.cfg.NavigateTimeout); err != nil {
			return 0, 0, renderdomain.Fail(renderdomain.KindSession, "reload page", err)
		}
	}

	return 0, 0, renderdomain.Fail(
		renderdomain.KindCapture,
		fmt.Sprintf("frame %d", index),
		fmt.Errorf("giving up after %d attempts: %w", e.cfg.MaxAttempts, lastErr),
	)
}

func (e *CaptureEngine) attempt(ctx context.Context, session Session, index int, path string, wantW, wantH int) (int, int, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.FrameTimeout)
	defer cancel()

	if err := session.SetFrame(attemptCtx, index); err != nil {
		return 0, 0, fmt.Errorf("set frame: %w", err)
	}
	// Settle is a fixed wait: the entry point may resolve before paint.
	if err := e.wait(attemptCtx, e.cfg.SettleDelay); err != nil {
		return 0, 0, fmt.Errorf("settle: %w", err)
	}
	if err := session.CaptureTo(attemptCtx, path); err != nil {
		return 0, 0, fmt.Errorf("capture: %w", err)
	}

	w, h, err := e.checker.VerifyFrame(path)
	if err != nil {
		return 0, 0, err
	}
	if wantW > 0 && (w != wantW || h != wantH) {
		return 0, 0, fmt.Errorf("%w: %dx%d, expected %dx%d", renderdomain.ErrFrameInvalid, w, h, wantW, wantH)
	}
	return w, h, nil
}

func (e *CaptureEngine) record(attempt renderdomain.FrameCaptureAttempt) {
	if e.observe != nil {
		e.observe(attempt)
	}
}

func classifyAttempt(err error) renderdomain.AttemptOutcome {
	switch {
	case err == nil:
		return renderdomain.OutcomeSuccess
	case errors.Is(err, context.DeadlineExceeded):
		return renderdomain.OutcomeTimeout
	case errors.Is(err, renderdomain.ErrFrameInvalid):
		return renderdomain.OutcomeInvalidFile
	default:
		return renderdomain.OutcomeSurfaceError
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
