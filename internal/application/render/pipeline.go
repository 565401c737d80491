package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	renderdomain "framecast/internal/domain/render"
)

const surfaceCloseTimeout = 5 * time.Second

// Settings are fixed per-job render parameters.
type Settings struct {
	TotalFrames int
	FrameRate   int
}

// Pipeline runs rebuild, capture and encode for one job.
type Pipeline struct {
	builder  ContentBuilder
	host     SurfaceHost
	launcher BrowserLauncher
	engine   *CaptureEngine
	checker  FrameChecker
	encoder  Encoder
	settings Settings
	logger   *zap.Logger
}

// NewPipeline wires the pipeline with injected ports.
func NewPipeline(
	builder ContentBuilder,
	host SurfaceHost,
	launcher BrowserLauncher,
	engine *CaptureEngine,
	checker FrameChecker,
	encoder Encoder,
	settings Settings,
	logger *zap.Logger,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		builder:  builder,
		host:     host,
		launcher: launcher,
		engine:   engine,
		checker:  checker,
		encoder:  encoder,
		settings: settings,
		logger:   logger,
	}
}

// Run executes the pipeline body. The caller owns workspace teardown.
func (p *Pipeline) Run(ctx context.Context, job renderdomain.Job, scratch renderdomain.Scratch, advance func(renderdomain.JobState)) (renderdomain.Artifact, error) {
	log := p.logger.With(zap.String("job_id", job.ID))
	total := p.settings.TotalFrames
	if !renderdomain.ValidFrameCount(total) || p.settings.FrameRate < 1 {
		return renderdomain.Artifact{}, renderdomain.Fail(renderdomain.KindPreparation, "settings",
			fmt.Errorf("invalid render settings: frames=%d rate=%d", total, p.settings.FrameRate))
	}

	log.Info("rebuilding content", zap.Int("payload_bytes", len(job.Payload)))
	if err := p.builder.Build(ctx, job.Payload); err != nil {
		return renderdomain.Artifact{}, renderdomain.Fail(renderdomain.KindPreparation, "rebuild content", err)
	}

	advance(renderdomain.StateRendering)
	started := time.Now()
	if err := p.render(ctx, log, scratch, total); err != nil {
		return renderdomain.Artifact{}, err
	}
	if err := p.checker.VerifySequence(scratch.FramesDir, total); err != nil {
		return renderdomain.Artifact{}, renderdomain.Fail(renderdomain.KindCapture, "verify sequence", err)
	}
	log.Info("frames captured", zap.Int("frames", total), zap.Duration("elapsed", time.Since(started)))

	advance(renderdomain.StateEncoding)
	if err := p.encoder.Encode(ctx, scratch.FramesDir, total, p.settings.FrameRate, scratch.OutputPath); err != nil {
		return renderdomain.Artifact{}, renderdomain.Fail(renderdomain.KindEncode, "encode", err)
	}

	info, err := os.Stat(scratch.OutputPath)
	if err != nil {
		return renderdomain.Artifact{}, renderdomain.Fail(renderdomain.KindEncode, "stat artifact", err)
	}
	if info.Size() == 0 {
		return renderdomain.Artifact{}, renderdomain.Fail(renderdomain.KindEncode, "stat artifact", errors.New("encoder produced an empty file"))
	}
	log.Info("video encoded", zap.String("path", scratch.OutputPath), zap.Int64("bytes", info.Size()))

	return renderdomain.Artifact{JobID: job.ID, Path: scratch.OutputPath, Size: info.Size()}, nil
}

func (p *Pipeline) render(ctx context.Context, log *zap.Logger, scratch renderdomain.Scratch, total int) error {
	surface, err := p.host.Serve(ctx)
	if err != nil {
		return renderdomain.Fail(renderdomain.KindPreparation, "serve content", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), surfaceCloseTimeout)
		defer cancel()
		if err := surface.Close(closeCtx); err != nil {
			log.Warn("surface shutdown failed", zap.Error(err))
		}
	}()

	session, err := p.launcher.Launch(ctx)
	if err != nil {
		return renderdomain.Fail(renderdomain.KindSession, "launch browser", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.Warn("browser close failed", zap.Error(err))
		}
	}()

	url := surface.URL()
	log.Info("navigating", zap.String("url", url))
	if err := session.Navigate(ctx, url, p.engine.Config().NavigateTimeout); err != nil {
		return renderdomain.Fail(renderdomain.KindSession, "navigate", err)
	}

	return p.engine.CaptureAll(ctx, session, url, total, scratch.FramesDir)
}
