package main

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	renderapp "framecast/internal/application/render"
	"framecast/internal/config"
	renderdomain "framecast/internal/domain/render"
	"framecast/internal/infrastructure/browser"
	"framecast/internal/infrastructure/content"
	"framecast/internal/infrastructure/ffmpeg"
	"framecast/internal/infrastructure/filesystem"
)

// newRenderService assembles the pipeline and the job serializer from cfg.
func newRenderService(cfg config.Config, logger *zap.Logger) (*renderapp.Service, error) {
	workspace := filesystem.NewWorkspace(cfg.Workspace.Dir)
	if err := workspace.EnsureRoot(); err != nil {
		return nil, fmt.Errorf("workspace init failed: %w", err)
	}
	verifier := filesystem.NewVerifier(cfg.Render.MinFrameBytes)

	builder := content.NewBuilder(
		cfg.Content.Dir,
		cfg.Content.EntryFile,
		content.ParseCommand(cfg.Content.BuildCommand),
		cfg.Content.BuildTimeout.Duration,
		logger.Named("content"),
	)
	host := content.NewServer(
		cfg.Content.SurfaceAddr,
		filepath.Join(cfg.Content.Dir, cfg.Content.BuildDir),
		cfg.Content.SurfaceURL,
		logger.Named("surface"),
	)
	launcher := browser.NewLauncher(browser.Options{
		ExecPath:   cfg.Browser.ExecPath,
		Width:      cfg.Render.ViewportWidth,
		Height:     cfg.Render.ViewportHeight,
		NoSandbox:  cfg.Browser.NoSandbox,
		EntryPoint: cfg.Render.EntryPoint,
		Selector:   cfg.Render.CaptureSelector,
	}, logger.Named("browser"))
	engine := renderapp.NewCaptureEngine(renderapp.CaptureConfig{
		MaxAttempts:     cfg.Render.MaxAttempts,
		FrameTimeout:    cfg.Render.FrameTimeout.Duration,
		SettleDelay:     cfg.Render.SettleDelay.Duration,
		NavigateTimeout: cfg.Render.NavigateTimeout.Duration,
	}, verifier, logger.Named("capture"))
	encoder := ffmpeg.NewEncoder(cfg.Encoder.Binary, cfg.Encoder.Codec, cfg.Encoder.CRF, cfg.Encoder.PixelFormat, logger.Named("ffmpeg"))

	pipeline := renderapp.NewPipeline(builder, host, launcher, engine, verifier, encoder, renderapp.Settings{
		TotalFrames: cfg.Render.TotalFrames,
		FrameRate:   cfg.Render.FrameRate,
	}, logger.Named("pipeline"))

	return renderapp.NewService(pipeline, workspace, renderapp.Options{
		Policy:        renderdomain.BusyPolicy(cfg.Queue.BusyPolicy),
		MaxQueueDepth: cfg.Queue.MaxDepth,
		JobTimeout:    cfg.Queue.JobTimeout.Duration,
		TotalFrames:   cfg.Render.TotalFrames,
	}, logger.Named("jobs")), nil
}
