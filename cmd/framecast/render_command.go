package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	renderdomain "framecast/internal/domain/render"
)

func newRenderCommand(ctx *commandContext) *cobra.Command {
	var payloadPath string
	var outPath string
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render one job locally and write the video to a file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			var payload []byte
			if payloadPath != "" {
				payload, err = os.ReadFile(payloadPath)
				if err != nil {
					return fmt.Errorf("read payload: %w", err)
				}
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			service, err := newRenderService(cfg, logger)
			if err != nil {
				return err
			}
			workerCtx, stopWorker := context.WithCancel(context.Background())
			defer stopWorker()
			go service.Run(workerCtx)

			status, err := service.Submit(runCtx, payload, func(_ context.Context, artifact renderdomain.Artifact) error {
				return copyArtifact(artifact.Path, outPath)
			})
			if err != nil {
				return err
			}
			logger.Info("video written", zap.String("job_id", status.ID), zap.String("path", outPath))
			fmt.Fprintln(cmd.OutOrStdout(), outPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&payloadPath, "payload", "p", "", "Content definition file written to the entry file before rebuilding")
	cmd.Flags().StringVarP(&outPath, "out", "o", "output.mp4", "Destination video path")
	return cmd
}

func copyArtifact(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}
