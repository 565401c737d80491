package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httptransport "framecast/internal/transport/http"
)

const shutdownTimeout = 30 * time.Second

func newServeCommand(ctx *commandContext) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP render server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			logger, err := ctx.logger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			service, err := newRenderService(cfg, logger)
			if err != nil {
				return err
			}
			workerDone := make(chan struct{})
			go func() {
				defer close(workerDone)
				service.Run(runCtx)
			}()

			handler := httptransport.NewHandler(service, cfg.Server.MaxPayloadBytes, logger.Named("http"))
			server := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           httptransport.NewServerHandler(handler, logger.Named("http")),
				ReadHeaderTimeout: 10 * time.Second,
			}

			serveErr := make(chan error, 1)
			go func() {
				logger.Info("server started", zap.String("addr", cfg.Server.Addr))
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
				}
				close(serveErr)
			}()

			select {
			case err := <-serveErr:
				stop()
				<-workerDone
				return err
			case <-runCtx.Done():
			}

			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Warn("http shutdown failed", zap.Error(err))
			}
			<-workerDone
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}
