package content

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"framecast/internal/application/render"
)

// Server exposes the built content to the browser. With ExternalURL set it
// serves nothing and hands out that URL.
type Server struct {
	Addr        string
	Dir         string
	ExternalURL string
	logger      *zap.Logger
}

// NewServer creates a surface host for dir on addr.
func NewServer(addr, dir, externalURL string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{Addr: addr, Dir: dir, ExternalURL: externalURL, logger: logger}
}

// Handler serves static files from dir.
func Handler(dir string) http.Handler {
	r := mux.NewRouter()
	r.PathPrefix("/").Handler(http.FileServer(http.Dir(dir)))
	return r
}

// Serve starts a static server for one job.
func (s *Server) Serve(ctx context.Context) (render.Surface, error) {
	if s.ExternalURL != "" {
		return externalSurface(s.ExternalURL), nil
	}

	info, err := os.Stat(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("content dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("content dir %s is not a directory", s.Dir)
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", s.Addr, err)
	}

	srv := &http.Server{
		Handler:           Handler(s.Dir),
		ReadHeaderTimeout: 10 * time.Second,
	}
	surface := &localSurface{
		server: srv,
		url:    "http://" + listener.Addr().String() + "/",
		done:   make(chan struct{}),
	}
	go func() {
		defer close(surface.done)
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn("surface server stopped", zap.Error(err))
		}
	}()

	s.logger.Info("surface server started", zap.String("url", surface.url), zap.String("dir", s.Dir))
	return surface, nil
}

type localSurface struct {
	server *http.Server
	url    string
	done   chan struct{}
}

func (l *localSurface) URL() string {
	return l.url
}

func (l *localSurface) Close(ctx context.Context) error {
	err := l.server.Shutdown(ctx)
	if err != nil {
		_ = l.server.Close()
	}
	<-l.done
	return err
}

type externalSurface string

func (e externalSurface) URL() string {
	return string(e)
}

func (e externalSurface) Close(context.Context) error {
	return nil
}
