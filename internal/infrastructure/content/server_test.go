package content

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestHandler_ServesIndex(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<canvas></canvas>"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	rec := httptest.NewRecorder()
	Handler(dir).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "<canvas></canvas>" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestServe_LocalSurface(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("ok"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	server := NewServer("127.0.0.1:0", dir, "", zaptest.NewLogger(t))
	surface, err := server.Serve(context.Background())
	if err != nil {
		t.Fatalf("serve: %v", err)
	}

	resp, err := http.Get(surface.URL())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "ok" {
		t.Fatalf("unexpected body %q", body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := surface.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := http.Get(surface.URL()); err == nil {
		t.Fatalf("expected surface to stop accepting requests")
	}
}

func TestServe_ExternalURL(t *testing.T) {
	server := NewServer("", "", "http://localhost:3000/", nil)
	surface, err := server.Serve(context.Background())
	if err != nil {
		t.Fatalf("serve: %v", err)
	}
	if surface.URL() != "http://localhost:3000/" {
		t.Fatalf("unexpected url %s", surface.URL())
	}
	if err := surface.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestServe_MissingDir(t *testing.T) {
	server := NewServer("127.0.0.1:0", filepath.Join(t.TempDir(), "build"), "", nil)
	if _, err := server.Serve(context.Background()); err == nil {
		t.Fatalf("expected error for missing build dir")
	}
}
