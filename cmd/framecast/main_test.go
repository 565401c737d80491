package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigCommand_PrintsEffectiveConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "framecast.toml")
	if err := os.WriteFile(path, []byte("[render]\ntotal_frames = 90\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", path, "config"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out.String(), "total_frames = 90") {
		t.Fatalf("expected file value in output, got:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "[encoder]") {
		t.Fatalf("expected encoder section in output, got:\n%s", out.String())
	}
}

func TestCopyArtifact(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "output.mp4")
	if err := os.WriteFile(src, []byte("video"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	dst := filepath.Join(dir, "out", "clip.mp4")

	if err := copyArtifact(src, dst); err != nil {
		t.Fatalf("copy: %v", err)
	}
	body, err := os.ReadFile(dst)
	if err != nil || string(body) != "video" {
		t.Fatalf("unexpected copy %q err=%v", body, err)
	}
	if _, err := os.Stat(dst + ".part"); !os.IsNotExist(err) {
		t.Fatalf("expected temp file to be gone")
	}
}
