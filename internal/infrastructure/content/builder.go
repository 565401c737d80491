package content

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultBuildTimeout = 5 * time.Minute
	maxDiagnosticBytes  = 4096
)

// Builder writes a job payload into the content project and rebuilds it.
type Builder struct {
	ProjectDir string
	EntryFile  string
	Command    []string
	Timeout    time.Duration
	logger     *zap.Logger
}

// NewBuilder creates a content builder. An empty command skips the build step.
func NewBuilder(projectDir, entryFile string, command []string, timeout time.Duration, logger *zap.Logger) *Builder {
	if timeout <= 0 {
		timeout = defaultBuildTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{ProjectDir: projectDir, EntryFile: entryFile, Command: command, Timeout: timeout, logger: logger}
}

// ParseCommand splits a build command line on whitespace.
func ParseCommand(line string) []string {
	return strings.Fields(line)
}

// Build replaces the entry file with payload (when not empty) and runs the
// build command. The build is never retried.
func (b *Builder) Build(ctx context.Context, payload []byte) error {
	if len(payload) > 0 {
		if err := b.writeEntry(payload); err != nil {
			return err
		}
	}
	if len(b.Command) == 0 {
		return nil
	}

	buildCtx, cancel := context.WithTimeout(ctx, b.Timeout)
	defer cancel()

	started := time.Now()
	cmd := exec.CommandContext(buildCtx, b.Command[0], b.Command[1:]...)
	cmd.Dir = b.ProjectDir
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	b.logger.Info("building content", zap.Strings("command", b.Command), zap.String("dir", b.ProjectDir))
	err := cmd.Run()
	text := strings.TrimSpace(output.String())
	if text != "" {
		b.logger.Debug("build output", zap.String("output", text))
	}
	if err != nil {
		if buildCtx.Err() != nil && ctx.Err() == nil {
			return fmt.Errorf("build timed out after %s: %w", b.Timeout, buildCtx.Err())
		}
		return fmt.Errorf("build %q failed: %w: %s", strings.Join(b.Command, " "), err, tail(text))
	}
	b.logger.Info("content built", zap.Duration("elapsed", time.Since(started)))
	return nil
}

func (b *Builder) writeEntry(payload []byte) error {
	entry, err := b.entryPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(entry), 0o755); err != nil {
		return fmt.Errorf("create entry dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(entry), ".payload-*")
	if err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write payload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("write payload: %w", err)
	}
	if err := os.Rename(tmpName, entry); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace entry file: %w", err)
	}
	b.logger.Debug("payload written", zap.String("path", entry), zap.Int("bytes", len(payload)))
	return nil
}

// entryPath resolves EntryFile inside ProjectDir.
func (b *Builder) entryPath() (string, error) {
	value := strings.TrimSpace(strings.ReplaceAll(b.EntryFile, "\\", "/"))
	cleaned := strings.TrimPrefix(path.Clean("/"+value), "/")
	if value == "" || cleaned == "" || cleaned == "." {
		return "", errors.New("invalid entry file")
	}
	return filepath.Join(b.ProjectDir, filepath.FromSlash(cleaned)), nil
}

func tail(output string) string {
	if len(output) <= maxDiagnosticBytes {
		return output
	}
	return "..." + output[len(output)-maxDiagnosticBytes:]
}
