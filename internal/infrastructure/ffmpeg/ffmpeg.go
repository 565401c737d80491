package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"framecast/internal/domain/render"
)

const maxDiagnosticBytes = 4096

// Encoder wraps ffmpeg calls that turn a frame sequence into a video.
type Encoder struct {
	Binary      string
	Codec       string
	CRF         int
	PixelFormat string
	logger      *zap.Logger
}

// NewEncoder creates an ffmpeg adapter with codec settings.
func NewEncoder(binary, codec string, crf int, pixelFormat string, logger *zap.Logger) *Encoder {
	if binary == "" {
		binary = "ffmpeg"
	}
	if codec == "" {
		codec = "libx264"
	}
	if pixelFormat == "" {
		pixelFormat = "yuv420p"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Encoder{Binary: binary, Codec: codec, CRF: crf, PixelFormat: pixelFormat, logger: logger}
}

// Args returns the ffmpeg argument list for one encode.
func (e *Encoder) Args(framesDir string, totalFrames, frameRate int, outputPath string) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-framerate", strconv.Itoa(frameRate),
		"-start_number", "0",
		"-i", filepath.Join(framesDir, render.FramePattern(totalFrames)),
		"-frames:v", strconv.Itoa(totalFrames),
		"-c:v", e.Codec,
		"-crf", strconv.Itoa(e.CRF),
		"-pix_fmt", e.PixelFormat,
		"-movflags", "+faststart",
		"-f", "mp4",
		outputPath,
	}
}

// Encode assembles frames 0..totalFrames-1 into outputPath. Only the exit
// status decides success; output is kept for diagnostics.
func (e *Encoder) Encode(ctx context.Context, framesDir string, totalFrames, frameRate int, outputPath string) error {
	if totalFrames < 1 || frameRate < 1 {
		return fmt.Errorf("invalid encode request: frames=%d rate=%d", totalFrames, frameRate)
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}

	tmpPath := outputPath + ".tmp.mp4"
	_ = os.Remove(tmpPath)

	e.logger.Info("encoding video",
		zap.String("binary", e.Binary),
		zap.Int("frames", totalFrames),
		zap.Int("frame_rate", frameRate),
	)
	output, err := run(ctx, e.Binary, e.Args(framesDir, totalFrames, frameRate, tmpPath)...)
	if output != "" {
		e.logger.Debug("encoder output", zap.String("output", output))
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	_ = os.Remove(outputPath)
	return os.Rename(tmpPath, outputPath)
}

func run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.Stdout = &stderr
	err := cmd.Run()
	output := strings.TrimSpace(stderr.String())
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return output, fmt.Errorf("%s exited with status %d: %s", name, exitErr.ExitCode(), tail(output))
		}
		return output, fmt.Errorf("%s failed: %w: %s", name, err, tail(output))
	}
	return output, nil
}

func tail(output string) string {
	if len(output) <= maxDiagnosticBytes {
		return output
	}
	return "..." + output[len(output)-maxDiagnosticBytes:]
}
