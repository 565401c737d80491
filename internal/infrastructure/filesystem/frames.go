package filesystem

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"

	"framecast/internal/domain/render"
)

// DefaultMinFrameBytes is the smallest file accepted as a captured frame.
const DefaultMinFrameBytes = 64

// Verifier checks captured frames before they are trusted.
type Verifier struct {
	MinBytes int64
}

// NewVerifier creates a verifier with the given minimum frame size.
func NewVerifier(minBytes int64) *Verifier {
	if minBytes <= 0 {
		minBytes = DefaultMinFrameBytes
	}
	return &Verifier{MinBytes: minBytes}
}

// VerifyFrame checks that path exists, is not undersized and decodes as an
// image. It returns the decoded dimensions.
func (v *Verifier) VerifyFrame(path string) (int, int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", render.ErrFrameInvalid, err)
	}
	if info.IsDir() {
		return 0, 0, fmt.Errorf("%w: %s is a directory", render.ErrFrameInvalid, path)
	}
	if info.Size() < v.MinBytes {
		return 0, 0, fmt.Errorf("%w: %s has %d bytes, want at least %d", render.ErrFrameInvalid, filepath.Base(path), info.Size(), v.MinBytes)
	}

	img, err := imaging.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: decode %s: %v", render.ErrFrameInvalid, filepath.Base(path), err)
	}
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return 0, 0, fmt.Errorf("%w: %s is empty", render.ErrFrameInvalid, filepath.Base(path))
	}
	return bounds.Dx(), bounds.Dy(), nil
}

// VerifySequence checks that dir holds exactly the frames 0..total-1, each at
// least MinBytes long, and nothing else that looks like a frame.
func (v *Verifier) VerifySequence(dir string, total int) error {
	if !render.ValidFrameCount(total) {
		return fmt.Errorf("invalid frame count %d", total)
	}

	expected := make(map[string]struct{}, total)
	for i := 0; i < total; i++ {
		expected[render.FrameFileName(i, total)] = struct{}{}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read frames dir: %w", err)
	}

	var unexpected []string
	for _, entry := range entries {
		name := entry.Name()
		if _, ok := expected[name]; !ok {
			if strings.HasSuffix(name, ".png") {
				unexpected = append(unexpected, name)
			}
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", name, err)
		}
		if info.Size() < v.MinBytes {
			return fmt.Errorf("%w: %s has %d bytes", render.ErrFrameInvalid, name, info.Size())
		}
		delete(expected, name)
	}

	if len(unexpected) > 0 {
		sort.Strings(unexpected)
		return fmt.Errorf("unexpected frame files: %s", strings.Join(unexpected, ", "))
	}
	if len(expected) > 0 {
		missing := make([]string, 0, len(expected))
		for name := range expected {
			missing = append(missing, name)
		}
		sort.Strings(missing)
		if len(missing) > 5 {
			missing = append(missing[:5], "...")
		}
		return fmt.Errorf("%w: missing %d of %d frames: %s", render.ErrFrameInvalid, len(expected), total, strings.Join(missing, ", "))
	}
	return nil
}
