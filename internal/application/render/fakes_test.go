package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	renderdomain "framecast/internal/domain/render"
)

type fakeSession struct {
	mu sync.Mutex

	navigates   int
	navigateErr error
	setFrames   map[int]int
	maxFrame    int
	closed      bool

	// failures maps a frame index to how many attempts fail before success.
	// A negative count fails forever.
	failures map[int]int
	failErr  error

	onCapture func(index int)
	current   int
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		setFrames: make(map[int]int),
		failures:  make(map[int]int),
		maxFrame:  -1,
		failErr:   errors.New("page evaluation failed"),
	}
}

func (s *fakeSession) Navigate(_ context.Context, _ string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.navigates++
	return s.navigateErr
}

func (s *fakeSession) SetFrame(ctx context.Context, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	s.setFrames[index]++
	s.current = index
	if index > s.maxFrame {
		s.maxFrame = index
	}
	if remaining, ok := s.failures[index]; ok && remaining != 0 {
		if remaining > 0 {
			s.failures[index] = remaining - 1
		}
		return s.failErr
	}
	return nil
}

func (s *fakeSession) CaptureTo(ctx context.Context, path string) error {
	s.mu.Lock()
	index := s.current
	hook := s.onCapture
	s.mu.Unlock()
	if hook != nil {
		hook(index)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(fmt.Sprintf("frame %d", index)), 0o644)
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSession) attempts(index int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setFrames[index]
}

// fakeChecker accepts any existing file. sizes overrides the reported
// dimensions per frame file name.
type fakeChecker struct {
	width, height int
	sizes         map[string][2]int
}

func newFakeChecker() *fakeChecker {
	return &fakeChecker{width: 400, height: 300, sizes: make(map[string][2]int)}
}

func (c *fakeChecker) VerifyFrame(path string) (int, int, error) {
	if _, err := os.Stat(path); err != nil {
		return 0, 0, fmt.Errorf("%w: %v", renderdomain.ErrFrameInvalid, err)
	}
	if size, ok := c.sizes[filepath.Base(path)]; ok {
		return size[0], size[1], nil
	}
	return c.width, c.height, nil
}

func (c *fakeChecker) VerifySequence(dir string, total int) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	count := 0
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".png") {
			count++
		}
	}
	if count != total {
		return fmt.Errorf("%w: have %d frames, want %d", renderdomain.ErrFrameInvalid, count, total)
	}
	return nil
}

type fakeBuilder struct {
	payloads [][]byte
	err      error
}

func (b *fakeBuilder) Build(_ context.Context, payload []byte) error {
	b.payloads = append(b.payloads, payload)
	return b.err
}

type fakeSurface struct {
	closed bool
}

func (s *fakeSurface) URL() string { return "http://127.0.0.1:3000/" }

func (s *fakeSurface) Close(context.Context) error {
	s.closed = true
	return nil
}

type fakeHost struct {
	surface *fakeSurface
	err     error
}

func (h *fakeHost) Serve(context.Context) (Surface, error) {
	if h.err != nil {
		return nil, h.err
	}
	h.surface = &fakeSurface{}
	return h.surface, nil
}

type fakeLauncher struct {
	session  *fakeSession
	launches int
	err      error
}

func (l *fakeLauncher) Launch(context.Context) (Session, error) {
	l.launches++
	if l.err != nil {
		return nil, l.err
	}
	return l.session, nil
}

type fakeEncoder struct {
	calls int
	err   error
	body  []byte
}

func (e *fakeEncoder) Encode(_ context.Context, _ string, _ int, _ int, outputPath string) error {
	e.calls++
	if e.err != nil {
		return e.err
	}
	body := e.body
	if body == nil {
		body = []byte("mp4 bytes")
	}
	return os.WriteFile(outputPath, body, 0o644)
}

func noWait(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}
