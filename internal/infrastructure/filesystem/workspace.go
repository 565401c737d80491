package filesystem

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"

	"framecast/internal/domain/render"
)

const (
	framesDirName  = "frames"
	outputFileName = "output.mp4"
	lockFileName   = ".framecast.lock"
)

// ErrWorkspaceLocked is returned when another process holds the workspace.
var ErrWorkspaceLocked = errors.New("workspace in use by another process")

// Workspace manages the scratch directory of the active job. A file lock is
// held from Prepare to Teardown so two processes never share one root.
type Workspace struct {
	Root string

	mu   sync.Mutex
	lock *flock.Flock
	held bool
}

// NewWorkspace creates a workspace rooted at root.
func NewWorkspace(root string) *Workspace {
	return &Workspace{Root: root, lock: flock.New(filepath.Join(root, lockFileName))}
}

// EnsureRoot creates the workspace root.
func (w *Workspace) EnsureRoot() error {
	return os.MkdirAll(w.Root, 0o755)
}

// FramesDir returns the scratch directory for captured frames.
func (w *Workspace) FramesDir() string {
	return filepath.Join(w.Root, framesDirName)
}

// OutputPath returns the path of the finished artifact.
func (w *Workspace) OutputPath() string {
	return filepath.Join(w.Root, outputFileName)
}

// Prepare removes anything left by a previous job and creates a fresh, empty
// frames directory.
func (w *Workspace) Prepare(jobID string) (render.Scratch, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.EnsureRoot(); err != nil {
		return render.Scratch{}, fmt.Errorf("create workspace root: %w", err)
	}
	if !w.held {
		ok, err := w.lock.TryLock()
		if err != nil {
			return render.Scratch{}, fmt.Errorf("acquire workspace lock: %w", err)
		}
		if !ok {
			return render.Scratch{}, ErrWorkspaceLocked
		}
		w.held = true
	}

	framesDir := w.FramesDir()
	if !isWithinDir(w.Root, framesDir) {
		return render.Scratch{}, errors.New("invalid workspace path")
	}
	if err := w.clear(); err != nil {
		return render.Scratch{}, err
	}
	if err := os.MkdirAll(framesDir, 0o755); err != nil {
		return render.Scratch{}, fmt.Errorf("create frames dir: %w", err)
	}
	return render.Scratch{FramesDir: framesDir, OutputPath: w.OutputPath()}, nil
}

// Teardown removes the frames directory and the artifact, then releases the
// lock. Calling it again, or without a prior Prepare, is a no-op.
func (w *Workspace) Teardown() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.held {
		return nil
	}
	err := w.clear()
	if unlockErr := w.lock.Unlock(); unlockErr != nil && err == nil {
		err = fmt.Errorf("release workspace lock: %w", unlockErr)
	}
	w.held = false
	return err
}

func (w *Workspace) clear() error {
	if err := os.RemoveAll(w.FramesDir()); err != nil {
		return fmt.Errorf("remove frames dir: %w", err)
	}
	output := w.OutputPath()
	for _, path := range []string{output, output + ".tmp.mp4"} {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove artifact: %w", err)
		}
	}
	return nil
}

func isWithinDir(basePath, targetPath string) bool {
	baseAbs, err := filepath.Abs(basePath)
	if err != nil {
		return false
	}
	targetAbs, err := filepath.Abs(targetPath)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(baseAbs, targetAbs)
	if err != nil {
		return false
	}
	sep := string(os.PathSeparator)
	if rel == ".." || strings.HasPrefix(rel, ".."+sep) {
		return false
	}
	return true
}
