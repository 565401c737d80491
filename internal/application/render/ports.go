package render

import (
	"context"
	"time"

	renderdomain "framecast/internal/domain/render"
)

// Workspace is an application port for the per-job scratch area.
type Workspace interface {
	Prepare(jobID string) (renderdomain.Scratch, error)
	Teardown() error
}

// ContentBuilder writes the job payload and rebuilds the served content.
type ContentBuilder interface {
	Build(ctx context.Context, payload []byte) error
}

// SurfaceHost exposes built content to the browser for one job.
type SurfaceHost interface {
	Serve(ctx context.Context) (Surface, error)
}

// Surface is a reachable render surface.
type Surface interface {
	URL() string
	Close(ctx context.Context) error
}

// BrowserLauncher starts one automated browser with one page.
type BrowserLauncher interface {
	Launch(ctx context.Context) (Session, error)
}

// Session is one browser process and page. It is never shared across jobs.
type Session interface {
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	SetFrame(ctx context.Context, index int) error
	CaptureTo(ctx context.Context, path string) error
	Close() error
}

// FrameChecker validates captured frames on disk.
type FrameChecker interface {
	VerifyFrame(path string) (int, int, error)
	VerifySequence(dir string, total int) error
}

// Encoder assembles an ordered frame sequence into one video file.
type Encoder interface {
	Encode(ctx context.Context, framesDir string, totalFrames, frameRate int, outputPath string) error
}

// Runner executes the pipeline body for one admitted job.
type Runner interface {
	Run(ctx context.Context, job renderdomain.Job, scratch renderdomain.Scratch, advance func(renderdomain.JobState)) (renderdomain.Artifact, error)
}

// DeliverFunc hands a finished artifact to the caller. The artifact is removed
// once it returns, whatever the outcome.
type DeliverFunc func(ctx context.Context, artifact renderdomain.Artifact) error
