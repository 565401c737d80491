package render

import "time"

// JobState describes where a job is in the render pipeline.
type JobState string

const (
	StateQueued    JobState = "queued"
	StatePreparing JobState = "preparing"
	StateRendering JobState = "rendering"
	StateEncoding  JobState = "encoding"
	StateSucceeded JobState = "succeeded"
	StateFailed    JobState = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s JobState) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Active reports whether the job currently holds the pipeline slot.
func (s JobState) Active() bool {
	return s == StatePreparing || s == StateRendering || s == StateEncoding
}

// Job is one request to produce a video.
type Job struct {
	ID         string
	Payload    []byte
	State      JobState
	Error      string
	ErrorKind  ErrorKind
	Artifact   string
	Frames     int
	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

// JobStatus is the read-only view handed to transport.
type JobStatus struct {
	ID         string
	State      JobState
	Error      string
	ErrorKind  ErrorKind
	Frames     int
	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

// Status returns the job without its payload.
func (j Job) Status() JobStatus {
	return JobStatus{
		ID:         j.ID,
		State:      j.State,
		Error:      j.Error,
		ErrorKind:  j.ErrorKind,
		Frames:     j.Frames,
		CreatedAt:  j.CreatedAt,
		StartedAt:  j.StartedAt,
		FinishedAt: j.FinishedAt,
	}
}

// QueueStatus reports serializer occupancy.
type QueueStatus struct {
	Active      bool
	ActiveJob   string
	ActiveState JobState
	QueueDepth  int
	Policy      BusyPolicy
}

// BusyPolicy decides what happens to a submission while a job is active.
type BusyPolicy string

const (
	PolicyQueue  BusyPolicy = "queue"
	PolicyReject BusyPolicy = "reject"
)

// Scratch is the per-job filesystem layout.
type Scratch struct {
	FramesDir  string
	OutputPath string
}

// Artifact is the finished video handed to the caller.
type Artifact struct {
	JobID string
	Path  string
	Size  int64
}

// AttemptOutcome classifies a single frame capture attempt.
type AttemptOutcome string

const (
	OutcomeSuccess      AttemptOutcome = "success"
	OutcomeTimeout      AttemptOutcome = "timeout"
	OutcomeSurfaceError AttemptOutcome = "surface_error"
	OutcomeInvalidFile  AttemptOutcome = "invalid_file"
)

// FrameCaptureAttempt is an ephemeral record of one try at one frame.
type FrameCaptureAttempt struct {
	Frame   int
	Attempt int
	Outcome AttemptOutcome
	Elapsed time.Duration
	Err     error
}
