package render

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	renderdomain "framecast/internal/domain/render"
)

const (
	defaultHistorySize   = 64
	defaultMaxQueueDepth = 8
)

// Options tune admission and the job budget.
type Options struct {
	Policy        renderdomain.BusyPolicy
	MaxQueueDepth int
	JobTimeout    time.Duration
	HistorySize   int
	TotalFrames   int
}

// Service is the single-flight job serializer. Exactly one job runs the
// pipeline at a time; others wait in FIFO order or are rejected.
type Service struct {
	runner    Runner
	workspace Workspace
	opts      Options
	logger    *zap.Logger

	newID func() string
	now   func() time.Time

	mu      sync.Mutex
	pending []*entry
	active  *entry
	jobs    map[string]*renderdomain.Job
	history []string
	stopped bool
	wake    chan struct{}
}

type entry struct {
	job     *renderdomain.Job
	deliver DeliverFunc
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

// NewService creates a serializer around the pipeline runner and workspace.
func NewService(runner Runner, workspace Workspace, opts Options, logger *zap.Logger) *Service {
	if opts.Policy == "" {
		opts.Policy = renderdomain.PolicyQueue
	}
	if opts.MaxQueueDepth <= 0 {
		opts.MaxQueueDepth = defaultMaxQueueDepth
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = defaultHistorySize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		runner:    runner,
		workspace: workspace,
		opts:      opts,
		logger:    logger,
		newID:     uuid.NewString,
		now:       time.Now,
		jobs:      make(map[string]*renderdomain.Job),
		wake:      make(chan struct{}, 1),
	}
}

// Submit admits a job and blocks until it reaches a terminal state. deliver is
// called with the artifact of a successful job before its scratch area is
// removed. Cancelling ctx withdraws a queued job or aborts the active one.
func (s *Service) Submit(ctx context.Context, payload []byte, deliver DeliverFunc) (renderdomain.JobStatus, error) {
	e, err := s.admit(payload, deliver)
	if err != nil {
		return renderdomain.JobStatus{}, err
	}

	select {
	case <-e.done:
	case <-ctx.Done():
		if s.withdraw(e, ctx.Err()) {
			break
		}
		<-e.done
	}
	return s.snapshot(e), e.err
}

// Status reports whether a job is active and how many are waiting.
func (s *Service) Status() renderdomain.QueueStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := renderdomain.QueueStatus{QueueDepth: len(s.pending), Policy: s.opts.Policy}
	if s.active != nil {
		status.Active = true
		status.ActiveJob = s.active.job.ID
		status.ActiveState = s.active.job.State
	}
	return status
}

// Job returns the status of a live or recently finished job.
func (s *Service) Job(id string) (renderdomain.JobStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return renderdomain.JobStatus{}, renderdomain.ErrJobNotFound
	}
	return job.Status(), nil
}

// Run processes admitted jobs one at a time until ctx is cancelled. Jobs
// still queued at that point fail with ErrStopped.
func (s *Service) Run(ctx context.Context) {
	s.logger.Info("render worker started", zap.String("policy", string(s.opts.Policy)))
	for {
		e, jobCtx, cancel := s.next(ctx)
		if e != nil {
			s.execute(jobCtx, e)
			cancel()
			continue
		}

		select {
		case <-ctx.Done():
			s.stop()
			s.logger.Info("render worker stopped")
			return
		case <-s.wake:
		}
	}
}

func (s *Service) admit(payload []byte, deliver DeliverFunc) (*entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil, renderdomain.Fail(renderdomain.KindAdmission, "admit", renderdomain.ErrStopped)
	}
	busy := s.active != nil || len(s.pending) > 0
	if busy && s.opts.Policy == renderdomain.PolicyReject {
		return nil, renderdomain.Fail(renderdomain.KindAdmission, "admit", renderdomain.ErrBusy)
	}
	if len(s.pending) >= s.opts.MaxQueueDepth {
		return nil, renderdomain.Fail(renderdomain.KindAdmission, "admit", renderdomain.ErrQueueFull)
	}

	job := &renderdomain.Job{
		ID:        s.newID(),
		Payload:   payload,
		State:     renderdomain.StateQueued,
		Frames:    s.opts.TotalFrames,
		CreatedAt: s.now(),
	}
	e := &entry{job: job, deliver: deliver, done: make(chan struct{})}
	s.pending = append(s.pending, e)
	s.jobs[job.ID] = job

	s.logger.Info("job queued", zap.String("job_id", job.ID), zap.Int("queue_depth", len(s.pending)), zap.Bool("busy", busy))

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return e, nil
}

// next pops the head of the queue and makes it active in one step so a
// cancelling caller always finds either a pending entry or a cancel func.
func (s *Service) next(ctx context.Context) (*entry, context.Context, context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil || len(s.pending) == 0 || ctx.Err() != nil {
		return nil, nil, nil
	}
	e := s.pending[0]
	s.pending[0] = nil
	s.pending = s.pending[1:]

	jobCtx, cancel := context.WithCancel(ctx)
	if s.opts.JobTimeout > 0 {
		var timeoutCancel context.CancelFunc
		jobCtx, timeoutCancel = context.WithTimeout(jobCtx, s.opts.JobTimeout)
		parentCancel := cancel
		cancel = func() {
			timeoutCancel()
			parentCancel()
		}
	}

	e.cancel = cancel
	e.job.State = renderdomain.StatePreparing
	e.job.StartedAt = s.now()
	s.active = e
	return e, jobCtx, cancel
}

func (s *Service) execute(ctx context.Context, e *entry) {
	log := s.logger.With(zap.String("job_id", e.job.ID))
	log.Info("job started")

	jobErr, deliverErr := s.process(ctx, log, e)
	if jobErr != nil && ctx.Err() != nil && renderdomain.KindOf(jobErr) != renderdomain.KindCanceled {
		jobErr = &renderdomain.JobError{Kind: renderdomain.KindCanceled, Op: "job aborted", Err: fmt.Errorf("%w: %v", ctx.Err(), jobErr)}
	}

	s.mu.Lock()
	e.job.FinishedAt = s.now()
	e.job.Payload = nil
	e.job.Artifact = ""
	switch {
	case jobErr != nil:
		e.job.State = renderdomain.StateFailed
		e.job.Error = jobErr.Error()
		e.job.ErrorKind = renderdomain.KindOf(jobErr)
		e.err = jobErr
	default:
		e.job.State = renderdomain.StateSucceeded
		e.err = deliverErr
	}
	s.active = nil
	s.remember(e.job.ID)
	elapsed := e.job.FinishedAt.Sub(e.job.StartedAt)
	s.mu.Unlock()

	if jobErr != nil {
		log.Error("job failed", zap.String("kind", string(renderdomain.KindOf(jobErr))), zap.Duration("elapsed", elapsed), zap.Error(jobErr))
	} else {
		log.Info("job finished", zap.Duration("elapsed", elapsed))
	}
	close(e.done)
}

// process runs the pipeline body between workspace prepare and teardown.
// Teardown runs on every path, including delivery failures.
func (s *Service) process(ctx context.Context, log *zap.Logger, e *entry) (jobErr error, deliverErr error) {
	scratch, err := s.workspace.Prepare(e.job.ID)
	defer func() {
		if err := s.workspace.Teardown(); err != nil {
			log.Warn("workspace teardown failed", zap.Error(err))
		}
	}()
	if err != nil {
		return renderdomain.Fail(renderdomain.KindPreparation, "prepare workspace", err), nil
	}

	s.mu.Lock()
	job := *e.job
	s.mu.Unlock()

	artifact, err := s.runner.Run(ctx, job, scratch, func(state renderdomain.JobState) {
		s.advance(e, state)
	})
	if err != nil {
		return err, nil
	}

	s.mu.Lock()
	e.job.State = renderdomain.StateSucceeded
	e.job.Artifact = artifact.Path
	s.mu.Unlock()

	if e.deliver == nil {
		return nil, nil
	}
	if err := e.deliver(ctx, artifact); err != nil {
		log.Warn("artifact delivery failed", zap.Error(err))
		return nil, renderdomain.Fail(renderdomain.KindDelivery, "deliver", err)
	}
	return nil, nil
}

func (s *Service) advance(e *entry, state renderdomain.JobState) {
	s.mu.Lock()
	e.job.State = state
	s.mu.Unlock()
	s.logger.Info("job state", zap.String("job_id", e.job.ID), zap.String("state", string(state)))
}

// withdraw removes a still-queued entry. For an active entry it cancels the
// job context and reports false so the caller waits for teardown.
func (s *Service) withdraw(e *entry, cause error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, pending := range s.pending {
		if pending != e {
			continue
		}
		s.pending = append(s.pending[:i], s.pending[i+1:]...)
		e.job.State = renderdomain.StateFailed
		e.job.ErrorKind = renderdomain.KindCanceled
		e.job.Error = "withdrawn while queued"
		e.job.FinishedAt = s.now()
		e.job.Payload = nil
		e.err = &renderdomain.JobError{Kind: renderdomain.KindCanceled, Op: "withdraw", Err: cause}
		s.remember(e.job.ID)
		close(e.done)
		s.logger.Info("job withdrawn", zap.String("job_id", e.job.ID))
		return true
	}

	if e.cancel != nil && e.job.State.Active() {
		s.logger.Info("caller gone, aborting job", zap.String("job_id", e.job.ID))
		e.cancel()
	}
	return false
}

func (s *Service) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for _, e := range s.pending {
		e.job.State = renderdomain.StateFailed
		e.job.ErrorKind = renderdomain.KindCanceled
		e.job.Error = renderdomain.ErrStopped.Error()
		e.job.FinishedAt = s.now()
		e.job.Payload = nil
		e.err = &renderdomain.JobError{Kind: renderdomain.KindCanceled, Op: "shutdown", Err: renderdomain.ErrStopped}
		s.remember(e.job.ID)
		close(e.done)
	}
	s.pending = nil
}

// remember keeps a bounded history of terminal jobs. Caller holds s.mu.
func (s *Service) remember(id string) {
	s.history = append(s.history, id)
	for len(s.history) > s.opts.HistorySize {
		delete(s.jobs, s.history[0])
		s.history = s.history[1:]
	}
}

func (s *Service) snapshot(e *entry) renderdomain.JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return e.job.Status()
}

// IsBusy reports whether err is an admission rejection.
func IsBusy(err error) bool {
	return errors.Is(err, renderdomain.ErrBusy) || errors.Is(err, renderdomain.ErrQueueFull)
}
