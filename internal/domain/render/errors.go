package render

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrBusy              = errors.New("server busy")
	ErrQueueFull         = errors.New("render queue full")
	ErrJobNotFound       = errors.New("job not found")
	ErrEntryPointMissing = errors.New("frame entry point not available")
	ErrFrameInvalid      = errors.New("captured frame invalid")
	ErrStopped           = errors.New("render service stopped")
)

// ErrorKind is the failure class of a job.
type ErrorKind string

const (
	KindAdmission   ErrorKind = "admission"
	KindPreparation ErrorKind = "preparation"
	KindCapture     ErrorKind = "capture"
	KindSession     ErrorKind = "session"
	KindEncode      ErrorKind = "encode"
	KindDelivery    ErrorKind = "delivery"
	KindCanceled    ErrorKind = "canceled"
)

// JobError is a terminal job failure.
type JobError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *JobError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *JobError) Unwrap() error {
	return e.Err
}

// Fail wraps err as a JobError unless it already is one.
func Fail(kind ErrorKind, op string, err error) error {
	if err == nil {
		return nil
	}
	var jobErr *JobError
	if errors.As(err, &jobErr) {
		return err
	}
	return &JobError{Kind: kind, Op: op, Err: err}
}

// KindOf returns the failure class of err. Context errors map to KindCanceled
// when no better class is attached.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var jobErr *JobError
	if errors.As(err, &jobErr) {
		return jobErr.Kind
	}
	if errors.Is(err, ErrBusy) || errors.Is(err, ErrQueueFull) {
		return KindAdmission
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCanceled
	}
	return ""
}
