package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	renderapp "framecast/internal/application/render"
	renderdomain "framecast/internal/domain/render"
)

const defaultMaxPayloadBytes = 50 << 20

type renderUseCases interface {
	Submit(ctx context.Context, payload []byte, deliver renderapp.DeliverFunc) (renderdomain.JobStatus, error)
	Status() renderdomain.QueueStatus
	Job(id string) (renderdomain.JobStatus, error)
}

// Handler serves the render API.
type Handler struct {
	render          renderUseCases
	maxPayloadBytes int64
	logger          *zap.Logger
}

// NewHandler wires HTTP handlers with the render use cases.
func NewHandler(renderService renderUseCases, maxPayloadBytes int64, logger *zap.Logger) *Handler {
	if maxPayloadBytes <= 0 {
		maxPayloadBytes = defaultMaxPayloadBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{render: renderService, maxPayloadBytes: maxPayloadBytes, logger: logger}
}

type errorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
	JobID   string `json:"job_id,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

type healthResponse struct {
	Active      bool   `json:"active"`
	ActiveJob   string `json:"activeJob,omitempty"`
	ActiveState string `json:"activeState,omitempty"`
	QueueDepth  int    `json:"queueDepth"`
	Policy      string `json:"policy"`
}

type jobResponse struct {
	ID         string `json:"id"`
	State      string `json:"state"`
	Frames     int    `json:"frames"`
	Error      string `json:"error,omitempty"`
	Kind       string `json:"kind,omitempty"`
	CreatedAt  int64  `json:"createdAt"`
	StartedAt  int64  `json:"startedAt,omitempty"`
	FinishedAt int64  `json:"finishedAt,omitempty"`
}

// GenerateVideo handles POST /generate-video. The body is the new content
// definition; the response is the finished video or a JSON error.
func (h *Handler) GenerateVideo(w http.ResponseWriter, r *http.Request) {
	traceID := GetTraceID(r.Context())

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxPayloadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.handleError(w, http.StatusRequestEntityTooLarge, "payload too large", "", err, traceID)
			return
		}
		h.handleError(w, http.StatusBadRequest, "failed to read payload", "", err, traceID)
		return
	}

	delivered := false
	status, err := h.render.Submit(r.Context(), payload, func(ctx context.Context, artifact renderdomain.Artifact) error {
		return sendFile(w, artifact.Path, "video/mp4", func() {
			delivered = true
			w.Header().Set("X-Job-ID", artifact.JobID)
			w.Header().Set("Content-Disposition", `attachment; filename="`+artifact.JobID+`.mp4"`)
		})
	})
	if err != nil {
		if delivered {
			h.logger.Warn("video delivery failed",
				zap.String("trace_id", traceID),
				zap.String("job_id", status.ID),
				zap.Error(err),
			)
			return
		}
		h.handleJobError(w, r, status, err, traceID)
		return
	}
	if !delivered {
		h.handleError(w, http.StatusInternalServerError, "video not produced", "", nil, traceID)
	}
}

// Health handles GET /api/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := h.render.Status()
	writeJSON(w, http.StatusOK, healthResponse{
		Active:      status.Active,
		ActiveJob:   status.ActiveJob,
		ActiveState: string(status.ActiveState),
		QueueDepth:  status.QueueDepth,
		Policy:      string(status.Policy),
	})
}

// JobStatus handles GET /api/jobs/{id}.
func (h *Handler) JobStatus(w http.ResponseWriter, r *http.Request) {
	traceID := GetTraceID(r.Context())
	id := mux.Vars(r)["id"]

	status, err := h.render.Job(id)
	if err != nil {
		if errors.Is(err, renderdomain.ErrJobNotFound) {
			h.handleError(w, http.StatusNotFound, "job not found", "", nil, traceID)
			return
		}
		h.handleError(w, http.StatusInternalServerError, err.Error(), "", err, traceID)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(status))
}

func (h *Handler) handleJobError(w http.ResponseWriter, r *http.Request, status renderdomain.JobStatus, err error, traceID string) {
	kind := renderdomain.KindOf(err)
	code := http.StatusInternalServerError
	message := "video generation failed"
	switch {
	case errors.Is(err, renderdomain.ErrStopped):
		code = http.StatusServiceUnavailable
		message = "server shutting down"
	case renderapp.IsBusy(err):
		code = http.StatusServiceUnavailable
		message = "server busy"
		w.Header().Set("Retry-After", "30")
	case kind == renderdomain.KindCanceled && errors.Is(err, context.DeadlineExceeded):
		code = http.StatusGatewayTimeout
		message = "video generation timed out"
	case kind == renderdomain.KindCanceled && r.Context().Err() == nil:
		code = http.StatusServiceUnavailable
		message = "video generation aborted"
	case kind == renderdomain.KindCanceled:
		// Client went away; nobody reads a response.
		h.logger.Info("request canceled",
			zap.String("trace_id", traceID),
			zap.String("job_id", status.ID),
			zap.Error(err),
		)
		return
	}

	body := errorResponse{Error: message + ": " + err.Error(), Kind: string(kind), JobID: status.ID, TraceID: traceID}
	h.logger.Error(message,
		zap.String("trace_id", traceID),
		zap.String("job_id", status.ID),
		zap.String("kind", string(kind)),
		zap.Error(err),
	)
	writeJSON(w, code, body)
}

func (h *Handler) handleError(w http.ResponseWriter, code int, message, jobID string, err error, traceID string) {
	if err != nil {
		h.logger.Error(message, zap.String("trace_id", traceID), zap.Error(err))
	}
	writeJSON(w, code, errorResponse{Error: message, JobID: jobID, TraceID: traceID})
}

func toJobResponse(status renderdomain.JobStatus) jobResponse {
	return jobResponse{
		ID:         status.ID,
		State:      string(status.State),
		Frames:     status.Frames,
		Error:      status.Error,
		Kind:       string(status.ErrorKind),
		CreatedAt:  unixOrZero(status.CreatedAt),
		StartedAt:  unixOrZero(status.StartedAt),
		FinishedAt: unixOrZero(status.FinishedAt),
	}
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
