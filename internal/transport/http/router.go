package http

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// NewRouter configures the render API routes.
func NewRouter(handler *Handler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/generate-video", handler.GenerateVideo).Methods("POST")
	r.HandleFunc("/api/generate", handler.GenerateVideo).Methods("POST")
	r.HandleFunc("/api/health", handler.Health).Methods("GET")
	r.HandleFunc("/api/jobs/{id}", handler.JobStatus).Methods("GET")
	return r
}

// NewServerHandler wraps the router with tracing, logging, recovery and CORS.
func NewServerHandler(handler *Handler, logger *zap.Logger) http.Handler {
	router := NewRouter(handler)
	router.Use(TraceID, Logging(logger), Recovery(logger))

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		ExposedHeaders: []string{"X-Job-ID", "X-Trace-ID"},
	})
	return c.Handler(router)
}
