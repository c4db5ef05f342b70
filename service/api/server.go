// Package api exposes task submission and inspection over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sourcegraph/conc/panics"
	"github.com/viant/taskgraph/internal/logging"
	"github.com/viant/taskgraph/model/task"
	"github.com/viant/taskgraph/service/dao"
	"github.com/viant/taskgraph/tracing"
)

const maxBodyBytes = 1 << 20

// Runtime is the subset of scheduler operations served over HTTP
type Runtime interface {
	Submit(ctx context.Context, descriptor *task.Descriptor) (*task.Task, error)
	Task(ctx context.Context, id string) (*task.Task, error)
	Status(ctx context.Context, id string) (*task.StatusView, error)
	Tasks(ctx context.Context, statuses ...task.Status) ([]*task.Task, error)
}

// Server serves the task API
type Server struct {
	runtime Runtime
	logger  *logging.Logger
}

// NewServer creates a server; a nil logger discards output
func NewServer(runtime Runtime, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Server{runtime: runtime, logger: logger}
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/tasks", s.handleSubmit)
	mux.HandleFunc("GET /api/tasks", s.handleList)
	mux.HandleFunc("GET /api/tasks/{id}", s.handleGet)
	mux.HandleFunc("GET /api/tasks/{id}/status", s.handleStatus)
	return s.recoverer(mux)
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracing.StartSpan(r.Context(), r.Method+" "+r.URL.Path, tracing.KindServer)
		var catcher panics.Catcher
		catcher.Try(func() {
			next.ServeHTTP(w, r.WithContext(ctx))
		})
		var err error
		if recovered := catcher.Recovered(); recovered != nil {
			err = recovered.AsError()
			s.logger.Error("unhandled error", "method", r.Method, "path", r.URL.Path, "panic", recovered.String())
			writeInternalError(w)
		}
		tracing.EndSpan(span, err)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var payload map[string]interface{}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	descriptor, err := task.DescriptorFromMap(payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := s.runtime.Submit(r.Context(), descriptor)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, created)
	case errors.Is(err, task.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, dao.ErrDuplicateID):
		writeError(w, http.StatusConflict, "task "+descriptor.ID+" already exists")
	default:
		s.internalError(w, r, err)
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	var statuses []task.Status
	for _, value := range r.URL.Query()["status"] {
		status := task.Status(value)
		if !status.IsValid() {
			writeError(w, http.StatusBadRequest, "unknown status: "+value)
			return
		}
		statuses = append(statuses, status)
	}
	tasks, err := s.runtime.Tasks(r.Context(), statuses...)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	aTask, err := s.runtime.Task(r.Context(), r.PathValue("id"))
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if aTask == nil {
		writeError(w, http.StatusNotFound, "Task not found")
		return
	}
	writeJSON(w, http.StatusOK, aTask)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	view, err := s.runtime.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if view == nil {
		writeError(w, http.StatusNotFound, "Task not found")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("unhandled error", "method", r.Method, "path", r.URL.Path, "error", err)
	writeInternalError(w)
}

func writeInternalError(w http.ResponseWriter) {
	writeError(w, http.StatusInternalServerError, "Internal Server Error")
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
