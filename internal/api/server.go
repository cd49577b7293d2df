package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/mission-control/internal/agents"
	"github.com/example/mission-control/internal/orchestrator"
	"github.com/example/mission-control/internal/resolver"
)

// Server exposes one orchestrator over JSON and SSE.
type Server struct {
	orch *orchestrator.Orchestrator
	log  *slog.Logger
	mux  *http.ServeMux
}

func NewServer(orch *orchestrator.Orchestrator, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{orch: orch, log: log, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	s.mux.HandleFunc("GET /agents", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, s.orch.Roles().Roles())
	})
	s.mux.HandleFunc("GET /templates", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, agents.MissionTemplates)
	})

	s.mux.HandleFunc("GET /mission", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, s.orch.Snapshot())
	})
	s.mux.HandleFunc("GET /mission/graph", func(w http.ResponseWriter, r *http.Request) {
		layout := s.orch.Graph()
		if layout.Levels == nil {
			layout.Levels = [][]string{}
		}
		respondJSON(w, http.StatusOK, layout)
	})
	s.mux.HandleFunc("GET /mission/events", s.handleEvents)
	s.mux.HandleFunc("GET /mission/saved", func(w http.ResponseWriter, r *http.Request) {
		ok, err := s.orch.HasSavedPlan(r.Context())
		if err != nil {
			s.fail(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]bool{"saved": ok})
	})

	s.mux.HandleFunc("POST /mission/goal", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Goal string `json:"goal"`
		}
		if !decode(w, r, &req) {
			return
		}
		s.snapshotAfter(w, http.StatusAccepted, s.orch.SubmitGoal(r.Context(), req.Goal))
	})
	s.mux.HandleFunc("POST /mission/approve", func(w http.ResponseWriter, r *http.Request) {
		s.snapshotAfter(w, http.StatusAccepted, s.orch.Approve(r.Context()))
	})
	s.mux.HandleFunc("POST /mission/reset", func(w http.ResponseWriter, r *http.Request) {
		s.orch.Reset()
		s.snapshotAfter(w, http.StatusOK, nil)
	})
	s.mux.HandleFunc("POST /mission/save", func(w http.ResponseWriter, r *http.Request) {
		s.snapshotAfter(w, http.StatusOK, s.orch.SavePlan(r.Context()))
	})
	s.mux.HandleFunc("POST /mission/load", func(w http.ResponseWriter, r *http.Request) {
		s.snapshotAfter(w, http.StatusOK, s.orch.LoadPlan(r.Context()))
	})

	s.mux.HandleFunc("POST /mission/tasks", func(w http.ResponseWriter, r *http.Request) {
		var draft orchestrator.TaskDraft
		if !decode(w, r, &draft) {
			return
		}
		t, err := s.orch.AddTask(r.Context(), draft)
		if err != nil {
			s.fail(w, err)
			return
		}
		respondJSON(w, http.StatusCreated, t)
	})
	s.mux.HandleFunc("PATCH /mission/tasks/{id}", func(w http.ResponseWriter, r *http.Request) {
		var patch orchestrator.TaskPatch
		if !decode(w, r, &patch) {
			return
		}
		s.snapshotAfter(w, http.StatusOK, s.orch.EditTask(r.Context(), r.PathValue("id"), patch))
	})
	s.mux.HandleFunc("DELETE /mission/tasks/{id}", func(w http.ResponseWriter, r *http.Request) {
		s.snapshotAfter(w, http.StatusOK, s.orch.DeleteTask(r.Context(), r.PathValue("id")))
	})
	s.mux.HandleFunc("POST /mission/tasks/{id}/retry", func(w http.ResponseWriter, r *http.Request) {
		s.snapshotAfter(w, http.StatusAccepted, s.orch.RetryTask(r.Context(), r.PathValue("id")))
	})
}

func (s *Server) Handler() http.Handler { return s.mux }

// handleEvents streams hub events as SSE. The current snapshot is sent first
// so a client never starts from an empty view.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}
	events, unsubscribe := s.orch.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	snap := s.orch.Snapshot()
	first, _ := json.Marshal(orchestrator.Event{Event: "mission", MissionID: snap.ID, Payload: snap})
	writeEvent(w, "mission", first)
	flusher.Flush()

	keepalive := time.NewTicker(15 * time.Second)
	defer keepalive.Stop()
	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case b, ok := <-events:
			if !ok {
				return
			}
			var head struct {
				Event string `json:"event"`
			}
			_ = json.Unmarshal(b, &head)
			writeEvent(w, head.Event, b)
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, name string, data []byte) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
}

func (s *Server) snapshotAfter(w http.ResponseWriter, status int, err error) {
	if err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, status, s.orch.Snapshot())
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "err", err)
	}
	respondJSON(w, status, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	var verr *resolver.ValidationError
	switch {
	case errors.Is(err, orchestrator.ErrInvalidPhase):
		return http.StatusConflict
	case errors.Is(err, orchestrator.ErrTaskNotFound), errors.Is(err, orchestrator.ErrNoSavedPlan):
		return http.StatusNotFound
	case errors.Is(err, orchestrator.ErrBlankGoal),
		errors.Is(err, orchestrator.ErrInvalidTask),
		errors.Is(err, orchestrator.ErrUnknownAgent),
		errors.Is(err, orchestrator.ErrEmptyPlan),
		errors.Is(err, orchestrator.ErrNotEditable),
		errors.Is(err, orchestrator.ErrNotRetryable),
		errors.Is(err, orchestrator.ErrMalformedPlan),
		errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, orchestrator.ErrNoStore):
		return http.StatusNotImplemented
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	}
	return http.StatusInternalServerError
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body: " + err.Error()})
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}
