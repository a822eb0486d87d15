// SPDX-License-Identifier: MPL-2.0

package host

import (
	"net/http"

	"github.com/invowk/lifespan/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type (
	// PhaseResponse is the body of the probe endpoints.
	PhaseResponse struct {
		Status   string `json:"status"`
		Phase    string `json:"phase"`
		InFlight int    `json:"in_flight"`
	}

	// StateResponse is the body of /debug/state.
	StateResponse struct {
		Phase string   `json:"phase"`
		Keys  []string `json:"keys"`
	}
)

func (s *Server) routes(app []Routes) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/debug/state", s.handleState)
	if s.cfg.Registry != nil {
		r.Method(http.MethodGet, s.cfg.MetricsPath, metrics.Handler(s.cfg.Registry))
	}

	r.Group(func(r chi.Router) {
		r.Use(s.admit)
		for _, mount := range app {
			mount(r)
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteProblem(w, Problem{Status: http.StatusNotFound, Instance: r.URL.Path})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteProblem(w, Problem{Status: http.StatusMethodNotAllowed, Instance: r.URL.Path})
	})

	return r
}

func (s *Server) phaseResponse(status string) PhaseResponse {
	return PhaseResponse{
		Status:   status,
		Phase:    s.coord.Phase().String(),
		InFlight: s.coord.InFlight(),
	}
}

// handleHealth reports liveness. Only a terminal coordinator is unhealthy.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if s.coord.Phase().IsTerminal() {
		WriteJSON(w, http.StatusServiceUnavailable, s.phaseResponse("stopped"))
		return
	}
	WriteJSON(w, http.StatusOK, s.phaseResponse("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !s.coord.IsReady() {
		WriteJSON(w, http.StatusServiceUnavailable, s.phaseResponse("unavailable"))
		return
	}
	WriteJSON(w, http.StatusOK, s.phaseResponse("ready"))
}

// handleState lists the published keys in insertion order. Values are not
// exposed.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	snap, err := s.coord.Snapshot()
	if err != nil {
		WriteProblem(w, Problem{
			Status:   http.StatusServiceUnavailable,
			Detail:   err.Error(),
			Instance: r.URL.Path,
			Phase:    s.coord.Phase().String(),
		})
		return
	}
	WriteJSON(w, http.StatusOK, StateResponse{
		Phase: s.coord.Phase().String(),
		Keys:  snap.Keys(),
	})
}
