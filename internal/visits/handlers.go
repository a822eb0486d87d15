// SPDX-License-Identifier: MPL-2.0

package visits

import (
	"net/http"
	"time"

	"github.com/invowk/lifespan/internal/host"
	"github.com/invowk/lifespan/pkg/lifespan"

	"github.com/go-chi/chi/v5"
)

// visitID binds the id a visit is stored under to the request's own state.
// It is not declared on the shape and never reaches the published state.
var visitID = lifespan.NewKey[string]("visit_id")

type (
	// VisitResponse is the body of GET /visits.
	VisitResponse struct {
		ID    string `json:"id"`
		Count int64  `json:"count"`
	}

	// CountResponse is the body of GET /visits/count.
	CountResponse struct {
		Count     int64     `json:"count"`
		Stored    int64     `json:"stored"`
		StartedAt time.Time `json:"started_at"`
		Uptime    string    `json:"uptime"`
	}
)

// Routes mounts the visits endpoints. It must be registered behind the
// host's admission middleware.
func (s *Service) Routes(r chi.Router) {
	r.Route("/visits", func(r chi.Router) {
		r.Get("/", s.handleVisit)
		r.Get("/count", s.handleCount)
	})
}

func (s *Service) handleVisit(w http.ResponseWriter, r *http.Request) {
	rs := host.MustState(r)
	visitID.Set(rs.State, rs.ID().String())

	if err := s.record(r, rs); err != nil {
		s.logger.Error("record visit failed", "visit_id", visitID.MustGet(rs), "error", err)
		host.WriteProblem(w, host.Problem{
			Status:   http.StatusInternalServerError,
			Detail:   err.Error(),
			Instance: r.URL.Path,
		})
		return
	}

	host.WriteJSON(w, http.StatusOK, VisitResponse{
		ID:    visitID.MustGet(rs),
		Count: Visits.MustGet(rs).Add(1),
	})
}

func (s *Service) record(r *http.Request, rs *lifespan.RequestState) error {
	return recordVisit(r.Context(), DB.MustGet(rs), visitID.MustGet(rs), r.URL.Path, s.now())
}

func (s *Service) handleCount(w http.ResponseWriter, r *http.Request) {
	rs := host.MustState(r)

	stored, err := countVisits(r.Context(), DB.MustGet(rs))
	if err != nil {
		host.WriteProblem(w, host.Problem{
			Status:   http.StatusInternalServerError,
			Detail:   err.Error(),
			Instance: r.URL.Path,
		})
		return
	}

	startedAt := StartedAt.MustGet(rs)
	host.WriteJSON(w, http.StatusOK, CountResponse{
		Count:     Visits.MustGet(rs).Load(),
		Stored:    stored,
		StartedAt: startedAt,
		Uptime:    s.now().Sub(startedAt).Round(time.Second).String(),
	})
}
