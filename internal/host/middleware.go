// SPDX-License-Identifier: MPL-2.0

package host

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// HeaderWorkID carries the admitted unit of work's identifier.
const HeaderWorkID = "X-Work-Id"

// admit gates next on the coordinator. Requests outside Ready get a 503
// problem response; admitted requests carry their RequestState in the
// context and always end their work, even when next panics.
func (s *Server) admit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rs, err := s.coord.BeginWork()
		if err != nil {
			s.cfg.Metrics.WorkRejected()
			w.Header().Set("Retry-After", "1")
			WriteProblem(w, Problem{
				Status:   http.StatusServiceUnavailable,
				Detail:   err.Error(),
				Instance: r.URL.Path,
				Phase:    s.coord.Phase().String(),
			})
			return
		}
		s.cfg.Metrics.WorkAdmitted()
		defer func() {
			s.coord.EndWork(rs)
			s.cfg.Metrics.WorkEnded()
		}()

		w.Header().Set(HeaderWorkID, rs.ID().String())
		next.ServeHTTP(w, r.WithContext(WithState(r.Context(), rs)))
	})
}

// requestLogger logs each request at debug level.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start).Round(time.Microsecond),
				"request_id", middleware.GetReqID(r.Context()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
