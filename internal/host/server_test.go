// SPDX-License-Identifier: MPL-2.0

package host

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/invowk/lifespan/internal/metrics"
	"github.com/invowk/lifespan/pkg/lifespan"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var greetingKey = lifespan.NewKey[string]("greeting")

func greetingSpec(released *atomic.Bool) lifespan.Spec {
	return lifespan.SpecFunc(func(ctx context.Context, scope *lifespan.Scope) (*lifespan.State, error) {
		scope.Defer("greeting", func(context.Context) error {
			if released != nil {
				released.Store(true)
			}
			return nil
		})
		st := lifespan.NewState()
		greetingKey.Set(st, "hello")
		return st, nil
	})
}

func greetingRoutes(r chi.Router) {
	r.Get("/hello", func(w http.ResponseWriter, r *http.Request) {
		rs := MustState(r)
		WriteJSON(w, http.StatusOK, map[string]string{
			"greeting": greetingKey.MustGet(rs),
			"id":       rs.ID().String(),
		})
	})
	r.Get("/panic", func(http.ResponseWriter, *http.Request) {
		panic("handler exploded")
	})
}

func newTestServer(t *testing.T, spec lifespan.Spec, cfg Config, routes ...Routes) *Server {
	t.Helper()
	cfg.Logger = log.New(io.Discard)
	coord := lifespan.New(spec, lifespan.WithLogger(log.New(io.Discard)))
	return New(coord, cfg, routes...)
}

func serve(s *Server, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestAdmissionBeforeStart(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, greetingSpec(nil), Config{}, greetingRoutes)

	rec := serve(s, http.MethodGet, "/hello")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, ContentTypeProblemJSON, rec.Header().Get("Content-Type"))
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	var p Problem
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&p))
	assert.Equal(t, http.StatusServiceUnavailable, p.Status)
	assert.Equal(t, "not-started", p.Phase)
	assert.Equal(t, "/hello", p.Instance)
	assert.Contains(t, p.Detail, "not ready")

	assert.Equal(t, http.StatusOK, serve(s, http.MethodGet, "/healthz").Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve(s, http.MethodGet, "/readyz").Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve(s, http.MethodGet, "/debug/state").Code)
}

func TestAdmittedRequestSeesState(t *testing.T) {
	t.Parallel()

	reg := metrics.NewRegistry()
	m := metrics.New(reg)
	var released atomic.Bool
	s := newTestServer(t, greetingSpec(&released), Config{Registry: reg, Metrics: m}, greetingRoutes)
	coord := s.Coordinator()

	require.NoError(t, coord.Start(context.Background()))

	rec := serve(s, http.MethodGet, "/hello")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "hello", body["greeting"])
	id, err := uuid.Parse(rec.Header().Get(HeaderWorkID))
	require.NoError(t, err)
	assert.Equal(t, id.String(), body["id"])

	assert.Equal(t, 0, coord.InFlight(), "work should end with the request")
	assert.InDelta(t, 1, testutil.ToFloat64(m.Work.WithLabelValues("admitted")), 0)

	rec = serve(s, http.MethodGet, "/debug/state")
	require.Equal(t, http.StatusOK, rec.Code)
	var st StateResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&st))
	assert.Equal(t, "ready", st.Phase)
	assert.Equal(t, []string{"greeting"}, st.Keys)

	rec = serve(s, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "lifespan_work_total")

	require.NoError(t, coord.Stop(context.Background()))
	assert.True(t, released.Load())
	assert.Equal(t, http.StatusServiceUnavailable, serve(s, http.MethodGet, "/healthz").Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve(s, http.MethodGet, "/hello").Code)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Work.WithLabelValues("rejected")), 0)
}

func TestPanickingHandlerEndsWork(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, greetingSpec(nil), Config{}, greetingRoutes)
	coord := s.Coordinator()
	require.NoError(t, coord.Start(context.Background()))
	t.Cleanup(func() { _ = coord.Stop(context.Background()) })

	rec := serve(s, http.MethodGet, "/panic")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 0, coord.InFlight())
}

func TestNotFoundIsProblem(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, greetingSpec(nil), Config{}, greetingRoutes)
	rec := serve(s, http.MethodGet, "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, ContentTypeProblemJSON, rec.Header().Get("Content-Type"))
}

func TestStateFromOutsideAdmission(t *testing.T) {
	t.Parallel()

	_, ok := StateFrom(context.Background())
	assert.False(t, ok)
	assert.Panics(t, func() {
		MustState(httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestServerStartStop(t *testing.T) {
	t.Parallel()

	var released atomic.Bool
	s := newTestServer(t, greetingSpec(&released), Config{}, greetingRoutes)

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrServerStarted)

	resp, err := http.Get("http://" + s.Addr() + "/hello")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, s.Stop(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
	assert.True(t, released.Load())
	assert.Equal(t, lifespan.PhaseStopped, s.Coordinator().Phase())

	select {
	case <-s.Done():
	default:
		t.Fatal("Done() not closed after Stop")
	}
}

func TestServerStopWaitsForInFlightRequest(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	unblock := make(chan struct{})
	var released atomic.Bool

	s := newTestServer(t, greetingSpec(&released), Config{}, func(r chi.Router) {
		r.Get("/slow", func(w http.ResponseWriter, r *http.Request) {
			close(entered)
			<-unblock
			// Still readable while draining.
			WriteJSON(w, http.StatusOK, map[string]string{"greeting": greetingKey.MustGet(MustState(r))})
		})
	})
	require.NoError(t, s.Start(context.Background()))

	type result struct {
		status int
		err    error
	}
	respCh := make(chan result, 1)
	go func() {
		resp, err := http.Get("http://" + s.Addr() + "/slow")
		if err != nil {
			respCh <- result{err: err}
			return
		}
		_ = resp.Body.Close()
		respCh <- result{status: resp.StatusCode}
	}()
	<-entered

	stopped := make(chan error, 1)
	go func() { stopped <- s.Stop(context.Background()) }()

	require.Eventually(t, func() bool {
		return s.Coordinator().Phase() == lifespan.PhaseDraining
	}, time.Second, 5*time.Millisecond)
	assert.False(t, released.Load(), "teardown ran while a request was in flight")

	close(unblock)
	res := <-respCh
	require.NoError(t, res.err)
	assert.Equal(t, http.StatusOK, res.status)
	require.NoError(t, <-stopped)
	assert.True(t, released.Load())
}

func stuckRoutes(entered, unblock chan struct{}) Routes {
	return func(r chi.Router) {
		r.Get("/stuck", func(http.ResponseWriter, *http.Request) {
			close(entered)
			<-unblock
		})
	}
}

func getAsync(s *Server, path string) {
	go func() {
		resp, err := http.Get("http://" + s.Addr() + path)
		if err == nil {
			_ = resp.Body.Close()
		}
	}()
}

func TestServerShutdownWaitsForRunningHandler(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	unblock := make(chan struct{})
	var released atomic.Bool
	var inFlightAtRelease atomic.Int64
	inFlightAtRelease.Store(-1)

	var s *Server
	spec := lifespan.SpecFunc(func(ctx context.Context, scope *lifespan.Scope) (*lifespan.State, error) {
		scope.Defer("greeting", func(context.Context) error {
			inFlightAtRelease.Store(int64(s.Coordinator().InFlight()))
			released.Store(true)
			return nil
		})
		return lifespan.NewState(), nil
	})
	s = newTestServer(t, spec, Config{ShutdownTimeout: 20 * time.Millisecond}, stuckRoutes(entered, unblock))
	require.NoError(t, s.Start(context.Background()))

	getAsync(s, "/stuck")
	<-entered

	stopped := make(chan error, 1)
	go func() { stopped <- s.Stop(context.Background()) }()

	// Well past the shutdown timeout the connection is closed, but the
	// handler still holds its work unit and resources must stay up.
	time.Sleep(150 * time.Millisecond)
	assert.False(t, released.Load(), "resources released under a running handler")
	assert.Equal(t, lifespan.PhaseDraining, s.Coordinator().Phase())
	assert.Equal(t, 1, s.Coordinator().InFlight())

	close(unblock)
	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return after the handler finished")
	}
	assert.True(t, released.Load())
	assert.Equal(t, int64(0), inFlightAtRelease.Load())
	assert.Equal(t, lifespan.PhaseStopped, s.Coordinator().Phase())
}

func TestServerForceTeardownAfter(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	unblock := make(chan struct{})
	t.Cleanup(func() { close(unblock) })

	var released atomic.Bool
	s := newTestServer(t, greetingSpec(&released), Config{
		ShutdownTimeout:    20 * time.Millisecond,
		ForceTeardownAfter: 50 * time.Millisecond,
	}, stuckRoutes(entered, unblock))
	require.NoError(t, s.Start(context.Background()))

	getAsync(s, "/stuck")
	<-entered

	err := s.Stop(context.Background())
	require.ErrorIs(t, err, lifespan.ErrDrainTimeout)
	assert.True(t, released.Load())
	assert.Equal(t, lifespan.PhaseStopped, s.Coordinator().Phase())
}

func TestServerStopContextBoundsWait(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	unblock := make(chan struct{})
	t.Cleanup(func() { close(unblock) })

	s := newTestServer(t, greetingSpec(nil), Config{ShutdownTimeout: 20 * time.Millisecond}, stuckRoutes(entered, unblock))
	require.NoError(t, s.Start(context.Background()))

	getAsync(s, "/stuck")
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := s.Stop(ctx)
	require.ErrorIs(t, err, lifespan.ErrDrainTimeout)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, lifespan.PhaseStopped, s.Coordinator().Phase())
}

func TestServerStartupFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("database unreachable")
	s := newTestServer(t, lifespan.SpecFunc(func(context.Context, *lifespan.Scope) (*lifespan.State, error) {
		return nil, boom
	}), Config{})

	err := s.Start(context.Background())
	require.ErrorIs(t, err, lifespan.ErrStartup)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, lifespan.PhaseStopped, s.Coordinator().Phase())

	_, dialErr := net.DialTimeout("tcp", s.Addr(), 100*time.Millisecond)
	assert.Error(t, dialErr, "listener should be closed after startup failure")

	// Stop after a failed start has nothing to wait for.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.NoError(t, ctx.Err())
}

func TestServerAddressInUse(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	s := newTestServer(t, greetingSpec(nil), Config{Port: ln.Addr().(*net.TCPAddr).Port})
	err = s.Start(context.Background())
	require.ErrorIs(t, err, ErrAddressInUse)
	assert.Equal(t, lifespan.PhaseNotStarted, s.Coordinator().Phase())
}

func TestServerRun(t *testing.T) {
	t.Parallel()

	var released atomic.Bool
	s := newTestServer(t, greetingSpec(&released), Config{}, greetingRoutes)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return s.Coordinator().IsReady() }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-runErr:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.True(t, released.Load())
}
