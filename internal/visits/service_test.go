// SPDX-License-Identifier: MPL-2.0

package visits

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/invowk/lifespan/internal/host"
	"github.com/invowk/lifespan/internal/issue"
	"github.com/invowk/lifespan/internal/testutil"
	"github.com/invowk/lifespan/pkg/lifespan"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	svc    *Service
	coord  *lifespan.Coordinator
	server *host.Server
	clock  *testutil.FakeClock
}

func newFixture(t *testing.T, path string) *fixture {
	t.Helper()
	clock := testutil.NewFakeClock(time.Time{})
	svc := New(path, WithNow(clock.Now))
	coord := lifespan.New(svc,
		lifespan.WithShape(Shape()),
		lifespan.WithLogger(log.New(io.Discard)),
	)
	server := host.New(coord, host.Config{Logger: log.New(io.Discard)}, svc.Routes)
	return &fixture{svc: svc, coord: coord, server: server, clock: clock}
}

func (f *fixture) get(t *testing.T, path string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if out != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.NewDecoder(rec.Body).Decode(out))
	}
	return rec.Code
}

func TestVisitsSharedCounter(t *testing.T) {
	t.Parallel()

	f := newFixture(t, filepath.Join(t.TempDir(), "visits.db"))
	testutil.MustStart(t, f.coord)

	var first, second VisitResponse
	require.Equal(t, http.StatusOK, f.get(t, "/visits", &first))
	require.Equal(t, http.StatusOK, f.get(t, "/visits", &second))
	assert.Equal(t, int64(1), first.Count)
	assert.Equal(t, int64(2), second.Count)
	assert.NotEqual(t, first.ID, second.ID)

	f.clock.Advance(90 * time.Second)

	var count CountResponse
	require.Equal(t, http.StatusOK, f.get(t, "/visits/count", &count))
	assert.Equal(t, int64(2), count.Count)
	assert.Equal(t, int64(2), count.Stored)
	assert.Equal(t, "1m30s", count.Uptime)
	assert.True(t, count.StartedAt.Equal(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestVisitsRequestStateIsPrivate(t *testing.T) {
	t.Parallel()

	f := newFixture(t, filepath.Join(t.TempDir(), "visits.db"))
	testutil.MustStart(t, f.coord)

	var visit VisitResponse
	require.Equal(t, http.StatusOK, f.get(t, "/visits", &visit))
	_, err := uuid.Parse(visit.ID)
	require.NoError(t, err, "visit id %q", visit.ID)

	var stored string
	require.NoError(t, f.svc.db.QueryRowContext(t.Context(), `SELECT id FROM visits`).Scan(&stored))
	assert.Equal(t, visit.ID, stored, "response and database disagree on the visit id")

	rs, err := f.coord.BeginWork()
	require.NoError(t, err)
	defer f.coord.EndWork(rs)
	assert.False(t, rs.Has(visitID.Name()), "request-level value leaked into the published state")

	snap, err := f.coord.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, []string{"db", "visits", "started_at"}, snap.Keys())
}

func TestVisitsCountSurvivesRestart(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "visits.db")

	f := newFixture(t, path)
	require.NoError(t, f.coord.Start(context.Background()))
	for range 3 {
		require.Equal(t, http.StatusOK, f.get(t, "/visits", nil))
	}
	require.NoError(t, f.coord.Stop(context.Background()))

	// The WAL was checkpointed on the way out.
	if info, err := os.Stat(path + "-wal"); err == nil {
		assert.Zero(t, info.Size())
	}

	f = newFixture(t, path)
	testutil.MustStart(t, f.coord)
	var count CountResponse
	require.Equal(t, http.StatusOK, f.get(t, "/visits/count", &count))
	assert.Equal(t, int64(3), count.Count)
}

func TestVisitsRejectedOutsideReady(t *testing.T) {
	t.Parallel()

	f := newFixture(t, filepath.Join(t.TempDir(), "visits.db"))
	assert.Equal(t, http.StatusServiceUnavailable, f.get(t, "/visits", nil))

	require.NoError(t, f.coord.Start(context.Background()))
	require.NoError(t, f.coord.Stop(context.Background()))
	assert.Equal(t, http.StatusServiceUnavailable, f.get(t, "/visits/count", nil))
}

func TestVisitsOpenFailure(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "missing", "dir", "visits.db")
	f := newFixture(t, path)

	err := f.coord.Start(context.Background())
	require.ErrorIs(t, err, lifespan.ErrStartup)

	var actionable *issue.ActionableError
	require.ErrorAs(t, err, &actionable)
	assert.Equal(t, issue.DatabaseOpenFailedId, actionable.IssueID)
	assert.Equal(t, path, actionable.Resource)
	assert.Equal(t, lifespan.PhaseStopped, f.coord.Phase())
}

func TestCounter(t *testing.T) {
	t.Parallel()

	var c Counter
	assert.Equal(t, int64(0), c.Load())
	assert.Equal(t, int64(5), c.Add(5))
	assert.Equal(t, int64(4), c.Add(-1))
}
