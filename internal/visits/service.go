// SPDX-License-Identifier: MPL-2.0

package visits

import (
	"context"
	"database/sql"
	"io"
	"sync/atomic"
	"time"

	"github.com/invowk/lifespan/internal/issue"
	"github.com/invowk/lifespan/pkg/lifespan"

	"github.com/charmbracelet/log"
)

var (
	shape = &lifespan.Shape{}

	// DB is the open database handle.
	DB = lifespan.DeclareKey[*sql.DB](shape, "db")
	// Visits is the shared visit counter.
	Visits = lifespan.DeclareKey[*Counter](shape, "visits")
	// StartedAt is when startup published the state.
	StartedAt = lifespan.DeclareKey[time.Time](shape, "started_at")
)

type (
	// Counter is a visit count shared by reference across requests.
	Counter struct {
		n atomic.Int64
	}

	// Option configures a Service.
	Option func(*Service)

	// Service is the lifespan.Spec for the visits database.
	Service struct {
		path   string
		now    func() time.Time
		logger *log.Logger

		db      *sql.DB
		counter *Counter
	}
)

// Shape declares the keys every visits state carries.
func Shape() *lifespan.Shape {
	return shape
}

// Add increments the counter by delta and returns the new value.
func (c *Counter) Add(delta int64) int64 {
	return c.n.Add(delta)
}

// Load returns the current count.
func (c *Counter) Load() int64 {
	return c.n.Load()
}

// WithNow overrides the time source.
func WithNow(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New returns a Service storing visits in the SQLite file at path.
func New(path string, opts ...Option) *Service {
	s := &Service{
		path:   path,
		now:    time.Now,
		logger: log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enter implements lifespan.Spec.
func (s *Service) Enter(ctx context.Context, scope *lifespan.Scope) (*lifespan.State, error) {
	db, err := lifespan.AcquireCloser(ctx, scope, "db", func(ctx context.Context) (*sql.DB, error) {
		return OpenDB(ctx, s.path)
	})
	if err != nil {
		return nil, s.openError(err)
	}

	stored, err := countVisits(ctx, db)
	if err != nil {
		return nil, s.openError(err)
	}
	counter := &Counter{}
	counter.n.Store(stored)

	s.db = db
	s.counter = counter

	st := lifespan.NewState()
	DB.Set(st, db)
	Visits.Set(st, counter)
	StartedAt.Set(st, s.now().UTC())

	s.logger.Info("visits database open", "path", s.path, "stored", stored)
	return st, nil
}

// Exit implements lifespan.Exiter. It folds the WAL back into the main
// database file before the handle is closed.
func (s *Service) Exit(ctx context.Context) error {
	s.logger.Info("visits closing", "count", s.counter.Load())
	return checkpoint(ctx, s.db)
}

func (s *Service) openError(err error) error {
	return issue.NewErrorContext().
		WithOperation("open visits database").
		WithResource(s.path).
		WithSuggestion("Make sure the parent directory exists and is writable").
		WithSuggestion("Set LIFESPAN_DATABASE_PATH to use another file").
		WithIssue(issue.DatabaseOpenFailedId).
		Wrap(err).
		BuildError()
}

var (
	_ lifespan.Spec   = (*Service)(nil)
	_ lifespan.Exiter = (*Service)(nil)
)
