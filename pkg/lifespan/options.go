// SPDX-License-Identifier: MPL-2.0

package lifespan

import (
	"time"

	"github.com/charmbracelet/log"
)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger used for phase and teardown reporting.
func WithLogger(logger *log.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithStartupTimeout bounds how long Spec.Enter may run. Zero means no bound
// beyond the context passed to Start.
func WithStartupTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.startupTimeout = d
	}
}

// WithTeardownTimeout bounds the context handed to the release path.
// Zero means no bound.
func WithTeardownTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.teardownTimeout = d
	}
}

// WithShape makes Start validate the state returned by Enter against shape.
// A violation fails startup and releases everything Enter acquired.
func WithShape(shape *Shape) Option {
	return func(c *Coordinator) {
		c.shape = shape
	}
}

// WithObserver registers an observer for phase transitions.
func WithObserver(obs Observer) Option {
	return func(c *Coordinator) {
		if obs != nil {
			c.observers = append(c.observers, obs)
		}
	}
}
