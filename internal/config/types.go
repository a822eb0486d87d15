// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

const (
	// LogLevelDebug logs phase transitions and per-request detail.
	LogLevelDebug LogLevel = "debug"
	// LogLevelInfo logs startup and teardown completion.
	LogLevelInfo LogLevel = "info"
	// LogLevelWarn logs only incomplete drains and similar warnings.
	LogLevelWarn LogLevel = "warn"
	// LogLevelError logs only failures.
	LogLevelError LogLevel = "error"

	// LogFormatText is the human-readable, colorized format.
	LogFormatText LogFormat = "text"
	// LogFormatJSON emits one JSON object per line.
	LogFormatJSON LogFormat = "json"
	// LogFormatLogfmt emits key=value pairs.
	LogFormatLogfmt LogFormat = "logfmt"
)

var (
	// ErrInvalidLogLevel is returned when a LogLevel value is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidLogFormat is returned when a LogFormat value is not recognized.
	ErrInvalidLogFormat = errors.New("invalid log format")
	// ErrInvalidPort is returned when a Port is outside 1..65535.
	ErrInvalidPort = errors.New("invalid port")
	// ErrInvalidDuration is returned when a Duration does not parse or is negative.
	ErrInvalidDuration = errors.New("invalid duration")
	// ErrInvalidMetricsPath is returned when a MetricsPath is not an absolute URL path.
	ErrInvalidMetricsPath = errors.New("invalid metrics path")
	// ErrInvalidDatabasePath is returned when a DatabasePath is whitespace-only.
	ErrInvalidDatabasePath = errors.New("invalid database path")
	// ErrInvalidServerConfig is the sentinel error wrapped by InvalidServerConfigError.
	ErrInvalidServerConfig = errors.New("invalid server config")
	// ErrInvalidLifespanConfig is the sentinel error wrapped by InvalidLifespanConfigError.
	ErrInvalidLifespanConfig = errors.New("invalid lifespan config")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// LogLevel is the minimum level the process logger emits.
	LogLevel string

	// InvalidLogLevelError is returned when a LogLevel value is not recognized.
	InvalidLogLevelError struct {
		Value LogLevel
	}

	// LogFormat selects the log line encoding.
	LogFormat string

	// InvalidLogFormatError is returned when a LogFormat value is not recognized.
	InvalidLogFormatError struct {
		Value LogFormat
	}

	// Port is a TCP port number.
	Port int

	// InvalidPortError is returned when a Port is outside 1..65535.
	InvalidPortError struct {
		Value Port
	}

	// Duration is a Go duration string such as "15s" or "1m30s".
	// The zero value ("") means no bound.
	Duration string

	// InvalidDurationError is returned when a Duration does not parse or is
	// negative. Field names the config key it came from.
	InvalidDurationError struct {
		Field string
		Value Duration
		Err   error
	}

	// MetricsPath is the URL path the metrics handler is mounted on.
	MetricsPath string

	// InvalidMetricsPathError is returned when a MetricsPath does not start
	// with a slash.
	InvalidMetricsPathError struct {
		Value MetricsPath
	}

	// DatabasePath is the filesystem path of the visits SQLite database.
	DatabasePath string

	// InvalidDatabasePathError is returned when a DatabasePath is whitespace-only.
	InvalidDatabasePathError struct {
		Value DatabasePath
	}

	// InvalidServerConfigError collects field errors from ServerConfig.
	InvalidServerConfigError struct {
		FieldErrors []error
	}

	// InvalidLifespanConfigError collects field errors from LifespanConfig.
	InvalidLifespanConfigError struct {
		FieldErrors []error
	}

	// InvalidConfigError collects field errors from every section of Config.
	// It wraps ErrInvalidConfig for errors.Is() compatibility.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Config holds the lifespand configuration.
	Config struct {
		// Server configures the HTTP listener.
		Server ServerConfig `json:"server" mapstructure:"server" toml:"server"`
		// Lifespan bounds the startup, drain and teardown phases.
		Lifespan LifespanConfig `json:"lifespan" mapstructure:"lifespan" toml:"lifespan"`
		// Log configures the process logger.
		Log LogConfig `json:"log" mapstructure:"log" toml:"log"`
		// Metrics configures the Prometheus endpoint.
		Metrics MetricsConfig `json:"metrics" mapstructure:"metrics" toml:"metrics"`
		// Database configures the visits demo service.
		Database DatabaseConfig `json:"database" mapstructure:"database" toml:"database"`
	}

	// ServerConfig configures the HTTP listener.
	ServerConfig struct {
		Host              string   `json:"host" mapstructure:"host" toml:"host"`
		Port              Port     `json:"port" mapstructure:"port" toml:"port"`
		ReadHeaderTimeout Duration `json:"read_header_timeout" mapstructure:"read_header_timeout" toml:"read_header_timeout"`
	}

	// LifespanConfig bounds each phase of the service lifespan.
	LifespanConfig struct {
		// StartupTimeout bounds resource acquisition.
		StartupTimeout Duration `json:"startup_timeout" mapstructure:"startup_timeout" toml:"startup_timeout"`
		// ShutdownTimeout bounds how long in-flight requests may drain.
		ShutdownTimeout Duration `json:"shutdown_timeout" mapstructure:"shutdown_timeout" toml:"shutdown_timeout"`
		// TeardownTimeout bounds the release of acquired resources.
		TeardownTimeout Duration `json:"teardown_timeout" mapstructure:"teardown_timeout" toml:"teardown_timeout"`
		// ForceTeardownAfter bounds how long teardown waits for handlers still
		// running after the shutdown timeout. Empty means wait for all of them.
		ForceTeardownAfter Duration `json:"force_teardown_after" mapstructure:"force_teardown_after" toml:"force_teardown_after"`
	}

	// LogConfig configures the process logger.
	LogConfig struct {
		Level  LogLevel  `json:"level" mapstructure:"level" toml:"level"`
		Format LogFormat `json:"format" mapstructure:"format" toml:"format"`
	}

	// MetricsConfig configures the Prometheus endpoint.
	MetricsConfig struct {
		Enabled bool        `json:"enabled" mapstructure:"enabled" toml:"enabled"`
		Path    MetricsPath `json:"path" mapstructure:"path" toml:"path"`
	}

	// DatabaseConfig configures the visits SQLite database.
	DatabaseConfig struct {
		Path DatabasePath `json:"path" mapstructure:"path" toml:"path"`
	}
)

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string { return string(l) }

// IsValid returns whether the LogLevel is one of the defined levels.
func (l LogLevel) IsValid() (bool, []error) {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true, nil
	default:
		return false, []error{&InvalidLogLevelError{Value: l}}
	}
}

// Error implements the error interface for InvalidLogLevelError.
func (e *InvalidLogLevelError) Error() string {
	return fmt.Sprintf("invalid log level %q (valid: debug, info, warn, error)", e.Value)
}

// Unwrap returns ErrInvalidLogLevel for errors.Is() compatibility.
func (e *InvalidLogLevelError) Unwrap() error { return ErrInvalidLogLevel }

// String returns the string representation of the LogFormat.
func (f LogFormat) String() string { return string(f) }

// IsValid returns whether the LogFormat is one of the defined formats.
func (f LogFormat) IsValid() (bool, []error) {
	switch f {
	case LogFormatText, LogFormatJSON, LogFormatLogfmt:
		return true, nil
	default:
		return false, []error{&InvalidLogFormatError{Value: f}}
	}
}

// Error implements the error interface for InvalidLogFormatError.
func (e *InvalidLogFormatError) Error() string {
	return fmt.Sprintf("invalid log format %q (valid: text, json, logfmt)", e.Value)
}

// Unwrap returns ErrInvalidLogFormat for errors.Is() compatibility.
func (e *InvalidLogFormatError) Unwrap() error { return ErrInvalidLogFormat }

// IsValid returns whether the Port is within 1..65535.
func (p Port) IsValid() (bool, []error) {
	if p < 1 || p > 65535 {
		return false, []error{&InvalidPortError{Value: p}}
	}
	return true, nil
}

// Error implements the error interface for InvalidPortError.
func (e *InvalidPortError) Error() string {
	return fmt.Sprintf("invalid port %d: must be between 1 and 65535", e.Value)
}

// Unwrap returns ErrInvalidPort for errors.Is() compatibility.
func (e *InvalidPortError) Unwrap() error { return ErrInvalidPort }

// String returns the string representation of the Duration.
func (d Duration) String() string { return string(d) }

// Parse converts the duration string. The empty string parses as zero.
func (d Duration) Parse() (time.Duration, error) {
	if d == "" {
		return 0, nil
	}
	v, err := time.ParseDuration(string(d))
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, fmt.Errorf("must not be negative")
	}
	return v, nil
}

// Value returns the parsed duration, or zero if it does not parse. Call
// IsValid first where the difference matters.
func (d Duration) Value() time.Duration {
	v, err := d.Parse()
	if err != nil {
		return 0
	}
	return v
}

// validate reports d as invalid under the given field name.
func (d Duration) validate(field string) (bool, []error) {
	if _, err := d.Parse(); err != nil {
		return false, []error{&InvalidDurationError{Field: field, Value: d, Err: err}}
	}
	return true, nil
}

// IsValid returns whether the Duration parses and is not negative.
func (d Duration) IsValid() (bool, []error) {
	return d.validate("")
}

// Error implements the error interface for InvalidDurationError.
func (e *InvalidDurationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: invalid duration %q: %v", e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("invalid duration %q: %v", e.Value, e.Err)
}

// Unwrap returns ErrInvalidDuration for errors.Is() compatibility.
func (e *InvalidDurationError) Unwrap() error { return ErrInvalidDuration }

// String returns the string representation of the MetricsPath.
func (p MetricsPath) String() string { return string(p) }

// IsValid returns whether the MetricsPath starts with a slash.
func (p MetricsPath) IsValid() (bool, []error) {
	if !strings.HasPrefix(string(p), "/") || strings.ContainsAny(string(p), " \t\n") {
		return false, []error{&InvalidMetricsPathError{Value: p}}
	}
	return true, nil
}

// Error implements the error interface for InvalidMetricsPathError.
func (e *InvalidMetricsPathError) Error() string {
	return fmt.Sprintf("invalid metrics path %q: must start with / and contain no whitespace", e.Value)
}

// Unwrap returns ErrInvalidMetricsPath for errors.Is() compatibility.
func (e *InvalidMetricsPathError) Unwrap() error { return ErrInvalidMetricsPath }

// String returns the string representation of the DatabasePath.
func (p DatabasePath) String() string { return string(p) }

// IsValid returns whether the DatabasePath is non-empty and not whitespace-only.
func (p DatabasePath) IsValid() (bool, []error) {
	if strings.TrimSpace(string(p)) == "" {
		return false, []error{&InvalidDatabasePathError{Value: p}}
	}
	return true, nil
}

// Error implements the error interface for InvalidDatabasePathError.
func (e *InvalidDatabasePathError) Error() string {
	return fmt.Sprintf("invalid database path %q: must be non-empty", e.Value)
}

// Unwrap returns ErrInvalidDatabasePath for errors.Is() compatibility.
func (e *InvalidDatabasePathError) Unwrap() error { return ErrInvalidDatabasePath }

// Addr returns the host:port listen address.
func (c ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(int(c.Port)))
}

// IsValid returns whether the ServerConfig has valid fields.
func (c ServerConfig) IsValid() (bool, []error) {
	var errs []error
	if valid, fieldErrs := c.Port.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := c.ReadHeaderTimeout.validate("server.read_header_timeout"); !valid {
		errs = append(errs, fieldErrs...)
	}
	if len(errs) > 0 {
		return false, []error{&InvalidServerConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidServerConfigError.
func (e *InvalidServerConfigError) Error() string {
	return fmt.Sprintf("invalid server config: %s", joinErrors(e.FieldErrors))
}

// Unwrap returns ErrInvalidServerConfig and every field error.
func (e *InvalidServerConfigError) Unwrap() []error {
	return append([]error{ErrInvalidServerConfig}, e.FieldErrors...)
}

// IsValid returns whether every LifespanConfig duration parses.
func (c LifespanConfig) IsValid() (bool, []error) {
	var errs []error
	for field, d := range map[string]Duration{
		"lifespan.startup_timeout":      c.StartupTimeout,
		"lifespan.shutdown_timeout":     c.ShutdownTimeout,
		"lifespan.teardown_timeout":     c.TeardownTimeout,
		"lifespan.force_teardown_after": c.ForceTeardownAfter,
	} {
		if valid, fieldErrs := d.validate(field); !valid {
			errs = append(errs, fieldErrs...)
		}
	}
	if len(errs) > 0 {
		return false, []error{&InvalidLifespanConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidLifespanConfigError.
func (e *InvalidLifespanConfigError) Error() string {
	return fmt.Sprintf("invalid lifespan config: %s", joinErrors(e.FieldErrors))
}

// Unwrap returns ErrInvalidLifespanConfig and every field error.
func (e *InvalidLifespanConfigError) Unwrap() []error {
	return append([]error{ErrInvalidLifespanConfig}, e.FieldErrors...)
}

// IsValid returns whether the Config has valid fields. It delegates to each
// section; Metrics.Path is checked only when metrics are enabled.
func (c Config) IsValid() (bool, []error) {
	var errs []error
	if valid, fieldErrs := c.Server.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := c.Lifespan.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := c.Log.Level.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := c.Log.Format.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if c.Metrics.Enabled {
		if valid, fieldErrs := c.Metrics.Path.IsValid(); !valid {
			errs = append(errs, fieldErrs...)
		}
	}
	if valid, fieldErrs := c.Database.Path.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if len(errs) > 0 {
		return false, []error{&InvalidConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidConfigError.
func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config: %s", joinErrors(e.FieldErrors))
}

// Unwrap returns ErrInvalidConfig and every field error, so errors.Is finds
// both the sentinel and the specific field failure.
func (e *InvalidConfigError) Unwrap() []error {
	return append([]error{ErrInvalidConfig}, e.FieldErrors...)
}

func joinErrors(errs []error) string {
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "127.0.0.1",
			Port:              8080,
			ReadHeaderTimeout: "5s",
		},
		Lifespan: LifespanConfig{
			StartupTimeout:  "30s",
			ShutdownTimeout: "15s",
			TeardownTimeout: "10s",
		},
		Log: LogConfig{
			Level:  LogLevelInfo,
			Format: LogFormatText,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Database: DatabaseConfig{
			Path: "visits.db",
		},
	}
}
