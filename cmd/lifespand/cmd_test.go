// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/invowk/lifespan/internal/config"
	"github.com/invowk/lifespan/internal/host"
	"github.com/invowk/lifespan/internal/issue"
	"github.com/invowk/lifespan/pkg/lifespan"

	"github.com/charmbracelet/log"
)

func TestIssueFor(t *testing.T) {
	t.Parallel()

	dbErr := issue.NewErrorContext().
		WithOperation("open visits database").
		WithIssue(issue.DatabaseOpenFailedId).
		Wrap(errors.New("unable to open database file")).
		BuildError()

	tests := []struct {
		name string
		err  error
		want issue.Id
	}{
		{"actionable inside startup", &lifespan.StartupError{Cause: dbErr}, issue.DatabaseOpenFailedId},
		{"plain startup", &lifespan.StartupError{Cause: errors.New("boom")}, issue.StartupFailedId},
		{"drain timeout", fmt.Errorf("%w: 1 unit(s)", lifespan.ErrDrainTimeout), issue.DrainTimeoutId},
		{"teardown", &lifespan.TeardownError{Errs: []error{errors.New("close")}}, issue.TeardownFailedId},
		{"unrelated", errors.New("other"), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := issueFor(tt.err); got != tt.want {
				t.Errorf("issueFor() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassifyServeError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		wantCode int
		wantOut  string
	}{
		{"clean stop", nil, ExitOK, ""},
		{"startup failure", &lifespan.StartupError{Cause: errors.New("db down")}, ExitStartupFailed, "Startup failed:"},
		{"address in use", fmt.Errorf("%w: bind", host.ErrAddressInUse), ExitStartupFailed, "Startup failed:"},
		{"teardown failure", &lifespan.TeardownError{Errs: []error{errors.New("close failed")}}, ExitOK, "Warning:"},
		{"drain timeout", fmt.Errorf("%w: 2 unit(s)", lifespan.ErrDrainTimeout), ExitOK, "Warning:"},
		{"serve failure", errors.New("accept: too many open files"), ExitFailure, "Error:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var out bytes.Buffer
			err := classifyServeError(&out, tt.err, false)

			code := ExitOK
			var exitErr *ExitError
			if errors.As(err, &exitErr) {
				code = exitErr.Code
			} else if err != nil {
				t.Fatalf("classifyServeError() returned non-ExitError %v", err)
			}
			if code != tt.wantCode {
				t.Errorf("exit code = %d, want %d", code, tt.wantCode)
			}
			if !strings.Contains(out.String(), tt.wantOut) {
				t.Errorf("output %q does not contain %q", out.String(), tt.wantOut)
			}
		})
	}
}

func TestExitError(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	err := &ExitError{Code: ExitStartupFailed, Err: cause}
	if !errors.Is(err, cause) || err.Error() != "boom" {
		t.Errorf("ExitError = %v", err)
	}
	if got := (&ExitError{Code: 2}).Error(); got != "exit status 2" {
		t.Errorf("Error() = %q", got)
	}
}

func TestDumpConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()

	var cue bytes.Buffer
	if err := dumpConfig(&cue, cfg, "cue"); err != nil {
		t.Fatalf("dumpConfig(cue) failed: %v", err)
	}
	if !strings.Contains(cue.String(), "server: {") {
		t.Errorf("cue output missing server section:\n%s", cue.String())
	}

	var tomlOut bytes.Buffer
	if err := dumpConfig(&tomlOut, cfg, "toml"); err != nil {
		t.Fatalf("dumpConfig(toml) failed: %v", err)
	}
	if !strings.Contains(tomlOut.String(), "[server]") {
		t.Errorf("toml output missing [server] table:\n%s", tomlOut.String())
	}

	if err := dumpConfig(io.Discard, cfg, "yaml"); err == nil {
		t.Error("dumpConfig(yaml) should fail")
	}
}

func TestConfigShowCommand(t *testing.T) {
	t.Parallel()

	cfgPath := filepath.Join(t.TempDir(), "config.cue")
	if err := os.WriteFile(cfgPath, []byte("server: port: 9191\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"config", "show", "--config", cfgPath})

	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("config show failed: %v", err)
	}
	for _, want := range []string{cfgPath, "9191", "visits.db"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("config show output missing %q:\n%s", want, out.String())
		}
	}
}

func TestConfigShowMissingFile(t *testing.T) {
	t.Parallel()

	root := NewRootCommand()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"config", "show", "--config", filepath.Join(t.TempDir(), "nope.cue")})

	err := root.ExecuteContext(context.Background())
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != ExitConfigError {
		t.Fatalf("config show error = %v, want ExitError with code %d", err, ExitConfigError)
	}
}

func TestServeFlagOverrides(t *testing.T) {
	t.Parallel()

	cfgPath := filepath.Join(t.TempDir(), "config.cue")
	if err := os.WriteFile(cfgPath, []byte("server: port: 9191\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	root := &rootOptions{configFile: cfgPath}
	opts := &serveOptions{}
	serveCmd := newServeCommand(root)
	serveCmd.SetContext(context.Background())
	if err := serveCmd.ParseFlags([]string{"--port", "7070", "--host", "0.0.0.0"}); err != nil {
		t.Fatal(err)
	}
	opts.port, _ = serveCmd.Flags().GetInt("port")
	opts.host, _ = serveCmd.Flags().GetString("host")

	cfg, err := loadServeConfig(serveCmd, root, opts)
	if err != nil {
		t.Fatalf("loadServeConfig() failed: %v", err)
	}
	if cfg.Server.Port != 7070 || cfg.Server.Host != "0.0.0.0" {
		t.Errorf("server = %+v, want 0.0.0.0:7070", cfg.Server)
	}

	if err := serveCmd.ParseFlags([]string{"--port", "70000"}); err != nil {
		t.Fatal(err)
	}
	opts.port = 70000
	if _, err := loadServeConfig(serveCmd, root, opts); !errors.Is(err, config.ErrInvalidPort) {
		t.Errorf("out-of-range --port error = %v, want ErrInvalidPort", err)
	}
}

func TestBuildServerServesVisits(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Database.Path = config.DatabasePath(filepath.Join(t.TempDir(), "visits.db"))

	srv := buildServer(cfg, log.New(io.Discard))
	if err := srv.Coordinator().Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	t.Cleanup(func() { _ = srv.Coordinator().Stop(context.Background()) })

	for _, path := range []string{"/visits", "/visits/count", "/metrics", "/readyz"} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
	}
}

func TestProbe(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Database.Path = config.DatabasePath(filepath.Join(t.TempDir(), "visits.db"))
	srv := buildServer(cfg, log.New(io.Discard))

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	report, err := probe(context.Background(), ts.Client(), ts.URL)
	if err != nil {
		t.Fatalf("probe() before start failed: %v", err)
	}
	if report.Ready || report.Phase != "not-started" {
		t.Errorf("report before start = %+v", report)
	}

	if err := srv.Coordinator().Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	t.Cleanup(func() { _ = srv.Coordinator().Stop(context.Background()) })

	report, err = probe(context.Background(), ts.Client(), ts.URL+"/")
	if err != nil {
		t.Fatalf("probe() failed: %v", err)
	}
	if !report.Ready || report.Phase != "ready" {
		t.Errorf("report = %+v, want ready", report)
	}
	if strings.Join(report.Keys, ",") != "db,visits,started_at" {
		t.Errorf("keys = %v", report.Keys)
	}

	var out bytes.Buffer
	printStatus(&out, report)
	if !strings.Contains(out.String(), "ready") {
		t.Errorf("printStatus output = %q", out.String())
	}
}
