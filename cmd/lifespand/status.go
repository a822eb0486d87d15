// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/invowk/lifespan/internal/config"
	"github.com/invowk/lifespan/internal/host"

	"github.com/spf13/cobra"
)

const statusTimeout = 5 * time.Second

// statusReport is what a running instance says about itself.
type statusReport struct {
	URL      string
	Ready    bool
	Phase    string
	InFlight int
	Keys     []string
}

func newStatusCommand(root *rootOptions) *cobra.Command {
	var addr string

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Probe a running instance",
		Long: `Probe a running instance through /readyz and /debug/state.

The address defaults to server.host and server.port from the configuration.
Exits 1 when the instance is unreachable or not ready.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			baseURL := addr
			if baseURL == "" {
				cfg, err := config.NewProvider().Load(cmd.Context(), root.loadOptions())
				if err != nil {
					return configLoadError(cmd, root, err)
				}
				baseURL = cfg.Server.Addr()
			}
			if !strings.Contains(baseURL, "://") {
				baseURL = "http://" + baseURL
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), statusTimeout)
			defer cancel()

			report, err := probe(ctx, http.DefaultClient, baseURL)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), ErrorStyle.Render("Unreachable:")+" "+err.Error())
				return &ExitError{Code: ExitFailure, Err: err}
			}
			printStatus(cmd.OutOrStdout(), report)
			if !report.Ready {
				return &ExitError{Code: ExitFailure}
			}
			return nil
		},
	}

	statusCmd.Flags().StringVar(&addr, "addr", "", "instance address, e.g. 127.0.0.1:8080")

	return statusCmd
}

// probe queries /readyz and, when serving, /debug/state.
func probe(ctx context.Context, client *http.Client, baseURL string) (*statusReport, error) {
	baseURL = strings.TrimSuffix(baseURL, "/")
	report := &statusReport{URL: baseURL}

	var ready host.PhaseResponse
	code, err := getJSON(ctx, client, baseURL+"/readyz", &ready)
	if err != nil {
		return nil, err
	}
	report.Ready = code == http.StatusOK
	report.Phase = ready.Phase
	report.InFlight = ready.InFlight

	var state host.StateResponse
	if code, err := getJSON(ctx, client, baseURL+"/debug/state", &state); err == nil && code == http.StatusOK {
		report.Keys = state.Keys
	}
	return report, nil
}

func getJSON(ctx context.Context, client *http.Client, url string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s: %w", url, err)
		}
	}
	return resp.StatusCode, nil
}

func printStatus(w io.Writer, r *statusReport) {
	fmt.Fprintln(w, TitleStyle.Render("lifespand")+" "+SubtitleStyle.Render(r.URL))
	fmt.Fprintf(w, "%s: %s\n", KeyStyle.Render("phase"), phaseStyle(r.Phase).Render(r.Phase))
	fmt.Fprintf(w, "%s: %d\n", KeyStyle.Render("in flight"), r.InFlight)
	if len(r.Keys) > 0 {
		fmt.Fprintf(w, "%s: %s\n", KeyStyle.Render("state"), strings.Join(r.Keys, ", "))
	}
}
