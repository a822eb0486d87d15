// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"

	"github.com/invowk/lifespan/internal/config"

	"github.com/spf13/cobra"
)

func newConfigCommand(root *rootOptions) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage lifespand configuration",
		Long: `Manage lifespand configuration.

Configuration is read from, in order:
  - the file named by --config
  - Linux: ~/.config/lifespan/config.cue
  - macOS: ~/Library/Application Support/lifespan/config.cue
  - Windows: %APPDATA%\lifespan\config.cue
  - ./config.cue

Every key can be overridden with an environment variable: server.port
becomes LIFESPAN_SERVER_PORT.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.LoadWithPath(cmd.Context(), root.loadOptions())
			if err != nil {
				return configLoadError(cmd, root, err)
			}
			showConfig(cmd.OutOrStdout(), loaded)
			return nil
		},
	})

	var dumpFormat string
	dumpCmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the effective configuration as CUE or TOML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.NewProvider().Load(cmd.Context(), root.loadOptions())
			if err != nil {
				return configLoadError(cmd, root, err)
			}
			return dumpConfig(cmd.OutOrStdout(), cfg, dumpFormat)
		},
	}
	dumpCmd.Flags().StringVarP(&dumpFormat, "format", "f", "cue", "output format (cue or toml)")
	cfgCmd.AddCommand(dumpCmd)

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show the configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, err := config.FilePath("")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cfgPath)
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create a default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, created, err := config.CreateDefaultConfig("")
			if err != nil {
				return fmt.Errorf("failed to create config: %w", err)
			}
			out := cmd.OutOrStdout()
			if !created {
				fmt.Fprintf(out, "%s Configuration already exists at %s\n", WarningStyle.Render("!"), cfgPath)
				return nil
			}
			fmt.Fprintf(out, "%s Created default configuration at %s\n", SuccessStyle.Render("✓"), cfgPath)
			return nil
		},
	})

	return cfgCmd
}

func configLoadError(cmd *cobra.Command, root *rootOptions, err error) error {
	reportError(cmd.ErrOrStderr(), "Configuration error:", err, root.verbose)
	return &ExitError{Code: ExitConfigError, Err: err}
}

func showConfig(w io.Writer, loaded *config.Loaded) {
	cfg := loaded.Config

	fmt.Fprintln(w, TitleStyle.Render("Current Configuration"))
	fmt.Fprintln(w)
	if loaded.Path != "" {
		fmt.Fprintf(w, "%s: %s\n", KeyStyle.Render("Config file"), loaded.Path)
	} else {
		fmt.Fprintf(w, "%s: %s\n", KeyStyle.Render("Config file"), SubtitleStyle.Render("(using defaults)"))
	}

	sections := []struct {
		name   string
		fields [][2]string
	}{
		{"server", [][2]string{
			{"host", cfg.Server.Host},
			{"port", fmt.Sprint(cfg.Server.Port)},
			{"read_header_timeout", orNone(cfg.Server.ReadHeaderTimeout.String())},
		}},
		{"lifespan", [][2]string{
			{"startup_timeout", orNone(cfg.Lifespan.StartupTimeout.String())},
			{"shutdown_timeout", orNone(cfg.Lifespan.ShutdownTimeout.String())},
			{"teardown_timeout", orNone(cfg.Lifespan.TeardownTimeout.String())},
			{"force_teardown_after", orNone(cfg.Lifespan.ForceTeardownAfter.String())},
		}},
		{"log", [][2]string{
			{"level", cfg.Log.Level.String()},
			{"format", cfg.Log.Format.String()},
		}},
		{"metrics", [][2]string{
			{"enabled", fmt.Sprint(cfg.Metrics.Enabled)},
			{"path", cfg.Metrics.Path.String()},
		}},
		{"database", [][2]string{
			{"path", cfg.Database.Path.String()},
		}},
	}

	for _, section := range sections {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%s:\n", KeyStyle.Render(section.name))
		for _, f := range section.fields {
			fmt.Fprintln(w, sectionStyle.Render(f[0]+": "+SuccessStyle.Render(f[1])))
		}
	}
}

func orNone(v string) string {
	if v == "" {
		return "(none)"
	}
	return v
}

func dumpConfig(w io.Writer, cfg *config.Config, format string) error {
	switch format {
	case "cue":
		fmt.Fprint(w, config.GenerateCUE(cfg))
		return nil
	case "toml":
		out, err := config.GenerateTOML(cfg)
		if err != nil {
			return err
		}
		fmt.Fprint(w, out)
		return nil
	default:
		return fmt.Errorf("unknown format %q: must be cue or toml", format)
	}
}
