// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"github.com/invowk/lifespan/pkg/lifespan"

	"github.com/charmbracelet/lipgloss"
)

// Color palette shared by all CLI output, tuned for dark terminals.
const (
	ColorPrimary   = lipgloss.Color("#7C3AED")
	ColorMuted     = lipgloss.Color("#6B7280")
	ColorSuccess   = lipgloss.Color("#10B981")
	ColorError     = lipgloss.Color("#EF4444")
	ColorWarning   = lipgloss.Color("#F59E0B")
	ColorHighlight = lipgloss.Color("#3B82F6")
)

var (
	// TitleStyle is for primary headers and section titles.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary)

	// SubtitleStyle is for secondary headers and descriptions.
	SubtitleStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)

	// SuccessStyle is for success messages and positive indicators.
	SuccessStyle = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	// ErrorStyle is for error messages and failure indicators.
	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorError)

	// WarningStyle is for warning messages and caution indicators.
	WarningStyle = lipgloss.NewStyle().
			Foreground(ColorWarning)

	// KeyStyle is for config keys and field labels.
	KeyStyle = lipgloss.NewStyle().
			Foreground(ColorHighlight)

	// sectionStyle indents the fields under a config section.
	sectionStyle = lipgloss.NewStyle().
			PaddingLeft(2)
)

// phaseStyle colors a coordinator phase name by health.
func phaseStyle(phase string) lipgloss.Style {
	switch phase {
	case lifespan.PhaseReady.String():
		return SuccessStyle
	case lifespan.PhaseStarting.String(), lifespan.PhaseDraining.String():
		return WarningStyle
	case lifespan.PhaseStartupFailed.String(), lifespan.PhaseStopped.String():
		return ErrorStyle
	default:
		return SubtitleStyle
	}
}
