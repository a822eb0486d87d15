// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/invowk/lifespan/internal/issue"
	"github.com/invowk/lifespan/pkg/lifespan"
)

// issueFor picks the catalog entry that best explains err. An
// ActionableError's own entry wins over the generic lifespan ones.
func issueFor(err error) issue.Id {
	var ae *issue.ActionableError
	if errors.As(err, &ae) && ae.IssueID != 0 {
		return ae.IssueID
	}
	switch {
	case errors.Is(err, lifespan.ErrStartup):
		return issue.StartupFailedId
	case errors.Is(err, lifespan.ErrDrainTimeout):
		return issue.DrainTimeoutId
	case errors.Is(err, lifespan.ErrTeardown):
		return issue.TeardownFailedId
	}
	return 0
}

// renderIssue prints the catalog entry for id, if any.
func renderIssue(w io.Writer, id issue.Id) {
	if id == 0 {
		return
	}
	entry := issue.Get(id)
	if entry == nil {
		return
	}
	rendered, err := entry.Render("dark")
	if err != nil {
		slog.Warn("failed to render issue catalog entry", "issueID", id, "error", err)
		return
	}
	fmt.Fprint(w, rendered)
}

// reportError prints err with its catalog entry.
func reportError(w io.Writer, prefix string, err error, verbose bool) {
	fmt.Fprintln(w, ErrorStyle.Render(prefix)+" "+formatErrorForDisplay(err, verbose))
	renderIssue(w, issueFor(err))
}
