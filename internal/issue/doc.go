// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable errors for lifespand and a catalog of
// known problems rendered as Markdown in the terminal.
//
// An ActionableError tells the operator what was being attempted, which
// resource was involved and what to try next. Catalog entries go further and
// explain a whole class of failure (a port already in use, a database that
// will not open) with concrete remediation.
package issue
