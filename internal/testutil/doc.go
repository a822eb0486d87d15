// SPDX-License-Identifier: MPL-2.0

// Package testutil holds test helpers shared across packages: start/stop
// helpers for anything with Start(ctx) and Stop(ctx) (coordinators and
// servers), close helpers, and a manually driven clock.
package testutil
