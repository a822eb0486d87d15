// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the CLI commands for lifespand.
//
// lifespand hosts the visits service behind a lifespan.Coordinator: serve
// runs it until interrupted, status probes a running instance, and config
// inspects or creates the configuration file.
package cmd
