// SPDX-License-Identifier: MPL-2.0

// Package visits is a small service hosted on a lifespan.Coordinator.
//
// Its startup opens a SQLite database (WAL mode, schema migrated in place),
// seeds a shared in-memory counter from the stored rows, and records the
// start time. Those three values are published under the keys declared in
// Shape. Every request gets its own view of them; the counter is shared by
// reference, so increments are visible to every later request, while values
// a handler sets on its RequestState stay private to that request.
package visits
