// SPDX-License-Identifier: MPL-2.0

// Package lifespan coordinates the startup and shutdown of a long-running
// service and the state it shares with concurrently executing work.
//
// A [Spec] acquires resources during [Coordinator.Start], registering each
// release with a [Scope]. The state it returns is published once as a
// read-only [Snapshot]. While the coordinator is Ready, the host calls
// [Coordinator.BeginWork] for every unit of work and receives a
// [RequestState]: a shallow copy of the snapshot that the unit may rebind
// freely without affecting anyone else. [Coordinator.Stop] stops admission,
// waits for in-flight work, and runs the release path exactly once.
//
// Values can be read by name or through typed [Key] accessors declared ahead
// of time; both read the same bindings.
//
//	var (
//		shape = &lifespan.Shape{}
//		dbKey = lifespan.DeclareKey[*sql.DB](shape, "db")
//	)
//
//	c := lifespan.New(lifespan.SpecFunc(func(ctx context.Context, s *lifespan.Scope) (*lifespan.State, error) {
//		db, err := lifespan.AcquireCloser(ctx, s, "db", openDB)
//		if err != nil {
//			return nil, err
//		}
//		st := lifespan.NewState()
//		dbKey.Set(st, db)
//		return st, nil
//	}), lifespan.WithShape(shape))
package lifespan
