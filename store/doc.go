// Package store houses implementations of core.RunStore. The interface lives
// in core so the executor never depends on a concrete backend.
//
// InMemoryStore keeps records in a process local map and suits tests and
// short lived processes. The sqlite sub-package persists records in a SQLite
// database file.
package store
