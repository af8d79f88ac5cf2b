// Package store defines the aggregate persistence interface. The job
// and deadletter subsystems each define their own store interface; the
// composite Store composes them. Backends: Postgres, Redis, and Memory.
package store

import (
	"context"

	"github.com/xraph/acpflow/deadletter"
	"github.com/xraph/acpflow/job"
)

// Store is the aggregate persistence interface. A single backend
// implements every subsystem's persistence contract.
type Store interface {
	job.Store
	deadletter.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error
}
