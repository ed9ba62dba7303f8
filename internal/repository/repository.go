// Package repository provides data access interfaces and implementations
// for the Research Report Service.
//
// The package follows the repository pattern: interfaces abstract persistence
// from business logic, and the PostgreSQL implementations work against the
// DBTX interface so they run equally on a connection pool or inside a
// transaction.
//
// All methods return domain-specific errors: domain.ErrNotFound when a
// resource does not exist, domain.ErrAlreadyExists on unique constraint
// violations, and domain.ErrInvalidInput for invalid parameters or status
// transitions. Database errors are wrapped with context via fmt.Errorf and
// the %w verb.
//
// Repositories are created at application startup and shared; all
// implementations are safe for concurrent use.
//
//	db, _ := database.New(ctx, cfg, logger)
//	runRepo := repository.NewPgRunRepository(db)
package repository

import (
	"github.com/helixir/research-report-service/internal/database"
)

// DBTX is the database interface supporting both pool and transaction
// contexts. Passing a pgx.Tx instead of the pool makes every call of a
// repository instance part of that transaction.
type DBTX = database.DBTX

// Filter pagination defaults and limits.
const (
	defaultFilterLimit = 100
	maxFilterLimit     = 1000
)

// applyPaginationDefaults normalizes limit and offset values for filter queries.
// It clamps limit to [1, maxFilterLimit] and ensures offset >= 0.
func applyPaginationDefaults(limit, offset *int) {
	if *limit <= 0 {
		*limit = defaultFilterLimit
	}
	if *limit > maxFilterLimit {
		*limit = maxFilterLimit
	}
	if *offset < 0 {
		*offset = 0
	}
}
