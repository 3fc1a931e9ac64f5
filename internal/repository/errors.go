package repository

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Sentinel errors surfaced to the service and handler layers.
var (
	// ErrEventNotFound is returned when a referenced event does not exist.
	ErrEventNotFound = errors.New("event not found")

	// ErrBookingNotFound is returned when a referenced booking does not exist.
	ErrBookingNotFound = errors.New("booking not found")

	// ErrAlreadyCancelled rejects a second cancellation of the same booking.
	// Cancelled is terminal; the repeat attempt is an error, not a no-op.
	ErrAlreadyCancelled = errors.New("booking already cancelled")

	// ErrContention marks a transaction aborted by the database: deadlock,
	// serialization failure, or lock timeout. Nothing was committed, so the
	// caller may safely retry.
	ErrContention = errors.New("transaction contention")

	// ErrCapacityViolation surfaces only if the 0 <= available <= total
	// invariant is about to break. The locking discipline keeps this
	// unreachable; it exists as an assertion, not a flow-control path.
	ErrCapacityViolation = errors.New("ticket capacity violated")
)

// PostgreSQL SQLSTATE codes the engine maps onto its error taxonomy.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeCheckViolation       = "23514"
)

// classify maps low-level database failures onto sentinel errors so callers
// can distinguish retryable contention from real faults with errors.Is.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
		return fmt.Errorf("%w: %s", ErrContention, pgErr.Message)
	case codeCheckViolation:
		return fmt.Errorf("%w: %s", ErrCapacityViolation, pgErr.Message)
	}
	return err
}
