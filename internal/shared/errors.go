package shared

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Ledger error kinds. Callers match them with errors.Is.
var (
	// ErrNotFound indicates an absent or inactive account or transaction.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientFunds indicates a withdrawal would drive the balance negative.
	ErrInsufficientFunds = errors.New("insufficient funds for withdrawal")
	// ErrInvalidAmount indicates a non-positive or malformed amount.
	ErrInvalidAmount = errors.New("transaction amount must be greater than zero")
	// ErrConstraintViolation indicates a store integrity failure.
	ErrConstraintViolation = errors.New("database constraint violation")
	// ErrTransactionAborted indicates the unit of work was rolled back by the store,
	// typically because of a serialization conflict.
	ErrTransactionAborted = errors.New("database transaction failed")
	// ErrIdempotencyConflict indicates the request key was already processed.
	ErrIdempotencyConflict = errors.New("idempotent request already processed")
)

// PostgreSQL SQLSTATE codes the ledger reacts to.
const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateUniqueViolation      = "23505"
	dataExceptionClass           = "22"
	integrityConstraintClass     = "23"
)

// FromStore classifies a driver error into a ledger error kind. Errors that
// already carry a kind, and errors that are not PostgreSQL errors, are returned
// untouched. The driver error stays reachable through errors.As.
func FromStore(err error) error {
	if err == nil || IsKind(err) {
		return err
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch {
	case pgErr.Code == sqlStateSerializationFailure, pgErr.Code == sqlStateDeadlockDetected:
		return fmt.Errorf("%w: %w", ErrTransactionAborted, err)
	case sqlStateClass(pgErr.Code) == integrityConstraintClass, sqlStateClass(pgErr.Code) == dataExceptionClass:
		return fmt.Errorf("%w: %w", ErrConstraintViolation, err)
	default:
		return err
	}
}

func sqlStateClass(code string) string {
	if len(code) != 5 {
		return ""
	}
	return code[:2]
}

// IsUniqueViolation reports whether err is a PostgreSQL unique violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == sqlStateUniqueViolation
}

// IsKind reports whether err already maps to one of the ledger error kinds.
func IsKind(err error) bool {
	for _, kind := range []error{
		ErrNotFound,
		ErrInsufficientFunds,
		ErrInvalidAmount,
		ErrConstraintViolation,
		ErrTransactionAborted,
		ErrIdempotencyConflict,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
