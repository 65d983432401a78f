// Package pgerrors classifies PostgreSQL errors by SQLSTATE code,
// adapted from the connection-class and serialization-class checks
// the teacher's postgres adapter used to decide whether a failed
// transaction was worth retrying.
package pgerrors

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes this package checks for. Only the codes
// IsUniqueViolation, IsSerializationFailure and IsRetryable test are
// named; anything else falls through IsRetryable as false.
const (
	codeUniqueViolation        = "23505"
	codeSerializationFailure   = "40001"
	codeDeadlockDetected       = "40P01"
	codeConnectionException    = "08000"
	codeConnectionDoesNotExist = "08003"
	codeConnectionFailure      = "08006"
	codeCannotConnectNow       = "57P03"
)

// IsUniqueViolation reports whether err is a unique-constraint
// violation.
func IsUniqueViolation(err error) bool {
	return hasCode(err, codeUniqueViolation)
}

// IsSerializationFailure reports whether err is a serializable-isolation
// conflict (SQLSTATE 40001) — the class a resilient transaction should
// retry from the top, since retrying re-runs the whole action list
// under a fresh snapshot.
func IsSerializationFailure(err error) bool {
	return hasCode(err, codeSerializationFailure)
}

// IsRetryable reports whether err is a connection-class or
// serialization/deadlock-class failure: the kinds worth retrying the
// whole resilient transaction for. Anything else (constraint
// violations, syntax errors, application bugs) is not retried.
func IsRetryable(err error) bool {
	return hasCode(err, codeSerializationFailure) ||
		hasCode(err, codeDeadlockDetected) ||
		hasCode(err, codeConnectionException) ||
		hasCode(err, codeConnectionDoesNotExist) ||
		hasCode(err, codeConnectionFailure) ||
		hasCode(err, codeCannotConnectNow)
}

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
