package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
)

// Reason names why a failed store write may be retried. The empty Reason means it may not.
type Reason string

const (
	ReasonMarked     Reason = "marked"
	ReasonSQLiteBusy Reason = "sqlite_busy"
	ReasonPostgres   Reason = "postgres"
	ReasonNetwork    Reason = "network"
)

// SQLite primary result codes; extended codes carry them in the low byte.
const (
	sqliteBusy   = 5
	sqliteLocked = 6
)

// retryableSQLStates are Postgres error codes a repeated write can get past.
var retryableSQLStates = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
	"57P01": true, // admin_shutdown
	"53300": true, // too_many_connections
}

// TransientError marks a store error as worth retrying.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError marks err as retryable.
func NewTransientError(err error) *TransientError {
	return &TransientError{Err: err}
}

// Classify reports why err is worth retrying, searching the whole chain.
func Classify(err error) Reason {
	if err == nil {
		return ""
	}

	var te *TransientError
	if errors.As(err, &te) {
		return ReasonMarked
	}

	var se *sqlite.Error
	if errors.As(err, &se) {
		if code := se.Code() & 0xff; code == sqliteBusy || code == sqliteLocked {
			return ReasonSQLiteBusy
		}
		return ""
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08 is connection exceptions.
		if retryableSQLStates[pgErr.Code] || strings.HasPrefix(pgErr.Code, "08") {
			return ReasonPostgres
		}
		return ""
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonNetwork
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return ReasonNetwork
	}

	// Drivers that flatten their errors into text.
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "sqlite_busy") {
		return ReasonSQLiteBusy
	}
	for _, p := range []string{"connection reset by peer", "broken pipe", "i/o timeout", "conn closed"} {
		if strings.Contains(msg, p) {
			return ReasonNetwork
		}
	}
	return ""
}

// IsTransient reports whether err has any retry Reason.
func IsTransient(err error) bool {
	return Classify(err) != ""
}
