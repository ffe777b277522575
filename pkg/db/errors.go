package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
)

// SQLSTATE codes the engine reacts to.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// driverError is the normalized view of a driver failure.
type driverError struct {
	code       string
	constraint string
	message    string
}

func classify(err error) (driverError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return driverError{code: pgErr.Code, constraint: pgErr.ConstraintName, message: pgErr.Message}, true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return driverError{code: string(pqErr.Code), constraint: pqErr.Constraint, message: pqErr.Message}, true
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		out := driverError{message: liteErr.Error()}
		switch {
		case liteErr.ExtendedCode == sqlite3.ErrConstraintUnique,
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
			out.code = codeUniqueViolation
		case liteErr.Code == sqlite3.ErrBusy, liteErr.Code == sqlite3.ErrLocked:
			out.code = codeSerializationFailure
		}
		return out, true
	}
	return driverError{}, false
}

// IsUniqueViolation reports whether err is a unique constraint violation on
// any supported driver. Naming a constraint narrows the match to it; sqlite
// only exposes the violated columns, so the name is matched against the
// message there.
func IsUniqueViolation(err error, constraint ...string) bool {
	if err == nil {
		return false
	}
	want := ""
	if len(constraint) > 0 {
		want = constraint[0]
	}

	if info, ok := classify(err); ok {
		if info.code != codeUniqueViolation {
			return false
		}
		return want == "" || info.constraint == want || strings.Contains(info.message, want)
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return want == ""
	}
	msg := err.Error()
	if want != "" {
		return strings.Contains(msg, want)
	}
	return strings.Contains(msg, "duplicate key value") || strings.Contains(msg, "UNIQUE constraint failed")
}

// IsSerializationFailure reports whether a transaction lost a conflict and
// can be replayed from the start.
func IsSerializationFailure(err error) bool {
	info, ok := classify(err)
	if !ok {
		return false
	}
	return info.code == codeSerializationFailure || info.code == codeDeadlockDetected
}

func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
