package db

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

const pgUniqueViolationCode = "23505"

// IsUniqueViolation reports whether err carries a Postgres unique violation.
// Detection is driver-typed only; error message text is never inspected. When
// constraintName is non-empty the violation must name that constraint.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}

	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		if pgxErr.Code != pgUniqueViolationCode {
			return false
		}
		return constraintName == "" || pgxErr.ConstraintName == constraintName
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if string(pqErr.Code) != pgUniqueViolationCode {
			return false
		}
		return constraintName == "" || pqErr.Constraint == constraintName
	}

	// GORM translates driver duplicate-key errors when TranslateError is
	// enabled (sqlite in tests). No constraint name is available here.
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return constraintName == ""
	}

	return false
}

// IsDuplicateKey reports a unique violation on any constraint.
func IsDuplicateKey(err error) bool {
	return IsUniqueViolation(err, "")
}
