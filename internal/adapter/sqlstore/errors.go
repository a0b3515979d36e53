package sqlstore

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"

	"github.com/intecmar/cop-loc-etl/internal/domain"
)

// sqliteConstraint is SQLITE_CONSTRAINT. Extended codes keep it in the low byte.
const sqliteConstraint = 19

func persistenceError(kind domain.EntityKind, key string, err error) *domain.PersistenceError {
	return &domain.PersistenceError{Entity: kind, Key: key, Err: err, Constraint: isConstraintViolation(err)}
}

// isConstraintViolation reports whether err is the database refusing a write
// on integrity grounds (SQLSTATE class 23 or SQLITE_CONSTRAINT).
func isConstraintViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, "23")
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code()&0xff == sqliteConstraint
	}
	return false
}
