package postgres

import (
	"errors"
	"regexp"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrConstraint = errors.New("constraint violation")
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

func pgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func isUniqueViolation(err error) bool {
	pgErr, ok := pgError(err)
	return ok && pgErr.Code == codeUniqueViolation
}

func isForeignKeyViolation(err error) bool {
	pgErr, ok := pgError(err)
	return ok && pgErr.Code == codeForeignKeyViolation
}

// Key (email)=(jane@example.com) already exists.
var reUniqueDetail = regexp.MustCompile(`Key \(([^)]+)\)=\((.*)\) already exists`)

// conflictKey extracts the colliding column and value from a unique violation.
// Falls back to the constraint map when the server hides the detail line.
func conflictKey(err error, constraints map[string]string) (field, value string) {
	pgErr, ok := pgError(err)
	if !ok {
		return "", ""
	}
	if m := reUniqueDetail.FindStringSubmatch(pgErr.Detail); m != nil {
		return m[1], m[2]
	}
	return constraints[pgErr.ConstraintName], ""
}
