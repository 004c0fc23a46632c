// Package store provides database access methods for all Ajeyam entities.
// Each store struct wraps a *sql.DB and exposes typed query methods.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"

	"ajeyam/internal/apperr"
)

// psql builds queries with PostgreSQL $n placeholders.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// UserFilter selects which users a read may return. The zero value hides
// deactivated accounts, which is what every public read wants.
type UserFilter struct {
	IncludeInactive bool
}

var (
	ActiveUsers = UserFilter{}
	AllUsers    = UserFilter{IncludeInactive: true}
)

// clause returns a SQL boolean expression over the users alias.
func (f UserFilter) clause(alias string) string {
	if f.IncludeInactive {
		return "TRUE"
	}
	return alias + ".active"
}

// Page is a 1-based page request.
type Page struct {
	Number int
	Limit  int
}

// Offset returns the row offset of the page. An offset that would
// overflow saturates at math.MaxInt, which selects no rows.
func (p Page) Offset() int {
	if p.Number < 1 || p.Limit < 1 {
		return 0
	}
	if p.Number-1 > math.MaxInt/p.Limit {
		return math.MaxInt
	}
	return (p.Number - 1) * p.Limit
}

// uniqueViolation is the PostgreSQL SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

// conflictOr converts a unique violation into a ConflictError carrying
// msg, and wraps any other error with op.
func conflictOr(err error, op, msg string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return apperr.Conflict(err, "%s", msg)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// decodeTags unmarshals the JSON array produced by array_to_json(tags).
func decodeTags(raw []byte) ([]string, error) {
	tags := []string{}
	if len(raw) == 0 {
		return tags, nil
	}
	if err := json.Unmarshal(raw, &tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	return tags, nil
}
