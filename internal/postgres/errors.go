package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ariefcatur/go-stock-ledger/internal/apperr"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
)

// IsNoRows reports whether err is pgx's "no rows in result set".
func IsNoRows(err error) bool { return errors.Is(err, pgx.ErrNoRows) }

// MapError classifies a driver error into the apperr taxonomy. Errors that
// already carry a kind pass through untouched.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	if apperr.KindOf(err) != "" {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return apperr.Wrap(apperr.KindConflict, "unique constraint failed on "+pgErr.ConstraintName, err)
		case codeForeignKeyViolation:
			return apperr.Wrap(apperr.KindConflict, "still referenced by "+pgErr.ConstraintName, err)
		case codeCheckViolation:
			return apperr.Wrap(apperr.KindConflict, "check constraint failed on "+pgErr.ConstraintName, err)
		}
	}
	return apperr.StoreUnavailable(err)
}
