package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ariefcatur/go-stock-ledger/internal/apperr"
)

func TestMapError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want apperr.Kind
	}{
		{"unique", &pgconn.PgError{Code: "23505", ConstraintName: "products_slug_key"}, apperr.KindConflict},
		{"foreign key", &pgconn.PgError{Code: "23503"}, apperr.KindConflict},
		{"check", &pgconn.PgError{Code: "23514"}, apperr.KindConflict},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, apperr.KindStoreUnavailable},
		{"network", errors.New("dial tcp: connection refused"), apperr.KindStoreUnavailable},
		{"already classified", apperr.NotFound("order not found"), apperr.KindNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := apperr.KindOf(MapError(tc.err)); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestMapErrorNil(t *testing.T) {
	if MapError(nil) != nil {
		t.Fatal("expected nil")
	}
}

func TestIsNoRows(t *testing.T) {
	if !IsNoRows(fmt.Errorf("scan: %w", pgx.ErrNoRows)) {
		t.Fatal("expected wrapped ErrNoRows to match")
	}
}
