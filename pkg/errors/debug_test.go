package errors

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestDumpPgxConstraint(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23514", ConstraintName: "orders_total_chk", TableName: "orders"}
	err := Wrap(CodeInternal, fmt.Errorf("save order: %w", pgErr), "persist order")

	d := Dump(err)
	if d.Code != CodeInternal {
		t.Fatalf("unexpected code %s", d.Code)
	}
	if d.PGCode != "23514" || d.PGConstraint != "orders_total_chk" || d.PGTable != "orders" {
		t.Fatalf("pg fields not extracted: %+v", d)
	}
	if len(d.Chain) != 3 {
		t.Fatalf("expected 3 chain entries, got %v", d.Chain)
	}
	fields := d.Fields()
	if fields["pg_constraint"] != "orders_total_chk" || fields["error_code"] != string(CodeInternal) {
		t.Fatalf("unexpected fields %v", fields)
	}
}

func TestDumpLibPQ(t *testing.T) {
	d := Dump(fmt.Errorf("exec: %w", &pq.Error{Code: "23505", Constraint: "products_sku_key"}))
	if d.PGCode != "23505" || d.PGConstraint != "products_sku_key" {
		t.Fatalf("pq fields not extracted: %+v", d)
	}
	if d.Code != "" {
		t.Fatalf("untyped chains have no code, got %s", d.Code)
	}
}

func TestDumpNil(t *testing.T) {
	if d := Dump(nil); d.TopMessage != "" || len(d.Chain) != 0 {
		t.Fatalf("expected empty dump, got %+v", d)
	}
}
