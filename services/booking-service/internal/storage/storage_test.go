package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/model"
)

func TestEmbeddedMigrations(t *testing.T) {
	names, err := fs.Glob(migrationFiles, "migrations/*.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(names) == 0 || names[0] != "migrations/0001_init.sql" {
		t.Fatalf("unexpected migrations: %v", names)
	}
	body, err := migrationFiles.ReadFile(names[0])
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	sql := string(body)
	for _, table := range []string{
		"catalog_services", "availability", "bookings", "booking_items", "payments",
		"staff", "shifts", "shift_assignments", "provider_events", "outbox_events",
	} {
		if !strings.Contains(sql, "CREATE TABLE IF NOT EXISTS "+table+" ") {
			t.Fatalf("expected table %s in %s", table, names[0])
		}
	}

	last, err := migrationFiles.ReadFile(names[len(names)-1])
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(last), "DROP CONSTRAINT IF EXISTS payments_booking_id_key") {
		t.Fatalf("expected payment attempts migration last, got %s", names[len(names)-1])
	}
}

func TestErrorClassification(t *testing.T) {
	err := notFound(fmt.Errorf("scan: %w", pgx.ErrNoRows), "booking", "b1")
	if !errors.Is(err, model.ErrNotFound) || !strings.Contains(err.Error(), "booking b1") {
		t.Fatalf("expected not found, got %v", err)
	}
	other := errors.New("boom")
	if got := notFound(other, "booking", "b1"); got != other {
		t.Fatalf("expected passthrough, got %v", got)
	}

	unique := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})
	if !isUniqueViolation(unique) || isForeignKeyViolation(unique) {
		t.Fatalf("expected unique violation only")
	}
	fk := &pgconn.PgError{Code: "23503"}
	if !isForeignKeyViolation(fk) || isUniqueViolation(fk) {
		t.Fatalf("expected foreign key violation only")
	}
}
