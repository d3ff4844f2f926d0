package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/camprent/libs/db"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/ledger"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/store"
)

// These tests run against a real PostgreSQL when DATABASE_URL is set.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.Open(ctx, url, db.Options{MaxConns: 16})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := Migrate(ctx, pool, slog.New(slog.NewTextHandler(io.Discard, nil))); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return New(pool, outbox.NewRepository())
}

func pgDay(d int) time.Time {
	return time.Date(2027, 3, d, 0, 0, 0, 0, time.UTC)
}

func pgRange(from, to int) ledger.DateRange {
	return ledger.DateRange{Start: pgDay(from), End: pgDay(to)}
}

func seedService(t *testing.T, st *Store, slots int, r ledger.DateRange) string {
	t.Helper()
	id := "svc-" + uuid.NewString()
	err := st.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		if err := tx.Catalog().UpsertService(ctx, model.Service{
			ID: id, Name: "Pitch", Price: 1000, MinDays: 1, MaxDays: 5, MinCapacity: 1, MaxCapacity: 4,
		}); err != nil {
			return err
		}
		return tx.Ledger().Provision(ctx, id, r, slots)
	})
	if err != nil {
		t.Fatalf("seed service: %v", err)
	}
	return id
}

func reserve(st *Store, serviceID string, r ledger.DateRange) error {
	return st.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.Ledger().Reserve(ctx, serviceID, r)
	})
}

func release(st *Store, serviceID string, r ledger.DateRange) error {
	return st.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.Ledger().Release(ctx, serviceID, r)
	})
}

func bookedByDay(t *testing.T, st *Store, serviceID string, r ledger.DateRange) map[time.Time]int {
	t.Helper()
	out := map[time.Time]int{}
	err := st.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		recs, err := tx.Ledger().Records(ctx, serviceID, r)
		for _, rec := range recs {
			out[rec.Date] = rec.BookedSlots
		}
		return err
	})
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	return out
}

func TestPostgresProvisionCoversEveryDay(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	r := pgRange(1, 4)
	id := seedService(t, st, 2, r)

	var recs []ledger.Record
	err := st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		recs, err = tx.Ledger().Records(ctx, id, pgRange(1, 10))
		return err
	})
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 days, got %d", len(recs))
	}
	for i, rec := range recs {
		if !rec.Date.Equal(pgDay(1+i)) || rec.TotalSlots != 2 || rec.BookedSlots != 0 {
			t.Fatalf("unexpected record %d: %+v", i, rec)
		}
	}

	if err := reserve(st, id, pgRange(2, 3)); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	err = st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Ledger().Provision(ctx, id, r, 0)
	})
	if !errors.Is(err, model.ErrInvalidArgument) {
		t.Fatalf("shrinking below booked should be rejected, got %v", err)
	}
	err = st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Ledger().Provision(ctx, "svc-missing-"+uuid.NewString(), r, 1)
	})
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("unknown service should be ErrNotFound, got %v", err)
	}
}

func TestPostgresConcurrentReserveOnSingleSlot(t *testing.T) {
	st := openTestStore(t)
	r := pgRange(1, 3)
	id := seedService(t, st, 1, r)

	const workers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
		errs []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := reserve(st, id, r)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else {
				errs = append(errs, err)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one reservation, got %d", wins)
	}
	for _, err := range errs {
		if !errors.Is(err, model.ErrCapacityExceeded) {
			t.Fatalf("losers must see ErrCapacityExceeded, got %v", err)
		}
	}
	for d, n := range bookedByDay(t, st, id, r) {
		if n != 1 {
			t.Fatalf("%s booked %d, expected 1", d.Format(time.DateOnly), n)
		}
	}
}

func TestPostgresReserveIsAllOrNothing(t *testing.T) {
	st := openTestStore(t)
	id := seedService(t, st, 1, pgRange(1, 4))
	if err := reserve(st, id, pgRange(3, 4)); err != nil {
		t.Fatalf("reserve last day: %v", err)
	}

	// The failed reserve must not leave increments even when the caller commits.
	err := st.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		if err := tx.Ledger().Reserve(ctx, id, pgRange(1, 4)); !errors.Is(err, model.ErrCapacityExceeded) {
			t.Errorf("expected ErrCapacityExceeded, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
	got := bookedByDay(t, st, id, pgRange(1, 4))
	if got[pgDay(1)] != 0 || got[pgDay(2)] != 0 || got[pgDay(3)] != 1 {
		t.Fatalf("partial reservation leaked: %v", got)
	}

	if err := reserve(st, id, pgRange(2, 6)); !errors.Is(err, model.ErrMissingAvailabilityConfig) {
		t.Fatalf("unprovisioned day should be reported, got %v", err)
	}
}

func TestPostgresReleaseFloorsAtZero(t *testing.T) {
	st := openTestStore(t)
	r := pgRange(1, 3)
	id := seedService(t, st, 2, r)
	if err := reserve(st, id, r); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := release(st, id, r); err != nil {
			t.Fatalf("release %d: %v", i, err)
		}
	}
	for d, n := range bookedByDay(t, st, id, r) {
		if n != 0 {
			t.Fatalf("%s booked %d after double release", d.Format(time.DateOnly), n)
		}
	}
}

func TestPostgresReserveReleaseRoundTrip(t *testing.T) {
	st := openTestStore(t)
	all := pgRange(1, 5)
	id := seedService(t, st, 3, all)
	if err := reserve(st, id, pgRange(1, 2)); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	before := bookedByDay(t, st, id, all)

	stays := []ledger.DateRange{pgRange(1, 3), pgRange(2, 5)}
	for _, r := range stays {
		if err := reserve(st, id, r); err != nil {
			t.Fatalf("reserve %s: %v", r, err)
		}
	}
	for _, r := range stays {
		if err := release(st, id, r); err != nil {
			t.Fatalf("release %s: %v", r, err)
		}
	}
	after := bookedByDay(t, st, id, all)
	for d, n := range before {
		if after[d] != n {
			t.Fatalf("%s: booked %d before, %d after", d.Format(time.DateOnly), n, after[d])
		}
	}
}

func TestPostgresPaymentAttemptsAndActiveLoad(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	staffID := "staff-" + uuid.NewString()
	b := model.Booking{ID: "b-" + uuid.NewString(), CustomerID: "cust", Status: model.BookingPending, CreatedAt: now, UpdatedAt: now}
	first := model.Payment{
		ID: uuid.NewString(), BookingID: b.ID, Method: model.MethodHosted, Status: model.PaymentPending,
		Amount: 5000, Currency: "USD", TxnRef: uuid.NewString(), CreatedAt: now, UpdatedAt: now,
	}
	second := first
	second.ID = uuid.NewString()
	second.TxnRef = uuid.NewString()
	second.CreatedAt = now.Add(time.Second)

	err := st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.Staff().Upsert(ctx, model.Staff{ID: staffID, Name: "Ranger", Active: true, UpdatedAt: now}); err != nil {
			return err
		}
		if err := tx.Bookings().Create(ctx, b); err != nil {
			return err
		}
		b.AssignedStaffID = staffID
		if err := tx.Bookings().Update(ctx, b); err != nil {
			return err
		}
		if err := tx.Payments().Save(ctx, first); err != nil {
			return err
		}
		return tx.Payments().Save(ctx, second)
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	err = st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		attempts, err := tx.Payments().ByBooking(ctx, b.ID)
		if err != nil {
			return err
		}
		if len(attempts) != 2 || attempts[0].ID != second.ID || attempts[1].ID != first.ID {
			t.Errorf("expected both attempts newest first, got %+v", attempts)
		}
		p, err := tx.Payments().ByTxnRefForUpdate(ctx, first.TxnRef)
		if err != nil {
			return err
		}
		p.Status = model.PaymentPaid
		p.PaidAt = &now
		if err := tx.Payments().Save(ctx, p); err != nil {
			return err
		}

		load, err := tx.Bookings().ActiveLoad(ctx, []string{staffID}, "")
		if err != nil {
			return err
		}
		if load[staffID] != 1 {
			t.Errorf("expected load 1, got %v", load)
		}
		load, err = tx.Bookings().ActiveLoad(ctx, []string{staffID}, b.ID)
		if err != nil {
			return err
		}
		if _, ok := load[staffID]; ok {
			t.Errorf("excluded booking must not count, got %v", load)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}

	err = st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		p, err := tx.Payments().ByTxnRefForUpdate(ctx, first.TxnRef)
		if err != nil {
			return err
		}
		if p.Status != model.PaymentPaid || p.PaidAt == nil {
			t.Errorf("update by id lost: %+v", p)
		}
		dup := second
		dup.ID = uuid.NewString()
		return tx.Payments().Save(ctx, dup)
	})
	if !errors.Is(err, model.ErrInvalidArgument) {
		t.Fatalf("reused txn ref should be rejected, got %v", err)
	}
}
