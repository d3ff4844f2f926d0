// Package memstore is an in-process implementation of store.Store. Transactions
// are serialised by one mutex and applied copy-on-write, so a failed
// transaction leaves no trace.
package memstore

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/ledger"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/store"
)

type Store struct {
	mu   sync.Mutex
	data *state
}

func New() *Store {
	return &Store{data: newState()}
}

type slotKey struct {
	serviceID string
	date      time.Time
}

type state struct {
	services       map[string]model.Service
	combos         map[string]model.Combo
	equipment      map[string]model.Equipment
	slots          map[slotKey]ledger.Record
	bookings       map[string]model.Booking
	payments       map[string]model.Payment
	paymentOrder   []string // payment ids in insertion order
	staff          map[string]model.Staff
	shifts         map[string]model.Shift
	providerEvents map[string]struct{}
	events         []outbox.Event
}

func newState() *state {
	return &state{
		services:       map[string]model.Service{},
		combos:         map[string]model.Combo{},
		equipment:      map[string]model.Equipment{},
		slots:          map[slotKey]ledger.Record{},
		bookings:       map[string]model.Booking{},
		payments:       map[string]model.Payment{},
		staff:          map[string]model.Staff{},
		shifts:         map[string]model.Shift{},
		providerEvents: map[string]struct{}{},
	}
}

// clone copies every map. Values holding slices or pointers are deep copied
// on read and write instead, so sharing them here is safe.
func (s *state) clone() *state {
	return &state{
		services:       maps.Clone(s.services),
		combos:         maps.Clone(s.combos),
		equipment:      maps.Clone(s.equipment),
		slots:          maps.Clone(s.slots),
		bookings:       maps.Clone(s.bookings),
		payments:       maps.Clone(s.payments),
		paymentOrder:   slices.Clone(s.paymentOrder),
		staff:          maps.Clone(s.staff),
		shifts:         maps.Clone(s.shifts),
		providerEvents: maps.Clone(s.providerEvents),
		events:         slices.Clone(s.events),
	}
}

func (m *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	work := m.data.clone()
	if err := fn(ctx, &tx{st: work}); err != nil {
		return err
	}
	m.data = work
	return nil
}

// Events returns the committed outbox events in append order.
func (m *Store) Events() []outbox.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.data.events)
}

// Slot returns the committed ledger record for a day, if configured.
func (m *Store) Slot(serviceID string, date time.Time) (ledger.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.data.slots[slotKey{serviceID, ledger.Day(date)}]
	return rec, ok
}

type tx struct {
	st *state
}

func (t *tx) Catalog() store.Catalog               { return catalog{t.st} }
func (t *tx) Ledger() ledger.Ledger                { return slots{t.st} }
func (t *tx) Bookings() store.Bookings             { return bookings{t.st} }
func (t *tx) Payments() store.Payments             { return payments{t.st} }
func (t *tx) Staff() store.StaffDirectory          { return staff{t.st} }
func (t *tx) Shifts() store.Shifts                 { return shifts{t.st} }
func (t *tx) Events() store.EventSink              { return events{t.st} }
func (t *tx) ProviderEvents() store.ProviderEvents { return providerEvents{t.st} }

func notFound(kind, id string) error {
	return fmt.Errorf("%w: %s %s", model.ErrNotFound, kind, id)
}

type catalog struct{ st *state }

func (c catalog) Service(_ context.Context, id string) (model.Service, error) {
	s, ok := c.st.services[id]
	if !ok {
		return model.Service{}, notFound("service", id)
	}
	return s, nil
}

func (c catalog) Combo(_ context.Context, id string) (model.Combo, error) {
	v, ok := c.st.combos[id]
	if !ok {
		return model.Combo{}, notFound("combo", id)
	}
	return v, nil
}

func (c catalog) Equipment(_ context.Context, id string) (model.Equipment, error) {
	v, ok := c.st.equipment[id]
	if !ok {
		return model.Equipment{}, notFound("equipment", id)
	}
	return v, nil
}

func (c catalog) UpsertService(_ context.Context, s model.Service) error {
	c.st.services[s.ID] = s
	return nil
}

func (c catalog) UpsertCombo(_ context.Context, v model.Combo) error {
	c.st.combos[v.ID] = v
	return nil
}

func (c catalog) UpsertEquipment(_ context.Context, v model.Equipment) error {
	c.st.equipment[v.ID] = v
	return nil
}

type slots struct{ st *state }

func (l slots) records(serviceID string, r ledger.DateRange) []ledger.Record {
	var out []ledger.Record
	for _, d := range r.Dates() {
		if rec, ok := l.st.slots[slotKey{serviceID, d}]; ok {
			out = append(out, rec)
		}
	}
	return out
}

func (l slots) CheckCapacity(_ context.Context, serviceID string, r ledger.DateRange) error {
	return ledger.Evaluate(serviceID, l.records(serviceID, r), r)
}

func (l slots) Reserve(_ context.Context, serviceID string, r ledger.DateRange) error {
	if err := ledger.Evaluate(serviceID, l.records(serviceID, r), r); err != nil {
		return err
	}
	for _, d := range r.Dates() {
		k := slotKey{serviceID, d}
		rec := l.st.slots[k]
		rec.BookedSlots++
		l.st.slots[k] = rec
	}
	return nil
}

func (l slots) Release(_ context.Context, serviceID string, r ledger.DateRange) error {
	for _, d := range r.Dates() {
		k := slotKey{serviceID, d}
		rec, ok := l.st.slots[k]
		if !ok || rec.BookedSlots == 0 {
			continue
		}
		rec.BookedSlots--
		l.st.slots[k] = rec
	}
	return nil
}

func (l slots) Provision(_ context.Context, serviceID string, r ledger.DateRange, totalSlots int) error {
	if err := ledger.CheckProvision(l.records(serviceID, r), totalSlots); err != nil {
		return err
	}
	for _, d := range r.Dates() {
		k := slotKey{serviceID, d}
		rec := l.st.slots[k]
		rec.ServiceID, rec.Date, rec.TotalSlots = serviceID, d, totalSlots
		l.st.slots[k] = rec
	}
	return nil
}

func (l slots) Records(_ context.Context, serviceID string, r ledger.DateRange) ([]ledger.Record, error) {
	return l.records(serviceID, r), nil
}

type bookings struct{ st *state }

func (b bookings) Create(_ context.Context, bk model.Booking) error {
	if _, exists := b.st.bookings[bk.ID]; exists {
		return fmt.Errorf("%w: booking %s already exists", model.ErrInvalidArgument, bk.ID)
	}
	b.st.bookings[bk.ID] = cloneBooking(bk)
	return nil
}

func (b bookings) Get(_ context.Context, id string) (model.Booking, error) {
	bk, ok := b.st.bookings[id]
	if !ok {
		return model.Booking{}, notFound("booking", id)
	}
	return cloneBooking(bk), nil
}

func (b bookings) GetForUpdate(ctx context.Context, id string) (model.Booking, error) {
	return b.Get(ctx, id)
}

func (b bookings) Update(_ context.Context, bk model.Booking) error {
	cur, ok := b.st.bookings[bk.ID]
	if !ok {
		return notFound("booking", bk.ID)
	}
	next := cloneBooking(bk)
	next.Items = cur.Items
	b.st.bookings[bk.ID] = next
	return nil
}

func (b bookings) List(_ context.Context, f model.BookingFilter) ([]model.Booking, error) {
	var out []model.Booking
	for _, bk := range b.st.bookings {
		if f.CustomerID != "" && bk.CustomerID != f.CustomerID {
			continue
		}
		if f.StaffID != "" && bk.AssignedStaffID != f.StaffID {
			continue
		}
		if f.Status != "" && bk.Status != f.Status {
			continue
		}
		out = append(out, cloneBooking(bk))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (b bookings) ActiveLoad(_ context.Context, staffIDs []string, excludeBookingID string) (map[string]int, error) {
	load := map[string]int{}
	for _, bk := range b.st.bookings {
		if bk.ID == excludeBookingID || !bk.Status.Active() || !slices.Contains(staffIDs, bk.AssignedStaffID) {
			continue
		}
		load[bk.AssignedStaffID]++
	}
	return load, nil
}

func cloneBooking(b model.Booking) model.Booking {
	b.Items = slices.Clone(b.Items)
	if b.CheckedInAt != nil {
		t := *b.CheckedInAt
		b.CheckedInAt = &t
	}
	if b.CancelledAt != nil {
		t := *b.CancelledAt
		b.CancelledAt = &t
	}
	if b.Review != nil {
		r := *b.Review
		b.Review = &r
	}
	return b
}

type payments struct{ st *state }

func (p payments) Save(_ context.Context, pay model.Payment) error {
	for id, other := range p.st.payments {
		if other.TxnRef == pay.TxnRef && id != pay.ID {
			return fmt.Errorf("%w: txn ref %s already used", model.ErrInvalidArgument, pay.TxnRef)
		}
	}
	if _, ok := p.st.payments[pay.ID]; !ok {
		p.st.paymentOrder = append(p.st.paymentOrder, pay.ID)
	}
	p.st.payments[pay.ID] = clonePayment(pay)
	return nil
}

func (p payments) ByBooking(_ context.Context, bookingID string) ([]model.Payment, error) {
	var out []model.Payment
	for i := len(p.st.paymentOrder) - 1; i >= 0; i-- {
		pay := p.st.payments[p.st.paymentOrder[i]]
		if pay.BookingID == bookingID {
			out = append(out, clonePayment(pay))
		}
	}
	return out, nil
}

func (p payments) ByTxnRefForUpdate(_ context.Context, txnRef string) (model.Payment, error) {
	for _, pay := range p.st.payments {
		if pay.TxnRef == txnRef {
			return clonePayment(pay), nil
		}
	}
	return model.Payment{}, notFound("payment", txnRef)
}

func clonePayment(p model.Payment) model.Payment {
	for _, ts := range []**time.Time{&p.CapturedAt, &p.PaidAt, &p.FailedAt} {
		if *ts != nil {
			t := **ts
			*ts = &t
		}
	}
	return p
}

type staff struct{ st *state }

func (s staff) Get(_ context.Context, id string) (model.Staff, error) {
	v, ok := s.st.staff[id]
	if !ok {
		return model.Staff{}, notFound("staff", id)
	}
	return v, nil
}

func (s staff) Upsert(_ context.Context, v model.Staff) error {
	s.st.staff[v.ID] = v
	return nil
}

type shifts struct{ st *state }

func (s shifts) Create(_ context.Context, sh model.Shift) error {
	if _, exists := s.st.shifts[sh.ID]; exists {
		return fmt.Errorf("%w: shift %s already exists", model.ErrInvalidArgument, sh.ID)
	}
	for _, a := range sh.Assignments {
		if _, ok := s.st.staff[a.StaffID]; !ok {
			return notFound("staff", a.StaffID)
		}
	}
	sh.Assignments = slices.Clone(sh.Assignments)
	s.st.shifts[sh.ID] = sh
	return nil
}

func (s shifts) GetForUpdate(_ context.Context, id string) (model.Shift, error) {
	sh, ok := s.st.shifts[id]
	if !ok {
		return model.Shift{}, notFound("shift", id)
	}
	sh.Assignments = slices.Clone(sh.Assignments)
	return sh, nil
}

func (s shifts) UpdateStatus(_ context.Context, id string, status model.ShiftStatus, at time.Time) error {
	sh, ok := s.st.shifts[id]
	if !ok {
		return notFound("shift", id)
	}
	sh.Status, sh.UpdatedAt = status, at
	s.st.shifts[id] = sh
	return nil
}

func (s shifts) Overlapping(_ context.Context, start, end time.Time, statuses []model.ShiftStatus) ([]model.Shift, error) {
	var out []model.Shift
	for _, sh := range s.st.shifts {
		if slices.Contains(statuses, sh.Status) && sh.Overlaps(start, end) {
			sh.Assignments = slices.Clone(sh.Assignments)
			out = append(out, sh)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type events struct{ st *state }

func (e events) Append(_ context.Context, evt outbox.Event) error {
	e.st.events = append(e.st.events, evt)
	return nil
}

type providerEvents struct{ st *state }

func (p providerEvents) Record(_ context.Context, provider, eventID, _ string, _ []byte) error {
	key := provider + "/" + eventID
	if _, seen := p.st.providerEvents[key]; seen {
		return store.ErrDuplicateProviderEvent
	}
	p.st.providerEvents[key] = struct{}{}
	return nil
}
