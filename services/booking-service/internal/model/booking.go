package model

import "time"

type ItemType string

const (
	ItemService   ItemType = "SERVICE"
	ItemCombo     ItemType = "COMBO"
	ItemEquipment ItemType = "EQUIPMENT"
)

func (t ItemType) Valid() bool {
	switch t {
	case ItemService, ItemCombo, ItemEquipment:
		return true
	}
	return false
}

type Booking struct {
	ID              string
	CustomerID      string
	Status          BookingStatus
	Items           []LineItem
	AssignedStaffID string
	CheckedInAt     *time.Time
	CancelledAt     *time.Time
	CancelReason    string
	Review          *Review
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// LineItem is one priced component. CheckIn, CheckOut and People are only set for SERVICE.
type LineItem struct {
	Position  int
	Type      ItemType
	CatalogID string
	Quantity  int
	UnitPrice int64
	CheckIn   time.Time
	CheckOut  time.Time
	People    int
}

func (li LineItem) Total() int64 {
	return li.UnitPrice * int64(li.Quantity)
}

type Review struct {
	Rating     int
	Feedback   string
	ReviewedAt time.Time
}

func (b Booking) Total() int64 {
	var sum int64
	for _, li := range b.Items {
		sum += li.Total()
	}
	return sum
}

// ServiceItems returns the line items that hold ledger capacity.
func (b Booking) ServiceItems() []LineItem {
	var out []LineItem
	for _, li := range b.Items {
		if li.Type == ItemService {
			out = append(out, li)
		}
	}
	return out
}

// StayWindow is [earliest check-in, latest check-out) over SERVICE items.
// ok is false when the booking has no stay.
func (b Booking) StayWindow() (start, end time.Time, ok bool) {
	for _, li := range b.ServiceItems() {
		if !ok || li.CheckIn.Before(start) {
			start = li.CheckIn
		}
		if !ok || li.CheckOut.After(end) {
			end = li.CheckOut
		}
		ok = true
	}
	return start, end, ok && end.After(start)
}

// BookingFilter narrows List queries. Zero values mean "any".
type BookingFilter struct {
	CustomerID string
	StaffID    string
	Status     BookingStatus
	Limit      int
}
