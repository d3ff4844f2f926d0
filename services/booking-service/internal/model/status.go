package model

import "fmt"

type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCompleted BookingStatus = "COMPLETED"
	BookingCancelled BookingStatus = "CANCELLED"
)

type BookingTrigger string

const (
	TriggerConfirm  BookingTrigger = "confirm"
	TriggerCheckIn  BookingTrigger = "check_in"
	TriggerCheckOut BookingTrigger = "check_out"
	TriggerCancel   BookingTrigger = "cancel"
)

type bookingEdge struct {
	from BookingStatus
	on   BookingTrigger
}

var bookingTransitions = map[bookingEdge]BookingStatus{
	{BookingPending, TriggerConfirm}:    BookingConfirmed,
	{BookingPending, TriggerCheckIn}:    BookingConfirmed,
	{BookingConfirmed, TriggerCheckIn}:  BookingConfirmed,
	{BookingConfirmed, TriggerCheckOut}: BookingCompleted,
	{BookingPending, TriggerCancel}:     BookingCancelled,
	{BookingConfirmed, TriggerCancel}:   BookingCancelled,
}

// Next returns the status reached from s on trigger, or ErrInvalidStatusTransition.
func (s BookingStatus) Next(on BookingTrigger) (BookingStatus, error) {
	to, ok := bookingTransitions[bookingEdge{s, on}]
	if !ok {
		return s, fmt.Errorf("%w: booking %s cannot %s", ErrInvalidStatusTransition, s, on)
	}
	return to, nil
}

func (s BookingStatus) Terminal() bool {
	return s == BookingCompleted || s == BookingCancelled
}

// Active statuses count towards staff load.
func (s BookingStatus) Active() bool {
	return s == BookingPending || s == BookingConfirmed
}

func ParseBookingStatus(v string) (BookingStatus, error) {
	switch s := BookingStatus(v); s {
	case BookingPending, BookingConfirmed, BookingCompleted, BookingCancelled:
		return s, nil
	}
	return "", fmt.Errorf("%w: unknown booking status %q", ErrInvalidArgument, v)
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPaid    PaymentStatus = "PAID"
	PaymentFailed  PaymentStatus = "FAILED"
)

// Next moves a pending payment to PAID or FAILED. Terminal payments refuse every
// move with ErrPaymentAlreadySettled.
func (s PaymentStatus) Next(success bool) (PaymentStatus, error) {
	if s != PaymentPending {
		return s, fmt.Errorf("%w: payment is %s", ErrPaymentAlreadySettled, s)
	}
	if success {
		return PaymentPaid, nil
	}
	return PaymentFailed, nil
}

type ShiftStatus string

const (
	ShiftRegistered ShiftStatus = "REGISTERED"
	ShiftApproved   ShiftStatus = "APPROVED"
	ShiftInProgress ShiftStatus = "IN_PROGRESS"
	ShiftCompleted  ShiftStatus = "COMPLETED"
	ShiftCancelled  ShiftStatus = "CANCELLED"
)

type ShiftTrigger string

const (
	ShiftApprove  ShiftTrigger = "approve"
	ShiftStart    ShiftTrigger = "start"
	ShiftComplete ShiftTrigger = "complete"
	ShiftCancel   ShiftTrigger = "cancel"
)

type shiftEdge struct {
	from ShiftStatus
	on   ShiftTrigger
}

var shiftTransitions = map[shiftEdge]ShiftStatus{
	{ShiftRegistered, ShiftApprove}:  ShiftApproved,
	{ShiftRegistered, ShiftCancel}:   ShiftCancelled,
	{ShiftApproved, ShiftStart}:      ShiftInProgress,
	{ShiftApproved, ShiftCancel}:     ShiftCancelled,
	{ShiftInProgress, ShiftComplete}: ShiftCompleted,
}

func (s ShiftStatus) Next(on ShiftTrigger) (ShiftStatus, error) {
	to, ok := shiftTransitions[shiftEdge{s, on}]
	if !ok {
		return s, fmt.Errorf("%w: shift %s cannot %s", ErrInvalidStatusTransition, s, on)
	}
	return to, nil
}

// Staffed reports whether staff on the shift can take bookings.
func (s ShiftStatus) Staffed() bool {
	return s == ShiftApproved || s == ShiftInProgress
}

func ParseShiftTrigger(v string) (ShiftTrigger, error) {
	switch t := ShiftTrigger(v); t {
	case ShiftApprove, ShiftStart, ShiftComplete, ShiftCancel:
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown shift action %q", ErrInvalidArgument, v)
}
