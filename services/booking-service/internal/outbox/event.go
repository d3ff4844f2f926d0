package outbox

import "encoding/json"

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

const (
	BookingCreated             = "booking.created.v1"
	BookingConfirmed           = "booking.confirmed.v1"
	BookingCancelled           = "booking.cancelled.v1"
	BookingCheckedIn           = "booking.checked_in.v1"
	BookingCompleted           = "booking.completed.v1"
	BookingReviewed            = "booking.reviewed.v1"
	BookingStaffAssigned       = "booking.staff_assigned.v1"
	BookingReservationConflict = "booking.reservation_conflict.v1"
	PaymentInitiated           = "payment.initiated.v1"
	PaymentSucceeded           = "payment.succeeded.v1"
	PaymentFailed              = "payment.failed.v1"
)

// NewEvent marshals payload as the event body.
func NewEvent(aggregateType, aggregateID, eventType string, payload any) (Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       body,
	}, nil
}
