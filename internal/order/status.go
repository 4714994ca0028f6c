package order

import "errors"

type Status string

const (
	StatusPending        Status = "PENDING"
	StatusConfirmed      Status = "CONFIRMED"
	StatusProcessing     Status = "PROCESSING"
	StatusShipped        Status = "SHIPPED"
	StatusOutForDelivery Status = "OUT_FOR_DELIVERY"
	StatusDelivered      Status = "DELIVERED"
	StatusCancelled      Status = "CANCELLED"
	StatusReturned       Status = "RETURNED"
	StatusRefunded       Status = "REFUNDED"
)

var (
	ErrInvalidTransition   = errors.New("invalid order status transition")
	ErrOrderNotCancellable = errors.New("order cannot be cancelled in its current status")
)

// transitions is the full state machine. Cancellation is only reachable
// before fulfillment starts; returns only after delivery.
var transitions = map[Status][]Status{
	StatusPending:        {StatusConfirmed, StatusCancelled},
	StatusConfirmed:      {StatusProcessing, StatusCancelled},
	StatusProcessing:     {StatusShipped},
	StatusShipped:        {StatusOutForDelivery},
	StatusOutForDelivery: {StatusDelivered},
	StatusDelivered:      {StatusReturned},
	StatusReturned:       {StatusRefunded},
}

// CanTransitionTo reports whether from -> to is a legal move.
func CanTransitionTo(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

func (s Status) String() string {
	return string(s)
}
