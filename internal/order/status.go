package order

import (
	"errors"
	"fmt"
)

// Status enumerates the order lifecycle states.
type Status string

const (
	StatusPending    Status = "pending"
	StatusPaid       Status = "paid"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusCompleted  Status = "completed"
	StatusRejected   Status = "rejected"
	StatusDeclined   Status = "declined"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusRejected, StatusDeclined:
		return true
	}
	return false
}

// Event names the lifecycle operations that drive transitions.
type Event string

const (
	EventCreate          Event = "create"
	EventSubmitProof     Event = "submit_proof"
	EventApprovePayment  Event = "approve_payment"
	EventRejectPayment   Event = "reject_payment"
	EventChooseDelivery  Event = "choose_delivery"
	EventConfirmShipment Event = "confirm_shipment"
	EventComplete        Event = "complete"
	EventDecline         Event = "decline"
)

// preconditions lists the statuses an order must currently be in for
// each event. Events not listed here create the order.
var preconditions = map[Event][]Status{
	EventSubmitProof:     {StatusPending},
	EventApprovePayment:  {StatusPending},
	EventRejectPayment:   {StatusPending, StatusPaid},
	EventChooseDelivery:  {StatusPaid},
	EventConfirmShipment: {StatusProcessing},
	EventComplete:        {StatusProcessing, StatusShipped},
	EventDecline:         {StatusProcessing},
}

// results maps each transition-triggering event to the status it sets.
var results = map[Event]Status{
	EventApprovePayment:  StatusPaid,
	EventRejectPayment:   StatusRejected,
	EventChooseDelivery:  StatusProcessing,
	EventConfirmShipment: StatusShipped,
	EventComplete:        StatusCompleted,
	EventDecline:         StatusDeclined,
}

// ErrIllegalTransition marks events that do not apply to the order's
// current status. Match with errors.Is.
var ErrIllegalTransition = errors.New("illegal transition")

// IllegalTransitionError carries the order, its observed status and the
// rejected event.
type IllegalTransitionError struct {
	OrderID int64
	From    Status
	Event   Event
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("order %d: event %q not allowed in status %q", e.OrderID, e.Event, e.From)
}

func (e *IllegalTransitionError) Unwrap() error {
	return ErrIllegalTransition
}

// allowed reports whether the event applies to the given status.
func allowed(event Event, current Status) bool {
	for _, st := range preconditions[event] {
		if st == current {
			return true
		}
	}
	return false
}

// statusStrings converts the event's precondition set for conditional
// store updates.
func statusStrings(event Event) []string {
	pre := preconditions[event]
	out := make([]string, len(pre))
	for i, st := range pre {
		out[i] = string(st)
	}
	return out
}
