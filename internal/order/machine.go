// Package order drives an order through its fulfillment lifecycle. All
// status writes go through the Machine: every transition checks an
// explicit current-state precondition and commits through a conditional
// store update, so an out-of-order event can never corrupt an order.
package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"slot-shop/internal/catalog"
	"slot-shop/internal/gateway"
	"slot-shop/internal/inventory"
	"slot-shop/internal/metrics"
	"slot-shop/internal/sizes"
	"slot-shop/internal/store"
)

// ErrSizeUnavailable is returned when a buyer picks a size the slot does
// not currently list.
var ErrSizeUnavailable = errors.New("size not available")

// ErrUnknownDelivery is returned for delivery methods outside the fixed set.
var ErrUnknownDelivery = errors.New("unknown delivery method")

// DeliveryMethod enumerates how a completed payment can be fulfilled.
type DeliveryMethod string

const (
	DeliveryCourier DeliveryMethod = "courier"
	DeliveryAvito   DeliveryMethod = "avito"
	DeliveryPickup  DeliveryMethod = "pickup"
)

var deliveryLabels = map[DeliveryMethod]string{
	DeliveryCourier: "Courier delivery",
	DeliveryAvito:   "Avito delivery",
	DeliveryPickup:  "Pickup",
}

// Config holds machine settings.
type Config struct {
	AdminIDs []int64
}

// Machine coordinates the store, the inventory ledger, outbound
// notifications and the catalog mirror for every lifecycle event.
type Machine struct {
	store     store.Store
	ledger    *inventory.Ledger
	sender    gateway.Sender
	publisher *catalog.Publisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	adminIDs  []int64
}

// New creates a Machine.
func New(st store.Store, ledger *inventory.Ledger, sender gateway.Sender, publisher *catalog.Publisher, cfg Config, logger *slog.Logger, metricRegistry *metrics.Metrics) *Machine {
	return &Machine{
		store:     st,
		ledger:    ledger,
		sender:    sender,
		publisher: publisher,
		logger:    logger.With("component", "order"),
		metrics:   metricRegistry,
		adminIDs:  cfg.AdminIDs,
	}
}

// Create starts a new order in status pending after the buyer picked a
// size. The slot's size set is intentionally left untouched until
// delivery selection: an abandoned or rejected order must never
// permanently consume a size.
func (m *Machine) Create(ctx context.Context, buyerID int64, username string, slotID int64, size string) (*store.Order, error) {
	slot, err := m.store.GetSlot(ctx, slotID)
	if err != nil {
		return nil, m.fail(EventCreate, err)
	}
	if !sizes.Parse(slot.Sizes).Contains(size) {
		m.metrics.OrderTransitions.WithLabelValues(string(EventCreate), "rejected").Inc()
		return nil, fmt.Errorf("slot %d size %q: %w", slotID, size, ErrSizeUnavailable)
	}

	if err := m.store.UpsertUser(ctx, buyerID, username); err != nil {
		return nil, m.fail(EventCreate, err)
	}

	// CreateOrder also increments the buyer's active slot counter in the
	// same transaction.
	created, err := m.store.CreateOrder(ctx, buyerID, username, slotID, size)
	if err != nil {
		return nil, m.fail(EventCreate, err)
	}

	m.metrics.OrderTransitions.WithLabelValues(string(EventCreate), "ok").Inc()
	m.logger.Info("order created", "order_id", created.ID, "slot_id", slotID, "buyer_id", buyerID, "size", size)
	return created, nil
}

// AttachProof stores the payment proof reference and forwards it to every
// admin with approve/reject controls. The order stays pending.
// Resubmitting overwrites the previous reference while still pending;
// there is no idempotency key.
func (m *Machine) AttachProof(ctx context.Context, orderID int64, proofRef string) (*store.OrderDetail, error) {
	detail, err := m.guard(ctx, orderID, EventSubmitProof)
	if err != nil {
		return nil, err
	}

	if err := m.store.SetOrderProof(ctx, orderID, proofRef); err != nil {
		return nil, m.fail(EventSubmitProof, err)
	}
	detail.Proof = &proofRef
	m.metrics.OrderTransitions.WithLabelValues(string(EventSubmitProof), "ok").Inc()

	caption := fmt.Sprintf(
		"New payment!\n\nUser: @%s (id %d)\n\nOrder #%d\nItem: %s\nSize: %s\nPrice: %s₽",
		derefOr(detail.Username, "—"), detail.UserID,
		detail.ID, detail.SlotName, derefOr(detail.Size, "—"), detail.SlotPrice,
	)
	m.notifyAdminsPhoto(ctx, proofRef, caption, gateway.PaymentApprovalControls(orderID))
	return detail, nil
}

// ApprovePayment moves pending → paid and offers the buyer the delivery
// method choice.
func (m *Machine) ApprovePayment(ctx context.Context, orderID int64) (*store.OrderDetail, error) {
	detail, err := m.transition(ctx, orderID, EventApprovePayment)
	if err != nil {
		return nil, err
	}

	text := fmt.Sprintf("✅ Payment for %s confirmed.\nChoose a delivery method:", detail.SlotName)
	m.notifyBuyer(ctx, detail.UserID, text, gateway.DeliveryControls(orderID))
	return detail, nil
}

// RejectPayment moves pending/paid → rejected. No inventory changes: the
// size was never removed for a not-yet-processing order.
func (m *Machine) RejectPayment(ctx context.Context, orderID int64) (*store.OrderDetail, error) {
	detail, err := m.transition(ctx, orderID, EventRejectPayment)
	if err != nil {
		return nil, err
	}

	text := fmt.Sprintf("❌ The receipt for %s was not confirmed.\nTry again or contact an administrator.", detail.SlotName)
	m.notifyBuyer(ctx, detail.UserID, text, nil)
	return detail, nil
}

// ChooseDelivery records the buyer's delivery method. Courier orders
// need an address first: the paid → processing transition is deferred to
// ProvideAddress and needsAddress is returned true. All other methods
// finalize immediately.
func (m *Machine) ChooseDelivery(ctx context.Context, orderID int64, method DeliveryMethod) (detail *store.OrderDetail, needsAddress bool, err error) {
	label, ok := deliveryLabels[method]
	if !ok {
		return nil, false, fmt.Errorf("%q: %w", method, ErrUnknownDelivery)
	}

	detail, err = m.guard(ctx, orderID, EventChooseDelivery)
	if err != nil {
		return nil, false, err
	}

	if err := m.store.SetOrderDelivery(ctx, orderID, label); err != nil {
		return nil, false, m.fail(EventChooseDelivery, err)
	}
	detail.Delivery = &label

	if method == DeliveryCourier {
		return detail, true, nil
	}

	detail, err = m.finalizeProcessing(ctx, orderID)
	if err != nil {
		return nil, false, err
	}
	return detail, false, nil
}

// ProvideAddress completes a courier checkout: it stores the address and
// performs the deferred paid → processing transition.
func (m *Machine) ProvideAddress(ctx context.Context, orderID int64, address string) (*store.OrderDetail, error) {
	if _, err := m.guard(ctx, orderID, EventChooseDelivery); err != nil {
		return nil, err
	}
	if err := m.store.SetOrderAddress(ctx, orderID, address); err != nil {
		return nil, m.fail(EventChooseDelivery, err)
	}
	return m.finalizeProcessing(ctx, orderID)
}

// finalizeProcessing commits paid → processing, consumes the size from
// the slot's set, refreshes the channel post and notifies admins. Only
// the transition and the size removal are state of record; the mirror
// update and notifications are best-effort.
func (m *Machine) finalizeProcessing(ctx context.Context, orderID int64) (*store.OrderDetail, error) {
	detail, err := m.transition(ctx, orderID, EventChooseDelivery)
	if err != nil {
		return nil, err
	}

	if detail.Size != nil {
		slot, _, err := m.ledger.RemoveSize(ctx, detail.SlotID, *detail.Size)
		switch {
		case errors.Is(err, store.ErrNotFound):
			m.logger.Warn("slot gone before size removal", "order_id", orderID, "slot_id", detail.SlotID)
		case err != nil:
			return nil, m.fail(EventChooseDelivery, err)
		default:
			if err := m.publisher.Refresh(ctx, slot); err != nil {
				m.logger.Warn("channel post refresh failed", "error", err, "slot_id", slot.ID)
			}
		}
	}

	summary := fmt.Sprintf(
		"📦 Order #%d\n@%s (id %d)\n%s — %s\nMethod: %s\nAddress: %s\n%s₽\n\nStatus: %s",
		detail.ID,
		derefOr(detail.Username, "—"), detail.UserID,
		detail.SlotName, derefOr(detail.Size, "—"),
		derefOr(detail.Delivery, "—"), derefOr(detail.Address, "—"),
		detail.SlotPrice, detail.Status,
	)
	m.notifyAdmins(ctx, summary, gateway.FulfillmentControls(orderID))
	return detail, nil
}

// ConfirmShipment moves processing → shipped. Informational only: no
// inventory change.
func (m *Machine) ConfirmShipment(ctx context.Context, orderID int64) (*store.OrderDetail, error) {
	return m.transition(ctx, orderID, EventConfirmShipment)
}

// Complete finishes the order. The status change, the buyer's counter
// decrement (floored at zero) and the monotonic buyer flag commit in a
// single store transaction, so a storage failure can never leave a
// completed order with the counter stuck.
func (m *Machine) Complete(ctx context.Context, orderID int64) (*store.OrderDetail, error) {
	detail, err := m.guard(ctx, orderID, EventComplete)
	if err != nil {
		return nil, err
	}

	applied, err := m.store.CompleteOrder(ctx, orderID, statusStrings(EventComplete))
	if err != nil {
		return nil, m.fail(EventComplete, err)
	}
	if !applied {
		current, err := m.store.GetOrder(ctx, orderID)
		from := Status("unknown")
		if err == nil {
			from = Status(current.Status)
		}
		m.metrics.OrderTransitions.WithLabelValues(string(EventComplete), "illegal").Inc()
		return nil, &IllegalTransitionError{OrderID: orderID, From: from, Event: EventComplete}
	}

	detail.Status = string(StatusCompleted)
	m.metrics.OrderTransitions.WithLabelValues(string(EventComplete), "ok").Inc()
	m.logger.Info("order transitioned", "order_id", orderID, "event", EventComplete, "status", StatusCompleted)

	m.notifyBuyer(ctx, detail.UserID, fmt.Sprintf("✅ Your order #%d is completed.", orderID), nil)
	return detail, nil
}

// Decline aborts a processing order: delivery and address are cleared
// and the buyer is told. The consumed size is intentionally not restored
// (deferred-removal design; re-adding is a manual admin action).
func (m *Machine) Decline(ctx context.Context, orderID int64) (*store.OrderDetail, error) {
	detail, err := m.transition(ctx, orderID, EventDecline)
	if err != nil {
		return nil, err
	}

	if err := m.store.ClearOrderDelivery(ctx, orderID); err != nil {
		return nil, m.fail(EventDecline, err)
	}
	detail.Delivery = nil
	detail.Address = nil

	m.notifyBuyer(ctx, detail.UserID, fmt.Sprintf("❌ Your order #%d was declined by an administrator.", orderID), nil)
	return detail, nil
}

// guard fetches the order and checks the event's status precondition.
func (m *Machine) guard(ctx context.Context, orderID int64, event Event) (*store.OrderDetail, error) {
	detail, err := m.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, m.fail(event, err)
	}
	if !allowed(event, Status(detail.Status)) {
		m.metrics.OrderTransitions.WithLabelValues(string(event), "illegal").Inc()
		return nil, &IllegalTransitionError{OrderID: orderID, From: Status(detail.Status), Event: event}
	}
	return detail, nil
}

// transition performs a guarded, conditional status update. The
// conditional WHERE clause closes the gap between the read in guard and
// the write: if a concurrent event won, the update applies zero rows and
// the event is rejected as illegal.
func (m *Machine) transition(ctx context.Context, orderID int64, event Event) (*store.OrderDetail, error) {
	detail, err := m.guard(ctx, orderID, event)
	if err != nil {
		return nil, err
	}

	next := results[event]
	applied, err := m.store.TransitionOrder(ctx, orderID, statusStrings(event), string(next))
	if err != nil {
		return nil, m.fail(event, err)
	}
	if !applied {
		current, err := m.store.GetOrder(ctx, orderID)
		from := Status("unknown")
		if err == nil {
			from = Status(current.Status)
		}
		m.metrics.OrderTransitions.WithLabelValues(string(event), "illegal").Inc()
		return nil, &IllegalTransitionError{OrderID: orderID, From: from, Event: event}
	}

	detail.Status = string(next)
	m.metrics.OrderTransitions.WithLabelValues(string(event), "ok").Inc()
	m.logger.Info("order transitioned", "order_id", orderID, "event", event, "status", next)
	return detail, nil
}

func (m *Machine) fail(event Event, err error) error {
	m.metrics.OrderTransitions.WithLabelValues(string(event), "error").Inc()
	return err
}

// notifyBuyer delivers a message to the buyer, logging failures as
// non-fatal: the state change is already committed.
func (m *Machine) notifyBuyer(ctx context.Context, buyerID int64, text string, controls *gateway.Controls) {
	if _, err := m.sender.SendMessage(ctx, buyerID, text, controls); err != nil {
		m.logger.Warn("buyer notification failed", "error", err, "buyer_id", buyerID)
		m.metrics.Errors.WithLabelValues("order_notify").Inc()
	}
}

func (m *Machine) notifyAdmins(ctx context.Context, text string, controls *gateway.Controls) {
	for _, adminID := range m.adminIDs {
		if _, err := m.sender.SendMessage(ctx, adminID, text, controls); err != nil {
			m.logger.Warn("admin notification failed", "error", err, "admin_id", adminID)
			m.metrics.Errors.WithLabelValues("order_notify").Inc()
		}
	}
}

func (m *Machine) notifyAdminsPhoto(ctx context.Context, photoRef, caption string, controls *gateway.Controls) {
	for _, adminID := range m.adminIDs {
		if _, err := m.sender.SendPhoto(ctx, adminID, photoRef, caption, controls); err != nil {
			m.logger.Warn("admin notification failed", "error", err, "admin_id", adminID)
			m.metrics.Errors.WithLabelValues("order_notify").Inc()
		}
	}
}

func derefOr(val *string, fallback string) string {
	if val == nil || *val == "" {
		return fallback
	}
	return *val
}
