package order

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"

	"slot-shop/internal/catalog"
	"slot-shop/internal/gateway"
	"slot-shop/internal/inventory"
	"slot-shop/internal/logging"
	"slot-shop/internal/metrics"
	"slot-shop/internal/store"
	"slot-shop/migrations"
)

type sentMessage struct {
	recipient int64
	text      string
	photoRef  string
	controls  *gateway.Controls
}

type fakeSender struct {
	mu       sync.Mutex
	messages []sentMessage
	nextID   int64
}

func (f *fakeSender) record(msg sentMessage) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.messages = append(f.messages, msg)
	return f.nextID
}

func (f *fakeSender) SendMessage(_ context.Context, recipientID int64, text string, controls *gateway.Controls) (int64, error) {
	return f.record(sentMessage{recipient: recipientID, text: text, controls: controls}), nil
}

func (f *fakeSender) SendPhoto(_ context.Context, recipientID int64, photoRef, caption string, controls *gateway.Controls) (int64, error) {
	return f.record(sentMessage{recipient: recipientID, text: caption, photoRef: photoRef, controls: controls}), nil
}

func (f *fakeSender) EditMessage(_ context.Context, recipientID, _ int64, caption string, controls *gateway.Controls) error {
	f.record(sentMessage{recipient: recipientID, text: caption, controls: controls})
	return nil
}

func (f *fakeSender) DeleteMessage(context.Context, int64, int64) error {
	return nil
}

func (f *fakeSender) sentTo(recipient int64) []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentMessage
	for _, msg := range f.messages {
		if msg.recipient == recipient {
			out = append(out, msg)
		}
	}
	return out
}

const (
	testAdminID = int64(900)
	testBuyerID = int64(100)
	testChannel = int64(-500)
)

func newTestMachine(t *testing.T) (*Machine, store.Store, *fakeSender) {
	t.Helper()
	ctx := context.Background()
	logger := logging.NewLoggerTo(io.Discard, "error")

	st, err := store.NewSQLite(ctx, filepath.Join(t.TempDir(), "shop.db"), logger)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(st.Close)
	if err := st.Migrate(ctx, migrations.Files); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	sender := &fakeSender{}
	reg := metrics.Registry("ordertest")
	publisher := catalog.New(st, sender, testChannel, logger, reg)
	ledger := inventory.New(st, logger)
	machine := New(st, ledger, sender, publisher, Config{AdminIDs: []int64{testAdminID}}, logger, reg)
	return machine, st, sender
}

func seedSlot(t *testing.T, st store.Store, sizesCSV string) *store.Slot {
	t.Helper()
	slot, err := st.InsertSlot(context.Background(), store.Slot{
		Name:  "Runner 2000",
		Photo: "photo-abc",
		Sizes: sizesCSV,
		Price: "4500",
	})
	if err != nil {
		t.Fatalf("insert slot: %v", err)
	}
	return slot
}

func TestHappyPathPickup(t *testing.T) {
	machine, st, sender := newTestMachine(t)
	ctx := context.Background()
	slot := seedSlot(t, st, "41,42,43")

	created, err := machine.Create(ctx, testBuyerID, "alice", slot.ID, "42")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Status != string(StatusPending) {
		t.Fatalf("status = %q, want pending", created.Status)
	}

	user, err := st.GetUser(ctx, testBuyerID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if user.ActiveSlots != 1 {
		t.Fatalf("active slots = %d, want 1", user.ActiveSlots)
	}

	if _, err := machine.AttachProof(ctx, created.ID, "proof-1"); err != nil {
		t.Fatalf("attach proof: %v", err)
	}
	adminMsgs := sender.sentTo(testAdminID)
	if len(adminMsgs) != 1 || adminMsgs[0].photoRef != "proof-1" {
		t.Fatalf("proof not forwarded to admin: %+v", adminMsgs)
	}

	detail, err := machine.ApprovePayment(ctx, created.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if detail.Status != string(StatusPaid) {
		t.Fatalf("status = %q, want paid", detail.Status)
	}

	detail, needsAddress, err := machine.ChooseDelivery(ctx, created.ID, DeliveryPickup)
	if err != nil {
		t.Fatalf("choose delivery: %v", err)
	}
	if needsAddress {
		t.Fatal("pickup must not require an address")
	}
	if detail.Status != string(StatusProcessing) {
		t.Fatalf("status = %q, want processing", detail.Status)
	}

	// Delivery selection consumes the size.
	after, err := st.GetSlot(ctx, slot.ID)
	if err != nil {
		t.Fatalf("get slot: %v", err)
	}
	if after.Sizes != "41,43" {
		t.Fatalf("sizes = %q, want 41,43", after.Sizes)
	}

	if _, err := machine.ConfirmShipment(ctx, created.ID); err != nil {
		t.Fatalf("confirm shipment: %v", err)
	}

	detail, err = machine.Complete(ctx, created.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if detail.Status != string(StatusCompleted) {
		t.Fatalf("status = %q, want completed", detail.Status)
	}

	user, err = st.GetUser(ctx, testBuyerID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if user.ActiveSlots != 0 {
		t.Fatalf("active slots = %d, want 0", user.ActiveSlots)
	}
	if !user.Buyer {
		t.Fatal("buyer flag not set after completion")
	}
}

func TestRejectPaymentKeepsInventory(t *testing.T) {
	machine, st, _ := newTestMachine(t)
	ctx := context.Background()
	slot := seedSlot(t, st, "M,L")

	created, err := machine.Create(ctx, testBuyerID, "alice", slot.ID, "M")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := machine.AttachProof(ctx, created.ID, "proof-bad"); err != nil {
		t.Fatalf("attach proof: %v", err)
	}

	detail, err := machine.RejectPayment(ctx, created.ID)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if detail.Status != string(StatusRejected) {
		t.Fatalf("status = %q, want rejected", detail.Status)
	}

	after, err := st.GetSlot(ctx, slot.ID)
	if err != nil {
		t.Fatalf("get slot: %v", err)
	}
	if after.Sizes != "M,L" {
		t.Fatalf("sizes = %q, rejection must not touch inventory", after.Sizes)
	}

	// No further events apply to a rejected order.
	if _, err := machine.ApprovePayment(ctx, created.ID); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("approve after reject: got %v, want illegal transition", err)
	}
}

func TestCourierRequiresAddress(t *testing.T) {
	machine, st, _ := newTestMachine(t)
	ctx := context.Background()
	slot := seedSlot(t, st, "40")

	created, err := machine.Create(ctx, testBuyerID, "alice", slot.ID, "40")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := machine.ApprovePayment(ctx, created.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}

	detail, needsAddress, err := machine.ChooseDelivery(ctx, created.ID, DeliveryCourier)
	if err != nil {
		t.Fatalf("choose delivery: %v", err)
	}
	if !needsAddress {
		t.Fatal("courier must require an address")
	}
	if detail.Status != string(StatusPaid) {
		t.Fatalf("status = %q, courier transition must wait for address", detail.Status)
	}

	detail, err = machine.ProvideAddress(ctx, created.ID, "Lenina 1, apt 2")
	if err != nil {
		t.Fatalf("provide address: %v", err)
	}
	if detail.Status != string(StatusProcessing) {
		t.Fatalf("status = %q, want processing", detail.Status)
	}

	stored, err := st.GetOrder(ctx, created.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if stored.Address == nil || *stored.Address != "Lenina 1, apt 2" {
		t.Fatalf("address not persisted: %+v", stored.Address)
	}
}

func TestDeclineClearsDeliveryKeepsSize(t *testing.T) {
	machine, st, sender := newTestMachine(t)
	ctx := context.Background()
	slot := seedSlot(t, st, "S,M")

	created, err := machine.Create(ctx, testBuyerID, "alice", slot.ID, "S")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := machine.ApprovePayment(ctx, created.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, _, err := machine.ChooseDelivery(ctx, created.ID, DeliveryAvito); err != nil {
		t.Fatalf("choose delivery: %v", err)
	}

	detail, err := machine.Decline(ctx, created.ID)
	if err != nil {
		t.Fatalf("decline: %v", err)
	}
	if detail.Status != string(StatusDeclined) {
		t.Fatalf("status = %q, want declined", detail.Status)
	}

	stored, err := st.GetOrder(ctx, created.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if stored.Delivery != nil || stored.Address != nil {
		t.Fatalf("delivery fields not cleared: %+v %+v", stored.Delivery, stored.Address)
	}

	// The consumed size stays gone; restocking is a manual admin action.
	after, err := st.GetSlot(ctx, slot.ID)
	if err != nil {
		t.Fatalf("get slot: %v", err)
	}
	if after.Sizes != "M" {
		t.Fatalf("sizes = %q, want M", after.Sizes)
	}

	buyerMsgs := sender.sentTo(testBuyerID)
	if len(buyerMsgs) == 0 {
		t.Fatal("buyer not notified of the decline")
	}
}

func TestIllegalTransitions(t *testing.T) {
	machine, st, _ := newTestMachine(t)
	ctx := context.Background()
	slot := seedSlot(t, st, "42")

	created, err := machine.Create(ctx, testBuyerID, "alice", slot.ID, "42")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Delivery before payment approval.
	if _, _, err := machine.ChooseDelivery(ctx, created.ID, DeliveryPickup); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("delivery while pending: got %v", err)
	}
	// Completion straight from pending.
	if _, err := machine.Complete(ctx, created.ID); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("complete while pending: got %v", err)
	}

	if _, err := machine.ApprovePayment(ctx, created.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	// Double approval.
	_, err = machine.ApprovePayment(ctx, created.ID)
	var illegal *IllegalTransitionError
	if !errors.As(err, &illegal) {
		t.Fatalf("double approve: got %v, want IllegalTransitionError", err)
	}
	if illegal.From != StatusPaid || illegal.Event != EventApprovePayment {
		t.Fatalf("unexpected error detail: %+v", illegal)
	}
	// Proof after approval.
	if _, err := machine.AttachProof(ctx, created.ID, "late-proof"); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("proof while paid: got %v", err)
	}
}

func TestTwoBuyersSameSize(t *testing.T) {
	machine, st, _ := newTestMachine(t)
	ctx := context.Background()
	slot := seedSlot(t, st, "42")
	otherBuyer := int64(101)

	first, err := machine.Create(ctx, testBuyerID, "alice", slot.ID, "42")
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	// Size membership is checked at creation, so a second pending order
	// for the same size is accepted while the size is still listed.
	second, err := machine.Create(ctx, otherBuyer, "bob", slot.ID, "42")
	if err != nil {
		t.Fatalf("second create: %v", err)
	}

	for _, id := range []int64{first.ID, second.ID} {
		if _, err := machine.ApprovePayment(ctx, id); err != nil {
			t.Fatalf("approve %d: %v", id, err)
		}
	}

	if _, _, err := machine.ChooseDelivery(ctx, first.ID, DeliveryPickup); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	after, err := st.GetSlot(ctx, slot.ID)
	if err != nil {
		t.Fatalf("get slot: %v", err)
	}
	if after.Sizes != "" {
		t.Fatalf("sizes = %q, want empty after first consumption", after.Sizes)
	}

	// The second removal is a no-op on an already empty set; the order
	// still reaches processing.
	detail, _, err := machine.ChooseDelivery(ctx, second.ID, DeliveryPickup)
	if err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if detail.Status != string(StatusProcessing) {
		t.Fatalf("second order status = %q, want processing", detail.Status)
	}
}

func TestCreateRejectsUnlistedSize(t *testing.T) {
	machine, st, _ := newTestMachine(t)
	slot := seedSlot(t, st, "M,L")

	_, err := machine.Create(context.Background(), testBuyerID, "alice", slot.ID, "XXL")
	if !errors.Is(err, ErrSizeUnavailable) {
		t.Fatalf("got %v, want ErrSizeUnavailable", err)
	}
}

func TestCompleteFromShippedOrProcessing(t *testing.T) {
	machine, st, _ := newTestMachine(t)
	ctx := context.Background()
	slot := seedSlot(t, st, "41,42")

	// processing → completed, skipping the shipment confirmation.
	first, err := machine.Create(ctx, testBuyerID, "alice", slot.ID, "41")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := machine.ApprovePayment(ctx, first.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, _, err := machine.ChooseDelivery(ctx, first.ID, DeliveryPickup); err != nil {
		t.Fatalf("delivery: %v", err)
	}
	if _, err := machine.Complete(ctx, first.ID); err != nil {
		t.Fatalf("complete from processing: %v", err)
	}

	// Decline only applies to processing, not shipped.
	second, err := machine.Create(ctx, testBuyerID, "alice", slot.ID, "42")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := machine.ApprovePayment(ctx, second.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, _, err := machine.ChooseDelivery(ctx, second.ID, DeliveryPickup); err != nil {
		t.Fatalf("delivery: %v", err)
	}
	if _, err := machine.ConfirmShipment(ctx, second.ID); err != nil {
		t.Fatalf("ship: %v", err)
	}
	if _, err := machine.Decline(ctx, second.ID); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("decline after shipment: got %v", err)
	}
	if _, err := machine.Complete(ctx, second.ID); err != nil {
		t.Fatalf("complete from shipped: %v", err)
	}
}
