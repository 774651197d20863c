package convo

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"slot-shop/internal/cache"
	"slot-shop/internal/catalog"
	"slot-shop/internal/gateway"
	"slot-shop/internal/inventory"
	"slot-shop/internal/logging"
	"slot-shop/internal/metrics"
	"slot-shop/internal/order"
	"slot-shop/internal/store"
	"slot-shop/migrations"
)

const (
	adminID = int64(900)
	buyerID = int64(100)
	channel = int64(-500)
)

type sent struct {
	recipient int64
	text      string
	photoRef  string
	controls  *gateway.Controls
}

type fakeSender struct {
	messages []sent
	nextID   int64
}

func (f *fakeSender) SendMessage(_ context.Context, recipientID int64, text string, controls *gateway.Controls) (int64, error) {
	f.nextID++
	f.messages = append(f.messages, sent{recipient: recipientID, text: text, controls: controls})
	return f.nextID, nil
}

func (f *fakeSender) SendPhoto(_ context.Context, recipientID int64, photoRef, caption string, controls *gateway.Controls) (int64, error) {
	f.nextID++
	f.messages = append(f.messages, sent{recipient: recipientID, text: caption, photoRef: photoRef, controls: controls})
	return f.nextID, nil
}

func (f *fakeSender) EditMessage(context.Context, int64, int64, string, *gateway.Controls) error {
	return nil
}

func (f *fakeSender) DeleteMessage(context.Context, int64, int64) error {
	return nil
}

func (f *fakeSender) last() sent {
	if len(f.messages) == 0 {
		return sent{}
	}
	return f.messages[len(f.messages)-1]
}

func (f *fakeSender) lastTo(recipient int64) (sent, bool) {
	for i := len(f.messages) - 1; i >= 0; i-- {
		if f.messages[i].recipient == recipient {
			return f.messages[i], true
		}
	}
	return sent{}, false
}

func newTestEngine(t *testing.T) (*Engine, store.Store, *fakeSender) {
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

	mini := miniredis.RunT(t)
	redisWrap := cache.FromClient(redis.NewClient(&redis.Options{Addr: mini.Addr()}), logger)
	t.Cleanup(func() { redisWrap.Close() })

	sender := &fakeSender{}
	reg := metrics.Registry("convotest")
	publisher := catalog.New(st, sender, channel, logger, reg)
	ledger := inventory.New(st, logger)
	machine := order.New(st, ledger, sender, publisher, order.Config{AdminIDs: []int64{adminID}}, logger, reg)
	states := NewStateStore(redisWrap, 30*time.Minute)

	settings := Settings{
		AdminIDs:       []int64{adminID},
		PaymentCard:    "0000 1111 2222 3333",
		SupportContact: "@support",
		PickupAddress:  "Main st 1",
		CourierArea:    "Moscow",
	}
	return NewEngine(st, machine, ledger, publisher, sender, states, settings, logger), st, sender
}

func command(userID int64, text string) gateway.Event {
	return gateway.Event{Type: gateway.EventCommand, UserID: userID, Username: "user", ChatID: userID, Text: text}
}

func button(userID int64, data string) gateway.Event {
	return gateway.Event{Type: gateway.EventButton, UserID: userID, Username: "user", ChatID: userID, Data: data}
}

func textMsg(userID int64, text string) gateway.Event {
	return gateway.Event{Type: gateway.EventText, UserID: userID, Username: "user", ChatID: userID, Text: text}
}

func photoMsg(userID int64, ref string) gateway.Event {
	return gateway.Event{Type: gateway.EventPhoto, UserID: userID, Username: "user", ChatID: userID, MessageID: 77, PhotoRef: ref}
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

func TestStateStoreRoundTrip(t *testing.T) {
	logger := logging.NewLoggerTo(io.Discard, "error")
	mini := miniredis.RunT(t)
	redisWrap := cache.FromClient(redis.NewClient(&redis.Options{Addr: mini.Addr()}), logger)
	defer redisWrap.Close()

	states := NewStateStore(redisWrap, time.Minute)
	ctx := context.Background()

	if _, found, err := states.Get(ctx, 1); err != nil || found {
		t.Fatalf("fresh get: found=%v err=%v", found, err)
	}

	want := &State{Stage: StageAwaitingProof, OrderID: 42}
	if err := states.Put(ctx, 1, want); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, found, err := states.Get(ctx, 1)
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if got.Stage != want.Stage || got.OrderID != want.OrderID {
		t.Fatalf("got %+v, want %+v", got, want)
	}

	// State expires with the TTL.
	mini.FastForward(2 * time.Minute)
	if _, found, _ := states.Get(ctx, 1); found {
		t.Fatal("state must expire after the TTL")
	}

	if err := states.Clear(ctx, 1); err != nil {
		t.Fatalf("clear absent: %v", err)
	}
}

func TestAdminCommandDeniedVisibly(t *testing.T) {
	engine, _, sender := newTestEngine(t)
	ctx := context.Background()

	if err := engine.HandleEvent(ctx, command(buyerID, "/orders")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !strings.Contains(sender.last().text, "administrators") {
		t.Fatalf("denial not visible: %q", sender.last().text)
	}

	// Moderation buttons are covered by the same allow-list.
	if err := engine.HandleEvent(ctx, button(buyerID, "approve_payment:1")); err != nil {
		t.Fatalf("handle button: %v", err)
	}
	if !strings.Contains(sender.last().text, "administrators") {
		t.Fatalf("button denial not visible: %q", sender.last().text)
	}
}

func TestDeepLinkStartShowsSlotCard(t *testing.T) {
	engine, st, sender := newTestEngine(t)
	slot := seedSlot(t, st, "41,42")

	if err := engine.HandleEvent(context.Background(), command(buyerID, fmt.Sprintf("/start %d", slot.ID))); err != nil {
		t.Fatalf("handle: %v", err)
	}
	last := sender.last()
	if last.photoRef != "photo-abc" {
		t.Fatalf("expected the slot photo, got %+v", last)
	}
	if last.controls == nil || len(last.controls.Rows) == 0 {
		t.Fatal("slot card must carry a checkout button")
	}
}

func TestFullCheckoutConversation(t *testing.T) {
	engine, st, sender := newTestEngine(t)
	ctx := context.Background()
	slot := seedSlot(t, st, "41,42")

	if err := engine.HandleEvent(ctx, command(buyerID, "/start")); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Checkout button offers the sizes.
	if err := engine.HandleEvent(ctx, button(buyerID, gateway.CheckoutData(slot.ID))); err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if got := sender.last(); got.controls == nil || len(got.controls.Rows) != 2 {
		t.Fatalf("expected one button per size, got %+v", got.controls)
	}

	// Size pick creates the order and sends the payment requisites.
	if err := engine.HandleEvent(ctx, button(buyerID, gateway.SizeData(slot.ID, "42"))); err != nil {
		t.Fatalf("size: %v", err)
	}
	if !strings.Contains(sender.last().text, "0000 1111 2222 3333") {
		t.Fatalf("payment requisites missing: %q", sender.last().text)
	}

	// Receipt photo is forwarded to the admin.
	if err := engine.HandleEvent(ctx, photoMsg(buyerID, "receipt-1")); err != nil {
		t.Fatalf("proof: %v", err)
	}
	adminMsg, ok := sender.lastTo(adminID)
	if !ok || adminMsg.photoRef != "receipt-1" {
		t.Fatalf("receipt not forwarded: %+v", adminMsg)
	}

	// Admin approves; buyer is offered delivery methods.
	if err := engine.HandleEvent(ctx, button(adminID, gateway.ApprovePaymentData(1))); err != nil {
		t.Fatalf("approve: %v", err)
	}
	buyerMsg, ok := sender.lastTo(buyerID)
	if !ok || buyerMsg.controls == nil || len(buyerMsg.controls.Rows) != 3 {
		t.Fatalf("delivery choice not offered: %+v", buyerMsg)
	}

	// Courier asks for an address before the order starts processing.
	if err := engine.HandleEvent(ctx, button(buyerID, gateway.DeliveryData("courier", 1))); err != nil {
		t.Fatalf("delivery: %v", err)
	}
	detail, err := st.GetOrder(ctx, 1)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if detail.Status != "paid" {
		t.Fatalf("status = %q before address, want paid", detail.Status)
	}

	if err := engine.HandleEvent(ctx, textMsg(buyerID, "Lenina 1")); err != nil {
		t.Fatalf("address: %v", err)
	}
	detail, err = st.GetOrder(ctx, 1)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if detail.Status != "processing" {
		t.Fatalf("status = %q after address, want processing", detail.Status)
	}

	// The chosen size is gone from the catalog.
	after, err := st.GetSlot(ctx, slot.ID)
	if err != nil {
		t.Fatalf("get slot: %v", err)
	}
	if after.Sizes != "41" {
		t.Fatalf("sizes = %q, want 41", after.Sizes)
	}

	// Ship and complete through the admin buttons.
	if err := engine.HandleEvent(ctx, button(adminID, gateway.ConfirmShipData(1))); err != nil {
		t.Fatalf("ship: %v", err)
	}
	if err := engine.HandleEvent(ctx, button(adminID, gateway.OrderCompleteData(1))); err != nil {
		t.Fatalf("complete: %v", err)
	}
	detail, err = st.GetOrder(ctx, 1)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if detail.Status != "completed" {
		t.Fatalf("status = %q, want completed", detail.Status)
	}
}

func TestStaleAdminButtonGetsFriendlyReply(t *testing.T) {
	engine, st, sender := newTestEngine(t)
	ctx := context.Background()
	slot := seedSlot(t, st, "42")

	if err := engine.HandleEvent(ctx, button(buyerID, gateway.SizeData(slot.ID, "42"))); err != nil {
		t.Fatalf("size: %v", err)
	}
	if err := engine.HandleEvent(ctx, button(adminID, gateway.ApprovePaymentData(1))); err != nil {
		t.Fatalf("approve: %v", err)
	}
	// Second press of the same approval button.
	if err := engine.HandleEvent(ctx, button(adminID, gateway.ApprovePaymentData(1))); err != nil {
		t.Fatalf("stale approve: %v", err)
	}
	adminMsg, _ := sender.lastTo(adminID)
	if !strings.Contains(adminMsg.text, "no longer applies") {
		t.Fatalf("stale press reply = %q", adminMsg.text)
	}
}

func TestAddSlotConversation(t *testing.T) {
	engine, st, sender := newTestEngine(t)
	ctx := context.Background()

	steps := []gateway.Event{
		command(adminID, "/addslot"),
		textMsg(adminID, "Winter Parka"),
		textMsg(adminID, "not-a-price"),
		textMsg(adminID, "7990.50"),
		photoMsg(adminID, "parka-photo"),
		textMsg(adminID, "S, M, M, L"),
		textMsg(adminID, "Warm and waterproof"),
	}
	for _, evt := range steps {
		if err := engine.HandleEvent(ctx, evt); err != nil {
			t.Fatalf("step %q/%q: %v", evt.Text, evt.PhotoRef, err)
		}
	}

	slots, err := st.ListSlots(ctx)
	if err != nil {
		t.Fatalf("list slots: %v", err)
	}
	if len(slots) != 1 {
		t.Fatalf("slots = %d, want 1", len(slots))
	}
	slot := slots[0]
	if slot.Name != "Winter Parka" || slot.Price != "7990.5" {
		t.Fatalf("slot = %+v", slot)
	}
	if slot.Sizes != "S,M,L" {
		t.Fatalf("sizes = %q, duplicates must be dropped", slot.Sizes)
	}
	if slot.Description == nil || *slot.Description != "Warm and waterproof" {
		t.Fatalf("description = %v", slot.Description)
	}
	if !strings.Contains(sender.last().text, "/postslot") {
		t.Fatalf("final reply = %q", sender.last().text)
	}

	// The owner reference must resolve: the admin's user row is created
	// as part of the flow.
	if slot.OwnerID == nil || *slot.OwnerID != adminID {
		t.Fatalf("owner = %v, want %d", slot.OwnerID, adminID)
	}
	if _, err := st.GetUser(ctx, adminID); err != nil {
		t.Fatalf("admin user row missing: %v", err)
	}
}

func TestSizeLabelWithSeparator(t *testing.T) {
	engine, st, sender := newTestEngine(t)
	ctx := context.Background()
	slot, err := st.InsertSlot(ctx, store.Slot{
		Name:  "Runner 2000",
		Photo: "photo-abc",
		Sizes: "EU:42,EU:43",
		Price: "4500",
	})
	if err != nil {
		t.Fatalf("insert slot: %v", err)
	}

	if err := engine.HandleEvent(ctx, button(buyerID, gateway.SizeData(slot.ID, "EU:42"))); err != nil {
		t.Fatalf("size: %v", err)
	}
	if !strings.Contains(sender.last().text, "size EU:42") {
		t.Fatalf("reply = %q, order must carry the full label", sender.last().text)
	}

	detail, err := st.GetOrder(ctx, 1)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if detail.Size == nil || *detail.Size != "EU:42" {
		t.Fatalf("size = %v, want EU:42", detail.Size)
	}
}

func TestCheckoutSoldOutSlot(t *testing.T) {
	engine, st, sender := newTestEngine(t)
	slot := seedSlot(t, st, "")

	if err := engine.HandleEvent(context.Background(), button(buyerID, gateway.CheckoutData(slot.ID))); err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if !strings.Contains(sender.last().text, "sold out") {
		t.Fatalf("reply = %q", sender.last().text)
	}
}

func TestDeliveryButtonOwnership(t *testing.T) {
	engine, st, sender := newTestEngine(t)
	ctx := context.Background()
	slot := seedSlot(t, st, "42")

	if err := engine.HandleEvent(ctx, button(buyerID, gateway.SizeData(slot.ID, "42"))); err != nil {
		t.Fatalf("size: %v", err)
	}
	if err := engine.HandleEvent(ctx, button(adminID, gateway.ApprovePaymentData(1))); err != nil {
		t.Fatalf("approve: %v", err)
	}

	stranger := int64(555)
	if err := engine.HandleEvent(ctx, button(stranger, gateway.DeliveryData("pickup", 1))); err != nil {
		t.Fatalf("stranger delivery: %v", err)
	}
	msg, _ := sender.lastTo(stranger)
	if !strings.Contains(msg.text, "another user") {
		t.Fatalf("reply = %q", msg.text)
	}

	detail, err := st.GetOrder(ctx, 1)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if detail.Status != "paid" {
		t.Fatalf("status = %q, a stranger's press must not transition", detail.Status)
	}
}
