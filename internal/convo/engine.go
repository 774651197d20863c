// Package convo turns inbound gateway events into shop actions: it
// routes commands and button presses, runs the multi-step checkout and
// add-slot conversations, and enforces the admin allow-list.
package convo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"slot-shop/internal/catalog"
	"slot-shop/internal/gateway"
	"slot-shop/internal/inventory"
	"slot-shop/internal/order"
	"slot-shop/internal/sizes"
	"slot-shop/internal/store"
)

// Settings carries the shop texts and the admin allow-list.
type Settings struct {
	AdminIDs       []int64
	PaymentCard    string
	SupportContact string
	PickupAddress  string
	CourierArea    string
}

// Engine implements gateway.Processor.
type Engine struct {
	store     store.Store
	machine   *order.Machine
	ledger    *inventory.Ledger
	publisher *catalog.Publisher
	sender    gateway.Sender
	states    *StateStore
	settings  Settings
	logger    *slog.Logger
	admins    map[int64]bool
}

// NewEngine wires the dispatcher.
func NewEngine(st store.Store, machine *order.Machine, ledger *inventory.Ledger, publisher *catalog.Publisher, sender gateway.Sender, states *StateStore, settings Settings, logger *slog.Logger) *Engine {
	admins := make(map[int64]bool, len(settings.AdminIDs))
	for _, id := range settings.AdminIDs {
		admins[id] = true
	}
	return &Engine{
		store:     st,
		machine:   machine,
		ledger:    ledger,
		publisher: publisher,
		sender:    sender,
		states:    states,
		settings:  settings,
		logger:    logger.With("component", "convo"),
		admins:    admins,
	}
}

// HandleEvent dispatches one inbound event. User mistakes (bad
// arguments, out-of-order button presses) are answered in chat and are
// not errors. Storage outages are also answered in chat as a transient
// failure; only unexpected failures propagate to the webhook.
func (e *Engine) HandleEvent(ctx context.Context, evt gateway.Event) error {
	err := e.dispatch(ctx, evt)
	if errors.Is(err, store.ErrUnavailable) {
		e.logger.Error("storage unavailable", "error", err, "event_id", evt.ID, "type", evt.Type)
		if replyErr := e.reply(ctx, evt, "Something went wrong on our side. Please try again in a minute.", nil); replyErr != nil {
			e.logger.Warn("transient failure reply failed", "error", replyErr, "event_id", evt.ID)
		}
		return nil
	}
	return err
}

func (e *Engine) dispatch(ctx context.Context, evt gateway.Event) error {
	switch evt.Type {
	case gateway.EventCommand:
		return e.handleCommand(ctx, evt)
	case gateway.EventButton:
		return e.handleButton(ctx, evt)
	case gateway.EventText:
		return e.handleText(ctx, evt)
	case gateway.EventPhoto:
		return e.handlePhoto(ctx, evt)
	default:
		e.logger.Warn("unknown event type", "type", evt.Type, "event_id", evt.ID)
		return nil
	}
}

func (e *Engine) isAdmin(userID int64) bool {
	return e.admins[userID]
}

// reply answers in the chat the event came from.
func (e *Engine) reply(ctx context.Context, evt gateway.Event, text string, controls *gateway.Controls) error {
	if _, err := e.sender.SendMessage(ctx, evt.ChatID, text, controls); err != nil {
		return fmt.Errorf("reply: %w", err)
	}
	return nil
}

// -- Commands --

func (e *Engine) handleCommand(ctx context.Context, evt gateway.Event) error {
	fields := strings.Fields(evt.Text)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "/start":
		return e.cmdStart(ctx, evt, args)
	case "/help":
		return e.cmdHelp(ctx, evt)
	case "/myorders":
		return e.cmdMyOrders(ctx, evt)
	}

	// Everything below is operator-only.
	if !e.isAdmin(evt.UserID) {
		switch cmd {
		case "/slots", "/slot", "/addslot", "/addsize", "/postslot",
			"/delete_slot", "/reset_slots", "/order", "/orders",
			"/all_orders", "/check", "/check_buyer":
			return e.reply(ctx, evt, "This command is for administrators.", nil)
		}
		return e.reply(ctx, evt, "Unknown command. Try /help.", nil)
	}

	switch cmd {
	case "/slots":
		return e.cmdSlots(ctx, evt)
	case "/slot":
		return e.cmdSlot(ctx, evt, args)
	case "/addslot":
		return e.cmdAddSlot(ctx, evt)
	case "/addsize":
		return e.cmdAddSize(ctx, evt, args)
	case "/postslot":
		return e.cmdPostSlot(ctx, evt, args)
	case "/delete_slot":
		return e.cmdDeleteSlot(ctx, evt, args)
	case "/reset_slots":
		return e.cmdResetSlots(ctx, evt)
	case "/order":
		return e.cmdOrder(ctx, evt, args)
	case "/orders":
		return e.cmdOrders(ctx, evt, false)
	case "/all_orders":
		return e.cmdOrders(ctx, evt, true)
	case "/check":
		return e.cmdCheck(ctx, evt, false)
	case "/check_buyer":
		return e.cmdCheck(ctx, evt, true)
	default:
		return e.reply(ctx, evt, "Unknown command. Try /help.", nil)
	}
}

// cmdStart greets the user, or jumps straight to a slot card when the
// deep link carries a slot id.
func (e *Engine) cmdStart(ctx context.Context, evt gateway.Event, args []string) error {
	if err := e.store.UpsertUser(ctx, evt.UserID, evt.Username); err != nil {
		return err
	}

	if len(args) > 0 {
		slotID, err := strconv.ParseInt(args[0], 10, 64)
		if err == nil {
			return e.showSlotCard(ctx, evt, slotID)
		}
	}

	text := "Welcome to the shop! Browse the channel and tap the order button under any item.\n\n" +
		fmt.Sprintf(helpText, e.settings.SupportContact)
	if e.isAdmin(evt.UserID) {
		text += adminHelpText
	}
	return e.reply(ctx, evt, text, nil)
}

func (e *Engine) cmdHelp(ctx context.Context, evt gateway.Event) error {
	text := fmt.Sprintf(helpText, e.settings.SupportContact)
	if e.isAdmin(evt.UserID) {
		text += adminHelpText
	}
	return e.reply(ctx, evt, text, nil)
}

func (e *Engine) cmdMyOrders(ctx context.Context, evt gateway.Event) error {
	details, err := e.store.ListUserOrders(ctx, evt.UserID)
	if err != nil {
		return err
	}
	if len(details) == 0 {
		return e.reply(ctx, evt, "You have no orders yet.", nil)
	}

	lines := make([]string, 0, len(details)+1)
	lines = append(lines, "Your orders:")
	for i := range details {
		lines = append(lines, renderOrderLine(&details[i]))
	}
	return e.reply(ctx, evt, strings.Join(lines, "\n"), nil)
}

func (e *Engine) cmdSlots(ctx context.Context, evt gateway.Event) error {
	slots, err := e.store.ListSlots(ctx)
	if err != nil {
		return err
	}
	if len(slots) == 0 {
		return e.reply(ctx, evt, "No slots. Use /addslot to create one.", nil)
	}

	lines := make([]string, 0, len(slots))
	for i := range slots {
		lines = append(lines, renderSlotLine(&slots[i]))
	}
	return e.reply(ctx, evt, strings.Join(lines, "\n"), nil)
}

func (e *Engine) cmdSlot(ctx context.Context, evt gateway.Event, args []string) error {
	slotID, ok := parseIDArg(args)
	if !ok {
		return e.reply(ctx, evt, "Usage: /slot <id>", nil)
	}

	slot, err := e.store.GetSlot(ctx, slotID)
	if errors.Is(err, store.ErrNotFound) {
		return e.reply(ctx, evt, fmt.Sprintf("Slot %d not found.", slotID), nil)
	}
	if err != nil {
		return err
	}

	if _, err := e.sender.SendPhoto(ctx, evt.ChatID, slot.Photo, catalog.RenderCaption(slot), nil); err != nil {
		return fmt.Errorf("send slot card: %w", err)
	}
	return e.reply(ctx, evt, renderSlotLine(slot), nil)
}

func (e *Engine) cmdAddSlot(ctx context.Context, evt gateway.Event) error {
	if err := e.states.Put(ctx, evt.UserID, &State{Stage: StageSlotName}); err != nil {
		return err
	}
	return e.reply(ctx, evt, "New slot. Send the item name:", nil)
}

func (e *Engine) cmdAddSize(ctx context.Context, evt gateway.Event, args []string) error {
	if len(args) < 2 {
		return e.reply(ctx, evt, "Usage: /addsize <slot id> <size>", nil)
	}
	slotID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return e.reply(ctx, evt, "Usage: /addsize <slot id> <size>", nil)
	}
	size := args[1]

	slot, changed, err := e.ledger.AddSize(ctx, slotID, size)
	if errors.Is(err, store.ErrNotFound) {
		return e.reply(ctx, evt, fmt.Sprintf("Slot %d not found.", slotID), nil)
	}
	if err != nil {
		return err
	}
	if !changed {
		return e.reply(ctx, evt, fmt.Sprintf("Size %s is already listed for %s.", size, slot.Name), nil)
	}

	if err := e.publisher.Refresh(ctx, slot); err != nil {
		e.logger.Warn("channel post refresh failed", "error", err, "slot_id", slot.ID)
	}
	return e.reply(ctx, evt, fmt.Sprintf("Size %s added to %s. Sizes now: %s", size, slot.Name, slot.Sizes), nil)
}

func (e *Engine) cmdPostSlot(ctx context.Context, evt gateway.Event, args []string) error {
	slotID, ok := parseIDArg(args)
	if !ok {
		return e.reply(ctx, evt, "Usage: /postslot <id>", nil)
	}

	slot, err := e.store.GetSlot(ctx, slotID)
	if errors.Is(err, store.ErrNotFound) {
		return e.reply(ctx, evt, fmt.Sprintf("Slot %d not found.", slotID), nil)
	}
	if err != nil {
		return err
	}

	if err := e.publisher.Publish(ctx, slot); err != nil {
		return err
	}
	return e.reply(ctx, evt, fmt.Sprintf("Slot %d posted to the channel.", slotID), nil)
}

func (e *Engine) cmdDeleteSlot(ctx context.Context, evt gateway.Event, args []string) error {
	slotID, ok := parseIDArg(args)
	if !ok {
		return e.reply(ctx, evt, "Usage: /delete_slot <id>", nil)
	}

	slot, err := e.store.GetSlot(ctx, slotID)
	if errors.Is(err, store.ErrNotFound) {
		return e.reply(ctx, evt, fmt.Sprintf("Slot %d not found.", slotID), nil)
	}
	if err != nil {
		return err
	}

	// The channel post removal is best effort; the row goes regardless.
	if err := e.publisher.Remove(ctx, slot); err != nil {
		e.logger.Warn("channel post removal failed", "error", err, "slot_id", slot.ID)
	}
	if err := e.store.DeleteSlot(ctx, slotID); err != nil {
		return err
	}
	return e.reply(ctx, evt, fmt.Sprintf("Slot %d deleted. Past orders keep their history.", slotID), nil)
}

func (e *Engine) cmdResetSlots(ctx context.Context, evt gateway.Event) error {
	if err := e.store.ResetSlots(ctx); err != nil {
		return err
	}
	return e.reply(ctx, evt, "All slots removed. Numbering restarts at 1.", nil)
}

func (e *Engine) cmdOrder(ctx context.Context, evt gateway.Event, args []string) error {
	orderID, ok := parseIDArg(args)
	if !ok {
		return e.reply(ctx, evt, "Usage: /order <id>", nil)
	}

	detail, err := e.store.GetOrder(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return e.reply(ctx, evt, fmt.Sprintf("Order %d not found.", orderID), nil)
	}
	if err != nil {
		return err
	}
	return e.reply(ctx, evt, renderOrderCard(detail), gateway.OrderManageControls(orderID))
}

func (e *Engine) cmdOrders(ctx context.Context, evt gateway.Event, all bool) error {
	var (
		details []store.OrderDetail
		err     error
		empty   string
	)
	if all {
		details, err = e.store.ListOrderHistory(ctx)
		empty = "No orders yet."
	} else {
		details, err = e.store.ListActiveOrders(ctx)
		empty = "No active orders."
	}
	if err != nil {
		return err
	}
	if len(details) == 0 {
		return e.reply(ctx, evt, empty, nil)
	}

	lines := make([]string, 0, len(details))
	for i := range details {
		lines = append(lines, renderOrderLine(&details[i]))
	}
	return e.reply(ctx, evt, strings.Join(lines, "\n"), nil)
}

func (e *Engine) cmdCheck(ctx context.Context, evt gateway.Event, buyersOnly bool) error {
	var (
		users []store.User
		err   error
	)
	if buyersOnly {
		users, err = e.store.ListBuyers(ctx)
	} else {
		users, err = e.store.ListUsers(ctx)
	}
	if err != nil {
		return err
	}
	if len(users) == 0 {
		return e.reply(ctx, evt, "Nobody here yet.", nil)
	}

	lines := make([]string, 0, len(users))
	for _, u := range users {
		lines = append(lines, fmt.Sprintf("@%s (id %d) — active orders: %d", u.Username, u.ID, u.ActiveSlots))
	}
	return e.reply(ctx, evt, strings.Join(lines, "\n"), nil)
}

// -- Buttons --

func (e *Engine) handleButton(ctx context.Context, evt gateway.Event) error {
	parts := strings.Split(evt.Data, ":")
	if len(parts) < 2 {
		e.logger.Warn("malformed button data", "data", evt.Data, "event_id", evt.ID)
		return nil
	}

	switch parts[0] {
	case "checkout":
		return e.btnCheckout(ctx, evt, parts[1:])
	case "size":
		return e.btnSize(ctx, evt, parts[1:])
	case "delivery":
		return e.btnDelivery(ctx, evt, parts[1:])
	case "approve_payment", "reject_payment", "admin_confirm", "admin_reject", "order_complete", "order_decline":
		return e.btnAdminAction(ctx, evt, parts[0], parts[1:])
	default:
		e.logger.Warn("unknown button action", "data", evt.Data, "event_id", evt.ID)
		return nil
	}
}

func (e *Engine) btnCheckout(ctx context.Context, evt gateway.Event, args []string) error {
	slotID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return nil
	}

	slot, err := e.store.GetSlot(ctx, slotID)
	if errors.Is(err, store.ErrNotFound) {
		return e.reply(ctx, evt, "This item is no longer available.", nil)
	}
	if err != nil {
		return err
	}

	set := sizes.Parse(slot.Sizes)
	if set.Len() == 0 {
		return e.reply(ctx, evt, fmt.Sprintf("%s is sold out.", slot.Name), nil)
	}
	text := fmt.Sprintf("%s — %s₽\nPick your size:", slot.Name, slot.Price)
	return e.reply(ctx, evt, text, gateway.SizeControls(slot.ID, set.Values()))
}

func (e *Engine) btnSize(ctx context.Context, evt gateway.Event, args []string) error {
	if len(args) < 2 {
		return nil
	}
	slotID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return nil
	}
	// Size labels may themselves contain the separator ("EU:42").
	size := strings.Join(args[1:], ":")

	created, err := e.machine.Create(ctx, evt.UserID, evt.Username, slotID, size)
	switch {
	case errors.Is(err, order.ErrSizeUnavailable):
		return e.reply(ctx, evt, "That size just sold out. Pick another one.", nil)
	case errors.Is(err, store.ErrNotFound):
		return e.reply(ctx, evt, "This item is no longer available.", nil)
	case err != nil:
		return err
	}

	detail, err := e.store.GetOrder(ctx, created.ID)
	if err != nil {
		return err
	}
	if err := e.states.Put(ctx, evt.UserID, &State{Stage: StageAwaitingProof, OrderID: created.ID}); err != nil {
		return err
	}
	return e.reply(ctx, evt, paymentInstructions(detail, e.settings.PaymentCard, e.settings.SupportContact), nil)
}

func (e *Engine) btnDelivery(ctx context.Context, evt gateway.Event, args []string) error {
	if len(args) < 2 {
		return nil
	}
	method := order.DeliveryMethod(args[0])
	orderID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return nil
	}

	// Delivery buttons are sent to the buyer; refuse presses from anyone
	// else (forwarded messages, stale chats).
	existing, err := e.store.GetOrder(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return e.reply(ctx, evt, "Order not found.", nil)
	}
	if err != nil {
		return err
	}
	if existing.UserID != evt.UserID {
		return e.reply(ctx, evt, "This order belongs to another user.", nil)
	}

	detail, needsAddress, err := e.machine.ChooseDelivery(ctx, orderID, method)
	if errors.Is(err, order.ErrIllegalTransition) {
		return e.reply(ctx, evt, "This order is not awaiting a delivery choice.", nil)
	}
	if errors.Is(err, order.ErrUnknownDelivery) {
		return nil
	}
	if err != nil {
		return err
	}

	if needsAddress {
		if err := e.states.Put(ctx, evt.UserID, &State{Stage: StageAwaitingAddress, OrderID: orderID}); err != nil {
			return err
		}
		return e.reply(ctx, evt, fmt.Sprintf("Courier delivery within %s.\nSend your address:", e.settings.CourierArea), nil)
	}
	return e.reply(ctx, evt, e.deliveryConfirmation(method, detail), nil)
}

func (e *Engine) deliveryConfirmation(method order.DeliveryMethod, detail *store.OrderDetail) string {
	switch method {
	case order.DeliveryAvito:
		return fmt.Sprintf("Avito delivery it is. We will set up the listing and send you the link.\nOrder #%d is being prepared. Support: %s", detail.ID, e.settings.SupportContact)
	case order.DeliveryPickup:
		return fmt.Sprintf("Pickup point: %s.\nOrder #%d is being prepared, we will message you when it is ready.", e.settings.PickupAddress, detail.ID)
	default:
		return fmt.Sprintf("Order #%d is being prepared.", detail.ID)
	}
}

// btnAdminAction handles the moderation buttons attached to the cards
// forwarded to admins.
func (e *Engine) btnAdminAction(ctx context.Context, evt gateway.Event, action string, args []string) error {
	if !e.isAdmin(evt.UserID) {
		return e.reply(ctx, evt, "This action is for administrators.", nil)
	}
	orderID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return nil
	}

	var (
		detail *store.OrderDetail
		ack    string
	)
	switch action {
	case "approve_payment":
		detail, err = e.machine.ApprovePayment(ctx, orderID)
		ack = "Payment confirmed, the buyer is choosing delivery."
	case "reject_payment":
		detail, err = e.machine.RejectPayment(ctx, orderID)
		ack = "Payment rejected, the buyer has been told."
	case "admin_confirm":
		detail, err = e.machine.ConfirmShipment(ctx, orderID)
		ack = "Marked as shipped."
	case "admin_reject", "order_decline":
		detail, err = e.machine.Decline(ctx, orderID)
		ack = "Order declined, the buyer has been told."
	case "order_complete":
		detail, err = e.machine.Complete(ctx, orderID)
		ack = "Order completed."
	}

	var illegal *order.IllegalTransitionError
	switch {
	case errors.As(err, &illegal):
		return e.reply(ctx, evt, fmt.Sprintf("Order %d is %s; this action no longer applies.", illegal.OrderID, illegal.From), nil)
	case errors.Is(err, store.ErrNotFound):
		return e.reply(ctx, evt, "Order not found.", nil)
	case err != nil:
		return err
	}

	if action == "admin_confirm" {
		// The machine keeps shipment silent; tell the buyer here.
		if _, err := e.sender.SendMessage(ctx, detail.UserID, fmt.Sprintf("🚚 Your order #%d has been shipped!", detail.ID), nil); err != nil {
			e.logger.Warn("buyer notification failed", "error", err, "order_id", detail.ID)
		}
	}
	return e.reply(ctx, evt, ack, nil)
}

// -- Free-form text (conversation steps) --

func (e *Engine) handleText(ctx context.Context, evt gateway.Event) error {
	state, found, err := e.states.Get(ctx, evt.UserID)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}

	switch state.Stage {
	case StageAwaitingAddress:
		return e.stepAddress(ctx, evt, state)
	case StageAwaitingProof:
		return e.reply(ctx, evt, "Send the receipt as a photo, please.", nil)
	case StageSlotName, StageSlotPrice, StageSlotPhoto, StageSlotSizes, StageSlotDescription:
		return e.stepAddSlot(ctx, evt, state)
	default:
		e.logger.Warn("unknown conversation stage", "stage", state.Stage, "user_id", evt.UserID)
		return e.states.Clear(ctx, evt.UserID)
	}
}

func (e *Engine) stepAddress(ctx context.Context, evt gateway.Event, state *State) error {
	address := strings.TrimSpace(evt.Text)
	if address == "" {
		return e.reply(ctx, evt, "Send your delivery address as text.", nil)
	}

	detail, err := e.machine.ProvideAddress(ctx, state.OrderID, address)
	if errors.Is(err, order.ErrIllegalTransition) {
		if clearErr := e.states.Clear(ctx, evt.UserID); clearErr != nil {
			return clearErr
		}
		return e.reply(ctx, evt, "This order is not awaiting an address anymore.", nil)
	}
	if err != nil {
		return err
	}

	if err := e.states.Clear(ctx, evt.UserID); err != nil {
		return err
	}
	return e.reply(ctx, evt, fmt.Sprintf("Address saved. Order #%d is being prepared for courier delivery.", detail.ID), nil)
}

// stepAddSlot advances the operator's add-slot conversation one answer
// at a time.
func (e *Engine) stepAddSlot(ctx context.Context, evt gateway.Event, state *State) error {
	if !e.isAdmin(evt.UserID) {
		return e.states.Clear(ctx, evt.UserID)
	}
	text := strings.TrimSpace(evt.Text)

	switch state.Stage {
	case StageSlotName:
		if text == "" {
			return e.reply(ctx, evt, "Send the item name as text.", nil)
		}
		state.Draft.Name = text
		state.Stage = StageSlotPrice
		if err := e.states.Put(ctx, evt.UserID, state); err != nil {
			return err
		}
		return e.reply(ctx, evt, "Price in rubles (numbers only):", nil)

	case StageSlotPrice:
		price, err := decimal.NewFromString(strings.ReplaceAll(text, ",", "."))
		if err != nil || price.IsNegative() || price.IsZero() {
			return e.reply(ctx, evt, "That does not look like a price. Send a positive number, e.g. 4500 or 4500.50:", nil)
		}
		state.Draft.Price = price.String()
		state.Stage = StageSlotPhoto
		if err := e.states.Put(ctx, evt.UserID, state); err != nil {
			return err
		}
		return e.reply(ctx, evt, "Now send the item photo:", nil)

	case StageSlotPhoto:
		return e.reply(ctx, evt, "Send the item photo as an image.", nil)

	case StageSlotSizes:
		set := sizes.Parse(text)
		if set.Len() == 0 {
			return e.reply(ctx, evt, "List the sizes separated by commas, e.g. 40,41,42:", nil)
		}
		state.Draft.Sizes = set.String()
		state.Stage = StageSlotDescription
		if err := e.states.Put(ctx, evt.UserID, state); err != nil {
			return err
		}
		return e.reply(ctx, evt, "Finally, a short description (or a dash for none):", nil)

	case StageSlotDescription:
		return e.finishAddSlot(ctx, evt, state, text)
	}
	return nil
}

func (e *Engine) finishAddSlot(ctx context.Context, evt gateway.Event, state *State, descriptionText string) error {
	// owner_id references users; make sure the admin has a row before
	// the insert.
	if err := e.store.UpsertUser(ctx, evt.UserID, evt.Username); err != nil {
		return err
	}

	slot := store.Slot{
		Name:    state.Draft.Name,
		Photo:   state.Draft.Photo,
		Sizes:   state.Draft.Sizes,
		Price:   state.Draft.Price,
		OwnerID: &evt.UserID,
	}
	if descriptionText != "" && descriptionText != "-" {
		slot.Description = &descriptionText
	}

	created, err := e.store.InsertSlot(ctx, slot)
	if err != nil {
		return err
	}
	if err := e.states.Clear(ctx, evt.UserID); err != nil {
		return err
	}
	return e.reply(ctx, evt, fmt.Sprintf("Slot #%d %s created. Publish it with /postslot %d.", created.ID, created.Name, created.ID), nil)
}

// -- Photos --

func (e *Engine) handlePhoto(ctx context.Context, evt gateway.Event) error {
	state, found, err := e.states.Get(ctx, evt.UserID)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}

	switch state.Stage {
	case StageAwaitingProof:
		return e.stepProof(ctx, evt, state)
	case StageSlotPhoto:
		if !e.isAdmin(evt.UserID) {
			return e.states.Clear(ctx, evt.UserID)
		}
		state.Draft.Photo = evt.PhotoRef
		state.Stage = StageSlotSizes
		if err := e.states.Put(ctx, evt.UserID, state); err != nil {
			return err
		}
		return e.reply(ctx, evt, "Sizes, separated by commas (e.g. 40,41,42):", nil)
	default:
		return nil
	}
}

func (e *Engine) stepProof(ctx context.Context, evt gateway.Event, state *State) error {
	_, err := e.machine.AttachProof(ctx, state.OrderID, evt.PhotoRef)
	if errors.Is(err, order.ErrIllegalTransition) {
		if clearErr := e.states.Clear(ctx, evt.UserID); clearErr != nil {
			return clearErr
		}
		return e.reply(ctx, evt, "This order is no longer awaiting a receipt.", nil)
	}
	if err != nil {
		return err
	}

	// The receipt lives on with the admins; drop the buyer's copy from
	// the chat, best effort.
	if err := e.sender.DeleteMessage(ctx, evt.ChatID, evt.MessageID); err != nil {
		e.logger.Warn("proof message cleanup failed", "error", err, "order_id", state.OrderID)
	}

	if err := e.states.Clear(ctx, evt.UserID); err != nil {
		return err
	}
	return e.reply(ctx, evt, "Receipt received and sent for review. We will notify you once it is confirmed.", nil)
}

// showSlotCard sends the slot card with a checkout button, used by the
// deep-link start.
func (e *Engine) showSlotCard(ctx context.Context, evt gateway.Event, slotID int64) error {
	slot, err := e.store.GetSlot(ctx, slotID)
	if errors.Is(err, store.ErrNotFound) {
		return e.reply(ctx, evt, "This item is no longer available.", nil)
	}
	if err != nil {
		return err
	}
	if _, err := e.sender.SendPhoto(ctx, evt.ChatID, slot.Photo, catalog.RenderCaption(slot), gateway.CheckoutControls(slot.ID)); err != nil {
		return fmt.Errorf("send slot card: %w", err)
	}
	return nil
}

func parseIDArg(args []string) (int64, bool) {
	if len(args) == 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
