package convo

import (
	"fmt"
	"strings"

	"slot-shop/internal/store"
)

// statusLabels maps raw order statuses to buyer-facing text.
var statusLabels = map[string]string{
	"pending":    "⏳ awaiting payment confirmation",
	"paid":       "💳 paid, choose delivery",
	"processing": "📦 being prepared",
	"shipped":    "🚚 shipped",
	"completed":  "✅ completed",
	"rejected":   "❌ payment rejected",
	"declined":   "❌ declined",
}

func statusLabel(status string) string {
	if label, ok := statusLabels[status]; ok {
		return label
	}
	return status
}

const helpText = `Commands:
/start — open the shop
/myorders — your orders
/help — this message

Questions? Contact support: %s`

const adminHelpText = `

Admin commands:
/slots — list slots
/slot <id> — slot detail
/addslot — add a slot step by step
/addsize <id> <size> — add a size back
/postslot <id> — publish the slot card to the channel
/delete_slot <id> — remove a slot
/reset_slots — wipe all slots
/order <id> — order card with controls
/orders — active orders
/all_orders — full order history
/check — registered users
/check_buyer — confirmed buyers`

func paymentInstructions(detail *store.OrderDetail, card, support string) string {
	return fmt.Sprintf(
		"Order #%d: %s, size %s.\n\nTransfer %s₽ to the card:\n%s\n\nThen send a photo or screenshot of the receipt here.\nSupport: %s",
		detail.ID, detail.SlotName, derefOr(detail.Size, "—"), detail.SlotPrice, card, support,
	)
}

func renderOrderLine(detail *store.OrderDetail) string {
	return fmt.Sprintf("#%d %s — %s — %s", detail.ID, detail.SlotName, derefOr(detail.Size, "—"), statusLabel(detail.Status))
}

func renderOrderCard(detail *store.OrderDetail) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Order #%d\n", detail.ID)
	fmt.Fprintf(&b, "Buyer: @%s (id %d)\n", derefOr(detail.Username, "—"), detail.UserID)
	fmt.Fprintf(&b, "Item: %s\n", detail.SlotName)
	fmt.Fprintf(&b, "Size: %s\n", derefOr(detail.Size, "—"))
	fmt.Fprintf(&b, "Price: %s₽\n", detail.SlotPrice)
	fmt.Fprintf(&b, "Delivery: %s\n", derefOr(detail.Delivery, "—"))
	fmt.Fprintf(&b, "Address: %s\n", derefOr(detail.Address, "—"))
	fmt.Fprintf(&b, "Status: %s", statusLabel(detail.Status))
	return b.String()
}

func renderSlotLine(slot *store.Slot) string {
	sizesText := slot.Sizes
	if sizesText == "" {
		sizesText = "sold out"
	}
	published := ""
	if slot.Published() {
		published = " [published]"
	}
	return fmt.Sprintf("#%d %s — %s₽ — sizes: %s%s", slot.ID, slot.Name, slot.Price, sizesText, published)
}

func derefOr(val *string, fallback string) string {
	if val == nil || *val == "" {
		return fallback
	}
	return *val
}
