package gateway

import "fmt"

// Callback data builders shared by the dispatcher and the order machine.
// The matching parse lives in the convo package.

func CheckoutData(slotID int64) string {
	return fmt.Sprintf("checkout:%d", slotID)
}

func SizeData(slotID int64, size string) string {
	return fmt.Sprintf("size:%d:%s", slotID, size)
}

func ApprovePaymentData(orderID int64) string {
	return fmt.Sprintf("approve_payment:%d", orderID)
}

func RejectPaymentData(orderID int64) string {
	return fmt.Sprintf("reject_payment:%d", orderID)
}

func DeliveryData(method string, orderID int64) string {
	return fmt.Sprintf("delivery:%s:%d", method, orderID)
}

func ConfirmShipData(orderID int64) string {
	return fmt.Sprintf("admin_confirm:%d", orderID)
}

func AdminRejectData(orderID int64) string {
	return fmt.Sprintf("admin_reject:%d", orderID)
}

func OrderCompleteData(orderID int64) string {
	return fmt.Sprintf("order_complete:%d", orderID)
}

func OrderDeclineData(orderID int64) string {
	return fmt.Sprintf("order_decline:%d", orderID)
}

// CheckoutControls renders the single "order now" button under a slot card.
func CheckoutControls(slotID int64) *Controls {
	return (&Controls{}).Row(Button{Label: "🛒 Order", Data: CheckoutData(slotID)})
}

// SizeControls renders one button per available size.
func SizeControls(slotID int64, sizes []string) *Controls {
	c := &Controls{}
	for _, size := range sizes {
		c.Row(Button{Label: size, Data: SizeData(slotID, size)})
	}
	return c
}

// PaymentApprovalControls is attached to the proof forwarded to admins.
func PaymentApprovalControls(orderID int64) *Controls {
	return (&Controls{}).Row(
		Button{Label: "✅ Payment received", Data: ApprovePaymentData(orderID)},
		Button{Label: "❌ Not received", Data: RejectPaymentData(orderID)},
	)
}

// DeliveryControls offers the buyer the delivery method choice.
func DeliveryControls(orderID int64) *Controls {
	return (&Controls{}).
		Row(Button{Label: "🚚 Courier", Data: DeliveryData("courier", orderID)}).
		Row(Button{Label: "📦 Avito delivery", Data: DeliveryData("avito", orderID)}).
		Row(Button{Label: "🏬 Pickup", Data: DeliveryData("pickup", orderID)})
}

// FulfillmentControls is attached to the processing summary sent to admins.
func FulfillmentControls(orderID int64) *Controls {
	return (&Controls{}).Row(
		Button{Label: "✅ Shipped", Data: ConfirmShipData(orderID)},
		Button{Label: "❌ Decline", Data: AdminRejectData(orderID)},
	)
}

// OrderManageControls is attached to the admin order lookup card.
func OrderManageControls(orderID int64) *Controls {
	return (&Controls{}).Row(
		Button{Label: "✅ Complete", Data: OrderCompleteData(orderID)},
		Button{Label: "❌ Decline", Data: OrderDeclineData(orderID)},
	)
}
