package store

import "time"

// DeletedSlotName is shown on historical orders whose slot was removed.
const DeletedSlotName = "(deleted slot)"

// User represents the users table row.
type User struct {
	ID          int64
	Username    string
	Buyer       bool
	ActiveSlots int
	CreatedAt   time.Time
}

// Slot represents a listing row. Sizes holds the serialized size set;
// parse it with the sizes package before mutating.
type Slot struct {
	ID          int64
	Name        string
	Photo       string
	Sizes       string
	Price       string
	OwnerID     *int64
	Description *string
	ChannelID   *int64
	MessageID   *int64
}

// Published reports whether the slot has a channel post reference.
func (s *Slot) Published() bool {
	return s.ChannelID != nil && s.MessageID != nil
}

// Order represents an orders table row.
type Order struct {
	ID        int64
	UserID    int64
	Username  *string
	SlotID    int64
	Size      *string
	Delivery  *string
	Address   *string
	Proof     *string
	Status    string
	CreatedAt time.Time
}

// OrderDetail is an order joined with its slot for display.
// SlotName degrades to DeletedSlotName when the slot row is gone.
type OrderDetail struct {
	Order
	SlotName  string
	SlotPrice string
}
