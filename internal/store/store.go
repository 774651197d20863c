// Package store provides durable access to the users, slots and orders
// relations behind a single interface with SQLite and Postgres backends.
package store

import (
	"context"
	"errors"
	"io/fs"
)

var (
	// ErrNotFound marks lookups for absent users, slots or orders.
	ErrNotFound = errors.New("not found")
	// ErrUnavailable marks storage I/O failures; callers surface these as
	// transient, user-visible "try again" conditions.
	ErrUnavailable = errors.New("storage unavailable")
)

// Store defines the persistence contract shared by both backends.
// All writes commit synchronously; reads return detached snapshots.
type Store interface {
	// Lifecycle
	Close()
	Ping(ctx context.Context) error
	Migrate(ctx context.Context, filesystem fs.FS) error

	// Users
	UpsertUser(ctx context.Context, id int64, username string) error
	GetUser(ctx context.Context, id int64) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
	ListBuyers(ctx context.Context) ([]User, error)
	MarkBuyer(ctx context.Context, id int64) error
	// AdjustActiveSlots adds delta to the user's active slot counter,
	// flooring the result at zero.
	AdjustActiveSlots(ctx context.Context, id int64, delta int) error

	// Slots
	InsertSlot(ctx context.Context, slot Slot) (*Slot, error)
	GetSlot(ctx context.Context, id int64) (*Slot, error)
	ListSlots(ctx context.Context) ([]Slot, error)
	RenameSlot(ctx context.Context, id int64, name string) error
	RepriceSlot(ctx context.Context, id int64, price string) error
	RephotoSlot(ctx context.Context, id int64, photo string) error
	RedescribeSlot(ctx context.Context, id int64, description string) error
	// SwapSlotSizes replaces the serialized size set only if it still
	// equals old (compare-and-swap). It reports whether the swap applied.
	SwapSlotSizes(ctx context.Context, id int64, old, new string) (bool, error)
	SetSlotPost(ctx context.Context, id int64, channelID, messageID int64) error
	DeleteSlot(ctx context.Context, id int64) error
	ResetSlots(ctx context.Context) error

	// Orders
	// CreateOrder inserts the row and increments the buyer's active slot
	// counter in one transaction.
	CreateOrder(ctx context.Context, userID int64, username string, slotID int64, size string) (*Order, error)
	GetOrder(ctx context.Context, id int64) (*OrderDetail, error)
	// TransitionOrder sets status to next only while the current status is
	// one of from. It reports whether the update applied.
	TransitionOrder(ctx context.Context, id int64, from []string, next string) (bool, error)
	// CompleteOrder sets status to completed only while the current status
	// is one of from, and in the same transaction decrements the buyer's
	// active slot counter (floored at zero) and sets the buyer flag. It
	// reports whether the update applied.
	CompleteOrder(ctx context.Context, id int64, from []string) (bool, error)
	SetOrderProof(ctx context.Context, id int64, proof string) error
	SetOrderDelivery(ctx context.Context, id int64, delivery string) error
	SetOrderAddress(ctx context.Context, id int64, address string) error
	ClearOrderDelivery(ctx context.Context, id int64) error
	ListUserOrders(ctx context.Context, userID int64) ([]OrderDetail, error)
	ListActiveOrders(ctx context.Context) ([]OrderDetail, error)
	ListOrderHistory(ctx context.Context) ([]OrderDetail, error)
}
