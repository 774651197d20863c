// Package inventory owns the truth of which sizes remain purchasable for
// a slot and how many orders a user has in flight.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"slot-shop/internal/sizes"
	"slot-shop/internal/store"
)

// ErrContention is returned when the size-set compare-and-swap keeps
// losing against concurrent writers.
var ErrContention = errors.New("size set contention")

// swapAttempts bounds the CAS retry loop. Contention on a single slot is
// rare in a single-process deployment, so a small bound is enough.
const swapAttempts = 3

// Ledger mediates all size-set and active-counter mutations.
type Ledger struct {
	store  store.Store
	logger *slog.Logger
}

// New creates a Ledger over the given store.
func New(st store.Store, logger *slog.Logger) *Ledger {
	return &Ledger{
		store:  st,
		logger: logger.With("component", "inventory"),
	}
}

// AddSize appends size to the slot's set. Adding an already present size
// is a successful no-op. It returns the slot after the mutation and
// whether the set changed.
func (l *Ledger) AddSize(ctx context.Context, slotID int64, size string) (*store.Slot, bool, error) {
	return l.mutate(ctx, slotID, func(set *sizes.Set) bool {
		return set.Add(size)
	})
}

// RemoveSize deletes size from the slot's set. Removing an absent size is
// a successful no-op, which keeps retries and racing removers harmless.
func (l *Ledger) RemoveSize(ctx context.Context, slotID int64, size string) (*store.Slot, bool, error) {
	return l.mutate(ctx, slotID, func(set *sizes.Set) bool {
		return set.Remove(size)
	})
}

func (l *Ledger) mutate(ctx context.Context, slotID int64, apply func(*sizes.Set) bool) (*store.Slot, bool, error) {
	for attempt := 0; attempt < swapAttempts; attempt++ {
		slot, err := l.store.GetSlot(ctx, slotID)
		if err != nil {
			return nil, false, err
		}

		set := sizes.Parse(slot.Sizes)
		if !apply(&set) {
			return slot, false, nil
		}

		swapped, err := l.store.SwapSlotSizes(ctx, slotID, slot.Sizes, set.String())
		if err != nil {
			return nil, false, err
		}
		if swapped {
			slot.Sizes = set.String()
			return slot, true, nil
		}
		l.logger.Debug("size set swap lost, retrying", "slot_id", slotID, "attempt", attempt+1)
	}
	return nil, false, fmt.Errorf("slot %d: %w", slotID, ErrContention)
}

// IncrementActive raises the user's active slot counter by n.
func (l *Ledger) IncrementActive(ctx context.Context, userID int64, n int) error {
	if n <= 0 {
		return fmt.Errorf("increment active: n must be positive, got %d", n)
	}
	return l.store.AdjustActiveSlots(ctx, userID, n)
}

// DecrementActive lowers the user's active slot counter by n, flooring
// at zero. Callers are responsible for calling exactly once per logical
// event; there is no deduplication key.
func (l *Ledger) DecrementActive(ctx context.Context, userID int64, n int) error {
	if n <= 0 {
		return fmt.Errorf("decrement active: n must be positive, got %d", n)
	}
	return l.store.AdjustActiveSlots(ctx, userID, -n)
}
