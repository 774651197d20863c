package convo

import (
	"context"
	"fmt"
	"time"

	"slot-shop/internal/cache"
)

// Stage names the step a user's conversation is waiting on.
type Stage string

const (
	// Checkout steps.
	StageAwaitingProof   Stage = "awaiting_proof"
	StageAwaitingAddress Stage = "awaiting_address"

	// Admin add-slot steps.
	StageSlotName        Stage = "slot_name"
	StageSlotPrice       Stage = "slot_price"
	StageSlotPhoto       Stage = "slot_photo"
	StageSlotSizes       Stage = "slot_sizes"
	StageSlotDescription Stage = "slot_description"
)

// SlotDraft accumulates the add-slot conversation answers.
type SlotDraft struct {
	Name  string `json:"name,omitempty"`
	Price string `json:"price,omitempty"`
	Photo string `json:"photo,omitempty"`
	Sizes string `json:"sizes,omitempty"`
}

// State is the per-user conversation state persisted in redis between
// events. It expires after the configured TTL: an abandoned checkout or
// add-slot flow simply evaporates.
type State struct {
	Stage   Stage     `json:"stage"`
	OrderID int64     `json:"order_id,omitempty"`
	Draft   SlotDraft `json:"draft,omitempty"`
}

// StateStore keeps conversation state in redis keyed by user id.
type StateStore struct {
	redis *cache.Redis
	ttl   time.Duration
}

// NewStateStore wraps the redis client with the conversation TTL.
func NewStateStore(redis *cache.Redis, ttl time.Duration) *StateStore {
	return &StateStore{redis: redis, ttl: ttl}
}

func stateKey(userID int64) string {
	return fmt.Sprintf("convo:%d", userID)
}

// Get loads the user's state. The boolean reports whether one existed.
func (s *StateStore) Get(ctx context.Context, userID int64) (*State, bool, error) {
	var state State
	found, err := s.redis.GetJSON(ctx, stateKey(userID), &state)
	if err != nil {
		return nil, false, fmt.Errorf("load conversation state: %w", err)
	}
	if !found {
		return nil, false, nil
	}
	return &state, true, nil
}

// Put stores the user's state, resetting the TTL.
func (s *StateStore) Put(ctx context.Context, userID int64, state *State) error {
	if err := s.redis.SetJSON(ctx, stateKey(userID), state, s.ttl); err != nil {
		return fmt.Errorf("save conversation state: %w", err)
	}
	return nil
}

// Clear drops the user's state. Clearing absent state is a no-op.
func (s *StateStore) Clear(ctx context.Context, userID int64) error {
	if err := s.redis.Delete(ctx, stateKey(userID)); err != nil {
		return fmt.Errorf("clear conversation state: %w", err)
	}
	return nil
}
