// Package catalog mirrors slot state to the externally rendered channel
// post. Post updates are best-effort: a failed edit never blocks the
// state transition or inventory mutation that triggered it.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"slot-shop/internal/gateway"
	"slot-shop/internal/metrics"
	"slot-shop/internal/sizes"
	"slot-shop/internal/store"
)

// Publisher posts slot cards to the shop channel and keeps them current.
type Publisher struct {
	store     store.Store
	sender    gateway.Sender
	channelID int64
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// New creates a Publisher targeting the given channel.
func New(st store.Store, sender gateway.Sender, channelID int64, logger *slog.Logger, metricRegistry *metrics.Metrics) *Publisher {
	return &Publisher{
		store:     st,
		sender:    sender,
		channelID: channelID,
		logger:    logger.With("component", "catalog"),
		metrics:   metricRegistry,
	}
}

// RenderCaption builds the channel post caption for a slot.
func RenderCaption(slot *store.Slot) string {
	set := sizes.Parse(slot.Sizes)
	sizeLine := strings.Join(set.Values(), ", ")
	if sizeLine == "" {
		sizeLine = "Sold out"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", slot.Name)
	fmt.Fprintf(&b, "Sizes: %s\n", sizeLine)
	fmt.Fprintf(&b, "Price: %s₽\n", slot.Price)
	if slot.Description != nil && *slot.Description != "" {
		fmt.Fprintf(&b, "%s\n", *slot.Description)
	}
	b.WriteString("\n👉 Tap the button below to order!")
	return b.String()
}

// Publish posts the slot card to the channel and persists the post ref.
// The ref is set once; republishing overwrites it with the new post.
func (p *Publisher) Publish(ctx context.Context, slot *store.Slot) error {
	messageID, err := p.sender.SendPhoto(ctx, p.channelID, slot.Photo, RenderCaption(slot), gateway.CheckoutControls(slot.ID))
	if err != nil {
		p.metrics.PublisherUpdates.WithLabelValues("error").Inc()
		return fmt.Errorf("publish slot %d: %w", slot.ID, err)
	}

	if err := p.store.SetSlotPost(ctx, slot.ID, p.channelID, messageID); err != nil {
		return fmt.Errorf("save post ref for slot %d: %w", slot.ID, err)
	}
	p.metrics.PublisherUpdates.WithLabelValues("ok").Inc()
	return nil
}

// Refresh re-renders the channel post caption for an already published
// slot. Unpublished slots are a no-op.
func (p *Publisher) Refresh(ctx context.Context, slot *store.Slot) error {
	if !slot.Published() {
		return nil
	}
	err := p.sender.EditMessage(ctx, *slot.ChannelID, *slot.MessageID, RenderCaption(slot), gateway.CheckoutControls(slot.ID))
	if err != nil {
		p.metrics.PublisherUpdates.WithLabelValues("error").Inc()
		return fmt.Errorf("refresh post for slot %d: %w", slot.ID, err)
	}
	p.metrics.PublisherUpdates.WithLabelValues("ok").Inc()
	return nil
}

// Remove deletes the channel post of a published slot, best effort.
func (p *Publisher) Remove(ctx context.Context, slot *store.Slot) error {
	if !slot.Published() {
		return nil
	}
	if err := p.sender.DeleteMessage(ctx, *slot.ChannelID, *slot.MessageID); err != nil {
		p.metrics.PublisherUpdates.WithLabelValues("error").Inc()
		return fmt.Errorf("remove post for slot %d: %w", slot.ID, err)
	}
	p.metrics.PublisherUpdates.WithLabelValues("ok").Inc()
	return nil
}
