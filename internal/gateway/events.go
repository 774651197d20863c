// Package gateway models the boundary with the external messaging
// gateway: inbound user events arrive over a webhook, outbound messages
// and edits go out over the gateway's HTTP API.
package gateway

import (
	"context"
	"time"
)

// EventType classifies inbound gateway events.
type EventType string

const (
	// EventCommand is a slash command typed by a user ("/start 3").
	EventCommand EventType = "command"
	// EventButton is an inline button press carrying callback data.
	EventButton EventType = "button"
	// EventPhoto is a photo upload (payment proof submission).
	EventPhoto EventType = "photo"
	// EventText is a plain text message (conversation step input).
	EventText EventType = "text"
)

// Event is the inbound envelope delivered by the messaging gateway.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username"`
	ChatID    int64     `json:"chat_id"`
	MessageID int64     `json:"message_id"`
	// Text carries the command or free-form text for command/text events.
	Text string `json:"text,omitempty"`
	// Data carries the callback payload for button events.
	Data string `json:"data,omitempty"`
	// PhotoRef references the uploaded image for photo events.
	PhotoRef string `json:"photo_ref,omitempty"`

	ReceivedAt time.Time `json:"-"`
}

// Processor handles decoded inbound events.
type Processor interface {
	HandleEvent(ctx context.Context, evt Event) error
}

// Button is a single inline control rendered by the gateway.
type Button struct {
	Label string `json:"label"`
	Data  string `json:"data,omitempty"`
	URL   string `json:"url,omitempty"`
}

// Controls is an inline keyboard attached to an outgoing message.
type Controls struct {
	Rows [][]Button `json:"rows"`
}

// Row appends a row of buttons and returns the controls for chaining.
func (c *Controls) Row(buttons ...Button) *Controls {
	c.Rows = append(c.Rows, buttons)
	return c
}

// Sender delivers outgoing effects through the messaging gateway.
// Implementations must treat failures as non-fatal to the caller's
// state: by the time a send happens the state change is committed.
type Sender interface {
	SendMessage(ctx context.Context, recipientID int64, text string, controls *Controls) (int64, error)
	SendPhoto(ctx context.Context, recipientID int64, photoRef, caption string, controls *Controls) (int64, error)
	EditMessage(ctx context.Context, recipientID, messageID int64, caption string, controls *Controls) error
	DeleteMessage(ctx context.Context, recipientID, messageID int64) error
}
