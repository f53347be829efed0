// Package events contains the message contracts pushed to presentation clients
// over the websocket event stream.
package events

import (
	"time"

	"github.com/Lynx96-creator/ets2-mod-api/pkg/contracts/domain"
)

// MessageType defines the type of websocket message
type MessageType string

const (
	// Session lifecycle messages
	MessageTypeSessionProgress MessageType = "session:progress"
	MessageTypeSessionComplete MessageType = "session:complete"

	// Emitted after an install or uninstall so clients reload the mod list
	MessageTypeModsRefresh MessageType = "mods:refresh"

	// Connection messages
	MessageTypeConnect MessageType = "connect"
	MessageTypeError   MessageType = "error"
)

// Message is the envelope of every websocket frame.
type Message struct {
	ID        string      `json:"id,omitempty"`
	Type      MessageType `json:"type"`
	Email     string      `json:"email,omitempty"` // recipient account, empty for broadcast
	Timestamp time.Time   `json:"timestamp"`
	TraceID   string      `json:"trace_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// ModsRefresh tells a client that the visible mod list of an account changed.
type ModsRefresh struct {
	Email  string           `json:"email"`
	Reason string           `json:"reason"`
	Mods   []domain.ModView `json:"mods,omitempty"`
}
