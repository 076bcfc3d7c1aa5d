package transport

import (
	"encoding/json"
)

// Commands understood by the remote agent.
const (
	CommandInitializeSession = "initialize_session"
	CommandDisconnectSession = "disconnect_session"
	CommandGetContacts       = "get_contacts"
)

// Events emitted by the remote agent, plus EventDisconnected which the
// transport raises itself when the link drops.
const (
	EventQR               = "qr"
	EventReady            = "ready"
	EventAuthenticated    = "authenticated"
	EventDisconnected     = "disconnected"
	EventConnectionFailed = "connection_failed"
	EventContactsReceived = "contacts_received"
)

type commandEnvelope struct {
	Command string `json:"command"`
	Data    any    `json:"data,omitempty"`
}

type eventEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// LinkDropped is the payload of the transport-raised disconnected event.
// ChannelID is empty because the whole link is gone.
type LinkDropped struct {
	ChannelID string `json:"channelId"`
	Reason    string `json:"reason"`
}
