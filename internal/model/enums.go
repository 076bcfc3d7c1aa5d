package model

type ChannelStatus string

const (
	ChannelStatusDisconnected ChannelStatus = "disconnected"
	ChannelStatusPairing      ChannelStatus = "pairing"
	ChannelStatusActive       ChannelStatus = "active"
)

// EventKind names a session lifecycle event delivered through the dispatcher.
type EventKind string

const (
	EventPairingCodeIssued EventKind = "pairing_code_issued"
	EventSessionReady      EventKind = "session_ready"
	EventAuthenticated     EventKind = "authenticated"
	EventDisconnected      EventKind = "disconnected"
	EventContactsReceived  EventKind = "contacts_received"
)

// EventKinds lists every kind in a stable order.
var EventKinds = []EventKind{
	EventPairingCodeIssued,
	EventSessionReady,
	EventAuthenticated,
	EventDisconnected,
	EventContactsReceived,
}
