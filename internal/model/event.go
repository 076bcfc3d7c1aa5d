package model

import (
	"encoding/json"
	"time"
)

// Payloads carried by dispatcher events. Every payload names its channel so
// subscribers can route without inspecting the event kind.

type PairingCodeIssued struct {
	ChannelID string    `json:"channelId"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type SessionReady struct {
	ChannelID         string    `json:"channelId"`
	AccountIdentifier string    `json:"accountIdentifier"`
	LastActiveAt      time.Time `json:"lastActiveAt"`
}

type Authenticated struct {
	ChannelID         string `json:"channelId"`
	AccountIdentifier string `json:"accountIdentifier"`
}

type Disconnected struct {
	ChannelID string `json:"channelId"`
	Reason    string `json:"reason"`
}

type ContactsReceived struct {
	ChannelID string          `json:"channelId"`
	Contacts  []ContactRecord `json:"contacts"`
}

// ChannelScoped is implemented by every event payload.
type ChannelScoped interface {
	Channel() string
}

func (e PairingCodeIssued) Channel() string { return e.ChannelID }
func (e SessionReady) Channel() string      { return e.ChannelID }
func (e Authenticated) Channel() string     { return e.ChannelID }
func (e Disconnected) Channel() string      { return e.ChannelID }
func (e ContactsReceived) Channel() string  { return e.ChannelID }

// ToSSEEventData returns JSON data for SSE events
func ToSSEEventData(payload any) json.RawMessage {
	data, _ := json.Marshal(payload)
	return data
}
