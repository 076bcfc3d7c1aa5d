package model

import (
	"time"
)

type ContactRecord struct {
	ID                string    `db:"id" json:"id"`
	AccountIdentifier string    `db:"account_identifier" json:"accountIdentifier"`
	DisplayName       *string   `db:"display_name" json:"displayName,omitempty"`
	ChannelID         string    `db:"channel_id" json:"channelId"`
	ReceivedAt        time.Time `db:"received_at" json:"receivedAt"`
	Message           *string   `db:"message" json:"message,omitempty"`
}

type CreateContactParams struct {
	AccountIdentifier string
	DisplayName       *string
	ChannelID         string
	ReceivedAt        time.Time
	Message           *string
}

// ContactFilter narrows a contact listing. Zero values mean "no constraint".
type ContactFilter struct {
	Search    string
	ChannelID string
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}
