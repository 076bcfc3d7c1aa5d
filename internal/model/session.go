package model

import (
	"time"
)

// Session is the runtime connection record for a channel that is not disconnected.
type Session struct {
	ChannelID         string        `db:"channel_id" json:"channelId"`
	AccountIdentifier string        `db:"account_identifier" json:"accountIdentifier"`
	Status            ChannelStatus `db:"status" json:"status"`
	LastActiveAt      *time.Time    `db:"last_active_at" json:"lastActiveAt,omitempty"`
	UpdatedAt         time.Time     `db:"updated_at" json:"updatedAt"`
}
