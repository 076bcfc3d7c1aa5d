package model

import (
	"time"
)

type Channel struct {
	ID                string        `db:"id" json:"id"`
	DisplayName       string        `db:"display_name" json:"displayName"`
	AccountIdentifier string        `db:"account_identifier" json:"accountIdentifier"`
	Status            ChannelStatus `db:"status" json:"status"`
	CreatedAt         time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time     `db:"updated_at" json:"updatedAt"`
	LastActiveAt      *time.Time    `db:"last_active_at" json:"lastActiveAt,omitempty"`
}

type CreateChannelParams struct {
	DisplayName       string
	AccountIdentifier string
}

type UpdateChannelParams struct {
	DisplayName       *string
	AccountIdentifier *string
}
