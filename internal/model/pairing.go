package model

import (
	"time"
)

type PairingRequest struct {
	ChannelID         string    `json:"channelId"`
	Code              string    `json:"code"`
	AccountIdentifier string    `json:"-"`
	IssuedAt          time.Time `json:"issuedAt"`
	ExpiresAt         time.Time `json:"expiresAt"`
}

// IsExpired checks if the request has passed its expiry at the given instant
func (p *PairingRequest) IsExpired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}
