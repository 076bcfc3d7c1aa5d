package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/channel-session-go/internal/errors"
	"github.com/openclaw/channel-session-go/internal/model"
	"github.com/openclaw/channel-session-go/internal/transport"
)

// Wire payloads exchanged with the remote agent.

type channelCommand struct {
	ChannelID string `json:"channelId"`
}

type initializeCommand struct {
	ChannelID string `json:"channelId"`
	ForceNew  bool   `json:"forceNew"`
}

type agentEvent struct {
	ChannelID string `json:"channelId"`
}

type qrEvent struct {
	ChannelID string `json:"channelId"`
	Code      string `json:"code"`
}

type sessionInfoEvent struct {
	ChannelID         string `json:"channelId"`
	AccountIdentifier string `json:"accountIdentifier"`
	Code              string `json:"code,omitempty"`
}

type disconnectedEvent struct {
	ChannelID string `json:"channelId"`
	Reason    string `json:"reason"`
}

type connectionFailedEvent struct {
	ChannelID string `json:"channelId"`
	Error     string `json:"error"`
}

type contactsEvent struct {
	ChannelID string            `json:"channelId"`
	Contacts  []IncomingContact `json:"contacts"`
}

// IncomingContact is one contact as reported by the agent.
type IncomingContact struct {
	ID        string     `json:"id,omitempty"`
	Name      *string    `json:"name,omitempty"`
	Number    string     `json:"number"`
	IsGroup   bool       `json:"isGroup,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Message   *string    `json:"message,omitempty"`
}

type agentHandler func(ctx context.Context, channelID string, data json.RawMessage)

// linkWideEvents may arrive without a channel id, meaning the whole agent
// link is affected.
var linkWideEvents = map[string]bool{
	transport.EventDisconnected:     true,
	transport.EventConnectionFailed: true,
}

// scoped wraps h so it only fires for events addressed to channelID. Events
// without a channel id reach every channel for link-wide events and are
// dropped otherwise.
func (m *SessionManager) scoped(channelID, event string, h agentHandler) transport.EventHandler {
	linkWide := linkWideEvents[event]
	return func(data json.RawMessage) {
		var ev agentEvent
		if len(data) > 0 {
			if err := json.Unmarshal(data, &ev); err != nil {
				log.Warn().Err(err).Str("channelId", channelID).Str("event", event).Msg("malformed agent event")
				return
			}
		}
		if ev.ChannelID == "" && !linkWide {
			log.Warn().Str("channelId", channelID).Str("event", event).Msg("agent event without channel id dropped")
			return
		}
		if ev.ChannelID != "" && ev.ChannelID != channelID {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), agentEventTimeout)
		defer cancel()
		h(ctx, channelID, data)
	}
}

func (m *SessionManager) onQR(ctx context.Context, channelID string, data json.RawMessage) {
	var ev qrEvent
	if err := json.Unmarshal(data, &ev); err != nil || ev.Code == "" {
		return
	}
	if _, err := m.pairing.Issue(ctx, channelID, ev.Code); err != nil {
		log.Warn().Err(err).Str("channelId", channelID).Msg("agent pairing code rejected")
	}
}

// onReady activates the channel once the agent-supplied code, or else the
// channel's latest code, passes CompletePairing. A ready arriving after that
// code expired ends the attempt so the channel does not sit in pairing.
func (m *SessionManager) onReady(ctx context.Context, channelID string, data json.RawMessage) {
	var ev sessionInfoEvent
	_ = json.Unmarshal(data, &ev)

	code := ev.Code
	if code == "" {
		if latest := m.pairing.Latest(channelID); latest != nil {
			code = latest.Code
		}
	}

	bound, err := m.pairing.CompletePairing(ctx, channelID, code)
	if err != nil {
		if apperrors.GetCode(err) == apperrors.ErrCodePairingExpired {
			log.Warn().Str("channelId", channelID).Msg("agent ready after pairing code expired")
			if err := m.registry.MarkDisconnected(ctx, channelID, reasonPairingExpired); err != nil {
				log.Error().Err(err).Str("channelId", channelID).Msg("mark disconnected failed")
			}
			return
		}
		log.Warn().Err(err).Str("channelId", channelID).Msg("agent ready with unusable pairing code")
		return
	}

	account := ev.AccountIdentifier
	if account == "" {
		account = bound
	}
	if _, err := m.activate(ctx, channelID, account); err != nil {
		log.Warn().Err(err).Str("channelId", channelID).Msg("agent ready for channel not pairing")
	}
}

func (m *SessionManager) onAuthenticated(ctx context.Context, channelID string, data json.RawMessage) {
	var ev sessionInfoEvent
	_ = json.Unmarshal(data, &ev)

	_ = m.publisher.Publish(ctx, model.EventAuthenticated, model.Authenticated{
		ChannelID:         channelID,
		AccountIdentifier: ev.AccountIdentifier,
	})
}

func (m *SessionManager) onDisconnected(ctx context.Context, channelID string, data json.RawMessage) {
	var ev disconnectedEvent
	_ = json.Unmarshal(data, &ev)

	reason := ev.Reason
	if reason == "" {
		reason = "agent disconnected"
	}
	if err := m.registry.MarkDisconnected(ctx, channelID, reason); err != nil {
		log.Error().Err(err).Str("channelId", channelID).Msg("mark disconnected failed")
	}
}

func (m *SessionManager) onConnectionFailed(ctx context.Context, channelID string, data json.RawMessage) {
	var ev connectionFailedEvent
	_ = json.Unmarshal(data, &ev)

	reason := reasonConnectionFailed
	if ev.Error != "" {
		reason = reasonConnectionFailed + ": " + ev.Error
	}
	if err := m.registry.MarkDisconnected(ctx, channelID, reason); err != nil {
		log.Error().Err(err).Str("channelId", channelID).Msg("mark disconnected failed")
	}
}

func (m *SessionManager) onContactsReceived(ctx context.Context, channelID string, data json.RawMessage) {
	var ev contactsEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		log.Warn().Err(err).Str("channelId", channelID).Msg("malformed contacts payload")
		return
	}
	if _, err := m.contacts.Ingest(ctx, channelID, ev.Contacts); err != nil {
		log.Error().Err(err).Str("channelId", channelID).Msg("ingest contacts failed")
	}
}
