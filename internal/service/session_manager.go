package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/channel-session-go/internal/audit"
	apperrors "github.com/openclaw/channel-session-go/internal/errors"
	"github.com/openclaw/channel-session-go/internal/model"
	"github.com/openclaw/channel-session-go/internal/transport"
)

const (
	agentEventTimeout = 10 * time.Second

	reasonConnectionFailed = "connection failed"
	reasonUserRequest      = "user request"
	reasonPairingExpired   = "pairing expired"
)

// AgentTransport is the link to the remote agent.
type AgentTransport interface {
	Open(ctx context.Context, channelID string) (bool, error)
	Send(command string, payload any) error
	Subscribe(event string, handler transport.EventHandler) func()
	IsConnected() bool
}

// SessionRegistry is the authoritative per-channel session state.
type SessionRegistry interface {
	Status(ctx context.Context, channelID string) (model.ChannelStatus, error)
	Session(ctx context.Context, channelID string) (*model.Session, error)
	BeginConnect(ctx context.Context, channelID, accountIdentifier string) (*model.Session, error)
	MarkActive(ctx context.Context, channelID, resolvedAccountIdentifier string) (*model.Session, error)
	MarkDisconnected(ctx context.Context, channelID, reason string) error
	Remove(ctx context.Context, channelID, reason string, deleteRows func(ctx context.Context) error) error
	OnRelease(hook func(ctx context.Context, channelID string))
}

// PairingCoordinator issues and validates pairing codes.
type PairingCoordinator interface {
	RequestPairing(ctx context.Context, channelID string, forceNew bool) (*model.PairingRequest, error)
	Issue(ctx context.Context, channelID, code string) (*model.PairingRequest, error)
	CompletePairing(ctx context.Context, channelID, code string) (string, error)
	CancelPairing(channelID string)
	Current(channelID string) *model.PairingRequest
	Latest(channelID string) *model.PairingRequest
}

// EventPublisher fans events out to subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, kind model.EventKind, payload any) error
}

// ChannelLookup resolves channel records.
type ChannelLookup interface {
	FindByID(ctx context.Context, id string) (*model.Channel, error)
}

// ContactIngester stores contacts reported by the agent.
type ContactIngester interface {
	Ingest(ctx context.Context, channelID string, contacts []IncomingContact) ([]model.ContactRecord, error)
}

type ConnectResult struct {
	Session *model.Session        `json:"session"`
	Pairing *model.PairingRequest `json:"pairing"`
}

// SessionManager drives a channel through connect, pairing and disconnect.
// It owns the per-channel transport listeners; they are registered when a
// channel starts connecting and dropped when the registry releases it.
type SessionManager struct {
	transport AgentTransport
	registry  SessionRegistry
	pairing   PairingCoordinator
	publisher EventPublisher
	channels  ChannelLookup
	contacts  ContactIngester

	mu        sync.Mutex
	listeners map[string][]func()
}

func NewSessionManager(
	transport AgentTransport,
	registry SessionRegistry,
	pairing PairingCoordinator,
	publisher EventPublisher,
	channels ChannelLookup,
	contacts ContactIngester,
) *SessionManager {
	m := &SessionManager{
		transport: transport,
		registry:  registry,
		pairing:   pairing,
		publisher: publisher,
		channels:  channels,
		contacts:  contacts,
		listeners: make(map[string][]func()),
	}
	registry.OnRelease(m.release)
	return m
}

// Connect starts pairing for a channel: it claims the channel in the
// registry, opens the agent link, issues a pairing code and asks the agent to
// initialize the session. Any failure after the claim rolls the channel back
// to disconnected.
func (m *SessionManager) Connect(ctx context.Context, channelID string, forceNew bool) (*ConnectResult, error) {
	ch, err := m.channels.FindByID(ctx, channelID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if ch == nil {
		return nil, apperrors.NotFound("Channel")
	}

	sess, err := m.registry.BeginConnect(ctx, channelID, ch.AccountIdentifier)
	if err != nil {
		return nil, err
	}

	ok, err := m.transport.Open(ctx, channelID)
	if !ok {
		m.rollback(ctx, channelID, reasonConnectionFailed)
		if err == nil {
			err = apperrors.ConnectionFailed("agent unavailable")
		}
		return nil, err
	}

	m.listen(channelID)
	if status, _ := m.registry.Status(ctx, channelID); status == model.ChannelStatusDisconnected {
		// disconnected while we were opening the link
		m.unlisten(channelID)
		return nil, apperrors.ConnectionFailed("channel disconnected while connecting")
	}

	req, err := m.pairing.RequestPairing(ctx, channelID, forceNew)
	if err != nil {
		m.rollback(ctx, channelID, reasonConnectionFailed)
		return nil, err
	}

	if err := m.initializeSession(channelID, forceNew); err != nil {
		m.rollback(ctx, channelID, reasonConnectionFailed)
		return nil, err
	}

	audit.Log(ctx, audit.Event{
		Type:      audit.EventSessionConnect,
		ChannelID: channelID,
		Details:   map[string]interface{}{"forceNew": forceNew},
	})

	return &ConnectResult{Session: sess, Pairing: req}, nil
}

// RequestPairing returns the channel's live pairing code, or a new one when
// forceNew is set, in which case the agent is asked for a fresh session too.
func (m *SessionManager) RequestPairing(ctx context.Context, channelID string, forceNew bool) (*model.PairingRequest, error) {
	req, err := m.pairing.RequestPairing(ctx, channelID, forceNew)
	if err != nil {
		return nil, err
	}
	if forceNew {
		if err := m.initializeSession(channelID, true); err != nil {
			return nil, err
		}
	}
	return req, nil
}

func (m *SessionManager) RefreshPairing(ctx context.Context, channelID string) (*model.PairingRequest, error) {
	return m.RequestPairing(ctx, channelID, true)
}

// CompletePairing validates code and activates the channel.
func (m *SessionManager) CompletePairing(ctx context.Context, channelID, code string) (*model.Session, error) {
	account, err := m.pairing.CompletePairing(ctx, channelID, code)
	if err != nil {
		audit.Log(ctx, audit.Event{
			Type:      audit.EventPairingFailure,
			ChannelID: channelID,
			Details:   map[string]interface{}{"code": string(apperrors.GetCode(err))},
		})
		return nil, err
	}
	return m.activate(ctx, channelID, account)
}

// Disconnect asks the agent to drop the channel's session, then tears the
// channel down locally whether or not the agent could be reached.
func (m *SessionManager) Disconnect(ctx context.Context, channelID, reason string) error {
	if reason == "" {
		reason = reasonUserRequest
	}

	m.notifyDisconnect(channelID)
	if err := m.registry.MarkDisconnected(ctx, channelID, reason); err != nil {
		return err
	}

	audit.Log(ctx, audit.Event{
		Type:      audit.EventSessionDisconnect,
		ChannelID: channelID,
		Details:   map[string]interface{}{"reason": reason},
	})
	return nil
}

// Remove disconnects the channel and runs deleteRows before any other
// transition for it can start. A connect racing the removal fails with
// NOT_FOUND instead of leaving a session behind.
func (m *SessionManager) Remove(ctx context.Context, channelID, reason string, deleteRows func(ctx context.Context) error) error {
	m.notifyDisconnect(channelID)
	if err := m.registry.Remove(ctx, channelID, reason, deleteRows); err != nil {
		return err
	}

	audit.Log(ctx, audit.Event{
		Type:      audit.EventSessionDisconnect,
		ChannelID: channelID,
		Details:   map[string]interface{}{"reason": reason},
	})
	return nil
}

// RequestContacts asks the agent to report the channel's contacts. Results
// arrive asynchronously as contacts_received.
func (m *SessionManager) RequestContacts(ctx context.Context, channelID string) error {
	status, err := m.registry.Status(ctx, channelID)
	if err != nil {
		return err
	}
	if status != model.ChannelStatusActive {
		return apperrors.UnknownChannel(channelID)
	}
	if err := m.transport.Send(transport.CommandGetContacts, channelCommand{ChannelID: channelID}); err != nil {
		return err
	}

	audit.Log(ctx, audit.Event{Type: audit.EventContactsSync, ChannelID: channelID})
	return nil
}

func (m *SessionManager) Status(ctx context.Context, channelID string) (model.ChannelStatus, error) {
	return m.registry.Status(ctx, channelID)
}

func (m *SessionManager) Session(ctx context.Context, channelID string) (*model.Session, error) {
	return m.registry.Session(ctx, channelID)
}

func (m *SessionManager) CurrentPairing(channelID string) *model.PairingRequest {
	return m.pairing.Current(channelID)
}

// ListenerCount reports how many transport listeners a channel holds.
func (m *SessionManager) ListenerCount(channelID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners[channelID])
}

func (m *SessionManager) activate(ctx context.Context, channelID, account string) (*model.Session, error) {
	sess, err := m.registry.MarkActive(ctx, channelID, account)
	if err != nil {
		return nil, err
	}

	var lastActive time.Time
	if sess.LastActiveAt != nil {
		lastActive = *sess.LastActiveAt
	}
	_ = m.publisher.Publish(ctx, model.EventSessionReady, model.SessionReady{
		ChannelID:         channelID,
		AccountIdentifier: sess.AccountIdentifier,
		LastActiveAt:      lastActive,
	})

	audit.Log(ctx, audit.Event{
		Type:      audit.EventPairingComplete,
		ChannelID: channelID,
		Subject:   sess.AccountIdentifier,
	})
	return sess, nil
}

func (m *SessionManager) initializeSession(channelID string, forceNew bool) error {
	return m.transport.Send(transport.CommandInitializeSession, initializeCommand{
		ChannelID: channelID,
		ForceNew:  forceNew,
	})
}

// notifyDisconnect is best effort; the local teardown does not wait for it.
func (m *SessionManager) notifyDisconnect(channelID string) {
	if !m.transport.IsConnected() {
		return
	}
	if err := m.transport.Send(transport.CommandDisconnectSession, channelCommand{ChannelID: channelID}); err != nil {
		log.Warn().Err(err).Str("channelId", channelID).Msg("disconnect command not delivered")
	}
}

func (m *SessionManager) rollback(ctx context.Context, channelID, reason string) {
	if err := m.registry.MarkDisconnected(ctx, channelID, reason); err != nil {
		log.Error().Err(err).Str("channelId", channelID).Msg("rollback to disconnected failed")
	}
}

// release runs inside the registry's critical section for channelID.
func (m *SessionManager) release(_ context.Context, channelID string) {
	m.pairing.CancelPairing(channelID)
	m.unlisten(channelID)
}

func (m *SessionManager) listen(channelID string) {
	handlers := []struct {
		event   string
		handler agentHandler
	}{
		{transport.EventQR, m.onQR},
		{transport.EventReady, m.onReady},
		{transport.EventAuthenticated, m.onAuthenticated},
		{transport.EventDisconnected, m.onDisconnected},
		{transport.EventConnectionFailed, m.onConnectionFailed},
		{transport.EventContactsReceived, m.onContactsReceived},
	}
	unsubs := make([]func(), 0, len(handlers))
	for _, h := range handlers {
		unsubs = append(unsubs, m.transport.Subscribe(h.event, m.scoped(channelID, h.event, h.handler)))
	}

	m.mu.Lock()
	previous := m.listeners[channelID]
	m.listeners[channelID] = unsubs
	m.mu.Unlock()

	for _, unsub := range previous {
		unsub()
	}
}

func (m *SessionManager) unlisten(channelID string) {
	m.mu.Lock()
	unsubs := m.listeners[channelID]
	delete(m.listeners, channelID)
	m.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
}
