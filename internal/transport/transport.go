package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/channel-session-go/internal/dispatch"
	apperrors "github.com/openclaw/channel-session-go/internal/errors"
)

type State string

const (
	StateClosed     State = "closed"
	StateConnecting State = "connecting"
	StateOpen       State = "open"
)

// EventHandler receives the raw data of one agent event.
type EventHandler func(data json.RawMessage)

type Config struct {
	URL                string
	ConnectTimeout     time.Duration
	MaxConnectAttempts int
	WriteTimeout       time.Duration
	PingInterval       time.Duration
	SendBuffer         int
	Backoff            BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		ConnectTimeout:     10 * time.Second,
		MaxConnectAttempts: 5,
		WriteTimeout:       10 * time.Second,
		PingInterval:       25 * time.Second,
		SendBuffer:         64,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.MaxConnectAttempts <= 0 {
		c.MaxConnectAttempts = d.MaxConnectAttempts
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = d.SendBuffer
	}
	if c.Backoff == (BackoffConfig{}) {
		c.Backoff = d.Backoff
	}
	return c
}

// Transport is the single WebSocket link between this process and the remote
// agent. Open retries a bounded number of times with exponential backoff;
// once open, a dropped link is reported as EventDisconnected and the
// transport returns to closed without reconnecting on its own.
type Transport struct {
	cfg    Config
	dialer *websocket.Dialer
	subs   *dispatch.Subscriptions[string, EventHandler]

	rngMu sync.Mutex
	rng   *rand.Rand

	mu         sync.Mutex
	state      State
	conn       *websocket.Conn
	send       chan []byte
	openCancel context.CancelFunc
	openDone   chan struct{}
}

func New(cfg Config) *Transport {
	cfg = cfg.WithDefaults()
	return &Transport{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.ConnectTimeout,
		},
		subs:  dispatch.NewSubscriptions[string, EventHandler](),
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		state: StateClosed,
	}
}

func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transport) IsConnected() bool {
	return t.State() == StateOpen
}

// Open connects to the agent unless already connected. A concurrent call
// while a connection attempt is in flight waits for that attempt instead of
// starting another. Exhausting the retry budget, or a Close issued while
// connecting, yields false with CONNECTION_FAILED.
func (t *Transport) Open(ctx context.Context, channelID string) (bool, error) {
	t.mu.Lock()
	switch t.state {
	case StateOpen:
		t.mu.Unlock()
		return true, nil
	case StateConnecting:
		wait := t.openDone
		t.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return false, apperrors.ConnectionFailed("open canceled").WithCause(ctx.Err())
		}
		if t.IsConnected() {
			return true, nil
		}
		return false, apperrors.ConnectionFailed("concurrent open failed")
	}

	openCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	t.state = StateConnecting
	t.openCancel = cancel
	t.openDone = done
	t.mu.Unlock()

	defer close(done)
	defer cancel()

	target, err := t.endpoint(channelID)
	if err != nil {
		t.failOpen(done)
		return false, apperrors.ConnectionFailed("invalid agent url").WithCause(err)
	}

	var lastErr error
	for attempt := 1; attempt <= t.cfg.MaxConnectAttempts; attempt++ {
		conn, err := t.dial(openCtx, target)
		if err == nil {
			if t.adopt(conn, done) {
				log.Info().
					Str("url", t.cfg.URL).
					Str("channelId", channelID).
					Int("attempt", attempt).
					Msg("agent transport connected")
				return true, nil
			}
			_ = conn.Close()
			return false, apperrors.ConnectionFailed("transport closed while connecting")
		}

		lastErr = err
		log.Warn().
			Err(err).
			Str("url", t.cfg.URL).
			Int("attempt", attempt).
			Int("maxAttempts", t.cfg.MaxConnectAttempts).
			Msg("agent transport dial failed")

		if openCtx.Err() != nil || attempt == t.cfg.MaxConnectAttempts {
			break
		}
		if err := t.sleepBackoff(openCtx, attempt); err != nil {
			break
		}
	}

	t.failOpen(done)

	if openCtx.Err() != nil {
		return false, apperrors.ConnectionFailed("open canceled").WithCause(lastErr)
	}
	log.Error().
		Err(lastErr).
		Str("url", t.cfg.URL).
		Msg("agent transport retries exhausted")
	return false, apperrors.ConnectionFailed(
		fmt.Sprintf("gave up after %d attempts", t.cfg.MaxConnectAttempts),
	).WithCause(lastErr)
}

func (t *Transport) endpoint(channelID string) (string, error) {
	u, err := url.Parse(t.cfg.URL)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(channelID) != "" {
		q := u.Query()
		q.Set("channelId", channelID)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (t *Transport) dial(ctx context.Context, target string) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, t.cfg.ConnectTimeout)
	defer cancel()

	conn, resp, err := t.dialer.DialContext(dialCtx, target, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, err
}

func (t *Transport) sleepBackoff(ctx context.Context, attempt int) error {
	t.rngMu.Lock()
	delay := NextBackoffDelay(t.cfg.Backoff, attempt, t.rng)
	t.rngMu.Unlock()

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// adopt installs conn as the live link unless Close won the race or a newer
// Open has taken over.
func (t *Transport) adopt(conn *websocket.Conn, attempt chan struct{}) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateConnecting || t.openDone != attempt {
		return false
	}
	send := make(chan []byte, t.cfg.SendBuffer)
	t.conn = conn
	t.send = send
	t.state = StateOpen
	t.openCancel = nil

	go t.writeLoop(conn, send)
	go t.readLoop(conn)
	return true
}

func (t *Transport) failOpen(attempt chan struct{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.openDone != attempt {
		return
	}
	if t.state == StateConnecting {
		t.state = StateClosed
	}
	t.openCancel = nil
}

// Close releases the link and discards every subscription. Safe to call in
// any state and more than once. An explicit Close does not raise
// EventDisconnected.
func (t *Transport) Close() {
	t.mu.Lock()
	if t.openCancel != nil {
		t.openCancel()
		t.openCancel = nil
	}
	wasOpen := t.state == StateOpen
	t.detachLocked()
	t.state = StateClosed
	t.mu.Unlock()

	t.subs.Clear()

	if wasOpen {
		log.Info().Str("url", t.cfg.URL).Msg("agent transport closed")
	}
}

// detachLocked drops the current connection. Caller holds t.mu.
func (t *Transport) detachLocked() {
	if t.conn == nil {
		return
	}
	close(t.send)
	_ = t.conn.Close()
	t.conn = nil
	t.send = nil
}

// Send queues a command for the agent without waiting for I/O.
func (t *Transport) Send(command string, payload any) error {
	data, err := json.Marshal(commandEnvelope{Command: command, Data: payload})
	if err != nil {
		return apperrors.Internal("failed to encode command").WithCause(err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateOpen {
		log.Error().
			Str("command", command).
			Str("state", string(t.state)).
			Msg("agent transport not connected")
		return apperrors.NotConnected()
	}

	select {
	case t.send <- data:
		log.Debug().Str("command", command).Msg("agent command queued")
		return nil
	default:
		log.Warn().Str("command", command).Msg("agent send buffer full, dropping command")
		return apperrors.Internal("agent send buffer full")
	}
}

// Subscribe registers handler for a named agent event.
func (t *Transport) Subscribe(event string, handler EventHandler) func() {
	return t.subs.Add(event, handler)
}

func (t *Transport) SubscriberCount(event string) int {
	return t.subs.Len(event)
}

func (t *Transport) writeLoop(conn *websocket.Conn, send <-chan []byte) {
	ping := time.NewTicker(t.cfg.PingInterval)
	defer ping.Stop()

	for {
		select {
		case data, ok := <-send:
			if !ok {
				_ = conn.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second),
				)
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Msg("agent transport write failed")
				_ = conn.Close()
				return
			}

		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.cfg.WriteTimeout)); err != nil {
				log.Debug().Err(err).Msg("agent transport ping failed")
				_ = conn.Close()
				return
			}
		}
	}
}

func (t *Transport) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.linkLost(conn, disconnectReason(err))
			return
		}

		var env eventEnvelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			log.Warn().Err(err).Msg("agent transport received malformed event")
			continue
		}
		t.deliver(env.Event, env.Data)
	}
}

func (t *Transport) linkLost(conn *websocket.Conn, reason string) {
	t.mu.Lock()
	if t.conn != conn {
		// Close already detached this connection
		t.mu.Unlock()
		return
	}
	t.detachLocked()
	t.state = StateClosed
	t.mu.Unlock()

	log.Warn().Str("reason", reason).Msg("agent transport link dropped")

	data, _ := json.Marshal(LinkDropped{Reason: reason})
	t.deliver(EventDisconnected, data)
}

func (t *Transport) deliver(event string, data json.RawMessage) {
	for _, h := range t.subs.Snapshot(event) {
		func() {
			defer func() {
				if p := recover(); p != nil {
					log.Error().
						Str("event", event).
						Interface("panic", p).
						Msg("agent event handler panicked")
				}
			}()
			h(data)
		}()
	}
}

func disconnectReason(err error) string {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		if closeErr.Text != "" {
			return closeErr.Text
		}
		switch closeErr.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway:
			return "server disconnect"
		default:
			return fmt.Sprintf("closed with code %d", closeErr.Code)
		}
	}
	return "transport close"
}
