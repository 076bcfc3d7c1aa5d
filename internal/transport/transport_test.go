package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/openclaw/channel-session-go/internal/errors"
)

// fakeAgent is a minimal remote agent: it records commands and lets the test
// push events or drop the link.
type fakeAgent struct {
	server   *httptest.Server
	upgrader websocket.Upgrader
	accepted atomic.Int32

	mu       sync.Mutex
	conns    []*websocket.Conn
	commands chan commandEnvelope
	query    chan string
}

func newFakeAgent(t *testing.T) *fakeAgent {
	t.Helper()
	a := &fakeAgent{
		commands: make(chan commandEnvelope, 16),
		query:    make(chan string, 4),
	}
	a.server = httptest.NewServer(http.HandlerFunc(a.handle))
	t.Cleanup(a.server.Close)
	return a
}

func (a *fakeAgent) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	a.accepted.Add(1)
	a.query <- r.URL.Query().Get("channelId")

	a.mu.Lock()
	a.conns = append(a.conns, conn)
	a.mu.Unlock()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd commandEnvelope
		if json.Unmarshal(data, &cmd) == nil {
			a.commands <- cmd
		}
	}
}

func (a *fakeAgent) url() string {
	return "ws" + strings.TrimPrefix(a.server.URL, "http")
}

// latest waits for the server side of the handshake to register the conn.
func (a *fakeAgent) latest(t *testing.T) *websocket.Conn {
	t.Helper()
	require.Eventually(t, func() bool {
		a.mu.Lock()
		defer a.mu.Unlock()
		return len(a.conns) > 0
	}, 2*time.Second, 5*time.Millisecond)

	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conns[len(a.conns)-1]
}

func (a *fakeAgent) emit(t *testing.T, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	payload, err := json.Marshal(eventEnvelope{Event: event, Data: raw})
	require.NoError(t, err)

	require.NoError(t, a.latest(t).WriteMessage(websocket.TextMessage, payload))
}

func (a *fakeAgent) drop(t *testing.T, text string) {
	t.Helper()
	conn := a.latest(t)
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, text),
		time.Now().Add(time.Second),
	)
	_ = conn.Close()
}

func testConfig(url string) Config {
	return Config{
		URL:                url,
		ConnectTimeout:     time.Second,
		MaxConnectAttempts: 3,
		Backoff: BackoffConfig{
			InitialDelay: 5 * time.Millisecond,
			Multiplier:   1,
		},
	}
}

func TestTransport_Open(t *testing.T) {
	t.Run("connects and is idempotent", func(t *testing.T) {
		agent := newFakeAgent(t)
		tr := New(testConfig(agent.url()))
		defer tr.Close()

		ok, err := tr.Open(context.Background(), "c1")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, StateOpen, tr.State())
		assert.Equal(t, "c1", <-agent.query)

		ok, err = tr.Open(context.Background(), "c2")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, int32(1), agent.accepted.Load())
	})

	t.Run("gives up after bounded attempts", func(t *testing.T) {
		var hits atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		tr := New(testConfig("ws" + strings.TrimPrefix(server.URL, "http")))

		ok, err := tr.Open(context.Background(), "")
		assert.False(t, ok)
		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConnectionFailed))
		assert.Equal(t, int32(3), hits.Load())
		assert.Equal(t, StateClosed, tr.State())
	})

	t.Run("close during open resolves to failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		cfg := testConfig("ws" + strings.TrimPrefix(server.URL, "http"))
		cfg.MaxConnectAttempts = 5
		cfg.Backoff = BackoffConfig{InitialDelay: 10 * time.Second, Multiplier: 1}
		tr := New(cfg)

		result := make(chan bool, 1)
		go func() {
			ok, _ := tr.Open(context.Background(), "")
			result <- ok
		}()

		require.Eventually(t, func() bool { return tr.State() == StateConnecting }, time.Second, 5*time.Millisecond)
		tr.Close()

		select {
		case ok := <-result:
			assert.False(t, ok)
		case <-time.After(2 * time.Second):
			t.Fatal("open did not resolve after close")
		}
		assert.Equal(t, StateClosed, tr.State())
	})
}

func TestTransport_Send(t *testing.T) {
	t.Run("reports NOT_CONNECTED without a link", func(t *testing.T) {
		tr := New(testConfig("ws://127.0.0.1:1"))

		err := tr.Send(CommandGetContacts, map[string]string{"channelId": "c1"})

		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeNotConnected, apperrors.GetCode(err))
	})

	t.Run("delivers command envelope to the agent", func(t *testing.T) {
		agent := newFakeAgent(t)
		tr := New(testConfig(agent.url()))
		defer tr.Close()

		_, err := tr.Open(context.Background(), "")
		require.NoError(t, err)

		require.NoError(t, tr.Send(CommandInitializeSession, map[string]any{"channelId": "c1", "forceNew": true}))

		select {
		case cmd := <-agent.commands:
			assert.Equal(t, CommandInitializeSession, cmd.Command)
			data := cmd.Data.(map[string]any)
			assert.Equal(t, "c1", data["channelId"])
			assert.Equal(t, true, data["forceNew"])
		case <-time.After(2 * time.Second):
			t.Fatal("agent did not receive command")
		}
	})
}

func TestTransport_Subscribe(t *testing.T) {
	t.Run("delivers events in subscription order", func(t *testing.T) {
		agent := newFakeAgent(t)
		tr := New(testConfig(agent.url()))
		defer tr.Close()

		var mu sync.Mutex
		var order []string
		got := make(chan struct{}, 2)
		tr.Subscribe(EventQR, func(data json.RawMessage) {
			mu.Lock()
			order = append(order, "first:"+string(data))
			mu.Unlock()
			got <- struct{}{}
		})
		tr.Subscribe(EventQR, func(data json.RawMessage) {
			mu.Lock()
			order = append(order, "second")
			mu.Unlock()
			got <- struct{}{}
		})

		_, err := tr.Open(context.Background(), "")
		require.NoError(t, err)
		agent.emit(t, EventQR, map[string]string{"code": "ABC"})

		<-got
		<-got
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, []string{`first:{"code":"ABC"}`, "second"}, order)
	})

	t.Run("unsubscribe removes only that handler", func(t *testing.T) {
		tr := New(testConfig("ws://127.0.0.1:1"))
		unsub := tr.Subscribe(EventReady, func(json.RawMessage) {})
		tr.Subscribe(EventReady, func(json.RawMessage) {})

		unsub()

		assert.Equal(t, 1, tr.SubscriberCount(EventReady))
	})

	t.Run("close discards subscriptions", func(t *testing.T) {
		tr := New(testConfig("ws://127.0.0.1:1"))
		tr.Subscribe(EventReady, func(json.RawMessage) {})

		tr.Close()
		tr.Close()

		assert.Equal(t, 0, tr.SubscriberCount(EventReady))
		assert.Equal(t, StateClosed, tr.State())
	})
}

func TestTransport_LinkDrop(t *testing.T) {
	agent := newFakeAgent(t)
	tr := New(testConfig(agent.url()))
	defer tr.Close()

	dropped := make(chan LinkDropped, 1)
	tr.Subscribe(EventDisconnected, func(data json.RawMessage) {
		var ev LinkDropped
		_ = json.Unmarshal(data, &ev)
		dropped <- ev
	})

	_, err := tr.Open(context.Background(), "")
	require.NoError(t, err)

	agent.drop(t, "agent restarting")

	select {
	case ev := <-dropped:
		assert.Equal(t, "agent restarting", ev.Reason)
		assert.Empty(t, ev.ChannelID)
	case <-time.After(2 * time.Second):
		t.Fatal("disconnected event not raised")
	}
	assert.Equal(t, StateClosed, tr.State())

	err = tr.Send(CommandGetContacts, nil)
	assert.Equal(t, apperrors.ErrCodeNotConnected, apperrors.GetCode(err))
}
