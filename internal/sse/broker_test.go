package sse

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/channel-session-go/internal/dispatch"
	"github.com/openclaw/channel-session-go/internal/model"
)

func receive(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case ev := <-c.Events:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return Event{}
	}
}

func TestBroker_LocalDelivery(t *testing.T) {
	ctx := context.Background()
	b := NewBroker(nil)
	defer b.Close()

	c1 := b.Subscribe("c1")
	c2 := b.Subscribe("c2")

	require.NoError(t, b.Publish(ctx, "c1", Event{Type: "ping", Data: json.RawMessage(`{}`)}))

	assert.Equal(t, "ping", receive(t, c1).Type)
	assert.Empty(t, c2.Events)
}

func TestBroker_Unsubscribe(t *testing.T) {
	b := NewBroker(nil)
	defer b.Close()

	c := b.Subscribe("c1")
	other := b.Subscribe("c1")
	assert.Equal(t, 2, b.ClientCount("c1"))

	b.Unsubscribe(c)
	b.Unsubscribe(c)

	assert.Equal(t, 1, b.ClientCount("c1"))
	assert.Equal(t, 1, b.TotalClients())
	select {
	case <-c.Done:
	default:
		t.Fatal("done not closed")
	}

	b.Unsubscribe(other)
	assert.Equal(t, 0, b.TotalClients())
}

func TestBroker_FullBufferDrops(t *testing.T) {
	ctx := context.Background()
	b := NewBroker(nil)
	defer b.Close()

	c := b.Subscribe("c1")
	for i := 0; i < clientBufferSize+5; i++ {
		require.NoError(t, b.Publish(ctx, "c1", Event{Type: "x"}))
	}
	assert.Len(t, c.Events, clientBufferSize)
}

func TestBroker_CloseReleasesClients(t *testing.T) {
	b := NewBroker(nil)
	c := b.Subscribe("c1")

	b.Close()

	_, open := <-c.Done
	assert.False(t, open)
	assert.Equal(t, 0, b.TotalClients())
}

func TestBridge(t *testing.T) {
	ctx := context.Background()
	d := dispatch.NewDispatcher()
	b := NewBroker(nil)
	defer b.Close()

	unsubscribe := Bridge(d, b)
	c := b.Subscribe("c1")

	require.NoError(t, d.Publish(ctx, model.EventPairingCodeIssued, model.PairingCodeIssued{ChannelID: "c1", Code: "ABC"}))
	require.NoError(t, d.Publish(ctx, model.EventDisconnected, model.Disconnected{ChannelID: "c2", Reason: "x"}))

	ev := receive(t, c)
	assert.Equal(t, string(model.EventPairingCodeIssued), ev.Type)
	var payload model.PairingCodeIssued
	require.NoError(t, json.Unmarshal(ev.Data, &payload))
	assert.Equal(t, "ABC", payload.Code)
	assert.Empty(t, c.Events)

	unsubscribe()
	require.NoError(t, d.Publish(ctx, model.EventDisconnected, model.Disconnected{ChannelID: "c1"}))
	assert.Empty(t, c.Events)
}
