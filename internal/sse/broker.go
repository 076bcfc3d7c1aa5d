package sse

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	redisclient "github.com/openclaw/channel-session-go/internal/redis"
)

const (
	HeartbeatInterval = 30 * time.Second

	clientBufferSize = 100
)

type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type Client struct {
	ChannelID string
	Events    chan Event
	Done      chan struct{}
}

// Broker fans events out to SSE clients grouped by session channel. With a
// Redis client, events travel through pub/sub so every instance sees them;
// without one they are delivered in-process.
type Broker struct {
	redis   *redisclient.Client
	clients map[string]map[*Client]bool // channelID -> set of clients
	relays  map[string]context.CancelFunc
	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewBroker(redisClient *redisclient.Client) *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		redis:   redisClient,
		clients: make(map[string]map[*Client]bool),
		relays:  make(map[string]context.CancelFunc),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (b *Broker) Subscribe(channelID string) *Client {
	client := &Client{
		ChannelID: channelID,
		Events:    make(chan Event, clientBufferSize),
		Done:      make(chan struct{}),
	}

	b.mu.Lock()
	if b.clients[channelID] == nil {
		b.clients[channelID] = make(map[*Client]bool)
		if b.redis != nil {
			relayCtx, cancel := context.WithCancel(b.ctx)
			b.relays[channelID] = cancel
			go b.subscribeToRedis(relayCtx, channelID)
		}
	}
	b.clients[channelID][client] = true
	clientCount := len(b.clients[channelID])
	b.mu.Unlock()

	log.Info().
		Str("channelId", channelID).
		Int("clientCount", clientCount).
		Msg("sse client subscribed")

	return client
}

func (b *Broker) Unsubscribe(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if clients, ok := b.clients[client.ChannelID]; ok {
		if !clients[client] {
			return
		}
		delete(clients, client)
		close(client.Done)

		if len(clients) == 0 {
			delete(b.clients, client.ChannelID)
			if cancel, ok := b.relays[client.ChannelID]; ok {
				cancel()
				delete(b.relays, client.ChannelID)
			}
		}

		log.Info().
			Str("channelId", client.ChannelID).
			Int("clientCount", len(clients)).
			Msg("sse client unsubscribed")
	}
}

func (b *Broker) Publish(ctx context.Context, channelID string, event Event) error {
	if b.redis == nil {
		b.broadcast(channelID, event)
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.redis.Publish(ctx, redisclient.EventChannel(channelID), data).Err()
}

func (b *Broker) subscribeToRedis(ctx context.Context, channelID string) {
	topic := redisclient.EventChannel(channelID)
	pubsub := b.redis.Subscribe(ctx, topic)
	defer pubsub.Close()

	log.Debug().
		Str("channelId", channelID).
		Str("topic", topic).
		Msg("redis pubsub subscribed")

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Error().Err(err).Msg("failed to unmarshal event")
				continue
			}

			b.broadcast(channelID, event)
		}
	}
}

func (b *Broker) broadcast(channelID string, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for client := range b.clients[channelID] {
		select {
		case client.Events <- event:
		default:
			log.Warn().
				Str("channelId", channelID).
				Str("type", event.Type).
				Msg("client event buffer full, dropping event")
		}
	}
}

func (b *Broker) Close() {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, clients := range b.clients {
		for client := range clients {
			close(client.Done)
		}
	}
	b.clients = make(map[string]map[*Client]bool)
	b.relays = make(map[string]context.CancelFunc)
}

func (b *Broker) ClientCount(channelID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients[channelID])
}

func (b *Broker) TotalClients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	total := 0
	for _, clients := range b.clients {
		total += len(clients)
	}
	return total
}
