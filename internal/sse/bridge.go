package sse

import (
	"context"
	"encoding/json"

	"github.com/openclaw/channel-session-go/internal/model"
)

// EventSource is the dispatcher side of the bridge.
type EventSource interface {
	SubscribeAll(handler func(ctx context.Context, kind model.EventKind, payload any) error) func()
}

// Bridge forwards every channel-scoped dispatcher event to the broker, keyed
// by the event's channel. It returns the unsubscribe function.
func Bridge(source EventSource, broker *Broker) func() {
	return source.SubscribeAll(func(ctx context.Context, kind model.EventKind, payload any) error {
		scoped, ok := payload.(model.ChannelScoped)
		if !ok || scoped.Channel() == "" {
			return nil
		}
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		return broker.Publish(ctx, scoped.Channel(), Event{Type: string(kind), Data: data})
	})
}
