package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/channel-session-go/internal/errors"
	"github.com/openclaw/channel-session-go/internal/model"
)

// Handler receives one event payload. A returned error or a panic is isolated
// to this handler; remaining subscribers still receive the event.
type Handler func(ctx context.Context, payload any) error

// ErrorHook is told about every failed delivery.
type ErrorHook func(kind model.EventKind, err *apperrors.AppError)

type Dispatcher struct {
	subs    *Subscriptions[model.EventKind, Handler]
	onError ErrorHook
}

type Option func(*Dispatcher)

func WithErrorHook(hook ErrorHook) Option {
	return func(d *Dispatcher) {
		d.onError = hook
	}
}

func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		subs: NewSubscriptions[model.EventKind, Handler](),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) Subscribe(kind model.EventKind, handler Handler) func() {
	return d.subs.Add(kind, handler)
}

// SubscribeAll registers handler for every event kind. The returned function
// removes all of those registrations.
func (d *Dispatcher) SubscribeAll(handler func(ctx context.Context, kind model.EventKind, payload any) error) func() {
	unsubs := make([]func(), 0, len(model.EventKinds))
	for _, kind := range model.EventKinds {
		kind := kind
		unsubs = append(unsubs, d.subs.Add(kind, func(ctx context.Context, payload any) error {
			return handler(ctx, kind, payload)
		}))
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}

// Publish delivers payload synchronously to the subscribers registered when
// the call began, in registration order. The returned error joins every
// SUBSCRIBER_ERROR raised during this pass and is nil when all succeeded.
func (d *Dispatcher) Publish(ctx context.Context, kind model.EventKind, payload any) error {
	handlers := d.subs.Snapshot(kind)

	var errs []error
	for i, h := range handlers {
		if err := d.deliver(ctx, kind, h, payload); err != nil {
			appErr := apperrors.SubscriberError(string(kind), err).
				WithDetails(map[string]any{"subscriber": i})
			log.Error().
				Err(err).
				Str("event", string(kind)).
				Int("subscriber", i).
				Msg("event subscriber failed")
			if d.onError != nil {
				d.onError(kind, appErr)
			}
			errs = append(errs, appErr)
		}
	}

	log.Debug().
		Str("event", string(kind)).
		Int("subscribers", len(handlers)).
		Int("failed", len(errs)).
		Msg("event published")

	return errors.Join(errs...)
}

func (d *Dispatcher) deliver(ctx context.Context, kind model.EventKind, h Handler, payload any) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in %s handler: %v", kind, p)
		}
	}()
	return h(ctx, payload)
}

func (d *Dispatcher) SubscriberCount(kind model.EventKind) int {
	return d.subs.Len(kind)
}
