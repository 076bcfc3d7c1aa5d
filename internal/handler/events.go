package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/channel-session-go/internal/model"
	"github.com/openclaw/channel-session-go/internal/sse"
)

// ChannelLookup resolves the channel an event stream is opened for.
type ChannelLookup interface {
	Get(ctx context.Context, id string) (*model.Channel, error)
}

type EventsHandler struct {
	broker   *sse.Broker
	channels ChannelLookup
	sessions SessionService
}

func NewEventsHandler(broker *sse.Broker, channels ChannelLookup, sessions SessionService) *EventsHandler {
	return &EventsHandler{
		broker:   broker,
		channels: channels,
		sessions: sessions,
	}
}

// GET /v1/channels/{id}/events
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	channelID := chi.URLParam(r, "id")

	if _, err := h.channels.Get(ctx, channelID); err != nil {
		writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	client := h.broker.Subscribe(channelID)
	defer h.broker.Unsubscribe(client)

	log.Info().
		Str("channelId", channelID).
		Msg("sse connection established")

	status, _ := h.sessions.Status(ctx, channelID)
	if err := h.sendEvent(w, flusher, "connected", map[string]any{
		"channelId": channelID,
		"status":    status,
		"pairing":   h.sessions.CurrentPairing(channelID),
	}); err != nil {
		return
	}

	heartbeat := time.NewTicker(sse.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().
				Str("channelId", channelID).
				Msg("sse connection closed by client")
			return

		case <-client.Done:
			log.Info().
				Str("channelId", channelID).
				Msg("sse connection closed by broker")
			return

		case event := <-client.Events:
			if err := h.sendRawEvent(w, flusher, event); err != nil {
				log.Error().Err(err).Msg("failed to send event")
				return
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": ping\n\n"); err != nil {
				log.Debug().
					Str("channelId", channelID).
					Msg("heartbeat failed, closing connection")
				return
			}
			flusher.Flush()
		}
	}
}

func (h *EventsHandler) sendEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	return h.sendRawEvent(w, flusher, sse.Event{Type: eventType, Data: jsonData})
}

func (h *EventsHandler) sendRawEvent(w http.ResponseWriter, flusher http.Flusher, event sse.Event) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", event.Type); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", event.Data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
