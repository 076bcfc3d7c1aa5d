package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openclaw/channel-session-go/internal/model"
	"github.com/openclaw/channel-session-go/internal/service"
)

type ChannelService interface {
	Create(ctx context.Context, params model.CreateChannelParams) (*model.Channel, error)
	Get(ctx context.Context, id string) (*model.Channel, error)
	List(ctx context.Context, limit, offset int) (*service.ChannelList, error)
	Update(ctx context.Context, id string, params model.UpdateChannelParams) (*model.Channel, error)
	Delete(ctx context.Context, id string) error
}

type SessionService interface {
	Connect(ctx context.Context, channelID string, forceNew bool) (*service.ConnectResult, error)
	RequestPairing(ctx context.Context, channelID string, forceNew bool) (*model.PairingRequest, error)
	CompletePairing(ctx context.Context, channelID, code string) (*model.Session, error)
	Disconnect(ctx context.Context, channelID, reason string) error
	RequestContacts(ctx context.Context, channelID string) error
	Status(ctx context.Context, channelID string) (model.ChannelStatus, error)
	Session(ctx context.Context, channelID string) (*model.Session, error)
	CurrentPairing(channelID string) *model.PairingRequest
}

// channelView is a channel record with its live session state.
type channelView struct {
	*model.Channel
	Session *model.Session        `json:"session,omitempty"`
	Pairing *model.PairingRequest `json:"pairing,omitempty"`
}

type ChannelsHandler struct {
	channels ChannelService
	sessions SessionService
	events   http.HandlerFunc
}

func NewChannelsHandler(channels ChannelService, sessions SessionService, events *EventsHandler) *ChannelsHandler {
	h := &ChannelsHandler{
		channels: channels,
		sessions: sessions,
	}
	if events != nil {
		h.events = events.ServeHTTP
	}
	return h
}

func (h *ChannelsHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Create)
	r.Get("/", h.List)

	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Patch("/", h.Update)
		r.Delete("/", h.Delete)

		r.Post("/connect", h.Connect)
		r.Post("/pairing", h.RequestPairing)
		r.Post("/pairing/complete", h.CompletePairing)
		r.Post("/disconnect", h.Disconnect)
		r.Post("/contacts/sync", h.SyncContacts)
		if h.events != nil {
			r.Get("/events", h.events)
		}
	})

	return r
}

// POST /v1/channels
func (h *ChannelsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DisplayName       string `json:"displayName"`
		AccountIdentifier string `json:"accountIdentifier"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	ch, err := h.channels.Create(r.Context(), model.CreateChannelParams{
		DisplayName:       req.DisplayName,
		AccountIdentifier: req.AccountIdentifier,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, ch)
}

// GET /v1/channels
func (h *ChannelsHandler) List(w http.ResponseWriter, r *http.Request) {
	p, err := parsePage(r)
	if err != nil {
		writeError(w, err)
		return
	}

	list, err := h.channels.List(r.Context(), p.Limit, p.Offset)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items":  list.Channels,
		"total":  list.Total,
		"limit":  p.Limit,
		"offset": p.Offset,
	})
}

// GET /v1/channels/{id}
func (h *ChannelsHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	ch, err := h.channels.Get(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}

	view := channelView{Channel: ch}
	status, err := h.sessions.Status(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	ch.Status = status
	if status != model.ChannelStatusDisconnected {
		view.Session, _ = h.sessions.Session(ctx, id)
		view.Pairing = h.sessions.CurrentPairing(id)
	}

	writeJSON(w, http.StatusOK, view)
}

// PATCH /v1/channels/{id}
func (h *ChannelsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DisplayName       *string `json:"displayName"`
		AccountIdentifier *string `json:"accountIdentifier"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	ch, err := h.channels.Update(r.Context(), chi.URLParam(r, "id"), model.UpdateChannelParams{
		DisplayName:       req.DisplayName,
		AccountIdentifier: req.AccountIdentifier,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ch)
}

// DELETE /v1/channels/{id}
func (h *ChannelsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.channels.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// POST /v1/channels/{id}/connect
func (h *ChannelsHandler) Connect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ForceNew bool `json:"forceNew"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.sessions.Connect(r.Context(), chi.URLParam(r, "id"), req.ForceNew)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// POST /v1/channels/{id}/pairing
func (h *ChannelsHandler) RequestPairing(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ForceNew bool `json:"forceNew"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	pairing, err := h.sessions.RequestPairing(r.Context(), chi.URLParam(r, "id"), req.ForceNew)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, pairing)
}

// POST /v1/channels/{id}/pairing/complete
func (h *ChannelsHandler) CompletePairing(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	sess, err := h.sessions.CompletePairing(r.Context(), chi.URLParam(r, "id"), req.Code)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sess)
}

// POST /v1/channels/{id}/disconnect
func (h *ChannelsHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	var req struct {
		Reason string `json:"reason"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if _, err := h.channels.Get(ctx, id); err != nil {
		writeError(w, err)
		return
	}
	if err := h.sessions.Disconnect(ctx, id, req.Reason); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"channelId": id,
		"status":    model.ChannelStatusDisconnected,
	})
}

// POST /v1/channels/{id}/contacts/sync
func (h *ChannelsHandler) SyncContacts(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.sessions.RequestContacts(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"channelId": id,
		"requested": true,
	})
}
