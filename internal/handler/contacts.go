package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/openclaw/channel-session-go/internal/errors"
	"github.com/openclaw/channel-session-go/internal/model"
	"github.com/openclaw/channel-session-go/internal/service"
	"github.com/openclaw/channel-session-go/internal/util"
)

type ContactService interface {
	List(ctx context.Context, filter model.ContactFilter) (*service.ContactPage, error)
}

type ContactsHandler struct {
	contacts ContactService
}

func NewContactsHandler(contacts ContactService) *ContactsHandler {
	return &ContactsHandler{contacts: contacts}
}

func (h *ContactsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	return r
}

// GET /v1/contacts?search=&channelId=&from=&to=&limit=&offset=
func (h *ContactsHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := parseContactFilter(r)
	if err != nil {
		writeError(w, err)
		return
	}

	page, err := h.contacts.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

func parseContactFilter(r *http.Request) (model.ContactFilter, error) {
	q := r.URL.Query()
	p, err := parsePage(r)
	if err != nil {
		return model.ContactFilter{}, err
	}

	filter := model.ContactFilter{
		Search: strings.TrimSpace(q.Get("search")),
		Limit:  p.Limit,
		Offset: p.Offset,
	}

	if channelID := q.Get("channelId"); channelID != "" {
		if !util.IsValidUUID(channelID) {
			return filter, apperrors.InvalidInput("channelId", "must be a UUID")
		}
		filter.ChannelID = channelID
	}

	if filter.From, err = parseTime(q.Get("from"), "from"); err != nil {
		return filter, err
	}
	if filter.To, err = parseTime(q.Get("to"), "to"); err != nil {
		return filter, err
	}
	return filter, nil
}

// parseTime accepts RFC 3339 timestamps or plain dates.
func parseTime(value, field string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, value); err == nil {
			return &t, nil
		}
	}
	return nil, apperrors.InvalidInput(field, "expected RFC 3339 timestamp or YYYY-MM-DD")
}
