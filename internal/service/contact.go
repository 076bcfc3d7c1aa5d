package service

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/channel-session-go/internal/errors"
	"github.com/openclaw/channel-session-go/internal/model"
	"github.com/openclaw/channel-session-go/internal/repository"
	"github.com/openclaw/channel-session-go/internal/util"
)

type ContactPage struct {
	Contacts []model.ContactRecord `json:"contacts"`
	Total    int                   `json:"total"`
	Limit    int                   `json:"limit"`
	Offset   int                   `json:"offset"`
}

// ContactService stores contacts reported by the agent and serves listings.
// Records are append-only.
type ContactService struct {
	repo      repository.ContactRepository
	publisher EventPublisher
	now       func() time.Time
}

func NewContactService(repo repository.ContactRepository, publisher EventPublisher) *ContactService {
	return &ContactService{
		repo:      repo,
		publisher: publisher,
		now:       time.Now,
	}
}

// Ingest stores the reported contacts and publishes them as contacts_received.
// Entries without a number are skipped.
func (s *ContactService) Ingest(ctx context.Context, channelID string, contacts []IncomingContact) ([]model.ContactRecord, error) {
	now := s.now()
	params := make([]model.CreateContactParams, 0, len(contacts))
	for _, c := range contacts {
		number := util.NormalizeAccountIdentifier(c.Number)
		if number == "" {
			continue
		}
		receivedAt := now
		if c.Timestamp != nil && !c.Timestamp.IsZero() {
			receivedAt = *c.Timestamp
		}
		params = append(params, model.CreateContactParams{
			AccountIdentifier: number,
			DisplayName:       trimmed(c.Name),
			ChannelID:         channelID,
			ReceivedAt:        receivedAt,
			Message:           trimmed(c.Message),
		})
	}

	records := []model.ContactRecord{}
	if len(params) > 0 {
		var err error
		records, err = s.repo.CreateBatch(ctx, params)
		if err != nil {
			return nil, apperrors.Database(err)
		}
	}

	log.Info().
		Str("channelId", channelID).
		Int("reported", len(contacts)).
		Int("stored", len(records)).
		Msg("contacts ingested")

	_ = s.publisher.Publish(ctx, model.EventContactsReceived, model.ContactsReceived{
		ChannelID: channelID,
		Contacts:  records,
	})
	return records, nil
}

func (s *ContactService) List(ctx context.Context, filter model.ContactFilter) (*ContactPage, error) {
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return nil, apperrors.InvalidInput("date range", "from must not be after to")
	}

	records, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return &ContactPage{
		Contacts: records,
		Total:    total,
		Limit:    filter.Limit,
		Offset:   filter.Offset,
	}, nil
}

// PurgeOlderThan deletes contacts received before now minus retention.
func (s *ContactService) PurgeOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	return s.repo.DeleteOlderThan(ctx, s.now().Add(-retention))
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
