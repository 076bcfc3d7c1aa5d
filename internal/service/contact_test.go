package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/openclaw/channel-session-go/internal/errors"
	"github.com/openclaw/channel-session-go/internal/model"
)

func strPtr(s string) *string { return &s }

func TestContactService_Ingest(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	stamped := now.Add(-time.Hour)

	t.Run("stores reported contacts and publishes them", func(t *testing.T) {
		repo := &mockContactRepo{}
		pub := &capturePublisher{}
		svc := NewContactService(repo, pub)
		svc.now = func() time.Time { return now }

		expected := []model.CreateContactParams{
			{AccountIdentifier: "+15550000", DisplayName: strPtr("Alice"), ChannelID: "c1", ReceivedAt: now},
			{AccountIdentifier: "+15550001", ChannelID: "c1", ReceivedAt: stamped, Message: strPtr("hi")},
		}
		stored := []model.ContactRecord{{ID: "r1"}, {ID: "r2"}}
		repo.On("CreateBatch", ctx, expected).Return(stored, nil)

		records, err := svc.Ingest(ctx, "c1", []IncomingContact{
			{Number: "+1 555-0000", Name: strPtr(" Alice ")},
			{Number: "+15550001", Name: strPtr("  "), Timestamp: &stamped, Message: strPtr("hi")},
			{Number: ""},
		})

		require.NoError(t, err)
		assert.Equal(t, stored, records)
		require.Len(t, pub.events, 1)
		assert.Equal(t, model.EventContactsReceived, pub.events[0].kind)
		assert.Equal(t, model.ContactsReceived{ChannelID: "c1", Contacts: stored}, pub.events[0].payload)
	})

	t.Run("empty report still publishes", func(t *testing.T) {
		repo := &mockContactRepo{}
		pub := &capturePublisher{}
		svc := NewContactService(repo, pub)

		records, err := svc.Ingest(ctx, "c1", nil)

		require.NoError(t, err)
		assert.Empty(t, records)
		assert.Len(t, pub.events, 1)
		repo.AssertNotCalled(t, "CreateBatch", mock.Anything, mock.Anything)
	})

	t.Run("storage failure is not published", func(t *testing.T) {
		repo := &mockContactRepo{}
		pub := &capturePublisher{}
		svc := NewContactService(repo, pub)
		repo.On("CreateBatch", ctx, mock.Anything).Return(nil, errors.New("disk full"))

		_, err := svc.Ingest(ctx, "c1", []IncomingContact{{Number: "+1"}})

		assert.Equal(t, apperrors.ErrCodeDatabase, apperrors.GetCode(err))
		assert.Empty(t, pub.events)
	})
}

func TestContactService_List(t *testing.T) {
	ctx := context.Background()

	t.Run("returns page with total", func(t *testing.T) {
		repo := &mockContactRepo{}
		svc := NewContactService(repo, &capturePublisher{})
		filter := model.ContactFilter{Search: "ali", Limit: 10, Offset: 20}
		repo.On("List", ctx, filter).Return([]model.ContactRecord{{ID: "r1"}}, 21, nil)

		page, err := svc.List(ctx, filter)

		require.NoError(t, err)
		assert.Equal(t, 21, page.Total)
		assert.Equal(t, 10, page.Limit)
		assert.Equal(t, 20, page.Offset)
		assert.Len(t, page.Contacts, 1)
	})

	t.Run("rejects inverted date range", func(t *testing.T) {
		svc := NewContactService(&mockContactRepo{}, &capturePublisher{})
		from := time.Now()
		to := from.Add(-time.Hour)

		_, err := svc.List(ctx, model.ContactFilter{From: &from, To: &to})
		assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.GetCode(err))
	})
}

func TestContactService_PurgeOlderThan(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	repo := &mockContactRepo{}
	svc := NewContactService(repo, &capturePublisher{})
	svc.now = func() time.Time { return now }
	repo.On("DeleteOlderThan", ctx, now.Add(-30*24*time.Hour)).Return(int64(4), nil)

	n, err := svc.PurgeOlderThan(ctx, 30*24*time.Hour)

	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}
