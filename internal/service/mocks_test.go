package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"

	"github.com/openclaw/channel-session-go/internal/database"
	"github.com/openclaw/channel-session-go/internal/model"
	"github.com/openclaw/channel-session-go/internal/repository"
)

type mockChannelRepo struct {
	mock.Mock
}

func (m *mockChannelRepo) FindByID(ctx context.Context, id string) (*model.Channel, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Channel), args.Error(1)
}

func (m *mockChannelRepo) FindAll(ctx context.Context, limit, offset int) ([]model.Channel, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Channel), args.Error(1)
}

func (m *mockChannelRepo) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *mockChannelRepo) Create(ctx context.Context, params model.CreateChannelParams) (*model.Channel, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Channel), args.Error(1)
}

func (m *mockChannelRepo) Update(ctx context.Context, id string, params model.UpdateChannelParams) (*model.Channel, error) {
	args := m.Called(ctx, id, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Channel), args.Error(1)
}

func (m *mockChannelRepo) UpdateStatus(ctx context.Context, id string, status model.ChannelStatus, lastActiveAt *time.Time) error {
	args := m.Called(ctx, id, status, lastActiveAt)
	return args.Error(0)
}

func (m *mockChannelRepo) ResetStatuses(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockChannelRepo) Delete(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockChannelRepo) WithTx(_ *sqlx.Tx) repository.ChannelRepository {
	return m
}

type mockSessionRepo struct {
	mock.Mock
}

func (m *mockSessionRepo) Load(ctx context.Context, channelID string) (*model.Session, error) {
	args := m.Called(ctx, channelID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *mockSessionRepo) Save(ctx context.Context, session *model.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *mockSessionRepo) Delete(ctx context.Context, channelID string) error {
	args := m.Called(ctx, channelID)
	return args.Error(0)
}

func (m *mockSessionRepo) DeleteAll(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSessionRepo) WithTx(_ *sqlx.Tx) repository.SessionRepository {
	return m
}

type mockContactRepo struct {
	mock.Mock
}

func (m *mockContactRepo) CreateBatch(ctx context.Context, params []model.CreateContactParams) ([]model.ContactRecord, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ContactRecord), args.Error(1)
}

func (m *mockContactRepo) List(ctx context.Context, filter model.ContactFilter) ([]model.ContactRecord, int, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]model.ContactRecord), args.Int(1), args.Error(2)
}

func (m *mockContactRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockContactRepo) WithTx(_ *sqlx.Tx) repository.ContactRepository {
	return m
}

// inlineTx runs the callback without a real transaction.
type inlineTx struct {
	calls int
}

func (i *inlineTx) WithTx(_ context.Context, fn database.TxFunc) error {
	i.calls++
	return fn(nil)
}

type fakeTerminator struct {
	status   model.ChannelStatus
	removals []string
	err      error
}

func (f *fakeTerminator) Remove(ctx context.Context, channelID, reason string, deleteRows func(ctx context.Context) error) error {
	f.removals = append(f.removals, channelID+":"+reason)
	if f.err != nil {
		return f.err
	}
	return deleteRows(ctx)
}

func (f *fakeTerminator) Status(_ context.Context, _ string) (model.ChannelStatus, error) {
	if f.status == "" {
		return model.ChannelStatusDisconnected, nil
	}
	return f.status, nil
}

type capturePublisher struct {
	events []recordedEvent
}

func (c *capturePublisher) Publish(_ context.Context, kind model.EventKind, payload any) error {
	c.events = append(c.events, recordedEvent{kind, payload})
	return nil
}
