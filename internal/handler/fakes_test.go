package handler

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/openclaw/channel-session-go/internal/errors"
	"github.com/openclaw/channel-session-go/internal/model"
	"github.com/openclaw/channel-session-go/internal/service"
)

const testChannelID = "0b6f8a52-8a63-4b49-9d55-1f2f0f4c1a01"

type fakeChannels struct {
	mu       sync.Mutex
	channels map[string]*model.Channel
	created  []model.CreateChannelParams
	updated  []model.UpdateChannelParams
	deleted  []string
}

func newFakeChannels() *fakeChannels {
	return &fakeChannels{channels: map[string]*model.Channel{
		testChannelID: {ID: testChannelID, DisplayName: "Support", AccountIdentifier: "+15550000", Status: model.ChannelStatusDisconnected},
	}}
}

func (f *fakeChannels) Create(_ context.Context, params model.CreateChannelParams) (*model.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if params.DisplayName == "" {
		return nil, apperrors.MissingRequired("displayName")
	}
	f.created = append(f.created, params)
	return &model.Channel{ID: "new", DisplayName: params.DisplayName, AccountIdentifier: params.AccountIdentifier}, nil
}

func (f *fakeChannels) Get(_ context.Context, id string) (*model.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[id]
	if !ok {
		return nil, apperrors.NotFound("Channel")
	}
	out := *ch
	return &out, nil
}

func (f *fakeChannels) List(_ context.Context, limit, offset int) (*service.ChannelList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := &service.ChannelList{Total: len(f.channels)}
	for _, ch := range f.channels {
		list.Channels = append(list.Channels, *ch)
	}
	return list, nil
}

func (f *fakeChannels) Update(_ context.Context, id string, params model.UpdateChannelParams) (*model.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[id]
	if !ok {
		return nil, apperrors.NotFound("Channel")
	}
	f.updated = append(f.updated, params)
	if params.DisplayName != nil {
		ch.DisplayName = *params.DisplayName
	}
	out := *ch
	return &out, nil
}

func (f *fakeChannels) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.channels[id]; !ok {
		return apperrors.NotFound("Channel")
	}
	delete(f.channels, id)
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeSessions struct {
	mu          sync.Mutex
	status      model.ChannelStatus
	pairing     *model.PairingRequest
	err         error
	connects    []bool
	completes   []string
	disconnects []string
	syncs       []string
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{status: model.ChannelStatusDisconnected}
}

func (f *fakeSessions) Connect(_ context.Context, channelID string, forceNew bool) (*service.ConnectResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.connects = append(f.connects, forceNew)
	f.status = model.ChannelStatusPairing
	f.pairing = &model.PairingRequest{ChannelID: channelID, Code: "ABCD-EFGH", ExpiresAt: time.Now().Add(time.Minute)}
	return &service.ConnectResult{
		Session: &model.Session{ChannelID: channelID, Status: model.ChannelStatusPairing},
		Pairing: f.pairing,
	}, nil
}

func (f *fakeSessions) RequestPairing(_ context.Context, channelID string, forceNew bool) (*model.PairingRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	code := "ABCD-EFGH"
	if forceNew {
		code = "WXYZ-2345"
	}
	f.pairing = &model.PairingRequest{ChannelID: channelID, Code: code}
	return f.pairing, nil
}

func (f *fakeSessions) CompletePairing(_ context.Context, channelID, code string) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completes = append(f.completes, code)
	if f.err != nil {
		return nil, f.err
	}
	f.status = model.ChannelStatusActive
	return &model.Session{ChannelID: channelID, Status: model.ChannelStatusActive}, nil
}

func (f *fakeSessions) Disconnect(_ context.Context, channelID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects = append(f.disconnects, reason)
	f.status = model.ChannelStatusDisconnected
	return nil
}

func (f *fakeSessions) RequestContacts(_ context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.syncs = append(f.syncs, channelID)
	return nil
}

func (f *fakeSessions) Status(_ context.Context, _ string) (model.ChannelStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, nil
}

func (f *fakeSessions) Session(_ context.Context, channelID string) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status == model.ChannelStatusDisconnected {
		return nil, nil
	}
	return &model.Session{ChannelID: channelID, Status: f.status}, nil
}

func (f *fakeSessions) CurrentPairing(_ string) *model.PairingRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pairing
}

type fakeContacts struct {
	filters []model.ContactFilter
}

func (f *fakeContacts) List(_ context.Context, filter model.ContactFilter) (*service.ContactPage, error) {
	f.filters = append(f.filters, filter)
	return &service.ContactPage{
		Contacts: []model.ContactRecord{{ID: "r1", AccountIdentifier: "+15550001", ChannelID: testChannelID}},
		Total:    1,
		Limit:    filter.Limit,
		Offset:   filter.Offset,
	}, nil
}
