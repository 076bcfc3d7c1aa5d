package registry

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/channel-session-go/internal/errors"
	"github.com/openclaw/channel-session-go/internal/model"
)

// ReleaseHook runs inside a channel's critical section when its session is
// torn down, before the disconnected event goes out.
type ReleaseHook = func(ctx context.Context, channelID string)

// Registry is the authoritative map from channel id to Session. A channel
// with no session is disconnected. Transitions for one channel are
// serialized; different channels proceed independently.
type Registry struct {
	store     Store
	channels  ChannelStatusWriter
	publisher Publisher
	now       func() time.Time
	locks     *channelLocks

	mu       sync.RWMutex
	sessions map[string]*model.Session
	// reported marks channels whose disconnect was already announced, so a
	// repeated MarkDisconnected stays quiet.
	reported map[string]bool
	// retired holds channels being deleted or already deleted.
	retired  map[string]bool
	hooks    []ReleaseHook
}

type Option func(*Registry)

func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// WithChannelStatusWriter keeps the channel record's status in step with the registry.
func WithChannelStatusWriter(w ChannelStatusWriter) Option {
	return func(r *Registry) {
		r.channels = w
	}
}

func New(store Store, publisher Publisher, opts ...Option) *Registry {
	r := &Registry{
		store:     store,
		publisher: publisher,
		now:       time.Now,
		locks:     newChannelLocks(),
		sessions:  make(map[string]*model.Session),
		reported:  make(map[string]bool),
		retired:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnRelease registers a hook run by MarkDisconnected.
func (r *Registry) OnRelease(hook ReleaseHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, hook)
}

// Status reports the channel's current status; disconnected when no session exists.
func (r *Registry) Status(ctx context.Context, channelID string) (model.ChannelStatus, error) {
	sess, err := r.lookup(ctx, channelID)
	if err != nil {
		return model.ChannelStatusDisconnected, err
	}
	if sess == nil {
		return model.ChannelStatusDisconnected, nil
	}
	return sess.Status, nil
}

// Session returns a copy of the channel's session, or nil.
func (r *Registry) Session(ctx context.Context, channelID string) (*model.Session, error) {
	sess, err := r.lookup(ctx, channelID)
	if err != nil || sess == nil {
		return nil, err
	}
	out := *sess
	return &out, nil
}

// AccountIdentifier returns the identifier bound to a channel in pairing.
func (r *Registry) AccountIdentifier(ctx context.Context, channelID string) (string, error) {
	sess, err := r.lookup(ctx, channelID)
	if err != nil {
		return "", err
	}
	if sess == nil || sess.Status != model.ChannelStatusPairing {
		return "", apperrors.UnknownChannel(channelID)
	}
	return sess.AccountIdentifier, nil
}

// BeginConnect puts the channel into pairing. It refuses a channel that is
// already pairing or active and leaves its state untouched in that case.
func (r *Registry) BeginConnect(ctx context.Context, channelID, accountIdentifier string) (*model.Session, error) {
	if r.isRetired(channelID) {
		return nil, apperrors.NotFound("Channel")
	}
	unlock := r.locks.lock(channelID)
	defer unlock()
	if r.isRetired(channelID) {
		return nil, apperrors.NotFound("Channel")
	}

	existing, err := r.lookup(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		switch existing.Status {
		case model.ChannelStatusPairing:
			return nil, apperrors.AlreadyConnecting(channelID)
		case model.ChannelStatusActive:
			return nil, apperrors.AlreadyActive(channelID)
		}
	}

	sess := &model.Session{
		ChannelID:         channelID,
		AccountIdentifier: accountIdentifier,
		Status:            model.ChannelStatusPairing,
		UpdatedAt:         r.now(),
	}
	if err := r.store.Save(ctx, sess); err != nil {
		return nil, apperrors.Database(err)
	}

	r.mu.Lock()
	r.sessions[channelID] = sess
	delete(r.reported, channelID)
	r.mu.Unlock()

	r.mirror(ctx, channelID, model.ChannelStatusPairing, nil)

	log.Info().
		Str("channelId", channelID).
		Str("status", string(sess.Status)).
		Msg("session pairing started")

	out := *sess
	return &out, nil
}

// MarkActive moves a pairing session to active and stamps lastActiveAt.
func (r *Registry) MarkActive(ctx context.Context, channelID, resolvedAccountIdentifier string) (*model.Session, error) {
	unlock := r.locks.lock(channelID)
	defer unlock()

	existing, err := r.lookup(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if existing == nil || existing.Status != model.ChannelStatusPairing {
		return nil, apperrors.UnknownChannel(channelID)
	}

	now := r.now()
	sess := *existing
	sess.Status = model.ChannelStatusActive
	sess.LastActiveAt = &now
	sess.UpdatedAt = now
	if resolvedAccountIdentifier != "" {
		sess.AccountIdentifier = resolvedAccountIdentifier
	}
	if err := r.store.Save(ctx, &sess); err != nil {
		return nil, apperrors.Database(err)
	}

	r.mu.Lock()
	r.sessions[channelID] = &sess
	r.mu.Unlock()

	r.mirror(ctx, channelID, model.ChannelStatusActive, &now)

	log.Info().
		Str("channelId", channelID).
		Str("accountIdentifier", sess.AccountIdentifier).
		Msg("session active")

	out := sess
	return &out, nil
}

// MarkDisconnected removes the channel's session, runs release hooks and
// announces the disconnect. Calling it again before the channel reconnects
// does nothing and returns nil.
func (r *Registry) MarkDisconnected(ctx context.Context, channelID, reason string) error {
	unlock := r.locks.lock(channelID)
	hadSession, announce := r.releaseLocked(ctx, channelID)
	unlock()

	if announce {
		r.announce(ctx, channelID, reason, hadSession)
	}
	return nil
}

// Remove tears the channel down like MarkDisconnected and runs deleteRows in
// the same critical section. The channel id is retired for the duration and,
// once deleteRows succeeds, for good: BeginConnect refuses it with NOT_FOUND.
func (r *Registry) Remove(ctx context.Context, channelID, reason string, deleteRows func(ctx context.Context) error) error {
	r.mu.Lock()
	r.retired[channelID] = true
	r.mu.Unlock()

	unlock := r.locks.lock(channelID)
	hadSession, announce := r.releaseLocked(ctx, channelID)
	if !announce {
		// already disconnected; release again so nothing outlives the rows
		r.runHooks(ctx, channelID)
	}
	err := deleteRows(ctx)

	if err != nil {
		r.mu.Lock()
		delete(r.retired, channelID)
		r.mu.Unlock()
	}
	unlock()

	if announce {
		r.announce(ctx, channelID, reason, hadSession)
	}
	return err
}

// releaseLocked drops the channel's session and runs the release hooks. The
// caller holds the channel lock.
func (r *Registry) releaseLocked(ctx context.Context, channelID string) (hadSession, announce bool) {
	existing, lookupErr := r.lookup(ctx, channelID)
	if lookupErr != nil {
		log.Warn().Err(lookupErr).Str("channelId", channelID).Msg("load session before disconnect failed")
	}

	r.mu.RLock()
	alreadyReported := r.reported[channelID]
	r.mu.RUnlock()

	if existing == nil && lookupErr == nil && alreadyReported {
		return false, false
	}

	// a failed lookup may hide a persisted session
	hadSession = existing != nil || lookupErr != nil
	stored := true
	if hadSession {
		if err := r.store.Delete(ctx, channelID); err != nil {
			log.Error().Err(err).Str("channelId", channelID).Msg("delete session failed")
			stored = false
		}
	}

	r.mu.Lock()
	delete(r.sessions, channelID)
	if stored {
		r.reported[channelID] = true
	}
	r.mu.Unlock()

	r.runHooks(ctx, channelID)

	if hadSession {
		r.mirror(ctx, channelID, model.ChannelStatusDisconnected, nil)
	}
	return hadSession, true
}

func (r *Registry) runHooks(ctx context.Context, channelID string) {
	r.mu.RLock()
	hooks := append([]ReleaseHook(nil), r.hooks...)
	r.mu.RUnlock()

	for _, hook := range hooks {
		hook(ctx, channelID)
	}
}

func (r *Registry) announce(ctx context.Context, channelID, reason string, hadSession bool) {
	log.Info().
		Str("channelId", channelID).
		Str("reason", reason).
		Bool("hadSession", hadSession).
		Msg("session disconnected")

	if r.publisher != nil {
		_ = r.publisher.Publish(ctx, model.EventDisconnected, model.Disconnected{
			ChannelID: channelID,
			Reason:    reason,
		})
	}
}

// Channels lists channel ids that currently hold a session.
func (r *Registry) Channels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

func (r *Registry) isRetired(channelID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.retired[channelID]
}

// lookup reads the cached session, falling back to the store on a miss.
func (r *Registry) lookup(ctx context.Context, channelID string) (*model.Session, error) {
	r.mu.RLock()
	sess, ok := r.sessions[channelID]
	reported := r.reported[channelID]
	r.mu.RUnlock()
	if ok || reported {
		return sess, nil
	}

	loaded, err := r.store.Load(ctx, channelID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if loaded == nil {
		return nil, nil
	}

	r.mu.Lock()
	if cached, ok := r.sessions[channelID]; ok {
		loaded = cached
	} else {
		r.sessions[channelID] = loaded
	}
	r.mu.Unlock()
	return loaded, nil
}

func (r *Registry) mirror(ctx context.Context, channelID string, status model.ChannelStatus, lastActiveAt *time.Time) {
	if r.channels == nil {
		return
	}
	if err := r.channels.UpdateStatus(ctx, channelID, status, lastActiveAt); err != nil {
		log.Warn().
			Err(err).
			Str("channelId", channelID).
			Str("status", string(status)).
			Msg("mirror channel status failed")
	}
}
