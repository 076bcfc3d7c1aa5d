package pairing

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/channel-session-go/internal/errors"
	"github.com/openclaw/channel-session-go/internal/model"
	"github.com/openclaw/channel-session-go/internal/util"
)

const (
	DefaultTTL = 60 * time.Second

	maxGenerateAttempts = 10
)

// IdentityResolver yields the account identifier bound to a channel that is
// currently pairing.
type IdentityResolver interface {
	AccountIdentifier(ctx context.Context, channelID string) (string, error)
}

// Publisher is the slice of the event dispatcher the coordinator needs.
type Publisher interface {
	Publish(ctx context.Context, kind model.EventKind, payload any) error
}

// Coordinator holds at most one pairing request per channel. A newly issued
// code replaces the previous one immediately, so the old code is rejected
// from then on.
type Coordinator struct {
	resolver  IdentityResolver
	publisher Publisher
	ttl       time.Duration
	now       func() time.Time
	generate  CodeGenerator

	mu       sync.Mutex
	requests map[string]*model.PairingRequest
	// lapsed keeps purged requests so their code still reads as expired.
	lapsed   map[string]*model.PairingRequest
}

type Option func(*Coordinator)

func WithTTL(ttl time.Duration) Option {
	return func(c *Coordinator) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

func WithCodeGenerator(gen CodeGenerator) Option {
	return func(c *Coordinator) {
		c.generate = gen
	}
}

// WithPublisher announces every newly issued code as pairing_code_issued.
func WithPublisher(p Publisher) Option {
	return func(c *Coordinator) {
		c.publisher = p
	}
}

func NewCoordinator(resolver IdentityResolver, opts ...Option) *Coordinator {
	c := &Coordinator{
		resolver: resolver,
		ttl:      DefaultTTL,
		now:      time.Now,
		generate: GenerateCode,
		requests: make(map[string]*model.PairingRequest),
		lapsed:   make(map[string]*model.PairingRequest),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) TTL() time.Duration {
	return c.ttl
}

// RequestPairing returns the channel's live request unchanged unless forceNew
// is set or it has expired, in which case a new code supersedes it.
func (c *Coordinator) RequestPairing(ctx context.Context, channelID string, forceNew bool) (*model.PairingRequest, error) {
	accountIdentifier, err := c.resolver.AccountIdentifier(ctx, channelID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if current, ok := c.requests[channelID]; ok && !forceNew && !current.IsExpired(c.now()) {
		out := *current
		c.mu.Unlock()
		return &out, nil
	}

	previous := ""
	if current, ok := c.requests[channelID]; ok {
		previous = current.Code
	}
	code := c.freshCode(previous)
	req := c.storeLocked(channelID, code, accountIdentifier)
	c.mu.Unlock()

	c.announce(ctx, req, previous != "")
	return req, nil
}

// Issue adopts a code produced by the remote agent as the channel's current
// request, superseding any earlier one.
func (c *Coordinator) Issue(ctx context.Context, channelID, code string) (*model.PairingRequest, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperrors.MissingRequired("code")
	}
	accountIdentifier, err := c.resolver.AccountIdentifier(ctx, channelID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	current, ok := c.requests[channelID]
	if ok && current.Code == code && !current.IsExpired(c.now()) {
		out := *current
		c.mu.Unlock()
		return &out, nil
	}
	req := c.storeLocked(channelID, code, accountIdentifier)
	c.mu.Unlock()

	c.announce(ctx, req, ok)
	return req, nil
}

// CompletePairing consumes the channel's current request if code matches it
// and it has not expired, returning the bound account identifier.
func (c *Coordinator) CompletePairing(ctx context.Context, channelID, code string) (string, error) {
	code = strings.TrimSpace(code)

	c.mu.Lock()
	defer c.mu.Unlock()

	current, ok := c.requests[channelID]
	if !ok {
		current, ok = c.lapsed[channelID]
	}
	if !ok || !util.ConstantTimeEqual(current.Code, code) {
		log.Warn().
			Str("channelId", channelID).
			Str("code", util.MaskCode(code)).
			Msg("stale pairing code presented")
		return "", apperrors.StalePairingCode()
	}
	if current.IsExpired(c.now()) {
		log.Warn().
			Str("channelId", channelID).
			Time("expiresAt", current.ExpiresAt).
			Msg("expired pairing code presented")
		return "", apperrors.PairingExpired()
	}

	delete(c.requests, channelID)
	delete(c.lapsed, channelID)

	log.Info().
		Str("channelId", channelID).
		Str("accountIdentifier", current.AccountIdentifier).
		Msg("pairing completed")

	return current.AccountIdentifier, nil
}

// CancelPairing drops any request for the channel.
func (c *Coordinator) CancelPairing(channelID string) {
	c.mu.Lock()
	_, ok := c.requests[channelID]
	delete(c.requests, channelID)
	delete(c.lapsed, channelID)
	c.mu.Unlock()

	if ok {
		log.Debug().Str("channelId", channelID).Msg("pairing canceled")
	}
}

// Current returns the channel's request, expired or not, or nil.
func (c *Coordinator) Current(channelID string) *model.PairingRequest {
	c.mu.Lock()
	defer c.mu.Unlock()

	req, ok := c.requests[channelID]
	if !ok {
		return nil
	}
	out := *req
	return &out
}

// Latest returns the channel's request, falling back to one already purged.
func (c *Coordinator) Latest(channelID string) *model.PairingRequest {
	c.mu.Lock()
	defer c.mu.Unlock()

	req, ok := c.requests[channelID]
	if !ok {
		req, ok = c.lapsed[channelID]
	}
	if !ok {
		return nil
	}
	out := *req
	return &out
}

// PurgeExpired drops requests past their expiry and reports how many went.
// A purged request is remembered while its channel is still pairing, so a
// late completion is reported as expired rather than accepted or stale.
func (c *Coordinator) PurgeExpired(ctx context.Context) (int64, error) {
	c.mu.Lock()
	now := c.now()
	var purged int64
	for id, req := range c.requests {
		if req.IsExpired(now) {
			delete(c.requests, id)
			c.lapsed[id] = req
			purged++
		}
	}
	lapsed := make([]string, 0, len(c.lapsed))
	for id := range c.lapsed {
		lapsed = append(lapsed, id)
	}
	c.mu.Unlock()

	for _, id := range lapsed {
		if _, err := c.resolver.AccountIdentifier(ctx, id); err == nil {
			continue
		}
		c.mu.Lock()
		if _, live := c.requests[id]; !live {
			delete(c.lapsed, id)
		}
		c.mu.Unlock()
	}
	return purged, nil
}

func (c *Coordinator) freshCode(previous string) string {
	var code string
	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		code = c.generate()
		if code != previous {
			break
		}
	}
	return code
}

func (c *Coordinator) storeLocked(channelID, code, accountIdentifier string) *model.PairingRequest {
	now := c.now()
	req := &model.PairingRequest{
		ChannelID:         channelID,
		Code:              code,
		AccountIdentifier: accountIdentifier,
		IssuedAt:          now,
		ExpiresAt:         now.Add(c.ttl),
	}
	c.requests[channelID] = req
	delete(c.lapsed, channelID)
	out := *req
	return &out
}

func (c *Coordinator) announce(ctx context.Context, req *model.PairingRequest, superseded bool) {
	log.Info().
		Str("channelId", req.ChannelID).
		Str("code", util.MaskCode(req.Code)).
		Bool("superseded", superseded).
		Time("expiresAt", req.ExpiresAt).
		Msg("pairing code issued")

	if c.publisher == nil {
		return
	}
	_ = c.publisher.Publish(ctx, model.EventPairingCodeIssued, model.PairingCodeIssued{
		ChannelID: req.ChannelID,
		Code:      req.Code,
		ExpiresAt: req.ExpiresAt,
	})
}
