package registry

import (
	"context"
	"sync"
	"time"

	"github.com/openclaw/channel-session-go/internal/model"
)

// Store persists sessions keyed by channel id. Load returns nil, nil when the
// channel has no session.
type Store interface {
	Load(ctx context.Context, channelID string) (*model.Session, error)
	Save(ctx context.Context, session *model.Session) error
	Delete(ctx context.Context, channelID string) error
}

// ChannelStatusWriter mirrors registry transitions onto the channel record.
type ChannelStatusWriter interface {
	UpdateStatus(ctx context.Context, channelID string, status model.ChannelStatus, lastActiveAt *time.Time) error
}

// Publisher is the slice of the event dispatcher the registry needs.
type Publisher interface {
	Publish(ctx context.Context, kind model.EventKind, payload any) error
}

type memoryStore struct {
	mu       sync.RWMutex
	sessions map[string]model.Session
}

// NewMemoryStore returns a Store that keeps sessions in process memory.
func NewMemoryStore() Store {
	return &memoryStore{sessions: make(map[string]model.Session)}
}

func (s *memoryStore) Load(_ context.Context, channelID string) (*model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[channelID]
	if !ok {
		return nil, nil
	}
	return &sess, nil
}

func (s *memoryStore) Save(_ context.Context, session *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ChannelID] = *session
	return nil
}

func (s *memoryStore) Delete(_ context.Context, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, channelID)
	return nil
}
