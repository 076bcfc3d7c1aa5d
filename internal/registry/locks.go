package registry

import "sync"

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// channelLocks serializes work per channel id. Entries are reference counted
// and dropped once nobody holds or waits on them.
type channelLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

func newChannelLocks() *channelLocks {
	return &channelLocks{entries: make(map[string]*lockEntry)}
}

func (l *channelLocks) lock(channelID string) func() {
	l.mu.Lock()
	entry, ok := l.entries[channelID]
	if !ok {
		entry = &lockEntry{}
		l.entries[channelID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.entries, channelID)
		}
		l.mu.Unlock()
	}
}

func (l *channelLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
