package handoff

import (
	"context"
	"sync"
	"time"
)

// DefaultStagingTTL bounds how long a recovered conversation waits for its agent.
const DefaultStagingTTL = 10 * time.Minute

// Staging holds one pending recovery per session. Take removes it.
type Staging interface {
	Stage(ctx context.Context, sessionID string, msg Message) error
	Take(ctx context.Context, sessionID string) (Message, bool, error)
}

type stagedEntry struct {
	msg     Message
	expires time.Time
}

// MemoryStaging is an in-process Staging with per-entry expiry.
type MemoryStaging struct {
	mu      sync.Mutex
	entries map[string]stagedEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStaging creates a staging area. A non-positive ttl uses DefaultStagingTTL.
func NewMemoryStaging(ttl time.Duration) *MemoryStaging {
	if ttl <= 0 {
		ttl = DefaultStagingTTL
	}
	return &MemoryStaging{
		entries: make(map[string]stagedEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *MemoryStaging) Stage(ctx context.Context, sessionID string, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, e := range s.entries {
		if now.After(e.expires) {
			delete(s.entries, id)
		}
	}
	s.entries[sessionID] = stagedEntry{msg: msg, expires: now.Add(s.ttl)}
	return nil
}

func (s *MemoryStaging) Take(ctx context.Context, sessionID string) (Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[sessionID]
	if !ok {
		return Message{}, false, nil
	}
	delete(s.entries, sessionID)
	if s.now().After(e.expires) {
		return Message{}, false, nil
	}
	return e.msg, true, nil
}
