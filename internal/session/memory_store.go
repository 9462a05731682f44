package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultSessionTTL = 24 * time.Hour

type memoryEntry struct {
	conv      Conversation
	expiresAt time.Time
}

// MemoryStore is a TTL-evicting in-memory Store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	ttl     time.Duration
	now     func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemoryStore creates a store whose entries expire ttl after their last write.
// A janitor goroutine sweeps expired entries every sweep interval; pass 0 to rely
// on lazy expiry only.
func NewMemoryStore(ttl, sweep time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	s := &MemoryStore{
		entries: make(map[string]*memoryEntry),
		ttl:     ttl,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	if sweep > 0 {
		go s.janitor(sweep)
	}
	return s
}

// Create always succeeds and resets counters for the session.
func (s *MemoryStore) Create(_ context.Context, sessionID string) (*Conversation, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, ErrMissingSessionID
	}
	now := s.now().UTC()
	conv := Conversation{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.entries[sessionID] = &memoryEntry{conv: conv, expiresAt: now.Add(s.ttl)}
	s.mu.Unlock()

	out := conv
	return &out, nil
}

// Get returns the conversation for sessionID or ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, sessionID string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	if s.now().After(entry.expiresAt) {
		delete(s.entries, sessionID)
		return nil, ErrNotFound
	}
	out := entry.conv
	return &out, nil
}

// Update merges patch into the stored conversation and refreshes its TTL.
func (s *MemoryStore) Update(_ context.Context, sessionID string, patch Patch) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[sessionID]
	now := s.now()
	if !ok || now.After(entry.expiresAt) {
		delete(s.entries, sessionID)
		return nil, ErrNotFound
	}
	patch.apply(&entry.conv, now.UTC())
	entry.expiresAt = now.Add(s.ttl)

	out := entry.conv
	return &out, nil
}

// Delete drops the session. Deleting an unknown session is not an error.
func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.entries, sessionID)
	s.mu.Unlock()
	return nil
}

// Len reports the number of live entries, including ones not yet swept.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close stops the janitor goroutine.
func (s *MemoryStore) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *MemoryStore) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *MemoryStore) sweep() {
	now := s.now()
	s.mu.Lock()
	for id, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, id)
		}
	}
	s.mu.Unlock()
}
