package conversation

import (
	"context"
	"maps"
	"sync"

	"github.com/caviaarmode/shopping-assistant/internal/domain"
)

// MemoryStore holds sessions in process memory.
type MemoryStore struct {
	opts options

	mu       sync.RWMutex
	sessions map[string]*memorySession
}

type memorySession struct {
	mu      sync.Mutex
	session domain.Session
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		opts:     buildOptions(opts),
		sessions: make(map[string]*memorySession),
	}
}

func (s *MemoryStore) entry(sessionID string) *memorySession {
	s.mu.RLock()
	e, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.sessions[sessionID]; ok {
		return e
	}
	now := s.opts.clock()
	e = &memorySession{session: domain.Session{
		ID:           sessionID,
		Messages:     []domain.Message{},
		Context:      map[string]string{},
		CreatedAt:    now,
		UpdatedAt:    now,
		LastActivity: now,
	}}
	s.sessions[sessionID] = e
	return e
}

func (s *MemoryStore) GetOrCreate(ctx context.Context, sessionID string) (*domain.Session, error) {
	e := s.entry(sessionID)
	e.mu.Lock()
	defer e.mu.Unlock()

	snapshot := e.session
	snapshot.Messages = append([]domain.Message(nil), e.session.Messages...)
	snapshot.Context = maps.Clone(e.session.Context)
	return &snapshot, nil
}

func (s *MemoryStore) Append(ctx context.Context, sessionID string, msgs ...domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	e := s.entry(sessionID)
	now := s.opts.clock()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.session.Messages = append(e.session.Messages, stamp(msgs, now)...)
	e.session.UpdatedAt = now
	e.session.LastActivity = now
	return nil
}

func (s *MemoryStore) Recent(ctx context.Context, sessionID string, limit int) ([]domain.Message, error) {
	s.mu.RLock()
	e, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return []domain.Message{}, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return domain.RecentWindow(e.session.Messages, limit), nil
}

func (s *MemoryStore) SetContext(ctx context.Context, sessionID, key, value string) error {
	e := s.entry(sessionID)
	now := s.opts.clock()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.session.Context[key] = value
	e.session.UpdatedAt = now
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
