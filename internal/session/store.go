package session

import (
	"context"
	"sync"

	"gend/pkg/types"
)

// Store is the session persistence boundary. The Manager is the sole
// mutator; the dispatch engine reads and appends only through it.
type Store interface {
	LoadTurns(ctx context.Context, sessionID string) ([]types.Turn, error)
	AppendTurn(ctx context.Context, sessionID string, turn types.Turn) error
	// SetTitle persists a title only when none is set yet.
	SetTitle(ctx context.Context, sessionID, title string) error
	// ReplaceTitle persists an explicit title, overwriting any derived one.
	ReplaceTitle(ctx context.Context, sessionID, title string) error
	// DropLastAssistant removes the trailing assistant turn, if present.
	// Used by regenerate so the replayed turn replaces rather than
	// duplicates.
	DropLastAssistant(ctx context.Context, sessionID string) error
}

// MemoryStore is the in-process Store used by default and in tests.
type MemoryStore struct {
	mu     sync.Mutex
	turns  map[string][]types.Turn
	titles map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		turns:  make(map[string][]types.Turn),
		titles: make(map[string]string),
	}
}

func (s *MemoryStore) LoadTurns(ctx context.Context, sessionID string) ([]types.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src := s.turns[sessionID]
	out := make([]types.Turn, len(src))
	copy(out, src)
	return out, nil
}

func (s *MemoryStore) AppendTurn(ctx context.Context, sessionID string, turn types.Turn) error {
	s.mu.Lock()
	s.turns[sessionID] = append(s.turns[sessionID], turn)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) SetTitle(ctx context.Context, sessionID, title string) error {
	s.mu.Lock()
	if s.titles[sessionID] == "" {
		s.titles[sessionID] = title
	}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) ReplaceTitle(ctx context.Context, sessionID, title string) error {
	s.mu.Lock()
	s.titles[sessionID] = title
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) DropLastAssistant(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := s.turns[sessionID]
	if n := len(ts); n > 0 && ts[n-1].Role == "assistant" {
		s.turns[sessionID] = ts[:n-1]
	}
	return nil
}

// Title returns the persisted title, for tests and status views.
func (s *MemoryStore) Title(sessionID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.titles[sessionID]
}
