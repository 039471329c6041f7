// Package session assembles multi-turn context for the dispatch engine and
// owns the active-session memory: turn windows, opaque refinement state
// tokens, auto-titling, regenerate, and idle expiry. Mutation of a given
// session is serialized: two in-flight requests never append concurrently.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"gend/pkg/types"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultWindow     = 20
	defaultTitleLimit = 48
	defaultIdleExpiry = 2 * time.Hour
)

// Config encapsulates session tunables.
type Config struct {
	// Window bounds how many prior turns are assembled into engine context.
	Window int
	// TitleLimit is the rune budget for auto-derived titles.
	TitleLimit int
	// IdleExpiry closes sessions with no activity for this long.
	IdleExpiry time.Duration
	// Store is the persistence boundary; nil uses an in-memory store.
	Store Store
}

type state struct {
	id        string
	title     string
	userTitle bool
	turns     []types.Turn
	createdAt time.Time
	updatedAt time.Time
	closed    bool
	// exch serializes exchanges: one in-flight dispatch per session.
	exch chan struct{}
}

type Manager struct {
	mu         sync.Mutex
	sessions   map[string]*state
	window     int
	titleLimit int
	idleExpiry time.Duration
	store      Store
	stopCh     chan struct{}
	stopOnce   sync.Once
}

func NewManager(cfg Config) *Manager {
	m := &Manager{
		sessions:   make(map[string]*state),
		window:     cfg.Window,
		titleLimit: cfg.TitleLimit,
		idleExpiry: cfg.IdleExpiry,
		store:      cfg.Store,
		stopCh:     make(chan struct{}),
	}
	if m.window <= 0 {
		m.window = defaultWindow
	}
	if m.titleLimit <= 0 {
		m.titleLimit = defaultTitleLimit
	}
	if m.idleExpiry <= 0 {
		m.idleExpiry = defaultIdleExpiry
	}
	if m.store == nil {
		m.store = NewMemoryStore()
	}
	return m
}

// Begin resolves a session id: empty creates a new session, a known id is
// continued, and an id absent from active memory is rehydrated from the
// store. Appending to a closed session is a contract error.
func (m *Manager) Begin(ctx context.Context, sessionID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	if s := m.sessions[sessionID]; s != nil {
		if s.closed {
			return "", errSessionClosed{id: sessionID}
		}
		return sessionID, nil
	}
	turns, err := m.store.LoadTurns(ctx, sessionID)
	if err != nil {
		return "", err
	}
	now := time.Now()
	m.sessions[sessionID] = &state{
		id:        sessionID,
		turns:     turns,
		createdAt: now,
		updatedAt: now,
		exch:      make(chan struct{}, 1),
	}
	return sessionID, nil
}

// AcquireExchange takes the session's exchange slot, blocking until any
// in-flight dispatch against it finishes. The returned release func must be
// deferred.
func (m *Manager) AcquireExchange(ctx context.Context, sessionID string) (func(), error) {
	m.mu.Lock()
	s := m.sessions[sessionID]
	m.mu.Unlock()
	if s == nil {
		return nil, errSessionNotFound{id: sessionID}
	}
	select {
	case s.exch <- struct{}{}:
		return func() { <-s.exch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ContextFor returns the bounded prior-turn window plus the state tokens of
// the most recent turn, for engine-facing context assembly.
func (m *Manager) ContextFor(sessionID string) ([]types.Turn, map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sessions[sessionID]
	if s == nil {
		return nil, nil
	}
	turns := s.turns
	if len(turns) > m.window {
		turns = turns[len(turns)-m.window:]
	}
	out := make([]types.Turn, len(turns))
	copy(out, turns)
	var tokens map[string]string
	if n := len(s.turns); n > 0 && len(s.turns[n-1].StateTokens) > 0 {
		tokens = s.turns[n-1].StateTokens
	}
	return out, tokens
}

// CommitExchange appends a user/assistant turn pair after a successful
// generation and derives a title from the first user turn when none exists.
func (m *Manager) CommitExchange(ctx context.Context, sessionID string, user, assistant types.Turn) error {
	m.mu.Lock()
	s := m.sessions[sessionID]
	if s == nil {
		m.mu.Unlock()
		return errSessionNotFound{id: sessionID}
	}
	if s.closed {
		m.mu.Unlock()
		return errSessionClosed{id: sessionID}
	}
	first := len(s.turns) == 0
	s.turns = append(s.turns, user, assistant)
	s.updatedAt = time.Now()
	var derived string
	if first && s.title == "" {
		derived = trimTitle(user.Content, m.titleLimit)
		s.title = derived
	}
	m.mu.Unlock()

	if err := m.store.AppendTurn(ctx, sessionID, user); err != nil {
		return err
	}
	if err := m.store.AppendTurn(ctx, sessionID, assistant); err != nil {
		return err
	}
	if derived != "" {
		return m.store.SetTitle(ctx, sessionID, derived)
	}
	return nil
}

// CommitAssistant appends only an assistant turn; the regenerate path, where
// the user turn is already present.
func (m *Manager) CommitAssistant(ctx context.Context, sessionID string, assistant types.Turn) error {
	m.mu.Lock()
	s := m.sessions[sessionID]
	if s == nil {
		m.mu.Unlock()
		return errSessionNotFound{id: sessionID}
	}
	if s.closed {
		m.mu.Unlock()
		return errSessionClosed{id: sessionID}
	}
	s.turns = append(s.turns, assistant)
	s.updatedAt = time.Now()
	m.mu.Unlock()
	return m.store.AppendTurn(ctx, sessionID, assistant)
}

// Regenerate removes the most recent assistant turn (if present) and returns
// the preceding user turn for replay through the dispatch path. The replayed
// result is committed with CommitAssistant, replacing rather than
// duplicating the assistant turn.
func (m *Manager) Regenerate(ctx context.Context, sessionID string) (types.Turn, error) {
	m.mu.Lock()
	s := m.sessions[sessionID]
	if s == nil {
		m.mu.Unlock()
		return types.Turn{}, errSessionNotFound{id: sessionID}
	}
	if s.closed {
		m.mu.Unlock()
		return types.Turn{}, errSessionClosed{id: sessionID}
	}
	dropped := false
	if n := len(s.turns); n > 0 && s.turns[n-1].Role == "assistant" {
		s.turns = s.turns[:n-1]
		dropped = true
	}
	var user types.Turn
	found := false
	for i := len(s.turns) - 1; i >= 0; i-- {
		if s.turns[i].Role == "user" {
			user = s.turns[i]
			found = true
			break
		}
	}
	m.mu.Unlock()
	if !found {
		return types.Turn{}, errNoUserTurn{id: sessionID}
	}
	if dropped {
		if err := m.store.DropLastAssistant(ctx, sessionID); err != nil {
			return types.Turn{}, err
		}
	}
	return user, nil
}

// SetTitle sets an explicit title; explicit titles are never overwritten by
// auto-derivation. The title is written through to the store so the persisted
// copy tracks it.
func (m *Manager) SetTitle(ctx context.Context, sessionID, title string) error {
	m.mu.Lock()
	s := m.sessions[sessionID]
	if s == nil {
		m.mu.Unlock()
		return errSessionNotFound{id: sessionID}
	}
	s.title = title
	s.userTitle = true
	m.mu.Unlock()
	return m.store.ReplaceTitle(ctx, sessionID, title)
}

// Close marks a session inactive and discards its context from active
// memory (the store retains the transcript).
func (m *Manager) Close(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sessions[sessionID]
	if s == nil {
		return errSessionNotFound{id: sessionID}
	}
	s.closed = true
	s.turns = nil
	return nil
}

// Get returns the public view of a session.
func (m *Manager) Get(sessionID string) (types.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sessions[sessionID]
	if s == nil {
		return types.Session{}, false
	}
	return m.viewLocked(s), true
}

// List returns all active-memory sessions.
func (m *Manager) List() []types.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, m.viewLocked(s))
	}
	return out
}

// ActiveCount returns the number of open sessions held in memory.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sessions {
		if !s.closed {
			n++
		}
	}
	return n
}

func (m *Manager) viewLocked(s *state) types.Session {
	turns := make([]types.Turn, len(s.turns))
	copy(turns, s.turns)
	return types.Session{
		ID:        s.id,
		Title:     s.title,
		Turns:     turns,
		Active:    !s.closed,
		CreatedAt: s.createdAt.Unix(),
		UpdatedAt: s.updatedAt.Unix(),
	}
}

// trimTitle derives a title from prompt text within a rune budget.
func trimTitle(content string, limit int) string {
	runes := []rune(content)
	if len(runes) <= limit {
		return content
	}
	return string(runes[:limit])
}
