package pool

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/PocketSoftMine/SoftMine-PE/server/session"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SessionPool is the directory of live sessions. Reads of the session list
// are lock-free through a cached snapshot that writers invalidate.
type SessionPool struct {
	mu         sync.RWMutex
	sessions   map[uint64]*session.Session
	byEndpoint map[string]uint64
	logger     zerolog.Logger

	cachedSessions atomic.Pointer[[]*session.Session]
}

// New creates an empty pool.
func New(logger zerolog.Logger) *SessionPool {
	return &SessionPool{
		sessions:   make(map[uint64]*session.Session),
		byEndpoint: make(map[string]uint64),
		logger:     logger.With().Str("com", "pool").Logger(),
	}
}

// Add registers s under its id and endpoint key.
func (p *SessionPool) Add(key string, s *session.Session) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.sessions[s.ID()]; exists {
		return fmt.Errorf("%w: session %d", ErrDuplicateSession, s.ID())
	}
	if id, exists := p.byEndpoint[key]; exists {
		return fmt.Errorf("%w: endpoint %s held by session %d", ErrDuplicateSession, key, id)
	}
	p.sessions[s.ID()] = s
	p.byEndpoint[key] = s.ID()
	p.cachedSessions.Store(nil)

	p.logger.Debug().
		Uint64("session_id", s.ID()).
		Str("endpoint", key).
		Msg("session added to pool")
	return nil
}

// Remove drops the session with the given id. Unknown ids are ignored.
func (p *SessionPool) Remove(id uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.sessions[id]; !exists {
		return
	}
	delete(p.sessions, id)
	for key, sid := range p.byEndpoint {
		if sid == id {
			delete(p.byEndpoint, key)
			break
		}
	}
	p.cachedSessions.Store(nil)

	p.logger.Debug().Uint64("session_id", id).Msg("session removed from pool")
}

// Get retrieves a session by id.
func (p *SessionPool) Get(id uint64) (*session.Session, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s, ok := p.sessions[id]
	return s, ok
}

// ByEndpoint retrieves the session bound to an endpoint key.
func (p *SessionPool) ByEndpoint(key string) (*session.Session, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	id, ok := p.byEndpoint[key]
	if !ok {
		return nil, false
	}
	s, ok := p.sessions[id]
	return s, ok
}

// List returns a snapshot of all sessions. The slice must not be modified.
func (p *SessionPool) List() []*session.Session {
	if cached := p.cachedSessions.Load(); cached != nil {
		return *cached
	}
	return p.rebuildSnapshot()
}

func (p *SessionPool) rebuildSnapshot() []*session.Session {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cached := p.cachedSessions.Load(); cached != nil {
		return *cached
	}
	list := make([]*session.Session, 0, len(p.sessions))
	for _, s := range p.sessions {
		list = append(list, s)
	}
	p.cachedSessions.Store(&list)
	return list
}

// Range calls fn for each session in a snapshot taken before the first call.
// No lock is held while fn runs, so fn may add or remove sessions.
func (p *SessionPool) Range(fn func(s *session.Session) bool) {
	for _, s := range p.List() {
		if !fn(s) {
			return
		}
	}
}

// Count returns the number of sessions in the pool.
func (p *SessionPool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.sessions)
}

// The lookups below read session fields and must run on the tick goroutine.

// ByName finds a session that has logged in under name, ignoring case.
func (p *SessionPool) ByName(name string) (*session.Session, bool) {
	for _, s := range p.List() {
		if s.State() != session.StateAwaitingLogin && strings.EqualFold(s.Name(), name) {
			return s, true
		}
	}
	return nil, false
}

// ByUUID finds a session by its client UUID.
func (p *SessionPool) ByUUID(id uuid.UUID) (*session.Session, bool) {
	for _, s := range p.List() {
		if s.UUID() == id {
			return s, true
		}
	}
	return nil, false
}

// Errors
var (
	ErrDuplicateSession = fmt.Errorf("session already registered")
)
