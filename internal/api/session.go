package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/user/sinergia/internal/game"
	"github.com/user/sinergia/internal/types"
	"go.uber.org/zap"
)

// Session is the action and observation surface the handlers drive
type Session interface {
	StartGame(ctx context.Context) error
	MakeChoice(optionID string, impact types.AmabilityImpact) error
	AdvanceTo(nodeID string) error
	Choose(ctx context.Context, optionID string) error
	CompleteCharacter(ctx context.Context) error
	SaveGame(ctx context.Context, slot int) error
	LoadGame(ctx context.Context, slot int) error
	DeleteSave(ctx context.Context, slot int) error
	ListSaves(ctx context.Context) []game.SlotInfo
	ResetGame() error
	View() game.StateView
	Close()
}

// Ensure game.Session satisfies the Session interface
var _ Session = (*game.Session)(nil)

// SessionFactory builds a new independent session
type SessionFactory func() (Session, error)

// ErrSessionNotFound indicates no session is registered under the id
var ErrSessionNotFound = errors.New("session not found")

// ErrTooManySessions indicates the registry is at its session cap
var ErrTooManySessions = errors.New("too many sessions")

// RegistryLimits bounds the registry. Zero values disable the limit.
type RegistryLimits struct {
	MaxSessions int
	IdleTimeout time.Duration
}

type registryEntry struct {
	session  Session
	lastSeen time.Time
}

// Registry holds live sessions keyed by uuid
type Registry struct {
	factory  SessionFactory
	limits   RegistryLimits
	logger   *zap.Logger
	now      func() time.Time
	mu       sync.RWMutex
	sessions map[string]*registryEntry
}

// NewRegistry creates an empty registry
func NewRegistry(factory SessionFactory, limits RegistryLimits, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		factory:  factory,
		limits:   limits,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*registryEntry),
	}
}

// Create builds and registers a new session. Idle sessions are evicted first
// so they never hold a slot under the cap.
func (r *Registry) Create() (string, Session, error) {
	r.EvictIdle()
	if r.full() {
		return "", nil, ErrTooManySessions
	}

	session, err := r.factory()
	if err != nil {
		return "", nil, err
	}
	id := uuid.New().String()

	r.mu.Lock()
	if r.limits.MaxSessions > 0 && len(r.sessions) >= r.limits.MaxSessions {
		r.mu.Unlock()
		session.Close()
		return "", nil, ErrTooManySessions
	}
	r.sessions[id] = &registryEntry{session: session, lastSeen: r.now()}
	r.mu.Unlock()

	r.logger.Info("Session created", zap.String("session_id", id))
	return id, session, nil
}

// Get returns the session registered under id and marks it as seen
func (r *Registry) Get(id string) (Session, error) {
	r.mu.Lock()
	entry, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	now := r.now()
	if r.expired(entry, now) {
		delete(r.sessions, id)
		r.mu.Unlock()
		entry.session.Close()
		r.logger.Info("Session expired", zap.String("session_id", id))
		return nil, ErrSessionNotFound
	}
	entry.lastSeen = now
	r.mu.Unlock()
	return entry.session, nil
}

// Delete closes and forgets the session
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	entry, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	entry.session.Close()
	r.logger.Info("Session closed", zap.String("session_id", id))
	return nil
}

// EvictIdle closes every session not seen within the idle timeout and
// returns how many were removed
func (r *Registry) EvictIdle() int {
	if r.limits.IdleTimeout <= 0 {
		return 0
	}

	now := r.now()
	var idle []Session
	r.mu.Lock()
	for id, entry := range r.sessions {
		if r.expired(entry, now) {
			idle = append(idle, entry.session)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, session := range idle {
		session.Close()
	}
	if len(idle) > 0 {
		r.logger.Info("Evicted idle sessions", zap.Int("count", len(idle)))
	}
	return len(idle)
}

// RunJanitor evicts idle sessions every interval until ctx is done
func (r *Registry) RunJanitor(ctx context.Context, interval time.Duration) {
	if r.limits.IdleTimeout <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.EvictIdle()
		}
	}
}

// Len returns the number of live sessions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll closes every session
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*registryEntry)
	r.mu.Unlock()

	for _, entry := range sessions {
		entry.session.Close()
	}
}

func (r *Registry) full() bool {
	if r.limits.MaxSessions <= 0 {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions) >= r.limits.MaxSessions
}

func (r *Registry) expired(entry *registryEntry, now time.Time) bool {
	return r.limits.IdleTimeout > 0 && now.Sub(entry.lastSeen) >= r.limits.IdleTimeout
}
