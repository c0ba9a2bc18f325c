package services

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/saeid-a/MedLinkBack/internal/metrics"
)

type registryEntry struct {
	session  *Session
	refs     int
	signedIn bool
	ready    chan struct{}
	err      error
}

// SessionRegistry owns the sessions of signed-in users. A session lives
// while its user is signed in or while a stream client holds it.
type SessionRegistry struct {
	deps    SessionDeps
	logger  *slog.Logger
	metrics *metrics.Metrics

	onStart  func(*Session)

	mu       sync.Mutex
	sessions map[string]*registryEntry
}

type RegistryOption func(*SessionRegistry)

// WithSessionHook runs fn on every new session before it starts, so
// listeners it adds see the first load.
func WithSessionHook(fn func(*Session)) RegistryOption {
	return func(r *SessionRegistry) {
		r.onStart = fn
	}
}

func NewSessionRegistry(deps SessionDeps, opts ...RegistryOption) *SessionRegistry {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &SessionRegistry{
		deps:     deps,
		logger:   logger.With("component", "session_registry"),
		metrics:  deps.Metrics,
		sessions: make(map[string]*registryEntry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SignIn returns the user's session, starting it if needed, and pins it
// until SignOut.
func (r *SessionRegistry) SignIn(ctx context.Context, userID string) (*Session, error) {
	return r.obtain(ctx, userID, func(e *registryEntry) { e.signedIn = true })
}

// Acquire returns the user's session and holds it until the returned
// release func is called. Release only affects the session it acquired;
// after a SignOut it is a no-op.
func (r *SessionRegistry) Acquire(ctx context.Context, userID string) (*Session, func(), error) {
	var held *registryEntry
	session, err := r.obtain(ctx, userID, func(e *registryEntry) {
		e.refs++
		held = e
	})
	if err != nil {
		if held != nil {
			r.release(userID, held)
		}
		return nil, nil, err
	}

	var once sync.Once
	release := func() {
		once.Do(func() { r.release(userID, held) })
	}
	return session, release, nil
}

func (r *SessionRegistry) release(userID string, entry *registryEntry) {
	r.mu.Lock()
	if entry.refs > 0 {
		entry.refs--
	}
	current, ok := r.sessions[userID]
	idle := ok && current == entry && entry.refs == 0 && !entry.signedIn
	if idle {
		delete(r.sessions, userID)
	}
	r.mu.Unlock()

	if idle {
		r.close(userID, entry)
	}
}

// SignOut closes the user's session whether or not clients still hold
// it; they receive a reset update.
func (r *SessionRegistry) SignOut(userID string) bool {
	r.mu.Lock()
	entry, ok := r.sessions[userID]
	if ok {
		delete(r.sessions, userID)
	}
	r.mu.Unlock()

	if ok {
		r.close(userID, entry)
	}
	return ok
}

func (r *SessionRegistry) Get(userID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[userID]
	if !ok {
		return nil, false
	}
	return entry.session, true
}

// Users returns the ids of users with a live session.
func (r *SessionRegistry) Users() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	users := make([]string, 0, len(r.sessions))
	for userID := range r.sessions {
		users = append(users, userID)
	}
	sort.Strings(users)
	return users
}

// Close closes every session.
func (r *SessionRegistry) Close() {
	r.mu.Lock()
	entries := r.sessions
	r.sessions = make(map[string]*registryEntry)
	r.mu.Unlock()

	for userID, entry := range entries {
		r.close(userID, entry)
	}
}

func (r *SessionRegistry) obtain(ctx context.Context, userID string, hold func(*registryEntry)) (*Session, error) {
	r.mu.Lock()
	entry, ok := r.sessions[userID]
	if !ok {
		entry = &registryEntry{
			session: NewSession(userID, r.deps),
			ready:   make(chan struct{}),
		}
		r.sessions[userID] = entry
	}
	hold(entry)
	r.mu.Unlock()

	if !ok {
		r.metrics.SessionStarted()
		r.logger.Info("session started", "user_id", userID)
		if r.onStart != nil {
			r.onStart(entry.session)
		}
		entry.err = entry.session.Start(ctx)
		close(entry.ready)
		if entry.err != nil {
			r.logger.Warn("session start failed", "user_id", userID, "error", entry.err)
			r.drop(userID, entry)
			return nil, entry.err
		}
		return entry.session, nil
	}

	select {
	case <-entry.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if entry.err != nil {
		return nil, entry.err
	}
	return entry.session, nil
}

func (r *SessionRegistry) drop(userID string, entry *registryEntry) {
	r.mu.Lock()
	current, ok := r.sessions[userID]
	if ok && current == entry {
		delete(r.sessions, userID)
	}
	r.mu.Unlock()
	if ok && current == entry {
		r.close(userID, entry)
	}
}

func (r *SessionRegistry) close(userID string, entry *registryEntry) {
	entry.session.Close()
	r.metrics.SessionEnded()
	r.logger.Info("session closed", "user_id", userID)
}
