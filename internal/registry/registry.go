// Package registry owns the live workflow sessions of the bridge. It maps a
// conversation key to a workflow instance plus its last-access time, enforces
// a TTL and an optional capacity bound, and serializes instance creation per
// key so the workflow factory runs at most once per conversation.
package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Qredence/handoff-bridge/internal/engine"
	"github.com/Qredence/handoff-bridge/internal/logging"
)

type session struct {
	workflow   engine.Workflow
	lastAccess time.Time
}

// Registry is a single-process, in-memory session table. All structural
// mutations happen under one registry lock; per-key locks only serialize
// session creation so the factory is never invoked twice for one key.
type Registry struct {
	factory engine.Factory
	ttl     time.Duration
	max     int
	now     func() time.Time
	onEvict func(convKey string)
	logger  *logging.Logger

	mu       sync.Mutex
	sessions map[string]*session
	locks    map[string]*sync.Mutex
}

// Option configures a Registry.
type Option func(*Registry)

// WithMaxWorkflows bounds the number of live sessions; 0 means unlimited.
func WithMaxWorkflows(n int) Option {
	return func(r *Registry) { r.max = n }
}

// WithClock injects the time source. Tests use a fake clock.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithEvictionHook registers a callback invoked (outside the registry lock)
// with the conversation key of every removed session.
func WithEvictionHook(fn func(convKey string)) Option {
	return func(r *Registry) { r.onEvict = fn }
}

// WithLogger sets the logger used by the background sweep.
func WithLogger(l *logging.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// New creates a Registry around the given workflow factory. Sessions idle
// longer than ttl are removed by Prune.
func New(factory engine.Factory, ttl time.Duration, opts ...Option) *Registry {
	r := &Registry{
		factory:  factory,
		ttl:      ttl,
		now:      time.Now,
		logger:   logging.Nop(),
		sessions: make(map[string]*session),
		locks:    make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewConversationKey generates a fresh server-assigned conversation key.
func NewConversationKey() string {
	return "conv_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// GetOrCreate returns the live workflow for the conversation key, creating it
// through the factory if absent. An empty convKey generates a new one. The
// session's last-access time is refreshed whether or not creation occurred.
// Concurrent callers for the same key block until the first creation finishes
// and then observe the same instance. On factory failure no session is
// registered and the error propagates.
func (r *Registry) GetOrCreate(ctx context.Context, entityID, convKey string) (engine.Workflow, string, error) {
	key := convKey
	if key == "" {
		key = NewConversationKey()
	}

	r.mu.Lock()
	if s, ok := r.sessions[key]; ok {
		s.lastAccess = r.now()
		r.mu.Unlock()
		return s.workflow, key, nil
	}
	lk, ok := r.locks[key]
	if !ok {
		lk = &sync.Mutex{}
		r.locks[key] = lk
	}
	r.mu.Unlock()

	lk.Lock()
	defer lk.Unlock()

	// Re-check now that we hold the creation lock: a concurrent caller may
	// have finished the factory call while we were blocked.
	r.mu.Lock()
	if s, ok := r.sessions[key]; ok {
		s.lastAccess = r.now()
		r.mu.Unlock()
		return s.workflow, key, nil
	}
	r.mu.Unlock()

	wf, err := r.factory.NewWorkflow(ctx, entityID)
	if err != nil {
		// No session was registered, so nothing else will ever release this
		// key's lock entry. Callers blocked on it keep their own reference.
		r.mu.Lock()
		if _, ok := r.sessions[key]; !ok {
			delete(r.locks, key)
		}
		r.mu.Unlock()
		return nil, "", fmt.Errorf("create workflow for %q: %w", entityID, err)
	}

	var evicted []string
	r.mu.Lock()
	r.sessions[key] = &session{workflow: wf, lastAccess: r.now()}
	if r.max > 0 && len(r.sessions) > r.max {
		evicted = r.trimLocked(r.max, key)
	}
	r.mu.Unlock()
	r.notifyEvicted(evicted)

	return wf, key, nil
}

// Prune removes every session idle longer than the TTL at the given instant,
// then trims down to the capacity bound by removing the oldest remaining
// sessions. Safe to call concurrently with GetOrCreate; surviving sessions
// keep their timestamps untouched.
func (r *Registry) Prune(now time.Time) {
	var removed []string
	r.mu.Lock()
	for key, s := range r.sessions {
		if now.Sub(s.lastAccess) > r.ttl {
			r.deleteLocked(key)
			removed = append(removed, key)
		}
	}
	if r.max > 0 && len(r.sessions) > r.max {
		removed = append(removed, r.trimLocked(r.max, "")...)
	}
	r.mu.Unlock()
	r.notifyEvicted(removed)
}

// Sweep runs Prune on a fixed interval until ctx is cancelled. A failing
// iteration is logged and the sweep continues.
func (r *Registry) Sweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweepOnce()
		}
	}
}

func (r *Registry) sweepOnce() {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("session sweep iteration panicked", "panic", rec)
		}
	}()
	before := r.Len()
	r.Prune(r.now())
	if after := r.Len(); after < before {
		r.logger.Info("pruned workflow sessions", "removed", before-after, "remaining", after)
	}
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Keys returns a snapshot of the live conversation keys.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.sessions))
	for key := range r.sessions {
		keys = append(keys, key)
	}
	return keys
}

// trimLocked removes the oldest sessions until at most max remain, never
// touching keep (the key just inserted by the caller). Returns removed keys.
func (r *Registry) trimLocked(max int, keep string) []string {
	var removed []string
	for len(r.sessions) > max {
		oldest := ""
		var oldestAt time.Time
		for key, s := range r.sessions {
			if key == keep {
				continue
			}
			if oldest == "" || s.lastAccess.Before(oldestAt) {
				oldest = key
				oldestAt = s.lastAccess
			}
		}
		if oldest == "" {
			return removed
		}
		r.deleteLocked(oldest)
		removed = append(removed, oldest)
	}
	return removed
}

// deleteLocked removes the session and releases the registry's handle on the
// key's creation lock. A goroutine currently inside that lock's critical
// section is unaffected; it owns its own reference.
func (r *Registry) deleteLocked(key string) {
	delete(r.sessions, key)
	delete(r.locks, key)
}

func (r *Registry) notifyEvicted(keys []string) {
	if r.onEvict == nil {
		return
	}
	for _, key := range keys {
		r.onEvict(key)
	}
}
