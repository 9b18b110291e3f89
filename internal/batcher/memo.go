package batcher

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultMemoScopes bounds how many scopes a Memo remembers.
const DefaultMemoScopes = 256

// Scope is one unit of content, such as a document, that sessions are built
// for. VersionStamp must change whenever the content or any configuration
// affecting analysis changes.
type Scope interface {
	ScopeID() string
	VersionStamp() string
}

// PoolBuilder splits a scope's content into items in document order.
type PoolBuilder[S Scope] func(scope S) []Item

type memoEntry[T any] struct {
	stamp   string
	session *Session[T]
}

// Memo reuses a scope's Session until the scope's version stamp changes.
// Rebuilding replaces the pool only; the Batcher's store is untouched, so
// results for sentences that survived the edit are still cache hits.
type Memo[T any, S Scope] struct {
	batcher *Batcher[T]
	build   PoolBuilder[S]
	entries *lru.Cache[string, memoEntry[T]]
	group   singleflight.Group
	// mu serialises the check-and-add that commits a build.
	mu sync.Mutex
}

// NewMemo creates a Memo remembering at most capacity scopes. The least
// recently used scope is forgotten first and simply rebuilt on next use.
func NewMemo[T any, S Scope](b *Batcher[T], capacity int, build PoolBuilder[S]) (*Memo[T, S], error) {
	if capacity <= 0 {
		capacity = DefaultMemoScopes
	}
	entries, err := lru.New[string, memoEntry[T]](capacity)
	if err != nil {
		return nil, fmt.Errorf("creating session memo: %w", err)
	}
	return &Memo[T, S]{batcher: b, build: build, entries: entries}, nil
}

// ForScope returns the Session for scope, building a new one when the
// scope is unknown or its version stamp changed. Concurrent callers asking
// for the same scope version share one build. A build for a version older
// than the one remembered meanwhile is handed to its caller but not kept.
func (m *Memo[T, S]) ForScope(scope S) *Session[T] {
	id, stamp := scope.ScopeID(), scope.VersionStamp()
	prev, known := m.entries.Get(id)
	if known && prev.stamp == stamp {
		return prev.session
	}
	v, _, _ := m.group.Do(id+"\x00"+stamp, func() (any, error) {
		if cur, ok := m.entries.Peek(id); ok && cur.stamp == stamp {
			return cur.session, nil
		}
		session := m.batcher.NewSession(NewPool(m.build(scope)))
		m.mu.Lock()
		defer m.mu.Unlock()
		cur, ok := m.entries.Peek(id)
		switch {
		case ok && cur.stamp == stamp:
			return cur.session, nil
		case ok && (!known || cur.stamp != prev.stamp):
			m.batcher.logger.Debug("stale session not remembered", "scope", id, "stamp", stamp, "current", cur.stamp)
			return session, nil
		}
		m.entries.Add(id, memoEntry[T]{stamp: stamp, session: session})
		m.batcher.logger.Debug("session built", "scope", id, "stamp", stamp, "pool_size", session.pool.Len())
		return session, nil
	})
	return v.(*Session[T])
}

// Forget drops the remembered Session for a scope.
func (m *Memo[T, S]) Forget(scopeID string) {
	m.entries.Remove(scopeID)
}

// Len returns the number of remembered scopes.
func (m *Memo[T, S]) Len() int {
	return m.entries.Len()
}
