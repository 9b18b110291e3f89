package documents

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository keeps documents in process memory. It backs the service
// when PostgreSQL is disabled and is used in tests.
type MemoryRepository struct {
	mu         sync.RWMutex
	docs       map[string]record
	generation string
}

type record struct {
	title, body, hash    string
	createdAt, updatedAt time.Time
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository(generation string) *MemoryRepository {
	return &MemoryRepository{docs: make(map[string]record), generation: generation}
}

func (r *MemoryRepository) Get(ctx context.Context, id string) (*Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stored, ok := r.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.document(id, stored), nil
}

func (r *MemoryRepository) Put(ctx context.Context, id, title, body string) (*Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	hash := HashContent(body)
	stored, exists := r.docs[id]
	if !exists {
		stored = record{createdAt: now, updatedAt: now}
	} else if stored.hash != hash {
		stored.updatedAt = now
	}
	stored.title = title
	stored.body = body
	stored.hash = hash
	r.docs[id] = stored
	return r.document(id, stored), nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[id]; !ok {
		return ErrNotFound
	}
	delete(r.docs, id)
	return nil
}

func (r *MemoryRepository) document(id string, rec record) *Document {
	return &Document{
		ID:          id,
		Title:       rec.title,
		Body:        rec.body,
		ContentHash: rec.hash,
		CreatedAt:   rec.createdAt,
		UpdatedAt:   rec.updatedAt,
		generation:  r.generation,
	}
}
