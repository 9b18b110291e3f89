// Package documents stores the texts that analysis sessions are built for.
// A Document is a batcher.Scope: its version stamp combines the body hash
// with the analysis configuration generation, so editing the body or
// changing the engine settings yields a fresh session.
package documents

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/internal/batcher"
	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/internal/text/splitter"
)

// ErrNotFound is returned when no document has the requested ID.
var ErrNotFound = errors.New("document not found")

// Document is one stored text.
type Document struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	ContentHash string    `json:"content_hash"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	generation string
	once       sync.Once
	sentences  []splitter.Sentence
}

// ScopeID implements batcher.Scope.
func (d *Document) ScopeID() string { return d.ID }

// VersionStamp implements batcher.Scope.
func (d *Document) VersionStamp() string {
	if d.generation == "" {
		return d.ContentHash
	}
	return d.ContentHash + ":" + d.generation
}

// Sentences returns the body split into sentences. The split is computed
// once per Document value.
func (d *Document) Sentences() []splitter.Sentence {
	d.once.Do(func() {
		d.sentences = splitter.Split(d.Body)
	})
	return d.sentences
}

// Items returns one batcher.Item per sentence, in order. It is the pool
// builder for document sessions.
func Items(d *Document) []batcher.Item {
	sentences := d.Sentences()
	items := make([]batcher.Item, len(sentences))
	for i, s := range sentences {
		items[i] = s.Item()
	}
	return items
}

// HashContent returns the content hash stored alongside a body.
func HashContent(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}

// Repository loads and saves documents.
type Repository interface {
	Get(ctx context.Context, id string) (*Document, error)
	Put(ctx context.Context, id, title, body string) (*Document, error)
	Delete(ctx context.Context, id string) error
}
