// Package reference holds the curated nutrition dataset and the matchers
// that propose candidate entries for an identified food item.
package reference

import (
	"context"
	"fmt"
	"sync"

	"fuelagent"
)

// Catalog is read-only access to the reference dataset.
type Catalog interface {
	ListEntries(ctx context.Context) ([]fuelagent.ReferenceFoodEntry, error)
	Entry(ctx context.Context, id string) (fuelagent.ReferenceFoodEntry, bool, error)
}

// EmbeddingSource exposes the precomputed document embeddings keyed by entry id.
type EmbeddingSource interface {
	Embeddings(ctx context.Context) (map[string][]float64, error)
}

// MemoryCatalog is an in-memory catalog. It is safe for concurrent reads
// once populated.
type MemoryCatalog struct {
	mu         sync.RWMutex
	entries    []fuelagent.ReferenceFoodEntry
	byID       map[string]int
	embeddings map[string][]float64
}

func NewMemoryCatalog(entries []fuelagent.ReferenceFoodEntry, embeddings map[string][]float64) *MemoryCatalog {
	c := &MemoryCatalog{
		byID:       make(map[string]int, len(entries)),
		embeddings: make(map[string][]float64, len(embeddings)),
	}
	for _, e := range entries {
		c.add(e)
	}
	for id, v := range embeddings {
		c.embeddings[id] = v
	}
	return c
}

func (c *MemoryCatalog) add(e fuelagent.ReferenceFoodEntry) {
	if i, ok := c.byID[e.ID]; ok {
		c.entries[i] = e
		return
	}
	c.byID[e.ID] = len(c.entries)
	c.entries = append(c.entries, e)
}

// Put adds or replaces an entry and, when vec is non-nil, its embedding.
func (c *MemoryCatalog) Put(e fuelagent.ReferenceFoodEntry, vec []float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.add(e)
	if vec != nil {
		c.embeddings[e.ID] = vec
	}
}

func (c *MemoryCatalog) ListEntries(ctx context.Context) ([]fuelagent.ReferenceFoodEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]fuelagent.ReferenceFoodEntry(nil), c.entries...), nil
}

func (c *MemoryCatalog) Entry(ctx context.Context, id string) (fuelagent.ReferenceFoodEntry, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.byID[id]
	if !ok {
		return fuelagent.ReferenceFoodEntry{}, false, nil
	}
	return c.entries[i], true, nil
}

func (c *MemoryCatalog) Embeddings(ctx context.Context) (map[string][]float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string][]float64, len(c.embeddings))
	for id, v := range c.embeddings {
		out[id] = v
	}
	return out, nil
}

func (c *MemoryCatalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Preload copies a catalog, and its embeddings when src provides them, into
// memory so per-item matching does not hit the backing store.
func Preload(ctx context.Context, src Catalog) (*MemoryCatalog, error) {
	entries, err := src.ListEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list reference entries: %w", err)
	}

	var embeddings map[string][]float64
	if es, ok := src.(EmbeddingSource); ok {
		if embeddings, err = es.Embeddings(ctx); err != nil {
			return nil, fmt.Errorf("failed to load reference embeddings: %w", err)
		}
	}
	return NewMemoryCatalog(entries, embeddings), nil
}
