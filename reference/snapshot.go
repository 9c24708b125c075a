package reference

import (
	"context"
	"encoding/json"
	"fmt"

	"fuelagent"
	"fuelagent/reference/storage"
)

// Snapshot is the portable JSON form of the reference dataset.
type Snapshot struct {
	Entries    []fuelagent.ReferenceFoodEntry `json:"entries"`
	Embeddings map[string][]float64           `json:"embeddings,omitempty"`
}

// LoadSnapshot reads a snapshot document from src into memory.
func LoadSnapshot(ctx context.Context, src storage.Source) (*MemoryCatalog, error) {
	data, err := src.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load reference snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode reference snapshot: %w", err)
	}
	for i, e := range snap.Entries {
		if e.ID == "" || e.Name == "" {
			return nil, fmt.Errorf("snapshot entry %d is missing id or name", i)
		}
	}
	return NewMemoryCatalog(snap.Entries, snap.Embeddings), nil
}

// Import copies every entry and embedding of src into dst.
func Import(ctx context.Context, dst *SQLiteCatalog, src *MemoryCatalog) (int, error) {
	entries, err := src.ListEntries(ctx)
	if err != nil {
		return 0, err
	}
	vectors, err := src.Embeddings(ctx)
	if err != nil {
		return 0, err
	}
	for i, e := range entries {
		if err := dst.Upsert(ctx, e, vectors[e.ID]); err != nil {
			return i, err
		}
	}
	return len(entries), nil
}
