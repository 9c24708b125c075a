package reference

import (
	"context"
	"path/filepath"
	"testing"

	"fuelagent"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteCatalog(t *testing.T) *SQLiteCatalog {
	t.Helper()
	c, err := NewSQLiteCatalog(filepath.Join(t.TempDir(), "calorie_tracker.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestSQLiteCatalog(t *testing.T) {
	ctx := context.Background()
	c := newSQLiteCatalog(t)

	entries, err := c.ListEntries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	rice := fuelagent.ReferenceFoodEntry{
		ID:                 "CR-1",
		Name:               "Chicken rice",
		Description:        "steamed chicken with fragrant rice",
		CategoryPath:       []string{"Mixed dishes", "Rice"},
		DefaultUnit:        "plate",
		DefaultWeightGrams: 418,
		Nutrients:          fuelagent.Nutrients{Calories: 607, Protein: 24.8, Carbs: 75.2, Fat: 22.6},
	}
	toast := fuelagent.ReferenceFoodEntry{ID: "CR-2", Name: "Kaya toast"}

	require.NoError(t, c.Upsert(ctx, rice, []float64{0.1, 0.2}))
	require.NoError(t, c.Upsert(ctx, toast, nil))

	entries, err = c.ListEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, rice, entries[0])
	assert.Equal(t, "Kaya toast", entries[1].Name)
	assert.Nil(t, entries[1].CategoryPath)

	got, ok, err := c.Entry(ctx, "CR-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rice, got)

	_, ok, err = c.Entry(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	vecs, err := c.Embeddings(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string][]float64{"CR-1": {0.1, 0.2}}, vecs)

	rice.Nutrients.Calories = 620
	require.NoError(t, c.Upsert(ctx, rice, []float64{0.3}))
	got, _, err = c.Entry(ctx, "CR-1")
	require.NoError(t, err)
	assert.Equal(t, 620.0, got.Nutrients.Calories)
	vecs, err = c.Embeddings(ctx)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.3}, vecs["CR-1"])
}

func TestPreload(t *testing.T) {
	ctx := context.Background()
	c := newSQLiteCatalog(t)
	require.NoError(t, c.Upsert(ctx, fuelagent.ReferenceFoodEntry{ID: "a", Name: "Laksa"}, []float64{1}))

	mem, err := Preload(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, 1, mem.Len())

	vecs, err := mem.Embeddings(ctx)
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, vecs["a"])
}
