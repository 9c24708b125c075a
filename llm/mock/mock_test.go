package mock

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"

	"fuelagent/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouter_Generate(t *testing.T) {
	boom := errors.New("boom")
	r := NewRouter(
		Text("TASK: IDENTIFY", "ITEMS: rice"),
		Err("TASK: JUDGE", boom),
		ByModel("TASK: LABEL", map[string]string{"good": "{}"}, boom),
	)
	ctx := context.Background()
	target := llm.Target{Credential: llm.Credential{Name: "k"}, Model: "good"}

	got, err := r.Generate(ctx, target, []llm.Part{llm.Text("TASK: IDENTIFY"), llm.Image("image/jpeg", []byte{1})})
	require.NoError(t, err)
	assert.Equal(t, "ITEMS: rice", got)

	_, err = r.Generate(ctx, target, []llm.Part{llm.Text("TASK: JUDGE")})
	assert.ErrorIs(t, err, boom)

	got, err = r.Generate(ctx, target, []llm.Part{llm.Text("TASK: LABEL")})
	require.NoError(t, err)
	assert.Equal(t, "{}", got)

	_, err = r.Generate(ctx, llm.Target{Model: "bad"}, []llm.Part{llm.Text("TASK: LABEL")})
	assert.ErrorIs(t, err, boom)

	_, err = r.Generate(ctx, target, []llm.Part{llm.Text("something else")})
	assert.ErrorContains(t, err, "no rule")

	calls := r.Calls()
	require.Len(t, calls, 5)
	assert.Equal(t, 1, calls[0].Images)
	assert.Equal(t, 2, r.CallsContaining("TASK: LABEL"))
}

func TestRouter_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRouter(Text("", "x"))
	_, err := r.Generate(ctx, llm.Target{}, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, r.Calls())
}

func TestEmbedder(t *testing.T) {
	e := &Embedder{Vectors: map[string][]float64{"fixed": {1, 0}}}
	ctx := context.Background()

	v, err := e.Embed(ctx, llm.Credential{}, "fixed", llm.EmbedQuery)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0}, v)

	a, _ := e.Embed(ctx, llm.Credential{}, "Fish Cake", llm.EmbedQuery)
	b, _ := e.Embed(ctx, llm.Credential{}, "fish cake", llm.EmbedDocument)
	assert.Equal(t, a, b)
	assert.Len(t, a, embedDims)
	assert.Equal(t, 3, e.Count())

	e.Err = errors.New("quota")
	_, err = e.Embed(ctx, llm.Credential{}, "x", llm.EmbedQuery)
	assert.EqualError(t, err, "quota")
}

func TestHashVector(t *testing.T) {
	var norm float64
	for _, x := range HashVector("chicken rice") {
		norm += x * x
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-9)

	zero := HashVector("   ")
	for _, x := range zero {
		assert.Zero(t, x)
	}
}

func TestDemoRouter(t *testing.T) {
	r := NewDemoRouter()
	ctx := context.Background()

	ident, err := r.Generate(ctx, llm.Target{}, []llm.Part{llm.Text("TASK: IDENTIFY")})
	require.NoError(t, err)
	assert.Contains(t, ident, "ITEMS: chicken rice, cucumber slices")

	judged, err := r.Generate(ctx, llm.Target{}, []llm.Part{llm.Text("TASK: JUDGE\n- [id=42] Chicken rice, steamed")})
	require.NoError(t, err)
	body := strings.TrimSuffix(strings.TrimPrefix(judged, "```json\n"), "\n```")

	var out struct {
		Items []struct {
			MatchID *string `json:"match_id"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	require.Len(t, out.Items, 2)
	require.NotNil(t, out.Items[0].MatchID)
	assert.Equal(t, "42", *out.Items[0].MatchID)
	assert.Nil(t, out.Items[1].MatchID)
}
