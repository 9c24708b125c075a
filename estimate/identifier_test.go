package estimate

import (
	"context"
	"errors"
	"testing"

	"fuelagent"
	"fuelagent/llm"
	"fuelagent/llm/mock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(items []fuelagent.IdentifiedItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Name)
	}
	return out
}

func TestParseIdentification(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		items    []string
		excluded []string
		label    bool
	}{
		{
			name:     "structured",
			text:     "ITEMS: chicken rice, cucumber slices\nEXCLUDED: fork\nLABEL: no",
			items:    []string{"chicken rice", "cucumber slices"},
			excluded: []string{"fork"},
		},
		{
			name:  "conversational filler and markdown",
			text:  "Sure! Here is what I see.\n\n**ITEMS:** Nasi lemak, fried egg.\n**EXCLUDED:** none\n**LABEL:** Yes",
			items: []string{"Nasi lemak", "fried egg"},
			label: true,
		},
		{
			name:     "excluded items never listed",
			text:     "ITEMS: laksa, teh tarik, otah\nEXCLUDED: Teh Tarik",
			items:    []string{"laksa", "otah"},
			excluded: []string{"Teh Tarik"},
		},
		{
			name:  "duplicates collapse",
			text:  "ITEMS: satay, Satay, peanut sauce",
			items: []string{"satay", "peanut sauce"},
		},
		{
			name:  "fallback to last comma line",
			text:  "The photo shows lunch.\nroti prata, curry\nLooks good!",
			items: []string{"roti prata", "curry"},
		},
		{
			name:  "fallback to last non-empty line",
			text:  "I can see:\n\nkaya toast\n\n",
			items: []string{"kaya toast"},
		},
		{
			name: "none",
			text: "ITEMS: none\nLABEL: no",
		},
		{
			name: "empty answer",
			text: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseIdentification(tt.text)
			if len(tt.items) == 0 {
				assert.Empty(t, got.Items)
			} else {
				assert.Equal(t, tt.items, names(got.Items))
			}
			if len(tt.excluded) == 0 {
				assert.Empty(t, got.Excluded)
			} else {
				assert.Equal(t, tt.excluded, got.Excluded)
			}
			assert.Equal(t, tt.label, got.LabelDetected)
		})
	}
}

func TestIdentifier_Identify(t *testing.T) {
	gen := mock.NewRouter(mock.Text(MarkerIdentify, "ITEMS: mee goreng\nLABEL: no"))
	target := llm.Target{Credential: llm.Credential{Name: "K"}, Model: "m"}

	id, err := NewIdentifier(gen).Identify(context.Background(), target, []llm.Part{llm.Image("image/jpeg", []byte{1}), llm.Image("image/jpeg", []byte{2})}, "spicy")
	require.NoError(t, err)
	assert.Equal(t, []string{"mee goreng"}, names(id.Items))

	calls := gen.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, 2, calls[0].Images)
	assert.Contains(t, calls[0].Prompt, "User description: spicy")
	assert.Contains(t, calls[0].Prompt, "SAME meal")
}

func TestIdentifier_StageFailure(t *testing.T) {
	gen := mock.NewRouter(mock.Err(MarkerIdentify, fuelagent.ErrRateLimited))

	_, err := NewIdentifier(gen).Identify(context.Background(), llm.Target{}, nil, "rice")
	require.Error(t, err)
	assert.True(t, errors.Is(err, fuelagent.ErrRateLimited))
	assert.Equal(t, fuelagent.StageIdentify, fuelagent.StageOf(err))
}
