package estimate

import (
	"context"
	"testing"

	"fuelagent"
	"fuelagent/llm"
	"fuelagent/llm/mock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string    { return &s }
func f64Ptr(f float64) *float64 { return &f }

func fishCakeCandidates() [][]fuelagent.Candidate {
	return [][]fuelagent.Candidate{{
		{Entry: fuelagent.ReferenceFoodEntry{ID: "FC1", Name: "Fish cake, fried", DefaultUnit: "roll", DefaultWeightGrams: 150, Nutrients: fuelagent.Nutrients{Calories: 250}}, Score: 0.9},
		{Entry: fuelagent.ReferenceFoodEntry{ID: "FB1", Name: "Fish ball", DefaultUnit: "piece", Nutrients: fuelagent.Nutrients{Calories: 12}}, Score: 0.5},
	}}
}

func TestJudge_SliceOfWholeItem(t *testing.T) {
	gen := mock.NewRouter(mock.Text(MarkerJudge,
		"Based on the rules, a slice is a fraction of the roll.\n```json\n"+
			`{"meal_name":"Fish cake","items":[{"name":"fish cake","match_id":"FC1","portion":0.3,"unit":"slice","estimate":{"calories":75,"protein":5,"carbs":6,"fat":3}}]}`+
			"\n```"))
	id := Identification{Items: []fuelagent.IdentifiedItem{{Name: "fish cake"}}}

	j, err := NewJudge(gen).Judge(context.Background(), llm.Target{Model: "m"}, nil, "2 slices of fish cake", id, fishCakeCandidates())
	require.NoError(t, err)
	require.Len(t, j.Items, 1)

	item := j.Items[0]
	assert.Equal(t, "FC1", item.MatchedEntryID)
	assert.InDelta(t, 0.3, item.Portion, 0.1)
	assert.NotEqual(t, 2.0, item.Portion)
	assert.Equal(t, "slice", item.Unit)

	calls := gen.Calls()
	require.Len(t, calls, 1)
	prompt := calls[0].Prompt
	assert.Contains(t, prompt, "User description: 2 slices of fish cake")
	assert.Contains(t, prompt, "[id=FC1] Fish cake, fried | unit: roll (150g)")
	assert.Contains(t, prompt, `described as a "slice" get about 0.1 to 0.2 per slice`)
	assert.Contains(t, prompt, "If no image was supplied, the portion is 1.0")
	assert.NotContains(t, prompt, "ruler")
}

func TestJudge_MalformedIsStageFailure(t *testing.T) {
	tests := []struct {
		name   string
		answer string
	}{
		{name: "prose", answer: "I think it is about 300 calories."},
		{name: "empty estimate", answer: `{"items":[{"name":"fish cake","match_id":null,"estimate":{}}]}`},
		{name: "estimate without calories", answer: `{"items":[{"name":"fish cake","match_id":null,"estimate":{"protein":5}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := mock.NewRouter(mock.Text(MarkerJudge, tt.answer))
			id := Identification{Items: []fuelagent.IdentifiedItem{{Name: "fish cake"}}}

			_, err := NewJudge(gen).Judge(context.Background(), llm.Target{}, nil, "", id, fishCakeCandidates())
			require.Error(t, err)
			assert.ErrorIs(t, err, fuelagent.ErrMalformedModelOutput)
			assert.Equal(t, fuelagent.StageJudge, fuelagent.StageOf(err))
		})
	}
}

func TestValidateJudgement(t *testing.T) {
	est := &fuelagent.Nutrients{Calories: 100}
	id := Identification{
		Items:    []fuelagent.IdentifiedItem{{Name: "fish cake"}, {Name: "rice"}},
		Excluded: []string{"Iced Milo"},
	}

	tests := []struct {
		name  string
		item  judgeItem
		check func(t *testing.T, got []fuelagent.JudgedItem)
	}{
		{
			name: "omitted item dropped",
			item: judgeItem{Name: "rice", Omit: true, Estimate: est},
			check: func(t *testing.T, got []fuelagent.JudgedItem) {
				assert.Empty(t, got)
			},
		},
		{
			name: "excluded item dropped",
			item: judgeItem{Name: "iced milo", Estimate: est},
			check: func(t *testing.T, got []fuelagent.JudgedItem) {
				assert.Empty(t, got)
			},
		},
		{
			name: "id not offered is rejected",
			item: judgeItem{Name: "rice", MatchID: strPtr("ZZZ"), Estimate: est},
			check: func(t *testing.T, got []fuelagent.JudgedItem) {
				require.Len(t, got, 1)
				assert.False(t, got[0].Matched())
				assert.Equal(t, est, got[0].FallbackNutrients)
			},
		},
		{
			name: "missing portion defaults to one and unit to reference unit",
			item: judgeItem{Name: "fish cake", MatchID: strPtr("FC1")},
			check: func(t *testing.T, got []fuelagent.JudgedItem) {
				require.Len(t, got, 1)
				assert.Equal(t, 1.0, got[0].Portion)
				assert.Equal(t, "roll", got[0].Unit)
			},
		},
		{
			name: "dozens of bowls clamped",
			item: judgeItem{Name: "rice", Portion: f64Ptr(48), Unit: strPtr("bowl"), Estimate: est},
			check: func(t *testing.T, got []fuelagent.JudgedItem) {
				require.Len(t, got, 1)
				assert.Equal(t, 6.0, got[0].Portion)
			},
		},
		{
			name: "piece count kept against piece reference",
			item: judgeItem{Name: "fish ball", MatchID: strPtr("FB1"), Portion: f64Ptr(12), Unit: strPtr("bowl")},
			check: func(t *testing.T, got []fuelagent.JudgedItem) {
				require.Len(t, got, 1)
				assert.Equal(t, 12.0, got[0].Portion)
			},
		},
		{
			name: "unmatched without estimate gets zero fallback",
			item: judgeItem{Name: "rice", MatchID: strPtr("")},
			check: func(t *testing.T, got []fuelagent.JudgedItem) {
				require.Len(t, got, 1)
				require.NotNil(t, got[0].FallbackNutrients)
				assert.Equal(t, fuelagent.Nutrients{}, *got[0].FallbackNutrients)
				assert.Equal(t, "serving", got[0].Unit)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := validateJudgement(judgeAnswer{Items: []judgeItem{tt.item}}, id, fishCakeCandidates())
			tt.check(t, j.Items)
		})
	}
}
