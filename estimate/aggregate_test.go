package estimate

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"fuelagent"
	"fuelagent/hpb"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClampPortion(t *testing.T) {
	tests := []struct {
		portion float64
		unit    string
		want    float64
	}{
		{1.5, "bowl", 1.5},
		{0, "bowl", 1},
		{-2, "plate", 1},
		{math.NaN(), "cup", 1},
		{24, "plate", 6},
		{24, "Pieces", 24},
		{40, "piece", 30},
		{0.1, "tbsp", 0.1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClampPortion(tt.portion, tt.unit), "portion=%v unit=%s", tt.portion, tt.unit)
	}
}

func TestLabelServings(t *testing.T) {
	tests := []struct {
		portion float64
		want    float64
	}{
		{8, 8},
		{0.5, 0.5},
		{0, 1},
		{-1, 1},
		{math.NaN(), 1},
		{math.Inf(1), 100},
		{250, 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LabelServings(tt.portion), "portion=%v", tt.portion)
	}
}

func TestResolve_ComponentwiseRounding(t *testing.T) {
	n := fuelagent.Nutrients{Calories: 45, Protein: 3.3, Carbs: 2.5, Fat: 1.25}

	half := Resolve(fuelagent.JudgedItem{Portion: 0.5}, n, fuelagent.SourceReference, "piece")
	assert.Equal(t, 23, half.Calories) // 22.5
	assert.Equal(t, 2, half.Protein)   // 1.65
	assert.Equal(t, 1, half.Carbs)     // 1.25
	assert.Equal(t, 1, half.Fat)       // 0.625

	whole := Resolve(fuelagent.JudgedItem{Portion: 1}, n, fuelagent.SourceReference, "piece")
	assert.Equal(t, 45, whole.Calories)
	assert.Equal(t, 3, whole.Carbs) // 2.5 rounds away from zero

	// Two halves do not sum to one rounded whole.
	m := Total("x", []fuelagent.ResolvedItem{half, half})
	assert.Equal(t, 46, m.TotalCalories)
	assert.NotEqual(t, whole.Calories, m.TotalCalories)
}

type stubLookup map[string]hpb.Details

func (s stubLookup) FetchDetails(ctx context.Context, id string) (hpb.Details, error) {
	d, ok := s[id]
	if !ok {
		return hpb.Details{}, fmt.Errorf("%w: %s", fuelagent.ErrExternalLookup, id)
	}
	return d, nil
}

func TestAggregator_Aggregate(t *testing.T) {
	lookup := stubLookup{
		"CR1": {Unit: "plate", Nutrients: fuelagent.Nutrients{Calories: 607, Protein: 25.1, Carbs: 75.2, Fat: 22.8}},
	}
	items := []fuelagent.JudgedItem{
		{Name: "chicken rice", MatchedEntryID: "CR1", Portion: 1.5, Unit: "plate"},
		{Name: "soup", MatchedEntryID: "GONE", Portion: 1, Unit: "bowl", FallbackNutrients: &fuelagent.Nutrients{Calories: 40.4, Protein: 2}},
		{Name: "sauce", MatchedEntryID: "GONE", Portion: 1, Unit: "dish"},
		{Name: "cucumber", Portion: 2, Unit: "slice", FallbackNutrients: &fuelagent.Nutrients{Calories: 1.6}},
	}

	m := NewAggregator(lookup, 0).Aggregate(context.Background(), "", items)
	require.Len(t, m.Items, 4)

	assert.Equal(t, fuelagent.SourceReference, m.Items[0].Source)
	assert.Equal(t, "plate", m.Items[0].ReferenceUnit)
	assert.Equal(t, 911, m.Items[0].Calories) // 910.5
	assert.Equal(t, 38, m.Items[0].Protein)   // 37.65
	assert.Equal(t, 113, m.Items[0].Carbs)    // 112.8
	assert.Equal(t, 34, m.Items[0].Fat)       // 34.2

	assert.Equal(t, fuelagent.SourceEstimate, m.Items[1].Source)
	assert.Equal(t, 40, m.Items[1].Calories)

	assert.Equal(t, fuelagent.SourceNone, m.Items[2].Source)
	assert.Zero(t, m.Items[2].Calories)

	assert.Equal(t, fuelagent.SourceEstimate, m.Items[3].Source)
	assert.Equal(t, 3, m.Items[3].Calories) // 3.2

	assert.Equal(t, 911+40+0+3, m.TotalCalories)
	assert.Equal(t, 38+2, m.TotalProtein)
	assert.Equal(t, "chicken rice, soup, sauce, cucumber", m.SummaryName)
	assert.False(t, m.IsSentinel())
}

func TestAggregator_NilLookupDegrades(t *testing.T) {
	m := NewAggregator(nil, 0).Aggregate(context.Background(), "Lunch", []fuelagent.JudgedItem{
		{Name: "rice", MatchedEntryID: "R", Portion: 1, FallbackNutrients: &fuelagent.Nutrients{Calories: 200}},
	})
	assert.Equal(t, "Lunch", m.SummaryName)
	assert.Equal(t, 200, m.TotalCalories)
	assert.Equal(t, fuelagent.SourceEstimate, m.Items[0].Source)
}

func TestAggregator_DetailsWithoutEnergyUseJudgeEstimate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"crId":"CR1","defaultPortion":"1 plate(s) = 418g","defaultWeight":418}`))
	}))
	defer srv.Close()

	m := NewAggregator(hpb.NewClient(srv.URL, srv.Client()), 0).Aggregate(context.Background(), "Lunch", []fuelagent.JudgedItem{
		{Name: "chicken rice", MatchedEntryID: "CR1", Portion: 1, Unit: "plate", FallbackNutrients: &fuelagent.Nutrients{Calories: 600}},
	})
	require.Len(t, m.Items, 1)
	assert.Equal(t, fuelagent.SourceEstimate, m.Items[0].Source)
	assert.Equal(t, 600, m.TotalCalories)
}
