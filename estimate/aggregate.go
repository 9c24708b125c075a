package estimate

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"time"

	"fuelagent"
	"fuelagent/hpb"

	"golang.org/x/sync/errgroup"
)

const (
	maxPiecePortion  = 30
	maxUnitPortion   = 6
	maxLabelServings = 100
)

var pieceUnits = map[string]bool{
	"piece": true, "pieces": true, "pc": true, "pcs": true,
	"slice": true, "slices": true, "stick": true, "sticks": true,
	"ball": true, "balls": true, "cube": true, "cubes": true,
	"wedge": true, "wedges": true, "nugget": true, "nuggets": true,
	"dumpling": true, "dumplings": true, "tsp": true, "teaspoon": true,
	"clove": true, "cloves": true, "strip": true, "strips": true,
}

// ClampPortion bounds a judged multiplier. Non-positive or NaN portions become
// 1. Piece-like units allow up to 30, any other unit up to 6.
func ClampPortion(portion float64, unit string) float64 {
	if math.IsNaN(portion) || portion <= 0 {
		return 1
	}
	limit := float64(maxUnitPortion)
	if pieceUnits[strings.ToLower(strings.TrimSpace(unit))] {
		limit = maxPiecePortion
	}
	return math.Min(portion, limit)
}

// LabelServings bounds a serving count read off a label. The count usually
// comes from the caller's own description, so only absurd values are capped.
func LabelServings(portion float64) float64 {
	if math.IsNaN(portion) || portion <= 0 {
		return 1
	}
	return math.Min(portion, maxLabelServings)
}

// Resolve scales n by portion and rounds every component independently.
func Resolve(item fuelagent.JudgedItem, n fuelagent.Nutrients, source fuelagent.NutrientSource, refUnit string) fuelagent.ResolvedItem {
	s := n.Scale(item.Portion)
	return fuelagent.ResolvedItem{
		JudgedItem:    item,
		ReferenceUnit: refUnit,
		Calories:      int(math.Round(s.Calories)),
		Protein:       int(math.Round(s.Protein)),
		Carbs:         int(math.Round(s.Carbs)),
		Fat:           int(math.Round(s.Fat)),
		Source:        source,
	}
}

// Total builds the meal estimate whose totals are the sums of the already
// rounded per-item values.
func Total(summary string, items []fuelagent.ResolvedItem) fuelagent.MealEstimate {
	m := fuelagent.MealEstimate{SummaryName: summary, Items: items}
	if m.Items == nil {
		m.Items = []fuelagent.ResolvedItem{}
	}
	for _, it := range m.Items {
		m.TotalCalories += it.Calories
		m.TotalProtein += it.Protein
		m.TotalCarbs += it.Carbs
		m.TotalFat += it.Fat
	}
	return m
}

type Aggregator struct {
	lookup  hpb.Lookup
	timeout time.Duration
}

func NewAggregator(lookup hpb.Lookup, timeout time.Duration) *Aggregator {
	return &Aggregator{lookup: lookup, timeout: timeout}
}

// Aggregate resolves every judged item. A failed lookup degrades only that
// item: to the judge's estimate when there is one, otherwise to zero.
func (a *Aggregator) Aggregate(ctx context.Context, mealName string, items []fuelagent.JudgedItem) fuelagent.MealEstimate {
	resolved := make([]fuelagent.ResolvedItem, len(items))

	var g errgroup.Group
	g.SetLimit(maxConcurrentQueries)
	for i, item := range items {
		g.Go(func() error {
			resolved[i] = a.resolve(ctx, item)
			return nil
		})
	}
	_ = g.Wait()

	return Total(summaryName(mealName, items), resolved)
}

func (a *Aggregator) resolve(ctx context.Context, item fuelagent.JudgedItem) fuelagent.ResolvedItem {
	if !item.Matched() {
		if item.FallbackNutrients == nil {
			return Resolve(item, fuelagent.Nutrients{}, fuelagent.SourceNone, "")
		}
		return Resolve(item, *item.FallbackNutrients, fuelagent.SourceEstimate, "")
	}

	if a.lookup == nil {
		return a.degrade(item, errors.New("no nutrient lookup configured"))
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	d, err := a.lookup.FetchDetails(ctx, item.MatchedEntryID)
	if err != nil {
		return a.degrade(item, err)
	}
	return Resolve(item, d.Nutrients, fuelagent.SourceReference, d.Unit)
}

func (a *Aggregator) degrade(item fuelagent.JudgedItem, err error) fuelagent.ResolvedItem {
	if item.FallbackNutrients != nil {
		slog.Warn("AGGREGATOR: Lookup failed, using judge estimate", "item", item.Name, "id", item.MatchedEntryID, "error", err)
		return Resolve(item, *item.FallbackNutrients, fuelagent.SourceEstimate, "")
	}
	slog.Warn("AGGREGATOR: Lookup failed, item contributes zero", "item", item.Name, "id", item.MatchedEntryID, "error", err)
	return Resolve(item, fuelagent.Nutrients{}, fuelagent.SourceNone, "")
}

func summaryName(mealName string, items []fuelagent.JudgedItem) string {
	if mealName = strings.TrimSpace(mealName); mealName != "" {
		return mealName
	}
	names := make([]string, 0, len(items))
	for _, it := range items {
		names = append(names, it.Name)
	}
	if len(names) == 0 {
		return NoFoodName
	}
	return strings.Join(names, ", ")
}
