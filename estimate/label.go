package estimate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"fuelagent"
	"fuelagent/llm"
)

type labelAnswer struct {
	SummaryName string      `json:"summary_name"`
	Items       []labelItem `json:"items"`
}

type labelItem struct {
	Name     string   `json:"name"`
	Portion  *float64 `json:"portion"`
	Unit     *string  `json:"unit"`
	Calories float64  `json:"calories"`
	Protein  float64  `json:"protein"`
	Carbs    float64  `json:"carbs"`
	Fat      float64  `json:"fat"`
}

// LabelExtractor reads a printed nutrition label instead of retrieving and
// judging reference candidates.
type LabelExtractor struct {
	llm llm.Generator
}

func NewLabelExtractor(gen llm.Generator) *LabelExtractor {
	return &LabelExtractor{llm: gen}
}

func (l *LabelExtractor) Extract(ctx context.Context, target llm.Target, images []llm.Part, description string) (fuelagent.MealEstimate, error) {
	parts := append([]llm.Part{llm.Text(labelPrompt(description))}, images...)

	out, err := l.llm.Generate(ctx, target, parts)
	if err != nil {
		return fuelagent.MealEstimate{}, &fuelagent.StageError{Stage: fuelagent.StageLabel, Err: fmt.Errorf("failed to read label: %w", err)}
	}

	var ans labelAnswer
	if err := decode(fuelagent.StageLabel, out, labelSchema, &ans); err != nil {
		slog.Warn("LABEL: Malformed answer", "error", err)
		return fuelagent.MealEstimate{}, &fuelagent.StageError{Stage: fuelagent.StageLabel, Err: err}
	}

	items := make([]fuelagent.ResolvedItem, 0, len(ans.Items))
	judged := make([]fuelagent.JudgedItem, 0, len(ans.Items))
	for _, it := range ans.Items {
		name := strings.TrimSpace(it.Name)
		if name == "" {
			continue
		}
		unit := "serving"
		if it.Unit != nil {
			unit = orDefault(*it.Unit, unit)
		}
		portion := 1.0
		if it.Portion != nil {
			portion = *it.Portion
		}

		n := fuelagent.Nutrients{Calories: it.Calories, Protein: it.Protein, Carbs: it.Carbs, Fat: it.Fat}
		item := fuelagent.JudgedItem{
			Name:              name,
			Portion:           LabelServings(portion),
			Unit:              unit,
			FallbackNutrients: &n,
		}
		judged = append(judged, item)
		items = append(items, Resolve(item, n, fuelagent.SourceLabel, unit))
	}

	est := Total(summaryName(ans.SummaryName, judged), items)
	est.LabelDetected = true
	slog.Info("LABEL: Extracted label", "items", len(items), "calories", est.TotalCalories)
	return est, nil
}
