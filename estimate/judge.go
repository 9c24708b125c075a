package estimate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"fuelagent"
	"fuelagent/llm"
)

type judgeAnswer struct {
	MealName string      `json:"meal_name"`
	Items    []judgeItem `json:"items"`
}

type judgeItem struct {
	Name     string               `json:"name"`
	MatchID  *string              `json:"match_id"`
	Portion  *float64             `json:"portion"`
	Unit     *string              `json:"unit"`
	Omit     bool                 `json:"omit"`
	Estimate *fuelagent.Nutrients `json:"estimate"`
}

// Judgement is the validated output of the judge stage.
type Judgement struct {
	MealName string
	Items    []fuelagent.JudgedItem
}

type Judge struct {
	llm llm.Generator
}

func NewJudge(gen llm.Generator) *Judge {
	return &Judge{llm: gen}
}

// Judge asks the model to pick a candidate and portion for every item, then
// applies the post-validation layer: omitted and excluded items are dropped,
// ids not offered as candidates are rejected and portions are clamped.
func (j *Judge) Judge(ctx context.Context, target llm.Target, images []llm.Part, description string, id Identification, candidates [][]fuelagent.Candidate) (Judgement, error) {
	prompt := judgePrompt(description, id.Items, candidates, len(images))
	parts := append([]llm.Part{llm.Text(prompt)}, images...)

	out, err := j.llm.Generate(ctx, target, parts)
	if err != nil {
		return Judgement{}, &fuelagent.StageError{Stage: fuelagent.StageJudge, Err: fmt.Errorf("failed to judge items: %w", err)}
	}

	var ans judgeAnswer
	if err := decode(fuelagent.StageJudge, out, judgeSchema, &ans); err != nil {
		slog.Warn("JUDGE: Malformed answer", "error", err)
		return Judgement{}, &fuelagent.StageError{Stage: fuelagent.StageJudge, Err: err}
	}

	return validateJudgement(ans, id, candidates), nil
}

func validateJudgement(ans judgeAnswer, id Identification, candidates [][]fuelagent.Candidate) Judgement {
	offered := make(map[string]fuelagent.ReferenceFoodEntry)
	for _, list := range candidates {
		for _, c := range list {
			offered[c.Entry.ID] = c.Entry
		}
	}
	excluded := make(map[string]bool, len(id.Excluded))
	for _, e := range id.Excluded {
		excluded[strings.ToLower(strings.TrimSpace(e))] = true
	}

	j := Judgement{MealName: strings.TrimSpace(ans.MealName), Items: make([]fuelagent.JudgedItem, 0, len(ans.Items))}
	for _, it := range ans.Items {
		name := strings.TrimSpace(it.Name)
		if name == "" || it.Omit || excluded[strings.ToLower(name)] {
			slog.Debug("JUDGE: Dropping item", "name", it.Name, "omit", it.Omit)
			continue
		}

		item := fuelagent.JudgedItem{Name: name, FallbackNutrients: it.Estimate}

		var refUnit string
		if it.MatchID != nil {
			matchID := strings.TrimSpace(*it.MatchID)
			if e, ok := offered[matchID]; ok {
				item.MatchedEntryID = matchID
				refUnit = e.DefaultUnit
			} else if matchID != "" {
				slog.Warn("JUDGE: Rejecting id that was not offered", "item", name, "match_id", matchID)
			}
		}

		if it.Unit != nil {
			item.Unit = strings.TrimSpace(*it.Unit)
		}
		item.Unit = orDefault(item.Unit, orDefault(refUnit, "serving"))

		portion := 1.0
		if it.Portion != nil {
			portion = *it.Portion
		}
		// Matched portions are multiples of the reference unit.
		item.Portion = ClampPortion(portion, orDefault(refUnit, item.Unit))

		if !item.Matched() && item.FallbackNutrients == nil {
			slog.Warn("JUDGE: Unmatched item without estimate", "item", name)
			item.FallbackNutrients = &fuelagent.Nutrients{}
		}
		j.Items = append(j.Items, item)
	}
	return j
}
