package estimate

import (
	"fmt"
	"strings"

	"fuelagent"
)

// Stage markers open every prompt so that logs and scripted test models can
// tell the calls apart.
const (
	MarkerIdentify = "TASK: IDENTIFY"
	MarkerJudge    = "TASK: JUDGE"
	MarkerLabel    = "TASK: LABEL"
)

const multiImageNote = "If multiple images are provided, they show different parts of the SAME meal."

const scaleNote = `Look for common reference objects (a fork, spoon, chopsticks or a human hand) and use them as a ruler to judge scale and volume. If none is visible, assume standard plate and bowl sizes.`

func describe(description string) string {
	if d := strings.TrimSpace(description); d != "" {
		return "User description: " + d
	}
	return "User description: (none)"
}

func identifyPrompt(description string, images int) string {
	var b strings.Builder
	b.WriteString(MarkerIdentify + "\n\n")
	b.WriteString("You are a food recognition assistant. List the distinct food and drink items in this meal.\n")
	if images > 1 {
		b.WriteString(multiImageNote + "\n")
	}
	b.WriteString(describe(description) + "\n\n")
	b.WriteString(`RULES:
- Only list items belonging to the primary subject: the plate, bowl or drink in focus.
- Do NOT list items in the background, cut off at the frame edge, or belonging to another diner. Name those on the EXCLUDED line instead.
- Cutlery, napkins and packaging are not food.
- Use short, generic dish names (e.g. "chicken rice", "teh tarik"), one per distinct item.
- Report whether a printed nutrition information label is clearly legible in any image.

Answer with exactly these three lines and nothing else:
ITEMS: <comma separated item names, or none>
EXCLUDED: <comma separated excluded items, or none>
LABEL: <yes or no>
`)
	return b.String()
}

func judgePrompt(description string, items []fuelagent.IdentifiedItem, candidates [][]fuelagent.Candidate, images int) string {
	var b strings.Builder
	b.WriteString(MarkerJudge + "\n\n")
	b.WriteString("You are a nutrition estimator. For every identified item choose the best matching reference food, or none, and estimate the portion.\n")
	if images > 1 {
		b.WriteString(multiImageNote + "\n")
	}
	if images > 0 {
		b.WriteString(scaleNote + "\n")
	}
	b.WriteString(describe(description) + "\n\n")

	b.WriteString("IDENTIFIED ITEMS AND REFERENCE CANDIDATES:\n")
	for i, item := range items {
		fmt.Fprintf(&b, "%d. %q\n", i+1, item.Name)
		if i >= len(candidates) || len(candidates[i]) == 0 {
			b.WriteString("   (no reference candidates)\n")
			continue
		}
		for _, c := range candidates[i] {
			e := c.Entry
			fmt.Fprintf(&b, "   - [id=%s] %s | unit: %s", e.ID, e.Name, orDefault(e.DefaultUnit, "serving"))
			if e.DefaultWeightGrams > 0 {
				fmt.Fprintf(&b, " (%.0fg)", e.DefaultWeightGrams)
			}
			fmt.Fprintf(&b, " | %.0f kcal", e.Nutrients.Calories)
			if e.Description != "" {
				fmt.Fprintf(&b, " | %s", e.Description)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString(`
PORTION RULES (apply in order, later rules refine earlier ones):
1. Quantities or portions stated by the user always override visual estimation.
2. If no image was supplied, the portion is 1.0 unless the text says otherwise.
3. The portion is a multiplier of the chosen reference unit. If the user's unit is smaller than the reference unit (a spoonful against a bowl, a slice against a whole cake), use the matching fraction. Never return a multiplier implying dozens of reference units for one described serving.
4. Items normally sold whole (rolls, cakes, loaves) described as a "slice" get about 0.1 to 0.2 per slice. Small condiment side servings get about 0.1. Items counted in discrete pieces get a portion equal to the piece count when the reference unit is one piece.
5. Items at the frame edge, visibly cropped, or belonging to another diner must be marked "omit": true.
6. If no candidate is an acceptable match, set "match_id" to null and give your own per-portion "estimate".

Return ONLY a JSON object in a ` + "```json" + ` block:
{
  "meal_name": string,             // short name for the whole meal
  "items": [
    {
      "name": string,              // the identified item name
      "match_id": string | null,   // an id from the candidates above, or null
      "portion": number,           // multiplier of the reference unit
      "unit": string,              // the serving unit the portion refers to
      "omit": boolean,
      "estimate": {"calories": number, "protein": number, "carbs": number, "fat": number}
    }
  ]
}
Always include "estimate" for one unit of the item, even when a match is chosen.
`)
	return b.String()
}

func labelPrompt(description string) string {
	var b strings.Builder
	b.WriteString(MarkerLabel + "\n\n")
	b.WriteString("A nutrition information label is visible. Read its printed per-serving values directly. Do not estimate from appearance.\n")
	b.WriteString(describe(description) + "\n\n")
	b.WriteString(`If the user mentions a quantity (e.g. "2 packets", "half a bottle"), set "portion" to that multiple of the labelled serving. Otherwise portion is 1.

Return ONLY a JSON object in a ` + "```json" + ` block:
{
  "summary_name": string,
  "items": [
    {"name": string, "portion": number, "unit": string, "calories": number, "protein": number, "carbs": number, "fat": number}
  ]
}
Values are per labelled serving, before applying the portion.
`)
	return b.String()
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
