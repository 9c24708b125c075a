package mock

import (
	"encoding/json"
	"log/slog"
	"regexp"

	"fuelagent/llm"
)

var candidateID = regexp.MustCompile(`\[id=([^\]]+)\]`)

// NewDemoRouter answers every stage with a plausible chicken rice meal. The
// judge accepts the first candidate id listed in its prompt, if any.
func NewDemoRouter() *Router {
	return NewRouter(
		Text("TASK: IDENTIFY", "Hainanese chicken rice with cucumber and chilli sauce.\nITEMS: chicken rice, cucumber slices\nEXCLUDED: fork, spoon\nLABEL: no"),
		Rule{Contains: "TASK: JUDGE", Reply: demoJudge},
		Text("TASK: LABEL", `{"summary_name":"Packaged drink","items":[{"name":"Soy milk","portion":1,"unit":"bottle","calories":120,"protein":7,"carbs":14,"fat":4}]}`),
	)
}

func demoJudge(_ llm.Target, prompt string) (string, error) {
	var matchID any
	if m := candidateID.FindStringSubmatch(prompt); m != nil {
		matchID = m[1]
	}

	out := map[string]any{
		"meal_name": "Hainanese chicken rice",
		"items": []map[string]any{
			{
				"name":     "chicken rice",
				"match_id": matchID,
				"portion":  1,
				"unit":     "plate",
				"estimate": map[string]any{"calories": 600, "protein": 25, "carbs": 75, "fat": 20},
			},
			{
				"name":     "cucumber slices",
				"match_id": nil,
				"portion":  1,
				"unit":     "serving",
				"estimate": map[string]any{"calories": 8, "protein": 0.3, "carbs": 1.8, "fat": 0.1},
			},
		},
	}
	b, err := json.Marshal(out)
	if err != nil {
		slog.Error("Failed to marshal demo judgement", "error", err)
		return "", err
	}
	return "```json\n" + string(b) + "\n```", nil
}
