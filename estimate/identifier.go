package estimate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"fuelagent"
	"fuelagent/llm"
)

// Identification is the parsed answer of the identify stage.
type Identification struct {
	Items         []fuelagent.IdentifiedItem
	Excluded      []string
	LabelDetected bool
}

type Identifier struct {
	llm llm.Generator
}

func NewIdentifier(gen llm.Generator) *Identifier {
	return &Identifier{llm: gen}
}

// Identify asks the model for the distinct items in the meal. Model and
// transport failures are returned as stage failures.
func (i *Identifier) Identify(ctx context.Context, target llm.Target, images []llm.Part, description string) (Identification, error) {
	parts := append([]llm.Part{llm.Text(identifyPrompt(description, len(images)))}, images...)

	out, err := i.llm.Generate(ctx, target, parts)
	if err != nil {
		return Identification{}, &fuelagent.StageError{Stage: fuelagent.StageIdentify, Err: fmt.Errorf("failed to identify items: %w", err)}
	}

	id := ParseIdentification(out)
	slog.Info("IDENTIFIER: Parsed items", "items", len(id.Items), "excluded", len(id.Excluded), "label", id.LabelDetected)
	return id, nil
}

const (
	keyItems    = "ITEMS"
	keyExcluded = "EXCLUDED"
	keyLabel    = "LABEL"
)

// ParseIdentification reads the ITEMS/EXCLUDED/LABEL lines of an identify
// answer. Without an ITEMS line it falls back to the last line containing a
// comma, then to the last non-empty line. Excluded names never appear in Items.
func ParseIdentification(text string) Identification {
	var (
		id        Identification
		itemsLine string
		haveItems bool
		lastComma string
		lastLine  string
	)

	for _, raw := range strings.Split(text, "\n") {
		line := cleanLine(raw)
		if line == "" {
			continue
		}

		if key, val, ok := splitMarker(line); ok {
			switch key {
			case keyItems:
				itemsLine, haveItems = val, true
			case keyExcluded:
				id.Excluded = append(id.Excluded, splitNames(val)...)
			case keyLabel:
				id.LabelDetected = isYes(val)
			}
			continue
		}

		lastLine = line
		if strings.Contains(line, ",") {
			lastComma = line
		}
	}

	if !haveItems {
		itemsLine = lastComma
		if itemsLine == "" {
			itemsLine = lastLine
		}
	}

	excluded := make(map[string]bool, len(id.Excluded))
	for _, e := range id.Excluded {
		excluded[strings.ToLower(e)] = true
	}

	seen := make(map[string]bool)
	for _, name := range splitNames(itemsLine) {
		key := strings.ToLower(name)
		if excluded[key] || seen[key] {
			continue
		}
		if item, ok := fuelagent.NewIdentifiedItem(name); ok {
			seen[key] = true
			id.Items = append(id.Items, item)
		}
	}
	return id
}

// cleanLine strips list bullets and markdown emphasis.
func cleanLine(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "-*#> ")
	s = strings.ReplaceAll(s, "**", "")
	s = strings.ReplaceAll(s, "__", "")
	return strings.TrimSpace(s)
}

func splitMarker(line string) (key, value string, ok bool) {
	head, tail, found := strings.Cut(line, ":")
	if !found {
		return "", "", false
	}
	switch k := strings.ToUpper(strings.TrimSpace(head)); k {
	case keyItems, keyExcluded, keyLabel:
		return k, strings.TrimSpace(tail), true
	}
	return "", "", false
}

func splitNames(s string) []string {
	var names []string
	for _, n := range strings.Split(s, ",") {
		n = strings.Trim(strings.TrimSpace(n), `."'`+"`")
		n = strings.TrimSpace(n)
		if n == "" || strings.EqualFold(n, "none") || strings.EqualFold(n, "n/a") {
			continue
		}
		names = append(names, n)
	}
	return names
}

func isYes(s string) bool {
	s = strings.ToLower(strings.Trim(strings.TrimSpace(s), "."))
	return s == "yes" || s == "true" || s == "y"
}
