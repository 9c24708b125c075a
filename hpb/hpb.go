// Package hpb resolves canonical per-serving nutrients for reference entries,
// either from the Health Promotion Board food portal or from a local catalog.
package hpb

import (
	"context"
	"regexp"
	"strings"

	"fuelagent"
)

// DefaultBaseURL is the food portal details endpoint; the entry id is appended.
const DefaultBaseURL = "https://pphtpc.hpb.gov.sg/bff/v1/food-portal/foods/details"

// Details are the canonical per-serving values of one reference entry.
type Details struct {
	Nutrients   fuelagent.Nutrients `json:"nutrients"`
	Unit        string              `json:"unit"`
	WeightGrams float64             `json:"weight_grams,omitempty"`
}

// Lookup fetches Details for a reference entry id. Failures wrap
// fuelagent.ErrExternalLookup.
type Lookup interface {
	FetchDetails(ctx context.Context, id string) (Details, error)
}

var portionUnit = regexp.MustCompile(`\d+(?:\.\d+)?\s+(.*?)\s*=`)

// ParsePortionUnit extracts the serving unit from portal strings such as
// "1 plate(s) = 418g". Empty or "-" yields "unit".
func ParsePortionUnit(portion string) string {
	portion = strings.TrimSpace(portion)
	if portion == "" || portion == "-" {
		return "unit"
	}

	clean := strings.TrimSpace(strings.ReplaceAll(portion, "(s)", ""))
	if m := portionUnit.FindStringSubmatch(clean); m != nil {
		if u := strings.TrimSpace(m[1]); u != "" {
			return u
		}
	}

	parts := strings.Fields(clean)
	switch {
	case len(parts) > 0 && !isNumber(parts[0]):
		return parts[0]
	case len(parts) > 1:
		return parts[1]
	}
	return "unit"
}

func isNumber(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' {
			return false
		}
	}
	return true
}
