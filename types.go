package fuelagent

import (
	"context"
	"net/http"
	"strings"
)

// UnknownMealName is the placeholder summary carried by the sentinel estimate.
const UnknownMealName = "Unknown"

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type SlackClient interface {
	PostMessage(ctx context.Context, channel string, message string) error
}

// Estimator is the pipeline entry point consumed by the web and chat layers.
type Estimator interface {
	Estimate(ctx context.Context, images [][]byte, description string) (MealEstimate, error)
}

// Nutrients holds per-serving calorie and macro values (kcal, grams).
type Nutrients struct {
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
}

// Scale multiplies every component by portion.
func (n Nutrients) Scale(portion float64) Nutrients {
	return Nutrients{
		Calories: n.Calories * portion,
		Protein:  n.Protein * portion,
		Carbs:    n.Carbs * portion,
		Fat:      n.Fat * portion,
	}
}

// ReferenceFoodEntry is a read-only record of the curated nutrition dataset.
type ReferenceFoodEntry struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Description        string    `json:"description,omitempty"`
	CategoryPath       []string  `json:"category_path,omitempty"`
	DefaultUnit        string    `json:"default_unit,omitempty"`
	DefaultWeightGrams float64   `json:"default_weight_grams,omitempty"`
	Nutrients          Nutrients `json:"nutrients"`
}

// DocumentText is the text embedded for the entry by the precompute job.
func (e ReferenceFoodEntry) DocumentText() string {
	return strings.TrimSpace(e.Name + " " + e.Description)
}

// IdentifiedItem is a distinct food or drink named by the identifier.
type IdentifiedItem struct {
	Name string `json:"name"`
}

// NewIdentifiedItem trims name and reports false when nothing is left.
func NewIdentifiedItem(name string) (IdentifiedItem, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return IdentifiedItem{}, false
	}
	return IdentifiedItem{Name: name}, true
}

// Candidate is a reference entry proposed for an identified item.
type Candidate struct {
	Entry ReferenceFoodEntry `json:"entry"`
	Score float64            `json:"score"`
}

// JudgedItem is the judge's verdict for one item. MatchedEntryID is empty when
// no reference entry was accepted, in which case FallbackNutrients applies.
type JudgedItem struct {
	Name              string     `json:"name"`
	MatchedEntryID    string     `json:"matched_entry_id,omitempty"`
	Portion           float64    `json:"portion"`
	Unit              string     `json:"unit"`
	FallbackNutrients *Nutrients `json:"fallback_nutrients,omitempty"`
}

// Matched reports whether the item resolves against the reference dataset.
func (j JudgedItem) Matched() bool {
	return j.MatchedEntryID != ""
}

// NutrientSource records where a resolved item's values came from.
type NutrientSource string

const (
	SourceReference NutrientSource = "reference"
	SourceEstimate  NutrientSource = "estimate"
	SourceLabel     NutrientSource = "label"
	SourceNone      NutrientSource = "none"
)

// ResolvedItem is a judged item with rounded, portion-scaled nutrients.
type ResolvedItem struct {
	JudgedItem
	ReferenceUnit string         `json:"reference_unit,omitempty"`
	Calories      int            `json:"calories"`
	Protein       int            `json:"protein"`
	Carbs         int            `json:"carbs"`
	Fat           int            `json:"fat"`
	Source        NutrientSource `json:"source"`
}

// MealEstimate is the final pipeline output.
type MealEstimate struct {
	SummaryName   string         `json:"summary_name"`
	TotalCalories int            `json:"total_calories"`
	TotalProtein  int            `json:"total_protein"`
	TotalCarbs    int            `json:"total_carbs"`
	TotalFat      int            `json:"total_fat"`
	Items         []ResolvedItem `json:"items"`
	LabelDetected bool           `json:"label_detected,omitempty"`

	// Unresolved marks the sentinel returned when no estimate could be produced.
	Unresolved bool `json:"unresolved,omitempty"`
}

// SentinelEstimate returns the zero-value placeholder for total pipeline failure.
func SentinelEstimate() MealEstimate {
	return MealEstimate{
		SummaryName: UnknownMealName,
		Items:       []ResolvedItem{},
		Unresolved:  true,
	}
}

// IsSentinel distinguishes "no data" from a legitimately zero-calorie meal.
func (m MealEstimate) IsSentinel() bool {
	return m.Unresolved
}
