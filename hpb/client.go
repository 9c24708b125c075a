package hpb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"fuelagent"
)

const kJPerKcal = 4.184

// Client calls the food portal details endpoint.
type Client struct {
	baseURL    string
	httpClient fuelagent.HTTPClient
}

func NewClient(baseURL string, httpClient fuelagent.HTTPClient) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

type wireNutrient struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// wireDetails is the subset of the portal response the lookup relies on.
type wireDetails struct {
	CrID           string         `json:"crId"`
	Name           string         `json:"name"`
	DefaultPortion string         `json:"defaultPortion"`
	DefaultWeight  float64        `json:"defaultWeight"`
	Nutrients      []wireNutrient `json:"nutrients"`
}

func (c *Client) FetchDetails(ctx context.Context, id string) (Details, error) {
	u := c.baseURL + "/" + url.PathEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Details{}, fmt.Errorf("%w: %v", fuelagent.ErrExternalLookup, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; fuel-estimator)")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Details{}, fmt.Errorf("%w: %s: %v", fuelagent.ErrExternalLookup, id, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Details{}, fmt.Errorf("%w: %s: failed to read body: %v", fuelagent.ErrExternalLookup, id, err)
	}
	if resp.StatusCode != http.StatusOK {
		return Details{}, fmt.Errorf("%w: %s: %s", fuelagent.ErrExternalLookup, id, resp.Status)
	}

	var wd wireDetails
	if err := json.Unmarshal(body, &wd); err != nil {
		return Details{}, fmt.Errorf("%w: %s: failed to decode: %v", fuelagent.ErrExternalLookup, id, err)
	}

	n, ok := nutrientsFrom(wd.Nutrients)
	if !ok {
		return Details{}, fmt.Errorf("%w: %s: no energy value", fuelagent.ErrExternalLookup, id)
	}

	d := Details{
		Nutrients:   n,
		Unit:        ParsePortionUnit(wd.DefaultPortion),
		WeightGrams: wd.DefaultWeight,
	}
	slog.Debug("HPB: Fetched details", "id", id, "unit", d.Unit, "calories", d.Nutrients.Calories)
	return d, nil
}

// nutrientsFrom reports false when list carries no energy entry.
func nutrientsFrom(list []wireNutrient) (fuelagent.Nutrients, bool) {
	var n fuelagent.Nutrients
	var energy bool
	for _, w := range list {
		name := strings.ToLower(strings.TrimSpace(w.Name))
		switch {
		case strings.HasPrefix(name, "energy"):
			energy = true
			if strings.EqualFold(w.Unit, "kj") {
				n.Calories = w.Value / kJPerKcal
			} else {
				n.Calories = w.Value
			}
		case name == "protein":
			n.Protein = w.Value
		case strings.HasPrefix(name, "carbohydrate"):
			n.Carbs = w.Value
		case name == "fat" || name == "total fat":
			n.Fat = w.Value
		}
	}
	return n, energy
}
