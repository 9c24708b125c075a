package estimate

import (
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"
)

func nutrientSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"calories": {Type: "number"},
			"protein":  {Type: "number"},
			"carbs":    {Type: "number"},
			"fat":      {Type: "number"},
		},
		Required: []string{"calories"},
	}
}

var judgeSchema = mustResolve(&jsonschema.Schema{
	Type: "object",
	Properties: map[string]*jsonschema.Schema{
		"meal_name": {Type: "string"},
		"items": {
			Type: "array",
			Items: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"name":     {Type: "string"},
					"match_id": {Types: []string{"string", "null"}},
					"portion":  {Types: []string{"number", "null"}},
					"unit":     {Types: []string{"string", "null"}},
					"omit":     {Type: "boolean"},
					"estimate": {
						Types:      []string{"object", "null"},
						Properties: nutrientSchema().Properties,
						Required:   nutrientSchema().Required,
					},
				},
				Required: []string{"name"},
			},
		},
	},
	Required: []string{"items"},
})

var labelSchema = mustResolve(&jsonschema.Schema{
	Type: "object",
	Properties: map[string]*jsonschema.Schema{
		"summary_name": {Type: "string"},
		"items": {
			Type: "array",
			Items: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"name":     {Type: "string"},
					"portion":  {Types: []string{"number", "null"}},
					"unit":     {Types: []string{"string", "null"}},
					"calories": {Type: "number"},
					"protein":  {Type: "number"},
					"carbs":    {Type: "number"},
					"fat":      {Type: "number"},
				},
				Required: []string{"name", "calories"},
			},
		},
	},
	Required: []string{"items"},
})

func mustResolve(s *jsonschema.Schema) *jsonschema.Resolved {
	r, err := s.Resolve(&jsonschema.ResolveOptions{})
	if err != nil {
		panic(fmt.Sprintf("invalid schema: %v", err))
	}
	return r
}
