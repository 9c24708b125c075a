package estimate

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"fuelagent"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"
)

// Strategy locates a candidate JSON object inside free-form model output.
type Strategy struct {
	Name string
	Find func(text string) (string, bool)
}

var (
	jsonFence    = regexp.MustCompile("(?s)```json\\s*(.*?)```")
	genericFence = regexp.MustCompile("(?s)```[A-Za-z0-9_-]*\\s*(.*?)```")
)

var (
	// FencedJSON takes the body of the first ```json block.
	FencedJSON = Strategy{Name: "json_fence", Find: fenceFinder(jsonFence)}

	// AnyFence takes the body of the first fenced block of any language.
	AnyFence = Strategy{Name: "generic_fence", Find: fenceFinder(genericFence)}

	// BraceSpan takes everything from the first '{' to the last '}'.
	BraceSpan = Strategy{Name: "brace_span", Find: func(text string) (string, bool) {
		start := strings.Index(text, "{")
		end := strings.LastIndex(text, "}")
		if start < 0 || end <= start {
			return "", false
		}
		return text[start : end+1], true
	}}
)

// DefaultStrategies is the order in which model answers are searched.
var DefaultStrategies = []Strategy{FencedJSON, AnyFence, BraceSpan}

var errNoJSON = errors.New("no JSON object found")

func fenceFinder(re *regexp.Regexp) func(string) (string, bool) {
	return func(text string) (string, bool) {
		m := re.FindStringSubmatch(text)
		if m == nil {
			return "", false
		}
		body := strings.TrimSpace(m[1])
		return body, strings.HasPrefix(body, "{")
	}
}

// Extract returns the first candidate JSON object found by strategies, tried
// in order. With no strategies DefaultStrategies is used.
func Extract(text string, strategies ...Strategy) (string, error) {
	if len(strategies) == 0 {
		strategies = DefaultStrategies
	}
	for _, s := range strategies {
		if body, ok := s.Find(text); ok {
			return body, nil
		}
	}
	return "", errNoJSON
}

// decode runs each strategy in turn and keeps the first candidate that parses
// and satisfies schema. Anything else is a *fuelagent.MalformedOutputError.
func decode(stage, text string, schema *jsonschema.Resolved, dst any) error {
	reason := errNoJSON.Error()
	for _, s := range DefaultStrategies {
		body, ok := s.Find(text)
		if !ok {
			continue
		}

		var generic any
		if err := json.Unmarshal([]byte(body), &generic); err != nil {
			reason = fmt.Sprintf("%s: invalid JSON: %v", s.Name, err)
			continue
		}
		if err := schema.Validate(generic); err != nil {
			reason = fmt.Sprintf("%s: schema: %v", s.Name, err)
			continue
		}
		if err := json.Unmarshal([]byte(body), dst); err != nil {
			reason = fmt.Sprintf("%s: %v", s.Name, err)
			continue
		}
		return nil
	}
	return &fuelagent.MalformedOutputError{Stage: stage, Reason: reason, Raw: text}
}
