// Package mock provides scripted llm.Generator and llm.Embedder
// implementations for tests and dry runs.
package mock

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"strings"
	"sync"
	"unicode"

	"fuelagent/llm"
)

// Rule answers any prompt containing Contains.
type Rule struct {
	Contains string
	Reply    func(target llm.Target, prompt string) (string, error)
}

// Text returns a rule that always answers with text.
func Text(contains, text string) Rule {
	return Rule{Contains: contains, Reply: func(llm.Target, string) (string, error) { return text, nil }}
}

// Err returns a rule that always fails with err.
func Err(contains string, err error) Rule {
	return Rule{Contains: contains, Reply: func(llm.Target, string) (string, error) { return "", err }}
}

// ByModel answers from replies keyed by model name and fails with fallback
// for any model not listed.
func ByModel(contains string, replies map[string]string, fallback error) Rule {
	return Rule{Contains: contains, Reply: func(t llm.Target, _ string) (string, error) {
		if r, ok := replies[t.Model]; ok {
			return r, nil
		}
		return "", fallback
	}}
}

// Call is one recorded Generate invocation.
type Call struct {
	Target llm.Target
	Prompt string
	Images int
}

// Router is a deterministic llm.Generator. The first matching rule wins.
type Router struct {
	mu    sync.Mutex
	rules []Rule
	calls []Call
}

func NewRouter(rules ...Rule) *Router {
	return &Router{rules: rules}
}

func (r *Router) Generate(ctx context.Context, target llm.Target, parts []llm.Part) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var texts []string
	images := 0
	for _, p := range parts {
		if p.IsImage() {
			images++
			continue
		}
		texts = append(texts, p.Text)
	}
	prompt := strings.Join(texts, "\n")

	r.mu.Lock()
	r.calls = append(r.calls, Call{Target: target, Prompt: prompt, Images: images})
	rules := r.rules
	r.mu.Unlock()

	slog.Info("LLM_CLIENT: Invoked", "provider", "mock", "target", target.String(), "images", images)

	for _, rule := range rules {
		if strings.Contains(prompt, rule.Contains) {
			return rule.Reply(target, prompt)
		}
	}
	return "", fmt.Errorf("mock: no rule matches prompt")
}

// Calls returns a copy of the recorded invocations.
func (r *Router) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// CallsContaining counts recorded prompts containing s.
func (r *Router) CallsContaining(s string) int {
	n := 0
	for _, c := range r.Calls() {
		if strings.Contains(c.Prompt, s) {
			n++
		}
	}
	return n
}

const embedDims = 64

// Embedder hashes lowercase words into a fixed number of buckets so that
// texts sharing words get a high cosine similarity. Vectors overrides the
// hash for exact texts.
type Embedder struct {
	Vectors map[string][]float64
	Err     error

	mu    sync.Mutex
	count int
}

func (e *Embedder) Embed(ctx context.Context, cred llm.Credential, text string, mode llm.EmbedMode) ([]float64, error) {
	e.mu.Lock()
	e.count++
	e.mu.Unlock()

	if e.Err != nil {
		return nil, e.Err
	}
	if v, ok := e.Vectors[text]; ok {
		return v, nil
	}
	return HashVector(text), nil
}

// Count returns how many Embed calls were made.
func (e *Embedder) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.count
}

// HashVector is the bag-of-words vector used by Embedder.
func HashVector(text string) []float64 {
	v := make([]float64, embedDims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%embedDims]++
	}
	var norm float64
	for _, x := range v {
		norm += x * x
	}
	if norm == 0 {
		return v
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] /= norm
	}
	return v
}
