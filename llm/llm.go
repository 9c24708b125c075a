// Package llm defines the provider-neutral surface the estimator uses to talk
// to multimodal language models and embedding endpoints.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"fuelagent"
)

const (
	defaultMaxTokens   = 2048
	defaultTemperature = 0.1
	defaultTopP        = 0.9
)

// Part is one element of a prompt. Exactly one of Text or Data is set.
type Part struct {
	Text     string
	MIMEType string
	Data     []byte
}

// Text returns a text part.
func Text(s string) Part { return Part{Text: s} }

// Image returns an inline image part.
func Image(mimeType string, data []byte) Part {
	return Part{MIMEType: mimeType, Data: data}
}

// IsImage reports whether the part carries binary image data.
func (p Part) IsImage() bool { return len(p.Data) > 0 }

// Credential is an opaque secret plus the name it is known by in logs and
// rotation state. The secret never leaves the provider client.
type Credential struct {
	Name   string
	Secret string
}

func (c Credential) String() string { return c.Name }

// Target is a (credential, model) pair a single attempt runs against.
type Target struct {
	Credential Credential
	Model      string
}

func (t Target) String() string { return t.Credential.Name + "/" + t.Model }

// Options are the sampling parameters shared by every provider.
type Options struct {
	MaxTokens   int32
	Temperature float32
	TopP        float32
}

// WithDefaults fills zero values with conservative defaults that favour
// deterministic, structured output.
func (o Options) WithDefaults() Options {
	if o.MaxTokens == 0 {
		o.MaxTokens = defaultMaxTokens
	}
	if o.Temperature == 0 {
		o.Temperature = defaultTemperature
	}
	if o.TopP == 0 {
		o.TopP = defaultTopP
	}
	return o
}

// Generator produces a text answer for a multimodal prompt.
type Generator interface {
	Generate(ctx context.Context, target Target, parts []Part) (string, error)
}

// EmbedMode selects between the asymmetric document and query embeddings.
type EmbedMode int

const (
	EmbedDocument EmbedMode = iota
	EmbedQuery
)

func (m EmbedMode) String() string {
	if m == EmbedQuery {
		return "query"
	}
	return "document"
}

// Embedder turns text into a dense vector. Query and document vectors for
// the same model live in the same space.
type Embedder interface {
	Embed(ctx context.Context, cred Credential, text string, mode EmbedMode) ([]float64, error)
}

// IsQuotaMessage reports whether an error text describes throttling or an
// exhausted quota.
func IsQuotaMessage(msg string) bool {
	msg = strings.ToLower(msg)
	for _, marker := range []string{"429", "quota", "rate limit", "limit exceeded", "resource_exhausted", "resource exhausted", "too many requests", "throttl"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// RateLimited wraps err so that errors.Is(err, fuelagent.ErrRateLimited) holds.
func RateLimited(provider string, err error) error {
	if err == nil || errors.Is(err, fuelagent.ErrRateLimited) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", provider, fuelagent.ErrRateLimited, err)
}

// StatusError converts a non-2xx HTTP answer into an error, classifying
// throttling responses as rate limited.
func StatusError(provider string, status int, body []byte) error {
	err := fmt.Errorf("%s: %d %s: %s", provider, status, http.StatusText(status), strings.TrimSpace(string(body)))
	if status == http.StatusTooManyRequests || IsQuotaMessage(string(body)) {
		return RateLimited(provider, err)
	}
	return err
}

// Classify marks transport or SDK errors whose text reads like a quota
// failure as rate limited and returns everything else unchanged.
func Classify(provider string, err error) error {
	if err == nil {
		return nil
	}
	if IsQuotaMessage(err.Error()) {
		return RateLimited(provider, err)
	}
	return err
}
