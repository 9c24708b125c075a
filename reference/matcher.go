package reference

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"fuelagent"
	"fuelagent/llm"
)

const DefaultTopK = 10

// Matcher ranks reference entries for a short text query.
type Matcher interface {
	Match(ctx context.Context, query string, k int) ([]fuelagent.Candidate, error)
}

// Mode selects the retrieval strategy.
type Mode string

const (
	ModeVector  Mode = "vector"
	ModeLexical Mode = "lexical"
)

// ParseMode accepts "vector" or "lexical" (case-insensitive).
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeVector:
		return ModeVector, nil
	case ModeLexical:
		return ModeLexical, nil
	}
	return "", fmt.Errorf("unknown reference mode %q", s)
}

// rank sorts candidates by descending score, keeping input order on ties,
// and truncates to k.
func rank(cands []fuelagent.Candidate, k int) []fuelagent.Candidate {
	if k <= 0 {
		k = DefaultTopK
	}
	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].Score > cands[j].Score
	})
	if len(cands) > k {
		cands = cands[:k]
	}
	return cands
}

// VectorMatcher embeds the query and scores it against every precomputed
// document embedding.
type VectorMatcher struct {
	catalog    Catalog
	embeddings EmbeddingSource
	embedder   llm.Embedder
	credential llm.Credential
}

func NewVectorMatcher(catalog Catalog, embeddings EmbeddingSource, embedder llm.Embedder, cred llm.Credential) *VectorMatcher {
	return &VectorMatcher{
		catalog:    catalog,
		embeddings: embeddings,
		embedder:   embedder,
		credential: cred,
	}
}

func (m *VectorMatcher) Match(ctx context.Context, query string, k int) ([]fuelagent.Candidate, error) {
	entries, err := m.catalog.ListEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list reference entries: %w", err)
	}
	if len(entries) == 0 {
		return []fuelagent.Candidate{}, nil
	}

	vectors, err := m.embeddings.Embeddings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load reference embeddings: %w", err)
	}

	q, err := m.embedder.Embed(ctx, m.credential, query, llm.EmbedQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query %q: %w", query, err)
	}

	cands := make([]fuelagent.Candidate, 0, len(entries))
	skipped := 0
	for _, e := range entries {
		v, ok := vectors[e.ID]
		if !ok {
			skipped++
			continue
		}
		cands = append(cands, fuelagent.Candidate{Entry: e, Score: Cosine(q, v)})
	}
	if skipped > 0 {
		slog.Debug("MATCHER: Entries without embeddings skipped", "query", query, "skipped", skipped)
	}

	return rank(cands, k), nil
}

// LexicalMatcher scores the query against every reference name.
type LexicalMatcher struct {
	catalog Catalog
}

func NewLexicalMatcher(catalog Catalog) *LexicalMatcher {
	return &LexicalMatcher{catalog: catalog}
}

func (m *LexicalMatcher) Match(ctx context.Context, query string, k int) ([]fuelagent.Candidate, error) {
	entries, err := m.catalog.ListEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list reference entries: %w", err)
	}

	cands := make([]fuelagent.Candidate, 0, len(entries))
	for _, e := range entries {
		cands = append(cands, fuelagent.Candidate{Entry: e, Score: LexicalScore(query, e.Name)})
	}
	return rank(cands, k), nil
}

// MatcherFactory builds the matcher for one (credential, model) attempt.
// Vector matching needs the attempt's credential to embed queries.
type MatcherFactory func(cred llm.Credential) Matcher

// NewMatcherFactory returns a factory for mode over catalog. embeddings and
// embedder are only used in vector mode.
func NewMatcherFactory(mode Mode, catalog Catalog, embeddings EmbeddingSource, embedder llm.Embedder) (MatcherFactory, error) {
	switch mode {
	case ModeLexical:
		lm := NewLexicalMatcher(catalog)
		return func(llm.Credential) Matcher { return lm }, nil
	case ModeVector:
		if embeddings == nil || embedder == nil {
			return nil, fmt.Errorf("vector mode needs embeddings and an embedder")
		}
		return func(cred llm.Credential) Matcher {
			return NewVectorMatcher(catalog, embeddings, embedder, cred)
		}, nil
	}
	return nil, fmt.Errorf("unknown reference mode %q", mode)
}
