package estimate

import (
	"context"
	"fmt"
	"log/slog"

	"fuelagent"
	"fuelagent/reference"

	"golang.org/x/sync/errgroup"
)

const maxConcurrentQueries = 4

// retrieve runs one matcher query per item concurrently. Result i holds the
// candidates for items[i]. Any failed query fails the stage.
func retrieve(ctx context.Context, m reference.Matcher, items []fuelagent.IdentifiedItem, k int) ([][]fuelagent.Candidate, error) {
	out := make([][]fuelagent.Candidate, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentQueries)
	for i, item := range items {
		g.Go(func() error {
			cands, err := m.Match(gctx, item.Name, k)
			if err != nil {
				return fmt.Errorf("failed to match %q: %w", item.Name, err)
			}
			out[i] = cands
			slog.Debug("MATCHER: Retrieved candidates", "item", item.Name, "count", len(cands))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, &fuelagent.StageError{Stage: fuelagent.StageMatch, Err: err}
	}
	return out, nil
}
