package hpb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fuelagent"
	"fuelagent/reference"

	"github.com/redis/go-redis/v9"
)

// CatalogLookup answers from the reference catalog itself, for deployments
// whose dataset already carries enriched nutrients.
type CatalogLookup struct {
	catalog reference.Catalog
}

func NewCatalogLookup(catalog reference.Catalog) *CatalogLookup {
	return &CatalogLookup{catalog: catalog}
}

func (l *CatalogLookup) FetchDetails(ctx context.Context, id string) (Details, error) {
	e, ok, err := l.catalog.Entry(ctx, id)
	if err != nil {
		return Details{}, fmt.Errorf("%w: %s: %v", fuelagent.ErrExternalLookup, id, err)
	}
	if !ok {
		return Details{}, fmt.Errorf("%w: %s: not in catalog", fuelagent.ErrExternalLookup, id)
	}

	unit := e.DefaultUnit
	if unit == "" {
		unit = "unit"
	}
	return Details{Nutrients: e.Nutrients, Unit: unit, WeightGrams: e.DefaultWeightGrams}, nil
}

// CachedLookup keeps successful lookups in Redis. Cache errors are logged
// and never fail the lookup.
type CachedLookup struct {
	next  Lookup
	redis redis.Cmdable
	ttl   time.Duration
}

func NewCachedLookup(next Lookup, rdb redis.Cmdable, ttl time.Duration) *CachedLookup {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedLookup{next: next, redis: rdb, ttl: ttl}
}

func cacheKey(id string) string {
	return fmt.Sprintf("hpb:details:%s", id)
}

func (l *CachedLookup) FetchDetails(ctx context.Context, id string) (Details, error) {
	key := cacheKey(id)

	data, err := l.redis.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var d Details
		if err := json.Unmarshal(data, &d); err == nil {
			return d, nil
		}
		slog.Warn("HPB: Discarding undecodable cache entry", "key", key)
	case !errors.Is(err, redis.Nil):
		slog.Warn("HPB: Cache read failed", "key", key, "error", err)
	}

	d, err := l.next.FetchDetails(ctx, id)
	if err != nil {
		return Details{}, err
	}

	if data, err := json.Marshal(d); err == nil {
		if err := l.redis.Set(ctx, key, data, l.ttl).Err(); err != nil {
			slog.Warn("HPB: Cache write failed", "key", key, "error", err)
		}
	}
	return d, nil
}
