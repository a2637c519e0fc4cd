package engine

import (
	"context"
	"log/slog"
	"sort"
	"time"

	v1 "github.com/lumen-lab/project-lumen/internal/api/v1"
	"github.com/lumen-lab/project-lumen/internal/cache"
	"github.com/lumen-lab/project-lumen/internal/dashboard"
	"github.com/lumen-lab/project-lumen/internal/dataset"
	"github.com/lumen-lab/project-lumen/internal/resolve"
)

const (
	// DefaultResolveTTL bounds how long a resolved (dataset, filters)
	// table is reused without re-querying.
	DefaultResolveTTL = 30 * time.Second

	// DefaultTagTTL bounds dataset display-name reuse. Tags change
	// rarely and are invalidated explicitly on edit.
	DefaultTagTTL = 10 * time.Minute

	// defaultTableLimit caps table rows when the component config
	// doesn't.
	defaultTableLimit = 50

	tagKeyPrefix = "tag:"
)

// PayloadBuilder turns (component, filter snapshot) into render
// payloads. Both tiers go through it: the local tier calls the
// fetch-free paths, the remote tier the resolving ones. One builder for
// both is what makes the local/remote equivalence contract hold by
// construction for the inputs they share.
type PayloadBuilder struct {
	registry *dashboard.Registry
	catalog  *dataset.Catalog
	cache    *cache.Cache
	resolver resolve.Resolver
	tags     resolve.TagLookup

	resolveTTL time.Duration
	tagTTL     time.Duration
}

// NewPayloadBuilder wires a builder over the shared cache and the data
// layer interfaces.
func NewPayloadBuilder(
	registry *dashboard.Registry,
	catalog *dataset.Catalog,
	memo *cache.Cache,
	resolver resolve.Resolver,
	tags resolve.TagLookup,
	resolveTTL time.Duration,
	tagTTL time.Duration,
) *PayloadBuilder {
	if resolveTTL <= 0 {
		resolveTTL = DefaultResolveTTL
	}
	if tagTTL <= 0 {
		tagTTL = DefaultTagTTL
	}
	return &PayloadBuilder{
		registry:   registry,
		catalog:    catalog,
		cache:      memo,
		resolver:   resolver,
		tags:       tags,
		resolveTTL: resolveTTL,
		tagTTL:     tagTTL,
	}
}

// PredicatesFor derives the data-layer predicates a component's fetch
// must apply, from every filter whose dataset can reach the
// component's dataset. A predicate is included only when its column
// exists on the target dataset; resolving joined columns is the data
// layer's concern, not the engine's.
func (b *PayloadBuilder) PredicatesFor(c *dashboard.Component, snap Snapshot) []resolve.Predicate {
	target, err := b.catalog.Get(c.Binding.DatasetID)
	if err != nil {
		return nil
	}

	var predicates []resolve.Predicate
	for _, f := range b.registry.ListByKind(dashboard.KindFilter) {
		entry, ok := snap.Entries[f.ID]
		if !ok {
			continue
		}
		if !target.HasColumn(f.Binding.Column) {
			continue
		}

		reaches := false
		for _, ds := range b.catalog.Reachable(f.Binding.DatasetID) {
			if ds == c.Binding.DatasetID {
				reaches = true
				break
			}
		}
		if !reaches {
			continue
		}

		predicates = append(predicates, resolve.PredicateFromFilter(f.Binding.Column, entry.Value))
	}
	return predicates
}

// BuildFilter builds a filter control's payload purely from the
// snapshot. This is the local tier's path and also what a forced
// remote recomputation of a filter edge runs, since there is nothing
// to fetch for a control.
func (b *PayloadBuilder) BuildFilter(c *dashboard.Component, snap Snapshot) *v1.RenderPayload {
	payload := &v1.RenderPayload{
		ComponentID: c.ID,
		Kind:        c.Kind,
		Title:       c.Title,
		Version:     snap.Version,
		State:       v1.PayloadOK,
	}
	if entry, ok := snap.Entries[c.ID]; ok {
		value := entry.Value
		payload.FilterValue = &value
		payload.IsDefault = entry.IsDefault
	}
	return payload
}

// BuildData resolves and aggregates a data component's payload. This
// is the remote tier: it consults the memoization cache first, so a
// cascade touching many components bound to the same (dataset,
// filters) pair issues one query, not one per component.
func (b *PayloadBuilder) BuildData(ctx context.Context, c *dashboard.Component, snap Snapshot) (*v1.RenderPayload, error) {
	predicates := b.PredicatesFor(c, snap)
	key := resolve.Fingerprint(c.Binding.DatasetID, predicates)

	cached, err := b.cache.GetOrCompute(ctx, key, b.resolveTTL, func(ctx context.Context) (interface{}, error) {
		return b.resolver.Resolve(ctx, c.Binding.DatasetID, predicates)
	})
	if err != nil {
		return nil, &resolve.RemoteError{DatasetID: c.Binding.DatasetID, Err: err}
	}
	table := cached.(*resolve.Table)

	payload := &v1.RenderPayload{
		ComponentID: c.ID,
		Kind:        c.Kind,
		Title:       c.Title,
		Version:     snap.Version,
		Tag:         b.tagFor(ctx, c.Binding.DatasetID),
		State:       v1.PayloadOK,
	}

	switch c.Kind {
	case dashboard.KindCard:
		value, err := resolve.Aggregate(table, c.Config.Aggregate, c.Binding.Column)
		if err != nil {
			return nil, err
		}
		payload.Value = value.String()

	case dashboard.KindFigure:
		groups, err := resolve.GroupBy(table, c.Binding.Column, c.Config.Aggregate, c.Config.Field)
		if err != nil {
			return nil, err
		}
		payload.Series = make(map[string]string, len(groups))
		for group, value := range groups {
			payload.Series[group] = value.String()
		}

	case dashboard.KindTable:
		columns := c.Config.Columns
		if len(columns) == 0 {
			columns = append([]string(nil), table.Columns...)
			sort.Strings(columns)
		}
		limit := c.Config.Limit
		if limit <= 0 {
			limit = defaultTableLimit
		}
		rows := table.Rows
		if len(rows) > limit {
			rows = rows[:limit]
		}
		payload.Columns = columns
		payload.Rows = rows
	}

	return payload, nil
}

// BuildMetadataLocal re-dresses the last held payload with the
// component's current display metadata. No fetch: the rows are
// untouched by a metadata edit, so the held payload body, including a
// stale marker and warning left by a failed refresh, carries forward
// unchanged.
func (b *PayloadBuilder) BuildMetadataLocal(c *dashboard.Component, last *v1.RenderPayload, snap Snapshot) *v1.RenderPayload {
	payload := last.Clone()
	payload.Title = c.Title
	payload.Version = snap.Version
	return payload
}

// TagKey returns the cache key of a dataset's display tag.
func TagKey(datasetID string) string {
	return tagKeyPrefix + datasetID
}

// tagFor resolves a dataset's display name through the cache. Lookup
// failure is cosmetic: fall back to the raw dataset ID rather than
// failing the component.
func (b *PayloadBuilder) tagFor(ctx context.Context, datasetID string) string {
	value, err := b.cache.GetOrCompute(ctx, TagKey(datasetID), b.tagTTL, func(ctx context.Context) (interface{}, error) {
		return b.tags.LookupTag(ctx, datasetID)
	})
	if err != nil {
		slog.Warn("[Payload] Tag lookup failed, using dataset id", "dataset_id", datasetID, "error", err)
		return datasetID
	}
	return value.(string)
}

// PrimeTags bulk-populates the tag cache for the given datasets with at
// most one batched lookup. Called by the scheduler before remote
// fan-out so a cascade touching N components does not issue N tag
// lookups.
func (b *PayloadBuilder) PrimeTags(ctx context.Context, datasetIDs []string) {
	if len(datasetIDs) == 0 {
		return
	}

	keys := make([]string, 0, len(datasetIDs))
	for _, id := range datasetIDs {
		keys = append(keys, TagKey(id))
	}

	_, err := b.cache.PrimeMany(ctx, keys, b.tagTTL, func(ctx context.Context, missing []string) (map[string]interface{}, error) {
		ids := make([]string, 0, len(missing))
		for _, key := range missing {
			ids = append(ids, key[len(tagKeyPrefix):])
		}
		tags, err := b.tags.LookupTags(ctx, ids)
		if err != nil {
			return nil, err
		}
		out := make(map[string]interface{}, len(tags))
		for id, name := range tags {
			out[TagKey(id)] = name
		}
		return out, nil
	})
	if err != nil {
		// Priming is an optimization; per-component lookups will retry.
		slog.Warn("[Payload] Bulk tag priming failed", "error", err)
	}
}

// InvalidateTag drops a dataset's cached display tag. Called when the
// underlying entity is edited.
func (b *PayloadBuilder) InvalidateTag(datasetID string) {
	b.cache.Invalidate(TagKey(datasetID))
}
