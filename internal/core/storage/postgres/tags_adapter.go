package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/lib/pq"
)

// TagsAdapter implements resolve.TagLookup over the entity_tags table.
type TagsAdapter struct {
	db *sql.DB
}

// NewTagsAdapter creates a tag lookup over a shared pool.
func NewTagsAdapter(db *sql.DB) *TagsAdapter {
	return &TagsAdapter{db: db}
}

// LookupTag resolves one entity ID to its display name.
func (t *TagsAdapter) LookupTag(ctx context.Context, entityID string) (string, error) {
	var name string
	err := t.db.QueryRowContext(ctx, queryLookupTag, entityID).Scan(&name)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("no tag for entity %q", entityID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up tag: %w", err)
	}
	return name, nil
}

// LookupTags resolves many entity IDs in one round trip. Missing IDs
// are absent from the result rather than errors.
func (t *TagsAdapter) LookupTags(ctx context.Context, entityIDs []string) (map[string]string, error) {
	if len(entityIDs) == 0 {
		return map[string]string{}, nil
	}

	rows, err := t.db.QueryContext(ctx, queryLookupTags, pq.Array(entityIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to look up tags: %w", err)
	}
	defer rows.Close()

	tags := make(map[string]string, len(entityIDs))
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("failed to scan tag row: %w", err)
		}
		tags[id] = name
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tag rows: %w", err)
	}

	slog.Debug("[Postgres] Looked up tags", "requested", len(entityIDs), "found", len(tags))
	return tags, nil
}
