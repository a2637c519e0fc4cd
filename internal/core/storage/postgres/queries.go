package postgres

// SQL for dataset resolution, tag lookup, and dashboard persistence.

const (
	// queryResolveBase is the prefix of every pushdown query; predicate
	// clauses and the ORDER BY are appended by buildResolveQuery.
	queryResolveBase = `SELECT row FROM dataset_rows WHERE dataset_id = $1`

	queryDatasetExists = `
		SELECT EXISTS (
			SELECT FROM dataset_rows WHERE dataset_id = $1
		)
	`

	// queryLookupTag resolves one entity to its display tag.
	queryLookupTag = `
		SELECT display_name FROM entity_tags
		WHERE entity_id = $1
	`

	// queryLookupTags is the batched variant used by bulk cache
	// priming: one round trip for any number of entities.
	queryLookupTags = `
		SELECT entity_id, display_name FROM entity_tags
		WHERE entity_id = ANY($1)
	`

	// queryUpsertDashboard replaces the stored definition wholesale;
	// the definition document is the unit of persistence.
	queryUpsertDashboard = `
		INSERT INTO dashboards (id, name, definition, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE SET
			name       = EXCLUDED.name,
			definition = EXCLUDED.definition,
			updated_at = EXCLUDED.updated_at
	`

	queryLoadDashboard = `
		SELECT definition FROM dashboards
		WHERE id = $1
	`

	queryListDashboards = `
		SELECT id FROM dashboards
		ORDER BY id ASC
	`
)
