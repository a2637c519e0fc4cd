package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lib/pq"

	"github.com/lumen-lab/project-lumen/internal/resolve"
)

// ResolverAdapter implements resolve.Resolver over the dataset_rows
// table. Each row is one jsonb document; predicates are pushed down as
// jsonb expressions so filtering happens in the database, not in the
// engine.
type ResolverAdapter struct {
	db *sql.DB
}

// NewResolverAdapter creates a resolver over a shared pool.
func NewResolverAdapter(db *sql.DB) *ResolverAdapter {
	return &ResolverAdapter{db: db}
}

// Resolve fetches the filtered rows of a dataset. Rows come back in
// insertion order (row_seq) so repeated resolutions of the same
// snapshot are stable.
func (r *ResolverAdapter) Resolve(ctx context.Context, datasetID string, predicates []resolve.Predicate) (*resolve.Table, error) {
	query, args := buildResolveQuery(datasetID, predicates)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &resolve.RemoteError{DatasetID: datasetID, Err: fmt.Errorf("failed to query dataset rows: %w", err)}
	}
	defer rows.Close()

	table := &resolve.Table{}
	columns := map[string]bool{}
	found := false
	for rows.Next() {
		found = true
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, &resolve.RemoteError{DatasetID: datasetID, Err: fmt.Errorf("failed to scan dataset row: %w", err)}
		}

		var row resolve.Row
		if err := json.Unmarshal(doc, &row); err != nil {
			return nil, &resolve.RemoteError{DatasetID: datasetID, Err: fmt.Errorf("failed to unmarshal dataset row: %w", err)}
		}
		table.Rows = append(table.Rows, row)
		for col := range row {
			columns[col] = true
		}
	}
	if err := rows.Err(); err != nil {
		return nil, &resolve.RemoteError{DatasetID: datasetID, Err: fmt.Errorf("error iterating dataset rows: %w", err)}
	}

	if !found {
		// Distinguish "no matching rows" from "no such dataset".
		exists, err := r.datasetExists(ctx, datasetID)
		if err != nil {
			return nil, &resolve.RemoteError{DatasetID: datasetID, Err: err}
		}
		if !exists {
			return nil, resolve.ErrDatasetNotFound
		}
	}

	for col := range columns {
		table.Columns = append(table.Columns, col)
	}

	slog.Debug("[Postgres] Resolved dataset",
		"dataset_id", datasetID,
		"predicates", len(predicates),
		"rows", len(table.Rows))
	return table, nil
}

func (r *ResolverAdapter) datasetExists(ctx context.Context, datasetID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, queryDatasetExists, datasetID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check dataset existence: %w", err)
	}
	return exists, nil
}

// buildResolveQuery renders the pushdown SQL for one (dataset,
// predicates) pair. Placeholders start at $2; $1 is the dataset ID.
// Column names come from the validated catalog, never from request
// input; values always go through placeholders.
func buildResolveQuery(datasetID string, predicates []resolve.Predicate) (string, []interface{}) {
	var sb strings.Builder
	sb.WriteString(queryResolveBase)

	args := []interface{}{datasetID}
	next := 2
	for _, p := range predicates {
		switch p.Op {
		case resolve.OpBetween:
			fmt.Fprintf(&sb, " AND (row->>'%s')::numeric BETWEEN $%d AND $%d", p.Column, next, next+1)
			args = append(args, p.Min.String(), p.Max.String())
			next += 2
		case resolve.OpIn:
			fmt.Fprintf(&sb, " AND row->>'%s' = ANY($%d)", p.Column, next)
			args = append(args, pq.Array(p.Values))
			next++
		case resolve.OpEq:
			fmt.Fprintf(&sb, " AND row->>'%s' = $%d", p.Column, next)
			args = append(args, p.Value)
			next++
		}
	}

	sb.WriteString(" ORDER BY row_seq ASC")
	return sb.String(), args
}
