package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/lumen-lab/project-lumen/internal/dashboard"
)

// DashboardsAdapter implements the dashboard storage.Repository over
// the dashboards table. The definition is stored as one jsonb document
// per dashboard; partial updates do not exist at this layer.
type DashboardsAdapter struct {
	db *sql.DB
}

// NewDashboardsAdapter creates a repository over a shared pool.
func NewDashboardsAdapter(db *sql.DB) *DashboardsAdapter {
	return &DashboardsAdapter{db: db}
}

// Load fetches and validates a dashboard definition.
func (a *DashboardsAdapter) Load(ctx context.Context, id string) (*dashboard.Dashboard, error) {
	var doc []byte
	err := a.db.QueryRowContext(ctx, queryLoadDashboard, id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("dashboard %s: %w", id, dashboard.ErrDashboardNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load dashboard %s: %w", id, err)
	}

	var d dashboard.Dashboard
	if err := json.Unmarshal(doc, &d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dashboard %s: %w", id, err)
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("stored dashboard %s is invalid: %w", id, err)
	}
	return &d, nil
}

// Save validates and upserts the definition.
func (a *DashboardsAdapter) Save(ctx context.Context, d *dashboard.Dashboard) error {
	if err := d.Validate(); err != nil {
		return err
	}

	doc, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal dashboard %s: %w", d.ID, err)
	}

	if _, err := a.db.ExecContext(ctx, queryUpsertDashboard, d.ID, d.Name, doc); err != nil {
		return fmt.Errorf("failed to save dashboard %s: %w", d.ID, err)
	}

	slog.Debug("[Postgres] Saved dashboard", "dashboard_id", d.ID, "components", len(d.Components))
	return nil
}

// List returns all dashboard IDs in ascending order.
func (a *DashboardsAdapter) List(ctx context.Context) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, queryListDashboards)
	if err != nil {
		return nil, fmt.Errorf("failed to list dashboards: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan dashboard id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dashboards: %w", err)
	}
	return ids, nil
}
