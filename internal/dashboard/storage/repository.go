package storage

import (
	"context"

	"github.com/lumen-lab/project-lumen/internal/dashboard"
)

// Repository is the persistence interface for dashboard definitions.
// Definitions are loaded once per session open and written back only
// on explicit save; the reactive engine never persists filter values.
type Repository interface {
	// Load returns the dashboard definition, or
	// dashboard.ErrDashboardNotFound.
	Load(ctx context.Context, id string) (*dashboard.Dashboard, error)

	// Save writes the definition back, replacing any previous version.
	Save(ctx context.Context, d *dashboard.Dashboard) error

	// List returns all known dashboard IDs in ascending order.
	List(ctx context.Context) ([]string, error)
}
