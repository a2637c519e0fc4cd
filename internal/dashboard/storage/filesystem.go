package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lumen-lab/project-lumen/internal/dashboard"
)

// FileSystemRepository stores dashboard definitions as YAML files:
// root/{dashboard_id}.yaml.
type FileSystemRepository struct {
	rootDir string
}

// NewFileSystemRepository creates a file-system backed repository.
func NewFileSystemRepository(rootDir string) *FileSystemRepository {
	return &FileSystemRepository{rootDir: rootDir}
}

func (r *FileSystemRepository) path(id string) string {
	return filepath.Join(r.rootDir, id+".yaml")
}

func (r *FileSystemRepository) Load(ctx context.Context, id string) (*dashboard.Dashboard, error) {
	data, err := os.ReadFile(r.path(id))
	if os.IsNotExist(err) {
		return nil, dashboard.ErrDashboardNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading dashboard %s: %w", id, err)
	}

	var d dashboard.Dashboard
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parsing dashboard %s: %w", id, err)
	}
	if d.ID == "" {
		d.ID = id
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dashboard %s: %w", id, err)
	}
	return &d, nil
}

func (r *FileSystemRepository) Save(ctx context.Context, d *dashboard.Dashboard) error {
	if err := d.Validate(); err != nil {
		return err
	}

	data, err := yaml.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshalling dashboard %s: %w", d.ID, err)
	}

	if err := os.MkdirAll(r.rootDir, 0o755); err != nil {
		return fmt.Errorf("creating dashboard dir: %w", err)
	}

	// Write-then-rename so a crash mid-save never leaves a truncated
	// definition behind.
	tmp := r.path(d.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing dashboard %s: %w", d.ID, err)
	}
	if err := os.Rename(tmp, r.path(d.ID)); err != nil {
		return fmt.Errorf("committing dashboard %s: %w", d.ID, err)
	}
	return nil
}

func (r *FileSystemRepository) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(r.rootDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading dashboard dir: %w", err)
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(ids)
	return ids, nil
}
