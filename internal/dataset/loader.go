package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadCatalog builds a catalog from *.yaml files in dir. Each file
// contains exactly one dataset definition at the top level. Datasets
// are loaded once at startup and held in memory, with no hot reload.
func LoadCatalog(dir string) (*Catalog, error) {
	catalog := NewCatalog()

	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return catalog, nil // no catalog directory: valid, zero datasets configured
	}
	if err != nil {
		return nil, fmt.Errorf("dataset catalog dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("dataset catalog path %q is not a directory", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading dataset catalog dir: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || (!strings.HasSuffix(e.Name(), ".yaml") && !strings.HasSuffix(e.Name(), ".yml")) {
			continue
		}

		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading dataset file %s: %w", path, err)
		}

		var ds Dataset
		if err := yaml.Unmarshal(data, &ds); err != nil {
			return nil, fmt.Errorf("parsing dataset file %s: %w", path, err)
		}
		if err := validateDataset(&ds, path); err != nil {
			return nil, err
		}
		if err := catalog.Add(&ds); err != nil {
			return nil, fmt.Errorf("adding dataset from %s: %w", path, err)
		}
	}

	// Joins may reference datasets loaded later in the directory scan,
	// so referential checks run after the full pass.
	for _, id := range catalog.IDs() {
		ds, err := catalog.Get(id)
		if err != nil {
			return nil, err
		}
		for _, join := range ds.Joins {
			if !catalog.Has(join) {
				return nil, fmt.Errorf("dataset %q declares join to unknown dataset %q", id, join)
			}
		}
	}

	return catalog, nil
}

func validateDataset(ds *Dataset, path string) error {
	if ds.ID == "" {
		return fmt.Errorf("dataset file %s: id is required", path)
	}
	if len(ds.Columns) == 0 {
		return fmt.Errorf("dataset file %s: at least one column is required", path)
	}
	for _, col := range ds.Columns {
		if col.Name == "" {
			return fmt.Errorf("dataset file %s: column name is required", path)
		}
		switch col.Type {
		case "number", "string", "time":
		default:
			return fmt.Errorf("dataset file %s: column %q has invalid type %q (must be number, string, or time)", path, col.Name, col.Type)
		}
	}
	return nil
}
