package resolve

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/lumen-lab/project-lumen/internal/dashboard"
)

// Common errors
var (
	// ErrDatasetNotFound is returned when the data layer has no such dataset.
	ErrDatasetNotFound = errors.New("dataset not found in data layer")
)

// RemoteError wraps a data-layer failure. Components receiving one
// report StaleData and keep their previous render.
type RemoteError struct {
	DatasetID string
	Err       error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote fetch for dataset %s failed: %v", e.DatasetID, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// Row is one resolved record, keyed by column name.
type Row map[string]interface{}

// Table is the tabular result of resolving a (dataset, filters) pair.
type Table struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// PredicateOp discriminates how a predicate matches.
type PredicateOp string

const (
	OpBetween PredicateOp = "between"
	OpIn      PredicateOp = "in"
	OpEq      PredicateOp = "eq"
)

// Predicate is one filter condition pushed down to the data layer.
// Predicates are pure data: the same snapshot always derives the same
// predicates, which is what makes (dataset, fingerprint) a valid cache
// key.
type Predicate struct {
	Column string          `json:"column"`
	Op     PredicateOp     `json:"op"`
	Min    decimal.Decimal `json:"min,omitempty"`
	Max    decimal.Decimal `json:"max,omitempty"`
	Values []string        `json:"values,omitempty"`
	Value  string          `json:"value,omitempty"`
}

// PredicateFromFilter converts a filter's runtime value into the
// predicate the data layer understands.
func PredicateFromFilter(column string, v dashboard.FilterValue) Predicate {
	switch v.Kind {
	case dashboard.ValueRange:
		return Predicate{Column: column, Op: OpBetween, Min: v.Min, Max: v.Max}
	case dashboard.ValueMulti:
		// Sorted copy: predicate identity must not depend on the order
		// the user clicked options in.
		values := append([]string(nil), v.Options...)
		sort.Strings(values)
		return Predicate{Column: column, Op: OpIn, Values: values}
	default:
		return Predicate{Column: column, Op: OpEq, Value: v.Scalar}
	}
}

// Fingerprint derives a stable key for a (dataset, predicates) pair.
// Predicates are sorted by column before hashing so logically equal
// filter snapshots always produce the same key.
func Fingerprint(datasetID string, predicates []Predicate) string {
	sorted := append([]Predicate(nil), predicates...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Column < sorted[j].Column })

	payload, err := json.Marshal(struct {
		Dataset    string      `json:"dataset"`
		Predicates []Predicate `json:"predicates"`
	}{datasetID, sorted})
	if err != nil {
		// Marshalling plain data cannot fail in practice; an unkeyable
		// fingerprint just means no cache hit.
		return fmt.Sprintf("resolve:%s:unkeyed", datasetID)
	}

	sum := sha256.Sum256(payload)
	return "resolve:" + datasetID + ":" + hex.EncodeToString(sum[:])
}

// Resolver is the data resolution interface consumed by the remote
// tier. Resolve must be pure given its inputs: same predicates, same
// result, modulo underlying data changes.
type Resolver interface {
	Resolve(ctx context.Context, datasetID string, predicates []Predicate) (*Table, error)
}

// TagLookup is the metadata lookup interface. The batched variant is
// what makes bulk cache priming collapse N lookups into one call.
type TagLookup interface {
	// LookupTag resolves one entity ID to its display name.
	LookupTag(ctx context.Context, entityID string) (string, error)

	// LookupTags resolves many entity IDs in one round trip. Missing
	// IDs are absent from the result rather than errors.
	LookupTags(ctx context.Context, entityIDs []string) (map[string]string, error)
}
