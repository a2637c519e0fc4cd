package resolve

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"
)

// MemoryResolver is an in-memory implementation of Resolver. Useful
// for testing and for running without a database
// (database.enabled=false).
type MemoryResolver struct {
	mu       sync.RWMutex
	datasets map[string][]Row
	failures map[string]error

	// resolveCalls counts Resolve invocations; tests assert on it to
	// prove suppression and cache hits skip the data layer.
	resolveCalls atomic.Int64
}

// NewMemoryResolver creates an empty in-memory resolver.
func NewMemoryResolver() *MemoryResolver {
	return &MemoryResolver{
		datasets: make(map[string][]Row),
		failures: make(map[string]error),
	}
}

// FailDataset makes every Resolve of the dataset return the given
// error. Pass nil to clear.
func (r *MemoryResolver) FailDataset(datasetID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err == nil {
		delete(r.failures, datasetID)
		return
	}
	r.failures[datasetID] = err
}

// SetRows replaces the rows of a dataset.
func (r *MemoryResolver) SetRows(datasetID string, rows []Row) {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := make([]Row, len(rows))
	for i, row := range rows {
		c := make(Row, len(row))
		for k, v := range row {
			c[k] = v
		}
		copied[i] = c
	}
	r.datasets[datasetID] = copied
}

// ResolveCalls returns how many times Resolve has been invoked.
func (r *MemoryResolver) ResolveCalls() int64 {
	return r.resolveCalls.Load()
}

func (r *MemoryResolver) Resolve(ctx context.Context, datasetID string, predicates []Predicate) (*Table, error) {
	r.resolveCalls.Add(1)

	if err := ctx.Err(); err != nil {
		return nil, &RemoteError{DatasetID: datasetID, Err: err}
	}

	r.mu.RLock()
	failure := r.failures[datasetID]
	rows, ok := r.datasets[datasetID]
	r.mu.RUnlock()
	if failure != nil {
		return nil, &RemoteError{DatasetID: datasetID, Err: failure}
	}
	if !ok {
		return nil, ErrDatasetNotFound
	}

	var matched []Row
	columns := map[string]bool{}
	for _, row := range rows {
		if matchesAll(row, predicates) {
			matched = append(matched, row)
			for col := range row {
				columns[col] = true
			}
		}
	}

	table := &Table{Rows: matched}
	for col := range columns {
		table.Columns = append(table.Columns, col)
	}
	return table, nil
}

func matchesAll(row Row, predicates []Predicate) bool {
	for _, p := range predicates {
		if !matches(row, p) {
			return false
		}
	}
	return true
}

func matches(row Row, p Predicate) bool {
	v, ok := row[p.Column]
	if !ok {
		return false
	}

	switch p.Op {
	case OpBetween:
		d := extractDecimal(row, p.Column)
		return d.GreaterThanOrEqual(p.Min) && d.LessThanOrEqual(p.Max)
	case OpIn:
		s := stringify(v)
		for _, candidate := range p.Values {
			if s == candidate {
				return true
			}
		}
		return false
	case OpEq:
		return stringify(v) == p.Value
	}
	return false
}

func stringify(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return decimal.NewFromFloat(val).String()
	case int:
		return decimal.NewFromInt(int64(val)).String()
	case int64:
		return decimal.NewFromInt(val).String()
	default:
		return ""
	}
}

// MemoryTagStore is an in-memory TagLookup. BatchCalls lets tests
// assert that bulk priming issues exactly one batched lookup.
type MemoryTagStore struct {
	mu   sync.RWMutex
	tags map[string]string

	singleCalls atomic.Int64
	batchCalls  atomic.Int64
}

// NewMemoryTagStore creates a tag store with the given entries.
func NewMemoryTagStore(tags map[string]string) *MemoryTagStore {
	copied := make(map[string]string, len(tags))
	for k, v := range tags {
		copied[k] = v
	}
	return &MemoryTagStore{tags: copied}
}

// SetTag inserts or replaces a tag.
func (s *MemoryTagStore) SetTag(entityID, displayName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tags[entityID] = displayName
}

// SingleCalls returns how many LookupTag calls have been made.
func (s *MemoryTagStore) SingleCalls() int64 { return s.singleCalls.Load() }

// BatchCalls returns how many LookupTags calls have been made.
func (s *MemoryTagStore) BatchCalls() int64 { return s.batchCalls.Load() }

func (s *MemoryTagStore) LookupTag(ctx context.Context, entityID string) (string, error) {
	s.singleCalls.Add(1)

	s.mu.RLock()
	defer s.mu.RUnlock()

	name, ok := s.tags[entityID]
	if !ok {
		return "", ErrDatasetNotFound
	}
	return name, nil
}

func (s *MemoryTagStore) LookupTags(ctx context.Context, entityIDs []string) (map[string]string, error) {
	s.batchCalls.Add(1)

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]string, len(entityIDs))
	for _, id := range entityIDs {
		if name, ok := s.tags[id]; ok {
			result[id] = name
		}
	}
	return result, nil
}
