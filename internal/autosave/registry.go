package autosave

import "sync"

// TableSpec describes how one table's records are validated, transformed,
// and projected before they reach the persistence boundary.
type TableSpec interface {
	Table() string
	PrimaryKey() string
	// Fields lists the columns allowed in an update; anything else in
	// the payload is dropped at flush time.
	Fields() []string
	// Validate returns human-readable problems; any entry aborts the
	// record's write for this batch.
	Validate(payload map[string]any) []string
	// Transform normalizes the payload after validation and before
	// projection.
	Transform(payload map[string]any) map[string]any
}

// Registry is a typed mapping from table name to spec.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]TableSpec
}

func NewRegistry(specs ...TableSpec) *Registry {
	r := &Registry{specs: make(map[string]TableSpec)}
	for _, s := range specs {
		r.Register(s)
	}
	return r
}

// DefaultRegistry carries the two tables the editor writes.
func DefaultRegistry() *Registry {
	return NewRegistry(ScheduleTable{}, ConstraintTable{})
}

func (r *Registry) Register(spec TableSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.specs[spec.Table()] = spec
}

func (r *Registry) Get(table string) (TableSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.specs[table]
	return spec, ok
}
