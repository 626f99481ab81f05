package store

import (
	"context"
	"sync"
)

// Memory is an in-memory Store. It is the default boundary in tests and
// for sessions that have not been wired to a remote store.
type Memory struct {
	mu     sync.RWMutex
	tables map[string]map[string]map[string]any

	// updateHook, when set, runs before each update and can veto it.
	// Tests use it to simulate persistence failures.
	updateHook func(table, key string) error
}

func NewMemory() *Memory {
	return &Memory{
		tables: make(map[string]map[string]map[string]any),
	}
}

// SetUpdateHook installs a failure hook for tests.
func (m *Memory) SetUpdateHook(fn func(table, key string) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateHook = fn
}

func (m *Memory) Update(ctx context.Context, table, key string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.updateHook != nil {
		if err := m.updateHook(table, key); err != nil {
			return err
		}
	}

	records, ok := m.tables[table]
	if !ok {
		records = make(map[string]map[string]any)
		m.tables[table] = records
	}
	record, ok := records[key]
	if !ok {
		record = make(map[string]any)
		records[key] = record
	}
	for k, v := range fields {
		record[k] = v
	}
	return nil
}

func (m *Memory) Get(ctx context.Context, table, key string) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.tables[table][key]
	if !ok {
		return nil, ErrNotFound
	}
	return copyFields(record), nil
}

func (m *Memory) Query(ctx context.Context, table, field string, value any) ([]map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []map[string]any
	for _, record := range m.tables[table] {
		if record[field] == value {
			out = append(out, copyFields(record))
		}
	}
	return out, nil
}

var _ Store = (*Memory)(nil)
