package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/planwise/schedcore/internal/lock"
)

// YAMLStore persists each table as one YAML file under a data directory.
// It serves embedders that run without a remote store; the file layout is
// a map from record key to field map.
type YAMLStore struct {
	dir   string
	locks *lock.MutexMap
}

func NewYAMLStore(dir string) (*YAMLStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &YAMLStore{
		dir:   dir,
		locks: lock.NewMutexMap(),
	}, nil
}

func (s *YAMLStore) tablePath(table string) string {
	return filepath.Join(s.dir, table+".yaml")
}

func (s *YAMLStore) loadTable(table string) (map[string]map[string]any, error) {
	data, err := os.ReadFile(s.tablePath(table))
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]map[string]any{}, nil
		}
		return nil, fmt.Errorf("read table %s: %w", table, err)
	}
	records := map[string]map[string]any{}
	if len(data) > 0 {
		if err := yamlv3.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("parse table %s: %w", table, err)
		}
	}
	return records, nil
}

func (s *YAMLStore) Update(ctx context.Context, table, key string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.locks.Do(table, func() error {
		records, err := s.loadTable(table)
		if err != nil {
			return err
		}
		record, ok := records[key]
		if !ok {
			record = map[string]any{}
			records[key] = record
		}
		for k, v := range fields {
			record[k] = v
		}
		if err := atomicWriteYAML(s.tablePath(table), records); err != nil {
			return fmt.Errorf("write table %s: %w", table, err)
		}
		return nil
	})
}

func (s *YAMLStore) Get(ctx context.Context, table, key string) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var record map[string]any
	err := s.locks.Do(table, func() error {
		records, err := s.loadTable(table)
		if err != nil {
			return err
		}
		rec, ok := records[key]
		if !ok {
			return ErrNotFound
		}
		record = copyFields(rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *YAMLStore) Query(ctx context.Context, table, field string, value any) ([]map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []map[string]any
	err := s.locks.Do(table, func() error {
		records, err := s.loadTable(table)
		if err != nil {
			return err
		}
		for _, rec := range records {
			if rec[field] == value {
				out = append(out, copyFields(rec))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

var _ Store = (*YAMLStore)(nil)
