package store

import (
	"context"
	"errors"
	"os"
	"testing"
)

func TestMemory_UpdateGet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if err := m.Update(ctx, "schedules", "t1", map[string]any{"name": "Excavation", "duration": 5}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	// Partial update merges.
	if err := m.Update(ctx, "schedules", "t1", map[string]any{"duration": 7}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	rec, err := m.Get(ctx, "schedules", "t1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec["name"] != "Excavation" || rec["duration"] != 7 {
		t.Errorf("unexpected record: %v", rec)
	}

	// Mutating the returned copy must not leak into the store.
	rec["name"] = "mutated"
	rec2, _ := m.Get(ctx, "schedules", "t1")
	if rec2["name"] != "Excavation" {
		t.Error("Get returned aliased record")
	}
}

func TestMemory_GetMissing(t *testing.T) {
	m := NewMemory()
	if _, err := m.Get(context.Background(), "schedules", "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemory_Query(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_ = m.Update(ctx, "schedule_constraints", "t1", map[string]any{"project_id": "p1"})
	_ = m.Update(ctx, "schedule_constraints", "t2", map[string]any{"project_id": "p1"})
	_ = m.Update(ctx, "schedule_constraints", "t3", map[string]any{"project_id": "p2"})

	got, err := m.Query(ctx, "schedule_constraints", "project_id", "p1")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 records, got %d", len(got))
	}
}

func TestMemory_UpdateHook(t *testing.T) {
	m := NewMemory()
	boom := errors.New("boom")
	m.SetUpdateHook(func(table, key string) error { return boom })

	if err := m.Update(context.Background(), "schedules", "t1", map[string]any{"a": 1}); !errors.Is(err, boom) {
		t.Errorf("expected hook error, got %v", err)
	}
	if _, err := m.Get(context.Background(), "schedules", "t1"); !errors.Is(err, ErrNotFound) {
		t.Error("failed update must not create the record")
	}
}

func TestYAMLStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewYAMLStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewYAMLStore: %v", err)
	}

	if err := s.Update(ctx, "schedules", "t1", map[string]any{"name": "Framing", "duration": 10}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := s.Update(ctx, "schedules", "t1", map[string]any{"duration": 12}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	rec, err := s.Get(ctx, "schedules", "t1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec["name"] != "Framing" || rec["duration"] != 12 {
		t.Errorf("unexpected record: %v", rec)
	}

	if _, err := s.Get(ctx, "schedules", "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestYAMLStore_BackupOnRewrite(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewYAMLStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	_ = s.Update(ctx, "schedules", "t1", map[string]any{"v": 1})
	_ = s.Update(ctx, "schedules", "t1", map[string]any{"v": 2})

	if _, err := os.Stat(dir + "/schedules.yaml.bak"); err != nil {
		t.Errorf("expected backup file: %v", err)
	}
}

func TestYAMLStore_Query(t *testing.T) {
	ctx := context.Background()
	s, err := NewYAMLStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	_ = s.Update(ctx, "schedule_constraints", "t1", map[string]any{"constraint_type": "start_no_earlier_than"})
	_ = s.Update(ctx, "schedule_constraints", "t2", map[string]any{"constraint_type": "must_start_on"})

	got, err := s.Query(ctx, "schedule_constraints", "constraint_type", "must_start_on")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("expected 1 record, got %d", len(got))
	}
}
