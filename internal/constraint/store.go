package constraint

import (
	"sync"

	"github.com/planwise/schedcore/internal/model"
)

// Store holds the session's constraints in memory, keyed by task id. At
// most one constraint exists per task; an upsert replaces the old one.
type Store struct {
	mu     sync.RWMutex
	byTask map[string]model.Constraint
}

func NewStore() *Store {
	return &Store{byTask: make(map[string]model.Constraint)}
}

// Get returns the constraint for a task, if any.
func (s *Store) Get(taskID string) (model.Constraint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byTask[taskID]
	return c, ok
}

// Put upserts the constraint under its task id.
func (s *Store) Put(c model.Constraint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byTask[c.TaskID] = c
}

// Delete removes a task's constraint. Deleting an absent constraint is a
// no-op.
func (s *Store) Delete(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byTask, taskID)
}

// All returns a copy of every constraint in the store.
func (s *Store) All() []model.Constraint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Constraint, 0, len(s.byTask))
	for _, c := range s.byTask {
		out = append(out, c)
	}
	return out
}

// CountOther returns the number of constrained tasks excluding the given
// one. Re-saving a task's own constraint must never count against the
// demo cap, so cap checks always exclude the task under edit.
func (s *Store) CountOther(taskID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for id := range s.byTask {
		if id != taskID {
			n++
		}
	}
	return n
}
