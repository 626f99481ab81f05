package cpm

import (
	"errors"
	"testing"
	"time"

	"github.com/planwise/schedcore/internal/model"
)

func task(id string, days int) model.Task {
	return model.Task{
		ID:           id,
		StartDate:    model.Day(2024, time.March, 1),
		EndDate:      model.AddDays(model.Day(2024, time.March, 1), days-1),
		DurationDays: days,
	}
}

func fs(id, pred, succ string) model.Dependency {
	return model.Dependency{ID: id, PredecessorID: pred, SuccessorID: succ, Kind: model.LinkFinishToStart}
}

func TestClassify_LinearChain(t *testing.T) {
	tasks := []model.Task{task("a", 2), task("b", 3), task("c", 1)}
	deps := []model.Dependency{fs("d1", "a", "b"), fs("d2", "b", "c")}

	result, err := Classify(tasks, deps)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	for _, id := range []string{"a", "b", "c"} {
		if !result.CriticalTaskIDs[id] {
			t.Errorf("task %s should be critical", id)
		}
		if result.Slack[id] != 0 {
			t.Errorf("task %s slack = %d, want 0", id, result.Slack[id])
		}
	}
	for _, id := range []string{"d1", "d2"} {
		if !result.CriticalDependencyIDs[id] {
			t.Errorf("dependency %s should be critical", id)
		}
	}
	if result.TotalDays != 6 {
		t.Errorf("total = %d days, want 6", result.TotalDays)
	}
}

func TestClassify_ParallelSlackPathLeavesChainUnchanged(t *testing.T) {
	tasks := []model.Task{task("a", 2), task("b", 3), task("c", 1), task("slack", 1)}
	deps := []model.Dependency{
		fs("d1", "a", "b"),
		fs("d2", "b", "c"),
		fs("d3", "a", "slack"),
	}

	result, err := Classify(tasks, deps)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	for _, id := range []string{"a", "b", "c"} {
		if !result.CriticalTaskIDs[id] {
			t.Errorf("task %s should stay critical", id)
		}
	}
	if result.CriticalTaskIDs["slack"] {
		t.Error("slack task should not be critical")
	}
	if result.Slack["slack"] != 3 {
		t.Errorf("slack task float = %d, want 3", result.Slack["slack"])
	}
	if result.CriticalDependencyIDs["d3"] {
		t.Error("link into the slack path should not be critical")
	}
	if !result.CriticalDependencyIDs["d1"] || !result.CriticalDependencyIDs["d2"] {
		t.Error("chain links should stay critical")
	}
}

func TestClassify_LagExtendsPath(t *testing.T) {
	tasks := []model.Task{task("a", 2), task("b", 2)}
	deps := []model.Dependency{
		{ID: "d1", PredecessorID: "a", SuccessorID: "b", Kind: model.LinkFinishToStart, LagDays: 3},
	}

	result, err := Classify(tasks, deps)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if result.TotalDays != 7 {
		t.Errorf("total = %d days, want 7 (2 + 3 lag + 2)", result.TotalDays)
	}
	if !result.CriticalDependencyIDs["d1"] {
		t.Error("lagged link on the longest path should be critical")
	}
}

func TestClassify_StartToStart(t *testing.T) {
	// a (5d) and b (2d) start together; only a is on the long pole.
	tasks := []model.Task{task("a", 5), task("b", 2)}
	deps := []model.Dependency{
		{ID: "d1", PredecessorID: "a", SuccessorID: "b", Kind: model.LinkStartToStart},
	}

	result, err := Classify(tasks, deps)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if !result.CriticalTaskIDs["a"] {
		t.Error("a should be critical")
	}
	if result.CriticalTaskIDs["b"] {
		t.Error("b has float and should not be critical")
	}
	if result.Slack["b"] != 3 {
		t.Errorf("b float = %d, want 3", result.Slack["b"])
	}
}

func TestClassify_CycleReturnsError(t *testing.T) {
	tasks := []model.Task{task("a", 1), task("b", 1)}
	deps := []model.Dependency{fs("d1", "a", "b"), fs("d2", "b", "a")}

	result, err := Classify(tasks, deps)
	if !errors.Is(err, ErrCycle) {
		t.Errorf("expected ErrCycle, got %v", err)
	}
	if result != nil {
		t.Error("cycle must not yield a partial result")
	}
}

func TestClassify_DurationDefaultsToOneDay(t *testing.T) {
	tasks := []model.Task{{ID: "a"}, {ID: "b"}}
	deps := []model.Dependency{fs("d1", "a", "b")}

	result, err := Classify(tasks, deps)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if result.TotalDays != 2 {
		t.Errorf("total = %d days, want 2", result.TotalDays)
	}
}
