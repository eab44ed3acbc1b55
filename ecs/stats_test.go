package ecs

import (
	"testing"
	"time"
)

func TestStorageStats(t *testing.T) {
	registry := NewComponentRegistry()
	RegisterComponent[int](registry)
	RegisterComponent[string](registry)
	RegisterComponent[float64](registry)

	storage := NewStorage(registry)

	stats := storage.CollectStats()
	if stats.TotalEntityCount != 0 {
		t.Errorf("expected 0 entities, got %d", stats.TotalEntityCount)
	}
	if stats.ComponentCount != 3 {
		t.Errorf("expected 3 registered components, got %d", stats.ComponentCount)
	}
	if len(stats.ComponentBreakdown) != 0 {
		t.Errorf("expected empty breakdown, got %+v", stats.ComponentBreakdown)
	}

	storage.Spawn(42, "hello")
	storage.Spawn(100, "world")
	storage.Spawn(200.0, "test")
	if err := storage.RegisterRequired("int", "float64", func() any { return 0.5 }); err != nil {
		t.Fatalf("register required: %v", err)
	}

	stats = storage.CollectStats()

	if stats.TotalEntityCount != 3 {
		t.Errorf("expected 3 entities, got %d", stats.TotalEntityCount)
	}
	if stats.RequiredRuleCount != 1 {
		t.Errorf("expected 1 required rule, got %d", stats.RequiredRuleCount)
	}
	if stats.CurrentSeq != 6 {
		t.Errorf("expected sequence 6, got %d", stats.CurrentSeq)
	}
	if len(stats.ComponentBreakdown) != 3 {
		t.Fatalf("expected 3 breakdown entries, got %d", len(stats.ComponentBreakdown))
	}
	if first := stats.ComponentBreakdown[0]; first.Name != "string" || first.EntityCount != 3 {
		t.Errorf("expected string with 3 entities first, got %+v", first)
	}
}

func TestSchedulerStats(t *testing.T) {
	rt := NewRuntime(NewComponentRegistry())

	stats := rt.Stats()
	if stats.SystemCount != 0 {
		t.Errorf("expected 0 systems, got %d", stats.SystemCount)
	}
	if stats.TotalExecutions != 0 {
		t.Errorf("expected 0 total executions, got %d", stats.TotalExecutions)
	}

	counts := map[string]int{}
	sleepy := func(label string, d time.Duration) ProcessFunc {
		return func(*UpdateFrame) error {
			counts[label]++
			time.Sleep(d)
			return nil
		}
	}
	if err := rt.AddSystem("one").SetPriority(2).SetProcess(sleepy("one", time.Millisecond)).Build(); err != nil {
		t.Fatal(err)
	}
	if err := rt.AddSystem("two").SetPriority(1).InPhase("postUpdate").SetProcess(sleepy("two", 2*time.Millisecond)).Build(); err != nil {
		t.Fatal(err)
	}

	stats = rt.Stats()
	if stats.SystemCount != 2 {
		t.Errorf("expected 2 systems, got %d", stats.SystemCount)
	}
	if stats.Systems[0].MinDuration != 0 {
		t.Errorf("expected zero min duration before any run, got %v", stats.Systems[0].MinDuration)
	}

	for i := 0; i < 3; i++ {
		if err := rt.Update(0.016); err != nil {
			t.Fatal(err)
		}
	}

	stats = rt.Stats()
	if stats.TotalExecutions != 6 {
		t.Errorf("expected 6 total executions (2 systems * 3 runs), got %d", stats.TotalExecutions)
	}
	if len(stats.Systems) != 2 {
		t.Fatalf("expected 2 system stats, got %d", len(stats.Systems))
	}
	if stats.Systems[0].Name != "one" || stats.Systems[1].Name != "two" {
		t.Errorf("expected stats in execution order, got %s, %s", stats.Systems[0].Name, stats.Systems[1].Name)
	}
	if stats.Systems[1].Phase != "postUpdate" || stats.Systems[1].Priority != 1 {
		t.Errorf("unexpected phase/priority for two: %+v", stats.Systems[1])
	}

	for _, sysStats := range stats.Systems {
		if sysStats.ExecutionCount != 3 {
			t.Errorf("expected 3 executions, got %d", sysStats.ExecutionCount)
		}
		if sysStats.MinDuration == 0 {
			t.Errorf("expected non-zero min duration")
		}
		if sysStats.LastDuration == 0 {
			t.Errorf("expected non-zero last duration")
		}
		if sysStats.TotalDuration == 0 {
			t.Errorf("expected non-zero total duration")
		}
		if sysStats.MinDuration > sysStats.AvgDuration {
			t.Errorf("min duration (%v) should be <= avg duration (%v)", sysStats.MinDuration, sysStats.AvgDuration)
		}
		if sysStats.AvgDuration > sysStats.MaxDuration {
			t.Errorf("avg duration (%v) should be <= max duration (%v)", sysStats.AvgDuration, sysStats.MaxDuration)
		}
	}

	if counts["one"] != 3 || counts["two"] != 3 {
		t.Errorf("expected each system to run 3 times, got %v", counts)
	}
}

func TestSchedulerSortIsCached(t *testing.T) {
	rt := NewRuntime(NewComponentRegistry())
	for _, label := range []string{"a", "b"} {
		if err := rt.AddSystem(label).Build(); err != nil {
			t.Fatal(err)
		}
	}

	first := rt.scheduler.ordered()
	second := rt.scheduler.ordered()
	if &first[0] != &second[0] {
		t.Errorf("expected the cached order to be reused")
	}

	if err := rt.UpdateSystemPriority("b", 10); err != nil {
		t.Fatal(err)
	}
	if rt.scheduler.sortValid {
		t.Errorf("expected a priority change to invalidate the order")
	}
	if got := rt.scheduler.Labels(); got[0] != "b" {
		t.Errorf("expected b first after priority change, got %v", got)
	}

	// Setting the same priority again keeps the cache.
	if err := rt.UpdateSystemPriority("b", 10); err != nil {
		t.Fatal(err)
	}
	if !rt.scheduler.sortValid {
		t.Errorf("expected an unchanged priority to keep the order")
	}
}

func TestReactiveDirtyTrackingIsIdleWithoutQueries(t *testing.T) {
	rt := NewRuntime(NewComponentRegistry())
	RegisterComponent[int](rt.Registry())

	rt.Spawn(1)
	if len(rt.queries.dirtyOrder) != 0 {
		t.Errorf("expected no dirty tracking without reactive queries")
	}

	if err := rt.AddReactiveQuery("ints", ReactiveQueryDef{With: []string{"int"}}); err != nil {
		t.Fatal(err)
	}
	id, _ := rt.Spawn(2)
	rt.AddComponent(id, 3)
	if got := rt.queries.dirtyOrder; len(got) != 1 || got[0] != id {
		t.Errorf("expected %d dirty once, got %v", id, got)
	}
}
