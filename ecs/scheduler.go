package ecs

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"
)

// SchedulerStats provides statistics about scheduler execution.
type SchedulerStats struct {
	SystemCount     int
	TotalExecutions int64
	Systems         []SystemStats
}

// SystemStats provides execution statistics for a single system.
type SystemStats struct {
	Name           string
	Phase          string
	Priority       int
	ExecutionCount int64
	MinDuration    time.Duration
	MaxDuration    time.Duration
	AvgDuration    time.Duration
	LastDuration   time.Duration
	TotalDuration  time.Duration
}

type systemStatsInternal struct {
	executionCount int64
	minDuration    time.Duration
	maxDuration    time.Duration
	totalDuration  time.Duration
	lastDuration   time.Duration
}

func (s *systemStatsInternal) record(duration time.Duration) {
	s.executionCount++
	s.lastDuration = duration
	s.totalDuration += duration
	if duration < s.minDuration {
		s.minDuration = duration
	}
	if duration > s.maxDuration {
		s.maxDuration = duration
	}
}

type systemState uint8

const (
	systemRegistered systemState = iota
	systemActive
	systemDetached
)

type system struct {
	def     *SystemDef
	enabled bool
	state   systemState
	queries []*namedQueryState
	subs    []Subscription
	stats   systemStatsInternal
}

type namedQueryState struct {
	name  string
	state *QueryState
}

// Scheduler manages and executes systems. Systems run by descending priority;
// equal priorities keep registration order. The sorted order is cached and
// only rebuilt, lazily, after a priority or membership change.
type Scheduler struct {
	rt             *Runtime
	systems        []*system
	byLabel        map[string]*system
	sorted         []*system
	sortValid      bool
	disabledGroups map[string]bool
	phases         []string
	postUpdate     []func(rt *Runtime, dt float64) error
}

func newScheduler(rt *Runtime, phases []string) *Scheduler {
	return &Scheduler{
		rt:             rt,
		byLabel:        make(map[string]*system),
		disabledGroups: make(map[string]bool),
		phases:         slices.Clone(phases),
	}
}

// Phases returns the phases Update runs, in order.
func (s *Scheduler) Phases() []string {
	return slices.Clone(s.phases)
}

func (s *Scheduler) register(def *SystemDef) error {
	copied := *def
	def = &copied
	if def.Label == "" {
		return fmt.Errorf("%w: empty label", ErrDuplicateSystem)
	}
	if _, ok := s.byLabel[def.Label]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateSystem, def.Label)
	}
	if def.Phase == "" {
		def.Phase = DefaultPhase
	}
	if !slices.Contains(s.phases, def.Phase) {
		return fmt.Errorf("%w: %q for system %q", ErrUnknownPhase, def.Phase, def.Label)
	}
	if p, ok := s.rt.config.Priorities[def.Label]; ok {
		def.Priority = p
	}

	sys := &system{
		def:     def,
		enabled: true,
		stats:   systemStatsInternal{minDuration: time.Duration(1<<63 - 1)},
	}
	seen := make(map[string]bool, len(def.Queries))
	for _, nq := range def.Queries {
		if seen[nq.Name] {
			return fmt.Errorf("%w: query %q declared twice by system %q", ErrInvalidFilter, nq.Name, def.Label)
		}
		seen[nq.Name] = true
		q, err := s.rt.queries.cache.Compile(nq.Filter)
		if err != nil {
			return fmt.Errorf("system %q query %q: %w", def.Label, nq.Name, err)
		}
		sys.queries = append(sys.queries, &namedQueryState{name: nq.Name, state: newQueryState(q)})
	}

	for _, event := range sortedKeys(def.EventHandlers) {
		handler := def.EventHandlers[event]
		sys.subs = append(sys.subs, s.rt.events.Subscribe(event, func(payload any) error {
			if !s.participates(sys) {
				return nil
			}
			if err := s.ensureInitialized(context.Background(), sys); err != nil {
				return err
			}
			return handler(payload, s.rt)
		}))
	}

	s.systems = append(s.systems, sys)
	s.byLabel[def.Label] = sys
	s.sortValid = false
	s.rt.logger.Debug("system registered",
		zap.String("system", def.Label),
		zap.Int("priority", def.Priority),
		zap.String("phase", def.Phase),
		zap.Strings("groups", def.Groups))
	return nil
}

// remove detaches a system: OnDetach runs first, then its event handlers are
// unsubscribed and it leaves the execution order.
func (s *Scheduler) remove(label string) error {
	sys, ok := s.byLabel[label]
	if !ok {
		return fmt.Errorf("%w: %q", ErrSystemNotFound, label)
	}
	if sys.def.OnDetach != nil {
		sys.def.OnDetach(s.rt)
	}
	for _, sub := range sys.subs {
		s.rt.events.Unsubscribe(sub)
	}
	sys.state = systemDetached
	delete(s.byLabel, label)
	s.systems = slices.DeleteFunc(slices.Clone(s.systems), func(other *system) bool { return other == sys })
	s.sortValid = false
	s.rt.logger.Debug("system removed", zap.String("system", label))
	return nil
}

func (s *Scheduler) setPriority(label string, priority int) error {
	sys, ok := s.byLabel[label]
	if !ok {
		return fmt.Errorf("%w: %q", ErrSystemNotFound, label)
	}
	if sys.def.Priority != priority {
		sys.def.Priority = priority
		s.sortValid = false
	}
	return nil
}

func (s *Scheduler) setEnabled(label string, enabled bool) error {
	sys, ok := s.byLabel[label]
	if !ok {
		return fmt.Errorf("%w: %q", ErrSystemNotFound, label)
	}
	sys.enabled = enabled
	return nil
}

func (s *Scheduler) setGroupEnabled(group string, enabled bool) {
	if enabled {
		delete(s.disabledGroups, group)
	} else {
		s.disabledGroups[group] = true
	}
	s.rt.logger.Debug("system group toggled", zap.String("group", group), zap.Bool("enabled", enabled))
}

func (s *Scheduler) groupEnabled(group string) bool {
	return !s.disabledGroups[group]
}

// participates reports whether sys may run: attached, enabled, and in no
// disabled group.
func (s *Scheduler) participates(sys *system) bool {
	if sys.state == systemDetached || !sys.enabled {
		return false
	}
	for _, g := range sys.def.Groups {
		if s.disabledGroups[g] {
			return false
		}
	}
	return true
}

// ordered returns the systems in execution order, rebuilding the cached sort
// only when it was invalidated. The returned slice is never mutated
// afterwards, so callers may keep iterating it while systems are removed.
func (s *Scheduler) ordered() []*system {
	if !s.sortValid {
		sorted := slices.Clone(s.systems)
		slices.SortStableFunc(sorted, func(a, b *system) int {
			return cmp.Compare(b.def.Priority, a.def.Priority)
		})
		s.sorted = sorted
		s.sortValid = true
	}
	return s.sorted
}

func (s *Scheduler) ensureInitialized(ctx context.Context, sys *system) error {
	if sys.state != systemRegistered {
		return nil
	}
	if sys.def.OnInitialize != nil {
		if err := sys.def.OnInitialize(ctx, s.rt); err != nil {
			return fmt.Errorf("initialize system %q: %w", sys.def.Label, err)
		}
	}
	sys.state = systemActive
	return nil
}

// initializeAll runs every pending OnInitialize in execution order.
func (s *Scheduler) initializeAll(ctx context.Context) error {
	for _, sys := range s.ordered() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.ensureInitialized(ctx, sys); err != nil {
			return err
		}
	}
	return nil
}

// update runs every phase in order, then the post-update hooks.
func (s *Scheduler) update(dt float64) error {
	for _, phase := range s.phases {
		if err := s.runPhase(phase, dt); err != nil {
			return err
		}
	}
	for _, hook := range slices.Clone(s.postUpdate) {
		if err := hook(s.rt, dt); err != nil {
			return err
		}
	}
	return nil
}

// runPhase executes the systems of one phase, flushes the command buffer and
// evaluates reactive queries. A failing system aborts the phase before the
// flush; its queued commands stay queued.
func (s *Scheduler) runPhase(phase string, dt float64) error {
	frame := newUpdateFrame(dt, phase, s.rt)

	for _, sys := range s.ordered() {
		if sys.def.Phase != phase || !s.participates(sys) {
			continue
		}
		if err := s.ensureInitialized(context.Background(), sys); err != nil {
			return err
		}
		if sys.def.Process == nil {
			continue
		}

		clear(frame.queries)
		for _, nq := range sys.queries {
			frame.queries[nq.name] = QueryResult{
				Name:     nq.name,
				Entities: nq.state.Collect(s.rt.storage),
				storage:  s.rt.storage,
			}
		}

		start := time.Now()
		err := sys.def.Process(frame)
		sys.stats.record(time.Since(start))
		if err != nil {
			return fmt.Errorf("system %q: %w", sys.def.Label, err)
		}
	}

	if err := s.rt.commands.Flush(); err != nil {
		s.rt.logger.Debug("command flush failed", zap.String("phase", phase), zap.Error(err))
		return err
	}
	s.rt.queries.evaluate()
	return nil
}

// Stats returns statistics about system execution.
func (s *Scheduler) Stats() *SchedulerStats {
	ordered := s.ordered()
	stats := &SchedulerStats{
		SystemCount: len(ordered),
		Systems:     make([]SystemStats, len(ordered)),
	}

	var totalExecs int64
	for i, sys := range ordered {
		internal := sys.stats
		avgDuration := time.Duration(0)
		minDuration := internal.minDuration
		if internal.executionCount > 0 {
			avgDuration = internal.totalDuration / time.Duration(internal.executionCount)
		} else {
			minDuration = 0
		}

		stats.Systems[i] = SystemStats{
			Name:           sys.def.Label,
			Phase:          sys.def.Phase,
			Priority:       sys.def.Priority,
			ExecutionCount: internal.executionCount,
			MinDuration:    minDuration,
			MaxDuration:    internal.maxDuration,
			AvgDuration:    avgDuration,
			LastDuration:   internal.lastDuration,
			TotalDuration:  internal.totalDuration,
		}
		totalExecs += internal.executionCount
	}

	stats.TotalExecutions = totalExecs
	return stats
}

// Labels returns the system labels in execution order.
func (s *Scheduler) Labels() []string {
	ordered := s.ordered()
	labels := make([]string, len(ordered))
	for i, sys := range ordered {
		labels[i] = sys.def.Label
	}
	return labels
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
