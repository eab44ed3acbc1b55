package ecs

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"

	"go.uber.org/zap"
)

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(rt *Runtime) {
		if logger != nil {
			rt.logger = logger
		}
	}
}

// WithConfig applies a runtime configuration.
func WithConfig(cfg *Config) Option {
	return func(rt *Runtime) {
		if cfg != nil {
			rt.config = cfg
		}
	}
}

// WithPhases overrides the phases Update runs, in order.
func WithPhases(phases ...string) Option {
	return func(rt *Runtime) {
		cfg := *rt.config
		cfg.Phases = slices.Clone(phases)
		rt.config = &cfg
	}
}

// RemoveOptions controls RemoveEntity. Cascade defaults to true when no
// options are passed.
type RemoveOptions struct {
	Cascade bool
}

func cascadeOf(opts []RemoveOptions) bool {
	if len(opts) == 0 {
		return true
	}
	return opts[0].Cascade
}

// Runtime owns the storage, hierarchy, query engine, command buffer,
// scheduler, event bus and resources of one simulation. Runtimes share no
// mutable state with each other.
type Runtime struct {
	storage   *Storage
	hierarchy *Hierarchy
	queries   *queryEngine
	commands  *Commands
	scheduler *Scheduler
	events    *EventBus
	resources *Resources
	logger    *zap.Logger
	config    *Config
}

// NewRuntime creates a runtime over a fresh storage using registry.
// It panics if the resulting configuration is invalid.
func NewRuntime(registry *ComponentRegistry, opts ...Option) *Runtime {
	rt := &Runtime{
		logger: zap.NewNop(),
		config: DefaultConfig(),
	}
	for _, opt := range opts {
		opt(rt)
	}
	if err := rt.config.Validate(); err != nil {
		panic(err.Error())
	}

	rt.storage = NewStorage(registry)
	rt.events = NewEventBus()
	rt.resources = NewResources(rt.logger)
	rt.queries = newQueryEngine(rt.storage)
	rt.commands = newCommands(rt)
	rt.hierarchy = NewHierarchy(func(ev HierarchyChangedEvent) error {
		return rt.events.Publish(EventHierarchyChanged, ev)
	})
	rt.scheduler = newScheduler(rt, rt.config.Phases)
	for _, group := range rt.config.DisabledGroups {
		rt.scheduler.setGroupEnabled(group, false)
	}

	if err := RegisterEvent[HierarchyChangedEvent](rt.events, EventHierarchyChanged); err != nil {
		panic(err.Error())
	}
	return rt
}

// Storage returns the entity/component storage.
func (rt *Runtime) Storage() *Storage { return rt.storage }

// Registry returns the component registry.
func (rt *Runtime) Registry() *ComponentRegistry { return rt.storage.registry }

// Hierarchy returns the hierarchy index, for traversal. Mutate it through
// the runtime so entity existence is checked.
func (rt *Runtime) Hierarchy() *Hierarchy { return rt.hierarchy }

// Events returns the event bus.
func (rt *Runtime) Events() *EventBus { return rt.events }

// Resources returns the resource container.
func (rt *Runtime) Resources() *Resources { return rt.resources }

// Commands returns the deferred command buffer.
func (rt *Runtime) Commands() *Commands { return rt.commands }

// Scheduler returns the system scheduler.
func (rt *Runtime) Scheduler() *Scheduler { return rt.scheduler }

// Logger returns the runtime logger.
func (rt *Runtime) Logger() *zap.Logger { return rt.logger }

// Config returns the active configuration.
func (rt *Runtime) Config() *Config { return rt.config }

// CreateEntity creates an entity without components.
func (rt *Runtime) CreateEntity() EntityId {
	return rt.storage.CreateEntity()
}

// Spawn creates an entity with the given components.
func (rt *Runtime) Spawn(components ...any) (EntityId, error) {
	return rt.storage.Spawn(components...)
}

// SpawnChild creates an entity and parents it to parent. Nothing is created
// if parent does not exist. An error from a hierarchy-change subscriber is
// returned after the child has been spawned and parented, as with SetParent.
func (rt *Runtime) SpawnChild(parent EntityId, components ...any) (EntityId, error) {
	if !rt.storage.Exists(parent) {
		return NoEntity, fmt.Errorf("%w: parent %d", ErrEntityNotFound, parent)
	}
	id, err := rt.storage.Spawn(components...)
	if err != nil {
		return id, err
	}
	return id, rt.hierarchy.SetParent(id, parent)
}

// AddComponent adds or replaces a component, identified by its Go type.
func (rt *Runtime) AddComponent(id EntityId, component any) error {
	return rt.storage.AddComponent(id, component)
}

// AddNamed adds or replaces the component registered under name.
func (rt *Runtime) AddNamed(id EntityId, name string, value any) error {
	return rt.storage.AddNamed(id, name, value)
}

// AddComponents adds several components at once.
func (rt *Runtime) AddComponents(id EntityId, components ...any) error {
	return rt.storage.AddComponents(id, components...)
}

// GetComponent returns the named component of id.
func (rt *Runtime) GetComponent(id EntityId, name string) (any, bool) {
	return rt.storage.GetComponent(id, name)
}

// ComponentOf implements ComponentReader.
func (rt *Runtime) ComponentOf(id EntityId, typ reflect.Type) (any, bool) {
	return rt.storage.ComponentOf(id, typ)
}

// HasComponent reports whether id has the named component.
func (rt *Runtime) HasComponent(id EntityId, name string) bool {
	return rt.storage.HasComponent(id, name)
}

// RemoveComponent drops the named component of id.
func (rt *Runtime) RemoveComponent(id EntityId, name string) bool {
	return rt.storage.RemoveComponent(id, name)
}

// MarkChanged bumps the change sequence of a component.
func (rt *Runtime) MarkChanged(id EntityId, name string) bool {
	return rt.storage.MarkChanged(id, name)
}

// Exists reports whether id is a live entity.
func (rt *Runtime) Exists(id EntityId) bool {
	return rt.storage.Exists(id)
}

// RemoveEntity removes id. By default its descendants are removed too, in
// pre-order; with Cascade false only id goes and its children become roots.
// It reports whether id existed.
func (rt *Runtime) RemoveEntity(id EntityId, opts ...RemoveOptions) (bool, error) {
	if !rt.storage.Exists(id) {
		return false, nil
	}
	if !cascadeOf(opts) {
		rt.storage.RemoveEntity(id)
		return true, rt.hierarchy.Remove(id)
	}

	doomed := append([]EntityId{id}, rt.hierarchy.GetDescendants(id)...)
	for _, e := range doomed {
		rt.storage.RemoveEntity(e)
	}
	var errs []error
	for _, e := range slices.Backward(doomed) {
		if err := rt.hierarchy.Remove(e); err != nil {
			errs = append(errs, err)
		}
	}
	return true, errors.Join(errs...)
}

// SetParent makes parent the parent of child. Both must exist.
func (rt *Runtime) SetParent(child, parent EntityId) error {
	if !rt.storage.Exists(child) {
		return fmt.Errorf("%w: child %d", ErrEntityNotFound, child)
	}
	if !rt.storage.Exists(parent) {
		return fmt.Errorf("%w: parent %d", ErrEntityNotFound, parent)
	}
	return rt.hierarchy.SetParent(child, parent)
}

// GetParent returns the parent of id, or NoEntity.
func (rt *Runtime) GetParent(id EntityId) EntityId {
	return rt.hierarchy.GetParent(id)
}

// RemoveParent detaches child from its parent.
func (rt *Runtime) RemoveParent(child EntityId) (bool, error) {
	return rt.hierarchy.RemoveParent(child)
}

// RegisterRequired registers a required-component rule by name.
func (rt *Runtime) RegisterRequired(trigger, required string, factory func() any) error {
	return rt.storage.RegisterRequired(trigger, required, factory)
}

// Require registers that adding a T also adds an R built by factory.
func Require[T, R any](rt *Runtime, factory func() R) error {
	reg := rt.Registry()
	trigger, ok := reg.NameOf(reflect.TypeFor[T]())
	if !ok {
		return fmt.Errorf("%w: %s", ErrComponentNotRegistered, reflect.TypeFor[T]())
	}
	required, ok := reg.NameOf(reflect.TypeFor[R]())
	if !ok {
		return fmt.Errorf("%w: %s", ErrComponentNotRegistered, reflect.TypeFor[R]())
	}
	return rt.RegisterRequired(trigger, required, func() any { return factory() })
}

// GetEntitiesWithQuery returns the entities having all of with and none of
// without, in storage order.
func (rt *Runtime) GetEntitiesWithQuery(with []string, without ...string) ([]EntityId, error) {
	return rt.queries.entities(with, without)
}

// AddReactiveQuery registers a reactive query. Entities already matching
// enter immediately; later transitions are reported after each flush.
func (rt *Runtime) AddReactiveQuery(name string, def ReactiveQueryDef) error {
	return rt.queries.addReactive(name, def)
}

// RemoveReactiveQuery drops a reactive query without exit callbacks.
func (rt *Runtime) RemoveReactiveQuery(name string) bool {
	return rt.queries.removeReactive(name)
}

// ReactiveMembers returns the current members of a reactive query, sorted.
func (rt *Runtime) ReactiveMembers(name string) ([]EntityId, bool) {
	return rt.queries.members(name)
}

// AddSystem starts building a system that is registered on Build.
func (rt *Runtime) AddSystem(label string) *SystemBuilder {
	return newSystemBuilder(label, rt.scheduler.register)
}

// RemoveSystem detaches a system, calling its OnDetach hook first.
func (rt *Runtime) RemoveSystem(label string) error {
	return rt.scheduler.remove(label)
}

// UpdateSystemPriority changes a system's priority.
func (rt *Runtime) UpdateSystemPriority(label string, priority int) error {
	return rt.scheduler.setPriority(label, priority)
}

// EnableSystem re-enables a single system.
func (rt *Runtime) EnableSystem(label string) error {
	return rt.scheduler.setEnabled(label, true)
}

// DisableSystem stops a single system from running.
func (rt *Runtime) DisableSystem(label string) error {
	return rt.scheduler.setEnabled(label, false)
}

// EnableSystemGroup re-enables every system tagged with group.
func (rt *Runtime) EnableSystemGroup(group string) {
	rt.scheduler.setGroupEnabled(group, true)
}

// DisableSystemGroup skips every system tagged with group, even if its other
// groups are enabled.
func (rt *Runtime) DisableSystemGroup(group string) {
	rt.scheduler.setGroupEnabled(group, false)
}

// IsSystemGroupEnabled reports whether group is enabled.
func (rt *Runtime) IsSystemGroupEnabled(group string) bool {
	return rt.scheduler.groupEnabled(group)
}

// AddPostUpdateHook registers fn to run after every Update.
func (rt *Runtime) AddPostUpdateHook(fn func(rt *Runtime, dt float64) error) {
	rt.scheduler.postUpdate = append(rt.scheduler.postUpdate, fn)
}

// Publish delivers an event synchronously to its subscribers.
func (rt *Runtime) Publish(event string, payload any) error {
	return rt.events.Publish(event, payload)
}

// Initialize loads every pending resource, then runs the OnInitialize hook
// of every system that has not run it yet. Resource failures are recorded
// per resource and logged; they do not fail Initialize.
func (rt *Runtime) Initialize(ctx context.Context) error {
	if err := rt.resources.LoadAll(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		rt.logger.Warn("some resources failed to load", zap.Error(err))
	}
	return rt.scheduler.initializeAll(ctx)
}

// Update advances the simulation by dt seconds: each phase runs its systems,
// flushes the command buffer and evaluates reactive queries, then the
// post-update hooks run.
func (rt *Runtime) Update(dt float64) error {
	return rt.scheduler.update(dt)
}

// Stats returns per-system execution statistics.
func (rt *Runtime) Stats() *SchedulerStats {
	return rt.scheduler.Stats()
}
