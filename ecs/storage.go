package ecs

import (
	"fmt"
	"iter"
	"reflect"

	"github.com/kamstrup/intmap"
)

// Storage owns entity identity and the per-type component data of one
// runtime. Every slot write stamps the next value of a storage-wide sequence,
// and every mutation is reported synchronously to the registered observers.
type Storage struct {
	registry  *ComponentRegistry
	columns   []iComponentStorage
	entities  *intmap.Map[EntityId, struct{}]
	nextId    EntityId
	seq       uint64
	required  *RequiredComponents
	observers []func(EntityId)
	views     map[reflect.Type]any
}

// NewStorage creates an empty storage using the given component registry.
func NewStorage(registry *ComponentRegistry) *Storage {
	return &Storage{
		registry: registry,
		entities: intmap.New[EntityId, struct{}](1024),
		required: newRequiredComponents(),
		views:    make(map[reflect.Type]any),
	}
}

// Registry returns the component registry backing this storage.
func (s *Storage) Registry() *ComponentRegistry {
	return s.registry
}

// Required returns the required-component rules applied by this storage.
func (s *Storage) Required() *RequiredComponents {
	return s.required
}

// Observe registers fn to be called with the id of every entity whose
// components are created, replaced, marked, or removed.
func (s *Storage) Observe(fn func(EntityId)) {
	s.observers = append(s.observers, fn)
}

func (s *Storage) notify(id EntityId) {
	for _, fn := range s.observers {
		fn(id)
	}
}

func (s *Storage) column(info *componentInfo) iComponentStorage {
	for len(s.columns) <= info.id {
		s.columns = append(s.columns, nil)
	}
	col := s.columns[info.id]
	if col == nil {
		col = info.newStorage()
		s.columns[info.id] = col
	}
	return col
}

func (s *Storage) peekColumn(info *componentInfo) iComponentStorage {
	if info.id >= len(s.columns) {
		return nil
	}
	return s.columns[info.id]
}

// CreateEntity creates an entity without components.
func (s *Storage) CreateEntity() EntityId {
	id := s.reserveId()
	s.entities.Put(id, struct{}{})
	s.notify(id)
	return id
}

// reserveId hands out an id that does not exist yet. The command buffer uses
// it so a deferred spawn can be referenced before it is flushed.
func (s *Storage) reserveId() EntityId {
	s.nextId++
	return s.nextId
}

// Spawn creates an entity with the provided components and applies the
// required-component rules of each of them. Nothing is created if any value
// is not a registered component.
func (s *Storage) Spawn(components ...any) (EntityId, error) {
	infos, values, err := s.resolveAll(components)
	if err != nil {
		return NoEntity, err
	}
	id := s.reserveId()
	return id, s.spawnResolved(id, infos, values)
}

func (s *Storage) spawnWithId(id EntityId, components []any) error {
	infos, values, err := s.resolveAll(components)
	if err != nil {
		return err
	}
	return s.spawnResolved(id, infos, values)
}

func (s *Storage) spawnResolved(id EntityId, infos []*componentInfo, values []any) error {
	s.entities.Put(id, struct{}{})
	for i, info := range infos {
		if !s.write(id, info, values[i]) {
			return fmt.Errorf("%w: %q", ErrComponentType, info.name)
		}
	}
	if len(infos) == 0 {
		s.notify(id)
	}
	for _, info := range infos {
		if err := s.applyRequired(id, info); err != nil {
			return err
		}
	}
	return nil
}

func (s *Storage) resolveAll(components []any) ([]*componentInfo, []any, error) {
	infos := make([]*componentInfo, 0, len(components))
	values := make([]any, 0, len(components))
	for _, comp := range components {
		info, value, err := s.registry.resolveValue(comp)
		if err != nil {
			return nil, nil, err
		}
		infos = append(infos, info)
		values = append(values, value)
	}
	return infos, values, nil
}

// Exists reports whether id is a live entity.
func (s *Storage) Exists(id EntityId) bool {
	return s.entities.Has(id)
}

// Len returns the number of live entities.
func (s *Storage) Len() int {
	return s.entities.Len()
}

// Entities iterates over all live entities.
func (s *Storage) Entities() iter.Seq[EntityId] {
	return func(yield func(EntityId) bool) {
		s.entities.ForEach(func(id EntityId, _ struct{}) bool {
			return yield(id)
		})
	}
}

// AddComponent adds or replaces a component, identified by its Go type.
func (s *Storage) AddComponent(id EntityId, component any) error {
	info, value, err := s.registry.resolveValue(component)
	if err != nil {
		return err
	}
	return s.add(id, info, value)
}

// AddNamed adds or replaces the component registered under name.
func (s *Storage) AddNamed(id EntityId, name string, value any) error {
	info, err := s.registry.lookup(name)
	if err != nil {
		return err
	}
	if err := info.checkValue(value); err != nil {
		return err
	}
	return s.add(id, info, value)
}

func (s *Storage) add(id EntityId, info *componentInfo, value any) error {
	if !s.Exists(id) {
		return fmt.Errorf("%w: %d", ErrEntityNotFound, id)
	}
	if !s.write(id, info, value) {
		return fmt.Errorf("%w: %q", ErrComponentType, info.name)
	}
	return s.applyRequired(id, info)
}

// AddComponents validates every value before writing any of them, so readers
// never observe a partial set.
func (s *Storage) AddComponents(id EntityId, components ...any) error {
	if !s.Exists(id) {
		return fmt.Errorf("%w: %d", ErrEntityNotFound, id)
	}
	infos, values, err := s.resolveAll(components)
	if err != nil {
		return err
	}
	for i, info := range infos {
		if !s.write(id, info, values[i]) {
			return fmt.Errorf("%w: %q", ErrComponentType, info.name)
		}
	}
	for _, info := range infos {
		if err := s.applyRequired(id, info); err != nil {
			return err
		}
	}
	return nil
}

func (s *Storage) write(id EntityId, info *componentInfo, value any) bool {
	seq := s.seq + 1
	if !s.column(info).Set(id, value, seq) {
		return false
	}
	s.seq = seq
	s.notify(id)
	return true
}

// applyRequired adds every component required by trigger that id lacks, then
// recurses into the rules of the added component. Existing values are never
// overwritten.
func (s *Storage) applyRequired(id EntityId, trigger *componentInfo) error {
	for _, rule := range s.required.RulesFor(trigger.name) {
		info, err := s.registry.lookup(rule.Required)
		if err != nil {
			return err
		}
		if s.hasInfo(id, info) {
			continue
		}
		value := rule.Factory()
		if err := info.checkValue(value); err != nil {
			return fmt.Errorf("required by %q: %w", trigger.name, err)
		}
		s.write(id, info, value)
		if err := s.applyRequired(id, info); err != nil {
			return err
		}
	}
	return nil
}

// RegisterRequired registers a required-component rule. Both components must
// already be registered.
func (s *Storage) RegisterRequired(trigger, required string, factory func() any) error {
	if _, err := s.registry.lookup(trigger); err != nil {
		return err
	}
	if _, err := s.registry.lookup(required); err != nil {
		return err
	}
	return s.required.Register(RequiredRule{Trigger: trigger, Required: required, Factory: factory})
}

// GetComponent returns a pointer to the named component of id. Absence is
// reported through the boolean, never as an error.
func (s *Storage) GetComponent(id EntityId, name string) (any, bool) {
	info, ok := s.registry.byName[name]
	if !ok {
		return nil, false
	}
	return s.getInfo(id, info)
}

// ComponentOf implements ComponentReader.
func (s *Storage) ComponentOf(id EntityId, typ reflect.Type) (any, bool) {
	info, ok := s.registry.byType[typ]
	if !ok {
		return nil, false
	}
	return s.getInfo(id, info)
}

func (s *Storage) getInfo(id EntityId, info *componentInfo) (any, bool) {
	col := s.peekColumn(info)
	if col == nil {
		return nil, false
	}
	comp := col.Get(id)
	return comp, comp != nil
}

// HasComponent checks if an entity has the named component.
func (s *Storage) HasComponent(id EntityId, name string) bool {
	info, ok := s.registry.byName[name]
	if !ok {
		return false
	}
	return s.hasInfo(id, info)
}

func (s *Storage) hasInfo(id EntityId, info *componentInfo) bool {
	col := s.peekColumn(info)
	return col != nil && col.Has(id)
}

// Components returns the names of the components attached to id, in
// registration order.
func (s *Storage) Components(id EntityId) []string {
	var names []string
	for _, info := range s.registry.infos {
		if s.hasInfo(id, info) {
			names = append(names, info.name)
		}
	}
	return names
}

// RemoveComponent drops the named component. Removing an absent component is
// not an error; the result reports whether a slot was dropped.
func (s *Storage) RemoveComponent(id EntityId, name string) bool {
	info, ok := s.registry.byName[name]
	if !ok {
		return false
	}
	col := s.peekColumn(info)
	if col == nil || !col.Delete(id) {
		return false
	}
	s.notify(id)
	return true
}

// RemoveEntity removes all data related to the entity id.
func (s *Storage) RemoveEntity(id EntityId) bool {
	if !s.entities.Del(id) {
		return false
	}
	for _, col := range s.columns {
		if col != nil {
			col.Delete(id)
		}
	}
	s.notify(id)
	return true
}

// MarkChanged bumps the change sequence of a component without altering its
// value, for code that mutates component internals in place.
func (s *Storage) MarkChanged(id EntityId, name string) bool {
	info, ok := s.registry.byName[name]
	if !ok {
		return false
	}
	col := s.peekColumn(info)
	if col == nil || !col.Has(id) {
		return false
	}
	s.seq++
	col.Touch(id, s.seq)
	s.notify(id)
	return true
}

// ChangeSeq returns the change sequence of a slot, or 0 if it is empty.
func (s *Storage) ChangeSeq(id EntityId, name string) uint64 {
	info, ok := s.registry.byName[name]
	if !ok {
		return 0
	}
	col := s.peekColumn(info)
	if col == nil {
		return 0
	}
	seq, _ := col.Seq(id)
	return seq
}

// CurrentSeq returns the last sequence value handed out.
func (s *Storage) CurrentSeq() uint64 {
	return s.seq
}

// ComponentReader resolves components by Go type.
type ComponentReader interface {
	ComponentOf(id EntityId, typ reflect.Type) (any, bool)
}

// Get returns the component of type T attached to entityId.
func Get[T any](reader ComponentReader, entityId EntityId) (*T, bool) {
	comp, ok := reader.ComponentOf(entityId, reflect.TypeFor[T]())
	if !ok {
		return nil, false
	}
	return comp.(*T), true
}
