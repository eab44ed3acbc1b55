package ecs

import (
	"fmt"
	"reflect"
	"slices"
)

// componentInfo describes one registered component type.
type componentInfo struct {
	id         int
	name       string
	typ        reflect.Type
	newStorage func() iComponentStorage
}

// ComponentRegistry binds component names to Go types and knows how to build
// a storage for each of them. A registry may be shared by several Storage
// instances; each Storage keeps its own component data.
type ComponentRegistry struct {
	infos  []*componentInfo
	byName map[string]*componentInfo
	byType map[reflect.Type]*componentInfo
}

// NewComponentRegistry creates a new component registry.
func NewComponentRegistry() *ComponentRegistry {
	return &ComponentRegistry{
		byName: make(map[string]*componentInfo),
		byType: make(map[reflect.Type]*componentInfo),
	}
}

// RegisterComponent registers T under its Go type name and returns that name.
// This must be called for each component type before it can be used.
func RegisterComponent[T any](r *ComponentRegistry) string {
	name := reflect.TypeFor[T]().Name()
	RegisterNamedComponent[T](r, name)
	return name
}

// RegisterNamedComponent registers T under an explicit name. Registering the
// same name/type pair twice is a no-op; binding a name or a type twice to
// different partners panics.
func RegisterNamedComponent[T any](r *ComponentRegistry, name string) {
	if err := registerComponentType[T](r, name); err != nil {
		panic(err.Error())
	}
}

func registerComponentType[T any](r *ComponentRegistry, name string) error {
	return r.register(name, reflect.TypeFor[T](), func() iComponentStorage {
		return newGenericComponentStorage[T]()
	})
}

func (r *ComponentRegistry) register(name string, typ reflect.Type, factory func() iComponentStorage) error {
	if name == "" {
		return fmt.Errorf("%w: empty component name for %s", ErrContractConflict, typ)
	}
	if err := validateComponentType(typ); err != nil {
		return err
	}

	existing, byName := r.byName[name]
	other, byType := r.byType[typ]
	switch {
	case byName && existing.typ == typ:
		return nil
	case byName:
		return fmt.Errorf("%w: component %q is %s, not %s", ErrContractConflict, name, existing.typ, typ)
	case byType:
		return fmt.Errorf("%w: type %s already registered as %q", ErrContractConflict, typ, other.name)
	}

	info := &componentInfo{
		id:         len(r.infos),
		name:       name,
		typ:        typ,
		newStorage: factory,
	}
	r.infos = append(r.infos, info)
	r.byName[name] = info
	r.byType[typ] = info
	return nil
}

// Components can be structs or primitives (int, string, etc.)
// but not pointers, channels, or functions.
func validateComponentType(typ reflect.Type) error {
	switch typ.Kind() {
	case reflect.Ptr, reflect.Chan, reflect.Func, reflect.Interface:
		return fmt.Errorf("%w: components cannot be pointers, channels, functions or interfaces (%s)", ErrComponentType, typ)
	}
	return nil
}

// Names returns the registered component names in registration order.
func (r *ComponentRegistry) Names() []string {
	names := make([]string, len(r.infos))
	for i, info := range r.infos {
		names[i] = info.name
	}
	return names
}

// TypeOf returns the Go type bound to name.
func (r *ComponentRegistry) TypeOf(name string) (reflect.Type, bool) {
	info, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return info.typ, true
}

// NameOf returns the component name bound to typ.
func (r *ComponentRegistry) NameOf(typ reflect.Type) (string, bool) {
	info, ok := r.byType[typ]
	if !ok {
		return "", false
	}
	return info.name, true
}

// ComponentName returns the name T was registered under, or panics.
func ComponentName[T any](r *ComponentRegistry) string {
	name, ok := r.NameOf(reflect.TypeFor[T]())
	if !ok {
		panic("component type " + reflect.TypeFor[T]().String() + " not registered")
	}
	return name
}

func (r *ComponentRegistry) lookup(name string) (*componentInfo, error) {
	info, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrComponentNotRegistered, name)
	}
	return info, nil
}

func (r *ComponentRegistry) lookupAll(names []string) ([]*componentInfo, error) {
	infos := make([]*componentInfo, 0, len(names))
	for _, name := range names {
		info, err := r.lookup(name)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// resolveValue maps a component value (T or *T) to its registration and the
// value to store.
func (r *ComponentRegistry) resolveValue(component any) (*componentInfo, any, error) {
	if component == nil {
		return nil, nil, fmt.Errorf("%w: nil component", ErrComponentType)
	}
	typ := reflect.TypeOf(component)
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	info, ok := r.byType[typ]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrComponentNotRegistered, typ)
	}
	if isNilPointer(component) {
		return nil, nil, fmt.Errorf("%w: nil pointer for %q", ErrComponentType, info.name)
	}
	return info, component, nil
}

// checkValue verifies that value may be stored as the component info.
func (info *componentInfo) checkValue(value any) error {
	if value == nil {
		return fmt.Errorf("%w: nil value for %q", ErrComponentType, info.name)
	}
	typ := reflect.TypeOf(value)
	if typ == info.typ {
		return nil
	}
	if typ.Kind() == reflect.Ptr && typ.Elem() == info.typ {
		if isNilPointer(value) {
			return fmt.Errorf("%w: nil pointer for %q", ErrComponentType, info.name)
		}
		return nil
	}
	return fmt.Errorf("%w: %q expects %s, got %s", ErrComponentType, info.name, info.typ, typ)
}

func isNilPointer(value any) bool {
	v := reflect.ValueOf(value)
	return v.Kind() == reflect.Ptr && v.IsNil()
}

func sortedNames(names []string) []string {
	out := slices.Clone(names)
	slices.Sort(out)
	return slices.Compact(out)
}
