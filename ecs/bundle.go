package ecs

import (
	"fmt"
	"maps"
	"reflect"
	"slices"

	"go.uber.org/zap"
)

// Contract lists the component, event and resource names a bundle uses,
// each bound to a Go type. Composing contracts fails when one name is bound
// to two different types.
type Contract struct {
	components map[string]componentDecl
	events     map[string]reflect.Type
	resources  map[string]reflect.Type
}

type componentDecl struct {
	typ      reflect.Type
	register func(r *ComponentRegistry, name string) error
}

// NewContract creates an empty contract.
func NewContract() *Contract {
	return &Contract{
		components: make(map[string]componentDecl),
		events:     make(map[string]reflect.Type),
		resources:  make(map[string]reflect.Type),
	}
}

// ProvideComponent declares the component name with type T.
func ProvideComponent[T any](c *Contract, name string) *Contract {
	c.components[name] = componentDecl{typ: reflect.TypeFor[T](), register: registerComponentType[T]}
	return c
}

// ProvideEvent declares the event name with payload type T.
func ProvideEvent[T any](c *Contract, name string) *Contract {
	c.events[name] = reflect.TypeFor[T]()
	return c
}

// ProvideResource declares the resource name with type T.
func ProvideResource[T any](c *Contract, name string) *Contract {
	c.resources[name] = reflect.TypeFor[T]()
	return c
}

// Components returns the declared component names and types.
func (c *Contract) Components() map[string]reflect.Type {
	out := make(map[string]reflect.Type, len(c.components))
	for name, decl := range c.components {
		out[name] = decl.typ
	}
	return out
}

// Events returns the declared event names and payload types.
func (c *Contract) Events() map[string]reflect.Type {
	return maps.Clone(c.events)
}

// Resources returns the declared resource names and types.
func (c *Contract) Resources() map[string]reflect.Type {
	return maps.Clone(c.resources)
}

// Merge unions other into a copy of c.
func (c *Contract) Merge(other *Contract) (*Contract, error) {
	out := NewContract()
	maps.Copy(out.components, c.components)
	maps.Copy(out.events, c.events)
	maps.Copy(out.resources, c.resources)

	for _, name := range sortedKeys(other.components) {
		decl := other.components[name]
		if existing, ok := out.components[name]; ok && existing.typ != decl.typ {
			return nil, fmt.Errorf("%w: component %q is %s and %s", ErrContractConflict, name, existing.typ, decl.typ)
		}
		out.components[name] = decl
	}
	if err := mergeTypes("event", out.events, other.events); err != nil {
		return nil, err
	}
	if err := mergeTypes("resource", out.resources, other.resources); err != nil {
		return nil, err
	}
	return out, nil
}

func mergeTypes(kind string, dst, src map[string]reflect.Type) error {
	for _, name := range sortedKeys(src) {
		typ := src[name]
		if existing, ok := dst[name]; ok && existing != typ {
			return fmt.Errorf("%w: %s %q is %s and %s", ErrContractConflict, kind, name, existing, typ)
		}
		dst[name] = typ
	}
	return nil
}

// ResourceDef is a resource a bundle provides: either a value or a factory.
type ResourceDef struct {
	Value   any
	Factory ResourceFactory
}

// Bundle packages systems, resources and required-component rules for
// installation into a runtime.
type Bundle interface {
	Name() string
	Contract() *Contract
	GetSystems() []*SystemDef
	GetResources() map[string]ResourceDef
	GetRequiredComponents() []RequiredRule
}

// BundleSpec is the standard Bundle implementation.
type BundleSpec struct {
	name      string
	contract  *Contract
	systems   []*SystemDef
	resources map[string]ResourceDef
	required  []RequiredRule
}

var _ Bundle = (*BundleSpec)(nil)

// NewBundle creates an empty bundle.
func NewBundle(name string) *BundleSpec {
	return &BundleSpec{
		name:      name,
		contract:  NewContract(),
		resources: make(map[string]ResourceDef),
	}
}

func (b *BundleSpec) Name() string        { return b.name }
func (b *BundleSpec) Contract() *Contract { return b.contract }

func (b *BundleSpec) GetSystems() []*SystemDef {
	return slices.Clone(b.systems)
}

func (b *BundleSpec) GetResources() map[string]ResourceDef {
	return maps.Clone(b.resources)
}

func (b *BundleSpec) GetRequiredComponents() []RequiredRule {
	return slices.Clone(b.required)
}

// AddSystem starts building a system that is added to the bundle on Build.
func (b *BundleSpec) AddSystem(label string) *SystemBuilder {
	return newSystemBuilder(label, func(def *SystemDef) error {
		for _, existing := range b.systems {
			if existing.Label == def.Label {
				return fmt.Errorf("%w: %q in bundle %q", ErrDuplicateSystem, def.Label, b.name)
			}
		}
		b.systems = append(b.systems, def)
		return nil
	})
}

// AddResource adds a resource value.
func (b *BundleSpec) AddResource(name string, value any) *BundleSpec {
	b.resources[name] = ResourceDef{Value: value}
	return b
}

// AddResourceFactory adds a resource produced by factory on Initialize.
func (b *BundleSpec) AddResourceFactory(name string, factory ResourceFactory) *BundleSpec {
	b.resources[name] = ResourceDef{Factory: factory}
	return b
}

// AddRequired adds a required-component rule.
func (b *BundleSpec) AddRequired(trigger, required string, factory func() any) *BundleSpec {
	b.required = append(b.required, RequiredRule{Trigger: trigger, Required: required, Factory: factory})
	return b
}

// MergeBundles composes bundles into one. Contracts are unioned; a name bound
// to different types, a system label or a resource provided twice is an error.
func MergeBundles(name string, bundles ...Bundle) (*BundleSpec, error) {
	out := NewBundle(name)
	for _, b := range bundles {
		merged, err := out.contract.Merge(b.Contract())
		if err != nil {
			return nil, fmt.Errorf("merge bundle %q: %w", b.Name(), err)
		}
		out.contract = merged

		for _, def := range b.GetSystems() {
			if slices.ContainsFunc(out.systems, func(d *SystemDef) bool { return d.Label == def.Label }) {
				return nil, fmt.Errorf("merge bundle %q: %w: %q", b.Name(), ErrDuplicateSystem, def.Label)
			}
			out.systems = append(out.systems, def)
		}
		resources := b.GetResources()
		for _, res := range sortedKeys(resources) {
			if _, ok := out.resources[res]; ok {
				return nil, fmt.Errorf("merge bundle %q: %w: resource %q provided twice", b.Name(), ErrContractConflict, res)
			}
			out.resources[res] = resources[res]
		}
		out.required = append(out.required, b.GetRequiredComponents()...)
	}
	return out, nil
}

// Install validates a bundle against the runtime and then registers its
// components, events, resources, required-component rules and systems.
// Validation failures leave the runtime unchanged.
func (rt *Runtime) Install(b Bundle) error {
	contract := b.Contract()
	reg := rt.Registry()

	for _, name := range sortedKeys(contract.components) {
		decl := contract.components[name]
		if typ, ok := reg.TypeOf(name); ok && typ != decl.typ {
			return fmt.Errorf("install %q: %w: component %q is %s, bundle wants %s", b.Name(), ErrContractConflict, name, typ, decl.typ)
		}
		if other, ok := reg.NameOf(decl.typ); ok && other != name {
			return fmt.Errorf("install %q: %w: type %s is registered as %q", b.Name(), ErrContractConflict, decl.typ, other)
		}
	}
	for _, name := range sortedKeys(contract.events) {
		if typ, ok := rt.events.EventType(name); ok && typ != contract.events[name] {
			return fmt.Errorf("install %q: %w: event %q is %s", b.Name(), ErrContractConflict, name, typ)
		}
	}
	systems := b.GetSystems()
	labels := make(map[string]bool, len(systems))
	for _, def := range systems {
		if labels[def.Label] {
			return fmt.Errorf("install %q: %w: %q declared twice", b.Name(), ErrDuplicateSystem, def.Label)
		}
		labels[def.Label] = true
		if _, ok := rt.scheduler.byLabel[def.Label]; ok {
			return fmt.Errorf("install %q: %w: %q", b.Name(), ErrDuplicateSystem, def.Label)
		}
		if def.Phase != "" && !slices.Contains(rt.scheduler.phases, def.Phase) {
			return fmt.Errorf("install %q: %w: %q", b.Name(), ErrUnknownPhase, def.Phase)
		}
	}

	known := func(name string) bool {
		_, inRegistry := reg.TypeOf(name)
		_, inContract := contract.components[name]
		return inRegistry || inContract
	}
	required := rt.storage.required.clone()
	for _, rule := range b.GetRequiredComponents() {
		for _, name := range []string{rule.Trigger, rule.Required} {
			if !known(name) {
				return fmt.Errorf("install %q: %w: %q", b.Name(), ErrComponentNotRegistered, name)
			}
		}
		if err := required.Register(rule); err != nil {
			return fmt.Errorf("install %q: %w", b.Name(), err)
		}
	}
	resources := b.GetResources()
	for _, name := range sortedKeys(resources) {
		def := resources[name]
		typ, declared := contract.resources[name]
		if def.Factory == nil && declared && reflect.TypeOf(def.Value) != typ {
			return fmt.Errorf("install %q: %w: resource %q expects %s, got %T", b.Name(), ErrContractConflict, name, typ, def.Value)
		}
	}

	for _, name := range sortedKeys(contract.components) {
		if err := contract.components[name].register(reg, name); err != nil {
			return fmt.Errorf("install %q: %w", b.Name(), err)
		}
	}
	rt.storage.required = required

	for _, name := range sortedKeys(contract.events) {
		if err := rt.events.declare(name, contract.events[name]); err != nil {
			return fmt.Errorf("install %q: %w", b.Name(), err)
		}
	}
	for _, name := range sortedKeys(contract.resources) {
		if err := rt.resources.declare(name, contract.resources[name]); err != nil {
			return fmt.Errorf("install %q: %w", b.Name(), err)
		}
	}
	for _, name := range sortedKeys(resources) {
		def := resources[name]
		if def.Factory != nil {
			rt.resources.AddFactory(name, def.Factory)
			continue
		}
		if err := rt.resources.Add(name, def.Value); err != nil {
			return fmt.Errorf("install %q: %w", b.Name(), err)
		}
	}

	for _, def := range systems {
		if err := rt.scheduler.register(def); err != nil {
			return fmt.Errorf("install %q: %w", b.Name(), err)
		}
	}
	rt.logger.Info("bundle installed",
		zap.String("bundle", b.Name()),
		zap.Int("systems", len(systems)),
		zap.Int("resources", len(resources)))
	return nil
}
