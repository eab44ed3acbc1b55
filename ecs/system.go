package ecs

import "context"

// DefaultPhase is the phase systems run in unless InPhase says otherwise.
const DefaultPhase = "update"

// ProcessFunc is the per-tick body of a system.
type ProcessFunc func(frame *UpdateFrame) error

// SystemEventHandler handles one event on behalf of a system.
type SystemEventHandler func(payload any, rt *Runtime) error

// SystemDef is the declarative description of a system. It is usually built
// with a SystemBuilder.
type SystemDef struct {
	Label         string
	Priority      int
	Groups        []string
	Phase         string
	Queries       []NamedQuery
	Process       ProcessFunc
	EventHandlers map[string]SystemEventHandler
	OnInitialize  func(ctx context.Context, rt *Runtime) error
	OnDetach      func(rt *Runtime)
}

// NamedQuery is a filter a system reads under a name.
type NamedQuery struct {
	Name   string
	Filter Filter
}

// InGroup reports whether the system carries the group tag.
func (d *SystemDef) InGroup(group string) bool {
	for _, g := range d.Groups {
		if g == group {
			return true
		}
	}
	return false
}

// SystemBuilder assembles a SystemDef and hands it to a sink (a runtime or a
// bundle) on Build.
type SystemBuilder struct {
	def  SystemDef
	sink func(*SystemDef) error
}

func newSystemBuilder(label string, sink func(*SystemDef) error) *SystemBuilder {
	return &SystemBuilder{
		def:  SystemDef{Label: label, Phase: DefaultPhase},
		sink: sink,
	}
}

// AddQuery declares a named query the system reads each tick.
func (b *SystemBuilder) AddQuery(name string, filter Filter) *SystemBuilder {
	b.def.Queries = append(b.def.Queries, NamedQuery{Name: name, Filter: filter})
	return b
}

// SetProcess sets the per-tick body.
func (b *SystemBuilder) SetProcess(fn ProcessFunc) *SystemBuilder {
	b.def.Process = fn
	return b
}

// SetEventHandlers sets the event handlers, keyed by event name.
func (b *SystemBuilder) SetEventHandlers(handlers map[string]SystemEventHandler) *SystemBuilder {
	b.def.EventHandlers = handlers
	return b
}

// SetOnInitialize sets the hook run once before the first participation.
func (b *SystemBuilder) SetOnInitialize(fn func(ctx context.Context, rt *Runtime) error) *SystemBuilder {
	b.def.OnInitialize = fn
	return b
}

// SetOnDetach sets the hook run when the system is removed.
func (b *SystemBuilder) SetOnDetach(fn func(rt *Runtime)) *SystemBuilder {
	b.def.OnDetach = fn
	return b
}

// SetPriority sets the priority; higher runs first.
func (b *SystemBuilder) SetPriority(priority int) *SystemBuilder {
	b.def.Priority = priority
	return b
}

// InGroup adds a group tag.
func (b *SystemBuilder) InGroup(group string) *SystemBuilder {
	if !b.def.InGroup(group) {
		b.def.Groups = append(b.def.Groups, group)
	}
	return b
}

// InPhase sets the phase the system runs in.
func (b *SystemBuilder) InPhase(phase string) *SystemBuilder {
	b.def.Phase = phase
	return b
}

// Def returns a copy of the definition built so far.
func (b *SystemBuilder) Def() *SystemDef {
	def := b.def
	return &def
}

// Build registers the system with the builder's owner.
func (b *SystemBuilder) Build() error {
	return b.sink(b.Def())
}
