package ecs

import (
	"errors"

	"go.uber.org/zap"
)

type commandKind uint8

const (
	cmdSpawn commandKind = iota
	cmdAddComponent
	cmdAddNamed
	cmdRemoveComponent
	cmdRemoveEntity
	cmdSetParent
	cmdRemoveParent
	cmdMarkChanged
	cmdDefer
)

func (k commandKind) String() string {
	switch k {
	case cmdSpawn:
		return "spawn"
	case cmdAddComponent, cmdAddNamed:
		return "addComponent"
	case cmdRemoveComponent:
		return "removeComponent"
	case cmdRemoveEntity:
		return "removeEntity"
	case cmdSetParent:
		return "setParent"
	case cmdRemoveParent:
		return "removeParent"
	case cmdMarkChanged:
		return "markChanged"
	default:
		return "defer"
	}
}

type command struct {
	kind       commandKind
	entity     EntityId
	parent     EntityId
	components []any
	name       string
	value      any
	cascade    bool
	fn         func()
}

// Commands buffers structural changes issued while systems iterate query
// results. The runtime applies them in enqueue order once per phase, through
// the same code paths as the direct APIs.
type Commands struct {
	rt    *Runtime
	queue []command
}

func newCommands(rt *Runtime) *Commands {
	return &Commands{rt: rt}
}

// Len returns the number of queued commands.
func (c *Commands) Len() int {
	return len(c.queue)
}

// Spawn queues an entity spawn. The returned id is reserved immediately and
// may be used by later commands in the same buffer.
func (c *Commands) Spawn(components ...any) EntityId {
	id := c.rt.storage.reserveId()
	c.queue = append(c.queue, command{kind: cmdSpawn, entity: id, components: components})
	return id
}

// SpawnChild queues a spawn followed by parenting the new entity to parent.
func (c *Commands) SpawnChild(parent EntityId, components ...any) EntityId {
	id := c.Spawn(components...)
	c.SetParent(id, parent)
	return id
}

// AddComponent queues a component addition or replacement.
func (c *Commands) AddComponent(entity EntityId, component any) {
	c.queue = append(c.queue, command{kind: cmdAddComponent, entity: entity, value: component})
}

// AddNamed queues the addition of a component given by name.
func (c *Commands) AddNamed(entity EntityId, name string, value any) {
	c.queue = append(c.queue, command{kind: cmdAddNamed, entity: entity, name: name, value: value})
}

// RemoveComponent queues a component removal.
func (c *Commands) RemoveComponent(entity EntityId, name string) {
	c.queue = append(c.queue, command{kind: cmdRemoveComponent, entity: entity, name: name})
}

// RemoveEntity queues an entity removal. Descendants are removed too unless
// opts disables cascading.
func (c *Commands) RemoveEntity(entity EntityId, opts ...RemoveOptions) {
	c.queue = append(c.queue, command{kind: cmdRemoveEntity, entity: entity, cascade: cascadeOf(opts)})
}

// SetParent queues a parent assignment.
func (c *Commands) SetParent(child, parent EntityId) {
	c.queue = append(c.queue, command{kind: cmdSetParent, entity: child, parent: parent})
}

// RemoveParent queues detaching child from its parent.
func (c *Commands) RemoveParent(child EntityId) {
	c.queue = append(c.queue, command{kind: cmdRemoveParent, entity: child})
}

// MarkChanged queues a change-sequence bump.
func (c *Commands) MarkChanged(entity EntityId, name string) {
	c.queue = append(c.queue, command{kind: cmdMarkChanged, entity: entity, name: name})
}

// Defer queues a function execution operation.
func (c *Commands) Defer(fn func()) {
	c.queue = append(c.queue, command{kind: cmdDefer, fn: fn})
}

// Flush applies all queued commands in FIFO order and resets the buffer.
// Commands whose target entity no longer exists are skipped; every other
// failure is collected and returned once the queue is drained.
func (c *Commands) Flush() error {
	var errs []error
	for len(c.queue) > 0 {
		queue := c.queue
		c.queue = nil
		for _, cmd := range queue {
			err := c.apply(cmd)
			if err == nil {
				continue
			}
			if errors.Is(err, ErrEntityNotFound) {
				c.rt.logger.Debug("skipping command for missing entity",
					zap.Stringer("command", cmd.kind),
					zap.Uint64("entity", uint64(cmd.entity)))
				continue
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Commands) apply(cmd command) error {
	rt := c.rt
	switch cmd.kind {
	case cmdSpawn:
		return rt.storage.spawnWithId(cmd.entity, cmd.components)
	case cmdAddComponent:
		return rt.storage.AddComponent(cmd.entity, cmd.value)
	case cmdAddNamed:
		return rt.storage.AddNamed(cmd.entity, cmd.name, cmd.value)
	case cmdRemoveComponent:
		rt.storage.RemoveComponent(cmd.entity, cmd.name)
	case cmdRemoveEntity:
		_, err := rt.RemoveEntity(cmd.entity, RemoveOptions{Cascade: cmd.cascade})
		return err
	case cmdSetParent:
		return rt.SetParent(cmd.entity, cmd.parent)
	case cmdRemoveParent:
		_, err := rt.RemoveParent(cmd.entity)
		return err
	case cmdMarkChanged:
		rt.storage.MarkChanged(cmd.entity, cmd.name)
	case cmdDefer:
		cmd.fn()
	}
	return nil
}
