package ecs

import (
	"errors"
	"fmt"
	"slices"

	"github.com/kamstrup/intmap"
)

// EventHierarchyChanged is the event name under which parent changes are
// published. The payload is a HierarchyChangedEvent.
const EventHierarchyChanged = "hierarchyChanged"

// HierarchyChangedEvent describes one successful parent change. A zero
// OldParent or NewParent means the entity was (or became) a root.
type HierarchyChangedEvent struct {
	EntityId  EntityId
	OldParent EntityId
	NewParent EntityId
}

// Hierarchy is a parent/child adjacency index over entity ids. It knows
// nothing about components; at most one parent per entity and no cycles.
type Hierarchy struct {
	parents  *intmap.Map[EntityId, EntityId]
	children *intmap.Map[EntityId, []EntityId]
	notify   func(HierarchyChangedEvent) error
}

// NewHierarchy creates an empty hierarchy. notify may be nil.
func NewHierarchy(notify func(HierarchyChangedEvent) error) *Hierarchy {
	return &Hierarchy{
		parents:  intmap.New[EntityId, EntityId](256),
		children: intmap.New[EntityId, []EntityId](256),
		notify:   notify,
	}
}

func (h *Hierarchy) emit(ev HierarchyChangedEvent) error {
	if h.notify == nil {
		return nil
	}
	return h.notify(ev)
}

// SetParent makes parent the parent of child, appending child to the end of
// parent's children. Self-parenting and cycles are rejected before any state
// changes. Reassigning to the current parent is a no-op.
func (h *Hierarchy) SetParent(child, parent EntityId) error {
	if child == parent {
		return fmt.Errorf("%w: %d", ErrSelfParent, child)
	}
	if !child.Valid() || !parent.Valid() {
		return fmt.Errorf("%w: invalid id in %d -> %d", ErrEntityNotFound, child, parent)
	}
	for ancestor := parent; ancestor.Valid(); ancestor = h.GetParent(ancestor) {
		if ancestor == child {
			return fmt.Errorf("%w: %d is an ancestor of %d", ErrCircularReference, child, parent)
		}
	}

	old := h.GetParent(child)
	if old == parent {
		return nil
	}
	if old.Valid() {
		h.unlink(old, child)
	}
	h.parents.Put(child, parent)
	kids, _ := h.children.Get(parent)
	h.children.Put(parent, append(kids, child))

	return h.emit(HierarchyChangedEvent{EntityId: child, OldParent: old, NewParent: parent})
}

func (h *Hierarchy) unlink(parent, child EntityId) {
	kids, _ := h.children.Get(parent)
	kids = slices.DeleteFunc(kids, func(id EntityId) bool { return id == child })
	if len(kids) == 0 {
		h.children.Del(parent)
	} else {
		h.children.Put(parent, kids)
	}
}

// RemoveParent detaches child from its parent without deleting anything.
// It reports whether an edge existed.
func (h *Hierarchy) RemoveParent(child EntityId) (bool, error) {
	old, ok := h.parents.Get(child)
	if !ok {
		return false, nil
	}
	h.parents.Del(child)
	h.unlink(old, child)
	return true, h.emit(HierarchyChangedEvent{EntityId: child, OldParent: old})
}

// Remove drops every edge touching id. Its children become roots.
func (h *Hierarchy) Remove(id EntityId) error {
	var errs []error
	if _, err := h.RemoveParent(id); err != nil {
		errs = append(errs, err)
	}
	kids, _ := h.children.Get(id)
	h.children.Del(id)
	for _, kid := range kids {
		h.parents.Del(kid)
		if err := h.emit(HierarchyChangedEvent{EntityId: kid, OldParent: id}); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// GetParent returns the parent of id, or NoEntity for a root.
func (h *Hierarchy) GetParent(id EntityId) EntityId {
	parent, ok := h.parents.Get(id)
	if !ok {
		return NoEntity
	}
	return parent
}

// GetChildren returns the children of id in insertion order.
func (h *Hierarchy) GetChildren(id EntityId) []EntityId {
	kids, _ := h.children.Get(id)
	return slices.Clone(kids)
}

// GetChildAt returns the child at index i.
func (h *Hierarchy) GetChildAt(id EntityId, i int) (EntityId, bool) {
	kids, _ := h.children.Get(id)
	if i < 0 || i >= len(kids) {
		return NoEntity, false
	}
	return kids[i], true
}

// GetChildIndex returns the position of child among parent's children, or -1.
func (h *Hierarchy) GetChildIndex(parent, child EntityId) int {
	kids, _ := h.children.Get(parent)
	return slices.Index(kids, child)
}

// GetAncestors returns [parent, grandparent, ...] up to the root.
func (h *Hierarchy) GetAncestors(id EntityId) []EntityId {
	var out []EntityId
	for p := h.GetParent(id); p.Valid(); p = h.GetParent(p) {
		out = append(out, p)
	}
	return out
}

// GetDescendants returns the subtree below id in depth-first pre-order.
func (h *Hierarchy) GetDescendants(id EntityId) []EntityId {
	var out []EntityId
	stack := h.GetChildren(id)
	slices.Reverse(stack)
	for len(stack) > 0 {
		next := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, next)

		kids, _ := h.children.Get(next)
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, kids[i])
		}
	}
	return out
}

// GetRoot returns the topmost ancestor of id, or id itself when it has no parent.
func (h *Hierarchy) GetRoot(id EntityId) EntityId {
	root := id
	for p := h.GetParent(root); p.Valid(); p = h.GetParent(p) {
		root = p
	}
	return root
}

// GetSiblings returns the other children of id's parent.
func (h *Hierarchy) GetSiblings(id EntityId) []EntityId {
	parent := h.GetParent(id)
	if !parent.Valid() {
		return nil
	}
	kids, _ := h.children.Get(parent)
	out := make([]EntityId, 0, len(kids))
	for _, kid := range kids {
		if kid != id {
			out = append(out, kid)
		}
	}
	return out
}

// IsDescendantOf reports whether ancestor appears on id's ancestor chain.
func (h *Hierarchy) IsDescendantOf(id, ancestor EntityId) bool {
	for p := h.GetParent(id); p.Valid(); p = h.GetParent(p) {
		if p == ancestor {
			return true
		}
	}
	return false
}

// IsAncestorOf reports whether id is an ancestor of descendant.
func (h *Hierarchy) IsAncestorOf(id, descendant EntityId) bool {
	return h.IsDescendantOf(descendant, id)
}

// GetRootEntities returns, sorted by id, all entities that have children but
// no parent.
func (h *Hierarchy) GetRootEntities() []EntityId {
	var out []EntityId
	h.children.ForEach(func(id EntityId, _ []EntityId) bool {
		if !h.parents.Has(id) {
			out = append(out, id)
		}
		return true
	})
	slices.Sort(out)
	return out
}

// Len returns the number of parent edges.
func (h *Hierarchy) Len() int {
	return h.parents.Len()
}
