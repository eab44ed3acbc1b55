package ecs

import (
	"iter"

	"github.com/kamstrup/intmap"
)

// iComponentStorage is a type-erased per-component storage keyed by entity id.
// Every slot carries the change sequence of its last write.
type iComponentStorage interface {
	Set(id EntityId, item any, seq uint64) bool
	Get(id EntityId) any
	Has(id EntityId) bool
	Delete(id EntityId) bool
	Seq(id EntityId) (uint64, bool)
	Touch(id EntityId, seq uint64) bool
	Len() int
	Iter() iter.Seq[EntityId]
}

const (
	genericBlockSize = 64
)

// genericComponentStorage stores components of type T in fixed-size blocks.
// Blocks are allocated individually so pointers returned by Get stay valid
// until the slot is deleted.
type genericComponentStorage[T any] struct {
	blocks    []*[genericBlockSize]T
	owners    []*[genericBlockSize]EntityId
	seqs      []*[genericBlockSize]uint64
	index     *intmap.Map[EntityId, int]
	freeSlots []int
	nextIndex int
}

func newGenericComponentStorage[T any]() *genericComponentStorage[T] {
	return &genericComponentStorage[T]{
		index: intmap.New[EntityId, int](256),
	}
}

// Set writes the component for id, reusing its slot if it already has one.
func (cs *genericComponentStorage[T]) Set(id EntityId, item any, seq uint64) bool {
	var concreteItem T
	if ptr, ok := item.(*T); ok {
		if ptr == nil {
			return false
		}
		concreteItem = *ptr
	} else if val, ok := item.(T); ok {
		concreteItem = val
	} else {
		return false // Invalid type
	}

	if index, ok := cs.index.Get(id); ok {
		blockIdx, slotIdx := index/genericBlockSize, index%genericBlockSize
		cs.blocks[blockIdx][slotIdx] = concreteItem
		cs.seqs[blockIdx][slotIdx] = seq
		return true
	}

	index := cs.allocate()
	blockIdx, slotIdx := index/genericBlockSize, index%genericBlockSize
	cs.blocks[blockIdx][slotIdx] = concreteItem
	cs.owners[blockIdx][slotIdx] = id
	cs.seqs[blockIdx][slotIdx] = seq
	cs.index.Put(id, index)
	return true
}

func (cs *genericComponentStorage[T]) allocate() int {
	if len(cs.freeSlots) > 0 {
		index := cs.freeSlots[len(cs.freeSlots)-1]
		cs.freeSlots = cs.freeSlots[:len(cs.freeSlots)-1]
		return index
	}

	index := cs.nextIndex
	cs.nextIndex++
	if index/genericBlockSize >= len(cs.blocks) {
		cs.blocks = append(cs.blocks, new([genericBlockSize]T))
		cs.owners = append(cs.owners, new([genericBlockSize]EntityId))
		cs.seqs = append(cs.seqs, new([genericBlockSize]uint64))
	}
	return index
}

// Get returns a pointer to the component of id, or nil.
func (cs *genericComponentStorage[T]) Get(id EntityId) any {
	index, ok := cs.index.Get(id)
	if !ok {
		return nil
	}
	return &cs.blocks[index/genericBlockSize][index%genericBlockSize]
}

func (cs *genericComponentStorage[T]) Has(id EntityId) bool {
	return cs.index.Has(id)
}

// Delete empties the slot of id and zeroes its value.
func (cs *genericComponentStorage[T]) Delete(id EntityId) bool {
	index, ok := cs.index.Get(id)
	if !ok {
		return false
	}
	blockIdx, slotIdx := index/genericBlockSize, index%genericBlockSize

	var zero T
	cs.blocks[blockIdx][slotIdx] = zero
	cs.owners[blockIdx][slotIdx] = NoEntity
	cs.seqs[blockIdx][slotIdx] = 0
	cs.index.Del(id)
	cs.freeSlots = append(cs.freeSlots, index)
	return true
}

func (cs *genericComponentStorage[T]) Seq(id EntityId) (uint64, bool) {
	index, ok := cs.index.Get(id)
	if !ok {
		return 0, false
	}
	return cs.seqs[index/genericBlockSize][index%genericBlockSize], true
}

// Touch stamps a new sequence on the slot of id without writing the value.
func (cs *genericComponentStorage[T]) Touch(id EntityId, seq uint64) bool {
	index, ok := cs.index.Get(id)
	if !ok {
		return false
	}
	cs.seqs[index/genericBlockSize][index%genericBlockSize] = seq
	return true
}

func (cs *genericComponentStorage[T]) Len() int {
	return cs.index.Len()
}

// Iter yields the owners of all filled slots in slot order.
func (cs *genericComponentStorage[T]) Iter() iter.Seq[EntityId] {
	return func(yield func(EntityId) bool) {
		for i := 0; i < cs.nextIndex; i++ {
			owner := cs.owners[i/genericBlockSize][i%genericBlockSize]
			if owner == NoEntity {
				continue
			}
			if !yield(owner) {
				return
			}
		}
	}
}
