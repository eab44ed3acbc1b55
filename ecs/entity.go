package ecs

// EntityId is an opaque entity handle. A Storage allocates ids from 1 upwards
// and never reuses them, so an id is valid exactly as long as it is present
// in the storage.
type EntityId uint64

// NoEntity is the "no entity" sentinel, returned for example as the parent of
// a root entity.
const NoEntity EntityId = 0

// Valid reports whether e is not the NoEntity sentinel. It does not check
// whether the entity is alive.
func (e EntityId) Valid() bool {
	return e != NoEntity
}
