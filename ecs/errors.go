package ecs

import "errors"

var (
	ErrEntityNotFound         = errors.New("ecs: entity not found")
	ErrComponentNotRegistered = errors.New("ecs: component not registered")
	ErrComponentType          = errors.New("ecs: component value has wrong type")
	ErrInvalidFilter          = errors.New("ecs: invalid query filter")

	ErrSelfParent        = errors.New("ecs: entity cannot be its own parent")
	ErrCircularReference = errors.New("ecs: parent assignment would create a cycle")

	ErrRequiredSelf      = errors.New("ecs: component cannot require itself")
	ErrRequiredDuplicate = errors.New("ecs: required component already registered")
	ErrRequiredCycle     = errors.New("ecs: required components form a cycle")

	ErrDuplicateSystem = errors.New("ecs: system label already registered")
	ErrSystemNotFound  = errors.New("ecs: system not found")
	ErrUnknownPhase    = errors.New("ecs: unknown phase")

	ErrDuplicateReactiveQuery = errors.New("ecs: reactive query already registered")

	ErrEventType        = errors.New("ecs: event payload has wrong type")
	ErrContractConflict = errors.New("ecs: conflicting contract declaration")

	ErrResourceNotFound = errors.New("ecs: resource not found")
	ErrInvalidConfig    = errors.New("ecs: invalid config")
)
