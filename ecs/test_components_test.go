package ecs_test

import (
	"testing"

	"github.com/plus3/ecsrt/ecs"
	"go.uber.org/zap/zaptest"
)

// Common test component types
type Position struct {
	X, Y float32
}

type Velocity struct {
	DX, DY float32
}

type Name struct {
	Value string
}

type Health struct {
	Current int
	Max     int
}

type PlayerController struct{}

type AI struct {
	State int
}

// Custom primitive types for testing non-struct components
type Score int32
type Tag string
type Temperature float64

type Inventory struct {
	Items []string
}

type Transform struct {
	X, Y float32
}

type RigidBody struct {
	Mass float32
}

type Collider struct {
	Radius float32
}

func newTestRegistry() *ecs.ComponentRegistry {
	registry := ecs.NewComponentRegistry()
	ecs.RegisterComponent[Position](registry)
	ecs.RegisterComponent[Velocity](registry)
	ecs.RegisterComponent[Name](registry)
	ecs.RegisterComponent[Health](registry)
	ecs.RegisterComponent[PlayerController](registry)
	ecs.RegisterComponent[AI](registry)
	ecs.RegisterComponent[Score](registry)
	ecs.RegisterComponent[Tag](registry)
	ecs.RegisterComponent[Temperature](registry)
	ecs.RegisterComponent[Inventory](registry)
	ecs.RegisterComponent[Transform](registry)
	ecs.RegisterComponent[RigidBody](registry)
	ecs.RegisterComponent[Collider](registry)
	return registry
}

func newTestRuntime(t testing.TB, opts ...ecs.Option) *ecs.Runtime {
	t.Helper()
	opts = append([]ecs.Option{ecs.WithLogger(zaptest.NewLogger(t))}, opts...)
	return ecs.NewRuntime(newTestRegistry(), opts...)
}
