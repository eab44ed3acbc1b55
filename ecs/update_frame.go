package ecs

import "reflect"

// UpdateFrame is what a system's process function sees for one tick.
type UpdateFrame struct {
	DeltaTime float64
	Phase     string
	Commands  *Commands
	Runtime   *Runtime
	queries   map[string]QueryResult
}

func newUpdateFrame(dt float64, phase string, rt *Runtime) *UpdateFrame {
	return &UpdateFrame{
		DeltaTime: dt,
		Phase:     phase,
		Commands:  rt.commands,
		Runtime:   rt,
		queries:   make(map[string]QueryResult),
	}
}

// Query returns the result of the named query of the running system. An
// unknown name yields an empty result.
func (f *UpdateFrame) Query(name string) QueryResult {
	if res, ok := f.queries[name]; ok {
		return res
	}
	return QueryResult{Name: name, storage: f.Runtime.storage}
}

// ComponentOf implements ComponentReader.
func (f *UpdateFrame) ComponentOf(id EntityId, typ reflect.Type) (any, bool) {
	return f.Runtime.storage.ComponentOf(id, typ)
}
