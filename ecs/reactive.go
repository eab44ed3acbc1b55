package ecs

import (
	"fmt"
	"slices"

	"github.com/kamstrup/intmap"
)

// ReactiveQueryDef declares a persistent query with membership callbacks.
// OnEnter receives a snapshot of the entity's With components keyed by name.
// OnExit receives the id only, since the components may already be gone.
type ReactiveQueryDef struct {
	With    []string
	Without []string
	OnEnter func(id EntityId, components map[string]any)
	OnExit  func(id EntityId)
}

type reactiveQuery struct {
	name    string
	query   *CompiledQuery
	def     ReactiveQueryDef
	members *intmap.Map[EntityId, struct{}]
	removed bool
}

// queryEngine tracks which entities were touched since the last evaluation
// and diffs reactive query membership for exactly those entities.
type queryEngine struct {
	storage    *Storage
	cache      *queryCache
	reactive   []*reactiveQuery
	byName     map[string]*reactiveQuery
	dirty      *intmap.Map[EntityId, struct{}]
	dirtyOrder []EntityId
}

func newQueryEngine(storage *Storage) *queryEngine {
	e := &queryEngine{
		storage: storage,
		cache:   newQueryCache(storage),
		byName:  make(map[string]*reactiveQuery),
		dirty:   intmap.New[EntityId, struct{}](256),
	}
	storage.Observe(e.markDirty)
	return e
}

func (e *queryEngine) markDirty(id EntityId) {
	if len(e.reactive) == 0 {
		return
	}
	if e.dirty.Has(id) {
		return
	}
	e.dirty.Put(id, struct{}{})
	e.dirtyOrder = append(e.dirtyOrder, id)
}

// entities runs a one-shot query without change filtering.
func (e *queryEngine) entities(with, without []string) ([]EntityId, error) {
	q, err := e.cache.Compile(Filter{With: with, Without: without})
	if err != nil {
		return nil, err
	}
	return newQueryState(q).Collect(e.storage), nil
}

// addReactive registers a reactive query. Entities that already match enter
// immediately.
func (e *queryEngine) addReactive(name string, def ReactiveQueryDef) error {
	if _, ok := e.byName[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateReactiveQuery, name)
	}
	q, err := e.cache.Compile(Filter{With: def.With, Without: def.Without})
	if err != nil {
		return fmt.Errorf("reactive query %q: %w", name, err)
	}

	rq := &reactiveQuery{
		name:    name,
		query:   q,
		def:     def,
		members: intmap.New[EntityId, struct{}](64),
	}
	e.reactive = append(e.reactive, rq)
	e.byName[name] = rq

	var initial []EntityId
	q.candidates(e.storage, func(id EntityId) {
		if q.matchesStructure(e.storage, id) {
			initial = append(initial, id)
		}
	})
	for _, id := range initial {
		e.enter(rq, id)
	}
	return nil
}

func (e *queryEngine) removeReactive(name string) bool {
	rq, ok := e.byName[name]
	if !ok {
		return false
	}
	rq.removed = true
	delete(e.byName, name)
	e.reactive = slices.DeleteFunc(slices.Clone(e.reactive), func(other *reactiveQuery) bool {
		return other == rq
	})
	return true
}

// evaluate diffs membership of every entity touched since the previous call.
// Mutations made by callbacks are picked up by the next evaluation.
func (e *queryEngine) evaluate() {
	if len(e.dirtyOrder) == 0 {
		return
	}
	dirty := e.dirtyOrder
	e.dirtyOrder = nil
	e.dirty.Clear()

	for _, rq := range e.reactive {
		if rq.removed {
			continue
		}
		for _, id := range dirty {
			was := rq.members.Has(id)
			now := rq.query.matchesStructure(e.storage, id)
			switch {
			case now && !was:
				e.enter(rq, id)
			case !now && was:
				rq.members.Del(id)
				if rq.def.OnExit != nil {
					rq.def.OnExit(id)
				}
			}
		}
	}
}

func (e *queryEngine) enter(rq *reactiveQuery, id EntityId) {
	rq.members.Put(id, struct{}{})
	if rq.def.OnEnter == nil {
		return
	}
	snapshot := make(map[string]any, len(rq.query.with))
	for _, info := range rq.query.with {
		if comp, ok := e.storage.getInfo(id, info); ok {
			snapshot[info.name] = comp
		}
	}
	rq.def.OnEnter(id, snapshot)
}

// members returns the current membership of a reactive query.
func (e *queryEngine) members(name string) ([]EntityId, bool) {
	rq, ok := e.byName[name]
	if !ok {
		return nil, false
	}
	out := make([]EntityId, 0, rq.members.Len())
	rq.members.ForEach(func(id EntityId, _ struct{}) bool {
		out = append(out, id)
		return true
	})
	slices.Sort(out)
	return out, true
}
