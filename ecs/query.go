package ecs

import (
	"fmt"
	"slices"

	"github.com/cespare/xxhash/v2"
)

// Filter declares which entities a query matches: all of With, none of
// Without, and, for each name in Changed (a subset of With), a component
// written since the query last read it.
type Filter struct {
	With    []string
	Without []string
	Changed []string
}

// CompiledQuery is a normalized filter bound to component registrations.
// It carries no read state, so one compiled query may back several
// QueryStates.
type CompiledQuery struct {
	key     uint64
	filter  Filter
	with    []*componentInfo
	without []*componentInfo
	changed []*componentInfo
}

// Filter returns the normalized filter: sorted, duplicates removed.
func (q *CompiledQuery) Filter() Filter {
	return q.filter
}

// Key returns the cache key of the compiled query.
func (q *CompiledQuery) Key() uint64 {
	return q.key
}

func normalizeFilter(f Filter) (Filter, error) {
	n := Filter{
		With:    sortedNames(f.With),
		Without: sortedNames(f.Without),
		Changed: sortedNames(f.Changed),
	}
	for _, name := range n.Changed {
		if _, found := slices.BinarySearch(n.With, name); !found {
			return n, fmt.Errorf("%w: changed component %q is not in with", ErrInvalidFilter, name)
		}
	}
	for _, name := range n.Without {
		if _, found := slices.BinarySearch(n.With, name); found {
			return n, fmt.Errorf("%w: %q is both required and excluded", ErrInvalidFilter, name)
		}
	}
	return n, nil
}

func filterKey(f Filter) uint64 {
	d := xxhash.New()
	for _, part := range []struct {
		tag   string
		names []string
	}{{"w", f.With}, {"x", f.Without}, {"c", f.Changed}} {
		_, _ = d.WriteString(part.tag)
		for _, name := range part.names {
			_, _ = d.WriteString("\x00")
			_, _ = d.WriteString(name)
		}
		_, _ = d.WriteString("\x01")
	}
	return d.Sum64()
}

// queryCache compiles filters once per storage and hands out the cached
// result for equal filters. Filters whose keys collide share a bucket.
type queryCache struct {
	storage  *Storage
	compiled map[uint64][]*CompiledQuery
}

func newQueryCache(storage *Storage) *queryCache {
	return &queryCache{
		storage:  storage,
		compiled: make(map[uint64][]*CompiledQuery),
	}
}

// Compile normalizes and validates f and binds it to the registry.
func (c *queryCache) Compile(f Filter) (*CompiledQuery, error) {
	n, err := normalizeFilter(f)
	if err != nil {
		return nil, err
	}
	key := filterKey(n)
	for _, q := range c.compiled[key] {
		if q.filter.equal(n) {
			return q, nil
		}
	}

	reg := c.storage.registry
	q := &CompiledQuery{key: key, filter: n}
	if q.with, err = reg.lookupAll(n.With); err != nil {
		return nil, err
	}
	if q.without, err = reg.lookupAll(n.Without); err != nil {
		return nil, err
	}
	if q.changed, err = reg.lookupAll(n.Changed); err != nil {
		return nil, err
	}
	c.compiled[key] = append(c.compiled[key], q)
	return q, nil
}

func (f Filter) equal(other Filter) bool {
	return slices.Equal(f.With, other.With) &&
		slices.Equal(f.Without, other.Without) &&
		slices.Equal(f.Changed, other.Changed)
}

// matchesStructure checks component presence only.
func (q *CompiledQuery) matchesStructure(s *Storage, id EntityId) bool {
	if !s.Exists(id) {
		return false
	}
	for _, info := range q.with {
		if !s.hasInfo(id, info) {
			return false
		}
	}
	for _, info := range q.without {
		if s.hasInfo(id, info) {
			return false
		}
	}
	return true
}

// candidates iterates the smallest index that every match must be part of.
func (q *CompiledQuery) candidates(s *Storage, yield func(EntityId)) {
	if len(q.with) == 0 {
		for id := range s.Entities() {
			yield(id)
		}
		return
	}

	var smallest iComponentStorage
	for _, info := range q.with {
		col := s.peekColumn(info)
		if col == nil {
			return
		}
		if smallest == nil || col.Len() < smallest.Len() {
			smallest = col
		}
	}
	for id := range smallest.Iter() {
		yield(id)
	}
}

// QueryState pairs a compiled query with the change watermarks of one
// consumer. Watermarks are per component and never shared between states.
type QueryState struct {
	query      *CompiledQuery
	watermarks map[int]uint64
}

func newQueryState(q *CompiledQuery) *QueryState {
	return &QueryState{
		query:      q,
		watermarks: make(map[int]uint64, len(q.changed)),
	}
}

// Query returns the compiled query behind the state.
func (qs *QueryState) Query() *CompiledQuery {
	return qs.query
}

// Match reports whether id currently matches, without advancing watermarks.
func (qs *QueryState) Match(s *Storage, id EntityId) bool {
	if !qs.query.matchesStructure(s, id) {
		return false
	}
	for _, info := range qs.query.changed {
		seq, _ := s.peekColumn(info).Seq(id)
		if seq <= qs.watermarks[info.id] {
			return false
		}
	}
	return true
}

// Collect returns every matching entity and moves the watermarks of the
// changed components up to the current storage sequence.
func (qs *QueryState) Collect(s *Storage) []EntityId {
	var out []EntityId
	qs.query.candidates(s, func(id EntityId) {
		if qs.Match(s, id) {
			out = append(out, id)
		}
	})
	for _, info := range qs.query.changed {
		qs.watermarks[info.id] = s.CurrentSeq()
	}
	return out
}

// QueryResult is the entity list a query produced for one read.
type QueryResult struct {
	Name     string
	Entities []EntityId
	storage  *Storage
}

// Len returns the number of matched entities.
func (r QueryResult) Len() int {
	return len(r.Entities)
}

// Iter iterates over the matched entities.
func (r QueryResult) Iter() func(yield func(EntityId) bool) {
	return func(yield func(EntityId) bool) {
		for _, id := range r.Entities {
			if !yield(id) {
				return
			}
		}
	}
}

// Storage returns the storage the result was read from.
func (r QueryResult) Storage() *Storage {
	return r.storage
}
