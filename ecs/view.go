package ecs

import (
	"iter"
	"reflect"
	"unsafe"
)

// iface represents the internal memory layout of an interface{}.
type iface struct {
	typ  unsafe.Pointer
	data unsafe.Pointer
}

var entityIdType = reflect.TypeFor[EntityId]()

// View fills a struct of component pointers for an entity.
// Pointer fields name component types; embedded fields are always required,
// named fields can be marked optional with the `ecs:"optional"` struct tag.
// A field of type EntityId receives the entity id.
type View[T any] struct {
	storage     *Storage
	infos       []*componentInfo
	optional    []bool
	fieldOffset []uintptr
	idOffset    uintptr
	hasId       bool
	query       *CompiledQuery
}

// NewView creates (or returns the cached) view for the struct type T.
// It panics if T is not a struct of pointers to registered components.
func NewView[T any](storage *Storage) *View[T] {
	structType := reflect.TypeFor[T]()
	if cached, ok := storage.views[structType]; ok {
		return cached.(*View[T])
	}

	if structType.Kind() != reflect.Struct {
		panic("View type parameter must be a struct")
	}

	v := &View[T]{storage: storage}
	var required []string
	for i := 0; i < structType.NumField(); i++ {
		field := structType.Field(i)
		fieldType := field.Type

		if fieldType == entityIdType {
			v.hasId = true
			v.idOffset = field.Offset
			continue
		}
		if fieldType.Kind() != reflect.Ptr {
			panic("View struct fields must be pointer types or EntityId")
		}

		info, ok := storage.registry.byType[fieldType.Elem()]
		if !ok {
			panic("component type " + fieldType.Elem().String() + " not registered")
		}

		isOptional := false
		if !field.Anonymous {
			tag := field.Tag.Get("ecs")
			if tag != "" {
				if tag == "optional" {
					isOptional = true
				} else {
					panic("invalid ecs tag value: \"" + tag + "\" (only \"optional\" is supported)")
				}
			}
		}

		v.infos = append(v.infos, info)
		v.optional = append(v.optional, isOptional)
		v.fieldOffset = append(v.fieldOffset, field.Offset)
		if !isOptional {
			required = append(required, info.name)
		}
	}

	q, err := newQueryCache(storage).Compile(Filter{With: required})
	if err != nil {
		panic(err.Error())
	}
	v.query = q
	storage.views[structType] = v
	return v
}

// Fill populates the provided struct pointer with component data for the
// given entity. Returns false if the entity is missing any required component.
func (v *View[T]) Fill(id EntityId, ptr *T) bool {
	if !v.storage.Exists(id) {
		return false
	}

	// Use unsafe.Pointer to directly access the struct's memory
	// This avoids reflection overhead in the hot path
	structPtr := unsafe.Pointer(ptr)
	if v.hasId {
		*(*EntityId)(unsafe.Add(structPtr, v.idOffset)) = id
	}

	for i, info := range v.infos {
		fieldPtr := unsafe.Add(structPtr, v.fieldOffset[i])
		component, ok := v.storage.getInfo(id, info)
		if !ok {
			if !v.optional[i] {
				return false
			}
			*(*unsafe.Pointer)(fieldPtr) = nil
			continue
		}
		componentPtr := (*iface)(unsafe.Pointer(&component)).data
		*(*unsafe.Pointer)(fieldPtr) = componentPtr
	}
	return true
}

// Get returns a populated view struct for the given entity, or nil if the
// entity doesn't have all the required components.
func (v *View[T]) Get(id EntityId) *T {
	var result T
	if !v.Fill(id, &result) {
		return nil
	}
	return &result
}

// Iter returns an iterator over every entity that has all the required
// components of the view.
func (v *View[T]) Iter() iter.Seq2[EntityId, T] {
	return func(yield func(EntityId, T) bool) {
		var ids []EntityId
		v.query.candidates(v.storage, func(id EntityId) {
			if v.query.matchesStructure(v.storage, id) {
				ids = append(ids, id)
			}
		})
		v.yieldAll(ids, yield)
	}
}

func (v *View[T]) yieldAll(ids []EntityId, yield func(EntityId, T) bool) {
	var result T
	for _, id := range ids {
		if !v.Fill(id, &result) {
			continue
		}
		if !yield(id, result) {
			return
		}
	}
}

// Each iterates a query result as view structs of type T. Entities that no
// longer have the required components are skipped.
func Each[T any](result QueryResult) iter.Seq2[EntityId, T] {
	v := NewView[T](result.storage)
	return func(yield func(EntityId, T) bool) {
		v.yieldAll(result.Entities, yield)
	}
}
