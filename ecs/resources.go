package ecs

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ResourceStatus is the load state of a resource.
type ResourceStatus uint8

const (
	ResourceMissing ResourceStatus = iota
	ResourcePending
	ResourceLoading
	ResourceReady
	ResourceFailed
)

func (s ResourceStatus) String() string {
	switch s {
	case ResourcePending:
		return "pending"
	case ResourceLoading:
		return "loading"
	case ResourceReady:
		return "ready"
	case ResourceFailed:
		return "failed"
	default:
		return "missing"
	}
}

// ResourceFactory builds a resource value. It may block; it runs outside the
// simulation loop.
type ResourceFactory func(ctx context.Context) (any, error)

type resourceEntry struct {
	value   any
	factory ResourceFactory
	status  ResourceStatus
	err     error
}

// Resources is a keyed container of runtime-wide values that are not attached
// to any entity. Values may be given directly or produced by factories that
// are loaded later; a failed load is recorded and can be retried.
type Resources struct {
	mu      sync.Mutex
	entries map[string]*resourceEntry
	order   []string
	types   map[string]reflect.Type
	logger  *zap.Logger
}

// NewResources creates an empty container.
func NewResources(logger *zap.Logger) *Resources {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resources{
		entries: make(map[string]*resourceEntry),
		types:   make(map[string]reflect.Type),
		logger:  logger,
	}
}

func (r *Resources) declare(name string, typ reflect.Type) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.types[name]; ok && existing != typ {
		return fmt.Errorf("%w: resource %q is %s, not %s", ErrContractConflict, name, existing, typ)
	}
	r.types[name] = typ
	return nil
}

func (r *Resources) checkType(name string, value any) error {
	typ, ok := r.types[name]
	if !ok || reflect.TypeOf(value) == typ {
		return nil
	}
	return fmt.Errorf("%w: resource %q expects %s, got %T", ErrContractConflict, name, typ, value)
}

func (r *Resources) entry(name string) *resourceEntry {
	e, ok := r.entries[name]
	if !ok {
		e = &resourceEntry{}
		r.entries[name] = e
		r.order = append(r.order, name)
	}
	return e
}

// Add stores value under name, replacing any previous value or factory.
func (r *Resources) Add(name string, value any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkType(name, value); err != nil {
		return err
	}
	e := r.entry(name)
	*e = resourceEntry{value: value, status: ResourceReady}
	return nil
}

// AddFactory registers a factory under name. The value is produced by Load
// or LoadAll.
func (r *Resources) AddFactory(name string, factory ResourceFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.entry(name)
	*e = resourceEntry{factory: factory, status: ResourcePending}
}

// Get returns the value of a ready resource.
func (r *Resources) Get(name string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok || e.status != ResourceReady {
		return nil, false
	}
	return e.value, true
}

// Has reports whether name holds a ready value.
func (r *Resources) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Remove deletes a resource.
func (r *Resources) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[name]; !ok {
		return false
	}
	delete(r.entries, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Status returns the load state of name and the last load error, if any.
func (r *Resources) Status(name string) (ResourceStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		return ResourceMissing, nil
	}
	return e.status, e.err
}

// Names returns all resource names in insertion order.
func (r *Resources) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

// Load runs the factory of name if it is pending or failed. A failure is
// recorded on the resource and returned; a later Load retries.
func (r *Resources) Load(ctx context.Context, name string) error {
	r.mu.Lock()
	e, ok := r.entries[name]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrResourceNotFound, name)
	}
	if e.factory == nil || e.status == ResourceReady || e.status == ResourceLoading {
		r.mu.Unlock()
		return nil
	}
	e.status = ResourceLoading
	factory := e.factory
	r.mu.Unlock()

	value, err := factory(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		err = r.checkType(name, value)
	}
	if err != nil {
		e.status = ResourceFailed
		e.err = err
		r.logger.Warn("resource load failed", zap.String("resource", name), zap.Error(err))
		return fmt.Errorf("resource %q: %w", name, err)
	}
	e.value = value
	e.status = ResourceReady
	e.err = nil
	r.logger.Debug("resource loaded", zap.String("resource", name))
	return nil
}

// LoadAll loads every pending or failed resource concurrently and waits for
// all of them. Individual failures are recorded per resource and joined into
// the returned error; they never stop the other loads.
func (r *Resources) LoadAll(ctx context.Context) error {
	names := r.Names()

	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		g.Go(func() error {
			if err := r.Load(gctx, name); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return errors.Join(errs...)
}

// Resource returns the ready resource name as a T.
func Resource[T any](r *Resources, name string) (T, bool) {
	var zero T
	value, ok := r.Get(name)
	if !ok {
		return zero, false
	}
	typed, ok := value.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}
