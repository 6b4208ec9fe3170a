package bootstrap

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrNotRegistered     = errors.New("not registered")
	ErrAlreadyRegistered = errors.New("already registered")
	ErrSelfDependency    = errors.New("depends on itself")
	ErrTypeMismatch      = errors.New("type mismatch")
)

// DefaultContainer holds the node's shared components under well-known keys.
// Lazily built entries come from factories; the services publish what they
// start with Set and withdraw it again on Stop.
type DefaultContainer struct {
	mu        sync.Mutex
	factories map[string]ServiceFactory
	values    map[string]any
	building  map[string]bool
}

func NewContainer() *DefaultContainer {
	return &DefaultContainer{
		factories: make(map[string]ServiceFactory),
		values:    make(map[string]any),
		building:  make(map[string]bool),
	}
}

// Register adds a factory. A key can be bound once.
func (c *DefaultContainer) Register(name string, factory ServiceFactory) error {
	if name == "" || factory == nil {
		return fmt.Errorf("register %q: empty name or nil factory", name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.factories[name]; ok {
		return fmt.Errorf("%s: %w", name, ErrAlreadyRegistered)
	}
	c.factories[name] = factory
	return nil
}

// Set binds name to v, replacing any earlier value. A nil v removes it.
func (c *DefaultContainer) Set(name string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v == nil {
		delete(c.values, name)
		return
	}
	c.values[name] = v
}

// Resolve returns the value bound to name, running its factory the first
// time. Factories run without the lock held so they can resolve others.
func (c *DefaultContainer) Resolve(name string) (any, error) {
	c.mu.Lock()
	if v, ok := c.values[name]; ok {
		c.mu.Unlock()
		return v, nil
	}
	factory, ok := c.factories[name]
	if !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", name, ErrNotRegistered)
	}
	if c.building[name] {
		c.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", name, ErrSelfDependency)
	}
	c.building[name] = true
	c.mu.Unlock()

	v, err := factory(c)

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.building, name)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", name, err)
	}
	if existing, ok := c.values[name]; ok {
		return existing, nil
	}
	c.values[name] = v
	return v, nil
}

func (c *DefaultContainer) Has(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, f := c.factories[name]
	_, v := c.values[name]
	return f || v
}

// Names returns every bound key, sorted.
func (c *DefaultContainer) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	seen := make(map[string]struct{}, len(c.factories)+len(c.values))
	for name := range c.factories {
		seen[name] = struct{}{}
	}
	for name := range c.values {
		seen[name] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveTyped resolves name from c as a T.
func ResolveTyped[T any](c Container, name string) (T, error) {
	var zero T
	v, err := c.Resolve(name)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%s is %T, want %T: %w", name, v, zero, ErrTypeMismatch)
	}
	return t, nil
}
