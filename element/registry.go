package element

import (
	"fmt"
	"sync"
)

// Factory returns a new empty instance of one concrete element type.
type Factory func() Element

// Registry maps short forms to factories. Populate it at startup, then Seal it;
// lookups are safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[ShortForm]Factory
	sealed    bool
}

// NewRegistry returns a registry holding the MAL built-in attributes and
// structures together with their lists.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[ShortForm]Factory, 64)}
	registerBuiltins(r)
	return r
}

// NewEmptyRegistry returns a registry without any entry.
func NewEmptyRegistry() *Registry {
	return &Registry{factories: make(map[ShortForm]Factory)}
}

// Register binds a factory to a short form.
func (r *Registry) Register(sf ShortForm, factory Factory) error {
	if factory == nil {
		return ErrNilFactory
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return ErrRegistrySealed
	}
	if _, ok := r.factories[sf]; ok {
		return ErrDuplicate{sf: sf}
	}
	r.factories[sf] = factory
	return nil
}

// MustRegister is Register for init-time wiring; it panics on error.
func (r *Registry) MustRegister(sf ShortForm, factory Factory) {
	if err := r.Register(sf, factory); err != nil {
		panic(err)
	}
}

// Seal forbids further registrations.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Create returns an empty instance for sf. A list short form whose item type
// is registered yields a generic List.
func (r *Registry) Create(sf ShortForm) (Element, error) {
	r.mu.RLock()
	f, ok := r.factories[sf]
	if !ok && sf.IsList() {
		_, ok = r.factories[sf.Item()]
		r.mu.RUnlock()
		if ok {
			return NewList(sf.Item()), nil
		}
		return nil, fmt.Errorf("%w: %#x", ErrNotRegistered, int64(sf))
	}
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %#x", ErrNotRegistered, int64(sf))
	}
	return f(), nil
}

// Len returns the number of registered factories.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.factories)
}

func registerBuiltins(r *Registry) {
	for t := uint8(1); t <= AttributeTypeCount; t++ {
		r.factories[AttributeShortForm(t)] = func() Element { return NewAttribute(t) }
	}
	r.factories[IdentifierListShortForm] = func() Element { return &IdentifierList{} }
	r.factories[AttributeListShortForm] = func() Element { return &AttributeList{} }
	r.factories[UpdateHeaderShortForm] = func() Element { return &UpdateHeader{} }
	r.factories[UpdateHeaderListShortForm] = func() Element { return &UpdateHeaderList{} }
	r.factories[SubscriptionFilterShortForm] = func() Element { return &SubscriptionFilter{} }
	r.factories[SubscriptionFilterListShortForm] = func() Element { return &SubscriptionFilterList{} }
	r.factories[SubscriptionShortForm] = func() Element { return &Subscription{} }
	r.factories[NamedValueShortForm] = func() Element { return &NamedValue{} }
	r.factories[NamedValueListShortForm] = func() Element { return &NamedValueList{} }
}
