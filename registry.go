package xmal

import (
	"errors"
	"sort"
	"sync"
)

// factories is a name -> factory table shared by transports and codecs.
type factories[F any] struct {
	mu sync.RWMutex
	m  map[string]F
}

func (r *factories[F]) register(name string, f F, isNil bool) error {
	if name == "" {
		return errors.New("xmal: factory name must not be empty")
	}
	if isNil {
		return errors.New("xmal: factory must not be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.m == nil {
		r.m = make(map[string]F)
	}
	r.m[name] = f
	return nil
}

func (r *factories[F]) lookup(name string) (F, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.m[name]
	return f, ok
}

func (r *factories[F]) names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.m))
	for n := range r.m {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
