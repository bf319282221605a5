package zoom

import (
	"runtime"
	"sync"
	"weak"
)

// Registry remembers which nodes are initialized without keeping them
// alive. An entry disappears once its node is garbage collected.
type Registry[T any] struct {
	mu      sync.Mutex
	entries map[weak.Pointer[T]]struct{}
}

// Add marks p as initialized. It returns false if p was already marked.
func (r *Registry[T]) Add(p *T) bool {
	key := weak.Make(p)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries == nil {
		r.entries = make(map[weak.Pointer[T]]struct{})
	}
	if _, ok := r.entries[key]; ok {
		return false
	}
	r.entries[key] = struct{}{}
	runtime.AddCleanup(p, r.remove, key)
	return true
}

// Contains reports whether p is marked.
func (r *Registry[T]) Contains(p *T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[weak.Make(p)]
	return ok
}

// Len returns the number of live entries.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry[T]) remove(key weak.Pointer[T]) {
	r.mu.Lock()
	delete(r.entries, key)
	r.mu.Unlock()
}
