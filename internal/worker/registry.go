package worker

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/seantiz/parcheck/internal/model"
)

// CheckFunc is a task body. It runs inside a worker process, or inline in the
// caller when parallelism is disabled. Terminating the process instead of
// returning is reported as an abnormal exit.
type CheckFunc func(ctx context.Context, task model.Task) model.Result

// InitFunc runs once per worker before the task body. A non-nil error ends the
// worker as an abnormal exit.
type InitFunc func() error

// Registry maps check kinds and init hook names to their implementations.
// The coordinator and its workers must be built with the same registry, since
// only names cross the process boundary.
type Registry struct {
	mu     sync.RWMutex
	checks map[string]CheckFunc
	inits  map[string]InitFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		checks: make(map[string]CheckFunc),
		inits:  make(map[string]InitFunc),
	}
}

// RegisterCheck adds a check kind. Registering a kind twice replaces it.
func (r *Registry) RegisterCheck(kind string, fn CheckFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks[kind] = fn
}

// RegisterInit adds a named init hook.
func (r *Registry) RegisterInit(name string, fn InitFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inits[name] = fn
}

// Check returns the body registered for kind.
func (r *Registry) Check(kind string) (CheckFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.checks[kind]
	if !ok {
		return nil, fmt.Errorf("check kind %q is not registered", kind)
	}
	return fn, nil
}

// Init returns the hook registered as name.
func (r *Registry) Init(name string) (InitFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.inits[name]
	if !ok {
		return nil, fmt.Errorf("init hook %q is not registered", name)
	}
	return fn, nil
}

// Kinds returns the registered check kinds, sorted for a stable listing.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.checks)
}

// Inits returns the registered init hook names, sorted.
func (r *Registry) Inits() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.inits)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
