// Package entry maps textual "container:name" references to invocable units
// of work.
//
// The registry is populated at process initialization and consulted before
// any process is detached or spawned, so a typo in a daemon definition fails
// synchronously at launch time instead of inside a detached guardian. Parent
// and child processes share one binary, so a reference that resolves in the
// launcher resolves identically in the spawned process.
package entry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"daemonkit/quit"
)

var (
	// ErrNotFound indicates the reference names no registered entry.
	ErrNotFound = errors.New("entry not found")
	// ErrInvalidReference indicates the reference is not "container:name".
	ErrInvalidReference = errors.New("invalid entry reference")
)

// Func is the contract every entry fulfills: it receives the launch spec's
// keyword arguments and the process cancellation token, returns nil on
// success, and returns an error on failure. Long-running entries must poll
// q.Requested() (or use q.Sleep) to honor shutdown.
type Func func(args map[string]any, q *quit.Token) error

// Registry stores entries keyed by "container:name" reference.
type Registry struct {
	mu    sync.RWMutex
	items map[string]Func
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{items: make(map[string]Func)}
}

// Register adds fn under the given container and name. Registering a nil
// function or a duplicate reference is a programming error and panics, the
// same way http.HandleFunc treats duplicate patterns.
func (r *Registry) Register(container, name string, fn Func) {
	ref, err := joinReference(container, name)
	if err != nil {
		panic(fmt.Sprintf("entry: %v", err))
	}
	if fn == nil {
		panic(fmt.Sprintf("entry: nil function for %q", ref))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[ref]; ok {
		panic(fmt.Sprintf("entry: duplicate registration for %q", ref))
	}
	r.items[ref] = fn
}

// Resolve returns the entry named by reference ("container:name").
func (r *Registry) Resolve(reference string) (Func, error) {
	container, name, err := SplitReference(reference)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.items[container+":"+name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, reference)
	}
	return fn, nil
}

// References returns all registered references in sorted order.
func (r *Registry) References() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	refs := make([]string, 0, len(r.items))
	for ref := range r.items {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}

// SplitReference validates and splits a "container:name" reference.
func SplitReference(reference string) (container, name string, err error) {
	trimmed := strings.TrimSpace(reference)
	parts := strings.Split(trimmed, ":")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("%w: %q (want \"container:name\")", ErrInvalidReference, reference)
	}
	container = strings.TrimSpace(parts[0])
	name = strings.TrimSpace(parts[1])
	if container == "" || name == "" {
		return "", "", fmt.Errorf("%w: %q (want \"container:name\")", ErrInvalidReference, reference)
	}
	return container, name, nil
}

func joinReference(container, name string) (string, error) {
	container = strings.TrimSpace(container)
	name = strings.TrimSpace(name)
	if container == "" || name == "" || strings.Contains(container, ":") || strings.Contains(name, ":") {
		return "", fmt.Errorf("%w: container=%q name=%q", ErrInvalidReference, container, name)
	}
	return container + ":" + name, nil
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry used by daemon.Main.
func Default() *Registry { return defaultRegistry }

// Register adds fn to the default registry.
func Register(container, name string, fn Func) {
	defaultRegistry.Register(container, name, fn)
}

// Resolve looks up reference in the default registry.
func Resolve(reference string) (Func, error) {
	return defaultRegistry.Resolve(reference)
}
