// Package builtin holds the commands the shell interprets itself instead of
// spawning an external process.
package builtin

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
)

var (
	// ErrQuit is returned by the quit builtin. The caller must stop
	// dispatching and terminate with status 0.
	ErrQuit = errors.New("quit requested")

	// ErrChdir marks a failed working-directory change.
	ErrChdir = errors.New("cannot change directory")
)

// Builtin is a command run inside the shell process.
type Builtin interface {
	// Name returns the first-position token that selects the builtin.
	Name() string

	// Description returns a human-readable summary.
	Description() string

	// Run executes the builtin. Builtins never read a pipeline's input.
	Run(ctx context.Context, args []string, stdout, stderr io.Writer) error
}

// Registry maps builtin names to implementations.
type Registry struct {
	mu       sync.RWMutex
	builtins map[string]Builtin
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{builtins: make(map[string]Builtin)}
}

// Register adds a builtin, replacing any existing one with the same name.
func (r *Registry) Register(b Builtin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builtins[b.Name()] = b
}

// Lookup returns the builtin for name and whether it exists.
func (r *Registry) Lookup(name string) (Builtin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.builtins[name]
	return b, ok
}

// All returns all registered builtins sorted by name.
func (r *Registry) All() []Builtin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]Builtin, 0, len(r.builtins))
	for _, b := range r.builtins {
		all = append(all, b)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Name() < all[j].Name()
	})
	return all
}

// RegisterAll adds cd and \quit to the registry.
func RegisterAll(r *Registry) {
	r.Register(&Cd{})
	r.Register(&Quit{})
}

// NewDefaultRegistry returns a registry with every builtin installed.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	RegisterAll(r)
	return r
}

