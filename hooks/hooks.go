// Package hooks provides a prioritized, panic-safe hook registry.
package hooks

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"runtime"
	"sort"
	"sync"
)

// Hook is called with the event being dispatched
type Hook[T any] func(event T) error

// HookInfo describes a registered hook
type HookInfo[T any] struct {
	Name     string
	Hook     Hook[T]
	Priority int64 // lower runs first
}

// Registry holds hooks for one event type. Hooks registered with equal
// priority run in registration order.
type Registry[T any] struct {
	mu     sync.RWMutex
	hooks  []HookInfo[T]
	logger *slog.Logger
}

// NewRegistry creates an empty registry
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{logger: slog.Default()}
}

// SetLogger sets the logger used to report failing hooks
func (r *Registry[T]) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// Register adds a hook with priority 0
func (r *Registry[T]) Register(hook Hook[T]) {
	r.RegisterWithPriority(hook, 0)
}

// RegisterWithPriority adds a hook with the given priority
func (r *Registry[T]) RegisterWithPriority(hook Hook[T], priority int64) {
	name := runtime.FuncForPC(reflect.ValueOf(hook).Pointer()).Name()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.hooks = append(r.hooks, HookInfo[T]{
		Name:     name,
		Hook:     hook,
		Priority: priority,
	})
	sort.SliceStable(r.hooks, func(i, j int) bool {
		return r.hooks[i].Priority < r.hooks[j].Priority
	})
}

// Run calls every hook in priority order. A failing or panicking hook does
// not stop the others; their errors are joined into the result.
func (r *Registry[T]) Run(event T) error {
	r.mu.RLock()
	hooks := make([]HookInfo[T], len(r.hooks))
	copy(hooks, r.hooks)
	logger := r.logger
	r.mu.RUnlock()

	var errs []error
	for _, info := range hooks {
		if err := call(info, event); err != nil {
			logger.Warn("hook failed", "hook", info.Name, "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func call[T any](info HookInfo[T], event T) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in hook %s: %v", info.Name, p)
		}
	}()
	if err := info.Hook(event); err != nil {
		return fmt.Errorf("hook %s: %w", info.Name, err)
	}
	return nil
}

// Hooks returns the registered hooks in execution order
func (r *Registry[T]) Hooks() []HookInfo[T] {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]HookInfo[T], len(r.hooks))
	copy(out, r.hooks)
	return out
}

// Clear removes all hooks
func (r *Registry[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = nil
}

// Count returns the number of registered hooks
func (r *Registry[T]) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hooks)
}
