package workflow

import (
	"context"
	"sync"

	"github.com/lendcore/lendcore/core/infra/logging"
)

// Handler is the capability a step binds to. Implementations must tolerate
// missing upstream results (treat them as not yet available) and should
// respect ctx cancellation for long-running work.
type Handler interface {
	Invoke(ctx context.Context, wctx *Context) (*Result, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, wctx *Context) (*Result, error)

func (f HandlerFunc) Invoke(ctx context.Context, wctx *Context) (*Result, error) {
	return f(ctx, wctx)
}

// Registry maps handler names to handlers. Lookups for unregistered names
// are non-fatal: the engine folds them into the normal step-failure path.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry returns an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds a handler under a name, replacing any previous binding.
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	r.handlers[name] = h
	r.mu.Unlock()
	logging.Info("workflow-registry", "handler registered", "name", name)
}

// Get looks up a handler by name.
func (r *Registry) Get(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Names returns the registered handler names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		out = append(out, name)
	}
	return out
}
