package workflow

import (
	"sync"

	"github.com/lendcore/lendcore/core/application"
)

// Context is the shared mutable state of one execution: the input
// application, the accumulated per-handler results, and a free-form scratch
// space for cross-step data passing. Handlers read the application and prior
// results and contribute their own result; only the engine stores results.
type Context struct {
	App *application.Application

	mu      sync.RWMutex
	results map[string]*Result
	shared  map[string]any
}

// NewContext builds an empty execution context around an application record.
func NewContext(app *application.Application) *Context {
	return &Context{
		App:     app,
		results: make(map[string]*Result),
		shared:  make(map[string]any),
	}
}

// SetResult records a handler's result under its handler name.
func (c *Context) SetResult(handler string, res *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[handler] = res
}

// Result returns the result recorded for a handler, if any. A missing result
// means the producing step has not completed yet.
func (c *Context) Result(handler string) (*Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	res, ok := c.results[handler]
	return res, ok
}

// Results returns a copy of the recorded results map.
func (c *Context) Results() map[string]*Result {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]*Result, len(c.results))
	for k, v := range c.results {
		out[k] = v
	}
	return out
}

// SetShared stores a scratch value visible to later steps.
func (c *Context) SetShared(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shared[key] = value
}

// Shared returns a scratch value previously stored by an earlier step.
func (c *Context) Shared(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.shared[key]
	return v, ok
}

// SharedData returns a copy of the scratch space.
func (c *Context) SharedData() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.shared))
	for k, v := range c.shared {
		out[k] = v
	}
	return out
}

// predicateEnv is the environment gating predicates evaluate against.
func (c *Context) predicateEnv() map[string]any {
	return map[string]any{
		"app":     c.App,
		"results": c.Results(),
		"shared":  c.SharedData(),
	}
}
