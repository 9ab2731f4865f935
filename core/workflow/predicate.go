package workflow

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// predicateEvaluator compiles and caches step gating expressions. Predicates
// are evaluated against {app, results, shared} and must yield a boolean.
type predicateEvaluator struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

func newPredicateEvaluator() *predicateEvaluator {
	return &predicateEvaluator{cache: make(map[string]*vm.Program)}
}

func (p *predicateEvaluator) Eval(expression string, env map[string]any) (bool, error) {
	p.mu.RLock()
	program, ok := p.cache[expression]
	p.mu.RUnlock()

	if !ok {
		p.mu.Lock()
		if program, ok = p.cache[expression]; !ok {
			var err error
			program, err = expr.Compile(expression, expr.Env(env))
			if err != nil {
				p.mu.Unlock()
				return false, fmt.Errorf("compile predicate: %w", err)
			}
			p.cache[expression] = program
		}
		p.mu.Unlock()
	}

	result, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("eval predicate: %w", err)
	}
	b, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("predicate %q evaluated to %T, want bool", expression, result)
	}
	return b, nil
}
