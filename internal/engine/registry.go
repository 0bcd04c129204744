package engine

import (
	"sync"

	"github.com/rxtech-lab/argo-engine/internal/logger"
	"github.com/rxtech-lab/argo-engine/internal/module"
	"github.com/rxtech-lab/argo-engine/internal/trading"
	"github.com/rxtech-lab/argo-engine/pkg/errors"
)

// StrategyContext carries everything a strategy factory needs to build one
// strategy instance.
type StrategyContext struct {
	Name   string
	Tag    string
	Params map[string]any

	Log           *logger.Logger
	TradingSystem trading.TradingSystem
}

// StrategyFactory builds one strategy instance from its configuration. The
// engine registers the configured securities on the returned strategy after
// the factory returns.
type StrategyFactory func(ctx StrategyContext) (*module.Strategy, error)

// Registry maps strategy names to factories. Strategies register themselves
// before the engine is constructed from config.
type Registry struct {
	mu        sync.Mutex
	factories map[string]StrategyFactory
}

// NewRegistry creates an empty strategy registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]StrategyFactory)}
}

// Register adds a factory under the given name.
func (r *Registry) Register(name string, factory StrategyFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return errors.Newf(errors.ErrCodeInvalidParameter, "strategy %s is already registered", name)
	}

	r.factories[name] = factory

	return nil
}

// Names returns the registered strategy names.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}

	return names
}

func (r *Registry) lookup(name string) (StrategyFactory, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	factory, ok := r.factories[name]

	return factory, ok
}
