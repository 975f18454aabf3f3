package consensus

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Klingon-tech/sealcore/internal/log"
	"github.com/Klingon-tech/sealcore/pkg/params"
)

// Factory creates a fresh, unconfigured engine.
type Factory func() SealEngine

// Registry maps engine names to factories. Registration normally happens at
// startup; lookups may happen from any goroutine.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under name. Registering a name twice replaces the
// earlier factory.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, replaced := r.factories[name]
	r.factories[name] = f
	log.Consensus.Debug().
		Str("engine", name).
		Bool("replaced", replaced).
		Msg("Seal engine registered")
}

// Create returns a new unconfigured engine registered under name.
func (r *Registry) Create(name string) (SealEngine, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrEngineNotFound, name)
	}
	e := f()
	if e == nil {
		return nil, fmt.Errorf("seal engine %q: factory returned nil", name)
	}
	return e, nil
}

// CreateFromParams creates the engine named by p and binds it to p.
func (r *Registry) CreateFromParams(p *params.ChainOperationParams) (SealEngine, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil chain params", ErrNotConfigured)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("chain params: %w", err)
	}
	e, err := r.Create(p.SealEngineName)
	if err != nil {
		return nil, err
	}
	e.SetChainParams(p)
	return e, nil
}

// Names returns the registered engine names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SelfCheck creates one engine per registered name and reports every factory
// that fails or hands back an engine that is already bound.
func (r *Registry) SelfCheck() error {
	var errs []error
	for _, name := range r.Names() {
		e, err := r.Create(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if e.ChainParams() != nil {
			errs = append(errs, fmt.Errorf("seal engine %q: factory returned a configured engine", name))
		}
	}
	return errors.Join(errs...)
}

// Reset removes every registration.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories = make(map[string]Factory)
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry.
func Default() *Registry {
	return defaultRegistry
}

// Register adds a factory to the default registry.
func Register(name string, f Factory) {
	defaultRegistry.Register(name, f)
}

// Create returns a new engine from the default registry.
func Create(name string) (SealEngine, error) {
	return defaultRegistry.Create(name)
}

// CreateFromParams creates and binds an engine from the default registry.
func CreateFromParams(p *params.ChainOperationParams) (SealEngine, error) {
	return defaultRegistry.CreateFromParams(p)
}

// RegisterBuiltins registers every engine in this package with r.
func RegisterBuiltins(r *Registry) {
	r.Register(NoProofName, func() SealEngine { return NewNoProof() })
	r.Register(ProofOfWorkName, func() SealEngine { return NewProofOfWork() })
	r.Register(BasicAuthorityName, func() SealEngine { return NewBasicAuthority() })
}
