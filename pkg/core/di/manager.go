package di

import (
	"fmt"
	"sync"

	contextpkg "github.com/ajna-inc/revreg/pkg/core/context"
)

// Lifecycle defines the lifetime of a registered dependency
type Lifecycle int

const (
	// Singleton creates one instance that lives for the entire application
	Singleton Lifecycle = iota
	// Transient creates a new instance on each resolve
	Transient
)

// providerFunc creates an instance on demand using the dependency manager
type providerFunc func(DependencyManager) (any, error)

type registration struct {
	instance  any
	factory   providerFunc
	lifecycle Lifecycle
}

// dependencyManager is a typed DI container
type dependencyManager struct {
	mu            sync.RWMutex
	registrations map[string]*registration
	modules       []Module
	currentContext *contextpkg.AgentContext
}

// NewDependencyManager creates a new typed DI container
func NewDependencyManager() DependencyManager {
	return &dependencyManager{
		registrations: make(map[string]*registration),
		modules:       make([]Module, 0, 8),
	}
}

// RegisterInstance registers a concrete instance for a token
func (dm *dependencyManager) RegisterInstance(token Token, instance any) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	dm.registrations[token.Name] = &registration{instance: instance}
}

// RegisterSingleton registers a lazy singleton factory for a token
func (dm *dependencyManager) RegisterSingleton(token Token, factory func(DependencyManager) (any, error)) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	dm.registrations[token.Name] = &registration{
		factory:   factory,
		lifecycle: Singleton,
	}
}

// RegisterFactory registers a factory that creates a new instance on each Resolve
func (dm *dependencyManager) RegisterFactory(token Token, factory func(DependencyManager) (any, error)) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	dm.registrations[token.Name] = &registration{
		factory:   factory,
		lifecycle: Transient,
	}
}

// Resolve resolves an instance for a token
func (dm *dependencyManager) Resolve(token Token) (any, error) {
	dm.mu.RLock()
	reg, ok := dm.registrations[token.Name]
	dm.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDependencyNotFound, token.Name)
	}

	switch reg.lifecycle {
	case Singleton:
		// Fast path for stored instance
		if reg.instance != nil {
			return reg.instance, nil
		}

		if reg.factory == nil {
			return nil, fmt.Errorf("dependency '%s' has no instance or factory", token.Name)
		}

		created, err := reg.factory(dm)
		if err != nil {
			return nil, err
		}

		dm.mu.Lock()
		reg.instance = created
		dm.mu.Unlock()

		return created, nil

	case Transient:
		if reg.factory == nil {
			return nil, fmt.Errorf("dependency '%s' has no factory", token.Name)
		}

		return reg.factory(dm)

	default:
		if reg.instance != nil {
			return reg.instance, nil
		}
		return nil, fmt.Errorf("dependency '%s' has no instance", token.Name)
	}
}

// IsRegistered checks whether a token has a registration
func (dm *dependencyManager) IsRegistered(token Token) bool {
	dm.mu.RLock()
	defer dm.mu.RUnlock()

	_, ok := dm.registrations[token.Name]
	return ok
}

// SetContext sets the current agent context
func (dm *dependencyManager) SetContext(ctx *contextpkg.AgentContext) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.currentContext = ctx
}

// GetContext returns the current agent context
func (dm *dependencyManager) GetContext() *contextpkg.AgentContext {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.currentContext
}

// RegisterModules registers a list of modules with the container
func (dm *dependencyManager) RegisterModules(modules []Module) error {
	for _, m := range modules {
		if err := m.Register(dm); err != nil {
			return err
		}
		dm.mu.Lock()
		dm.modules = append(dm.modules, m)
		dm.mu.Unlock()
	}
	return nil
}

// InitializeModules runs the context-initialization hook of every module
func (dm *dependencyManager) InitializeModules(ctx *contextpkg.AgentContext) error {
	dm.SetContext(ctx)
	for _, m := range dm.modules {
		if err := m.OnInitializeContext(ctx); err != nil {
			return err
		}
	}
	return nil
}

// ShutdownModules runs the shutdown hook of every module in reverse order
func (dm *dependencyManager) ShutdownModules(ctx *contextpkg.AgentContext) error {
	var lastErr error
	for i := len(dm.modules) - 1; i >= 0; i-- {
		if err := dm.modules[i].OnShutdown(ctx); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
