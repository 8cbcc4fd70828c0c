package context

import (
	"context"
	"sync"
	"time"
)

// AgentContext represents the context for revocation subsystem operations
type AgentContext struct {
	// Context for cancellation and timeout
	Context context.Context

	// DependencyManager provides access to the DI container
	DependencyManager interface{}

	// ContextCorrelationId allows correlation across sessions
	ContextCorrelationId string

	// IsRootAgentContext indicates if this is the root context
	IsRootAgentContext bool

	// Config provides access to agent configuration
	Config *AgentConfig

	mutex sync.RWMutex
}

// AgentConfig represents the configuration of the revocation subsystem
type AgentConfig struct {
	Label string `json:"label"`

	WalletConfig *WalletConfig `json:"walletConfig,omitempty"`

	// TailsServerBaseUrl is the public base URL under which uploaded tails
	// files become reachable, e.g. https://tails.example.org
	TailsServerBaseUrl string `json:"tailsServerBaseUrl,omitempty"`

	// TailsDirectory is the local directory where tails files are generated
	// and downloaded to
	TailsDirectory string `json:"tailsDirectory,omitempty"`

	// RegistryReadyTimeout bounds how long callers wait for an active,
	// finished revocation registry to appear for a credential definition.
	// Defaults to 60s; overridable via the REVREG_READY_TIMEOUT env var.
	RegistryReadyTimeout time.Duration `json:"registryReadyTimeout,omitempty"`

	// MaxPublishAttempts bounds the optimistic-concurrency retry loop of the
	// batched revocation publish. Defaults to 5.
	MaxPublishAttempts int `json:"maxPublishAttempts,omitempty"`

	// Tails upload retry policy
	TailsUploadMaxAttempts int           `json:"tailsUploadMaxAttempts,omitempty"`
	TailsUploadInterval    time.Duration `json:"tailsUploadInterval,omitempty"`
	TailsUploadBackoff     float64       `json:"tailsUploadBackoff,omitempty"`

	ExtraConfig map[string]interface{} `json:"extraConfig,omitempty"`
}

// WalletConfig represents wallet configuration
type WalletConfig struct {
	ID                  string `json:"id"`
	Key                 string `json:"key"`
	KeyDerivationMethod string `json:"keyDerivationMethod,omitempty"`
}

// AgentContextOptions represents options for creating an agent context
type AgentContextOptions struct {
	Context              context.Context
	ContextCorrelationId string
	IsRootAgentContext   bool
	Config               *AgentConfig
}

// NewAgentContext creates a new agent context
func NewAgentContext(opts AgentContextOptions) *AgentContext {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}

	return &AgentContext{
		Context:              ctx,
		ContextCorrelationId: opts.ContextCorrelationId,
		IsRootAgentContext:   opts.IsRootAgentContext,
		Config:               opts.Config,
	}
}

// WithContext creates a new agent context with a different context
func (ac *AgentContext) WithContext(ctx context.Context) *AgentContext {
	ac.mutex.RLock()
	defer ac.mutex.RUnlock()

	return &AgentContext{
		Context:              ctx,
		DependencyManager:    ac.DependencyManager,
		ContextCorrelationId: ac.ContextCorrelationId,
		IsRootAgentContext:   ac.IsRootAgentContext,
		Config:               ac.Config,
	}
}

// WithCorrelationId creates a new agent context with a different correlation ID
func (ac *AgentContext) WithCorrelationId(correlationId string) *AgentContext {
	ac.mutex.RLock()
	defer ac.mutex.RUnlock()

	return &AgentContext{
		Context:              ac.Context,
		DependencyManager:    ac.DependencyManager,
		ContextCorrelationId: correlationId,
		IsRootAgentContext:   false, // Child contexts are not root contexts
		Config:               ac.Config,
	}
}

// SetDependencyManager sets the dependency manager
func (ac *AgentContext) SetDependencyManager(dm interface{}) {
	ac.mutex.Lock()
	defer ac.mutex.Unlock()
	ac.DependencyManager = dm
}

// GetCorrelationId returns the context correlation ID
func (ac *AgentContext) GetCorrelationId() string {
	ac.mutex.RLock()
	defer ac.mutex.RUnlock()

	return ac.ContextCorrelationId
}
