package askar

import (
	"fmt"

	"github.com/ajna-inc/revreg/pkg/askar/storage"
	"github.com/ajna-inc/revreg/pkg/core/context"
	"github.com/ajna-inc/revreg/pkg/core/di"
)

// AskarModule provides Askar-based transactional storage
type AskarModule struct {
	config       *AskarModuleConfig
	storeManager *AskarStoreManager
	storage      *storage.AskarStorageService
	initialized  bool
	dm           di.DependencyManager
}

// NewAskarModule creates a new AskarModule
func NewAskarModule(config *AskarModuleConfig) *AskarModule {
	if config == nil {
		config = &AskarModuleConfig{}
	}

	if config.Store == nil {
		config.Store = &AskarStoreConfig{
			ID:  "default",
			Key: "default-key",
		}
	}

	config.Store.SetDefaults()

	return &AskarModule{
		config:       config,
		storeManager: NewAskarStoreManager(),
	}
}

// Register implements di.Module
func (m *AskarModule) Register(dm di.DependencyManager) error {
	m.dm = dm
	dm.RegisterInstance(di.Token{Name: "AskarModuleConfig"}, m.config)
	dm.RegisterInstance(di.Token{Name: "AskarStoreManager"}, m.storeManager)
	return nil
}

// OnInitializeContext opens (or provisions) the store and registers the
// storage service.
func (m *AskarModule) OnInitializeContext(ctx *context.AgentContext) error {
	if m.initialized {
		return nil
	}

	if err := m.config.Store.Validate(); err != nil {
		return fmt.Errorf("invalid Askar configuration: %w", err)
	}

	if _, err := m.storeManager.OpenStore(m.config.Store); err != nil {
		if err := m.storeManager.ProvisionStore(m.config.Store); err != nil {
			return fmt.Errorf("failed to provision Askar store: %w", err)
		}
	}

	m.storage = storage.NewAskarStorageService(m.storeManager, m.config.Store.ID)
	m.initialized = true

	if m.dm != nil {
		m.dm.RegisterInstance(di.TokenStorageService, m.storage)
	}

	return nil
}

// OnShutdown closes all open stores
func (m *AskarModule) OnShutdown(ctx *context.AgentContext) error {
	m.initialized = false
	return m.storeManager.CloseAll()
}

// StorageService returns the storage service once initialized
func (m *AskarModule) StorageService() *storage.AskarStorageService {
	return m.storage
}
