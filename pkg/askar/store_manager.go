package askar

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Ajna-inc/askar-go"

	"github.com/ajna-inc/revreg/pkg/askar/errors"
	"github.com/ajna-inc/revreg/pkg/core/context"
)

// AskarStoreManager manages Askar store instances and their lifecycle
type AskarStoreManager struct {
	stores map[string]*ManagedStore
	mutex  sync.RWMutex
}

// ManagedStore represents a managed Askar store with its configuration
type ManagedStore struct {
	Store  *askar.Store
	Config *AskarStoreConfig
}

// NewAskarStoreManager creates a new AskarStoreManager
func NewAskarStoreManager() *AskarStoreManager {
	return &AskarStoreManager{
		stores: make(map[string]*ManagedStore),
	}
}

// ProvisionStore creates and opens a new Askar store
func (m *AskarStoreManager) ProvisionStore(config *AskarStoreConfig) error {
	if config == nil {
		return errors.NewAskarError(errors.ErrCodeInvalidConfig, "store config is required", nil)
	}

	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return errors.NewAskarError(errors.ErrCodeInvalidConfig, err.Error(), err)
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.stores[config.ID]; exists {
		return errors.ErrStoreAlreadyExists
	}

	connStr, err := config.Database.GetConnectionString(config.ID)
	if err != nil {
		return errors.NewAskarError(errors.ErrCodeInvalidConfig, "failed to get connection string", err)
	}

	if config.Database.Type == "sqlite" && !isInMemory(config.Database) {
		if err := ensureDirectoryExists(config.Database); err != nil {
			return err
		}
	}

	store, err := askar.StoreProvision(
		connStr,
		config.KeyDerivationMethod,
		config.Key,
		"",    // default profile
		false, // don't recreate if exists
	)
	if err != nil {
		return errors.WrapAskarError(err)
	}

	m.stores[config.ID] = &ManagedStore{
		Store:  store,
		Config: config,
	}

	return nil
}

// OpenStore opens an existing Askar store
func (m *AskarStoreManager) OpenStore(config *AskarStoreConfig) (*askar.Store, error) {
	if config == nil {
		return nil, errors.NewAskarError(errors.ErrCodeInvalidConfig, "store config is required", nil)
	}

	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, errors.NewAskarError(errors.ErrCodeInvalidConfig, err.Error(), err)
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if managed, exists := m.stores[config.ID]; exists {
		return managed.Store, nil
	}

	connStr, err := config.Database.GetConnectionString(config.ID)
	if err != nil {
		return nil, errors.NewAskarError(errors.ErrCodeInvalidConfig, "failed to get connection string", err)
	}

	store, err := askar.StoreOpen(
		connStr,
		config.KeyDerivationMethod,
		config.Key,
		"", // default profile
	)
	if err != nil {
		return nil, errors.WrapAskarError(err)
	}

	m.stores[config.ID] = &ManagedStore{
		Store:  store,
		Config: config,
	}

	return store, nil
}

// GetStore returns an open store by ID
func (m *AskarStoreManager) GetStore(storeID string) (*askar.Store, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	managed, exists := m.stores[storeID]
	if !exists {
		return nil, errors.ErrStoreNotFound
	}

	return managed.Store, nil
}

// CloseStore closes an open store
func (m *AskarStoreManager) CloseStore(storeID string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	managed, exists := m.stores[storeID]
	if !exists {
		return errors.ErrStoreNotFound
	}

	if err := managed.Store.Close(); err != nil {
		return errors.WrapAskarError(err)
	}

	delete(m.stores, storeID)
	return nil
}

// CloseAll closes all open stores
func (m *AskarStoreManager) CloseAll() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	var lastErr error
	for id, managed := range m.stores {
		if err := managed.Store.Close(); err != nil {
			lastErr = errors.WrapAskarError(err)
		}
		delete(m.stores, id)
	}

	return lastErr
}

// WithSession executes a function within a read-only session
func (m *AskarStoreManager) WithSession(ctx *context.AgentContext, storeID string, fn func(*askar.Session) error) error {
	store, err := m.GetStore(storeID)
	if err != nil {
		return err
	}

	session, err := store.Session("")
	if err != nil {
		return errors.WrapAskarError(err)
	}
	defer session.Close()

	return fn(session)
}

// WithTransaction executes a function within a transaction. Row locks taken
// by fetch-for-update reads are held until commit or rollback.
func (m *AskarStoreManager) WithTransaction(ctx *context.AgentContext, storeID string, fn func(*askar.Session) error) error {
	store, err := m.GetStore(storeID)
	if err != nil {
		return err
	}

	session, err := store.Transaction("")
	if err != nil {
		return errors.WrapAskarError(err)
	}

	if err := fn(session); err != nil {
		// Rollback on error
		session.Close()
		return err
	}

	if err := session.Commit(); err != nil {
		session.Close()
		return errors.WrapAskarError(err)
	}

	return nil
}

// ensureDirectoryExists creates the directory for SQLite database if needed
func ensureDirectoryExists(dbConfig *AskarDatabaseConfig) error {
	sqliteConfig := &AskarSqliteConfig{}
	if err := mapToStruct(dbConfig.Config, sqliteConfig); err != nil {
		return errors.NewAskarError(errors.ErrCodeInvalidConfig, "invalid sqlite config", err)
	}

	if sqliteConfig.Path != "" {
		dir := filepath.Dir(sqliteConfig.Path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.NewAskarError(errors.ErrCodeStorageOperation,
				fmt.Sprintf("failed to create directory %s", dir), err)
		}
	}

	return nil
}

// isInMemory checks if the database configuration is for an in-memory database
func isInMemory(dbConfig *AskarDatabaseConfig) bool {
	if dbConfig.Type != "sqlite" {
		return false
	}

	sqliteConfig := &AskarSqliteConfig{}
	if err := mapToStruct(dbConfig.Config, sqliteConfig); err != nil {
		return false
	}

	return sqliteConfig.InMemory
}
