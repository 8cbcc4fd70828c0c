package inmemory

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/ajna-inc/revreg/pkg/anoncreds/registry"
	"github.com/ajna-inc/revreg/pkg/core/common"
	"github.com/ajna-inc/revreg/pkg/revocation/reverrors"
)

// MemoryRegistry is a simple in-memory implementation of the anoncreds
// Registry interface intended for development and testing. Registrations
// assign ids immediately and report the finished state.
type MemoryRegistry struct {
	mu             sync.RWMutex
	schemaById     map[string]registry.Schema
	credDefById    map[string]registry.CredentialDefinition
	revRegById     map[string]registry.RevocationRegistryDefinition
	statusListById map[string]registry.RevocationStatusList
	rx             *regexp.Regexp

	// FailNextRegistration, when set, makes the next revocation registry
	// definition registration fail with the given error. Testing hook.
	FailNextRegistration error
	// QueueNextRegistration, when set, makes the next revocation registry
	// definition registration report the wait state with a job id instead of
	// finishing immediately. Testing hook.
	QueueNextRegistration bool
}

// NewMemoryRegistry creates a new in-memory registry. Identifiers matching
// the provided regex will be handled by this registry. If rx is nil, it
// defaults to ^did:mem:.
func NewMemoryRegistry(rx *regexp.Regexp) *MemoryRegistry {
	if rx == nil {
		rx = regexp.MustCompile(`^did:mem:`)
	}
	return &MemoryRegistry{
		schemaById:     make(map[string]registry.Schema),
		credDefById:    make(map[string]registry.CredentialDefinition),
		revRegById:     make(map[string]registry.RevocationRegistryDefinition),
		statusListById: make(map[string]registry.RevocationStatusList),
		rx:             rx,
	}
}

func (m *MemoryRegistry) MethodName() string                  { return "memory" }
func (m *MemoryRegistry) SupportedIdentifier() *regexp.Regexp { return m.rx }

// Testing helpers to pre-seed data
func (m *MemoryRegistry) PutCredentialDefinition(id string, cd registry.CredentialDefinition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.credDefById[id] = cd
}

func (m *MemoryRegistry) GetSchema(schemaId string) (registry.Schema, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.schemaById[schemaId]
	if !ok {
		return registry.Schema{}, "", reverrors.Newf(reverrors.CodeNotFound, "schema not found: %s", schemaId)
	}
	return s, schemaId, nil
}

func (m *MemoryRegistry) GetCredentialDefinition(credDefId string) (registry.CredentialDefinition, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cd, ok := m.credDefById[credDefId]
	if !ok {
		return registry.CredentialDefinition{}, "", reverrors.Newf(reverrors.CodeNotFound, "credential definition not found: %s", credDefId)
	}
	return cd, credDefId, nil
}

func (m *MemoryRegistry) GetRevocationRegistryDefinition(revRegDefId string) (registry.RevocationRegistryDefinition, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rr, ok := m.revRegById[revRegDefId]
	if !ok {
		return registry.RevocationRegistryDefinition{}, "", reverrors.Newf(reverrors.CodeNotFound, "revocation registry definition not found: %s", revRegDefId)
	}
	return rr, revRegDefId, nil
}

func (m *MemoryRegistry) GetRevocationStatusList(revRegDefId string, timestamp int64) (registry.RevocationStatusList, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sl, ok := m.statusListById[revRegDefId]
	if !ok {
		return registry.RevocationStatusList{}, reverrors.Newf(reverrors.CodeNotFound, "revocation status list not found: %s", revRegDefId)
	}
	return sl, nil
}

func (m *MemoryRegistry) RegisterSchema(opts registry.RegisterSchemaOptions) (registry.RegisterSchemaResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	schema := opts.Schema
	if schema.Id == "" {
		schema.Id = fmt.Sprintf("%s/schema/%s", schema.IssuerId, common.GenerateUUID())
	}
	m.schemaById[schema.Id] = schema
	return registry.RegisterSchemaResult{
		State:    registry.RegistrationStateFinished,
		Schema:   schema,
		SchemaId: schema.Id,
	}, nil
}

func (m *MemoryRegistry) RegisterCredentialDefinition(opts registry.RegisterCredentialDefinitionOptions) (registry.RegisterCredentialDefinitionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	credDef := opts.CredentialDefinition
	if credDef.Id == "" {
		credDef.Id = fmt.Sprintf("%s/credDef/%s", credDef.IssuerId, common.GenerateUUID())
	}
	m.credDefById[credDef.Id] = credDef
	return registry.RegisterCredentialDefinitionResult{
		State:                  registry.RegistrationStateFinished,
		CredentialDefinition:   credDef,
		CredentialDefinitionId: credDef.Id,
	}, nil
}

func (m *MemoryRegistry) RegisterRevocationRegistryDefinition(opts registry.RegisterRevocationRegistryDefinitionOptions) (registry.RegisterRevocationRegistryDefinitionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailNextRegistration != nil {
		err := m.FailNextRegistration
		m.FailNextRegistration = nil
		return registry.RegisterRevocationRegistryDefinitionResult{
			State:  registry.RegistrationStateFailed,
			Reason: err.Error(),
		}, err
	}

	if m.QueueNextRegistration {
		m.QueueNextRegistration = false
		return registry.RegisterRevocationRegistryDefinitionResult{
			State:                        registry.RegistrationStateWait,
			JobId:                        "job-" + common.GenerateUUID(),
			RevocationRegistryDefinition: opts.RevocationRegistryDefinition,
		}, nil
	}

	def := opts.RevocationRegistryDefinition
	if def.Id == "" {
		def.Id = fmt.Sprintf("%s/revReg/%s", def.IssuerId, common.GenerateUUID())
	} else if _, exists := m.revRegById[def.Id]; exists {
		return registry.RegisterRevocationRegistryDefinitionResult{
			State:  registry.RegistrationStateFailed,
			Reason: "already registered",
		}, reverrors.Newf(reverrors.CodeAlreadyExists, "revocation registry definition already registered: %s", def.Id)
	}
	m.revRegById[def.Id] = def
	return registry.RegisterRevocationRegistryDefinitionResult{
		State:                          registry.RegistrationStateFinished,
		RevocationRegistryDefinitionId: def.Id,
		RevocationRegistryDefinition:   def,
	}, nil
}

func (m *MemoryRegistry) RegisterRevocationStatusList(opts registry.RegisterRevocationStatusListOptions) (registry.RegisterRevocationStatusListResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := opts.RevocationStatusList
	if _, ok := m.revRegById[list.RevRegDefId]; !ok {
		return registry.RegisterRevocationStatusListResult{
			State:  registry.RegistrationStateFailed,
			Reason: "unknown revocation registry definition",
		}, reverrors.Newf(reverrors.CodeNotFound, "revocation registry definition not found: %s", list.RevRegDefId)
	}
	if list.Timestamp == 0 {
		list.Timestamp = common.NowUnix()
	}
	m.statusListById[list.RevRegDefId] = list
	return registry.RegisterRevocationStatusListResult{
		State:                registry.RegistrationStateFinished,
		RevocationStatusList: list,
	}, nil
}

func (m *MemoryRegistry) UpdateRevocationStatusList(opts registry.UpdateRevocationStatusListOptions) (registry.UpdateRevocationStatusListResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := opts.RevocationStatusList
	if _, ok := m.statusListById[list.RevRegDefId]; !ok {
		return registry.UpdateRevocationStatusListResult{
			State:  registry.RegistrationStateFailed,
			Reason: "no status list registered",
		}, reverrors.Newf(reverrors.CodeNotFound, "revocation status list not found: %s", list.RevRegDefId)
	}
	if list.Timestamp == 0 {
		list.Timestamp = common.NowUnix()
	}
	m.statusListById[list.RevRegDefId] = list
	return registry.UpdateRevocationStatusListResult{
		State:                registry.RegistrationStateFinished,
		RevocationStatusList: list,
	}, nil
}
