package registry

import "regexp"

// Registry defines the pluggable interface that an AnonCreds registration
// backend must implement. Implementations can anchor objects on a ledger, an
// EVM contract, or an in-memory store for tests.
type Registry interface {
	// MethodName returns a human-readable method name (e.g., "indy", "memory").
	MethodName() string
	// SupportedIdentifier returns a regex that indicates which identifiers this registry supports.
	SupportedIdentifier() *regexp.Regexp

	// Reads
	GetSchema(schemaId string) (Schema, string, error)
	GetCredentialDefinition(credDefId string) (CredentialDefinition, string, error)
	GetRevocationRegistryDefinition(revRegDefId string) (RevocationRegistryDefinition, string, error)
	GetRevocationStatusList(revRegDefId string, timestamp int64) (RevocationStatusList, error)

	// Writes
	RegisterSchema(opts RegisterSchemaOptions) (RegisterSchemaResult, error)
	RegisterCredentialDefinition(opts RegisterCredentialDefinitionOptions) (RegisterCredentialDefinitionResult, error)
	RegisterRevocationRegistryDefinition(opts RegisterRevocationRegistryDefinitionOptions) (RegisterRevocationRegistryDefinitionResult, error)
	RegisterRevocationStatusList(opts RegisterRevocationStatusListOptions) (RegisterRevocationStatusListResult, error)
	UpdateRevocationStatusList(opts UpdateRevocationStatusListOptions) (UpdateRevocationStatusListResult, error)
}
