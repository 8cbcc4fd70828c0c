package di

import (
	"errors"
)

var ErrDependencyNotFound = errors.New("dependency not found")

// Token is an identifier for dependencies
type Token struct {
	Name string
}

// Common tokens used across the revocation subsystem
var (
	TokenLogger         = Token{Name: "Logger"}
	TokenEventBus       = Token{Name: "EventBus"}
	TokenStorageService = Token{Name: "StorageService"}
	TokenAgentConfig    = Token{Name: "AgentConfig"}
	TokenAgentContext   = Token{Name: "AgentContext"}

	// AnonCreds collaborators
	TokenAnonCredsIssuerService = Token{Name: "AnonCreds.IssuerService"}
	TokenRegistryService        = Token{Name: "AnonCreds.RegistryService"}

	// Revocation services
	TokenRevocationRegistryService = Token{Name: "Revocation.RegistryService"}
	TokenRevocationListService     = Token{Name: "Revocation.ListService"}
	TokenRevocationRotationService = Token{Name: "Revocation.RotationService"}
	TokenTailsClient               = Token{Name: "Revocation.TailsClient"}

	// Repositories
	TokenCredentialDefinitionRepository = Token{Name: "CredentialDefinition.Repository"}
	TokenRevocationRecordsRepository    = Token{Name: "Revocation.Repository"}
)
