package services

import (
	"github.com/ajna-inc/revreg/pkg/anoncreds/registry"
	corectx "github.com/ajna-inc/revreg/pkg/core/context"
)

// CreateRevocationRegistryDefinitionOptions carries everything the native
// library needs to generate a registry definition and its tails file
type CreateRevocationRegistryDefinitionOptions struct {
	IssuerId               string
	CredentialDefinitionId string
	// CredentialDefinition is the resolved public credential definition JSON
	CredentialDefinition map[string]interface{}
	Tag                  string
	MaximumCredentialNumber int
	// TailsDirectoryPath is the local directory the tails file is written to
	TailsDirectoryPath string
}

// CreateRevocationRegistryDefinitionReturn bundles the public definition with
// the private accumulator key. The private part never leaves the issuer.
type CreateRevocationRegistryDefinitionReturn struct {
	RevocationRegistryDefinition        registry.RevocationRegistryDefinition
	RevocationRegistryDefinitionPrivate map[string]interface{}
}

// CreateRevocationStatusListOptions creates the initial (nothing revoked)
// status list for a newly registered definition
type CreateRevocationStatusListOptions struct {
	IssuerId                       string
	RevocationRegistryDefinitionId string
	RevocationRegistryDefinition   registry.RevocationRegistryDefinition
	// RevocationRegistryDefinitionPrivate is the stored private key JSON
	RevocationRegistryDefinitionPrivate map[string]interface{}
	CredentialDefinition                map[string]interface{}
	Timestamp                           int64
}

// UpdateRevocationStatusListOptions recomputes the accumulator after flipping
// the given indexes
type UpdateRevocationStatusListOptions struct {
	RevocationRegistryDefinition        registry.RevocationRegistryDefinition
	RevocationRegistryDefinitionPrivate map[string]interface{}
	CredentialDefinition                map[string]interface{}
	CurrentList                         registry.RevocationStatusList
	// RevokedIndexes are flipped to revoked; IssuedIndexes back to issued
	RevokedIndexes []int
	IssuedIndexes  []int
	Timestamp      int64
}

// AnonCredsIssuerService wraps the native anoncreds operations the revocation
// engine needs. Implementations own the handle lifecycle of native objects.
type AnonCredsIssuerService interface {
	CreateRevocationRegistryDefinition(ctx *corectx.AgentContext, options *CreateRevocationRegistryDefinitionOptions) (*CreateRevocationRegistryDefinitionReturn, error)
	CreateRevocationStatusList(ctx *corectx.AgentContext, options *CreateRevocationStatusListOptions) (registry.RevocationStatusList, error)
	UpdateRevocationStatusList(ctx *corectx.AgentContext, options *UpdateRevocationStatusListOptions) (registry.RevocationStatusList, error)
}
