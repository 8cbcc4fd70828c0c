package registry

import (
	"fmt"
)

// Service routes registry calls to the first registered Registry whose
// SupportedIdentifier matches the provided identifier.
type Service struct {
	registries []Registry
}

// NewService creates a new registry router.
func NewService() *Service {
	return &Service{registries: make([]Registry, 0, 4)}
}

// Register adds a registry implementation to the router.
func (s *Service) Register(r Registry) {
	s.registries = append(s.registries, r)
}

// find returns the first registry that supports the given identifier.
func (s *Service) find(identifier string) (Registry, error) {
	for _, r := range s.registries {
		if rx := r.SupportedIdentifier(); rx != nil && rx.MatchString(identifier) {
			return r, nil
		}
	}
	var patterns []string
	for _, r := range s.registries {
		if rx := r.SupportedIdentifier(); rx != nil {
			patterns = append(patterns, rx.String())
		}
	}
	return nil, fmt.Errorf("no anoncreds registry found for identifier: %s (available patterns: %v)", identifier, patterns)
}

func (s *Service) GetSchema(schemaId string) (Schema, string, error) {
	r, err := s.find(schemaId)
	if err != nil {
		return Schema{}, "", err
	}
	return r.GetSchema(schemaId)
}

func (s *Service) GetCredentialDefinition(credDefId string) (CredentialDefinition, string, error) {
	r, err := s.find(credDefId)
	if err != nil {
		return CredentialDefinition{}, "", err
	}
	return r.GetCredentialDefinition(credDefId)
}

func (s *Service) GetRevocationRegistryDefinition(revRegDefId string) (RevocationRegistryDefinition, string, error) {
	r, err := s.find(revRegDefId)
	if err != nil {
		return RevocationRegistryDefinition{}, "", err
	}
	return r.GetRevocationRegistryDefinition(revRegDefId)
}

func (s *Service) GetRevocationStatusList(revRegDefId string, timestamp int64) (RevocationStatusList, error) {
	r, err := s.find(revRegDefId)
	if err != nil {
		return RevocationStatusList{}, err
	}
	return r.GetRevocationStatusList(revRegDefId, timestamp)
}

func (s *Service) RegisterSchema(opts RegisterSchemaOptions) (RegisterSchemaResult, error) {
	r, err := s.find(opts.Schema.IssuerId)
	if err != nil {
		return RegisterSchemaResult{}, err
	}
	return r.RegisterSchema(opts)
}

func (s *Service) RegisterCredentialDefinition(opts RegisterCredentialDefinitionOptions) (RegisterCredentialDefinitionResult, error) {
	r, err := s.find(opts.CredentialDefinition.IssuerId)
	if err != nil {
		return RegisterCredentialDefinitionResult{}, err
	}
	return r.RegisterCredentialDefinition(opts)
}

func (s *Service) RegisterRevocationRegistryDefinition(opts RegisterRevocationRegistryDefinitionOptions) (RegisterRevocationRegistryDefinitionResult, error) {
	r, err := s.find(opts.RevocationRegistryDefinition.IssuerId)
	if err != nil {
		return RegisterRevocationRegistryDefinitionResult{}, err
	}
	return r.RegisterRevocationRegistryDefinition(opts)
}

func (s *Service) RegisterRevocationStatusList(opts RegisterRevocationStatusListOptions) (RegisterRevocationStatusListResult, error) {
	r, err := s.find(opts.RevocationStatusList.IssuerId)
	if err != nil {
		return RegisterRevocationStatusListResult{}, err
	}
	return r.RegisterRevocationStatusList(opts)
}

func (s *Service) UpdateRevocationStatusList(opts UpdateRevocationStatusListOptions) (UpdateRevocationStatusListResult, error) {
	r, err := s.find(opts.RevocationStatusList.IssuerId)
	if err != nil {
		return UpdateRevocationStatusListResult{}, err
	}
	return r.UpdateRevocationStatusList(opts)
}
