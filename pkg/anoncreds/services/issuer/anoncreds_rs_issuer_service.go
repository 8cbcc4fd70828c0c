package issuer

import (
	"encoding/json"
	"fmt"

	"github.com/Ajna-inc/anoncreds-go/pkg/anoncreds"

	"github.com/ajna-inc/revreg/pkg/anoncreds/registry"
	"github.com/ajna-inc/revreg/pkg/anoncreds/services"
	corectx "github.com/ajna-inc/revreg/pkg/core/context"
	"github.com/ajna-inc/revreg/pkg/revocation/reverrors"
)

// AnonCredsRsIssuerService implements AnonCredsIssuerService on top of the
// anoncreds-rs native bindings
type AnonCredsRsIssuerService struct{}

// NewAnonCredsRsIssuerService creates a new issuer service
func NewAnonCredsRsIssuerService() *AnonCredsRsIssuerService {
	return &AnonCredsRsIssuerService{}
}

func (s *AnonCredsRsIssuerService) CreateRevocationRegistryDefinition(ctx *corectx.AgentContext, options *services.CreateRevocationRegistryDefinitionOptions) (*services.CreateRevocationRegistryDefinitionReturn, error) {
	if options == nil {
		return nil, fmt.Errorf("missing options")
	}
	if options.MaximumCredentialNumber <= 0 {
		return nil, reverrors.Newf(reverrors.CodeTransient, "invalid maximumCredentialNumber: %d", options.MaximumCredentialNumber)
	}

	credDef, err := credentialDefinitionFromMap(options.CredentialDefinition)
	if err != nil {
		return nil, err
	}
	defer credDef.Clear()

	def, defPrivate, err := anoncreds.CreateRevocationRegistryDefinition(anoncreds.CreateRevocationRegistryDefinitionOptions{
		CredentialDefinition:   credDef,
		CredentialDefinitionID: options.CredentialDefinitionId,
		IssuerID:               options.IssuerId,
		Tag:                    options.Tag,
		RevocationRegistryType: "CL_ACCUM",
		MaxCredNum:             options.MaximumCredentialNumber,
		TailsDirectoryPath:     options.TailsDirectoryPath,
	})
	if err != nil {
		return nil, reverrors.New(reverrors.CodeTransient, "failed to create revocation registry definition", err)
	}
	defer def.Clear()
	defer defPrivate.Clear()

	defJSON, err := def.ToJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to convert revocation registry definition to JSON: %w", err)
	}
	privateJSON, err := defPrivate.ToJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to convert revocation registry private to JSON: %w", err)
	}

	parsed, err := parseRegistryDefinition(defJSON)
	if err != nil {
		return nil, err
	}
	return &services.CreateRevocationRegistryDefinitionReturn{
		RevocationRegistryDefinition:        parsed,
		RevocationRegistryDefinitionPrivate: privateJSON,
	}, nil
}

func (s *AnonCredsRsIssuerService) CreateRevocationStatusList(ctx *corectx.AgentContext, options *services.CreateRevocationStatusListOptions) (registry.RevocationStatusList, error) {
	if options == nil {
		return registry.RevocationStatusList{}, fmt.Errorf("missing options")
	}

	credDef, err := credentialDefinitionFromMap(options.CredentialDefinition)
	if err != nil {
		return registry.RevocationStatusList{}, err
	}
	defer credDef.Clear()

	def, defPrivate, err := nativeDefinitionPair(options.RevocationRegistryDefinition, options.RevocationRegistryDefinitionPrivate)
	if err != nil {
		return registry.RevocationStatusList{}, err
	}
	defer def.Clear()
	defer defPrivate.Clear()

	list, err := anoncreds.CreateRevocationStatusList(anoncreds.CreateRevocationStatusListOptions{
		CredentialDefinition:                 credDef,
		RevocationRegistryDefinitionID:       options.RevocationRegistryDefinitionId,
		RevocationRegistryDefinition:         def,
		RevocationRegistryDefinitionPrivate:  defPrivate,
		IssuerID:                             options.IssuerId,
		IssuanceByDefault:                    true,
		Timestamp:                            options.Timestamp,
	})
	if err != nil {
		return registry.RevocationStatusList{}, reverrors.New(reverrors.CodeTransient, "failed to create revocation status list", err)
	}
	defer list.Clear()

	return statusListFromNative(list)
}

func (s *AnonCredsRsIssuerService) UpdateRevocationStatusList(ctx *corectx.AgentContext, options *services.UpdateRevocationStatusListOptions) (registry.RevocationStatusList, error) {
	if options == nil {
		return registry.RevocationStatusList{}, fmt.Errorf("missing options")
	}
	if len(options.RevokedIndexes) == 0 && len(options.IssuedIndexes) == 0 {
		return registry.RevocationStatusList{}, fmt.Errorf("no indexes to update")
	}

	credDef, err := credentialDefinitionFromMap(options.CredentialDefinition)
	if err != nil {
		return registry.RevocationStatusList{}, err
	}
	defer credDef.Clear()

	def, defPrivate, err := nativeDefinitionPair(options.RevocationRegistryDefinition, options.RevocationRegistryDefinitionPrivate)
	if err != nil {
		return registry.RevocationStatusList{}, err
	}
	defer def.Clear()
	defer defPrivate.Clear()

	currentJSON, err := json.Marshal(options.CurrentList)
	if err != nil {
		return registry.RevocationStatusList{}, fmt.Errorf("invalid current status list: %w", err)
	}
	current, err := anoncreds.RevocationStatusListFromJSON(string(currentJSON))
	if err != nil {
		return registry.RevocationStatusList{}, reverrors.New(reverrors.CodeTransient, "invalid current status list", err)
	}
	defer current.Clear()

	updated, err := anoncreds.UpdateRevocationStatusList(anoncreds.UpdateRevocationStatusListOptions{
		CredentialDefinition:                credDef,
		RevocationRegistryDefinition:        def,
		RevocationRegistryDefinitionPrivate: defPrivate,
		CurrentRevocationStatusList:         current,
		RevokedIndexes:                      options.RevokedIndexes,
		IssuedIndexes:                       options.IssuedIndexes,
		Timestamp:                           options.Timestamp,
	})
	if err != nil {
		return registry.RevocationStatusList{}, reverrors.New(reverrors.CodeTransient, "failed to update revocation status list", err)
	}
	defer updated.Clear()

	return statusListFromNative(updated)
}

func credentialDefinitionFromMap(credDefMap map[string]interface{}) (*anoncreds.CredentialDefinition, error) {
	if credDefMap == nil {
		return nil, fmt.Errorf("missing credential definition")
	}
	raw, err := json.Marshal(credDefMap)
	if err != nil {
		return nil, fmt.Errorf("invalid credential definition: %w", err)
	}
	credDef, err := anoncreds.CredentialDefinitionFromJSON(string(raw))
	if err != nil {
		return nil, reverrors.New(reverrors.CodeTransient, "invalid credential definition", err)
	}
	return credDef, nil
}

// nativeDefinitionPair rehydrates the native definition and private key from
// their stored JSON forms
func nativeDefinitionPair(def registry.RevocationRegistryDefinition, private map[string]interface{}) (*anoncreds.RevocationRegistryDefinition, *anoncreds.RevocationRegistryDefinitionPrivate, error) {
	defRaw, err := json.Marshal(def)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid revocation registry definition: %w", err)
	}
	nativeDef, err := anoncreds.RevocationRegistryDefinitionFromJSON(string(defRaw))
	if err != nil {
		return nil, nil, reverrors.New(reverrors.CodeTransient, "invalid revocation registry definition", err)
	}

	privateRaw, err := json.Marshal(private)
	if err != nil {
		nativeDef.Clear()
		return nil, nil, fmt.Errorf("invalid revocation registry private: %w", err)
	}
	nativePrivate, err := anoncreds.RevocationRegistryDefinitionPrivateFromJSON(string(privateRaw))
	if err != nil {
		nativeDef.Clear()
		return nil, nil, reverrors.New(reverrors.CodeTransient, "invalid revocation registry private", err)
	}
	return nativeDef, nativePrivate, nil
}

func parseRegistryDefinition(defJSON map[string]interface{}) (registry.RevocationRegistryDefinition, error) {
	raw, err := json.Marshal(defJSON)
	if err != nil {
		return registry.RevocationRegistryDefinition{}, fmt.Errorf("invalid definition JSON: %w", err)
	}
	var parsed registry.RevocationRegistryDefinition
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return registry.RevocationRegistryDefinition{}, fmt.Errorf("failed to parse revocation registry definition: %w", err)
	}
	return parsed, nil
}

func statusListFromNative(list *anoncreds.RevocationStatusList) (registry.RevocationStatusList, error) {
	listJSON, err := list.ToJSON()
	if err != nil {
		return registry.RevocationStatusList{}, fmt.Errorf("failed to convert status list to JSON: %w", err)
	}
	raw, err := json.Marshal(listJSON)
	if err != nil {
		return registry.RevocationStatusList{}, fmt.Errorf("invalid status list JSON: %w", err)
	}
	var parsed registry.RevocationStatusList
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return registry.RevocationStatusList{}, fmt.Errorf("failed to parse status list: %w", err)
	}
	return parsed, nil
}
