package services

import (
	"encoding/json"
	"fmt"

	"github.com/ajna-inc/revreg/pkg/anoncreds/registry"
	"github.com/ajna-inc/revreg/pkg/revocation/records"
)

// CreateRegistryOptions is the input of a registry definition creation request
type CreateRegistryOptions struct {
	RequestId              string `json:"requestId,omitempty"`
	IssuerId               string `json:"issuerId"`
	CredentialDefinitionId string `json:"credentialDefinitionId"`
	Tag                    string `json:"tag,omitempty"`
	MaximumCredentialNumber int   `json:"maximumCredentialNumber"`
	// Attempt counts retries of the same request for event consumers
	Attempt int `json:"attempt,omitempty"`
}

// AllocationResult carries the outcome of one index allocation. The list and
// private key records are handed back so the issuance path does not need a
// second round of lookups.
type AllocationResult struct {
	Index      int
	Definition *records.RevocationRegistryDefinitionRecord
	List       *records.RevocationListRecord
	PrivateKey *records.RevocationRegistryPrivateRecord
}

// PublishOptions tunes one batched publish run
type PublishOptions struct {
	// AdditionalIndexes are revoked together with the queued pending indexes
	AdditionalIndexes []int
	// LimitIndexes restricts the publish to a subset of the valid candidates;
	// the remainder stays queued. Nil means publish everything valid.
	LimitIndexes []int
}

// PublishResult reports the outcome of a batched publish
type PublishResult struct {
	PreviousList registry.RevocationStatusList
	UpdatedList  registry.RevocationStatusList
	// Revoked are the indexes folded into the published accumulator
	Revoked []int
	// Failed are candidates rejected as out of range, never issued or already
	// revoked
	Failed []int
	// Attempts is how many optimistic-concurrency rounds the publish took
	Attempts int
}

// ---- event payloads ----

// RegistryDefinitionResponsePayload is emitted exactly once per definition
// creation request, success or failure
type RegistryDefinitionResponsePayload struct {
	RequestId                      string                 `json:"requestId,omitempty"`
	CredentialDefinitionId         string                 `json:"credentialDefinitionId"`
	RevocationRegistryDefinitionId string                 `json:"revocationRegistryDefinitionId,omitempty"`
	JobId                          string                 `json:"jobId,omitempty"`
	Success                        bool                   `json:"success"`
	Message                        string                 `json:"message,omitempty"`
	ShouldRetry                    bool                   `json:"shouldRetry"`
	Options                        *CreateRegistryOptions `json:"options,omitempty"`
}

// RegistryDefinitionFinishedPayload announces a definition that reached the
// finished state and needs its initial revocation list
type RegistryDefinitionFinishedPayload struct {
	RevocationRegistryDefinitionId string `json:"revocationRegistryDefinitionId"`
	CredentialDefinitionId         string `json:"credentialDefinitionId"`
}

// ListCreateRequestPayload asks for the initial status list of a finished
// registry, typically to retry after a failed first attempt
type ListCreateRequestPayload struct {
	RevocationRegistryDefinitionId string `json:"revocationRegistryDefinitionId"`
}

// ListResponsePayload is emitted exactly once per list creation request
type ListResponsePayload struct {
	RevocationRegistryDefinitionId string `json:"revocationRegistryDefinitionId"`
	CredentialDefinitionId         string `json:"credentialDefinitionId"`
	FirstRegistry                  bool   `json:"firstRegistry"`
	Success                        bool   `json:"success"`
	Message                        string `json:"message,omitempty"`
	ShouldRetry                    bool   `json:"shouldRetry"`
}

// RegistryFullPayload signals that a registry is exhausted or one allocation
// away from it
type RegistryFullPayload struct {
	RevocationRegistryDefinitionId string `json:"revocationRegistryDefinitionId"`
	CredentialDefinitionId         string `json:"credentialDefinitionId"`
	AllocatedIndex                 int    `json:"allocatedIndex,omitempty"`
}

// ActivationPayload accompanies activation request and success events
type ActivationPayload struct {
	RevocationRegistryDefinitionId string `json:"revocationRegistryDefinitionId"`
	CredentialDefinitionId         string `json:"credentialDefinitionId"`
}

// RotationHandledPayload reports the outcome of a full-registry rotation
type RotationHandledPayload struct {
	FullRegistryId         string `json:"fullRegistryId"`
	PromotedRegistryId     string `json:"promotedRegistryId,omitempty"`
	CredentialDefinitionId string `json:"credentialDefinitionId"`
	Success                bool   `json:"success"`
	Message                string `json:"message,omitempty"`
}

// RevocationPublishedPayload reports a completed batched publish
type RevocationPublishedPayload struct {
	RevocationRegistryDefinitionId string `json:"revocationRegistryDefinitionId"`
	Revoked                        []int  `json:"revoked"`
	Failed                         []int  `json:"failed,omitempty"`
	Attempts                       int    `json:"attempts"`
}

// credentialDefinitionToMap converts the typed credential definition into the
// generic JSON form the native bindings take
func credentialDefinitionToMap(credDef registry.CredentialDefinition) (map[string]interface{}, error) {
	raw, err := json.Marshal(credDef)
	if err != nil {
		return nil, fmt.Errorf("invalid credential definition: %w", err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("invalid credential definition: %w", err)
	}
	return out, nil
}
