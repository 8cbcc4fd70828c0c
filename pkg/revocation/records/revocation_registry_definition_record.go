package records

import (
	"encoding/json"

	"github.com/ajna-inc/revreg/pkg/anoncreds/registry"
	"github.com/ajna-inc/revreg/pkg/core/storage"
)

// RegistryState represents the lifecycle state of a revocation registry
type RegistryState string

const (
	// RegistryStateWait - the definition is registered but not yet usable
	// (tails upload or record finalization still in flight)
	RegistryStateWait RegistryState = "wait"
	// RegistryStateFinished - the definition is fully registered and usable
	RegistryStateFinished RegistryState = "finished"
	// RegistryStateFull - every index has been handed out
	RegistryStateFull RegistryState = "full"
	// RegistryStateDecommissioned - the registry is retired and never issues again
	RegistryStateDecommissioned RegistryState = "decommissioned"
)

// RevocationRegistryDefinitionRecord stores the public revocation registry
// definition together with its lifecycle state. Exactly one record per
// credential definition carries the active flag at any time.
type RevocationRegistryDefinitionRecord struct {
	*storage.BaseRecord

	RevocationRegistryDefinitionId string                                `json:"revocationRegistryDefinitionId"`
	CredentialDefinitionId         string                                `json:"credentialDefinitionId"`
	IssuerId                       string                                `json:"issuerId"`
	Tag                            string                                `json:"tag"`
	State                          RegistryState                         `json:"state"`
	Active                         bool                                  `json:"active"`
	MaxCredNum                     int                                   `json:"maxCredNum"`
	TailsHash                      string                                `json:"tailsHash"`
	TailsLocation                  string                                `json:"tailsLocation"`
	TailsLocalPath                 string                                `json:"tailsLocalPath,omitempty"`
	// TailsUploaded records whether the tails file is confirmed present on the
	// tails server; a deferred upload is retried during list creation
	TailsUploaded bool                                  `json:"tailsUploaded"`
	Definition    registry.RevocationRegistryDefinition `json:"definition"`
}

// NewRevocationRegistryDefinitionRecord creates a new definition record in the
// wait state
func NewRevocationRegistryDefinitionRecord(
	revocationRegistryDefinitionId string,
	credentialDefinitionId string,
	definition registry.RevocationRegistryDefinition,
) *RevocationRegistryDefinitionRecord {
	record := &RevocationRegistryDefinitionRecord{
		BaseRecord:                     storage.NewBaseRecord("RevocationRegistryDefinitionRecord"),
		RevocationRegistryDefinitionId: revocationRegistryDefinitionId,
		CredentialDefinitionId:         credentialDefinitionId,
		IssuerId:                       definition.IssuerId,
		Tag:                            definition.Tag,
		State:                          RegistryStateWait,
		MaxCredNum:                     definition.Value.MaxCredNum,
		TailsHash:                      definition.Value.TailsHash,
		TailsLocation:                  definition.Value.TailsLocation,
		Definition:                     definition,
	}
	record.refreshTags()
	return record
}

// refreshTags keeps the queryable tags in sync with the record fields
func (r *RevocationRegistryDefinitionRecord) refreshTags() {
	r.SetTag("revocationRegistryDefinitionId", r.RevocationRegistryDefinitionId)
	r.SetTag("credentialDefinitionId", r.CredentialDefinitionId)
	r.SetTag("state", string(r.State))
	if r.Active {
		r.SetTag("active", "true")
	} else {
		r.SetTag("active", "false")
	}
}

// SetState transitions the record to the given state and syncs tags
func (r *RevocationRegistryDefinitionRecord) SetState(state RegistryState) {
	r.State = state
	r.refreshTags()
}

// SetActive flips the active marker and syncs tags
func (r *RevocationRegistryDefinitionRecord) SetActive(active bool) {
	r.Active = active
	r.refreshTags()
}

// CanIssue reports whether credentials may still be issued against this registry
func (r *RevocationRegistryDefinitionRecord) CanIssue() bool {
	return r.State == RegistryStateFinished
}

// ToJSON serializes the record
func (r *RevocationRegistryDefinitionRecord) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// FromJSON deserializes the record
func (r *RevocationRegistryDefinitionRecord) FromJSON(data []byte) error {
	return json.Unmarshal(data, r)
}

// Clone creates a deep copy of the record
func (r *RevocationRegistryDefinitionRecord) Clone() storage.Record {
	cloned := &RevocationRegistryDefinitionRecord{
		BaseRecord: &storage.BaseRecord{
			ID:        r.ID,
			Type:      r.Type,
			Tags:      make(map[string]string),
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		},
		RevocationRegistryDefinitionId: r.RevocationRegistryDefinitionId,
		CredentialDefinitionId:         r.CredentialDefinitionId,
		IssuerId:                       r.IssuerId,
		Tag:                            r.Tag,
		State:                          r.State,
		Active:                         r.Active,
		MaxCredNum:                     r.MaxCredNum,
		TailsHash:                      r.TailsHash,
		TailsLocation:                  r.TailsLocation,
		TailsLocalPath:                 r.TailsLocalPath,
		TailsUploaded:                  r.TailsUploaded,
		Definition:                     r.Definition,
	}
	for k, v := range r.Tags {
		cloned.Tags[k] = v
	}
	return cloned
}
