package records

import (
	"encoding/json"

	"github.com/ajna-inc/revreg/pkg/core/storage"
)

// TemporaryPrivateRecordId derives the pre-registration id of a private key
// record from the tails hash. The tails hash is known before the permanent
// registry id is assigned, so a crashed registration can find its key again
// and re-registration stays idempotent.
func TemporaryPrivateRecordId(tailsHash string) string {
	return "tails:" + tailsHash
}

// RevocationRegistryPrivateRecord stores the private accumulator key of one
// revocation registry. The record id is the temporary tails-derived id until
// registration finishes, then the permanent registry id.
type RevocationRegistryPrivateRecord struct {
	*storage.BaseRecord

	RevocationRegistryDefinitionId string                 `json:"revocationRegistryDefinitionId,omitempty"`
	CredentialDefinitionId         string                 `json:"credentialDefinitionId"`
	TailsHash                      string                 `json:"tailsHash"`
	Value                          map[string]interface{} `json:"value"`
}

// NewRevocationRegistryPrivateRecord creates a private key record under its
// temporary tails-derived id
func NewRevocationRegistryPrivateRecord(
	credentialDefinitionId string,
	tailsHash string,
	value map[string]interface{},
) *RevocationRegistryPrivateRecord {
	record := &RevocationRegistryPrivateRecord{
		BaseRecord:             storage.NewBaseRecord("RevocationRegistryPrivateRecord"),
		CredentialDefinitionId: credentialDefinitionId,
		TailsHash:              tailsHash,
		Value:                  value,
	}
	record.ID = TemporaryPrivateRecordId(tailsHash)
	record.SetTag("credentialDefinitionId", credentialDefinitionId)
	record.SetTag("tailsHash", tailsHash)
	return record
}

// AssignRegistryId moves the record to its permanent id once registration has
// finished
func (r *RevocationRegistryPrivateRecord) AssignRegistryId(revocationRegistryDefinitionId string) {
	r.RevocationRegistryDefinitionId = revocationRegistryDefinitionId
	r.ID = revocationRegistryDefinitionId
	r.SetTag("revocationRegistryDefinitionId", revocationRegistryDefinitionId)
}

// ToJSON serializes the record
func (r *RevocationRegistryPrivateRecord) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// FromJSON deserializes the record
func (r *RevocationRegistryPrivateRecord) FromJSON(data []byte) error {
	return json.Unmarshal(data, r)
}

// Clone creates a deep copy of the record
func (r *RevocationRegistryPrivateRecord) Clone() storage.Record {
	cloned := &RevocationRegistryPrivateRecord{
		BaseRecord: &storage.BaseRecord{
			ID:        r.ID,
			Type:      r.Type,
			Tags:      make(map[string]string),
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		},
		RevocationRegistryDefinitionId: r.RevocationRegistryDefinitionId,
		CredentialDefinitionId:         r.CredentialDefinitionId,
		TailsHash:                      r.TailsHash,
		Value:                          make(map[string]interface{}),
	}
	for k, v := range r.Tags {
		cloned.Tags[k] = v
	}
	for k, v := range r.Value {
		cloned.Value[k] = v
	}
	return cloned
}
