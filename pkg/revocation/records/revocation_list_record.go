package records

import (
	"encoding/json"

	"github.com/ajna-inc/revreg/pkg/anoncreds/registry"
	"github.com/ajna-inc/revreg/pkg/core/storage"
)

// ListState represents the registration state of a revocation status list
type ListState string

const (
	// ListStateFinished - the status list is published and indexes may be allocated
	ListStateFinished ListState = "finished"
	// ListStateFailed - the tails upload is still outstanding; the list is
	// repaired at allocation time
	ListStateFailed ListState = "failed"
)

// RevocationListRecord tracks the mutable revocation state of one registry:
// the published status list, the next free credential index and the queue of
// revocations awaiting publication. Version increments on every update and is
// the compare-and-swap token of the batched publish.
type RevocationListRecord struct {
	*storage.BaseRecord

	RevocationRegistryDefinitionId string                        `json:"revocationRegistryDefinitionId"`
	CredentialDefinitionId         string                        `json:"credentialDefinitionId"`
	State                          ListState                     `json:"state"`
	StatusList                     registry.RevocationStatusList `json:"statusList"`
	// NextIndex is the next credential index to hand out. Index 0 is reserved
	// by the accumulator construction, so allocation starts at 1.
	NextIndex int `json:"nextIndex"`
	// PendingRevocations holds indexes revoked locally but not yet published
	PendingRevocations []int `json:"pendingRevocations,omitempty"`
	Version            int   `json:"version"`
}

// NewRevocationListRecord creates a list record for a freshly registered
// status list
func NewRevocationListRecord(
	revocationRegistryDefinitionId string,
	credentialDefinitionId string,
	statusList registry.RevocationStatusList,
) *RevocationListRecord {
	record := &RevocationListRecord{
		BaseRecord:                     storage.NewBaseRecord("RevocationListRecord"),
		RevocationRegistryDefinitionId: revocationRegistryDefinitionId,
		CredentialDefinitionId:         credentialDefinitionId,
		State:                          ListStateFinished,
		StatusList:                     statusList,
		NextIndex:                      1,
		Version:                        1,
	}
	record.ID = revocationRegistryDefinitionId
	record.refreshTags()
	return record
}

func (r *RevocationListRecord) refreshTags() {
	r.SetTag("revocationRegistryDefinitionId", r.RevocationRegistryDefinitionId)
	r.SetTag("credentialDefinitionId", r.CredentialDefinitionId)
	r.SetTag("state", string(r.State))
	if len(r.PendingRevocations) > 0 {
		r.SetTag("pending", "true")
	} else {
		r.SetTag("pending", "false")
	}
}

// SetState transitions the record and syncs tags
func (r *RevocationListRecord) SetState(state ListState) {
	r.State = state
	r.refreshTags()
}

// AddPending queues indexes for a later publish, skipping duplicates
func (r *RevocationListRecord) AddPending(indexes ...int) {
	seen := make(map[int]bool, len(r.PendingRevocations))
	for _, idx := range r.PendingRevocations {
		seen[idx] = true
	}
	for _, idx := range indexes {
		if !seen[idx] {
			r.PendingRevocations = append(r.PendingRevocations, idx)
			seen[idx] = true
		}
	}
	r.refreshTags()
}

// ClearPending empties the pending queue after a successful publish
func (r *RevocationListRecord) ClearPending() {
	r.PendingRevocations = nil
	r.refreshTags()
}

// ToJSON serializes the record
func (r *RevocationListRecord) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// FromJSON deserializes the record
func (r *RevocationListRecord) FromJSON(data []byte) error {
	return json.Unmarshal(data, r)
}

// Clone creates a deep copy of the record
func (r *RevocationListRecord) Clone() storage.Record {
	cloned := &RevocationListRecord{
		BaseRecord: &storage.BaseRecord{
			ID:        r.ID,
			Type:      r.Type,
			Tags:      make(map[string]string),
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		},
		RevocationRegistryDefinitionId: r.RevocationRegistryDefinitionId,
		CredentialDefinitionId:         r.CredentialDefinitionId,
		State:                          r.State,
		StatusList:                     r.StatusList,
		NextIndex:                      r.NextIndex,
		Version:                        r.Version,
	}
	for k, v := range r.Tags {
		cloned.Tags[k] = v
	}
	cloned.StatusList.RevocationList = append([]int(nil), r.StatusList.RevocationList...)
	cloned.PendingRevocations = append([]int(nil), r.PendingRevocations...)
	return cloned
}
