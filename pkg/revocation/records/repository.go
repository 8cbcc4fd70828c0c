package records

import (
	"context"
	"fmt"

	"github.com/ajna-inc/revreg/pkg/core/storage"
	"github.com/ajna-inc/revreg/pkg/revocation/reverrors"
)

// RevocationRepository bundles typed access to the three revocation record
// classes over one storage service. Bind it to a transaction with
// InTransaction to get row-locked reads.
type RevocationRepository struct {
	store storage.StorageService
}

// NewRevocationRepository creates a repository over the given storage service
func NewRevocationRepository(store storage.StorageService) *RevocationRepository {
	return &RevocationRepository{store: store}
}

// InTransaction returns a repository view bound to the given transaction
func (r *RevocationRepository) InTransaction(txn storage.Transaction) *RevocationRepository {
	return &RevocationRepository{store: txn}
}

// forUpdate returns the bound transaction, or an error when the repository is
// not transaction-scoped
func (r *RevocationRepository) forUpdate() (storage.Transaction, error) {
	txn, ok := r.store.(storage.Transaction)
	if !ok {
		return nil, fmt.Errorf("locked read requires a transaction-scoped repository")
	}
	return txn, nil
}

// ---- definition records ----

// SaveDefinition stores a definition record
func (r *RevocationRepository) SaveDefinition(ctx context.Context, record *RevocationRegistryDefinitionRecord) error {
	record.refreshTags()
	return r.store.Save(ctx, record)
}

// UpdateDefinition updates a definition record
func (r *RevocationRepository) UpdateDefinition(ctx context.Context, record *RevocationRegistryDefinitionRecord) error {
	record.refreshTags()
	return r.store.Update(ctx, record)
}

// DeleteDefinition removes a definition record
func (r *RevocationRepository) DeleteDefinition(ctx context.Context, record *RevocationRegistryDefinitionRecord) error {
	return r.store.Delete(ctx, record)
}

// GetDefinitionByRegistryId finds the definition record for a registry id
func (r *RevocationRepository) GetDefinitionByRegistryId(ctx context.Context, revRegDefId string) (*RevocationRegistryDefinitionRecord, error) {
	query := *storage.NewQuery().WithTag("revocationRegistryDefinitionId", revRegDefId)
	record, err := r.store.FindSingleByQuery(ctx, "RevocationRegistryDefinitionRecord", query)
	if err != nil {
		return nil, err
	}
	return asDefinitionRecord(record)
}

// FindDefinitionsByCredentialDefinitionId lists all registries of a credential
// definition
func (r *RevocationRepository) FindDefinitionsByCredentialDefinitionId(ctx context.Context, credDefId string) ([]*RevocationRegistryDefinitionRecord, error) {
	query := *storage.NewQuery().WithTag("credentialDefinitionId", credDefId)
	found, err := r.store.FindByQuery(ctx, "RevocationRegistryDefinitionRecord", query)
	if err != nil {
		return nil, err
	}
	result := make([]*RevocationRegistryDefinitionRecord, 0, len(found))
	for _, record := range found {
		defRecord, err := asDefinitionRecord(record)
		if err != nil {
			continue
		}
		result = append(result, defRecord)
	}
	return result, nil
}

// FindActiveDefinitions lists the registries currently marked active for a
// credential definition. The engine keeps this at exactly one; callers that
// see more than one are expected to heal the invariant.
func (r *RevocationRepository) FindActiveDefinitions(ctx context.Context, credDefId string) ([]*RevocationRegistryDefinitionRecord, error) {
	query := *storage.NewQuery().
		WithTag("credentialDefinitionId", credDefId).
		WithTag("active", "true")
	found, err := r.store.FindByQuery(ctx, "RevocationRegistryDefinitionRecord", query)
	if err != nil {
		return nil, err
	}
	result := make([]*RevocationRegistryDefinitionRecord, 0, len(found))
	for _, record := range found {
		defRecord, err := asDefinitionRecord(record)
		if err != nil {
			continue
		}
		result = append(result, defRecord)
	}
	return result, nil
}

// FindActiveDefinitionsForUpdate is the locked variant of FindActiveDefinitions
func (r *RevocationRepository) FindActiveDefinitionsForUpdate(ctx context.Context, credDefId string) ([]*RevocationRegistryDefinitionRecord, error) {
	txn, err := r.forUpdate()
	if err != nil {
		return nil, err
	}
	query := *storage.NewQuery().
		WithTag("credentialDefinitionId", credDefId).
		WithTag("active", "true")
	found, err := txn.FindByQueryForUpdate(ctx, "RevocationRegistryDefinitionRecord", query)
	if err != nil {
		return nil, err
	}
	result := make([]*RevocationRegistryDefinitionRecord, 0, len(found))
	for _, record := range found {
		defRecord, err := asDefinitionRecord(record)
		if err != nil {
			continue
		}
		result = append(result, defRecord)
	}
	return result, nil
}

// GetDefinitionByRegistryIdForUpdate locks the definition record for the rest
// of the transaction
func (r *RevocationRepository) GetDefinitionByRegistryIdForUpdate(ctx context.Context, revRegDefId string) (*RevocationRegistryDefinitionRecord, error) {
	txn, err := r.forUpdate()
	if err != nil {
		return nil, err
	}
	query := *storage.NewQuery().WithTag("revocationRegistryDefinitionId", revRegDefId)
	found, err := txn.FindByQueryForUpdate(ctx, "RevocationRegistryDefinitionRecord", query)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, reverrors.Newf(reverrors.CodeNotFound, "revocation registry definition record not found: %s", revRegDefId)
	}
	return asDefinitionRecord(found[0])
}

// ---- private key records ----

// SavePrivate stores a private key record
func (r *RevocationRepository) SavePrivate(ctx context.Context, record *RevocationRegistryPrivateRecord) error {
	return r.store.Save(ctx, record)
}

// GetPrivateById fetches a private key record by id (temporary or permanent)
func (r *RevocationRepository) GetPrivateById(ctx context.Context, id string) (*RevocationRegistryPrivateRecord, error) {
	record, err := r.store.GetById(ctx, "RevocationRegistryPrivateRecord", id)
	if err != nil {
		return nil, err
	}
	return asPrivateRecord(record)
}

// FindPrivateById fetches a private key record by id, returning nil when absent
func (r *RevocationRepository) FindPrivateById(ctx context.Context, id string) (*RevocationRegistryPrivateRecord, error) {
	record, err := r.store.GetById(ctx, "RevocationRegistryPrivateRecord", id)
	if err != nil {
		if reverrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return asPrivateRecord(record)
}

// DeletePrivateById removes a private key record
func (r *RevocationRepository) DeletePrivateById(ctx context.Context, id string) error {
	return r.store.DeleteById(ctx, "RevocationRegistryPrivateRecord", id)
}

// ---- list records ----

// SaveList stores a list record
func (r *RevocationRepository) SaveList(ctx context.Context, record *RevocationListRecord) error {
	record.refreshTags()
	return r.store.Save(ctx, record)
}

// UpdateList bumps the record version and persists it
func (r *RevocationRepository) UpdateList(ctx context.Context, record *RevocationListRecord) error {
	record.Version++
	record.refreshTags()
	return r.store.Update(ctx, record)
}

// GetListByRegistryId fetches the list record of a registry
func (r *RevocationRepository) GetListByRegistryId(ctx context.Context, revRegDefId string) (*RevocationListRecord, error) {
	record, err := r.store.GetById(ctx, "RevocationListRecord", revRegDefId)
	if err != nil {
		return nil, err
	}
	return asListRecord(record)
}

// GetListByRegistryIdForUpdate locks the list record for the rest of the
// transaction. Index allocation serializes on this lock.
func (r *RevocationRepository) GetListByRegistryIdForUpdate(ctx context.Context, revRegDefId string) (*RevocationListRecord, error) {
	txn, err := r.forUpdate()
	if err != nil {
		return nil, err
	}
	record, err := txn.GetByIdForUpdate(ctx, "RevocationListRecord", revRegDefId)
	if err != nil {
		return nil, err
	}
	return asListRecord(record)
}

// FindListsWithPending lists records that still have unpublished revocations
func (r *RevocationRepository) FindListsWithPending(ctx context.Context, credDefId string) ([]*RevocationListRecord, error) {
	query := storage.NewQuery().WithTag("pending", "true")
	if credDefId != "" {
		query = query.WithTag("credentialDefinitionId", credDefId)
	}
	found, err := r.store.FindByQuery(ctx, "RevocationListRecord", *query)
	if err != nil {
		return nil, err
	}
	result := make([]*RevocationListRecord, 0, len(found))
	for _, record := range found {
		listRecord, err := asListRecord(record)
		if err != nil {
			continue
		}
		result = append(result, listRecord)
	}
	return result, nil
}

// ---- decoding ----

func asDefinitionRecord(record storage.Record) (*RevocationRegistryDefinitionRecord, error) {
	if defRecord, ok := record.(*RevocationRegistryDefinitionRecord); ok {
		return defRecord, nil
	}
	data, err := record.ToJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to get record data: %w", err)
	}
	var defRecord RevocationRegistryDefinitionRecord
	defRecord.BaseRecord = storage.NewBaseRecord("RevocationRegistryDefinitionRecord")
	if err := defRecord.FromJSON(data); err != nil {
		return nil, fmt.Errorf("failed to deserialize record: %w", err)
	}
	return &defRecord, nil
}

func asPrivateRecord(record storage.Record) (*RevocationRegistryPrivateRecord, error) {
	if privRecord, ok := record.(*RevocationRegistryPrivateRecord); ok {
		return privRecord, nil
	}
	data, err := record.ToJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to get record data: %w", err)
	}
	var privRecord RevocationRegistryPrivateRecord
	privRecord.BaseRecord = storage.NewBaseRecord("RevocationRegistryPrivateRecord")
	if err := privRecord.FromJSON(data); err != nil {
		return nil, fmt.Errorf("failed to deserialize record: %w", err)
	}
	return &privRecord, nil
}

func asListRecord(record storage.Record) (*RevocationListRecord, error) {
	if listRecord, ok := record.(*RevocationListRecord); ok {
		return listRecord, nil
	}
	data, err := record.ToJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to get record data: %w", err)
	}
	var listRecord RevocationListRecord
	listRecord.BaseRecord = storage.NewBaseRecord("RevocationListRecord")
	if err := listRecord.FromJSON(data); err != nil {
		return nil, fmt.Errorf("failed to deserialize record: %w", err)
	}
	return &listRecord, nil
}
