package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/Ajna-inc/askar-go"
	"github.com/google/uuid"

	askarerrors "github.com/ajna-inc/revreg/pkg/askar/errors"
	agentcontext "github.com/ajna-inc/revreg/pkg/core/context"
	"github.com/ajna-inc/revreg/pkg/core/storage"
)

// StoreManager interface for store operations
type StoreManager interface {
	WithSession(ctx *agentcontext.AgentContext, storeID string, fn func(*askar.Session) error) error
	WithTransaction(ctx *agentcontext.AgentContext, storeID string, fn func(*askar.Session) error) error
}

// AskarStorageService implements storage.TransactionalStorageService using Askar.
// Plain reads run in short-lived sessions; WithTransaction keeps one Askar
// transaction session open for the whole callback, so fetch-for-update row
// locks are held until commit or rollback.
type AskarStorageService struct {
	storeManager StoreManager
	storeID      string
}

// NewAskarStorageService creates a new AskarStorageService
func NewAskarStorageService(storeManager StoreManager, storeID string) *AskarStorageService {
	return &AskarStorageService{
		storeManager: storeManager,
		storeID:      storeID,
	}
}

// sessionOps implements record operations over one open Askar session. It is
// the backing for both one-shot operations and transactions.
type sessionOps struct {
	session *askar.Session
}

func (o *sessionOps) save(record storage.Record) error {
	if record == nil {
		return fmt.Errorf("record cannot be nil")
	}
	if record.GetId() == "" {
		record.SetId(uuid.New().String())
	}
	record.SetUpdatedAt(time.Now())

	existing, err := o.session.Fetch(record.GetType(), record.GetId(), false)
	if err != nil {
		return askarerrors.WrapAskarError(err)
	}
	if existing != nil {
		return fmt.Errorf("record with ID %s: %w", record.GetId(), storage.ErrDuplicate)
	}

	value, err := record.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize record: %w", err)
	}

	if err := o.session.Insert(record.GetType(), record.GetId(), value, tagMap(record)); err != nil {
		return askarerrors.WrapAskarError(err)
	}
	return nil
}

func (o *sessionOps) update(record storage.Record) error {
	if record == nil {
		return fmt.Errorf("record cannot be nil")
	}
	record.SetUpdatedAt(time.Now())

	existing, err := o.session.Fetch(record.GetType(), record.GetId(), false)
	if err != nil {
		return askarerrors.WrapAskarError(err)
	}
	if existing == nil {
		return fmt.Errorf("record with ID %s: %w", record.GetId(), storage.ErrNotFound)
	}

	value, err := record.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize record: %w", err)
	}

	if err := o.session.Replace(record.GetType(), record.GetId(), value, tagMap(record)); err != nil {
		return askarerrors.WrapAskarError(err)
	}
	return nil
}

func (o *sessionOps) deleteById(recordClass, id string) error {
	if err := o.session.Remove(recordClass, id); err != nil {
		return askarerrors.WrapAskarError(err)
	}
	return nil
}

func (o *sessionOps) getById(recordClass, id string, forUpdate bool) (storage.Record, error) {
	entry, err := o.session.Fetch(recordClass, id, forUpdate)
	if err != nil {
		return nil, askarerrors.WrapAskarError(err)
	}
	if entry == nil {
		return nil, fmt.Errorf("record with ID %s: %w", id, storage.ErrNotFound)
	}
	return entryToRecord(recordClass, entry)
}

func (o *sessionOps) findByQuery(recordClass string, query storage.Query, forUpdate bool) ([]storage.Record, error) {
	tagFilter := buildTagFilterMap(query)

	limit := int64(query.Limit)
	if limit == 0 {
		limit = -1
	}
	entries, err := o.session.FetchAll(recordClass, tagFilter, limit, forUpdate, "", false)
	if err != nil {
		return nil, askarerrors.WrapAskarError(err)
	}

	var records []storage.Record
	for _, entry := range entries {
		record, err := entryToRecord(recordClass, entry)
		if err != nil {
			// Skip malformed records
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

func (o *sessionOps) findSingleByQuery(recordClass string, query storage.Query, forUpdate bool) (storage.Record, error) {
	query.Limit = 1
	records, err := o.findByQuery(recordClass, query, forUpdate)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no %s matching query: %w", recordClass, storage.ErrNotFound)
	}
	return records[0], nil
}

// --- one-shot StorageService operations ---

func (s *AskarStorageService) Save(ctx context.Context, record storage.Record) error {
	return s.storeManager.WithTransaction(getAgentContext(ctx), s.storeID, func(session *askar.Session) error {
		return (&sessionOps{session}).save(record)
	})
}

func (s *AskarStorageService) Update(ctx context.Context, record storage.Record) error {
	return s.storeManager.WithTransaction(getAgentContext(ctx), s.storeID, func(session *askar.Session) error {
		return (&sessionOps{session}).update(record)
	})
}

func (s *AskarStorageService) Delete(ctx context.Context, record storage.Record) error {
	return s.DeleteById(ctx, record.GetType(), record.GetId())
}

func (s *AskarStorageService) DeleteById(ctx context.Context, recordClass string, id string) error {
	return s.storeManager.WithTransaction(getAgentContext(ctx), s.storeID, func(session *askar.Session) error {
		return (&sessionOps{session}).deleteById(recordClass, id)
	})
}

func (s *AskarStorageService) GetById(ctx context.Context, recordClass string, id string) (storage.Record, error) {
	var record storage.Record
	err := s.storeManager.WithSession(getAgentContext(ctx), s.storeID, func(session *askar.Session) error {
		var err error
		record, err = (&sessionOps{session}).getById(recordClass, id, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *AskarStorageService) GetAll(ctx context.Context, recordClass string) ([]storage.Record, error) {
	return s.FindByQuery(ctx, recordClass, storage.Query{})
}

func (s *AskarStorageService) FindByQuery(ctx context.Context, recordClass string, query storage.Query) ([]storage.Record, error) {
	var records []storage.Record
	err := s.storeManager.WithSession(getAgentContext(ctx), s.storeID, func(session *askar.Session) error {
		var err error
		records, err = (&sessionOps{session}).findByQuery(recordClass, query, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *AskarStorageService) FindSingleByQuery(ctx context.Context, recordClass string, query storage.Query) (storage.Record, error) {
	var record storage.Record
	err := s.storeManager.WithSession(getAgentContext(ctx), s.storeID, func(session *askar.Session) error {
		var err error
		record, err = (&sessionOps{session}).findSingleByQuery(recordClass, query, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// --- transactions ---

type askarTransaction struct {
	ops sessionOps
}

func (t *askarTransaction) Save(ctx context.Context, record storage.Record) error {
	return t.ops.save(record)
}

func (t *askarTransaction) Update(ctx context.Context, record storage.Record) error {
	return t.ops.update(record)
}

func (t *askarTransaction) Delete(ctx context.Context, record storage.Record) error {
	return t.ops.deleteById(record.GetType(), record.GetId())
}

func (t *askarTransaction) DeleteById(ctx context.Context, recordClass string, id string) error {
	return t.ops.deleteById(recordClass, id)
}

func (t *askarTransaction) GetById(ctx context.Context, recordClass string, id string) (storage.Record, error) {
	return t.ops.getById(recordClass, id, false)
}

func (t *askarTransaction) GetAll(ctx context.Context, recordClass string) ([]storage.Record, error) {
	return t.ops.findByQuery(recordClass, storage.Query{}, false)
}

func (t *askarTransaction) FindByQuery(ctx context.Context, recordClass string, query storage.Query) ([]storage.Record, error) {
	return t.ops.findByQuery(recordClass, query, false)
}

func (t *askarTransaction) FindSingleByQuery(ctx context.Context, recordClass string, query storage.Query) (storage.Record, error) {
	return t.ops.findSingleByQuery(recordClass, query, false)
}

func (t *askarTransaction) GetByIdForUpdate(ctx context.Context, recordClass string, id string) (storage.Record, error) {
	return t.ops.getById(recordClass, id, true)
}

func (t *askarTransaction) FindByQueryForUpdate(ctx context.Context, recordClass string, query storage.Query) ([]storage.Record, error) {
	return t.ops.findByQuery(recordClass, query, true)
}

// WithTransaction implements storage.TransactionalStorageService
func (s *AskarStorageService) WithTransaction(ctx context.Context, fn func(txn storage.Transaction) error) error {
	return s.storeManager.WithTransaction(getAgentContext(ctx), s.storeID, func(session *askar.Session) error {
		return fn(&askarTransaction{ops: sessionOps{session}})
	})
}

// Helper functions

// getAgentContext extracts or creates an AgentContext from context.Context
func getAgentContext(ctx context.Context) *agentcontext.AgentContext {
	if val := ctx.Value("agentContext"); val != nil {
		if agentCtx, ok := val.(*agentcontext.AgentContext); ok {
			return agentCtx
		}
	}

	return &agentcontext.AgentContext{
		Context: ctx,
	}
}

func entryToRecord(recordClass string, entry *askar.Entry) (storage.Record, error) {
	record, err := storage.CreateRecord(recordClass)
	if err != nil {
		record = storage.NewBaseRecord(recordClass)
	}
	if err := record.FromJSON(entry.Value); err != nil {
		return nil, fmt.Errorf("failed to deserialize record: %w", err)
	}
	if len(entry.Tags) > 0 {
		tags := make(map[string]string)
		for k, v := range entry.Tags {
			if strVal, ok := v.(string); ok {
				tags[k] = strVal
			}
		}
		record.SetTags(tags)
	}
	return record, nil
}

func tagMap(record storage.Record) map[string]interface{} {
	tags := make(map[string]interface{})
	for k, v := range record.GetTags() {
		tags[k] = v
	}
	return tags
}

// buildTagFilterMap converts a storage.Query to Askar tag filter map
func buildTagFilterMap(query storage.Query) map[string]interface{} {
	filter := make(map[string]interface{})
	for key, value := range query.TagConditions() {
		filter[key] = value
	}
	if len(filter) == 0 {
		return nil
	}
	return filter
}
