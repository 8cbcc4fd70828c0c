package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ajna-inc/revreg/pkg/core/storage"
)

// entry is one stored row: the serialized record plus its tag index
type entry struct {
	value []byte
	tags  map[string]string
}

// MemoryStorageService is an in-memory TransactionalStorageService used by
// tests and the demo command. Transactions hold the global lock for their
// whole duration and stage writes on a copy, so a failed transaction leaves
// the store untouched and concurrent transactions serialize, which is the
// same observable behavior as Askar's row-locked transactions for the access
// patterns of this engine.
type MemoryStorageService struct {
	mu         sync.Mutex
	categories map[string]map[string]entry
}

// NewMemoryStorageService creates an empty in-memory store
func NewMemoryStorageService() *MemoryStorageService {
	return &MemoryStorageService{categories: make(map[string]map[string]entry)}
}

func cloneCategories(src map[string]map[string]entry) map[string]map[string]entry {
	out := make(map[string]map[string]entry, len(src))
	for class, rows := range src {
		cp := make(map[string]entry, len(rows))
		for id, e := range rows {
			tags := make(map[string]string, len(e.tags))
			for k, v := range e.tags {
				tags[k] = v
			}
			cp[id] = entry{value: append([]byte(nil), e.value...), tags: tags}
		}
		out[class] = cp
	}
	return out
}

func reviveRecord(recordClass string, e entry) (storage.Record, error) {
	record, err := storage.CreateRecord(recordClass)
	if err != nil {
		return nil, err
	}
	if err := record.FromJSON(e.value); err != nil {
		return nil, fmt.Errorf("failed to deserialize record: %w", err)
	}
	if len(e.tags) > 0 {
		tags := make(map[string]string, len(e.tags))
		for k, v := range e.tags {
			tags[k] = v
		}
		record.SetTags(tags)
	}
	return record, nil
}

func matchesQuery(tags map[string]string, query storage.Query) bool {
	for k, v := range query.TagConditions() {
		if tags[k] != v {
			return false
		}
	}
	return true
}

// view implements storage ops over one categories map. The memory service
// itself and its transactions are both views.
type view struct {
	categories map[string]map[string]entry
}

func (v *view) save(record storage.Record) error {
	if record == nil {
		return fmt.Errorf("record cannot be nil")
	}
	if record.GetId() == "" {
		record.SetId(uuid.New().String())
	}
	record.SetUpdatedAt(time.Now())

	rows, ok := v.categories[record.GetType()]
	if !ok {
		rows = make(map[string]entry)
		v.categories[record.GetType()] = rows
	}
	if _, exists := rows[record.GetId()]; exists {
		return fmt.Errorf("record with ID %s: %w", record.GetId(), storage.ErrDuplicate)
	}
	return v.put(rows, record)
}

func (v *view) update(record storage.Record) error {
	if record == nil {
		return fmt.Errorf("record cannot be nil")
	}
	record.SetUpdatedAt(time.Now())

	rows := v.categories[record.GetType()]
	if rows == nil {
		return fmt.Errorf("record with ID %s: %w", record.GetId(), storage.ErrNotFound)
	}
	if _, exists := rows[record.GetId()]; !exists {
		return fmt.Errorf("record with ID %s: %w", record.GetId(), storage.ErrNotFound)
	}
	return v.put(rows, record)
}

func (v *view) put(rows map[string]entry, record storage.Record) error {
	value, err := record.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize record: %w", err)
	}
	tags := make(map[string]string)
	for k, t := range record.GetTags() {
		tags[k] = t
	}
	rows[record.GetId()] = entry{value: value, tags: tags}
	return nil
}

func (v *view) deleteById(recordClass, id string) error {
	rows := v.categories[recordClass]
	if rows == nil {
		return fmt.Errorf("record with ID %s: %w", id, storage.ErrNotFound)
	}
	if _, exists := rows[id]; !exists {
		return fmt.Errorf("record with ID %s: %w", id, storage.ErrNotFound)
	}
	delete(rows, id)
	return nil
}

func (v *view) getById(recordClass, id string) (storage.Record, error) {
	rows := v.categories[recordClass]
	if rows != nil {
		if e, exists := rows[id]; exists {
			return reviveRecord(recordClass, e)
		}
	}
	return nil, fmt.Errorf("record with ID %s: %w", id, storage.ErrNotFound)
}

func (v *view) findByQuery(recordClass string, query storage.Query) ([]storage.Record, error) {
	var records []storage.Record
	for id, e := range v.categories[recordClass] {
		if !matchesQuery(e.tags, query) {
			continue
		}
		record, err := reviveRecord(recordClass, e)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", id, err)
		}
		records = append(records, record)
		if query.Limit > 0 && len(records) >= query.Limit {
			break
		}
	}
	return records, nil
}

// --- StorageService ---

func (s *MemoryStorageService) Save(ctx context.Context, record storage.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&view{s.categories}).save(record)
}

func (s *MemoryStorageService) Update(ctx context.Context, record storage.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&view{s.categories}).update(record)
}

func (s *MemoryStorageService) Delete(ctx context.Context, record storage.Record) error {
	return s.DeleteById(ctx, record.GetType(), record.GetId())
}

func (s *MemoryStorageService) DeleteById(ctx context.Context, recordClass string, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&view{s.categories}).deleteById(recordClass, id)
}

func (s *MemoryStorageService) GetById(ctx context.Context, recordClass string, id string) (storage.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&view{s.categories}).getById(recordClass, id)
}

func (s *MemoryStorageService) GetAll(ctx context.Context, recordClass string) ([]storage.Record, error) {
	return s.FindByQuery(ctx, recordClass, storage.Query{})
}

func (s *MemoryStorageService) FindByQuery(ctx context.Context, recordClass string, query storage.Query) ([]storage.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&view{s.categories}).findByQuery(recordClass, query)
}

func (s *MemoryStorageService) FindSingleByQuery(ctx context.Context, recordClass string, query storage.Query) (storage.Record, error) {
	records, err := s.FindByQuery(ctx, recordClass, query)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no %s matching query: %w", recordClass, storage.ErrNotFound)
	}
	return records[0], nil
}

// --- TransactionalStorageService ---

type memoryTransaction struct {
	view
}

func (t *memoryTransaction) Save(ctx context.Context, record storage.Record) error {
	return t.save(record)
}

func (t *memoryTransaction) Update(ctx context.Context, record storage.Record) error {
	return t.update(record)
}

func (t *memoryTransaction) Delete(ctx context.Context, record storage.Record) error {
	return t.deleteById(record.GetType(), record.GetId())
}

func (t *memoryTransaction) DeleteById(ctx context.Context, recordClass string, id string) error {
	return t.deleteById(recordClass, id)
}

func (t *memoryTransaction) GetById(ctx context.Context, recordClass string, id string) (storage.Record, error) {
	return t.getById(recordClass, id)
}

func (t *memoryTransaction) GetAll(ctx context.Context, recordClass string) ([]storage.Record, error) {
	return t.findByQuery(recordClass, storage.Query{})
}

func (t *memoryTransaction) FindByQuery(ctx context.Context, recordClass string, query storage.Query) ([]storage.Record, error) {
	return t.findByQuery(recordClass, query)
}

func (t *memoryTransaction) FindSingleByQuery(ctx context.Context, recordClass string, query storage.Query) (storage.Record, error) {
	records, err := t.findByQuery(recordClass, query)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no %s matching query: %w", recordClass, storage.ErrNotFound)
	}
	return records[0], nil
}

// The global lock is already held for the whole transaction, so ForUpdate
// reads are plain reads here.

func (t *memoryTransaction) GetByIdForUpdate(ctx context.Context, recordClass string, id string) (storage.Record, error) {
	return t.getById(recordClass, id)
}

func (t *memoryTransaction) FindByQueryForUpdate(ctx context.Context, recordClass string, query storage.Query) ([]storage.Record, error) {
	return t.findByQuery(recordClass, query)
}

// WithTransaction runs fn against a staged copy of the store and commits it
// atomically when fn returns nil.
func (s *MemoryStorageService) WithTransaction(ctx context.Context, fn func(txn storage.Transaction) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := cloneCategories(s.categories)
	txn := &memoryTransaction{view{categories: staged}}
	if err := fn(txn); err != nil {
		return err
	}
	s.categories = staged
	return nil
}
