package storage

import "context"

// Transaction is the scope handed to a WithTransaction callback. Reads through
// the ForUpdate variants take a row-level lock held until commit or rollback;
// plain reads behave like a read-only session. All writes performed through a
// Transaction become visible atomically on commit and are discarded when the
// callback returns an error.
type Transaction interface {
	StorageService

	// GetByIdForUpdate fetches a record and locks it for the remainder of the
	// transaction.
	GetByIdForUpdate(ctx context.Context, recordClass string, id string) (Record, error)

	// FindByQueryForUpdate fetches all matching records and locks them for
	// the remainder of the transaction.
	FindByQueryForUpdate(ctx context.Context, recordClass string, query Query) ([]Record, error)
}

// TransactionalStorageService extends StorageService with multi-record
// transactions. The revocation engine relies on this for index allocation,
// activation flips and the two-phase rename of registration results.
type TransactionalStorageService interface {
	StorageService

	// WithTransaction runs fn inside one storage transaction. A nil return
	// commits, any error rolls back and is returned to the caller.
	WithTransaction(ctx context.Context, fn func(txn Transaction) error) error
}
