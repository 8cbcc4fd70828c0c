package services

import (
	"context"

	"github.com/ajna-inc/revreg/pkg/core/storage"
	"github.com/ajna-inc/revreg/pkg/revocation/reverrors"
)

// renameRecord moves a record from one id to another inside the given
// transaction. The storage layer has no native rename, so this is a
// delete-and-reinsert of the same payload under the new id; both writes
// commit or roll back together with the rest of the transaction.
func renameRecord(ctx context.Context, txn storage.Transaction, recordClass string, oldId string, newId string, mutate func(storage.Record)) (storage.Record, error) {
	if oldId == newId {
		record, err := txn.GetById(ctx, recordClass, oldId)
		if err != nil {
			return nil, err
		}
		if mutate != nil {
			mutate(record)
			if err := txn.Update(ctx, record); err != nil {
				return nil, err
			}
		}
		return record, nil
	}

	record, err := txn.GetByIdForUpdate(ctx, recordClass, oldId)
	if err != nil {
		return nil, reverrors.New(reverrors.CodeNotFound, "record to finish not found: "+oldId, err)
	}

	renamed := record.Clone()
	renamed.SetId(newId)
	if mutate != nil {
		mutate(renamed)
	}

	if err := txn.DeleteById(ctx, recordClass, oldId); err != nil {
		return nil, err
	}
	if err := txn.Save(ctx, renamed); err != nil {
		return nil, err
	}
	return renamed, nil
}
