package repository

import (
	"github.com/ajna-inc/revreg/pkg/core/storage"
)

// init registers the anoncreds record types with the storage system
func init() {
	storage.RegisterRecordType("CredentialDefinitionRecord", func() storage.Record {
		return &CredentialDefinitionRecord{
			BaseRecord: storage.NewBaseRecord("CredentialDefinitionRecord"),
		}
	})
}
