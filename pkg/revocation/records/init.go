package records

import (
	"github.com/ajna-inc/revreg/pkg/core/storage"
)

// init registers the revocation record types with the storage system
func init() {
	storage.RegisterRecordType("RevocationRegistryDefinitionRecord", func() storage.Record {
		return &RevocationRegistryDefinitionRecord{
			BaseRecord: storage.NewBaseRecord("RevocationRegistryDefinitionRecord"),
		}
	})

	storage.RegisterRecordType("RevocationRegistryPrivateRecord", func() storage.Record {
		return &RevocationRegistryPrivateRecord{
			BaseRecord: storage.NewBaseRecord("RevocationRegistryPrivateRecord"),
		}
	})

	storage.RegisterRecordType("RevocationListRecord", func() storage.Record {
		return &RevocationListRecord{
			BaseRecord: storage.NewBaseRecord("RevocationListRecord"),
		}
	})
}
