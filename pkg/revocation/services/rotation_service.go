package services

import (
	"github.com/ajna-inc/revreg/pkg/core/common"
	corectx "github.com/ajna-inc/revreg/pkg/core/context"
	"github.com/ajna-inc/revreg/pkg/core/events"
	"github.com/ajna-inc/revreg/pkg/core/logger"
	"github.com/ajna-inc/revreg/pkg/core/storage"
	"github.com/ajna-inc/revreg/pkg/revocation/records"
	"github.com/ajna-inc/revreg/pkg/revocation/reverrors"
)

// RevocationRotationService promotes backup registries when the active one
// fills up and retires superseded registries. It never leaves a credential
// definition without an active registry on its own initiative.
type RevocationRotationService struct {
	store       storage.TransactionalStorageService
	repo        *records.RevocationRepository
	registrySvc *RevocationRegistryService
	listSvc     *RevocationListService
	emitter     *events.Emitter
	log         logger.Logger
}

// NewRevocationRotationService creates a rotation service
func NewRevocationRotationService(
	store storage.TransactionalStorageService,
	repo *records.RevocationRepository,
	registrySvc *RevocationRegistryService,
	listSvc *RevocationListService,
	emitter *events.Emitter,
	log logger.Logger,
) *RevocationRotationService {
	return &RevocationRotationService{
		store:       store,
		repo:        repo,
		registrySvc: registrySvc,
		listSvc:     listSvc,
		emitter:     emitter,
		log:         log,
	}
}

// HandleFullRegistry reacts to a full-registry signal: the exhausted registry
// is marked full and a finished, inactive backup is promoted via an
// activation request event. Activation side effects (including provisioning a
// fresh backup) run in the handler of the activation-succeeded event. Exactly
// one rotation response event is emitted.
func (s *RevocationRotationService) HandleFullRegistry(ctx *corectx.AgentContext, revocationRegistryDefinitionId string, credentialDefinitionId string) error {
	promoted, err := s.handleFullRegistry(ctx, revocationRegistryDefinitionId, credentialDefinitionId)

	payload := &RotationHandledPayload{
		FullRegistryId:         revocationRegistryDefinitionId,
		PromotedRegistryId:     promoted,
		CredentialDefinitionId: credentialDefinitionId,
		Success:                err == nil,
	}
	if err != nil {
		payload.Message = err.Error()
		s.log.Errorf("Rotation of full registry %s failed: %v", revocationRegistryDefinitionId, err)
	}
	s.emitter.Emit(ctx, events.EventRegistryRotationHandled, payload)

	return err
}

func (s *RevocationRotationService) handleFullRegistry(ctx *corectx.AgentContext, revRegDefId string, credDefId string) (string, error) {
	full, err := s.repo.GetDefinitionByRegistryId(ctx.Context, revRegDefId)
	if err != nil {
		return "", err
	}
	// A full registry that is no longer active was already rotated away;
	// duplicate signals must not promote a second backup
	if full.State == records.RegistryStateFull && !full.Active {
		s.log.Debugf("Registry %s already rotated, ignoring duplicate full signal", revRegDefId)
		return "", nil
	}

	siblings, err := s.repo.FindDefinitionsByCredentialDefinitionId(ctx.Context, credDefId)
	if err != nil {
		return "", err
	}

	var backup *records.RevocationRegistryDefinitionRecord
	for _, sibling := range siblings {
		if sibling.RevocationRegistryDefinitionId == revRegDefId {
			continue
		}
		if sibling.State == records.RegistryStateFinished && !sibling.Active {
			backup = sibling
			break
		}
	}
	if backup == nil {
		return "", reverrors.Newf(reverrors.CodeNotFound, "no backup revocation registry available for credential definition %s; manual provisioning required", credDefId)
	}

	if full.State != records.RegistryStateFull {
		full.SetState(records.RegistryStateFull)
		if err := s.repo.UpdateDefinition(ctx.Context, full); err != nil {
			return "", err
		}
	}

	s.emitter.Emit(ctx, events.EventRegistryActivationRequested, &ActivationPayload{
		RevocationRegistryDefinitionId: backup.RevocationRegistryDefinitionId,
		CredentialDefinitionId:         credDefId,
	})
	return backup.RevocationRegistryDefinitionId, nil
}

// ProvisionBackup creates and finishes one fresh, inactive registry so the
// next rotation has something to promote. Runs after every successful
// activation.
func (s *RevocationRotationService) ProvisionBackup(ctx *corectx.AgentContext, credentialDefinitionId string, issuerId string, maxCredNum int) (*records.RevocationRegistryDefinitionRecord, error) {
	record, err := s.registrySvc.CreateAndRegister(ctx, &CreateRegistryOptions{
		RequestId:               common.GenerateUUID(),
		IssuerId:                issuerId,
		CredentialDefinitionId:  credentialDefinitionId,
		Tag:                     common.GenerateUUID(),
		MaximumCredentialNumber: maxCredNum,
	})
	if err != nil {
		return nil, err
	}
	if _, err := s.listSvc.CreateAndRegister(ctx, record.RevocationRegistryDefinitionId); err != nil {
		return nil, err
	}
	return record, nil
}

// Decommission is the synchronous, heavier-weight rotation: a brand new
// registry is created and activated immediately, every other registry except
// those still registering is retired in one transaction, and one fresh backup
// is provisioned. Returns the retired records.
func (s *RevocationRotationService) Decommission(ctx *corectx.AgentContext, credentialDefinitionId string, issuerId string, maxCredNum int) ([]*records.RevocationRegistryDefinitionRecord, error) {
	replacement, err := s.ProvisionBackup(ctx, credentialDefinitionId, issuerId, maxCredNum)
	if err != nil {
		return nil, err
	}
	if err := s.registrySvc.Activate(ctx, replacement.RevocationRegistryDefinitionId); err != nil {
		return nil, err
	}

	var decommissioned []*records.RevocationRegistryDefinitionRecord
	err = s.store.WithTransaction(ctx.Context, func(txn storage.Transaction) error {
		txr := s.repo.InTransaction(txn)
		siblings, err := txr.FindDefinitionsByCredentialDefinitionId(ctx.Context, credentialDefinitionId)
		if err != nil {
			return err
		}
		for _, sibling := range siblings {
			if sibling.RevocationRegistryDefinitionId == replacement.RevocationRegistryDefinitionId {
				continue
			}
			if sibling.State == records.RegistryStateWait || sibling.State == records.RegistryStateDecommissioned {
				continue
			}
			sibling.SetState(records.RegistryStateDecommissioned)
			sibling.SetActive(false)
			if err := txr.UpdateDefinition(ctx.Context, sibling); err != nil {
				return err
			}
			decommissioned = append(decommissioned, sibling)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// One more standby so the next rotation stays cheap
	if _, err := s.ProvisionBackup(ctx, credentialDefinitionId, issuerId, maxCredNum); err != nil {
		s.log.Warnf("Decommission of %s succeeded but backup provisioning failed: %v", credentialDefinitionId, err)
	}

	return decommissioned, nil
}
