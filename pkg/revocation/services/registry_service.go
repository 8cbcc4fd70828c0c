package services

import (
	"fmt"
	"path/filepath"

	anoncredsrepo "github.com/ajna-inc/revreg/pkg/anoncreds/repository"
	anoncredssvc "github.com/ajna-inc/revreg/pkg/anoncreds/services"
	regsvc "github.com/ajna-inc/revreg/pkg/anoncreds/registry"
	corectx "github.com/ajna-inc/revreg/pkg/core/context"
	"github.com/ajna-inc/revreg/pkg/core/events"
	"github.com/ajna-inc/revreg/pkg/core/logger"
	"github.com/ajna-inc/revreg/pkg/core/storage"
	"github.com/ajna-inc/revreg/pkg/core/utils"
	"github.com/ajna-inc/revreg/pkg/revocation/records"
	"github.com/ajna-inc/revreg/pkg/revocation/reverrors"
	"github.com/ajna-inc/revreg/pkg/revocation/tails"
)

// RevocationRegistryService manages the lifecycle of revocation registry
// definitions: creation, external registration, finishing and activation.
// It is the only writer of the per-credential-definition active flag.
type RevocationRegistryService struct {
	store       storage.TransactionalStorageService
	repo        *records.RevocationRepository
	credDefRepo *anoncredsrepo.CredentialDefinitionRepository
	issuer      anoncredssvc.AnonCredsIssuerService
	registry    *regsvc.Service
	tails       *tails.Client
	emitter     *events.Emitter
	log         logger.Logger
}

// NewRevocationRegistryService creates a registry lifecycle service
func NewRevocationRegistryService(
	store storage.TransactionalStorageService,
	repo *records.RevocationRepository,
	credDefRepo *anoncredsrepo.CredentialDefinitionRepository,
	issuer anoncredssvc.AnonCredsIssuerService,
	registryService *regsvc.Service,
	tailsClient *tails.Client,
	emitter *events.Emitter,
	log logger.Logger,
) *RevocationRegistryService {
	return &RevocationRegistryService{
		store:       store,
		repo:        repo,
		credDefRepo: credDefRepo,
		issuer:      issuer,
		registry:    registryService,
		tails:       tailsClient,
		emitter:     emitter,
		log:         log,
	}
}

// CreateAndRegister synthesizes a new revocation registry definition, uploads
// its tails file, registers it externally and stores the result. Exactly one
// response event is emitted, success or failure; the error return lets
// synchronous callers react without subscribing.
func (s *RevocationRegistryService) CreateAndRegister(ctx *corectx.AgentContext, options *CreateRegistryOptions) (*records.RevocationRegistryDefinitionRecord, error) {
	record, err := s.createAndRegister(ctx, options)

	payload := &RegistryDefinitionResponsePayload{
		RequestId:              options.RequestId,
		CredentialDefinitionId: options.CredentialDefinitionId,
		Success:                err == nil,
		Options:                options,
	}
	if err != nil {
		payload.Message = fmt.Sprintf("failed to create revocation registry (issuerId=%s credentialDefinitionId=%s tag=%s maxCredNum=%d): %v",
			options.IssuerId, options.CredentialDefinitionId, options.Tag, options.MaximumCredentialNumber, err)
		payload.ShouldRetry = reverrors.ShouldRetry(err)
		s.log.Errorf("%s", payload.Message)
	} else {
		payload.RevocationRegistryDefinitionId = record.RevocationRegistryDefinitionId
		if record.State == records.RegistryStateWait {
			// The record is stored under the job id until Finish migrates it
			payload.JobId = record.GetId()
		}
	}
	s.emitter.Emit(ctx, events.EventRegistryDefinitionCreateResponse, payload)

	return record, err
}

func (s *RevocationRegistryService) createAndRegister(ctx *corectx.AgentContext, options *CreateRegistryOptions) (*records.RevocationRegistryDefinitionRecord, error) {
	if options == nil {
		return nil, fmt.Errorf("missing options")
	}

	// Precondition: a finished credential definition that supports revocation
	credDefRecord, err := s.credDefRepo.GetByCredentialDefinitionId(ctx.Context, options.CredentialDefinitionId)
	if err != nil {
		return nil, err
	}
	if !credDefRecord.CredentialDefinition.SupportsRevocation {
		return nil, reverrors.Newf(reverrors.CodeNotFound, "credential definition does not support revocation: %s", options.CredentialDefinitionId)
	}
	credDefMap, err := credentialDefinitionToMap(credDefRecord.CredentialDefinition)
	if err != nil {
		return nil, err
	}

	tailsDir := ""
	if ctx.Config != nil {
		tailsDir = ctx.Config.TailsDirectory
	}
	created, err := s.issuer.CreateRevocationRegistryDefinition(ctx, &anoncredssvc.CreateRevocationRegistryDefinitionOptions{
		IssuerId:                options.IssuerId,
		CredentialDefinitionId:  options.CredentialDefinitionId,
		CredentialDefinition:    credDefMap,
		Tag:                     options.Tag,
		MaximumCredentialNumber: options.MaximumCredentialNumber,
		TailsDirectoryPath:      tailsDir,
	})
	if err != nil {
		return nil, err
	}

	definition := created.RevocationRegistryDefinition
	tailsHash := definition.Value.TailsHash
	if tailsHash == "" {
		return nil, reverrors.Newf(reverrors.CodeTransient, "native library returned no tails hash")
	}

	tailsLocation := s.tails.FileUrl(tailsHash)
	if !utils.IsValidAbsoluteURL(tailsLocation) {
		return nil, reverrors.Newf(reverrors.CodeTransient, "computed tails location is not an absolute URL: %s", tailsLocation)
	}
	definition.Value.TailsLocation = tailsLocation
	localTailsPath := filepath.Join(tailsDir, tailsHash)

	uploaded := true
	if _, err := s.tails.Upload(ctx, tailsHash, localTailsPath); err != nil {
		if !reverrors.ShouldRetry(err) {
			return nil, err
		}
		// A transient upload failure does not block registration; list creation
		// retries it, and a still-failing upload leaves the list repairable at
		// allocation time
		uploaded = false
		s.log.Warnf("Tails upload for %s failed, deferring to list creation: %v", tailsHash, err)
	}

	// Persist the private key under its tails-derived temporary id before the
	// remote call. A crash between here and registration leaves the key
	// recoverable by hash, making a retried registration idempotent.
	existing, err := s.repo.FindPrivateById(ctx.Context, records.TemporaryPrivateRecordId(tailsHash))
	if err != nil {
		return nil, err
	}
	if existing == nil {
		private := records.NewRevocationRegistryPrivateRecord(options.CredentialDefinitionId, tailsHash, created.RevocationRegistryDefinitionPrivate)
		if err := s.repo.SavePrivate(ctx.Context, private); err != nil {
			return nil, err
		}
	}

	result, err := s.registry.RegisterRevocationRegistryDefinition(regsvc.RegisterRevocationRegistryDefinitionOptions{
		RevocationRegistryDefinition: definition,
	})
	if err != nil {
		return nil, err
	}
	if result.State == regsvc.RegistrationStateFailed {
		return nil, reverrors.Newf(reverrors.CodeTransient, "external registration failed: %s", result.Reason)
	}

	record, err := s.Store(ctx, result, options.CredentialDefinitionId, localTailsPath, uploaded)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Store persists a successful registration result. Inside one transaction the
// private key is migrated from its temporary tails-derived id to the permanent
// registry id (when known) and the definition record is inserted inactive.
// A finished result additionally emits the definition-finished event that
// triggers revocation list creation downstream.
func (s *RevocationRegistryService) Store(ctx *corectx.AgentContext, result regsvc.RegisterRevocationRegistryDefinitionResult, credentialDefinitionId string, localTailsPath string, tailsUploaded bool) (*records.RevocationRegistryDefinitionRecord, error) {
	definition := result.RevocationRegistryDefinition
	permanentId := result.RevocationRegistryDefinitionId
	recordId := permanentId
	if recordId == "" {
		recordId = result.JobId
	}
	if recordId == "" {
		return nil, reverrors.Newf(reverrors.CodeTransient, "registration result carries neither id nor jobId")
	}

	record := records.NewRevocationRegistryDefinitionRecord(recordId, credentialDefinitionId, definition)
	record.SetId(recordId)
	record.TailsLocalPath = localTailsPath
	record.TailsUploaded = tailsUploaded
	record.SetActive(false)
	if result.State == regsvc.RegistrationStateFinished && permanentId != "" {
		record.RevocationRegistryDefinitionId = permanentId
		record.SetState(records.RegistryStateFinished)
	}

	err := s.store.WithTransaction(ctx.Context, func(txn storage.Transaction) error {
		if permanentId != "" {
			tempId := records.TemporaryPrivateRecordId(definition.Value.TailsHash)
			if _, err := renameRecord(ctx.Context, txn, "RevocationRegistryPrivateRecord", tempId, permanentId, func(r storage.Record) {
				if private, ok := r.(*records.RevocationRegistryPrivateRecord); ok {
					private.AssignRegistryId(permanentId)
				}
			}); err != nil {
				return err
			}
		}
		return txn.Save(ctx.Context, record)
	})
	if err != nil {
		return nil, err
	}

	if record.State == records.RegistryStateFinished {
		s.emitter.Emit(ctx, events.EventRegistryDefinitionFinished, &RegistryDefinitionFinishedPayload{
			RevocationRegistryDefinitionId: record.RevocationRegistryDefinitionId,
			CredentialDefinitionId:         credentialDefinitionId,
		})
	}
	return record, nil
}

// Finish renames a wait-state registration from its temporary job id to the
// permanent registry id. Both the definition record and the private key record
// move in one transaction, then the definition-finished event fires so the
// initial revocation list gets created.
func (s *RevocationRegistryService) Finish(ctx *corectx.AgentContext, jobId string, revocationRegistryDefinitionId string) (*records.RevocationRegistryDefinitionRecord, error) {
	var finished *records.RevocationRegistryDefinitionRecord

	err := s.store.WithTransaction(ctx.Context, func(txn storage.Transaction) error {
		renamed, err := renameRecord(ctx.Context, txn, "RevocationRegistryDefinitionRecord", jobId, revocationRegistryDefinitionId, nil)
		if err != nil {
			return err
		}
		record, ok := renamed.(*records.RevocationRegistryDefinitionRecord)
		if !ok {
			return fmt.Errorf("record is not a RevocationRegistryDefinitionRecord")
		}
		record.RevocationRegistryDefinitionId = revocationRegistryDefinitionId
		record.Definition.Id = revocationRegistryDefinitionId
		record.SetState(records.RegistryStateFinished)
		if err := txn.Update(ctx.Context, record); err != nil {
			return err
		}

		tempId := records.TemporaryPrivateRecordId(record.TailsHash)
		if _, err := renameRecord(ctx.Context, txn, "RevocationRegistryPrivateRecord", tempId, revocationRegistryDefinitionId, func(r storage.Record) {
			if private, ok := r.(*records.RevocationRegistryPrivateRecord); ok {
				private.AssignRegistryId(revocationRegistryDefinitionId)
			}
		}); err != nil {
			return err
		}

		finished = record
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emitter.Emit(ctx, events.EventRegistryDefinitionFinished, &RegistryDefinitionFinishedPayload{
		RevocationRegistryDefinitionId: revocationRegistryDefinitionId,
		CredentialDefinitionId:         finished.CredentialDefinitionId,
	})
	return finished, nil
}

// Activate makes the given registry the single active one for its credential
// definition. Idempotent: activating an already-active registry is a logged
// no-op. Finding more than one previously active registry is healed here, not
// treated as fatal.
func (s *RevocationRegistryService) Activate(ctx *corectx.AgentContext, revocationRegistryDefinitionId string) error {
	var credentialDefinitionId string
	var changed bool

	err := s.store.WithTransaction(ctx.Context, func(txn storage.Transaction) error {
		txr := s.repo.InTransaction(txn)

		target, err := txr.GetDefinitionByRegistryIdForUpdate(ctx.Context, revocationRegistryDefinitionId)
		if err != nil {
			return err
		}
		credentialDefinitionId = target.CredentialDefinitionId

		if target.Active {
			s.log.Debugf("Revocation registry %s is already active", revocationRegistryDefinitionId)
			return nil
		}
		if target.State != records.RegistryStateFinished {
			return reverrors.Newf(reverrors.CodeConflict, "cannot activate revocation registry %s in state %s", revocationRegistryDefinitionId, target.State)
		}

		actives, err := txr.FindActiveDefinitionsForUpdate(ctx.Context, target.CredentialDefinitionId)
		if err != nil {
			return err
		}
		if len(actives) > 1 {
			s.log.Warnf("Found %d active revocation registries for credential definition %s, correcting to one", len(actives), target.CredentialDefinitionId)
		}
		for _, active := range actives {
			active.SetActive(false)
			if err := txr.UpdateDefinition(ctx.Context, active); err != nil {
				return err
			}
		}

		target.SetActive(true)
		if err := txr.UpdateDefinition(ctx.Context, target); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return err
	}

	if changed {
		s.emitter.Emit(ctx, events.EventRegistryActivationSucceeded, &ActivationPayload{
			RevocationRegistryDefinitionId: revocationRegistryDefinitionId,
			CredentialDefinitionId:         credentialDefinitionId,
		})
	}
	return nil
}
