package services

import (
	"fmt"
	"sort"
	"time"

	anoncredsrepo "github.com/ajna-inc/revreg/pkg/anoncreds/repository"
	regsvc "github.com/ajna-inc/revreg/pkg/anoncreds/registry"
	anoncredssvc "github.com/ajna-inc/revreg/pkg/anoncreds/services"
	corectx "github.com/ajna-inc/revreg/pkg/core/context"
	"github.com/ajna-inc/revreg/pkg/core/events"
	"github.com/ajna-inc/revreg/pkg/core/logger"
	"github.com/ajna-inc/revreg/pkg/core/storage"
	"github.com/ajna-inc/revreg/pkg/revocation/records"
	"github.com/ajna-inc/revreg/pkg/revocation/reverrors"
	"github.com/ajna-inc/revreg/pkg/revocation/tails"
)

// defaultMaxPublishAttempts bounds the optimistic-concurrency retry loop of
// the batched publish when no override is configured
const defaultMaxPublishAttempts = 5

// RevocationListService owns the mutable revocation state of registries:
// the index counter consumed at issuance time, the pending revocation queue
// and the batched accumulator publish.
type RevocationListService struct {
	store       storage.TransactionalStorageService
	repo        *records.RevocationRepository
	credDefRepo *anoncredsrepo.CredentialDefinitionRepository
	issuer      anoncredssvc.AnonCredsIssuerService
	registry    *regsvc.Service
	tails       *tails.Client
	emitter     *events.Emitter
	log         logger.Logger
}

// NewRevocationListService creates a revocation list service
func NewRevocationListService(
	store storage.TransactionalStorageService,
	repo *records.RevocationRepository,
	credDefRepo *anoncredsrepo.CredentialDefinitionRepository,
	issuer anoncredssvc.AnonCredsIssuerService,
	registryService *regsvc.Service,
	tailsClient *tails.Client,
	emitter *events.Emitter,
	log logger.Logger,
) *RevocationListService {
	return &RevocationListService{
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

// CreateAndRegister builds the initial (nothing revoked) status list for a
// finished registry definition, registers it externally and stores the list
// record with next_index = 1. Exactly one response event is emitted.
func (s *RevocationListService) CreateAndRegister(ctx *corectx.AgentContext, revocationRegistryDefinitionId string) (*records.RevocationListRecord, error) {
	record, first, err := s.createAndRegister(ctx, revocationRegistryDefinitionId)

	payload := &ListResponsePayload{
		RevocationRegistryDefinitionId: revocationRegistryDefinitionId,
		FirstRegistry:                  first,
		Success:                        err == nil,
	}
	if record != nil {
		payload.CredentialDefinitionId = record.CredentialDefinitionId
	}
	if err != nil {
		payload.Message = fmt.Sprintf("failed to create revocation list for registry %s: %v", revocationRegistryDefinitionId, err)
		payload.ShouldRetry = reverrors.ShouldRetry(err)
		s.log.Errorf("%s", payload.Message)
	}
	s.emitter.Emit(ctx, events.EventRevocationListCreateResponse, payload)

	return record, err
}

func (s *RevocationListService) createAndRegister(ctx *corectx.AgentContext, revRegDefId string) (*records.RevocationListRecord, bool, error) {
	defRecord, err := s.repo.GetDefinitionByRegistryId(ctx.Context, revRegDefId)
	if err != nil {
		return nil, false, err
	}
	private, err := s.repo.GetPrivateById(ctx.Context, revRegDefId)
	if err != nil {
		return nil, false, err
	}
	credDefRecord, err := s.credDefRepo.GetByCredentialDefinitionId(ctx.Context, defRecord.CredentialDefinitionId)
	if err != nil {
		return nil, false, err
	}
	credDefMap, err := credentialDefinitionToMap(credDefRecord.CredentialDefinition)
	if err != nil {
		return nil, false, err
	}

	// Mark the bootstrap registry before the external call so failure handlers
	// still know whether an activation is owed.
	siblings, err := s.repo.FindDefinitionsByCredentialDefinitionId(ctx.Context, defRecord.CredentialDefinitionId)
	if err != nil {
		return nil, false, err
	}
	first := true
	for _, sibling := range siblings {
		if sibling.RevocationRegistryDefinitionId == revRegDefId {
			continue
		}
		if sibling.State == records.RegistryStateFinished || sibling.State == records.RegistryStateFull {
			first = false
			break
		}
	}
	if first {
		defRecord.SetTag("firstRegistry", "true")
		if err := s.repo.UpdateDefinition(ctx.Context, defRecord); err != nil {
			return nil, first, err
		}
	}

	statusList, err := s.issuer.CreateRevocationStatusList(ctx, &anoncredssvc.CreateRevocationStatusListOptions{
		IssuerId:                            defRecord.IssuerId,
		RevocationRegistryDefinitionId:      revRegDefId,
		RevocationRegistryDefinition:        defRecord.Definition,
		RevocationRegistryDefinitionPrivate: private.Value,
		CredentialDefinition:                credDefMap,
		Timestamp:                           time.Now().Unix(),
	})
	if err != nil {
		return nil, first, err
	}
	statusList.RevRegDefId = revRegDefId
	statusList.IssuerId = defRecord.IssuerId

	result, err := s.registry.RegisterRevocationStatusList(regsvc.RegisterRevocationStatusListOptions{
		RevocationStatusList: statusList,
	})
	if err != nil {
		return nil, first, err
	}
	if result.State != regsvc.RegistrationStateFinished {
		return nil, first, reverrors.Newf(reverrors.CodeTransient, "external status list registration failed: %s", result.Reason)
	}

	record := records.NewRevocationListRecord(revRegDefId, defRecord.CredentialDefinitionId, result.RevocationStatusList)

	// The definition phase may have deferred the tails upload; retry it now.
	// A still-failing transient upload stores the list in the failed state,
	// which allocation repairs later.
	if !defRecord.TailsUploaded {
		if _, err := s.tails.Upload(ctx, defRecord.TailsHash, defRecord.TailsLocalPath); err != nil {
			if !reverrors.ShouldRetry(err) {
				return nil, first, err
			}
			s.log.Warnf("Tails upload for registry %s still failing, storing list as failed: %v", revRegDefId, err)
			record.SetState(records.ListStateFailed)
		} else {
			defRecord.TailsUploaded = true
			if err := s.repo.UpdateDefinition(ctx.Context, defRecord); err != nil {
				return nil, first, err
			}
		}
	}

	if err := s.repo.SaveList(ctx.Context, record); err != nil {
		return nil, first, err
	}
	return record, first, nil
}

// AllocateIndex hands out the next free credential index of a registry inside
// one transaction. A list stuck in the failed state gets its tails upload
// retried and repaired first. The accumulator itself is untouched; issuance
// only moves the counter, which keeps the critical section short.
func (s *RevocationListService) AllocateIndex(ctx *corectx.AgentContext, revocationRegistryDefinitionId string) (*AllocationResult, error) {
	var result *AllocationResult

	err := s.store.WithTransaction(ctx.Context, func(txn storage.Transaction) error {
		txr := s.repo.InTransaction(txn)

		defRecord, err := txr.GetDefinitionByRegistryId(ctx.Context, revocationRegistryDefinitionId)
		if err != nil {
			return err
		}
		list, err := txr.GetListByRegistryIdForUpdate(ctx.Context, revocationRegistryDefinitionId)
		if err != nil {
			return err
		}
		private, err := txr.GetPrivateById(ctx.Context, revocationRegistryDefinitionId)
		if err != nil {
			return err
		}

		if list.State == records.ListStateFailed {
			if _, err := s.tails.Upload(ctx, defRecord.TailsHash, defRecord.TailsLocalPath); err != nil {
				return err
			}
			list.SetState(records.ListStateFinished)
			if !defRecord.TailsUploaded {
				defRecord.TailsUploaded = true
				if err := txr.UpdateDefinition(ctx.Context, defRecord); err != nil {
					return err
				}
			}
		}

		if list.NextIndex > defRecord.MaxCredNum {
			return reverrors.Newf(reverrors.CodeRegistryFull, "revocation registry %s is full (capacity %d)", revocationRegistryDefinitionId, defRecord.MaxCredNum)
		}

		index := list.NextIndex
		list.NextIndex++
		if err := txr.UpdateList(ctx.Context, list); err != nil {
			return err
		}

		result = &AllocationResult{
			Index:      index,
			Definition: defRecord,
			List:       list,
			PrivateKey: private,
		}
		return nil
	})
	if err != nil {
		if reverrors.IsRegistryFull(err) {
			s.emitFull(ctx, revocationRegistryDefinitionId, 0)
		}
		return nil, err
	}

	// Pre-exhaustion warning one credential early, so rotation finishes
	// before the next allocation would fail
	if result.Definition.MaxCredNum <= result.Index+1 {
		s.emitFull(ctx, revocationRegistryDefinitionId, result.Index)
	}

	return result, nil
}

func (s *RevocationListService) emitFull(ctx *corectx.AgentContext, revRegDefId string, allocatedIndex int) {
	credDefId := ""
	if defRecord, err := s.repo.GetDefinitionByRegistryId(ctx.Context, revRegDefId); err == nil {
		if defRecord.State == records.RegistryStateFull {
			// Rotation already took this registry out of circulation
			return
		}
		credDefId = defRecord.CredentialDefinitionId
	}
	s.emitter.Emit(ctx, events.EventRegistryFull, &RegistryFullPayload{
		RevocationRegistryDefinitionId: revRegDefId,
		CredentialDefinitionId:         credDefId,
		AllocatedIndex:                 allocatedIndex,
	})
}

// MarkPending queues indexes for a later batched publish without touching the
// accumulator
func (s *RevocationListService) MarkPending(ctx *corectx.AgentContext, revocationRegistryDefinitionId string, indexes []int) error {
	if len(indexes) == 0 {
		return nil
	}
	for _, idx := range indexes {
		if idx < 1 {
			return reverrors.Newf(reverrors.CodeNotFound, "invalid credential index %d: indexes are 1-based", idx)
		}
	}

	return s.store.WithTransaction(ctx.Context, func(txn storage.Transaction) error {
		txr := s.repo.InTransaction(txn)
		list, err := txr.GetListByRegistryIdForUpdate(ctx.Context, revocationRegistryDefinitionId)
		if err != nil {
			return err
		}
		list.AddPending(indexes...)
		return txr.UpdateList(ctx.Context, list)
	})
}

// PublishPending folds the queued pending indexes (plus any additional ones)
// into the published accumulator under optimistic concurrency. The whole
// algorithm retries on a concurrent-writer conflict up to the configured
// attempt bound, then fails with a conflict error.
func (s *RevocationListService) PublishPending(ctx *corectx.AgentContext, revocationRegistryDefinitionId string, options *PublishOptions) (*PublishResult, error) {
	if options == nil {
		options = &PublishOptions{}
	}
	maxAttempts := defaultMaxPublishAttempts
	if ctx.Config != nil && ctx.Config.MaxPublishAttempts > 0 {
		maxAttempts = ctx.Config.MaxPublishAttempts
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, conflict, err := s.publishOnce(ctx, revocationRegistryDefinitionId, options, attempt)
		if err != nil {
			return nil, err
		}
		if conflict {
			s.log.Debugf("Concurrent publish detected on %s, retrying (attempt %d/%d)", revocationRegistryDefinitionId, attempt, maxAttempts)
			continue
		}
		if len(result.Revoked) > 0 {
			s.emitter.Emit(ctx, events.EventRevocationPublished, &RevocationPublishedPayload{
				RevocationRegistryDefinitionId: revocationRegistryDefinitionId,
				Revoked:                        result.Revoked,
				Failed:                         result.Failed,
				Attempts:                       attempt,
			})
		}
		return result, nil
	}

	return nil, reverrors.Newf(reverrors.CodeConflict, "publish of registry %s failed after %d conflicting attempts", revocationRegistryDefinitionId, maxAttempts)
}

// publishOnce runs one round of the publish algorithm. conflict=true means
// the snapshot changed under us and the caller should retry.
func (s *RevocationListService) publishOnce(ctx *corectx.AgentContext, revRegDefId string, options *PublishOptions, attempt int) (*PublishResult, bool, error) {
	// Step 1: snapshot everything outside any lock
	defRecord, err := s.repo.GetDefinitionByRegistryId(ctx.Context, revRegDefId)
	if err != nil {
		return nil, false, err
	}
	snapshot, err := s.repo.GetListByRegistryId(ctx.Context, revRegDefId)
	if err != nil {
		return nil, false, err
	}
	private, err := s.repo.GetPrivateById(ctx.Context, revRegDefId)
	if err != nil {
		return nil, false, err
	}
	credDefRecord, err := s.credDefRepo.GetByCredentialDefinitionId(ctx.Context, defRecord.CredentialDefinitionId)
	if err != nil {
		return nil, false, err
	}
	credDefMap, err := credentialDefinitionToMap(credDefRecord.CredentialDefinition)
	if err != nil {
		return nil, false, err
	}

	// Steps 2-4: partition the candidate set
	candidates := unionIndexes(snapshot.PendingRevocations, options.AdditionalIndexes)
	valid, failed := partitionCandidates(candidates, snapshot, defRecord.MaxCredNum)
	toRevoke, skipped := applyLimit(valid, options.LimitIndexes)

	result := &PublishResult{
		PreviousList: snapshot.StatusList,
		UpdatedList:  snapshot.StatusList,
		Failed:       failed,
		Attempts:     attempt,
	}
	if len(failed) > 0 {
		s.log.Warnf("Rejecting %d revocation candidates on %s (out of range, unissued or already revoked): %v", len(failed), revRegDefId, failed)
	}

	// Step 5: nothing valid to publish
	if len(toRevoke) == 0 {
		return result, false, nil
	}

	// Step 6: recompute the accumulator off the critical path
	updated, err := s.issuer.UpdateRevocationStatusList(ctx, &anoncredssvc.UpdateRevocationStatusListOptions{
		RevocationRegistryDefinition:        defRecord.Definition,
		RevocationRegistryDefinitionPrivate: private.Value,
		CredentialDefinition:                credDefMap,
		CurrentList:                         snapshot.StatusList,
		RevokedIndexes:                      toRevoke,
		Timestamp:                           time.Now().Unix(),
	})
	if err != nil {
		return nil, false, err
	}
	updated.RevRegDefId = revRegDefId

	// Anchor the updated list externally before the local commit; a conflict
	// retry recomputes from the fresh snapshot and re-anchors
	regResult, err := s.registry.UpdateRevocationStatusList(regsvc.UpdateRevocationStatusListOptions{
		RevocationStatusList: updated,
	})
	if err != nil {
		return nil, false, err
	}
	if regResult.State != regsvc.RegistrationStateFinished {
		return nil, false, reverrors.Newf(reverrors.CodeTransient, "external status list update failed: %s", regResult.Reason)
	}

	// Step 7: compare-and-swap against the snapshot version
	conflict := false
	err = s.store.WithTransaction(ctx.Context, func(txn storage.Transaction) error {
		txr := s.repo.InTransaction(txn)
		current, err := txr.GetListByRegistryIdForUpdate(ctx.Context, revRegDefId)
		if err != nil {
			return err
		}
		if current.Version != snapshot.Version {
			conflict = true
			return nil
		}
		current.StatusList = regResult.RevocationStatusList
		current.PendingRevocations = skipped
		return txr.UpdateList(ctx.Context, current)
	})
	if err != nil {
		return nil, false, err
	}
	if conflict {
		return nil, true, nil
	}

	result.UpdatedList = regResult.RevocationStatusList
	result.Revoked = toRevoke
	return result, false, nil
}

func unionIndexes(a, b []int) []int {
	seen := make(map[int]bool, len(a)+len(b))
	var out []int
	for _, set := range [][]int{a, b} {
		for _, idx := range set {
			if !seen[idx] {
				seen[idx] = true
				out = append(out, idx)
			}
		}
	}
	sort.Ints(out)
	return out
}

// partitionCandidates splits candidates into publishable and rejected ones.
// An index is valid only if issued (below next_index), inside the registry
// capacity and not yet revoked in the bitmap.
func partitionCandidates(candidates []int, list *records.RevocationListRecord, maxCredNum int) (valid []int, failed []int) {
	bitmap := list.StatusList.RevocationList
	for _, idx := range candidates {
		switch {
		case idx < 1 || idx > maxCredNum:
			failed = append(failed, idx)
		case idx >= list.NextIndex:
			failed = append(failed, idx)
		case idx < len(bitmap) && bitmap[idx] == 1:
			failed = append(failed, idx)
		default:
			valid = append(valid, idx)
		}
	}
	return valid, failed
}

func applyLimit(valid []int, limit []int) (toRevoke []int, skipped []int) {
	if limit == nil {
		return valid, nil
	}
	allowed := make(map[int]bool, len(limit))
	for _, idx := range limit {
		allowed[idx] = true
	}
	for _, idx := range valid {
		if allowed[idx] {
			toRevoke = append(toRevoke, idx)
		} else {
			skipped = append(skipped, idx)
		}
	}
	return toRevoke, skipped
}
