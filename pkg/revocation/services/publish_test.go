package services_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajna-inc/revreg/pkg/core/events"
	"github.com/ajna-inc/revreg/pkg/revocation/services"
)

func TestPublishPendingRevokesQueuedIndexes(t *testing.T) {
	e := newTestEngine(t)
	record := e.provisionRegistry(t, 10, true)
	published := e.collectEvents(t, events.EventRevocationPublished)

	for i := 0; i < 3; i++ {
		_, err := e.listSvc.AllocateIndex(e.ctx, record.RevocationRegistryDefinitionId)
		require.NoError(t, err)
	}

	require.NoError(t, e.listSvc.MarkPending(e.ctx, record.RevocationRegistryDefinitionId, []int{1, 2}))

	list, err := e.repo.GetListByRegistryId(e.ctx.Context, record.RevocationRegistryDefinitionId)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{1, 2}, list.PendingRevocations)
	pendingTag, _ := list.GetTag("pending")
	assert.Equal(t, "true", pendingTag)
	versionBefore := list.Version

	result, err := e.listSvc.PublishPending(e.ctx, record.RevocationRegistryDefinitionId, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{1, 2}, result.Revoked)
	assert.Empty(t, result.Failed)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, 1, result.UpdatedList.RevocationList[1])
	assert.Equal(t, 1, result.UpdatedList.RevocationList[2])
	assert.Zero(t, result.UpdatedList.RevocationList[3])

	list, err = e.repo.GetListByRegistryId(e.ctx.Context, record.RevocationRegistryDefinitionId)
	require.NoError(t, err)
	assert.Empty(t, list.PendingRevocations)
	pendingTag, _ = list.GetTag("pending")
	assert.Equal(t, "false", pendingTag)
	assert.Greater(t, list.Version, versionBefore)

	require.Len(t, *published, 1)
	payload, ok := (*published)[0].Data.(*services.RevocationPublishedPayload)
	require.True(t, ok)
	assert.ElementsMatch(t, []int{1, 2}, payload.Revoked)
}

func TestPublishRejectsInvalidCandidates(t *testing.T) {
	e := newTestEngine(t)
	record := e.provisionRegistry(t, 10, true)

	for i := 0; i < 2; i++ {
		_, err := e.listSvc.AllocateIndex(e.ctx, record.RevocationRegistryDefinitionId)
		require.NoError(t, err)
	}

	// Revoke index 1 so a second attempt counts as already revoked
	result, err := e.listSvc.PublishPending(e.ctx, record.RevocationRegistryDefinitionId, &services.PublishOptions{
		AdditionalIndexes: []int{1},
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, result.Revoked)

	// 1 already revoked, 5 never issued, 999 outside the registry capacity
	result, err = e.listSvc.PublishPending(e.ctx, record.RevocationRegistryDefinitionId, &services.PublishOptions{
		AdditionalIndexes: []int{1, 2, 5, 999},
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2}, result.Revoked)
	assert.ElementsMatch(t, []int{1, 5, 999}, result.Failed)
}

func TestPublishWithNothingPendingIsANoOp(t *testing.T) {
	e := newTestEngine(t)
	record := e.provisionRegistry(t, 5, true)
	published := e.collectEvents(t, events.EventRevocationPublished)

	result, err := e.listSvc.PublishPending(e.ctx, record.RevocationRegistryDefinitionId, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Revoked)
	assert.Empty(t, result.Failed)
	assert.Empty(t, *published)
}

func TestPublishLimitKeepsSkippedIndexesPending(t *testing.T) {
	e := newTestEngine(t)
	record := e.provisionRegistry(t, 10, true)

	for i := 0; i < 3; i++ {
		_, err := e.listSvc.AllocateIndex(e.ctx, record.RevocationRegistryDefinitionId)
		require.NoError(t, err)
	}
	require.NoError(t, e.listSvc.MarkPending(e.ctx, record.RevocationRegistryDefinitionId, []int{1, 2, 3}))

	result, err := e.listSvc.PublishPending(e.ctx, record.RevocationRegistryDefinitionId, &services.PublishOptions{
		LimitIndexes: []int{2},
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2}, result.Revoked)

	list, err := e.repo.GetListByRegistryId(e.ctx.Context, record.RevocationRegistryDefinitionId)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{1, 3}, list.PendingRevocations)
}

func TestMarkPendingRejectsReservedIndex(t *testing.T) {
	e := newTestEngine(t)
	record := e.provisionRegistry(t, 5, true)

	err := e.listSvc.MarkPending(e.ctx, record.RevocationRegistryDefinitionId, []int{0})
	require.Error(t, err)
}

func TestMarkPendingDeduplicates(t *testing.T) {
	e := newTestEngine(t)
	record := e.provisionRegistry(t, 5, true)

	require.NoError(t, e.listSvc.MarkPending(e.ctx, record.RevocationRegistryDefinitionId, []int{1, 2}))
	require.NoError(t, e.listSvc.MarkPending(e.ctx, record.RevocationRegistryDefinitionId, []int{2, 3}))

	list, err := e.repo.GetListByRegistryId(e.ctx.Context, record.RevocationRegistryDefinitionId)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{1, 2, 3}, list.PendingRevocations)
}

func TestConcurrentPublishesConverge(t *testing.T) {
	e := newTestEngine(t)
	record := e.provisionRegistry(t, 10, true)

	for i := 0; i < 4; i++ {
		_, err := e.listSvc.AllocateIndex(e.ctx, record.RevocationRegistryDefinitionId)
		require.NoError(t, err)
	}

	// Two writers target disjoint indexes; whoever loses the version race
	// retries from a fresh snapshot and both must land
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, indexes := range [][]int{{1, 2}, {3, 4}} {
		wg.Add(1)
		go func(slot int, idxs []int) {
			defer wg.Done()
			_, errs[slot] = e.listSvc.PublishPending(e.ctx, record.RevocationRegistryDefinitionId, &services.PublishOptions{
				AdditionalIndexes: idxs,
			})
		}(i, indexes)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	list, err := e.repo.GetListByRegistryId(e.ctx.Context, record.RevocationRegistryDefinitionId)
	require.NoError(t, err)
	for idx := 1; idx <= 4; idx++ {
		assert.Equal(t, 1, list.StatusList.RevocationList[idx], "index %d should be revoked", idx)
	}
	assert.Empty(t, list.PendingRevocations)
}
