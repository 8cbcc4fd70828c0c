package services_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajna-inc/revreg/pkg/core/common"
	"github.com/ajna-inc/revreg/pkg/core/events"
	"github.com/ajna-inc/revreg/pkg/revocation/records"
	"github.com/ajna-inc/revreg/pkg/revocation/reverrors"
	"github.com/ajna-inc/revreg/pkg/revocation/services"
)

func TestAllocateIndexIsSequentialAndOneBased(t *testing.T) {
	e := newTestEngine(t)
	record := e.provisionRegistry(t, 5, true)

	for want := 1; want <= 5; want++ {
		allocation, err := e.listSvc.AllocateIndex(e.ctx, record.RevocationRegistryDefinitionId)
		require.NoError(t, err)
		assert.Equal(t, want, allocation.Index)
	}

	list, err := e.repo.GetListByRegistryId(e.ctx.Context, record.RevocationRegistryDefinitionId)
	require.NoError(t, err)
	assert.Equal(t, 6, list.NextIndex)
}

func TestAllocateIndexFailsWhenRegistryIsFull(t *testing.T) {
	e := newTestEngine(t)
	record := e.provisionRegistry(t, 2, true)

	for i := 0; i < 2; i++ {
		_, err := e.listSvc.AllocateIndex(e.ctx, record.RevocationRegistryDefinitionId)
		require.NoError(t, err)
	}

	_, err := e.listSvc.AllocateIndex(e.ctx, record.RevocationRegistryDefinitionId)
	require.Error(t, err)
	assert.True(t, reverrors.IsRegistryFull(err))
	assert.False(t, reverrors.ShouldRetry(err))

	// The counter must not move on a failed allocation
	list, err := e.repo.GetListByRegistryId(e.ctx.Context, record.RevocationRegistryDefinitionId)
	require.NoError(t, err)
	assert.Equal(t, 3, list.NextIndex)
}

func TestAllocateIndexWarnsOneCredentialEarly(t *testing.T) {
	e := newTestEngine(t)
	record := e.provisionRegistry(t, 3, true)
	fullEvents := e.collectEvents(t, events.EventRegistryFull)

	// First allocation leaves plenty of room, no warning yet
	_, err := e.listSvc.AllocateIndex(e.ctx, record.RevocationRegistryDefinitionId)
	require.NoError(t, err)
	assert.Empty(t, *fullEvents)

	// Second allocation leaves only one free index, the warning fires now so
	// rotation can finish before the registry actually runs out
	allocation, err := e.listSvc.AllocateIndex(e.ctx, record.RevocationRegistryDefinitionId)
	require.NoError(t, err)
	require.Len(t, *fullEvents, 1)

	payload, ok := (*fullEvents)[0].Data.(*services.RegistryFullPayload)
	require.True(t, ok)
	assert.Equal(t, record.RevocationRegistryDefinitionId, payload.RevocationRegistryDefinitionId)
	assert.Equal(t, e.credDefId, payload.CredentialDefinitionId)
	assert.Equal(t, allocation.Index, payload.AllocatedIndex)
}

func TestAllocateIndexEmitsFullEventOnExhaustion(t *testing.T) {
	e := newTestEngine(t)
	record := e.provisionRegistry(t, 1, true)
	fullEvents := e.collectEvents(t, events.EventRegistryFull)

	_, err := e.listSvc.AllocateIndex(e.ctx, record.RevocationRegistryDefinitionId)
	require.NoError(t, err)

	_, err = e.listSvc.AllocateIndex(e.ctx, record.RevocationRegistryDefinitionId)
	require.Error(t, err)
	assert.True(t, reverrors.IsRegistryFull(err))

	// One warning from the last successful allocation, one from the failure
	require.Len(t, *fullEvents, 2)
	payload, ok := (*fullEvents)[1].Data.(*services.RegistryFullPayload)
	require.True(t, ok)
	assert.Zero(t, payload.AllocatedIndex)
}

func TestAllocateIndexRepairsFailedList(t *testing.T) {
	e := newTestEngine(t)

	// The tails server is down for the whole provisioning phase: the upload is
	// deferred during definition creation and the list is stored failed
	e.tailsCtl.setFailUploads(true)

	record, err := e.registrySvc.CreateAndRegister(e.ctx, &services.CreateRegistryOptions{
		RequestId:               common.GenerateUUID(),
		IssuerId:                testIssuerId,
		CredentialDefinitionId:  e.credDefId,
		Tag:                     "0",
		MaximumCredentialNumber: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, records.RegistryStateFinished, record.State)
	assert.False(t, e.tailsCtl.has(record.TailsHash))

	list, err := e.listSvc.CreateAndRegister(e.ctx, record.RevocationRegistryDefinitionId)
	require.NoError(t, err)
	assert.Equal(t, records.ListStateFailed, list.State)

	require.NoError(t, e.registrySvc.Activate(e.ctx, record.RevocationRegistryDefinitionId))

	// Allocation cannot repair while the server is still down
	_, err = e.listSvc.AllocateIndex(e.ctx, record.RevocationRegistryDefinitionId)
	require.Error(t, err)
	assert.True(t, reverrors.ShouldRetry(err))

	// Server back up: the next allocation repairs the list and proceeds
	e.tailsCtl.setFailUploads(false)
	allocation, err := e.listSvc.AllocateIndex(e.ctx, record.RevocationRegistryDefinitionId)
	require.NoError(t, err)
	assert.Equal(t, 1, allocation.Index)
	assert.Equal(t, records.ListStateFinished, allocation.List.State)
	assert.True(t, e.tailsCtl.has(record.TailsHash))

	repaired, err := e.repo.GetListByRegistryId(e.ctx.Context, record.RevocationRegistryDefinitionId)
	require.NoError(t, err)
	assert.Equal(t, records.ListStateFinished, repaired.State)
	assert.Equal(t, 2, repaired.NextIndex)
}

func TestAllocateIndexStaysQuietAfterRotation(t *testing.T) {
	e := newTestEngine(t)
	record := e.provisionRegistry(t, 2, true)
	fullEvents := e.collectEvents(t, events.EventRegistryFull)

	for i := 0; i < 2; i++ {
		_, err := e.listSvc.AllocateIndex(e.ctx, record.RevocationRegistryDefinitionId)
		require.NoError(t, err)
	}
	require.Len(t, *fullEvents, 2)

	// Once rotation marked the registry full, exhausted allocations must not
	// keep signaling and re-triggering promotions
	def, err := e.repo.GetDefinitionByRegistryId(e.ctx.Context, record.RevocationRegistryDefinitionId)
	require.NoError(t, err)
	def.SetState(records.RegistryStateFull)
	require.NoError(t, e.repo.UpdateDefinition(e.ctx.Context, def))

	_, err = e.listSvc.AllocateIndex(e.ctx, record.RevocationRegistryDefinitionId)
	require.Error(t, err)
	assert.True(t, reverrors.IsRegistryFull(err))
	assert.Len(t, *fullEvents, 2)
}

func TestAllocateIndexUnknownRegistry(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.listSvc.AllocateIndex(e.ctx, "did:mem:nobody/revReg/missing")
	require.Error(t, err)
	assert.True(t, reverrors.IsNotFound(err))
}
