package records_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajna-inc/revreg/pkg/anoncreds/registry"
	"github.com/ajna-inc/revreg/pkg/core/storage/memory"
	"github.com/ajna-inc/revreg/pkg/revocation/records"
)

func sampleDefinition(credDefId string) registry.RevocationRegistryDefinition {
	return registry.RevocationRegistryDefinition{
		IssuerId:     "did:mem:issuer",
		RevocDefType: "CL_ACCUM",
		CredDefId:    credDefId,
		Tag:          "0",
		Value: registry.RevocationRegistryDefinitionValue{
			MaxCredNum: 10,
			TailsHash:  "somehash",
		},
	}
}

func TestDefinitionRecordTagsFollowState(t *testing.T) {
	record := records.NewRevocationRegistryDefinitionRecord("rev-reg-1", "cred-def-1", sampleDefinition("cred-def-1"))

	assert.Equal(t, records.RegistryStateWait, record.State)
	assert.False(t, record.CanIssue())

	state, _ := record.GetTag("state")
	assert.Equal(t, "wait", state)
	active, _ := record.GetTag("active")
	assert.Equal(t, "false", active)

	record.SetState(records.RegistryStateFinished)
	record.SetActive(true)
	assert.True(t, record.CanIssue())

	state, _ = record.GetTag("state")
	assert.Equal(t, "finished", state)
	active, _ = record.GetTag("active")
	assert.Equal(t, "true", active)

	record.SetState(records.RegistryStateDecommissioned)
	assert.False(t, record.CanIssue())
}

func TestListRecordStartsAtIndexOne(t *testing.T) {
	record := records.NewRevocationListRecord("rev-reg-1", "cred-def-1", registry.RevocationStatusList{
		RevRegDefId:    "rev-reg-1",
		RevocationList: make([]int, 11),
	})

	assert.Equal(t, 1, record.NextIndex)
	assert.Equal(t, 1, record.Version)
	assert.Equal(t, "rev-reg-1", record.GetId())
	assert.Equal(t, records.ListStateFinished, record.State)
}

func TestListRecordPendingQueue(t *testing.T) {
	record := records.NewRevocationListRecord("rev-reg-1", "cred-def-1", registry.RevocationStatusList{})

	pending, _ := record.GetTag("pending")
	assert.Equal(t, "false", pending)

	record.AddPending(3, 1, 3, 2, 1)
	assert.ElementsMatch(t, []int{1, 2, 3}, record.PendingRevocations)
	pending, _ = record.GetTag("pending")
	assert.Equal(t, "true", pending)

	record.ClearPending()
	assert.Empty(t, record.PendingRevocations)
	pending, _ = record.GetTag("pending")
	assert.Equal(t, "false", pending)
}

func TestListRecordCloneIsDeep(t *testing.T) {
	record := records.NewRevocationListRecord("rev-reg-1", "cred-def-1", registry.RevocationStatusList{
		RevocationList: []int{0, 0, 0},
	})
	record.AddPending(1)

	cloned := record.Clone().(*records.RevocationListRecord)
	cloned.StatusList.RevocationList[1] = 1
	cloned.AddPending(2)

	assert.Zero(t, record.StatusList.RevocationList[1])
	assert.Equal(t, []int{1}, record.PendingRevocations)
}

func TestPrivateRecordIdMigration(t *testing.T) {
	record := records.NewRevocationRegistryPrivateRecord("cred-def-1", "somehash", map[string]interface{}{"accumKey": "secret"})

	assert.Equal(t, "tails:somehash", record.GetId())
	assert.Equal(t, records.TemporaryPrivateRecordId("somehash"), record.GetId())
	assert.Empty(t, record.RevocationRegistryDefinitionId)

	record.AssignRegistryId("rev-reg-1")
	assert.Equal(t, "rev-reg-1", record.GetId())
	assert.Equal(t, "rev-reg-1", record.RevocationRegistryDefinitionId)
	tag, _ := record.GetTag("revocationRegistryDefinitionId")
	assert.Equal(t, "rev-reg-1", tag)
}

func TestRepositoryUpdateListBumpsVersion(t *testing.T) {
	ctx := context.Background()
	repo := records.NewRevocationRepository(memory.NewMemoryStorageService())

	record := records.NewRevocationListRecord("rev-reg-1", "cred-def-1", registry.RevocationStatusList{})
	require.NoError(t, repo.SaveList(ctx, record))
	assert.Equal(t, 1, record.Version)

	record.NextIndex++
	require.NoError(t, repo.UpdateList(ctx, record))

	loaded, err := repo.GetListByRegistryId(ctx, "rev-reg-1")
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Version)
	assert.Equal(t, 2, loaded.NextIndex)
}

func TestRepositoryDefinitionQueries(t *testing.T) {
	ctx := context.Background()
	repo := records.NewRevocationRepository(memory.NewMemoryStorageService())

	a := records.NewRevocationRegistryDefinitionRecord("rev-reg-a", "cred-def-1", sampleDefinition("cred-def-1"))
	a.SetState(records.RegistryStateFinished)
	a.SetActive(true)
	b := records.NewRevocationRegistryDefinitionRecord("rev-reg-b", "cred-def-1", sampleDefinition("cred-def-1"))
	b.SetState(records.RegistryStateFinished)
	other := records.NewRevocationRegistryDefinitionRecord("rev-reg-c", "cred-def-2", sampleDefinition("cred-def-2"))

	require.NoError(t, repo.SaveDefinition(ctx, a))
	require.NoError(t, repo.SaveDefinition(ctx, b))
	require.NoError(t, repo.SaveDefinition(ctx, other))

	found, err := repo.GetDefinitionByRegistryId(ctx, "rev-reg-b")
	require.NoError(t, err)
	assert.Equal(t, "rev-reg-b", found.RevocationRegistryDefinitionId)

	siblings, err := repo.FindDefinitionsByCredentialDefinitionId(ctx, "cred-def-1")
	require.NoError(t, err)
	assert.Len(t, siblings, 2)

	actives, err := repo.FindActiveDefinitions(ctx, "cred-def-1")
	require.NoError(t, err)
	require.Len(t, actives, 1)
	assert.Equal(t, "rev-reg-a", actives[0].RevocationRegistryDefinitionId)
}

func TestRepositoryFindPrivateByIdReturnsNilWhenAbsent(t *testing.T) {
	ctx := context.Background()
	repo := records.NewRevocationRepository(memory.NewMemoryStorageService())

	record, err := repo.FindPrivateById(ctx, "tails:nothing")
	require.NoError(t, err)
	assert.Nil(t, record)

	_, err = repo.GetPrivateById(ctx, "tails:nothing")
	require.Error(t, err)
}

func TestRepositoryFindListsWithPending(t *testing.T) {
	ctx := context.Background()
	repo := records.NewRevocationRepository(memory.NewMemoryStorageService())

	quiet := records.NewRevocationListRecord("rev-reg-a", "cred-def-1", registry.RevocationStatusList{})
	busy := records.NewRevocationListRecord("rev-reg-b", "cred-def-1", registry.RevocationStatusList{})
	busy.AddPending(1, 2)
	require.NoError(t, repo.SaveList(ctx, quiet))
	require.NoError(t, repo.SaveList(ctx, busy))

	pending, err := repo.FindListsWithPending(ctx, "cred-def-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "rev-reg-b", pending[0].RevocationRegistryDefinitionId)

	all, err := repo.FindListsWithPending(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
