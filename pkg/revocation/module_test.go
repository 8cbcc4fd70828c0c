package revocation_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajna-inc/revreg/pkg/anoncreds/registry"
	"github.com/ajna-inc/revreg/pkg/anoncreds/registry/inmemory"
	anoncredsrepo "github.com/ajna-inc/revreg/pkg/anoncreds/repository"
	anoncredssvc "github.com/ajna-inc/revreg/pkg/anoncreds/services"
	"github.com/ajna-inc/revreg/pkg/core/common"
	corectx "github.com/ajna-inc/revreg/pkg/core/context"
	"github.com/ajna-inc/revreg/pkg/core/di"
	"github.com/ajna-inc/revreg/pkg/core/events"
	"github.com/ajna-inc/revreg/pkg/core/logger"
	"github.com/ajna-inc/revreg/pkg/core/storage/memory"
	"github.com/ajna-inc/revreg/pkg/core/utils"
	"github.com/ajna-inc/revreg/pkg/revocation"
	"github.com/ajna-inc/revreg/pkg/revocation/records"
	"github.com/ajna-inc/revreg/pkg/revocation/services"
)

const e2eIssuerId = "did:mem:e2e-issuer"

type fakeIssuer struct{}

func (f *fakeIssuer) CreateRevocationRegistryDefinition(ctx *corectx.AgentContext, options *anoncredssvc.CreateRevocationRegistryDefinitionOptions) (*anoncredssvc.CreateRevocationRegistryDefinitionReturn, error) {
	content := []byte("tails-" + common.GenerateUUID())
	hash := utils.TailsHash(content)
	if err := os.WriteFile(filepath.Join(options.TailsDirectoryPath, hash), content, 0o644); err != nil {
		return nil, err
	}
	return &anoncredssvc.CreateRevocationRegistryDefinitionReturn{
		RevocationRegistryDefinition: registry.RevocationRegistryDefinition{
			IssuerId:     options.IssuerId,
			RevocDefType: "CL_ACCUM",
			CredDefId:    options.CredentialDefinitionId,
			Tag:          options.Tag,
			Value: registry.RevocationRegistryDefinitionValue{
				MaxCredNum: options.MaximumCredentialNumber,
				TailsHash:  hash,
			},
		},
		RevocationRegistryDefinitionPrivate: map[string]interface{}{"accumKey": common.GenerateUUID()},
	}, nil
}

func (f *fakeIssuer) CreateRevocationStatusList(ctx *corectx.AgentContext, options *anoncredssvc.CreateRevocationStatusListOptions) (registry.RevocationStatusList, error) {
	return registry.RevocationStatusList{
		RevRegDefId:        options.RevocationRegistryDefinitionId,
		IssuerId:           options.IssuerId,
		RevocationList:     make([]int, options.RevocationRegistryDefinition.Value.MaxCredNum+1),
		CurrentAccumulator: "accum-0",
		Timestamp:          options.Timestamp,
	}, nil
}

func (f *fakeIssuer) UpdateRevocationStatusList(ctx *corectx.AgentContext, options *anoncredssvc.UpdateRevocationStatusListOptions) (registry.RevocationStatusList, error) {
	updated := options.CurrentList
	updated.RevocationList = append([]int(nil), options.CurrentList.RevocationList...)
	for _, idx := range options.RevokedIndexes {
		updated.RevocationList[idx] = 1
	}
	updated.CurrentAccumulator = "accum-" + common.GenerateUUID()
	updated.Timestamp = options.Timestamp
	return updated, nil
}

func startTailsServer(t *testing.T) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	files := make(map[string][]byte)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hash := filepath.Base(r.URL.Path)
		switch r.Method {
		case http.MethodPut:
			file, _, err := r.FormFile("tails")
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			data, _ := io.ReadAll(file)
			mu.Lock()
			files[hash] = data
			mu.Unlock()
			fmt.Fprintf(w, "http://%s/hash/%s", r.Host, hash)
		case http.MethodGet:
			mu.Lock()
			data, ok := files[hash]
			mu.Unlock()
			if !ok {
				http.NotFound(w, r)
				return
			}
			w.Write(data)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// TestModuleEventDrivenLifecycle runs the whole engine through its event
// chain: a creation request bootstraps an active registry plus a standby, and
// exhausting the active one rotates to the standby without any direct service
// calls.
func TestModuleEventDrivenLifecycle(t *testing.T) {
	srv := startTailsServer(t)

	config := &corectx.AgentConfig{
		Label:              "module-test",
		TailsServerBaseUrl: srv.URL,
		TailsDirectory:     t.TempDir(),
	}

	dm := di.NewDependencyManager()
	bus := events.NewSimpleBus()
	store := memory.NewMemoryStorageService()
	dm.RegisterInstance(di.TokenLogger, logger.NewNullLogger())
	dm.RegisterInstance(di.TokenEventBus, bus)
	dm.RegisterInstance(di.TokenAgentConfig, config)
	dm.RegisterInstance(di.TokenStorageService, store)

	router := registry.NewService()
	router.Register(inmemory.NewMemoryRegistry(regexp.MustCompile(`^did:mem:`)))
	dm.RegisterInstance(di.TokenRegistryService, router)
	dm.RegisterInstance(di.TokenAnonCredsIssuerService, &fakeIssuer{})

	module := revocation.NewRevocationModule()
	require.NoError(t, dm.RegisterModules([]di.Module{module}))

	ctx := corectx.NewAgentContext(corectx.AgentContextOptions{
		Context:              context.Background(),
		ContextCorrelationId: common.GenerateUUID(),
		IsRootAgentContext:   true,
		Config:               config,
	})
	ctx.SetDependencyManager(dm)
	require.NoError(t, dm.InitializeModules(ctx))
	defer func() { require.NoError(t, dm.ShutdownModules(ctx)) }()

	credDefId := e2eIssuerId + "/credDef/" + common.GenerateUUID()
	credDefRepo := anoncredsrepo.NewCredentialDefinitionRepository(store)
	require.NoError(t, credDefRepo.Save(ctx.Context, anoncredsrepo.NewCredentialDefinitionRecord(credDefId, registry.CredentialDefinition{
		Id:                 credDefId,
		Tag:                "default",
		SchemaId:           e2eIssuerId + "/schema/1",
		IssuerId:           e2eIssuerId,
		SupportsRevocation: true,
	}, "memory")))

	repo := records.NewRevocationRepository(store)

	// Kick off the bootstrap purely through the bus
	bus.PublishWithMetadata(events.EventRegistryDefinitionCreateRequest, &services.CreateRegistryOptions{
		RequestId:               common.GenerateUUID(),
		IssuerId:                e2eIssuerId,
		CredentialDefinitionId:  credDefId,
		Tag:                     "0",
		MaximumCredentialNumber: 3,
	}, events.EventMetadata{ContextCorrelationId: ctx.GetCorrelationId()})

	waiter := services.NewReadinessWaiter(repo, logger.NewNullLogger(), 15*time.Second)
	active, err := waiter.WaitForActive(ctx, credDefId)
	require.NoError(t, err)
	bootstrapId := active.RevocationRegistryDefinitionId

	// A standby follows the bootstrap activation
	waitFor(t, 10*time.Second, func() bool {
		siblings, err := repo.FindDefinitionsByCredentialDefinitionId(ctx.Context, credDefId)
		if err != nil {
			return false
		}
		for _, sibling := range siblings {
			if sibling.RevocationRegistryDefinitionId != bootstrapId &&
				sibling.State == records.RegistryStateFinished && !sibling.Active {
				return true
			}
		}
		return false
	})

	// Exhausting the bootstrap registry triggers the rotation chain
	listSvcAny, err := dm.Resolve(di.TokenRevocationListService)
	require.NoError(t, err)
	listSvc := listSvcAny.(*services.RevocationListService)
	for i := 0; i < 2; i++ {
		_, err := listSvc.AllocateIndex(ctx, bootstrapId)
		require.NoError(t, err)
	}

	waitFor(t, 10*time.Second, func() bool {
		actives, err := repo.FindActiveDefinitions(ctx.Context, credDefId)
		if err != nil || len(actives) != 1 {
			return false
		}
		return actives[0].RevocationRegistryDefinitionId != bootstrapId
	})

	exhausted, err := repo.GetDefinitionByRegistryId(ctx.Context, bootstrapId)
	require.NoError(t, err)
	assert.Equal(t, records.RegistryStateFull, exhausted.State)
}

// TestModuleHandlesListCreateRequests covers the explicit list creation
// request: a finished registry that never got its initial status list receives
// one when the event fires.
func TestModuleHandlesListCreateRequests(t *testing.T) {
	srv := startTailsServer(t)

	config := &corectx.AgentConfig{
		Label:              "module-test",
		TailsServerBaseUrl: srv.URL,
		TailsDirectory:     t.TempDir(),
	}

	dm := di.NewDependencyManager()
	bus := events.NewSimpleBus()
	store := memory.NewMemoryStorageService()
	dm.RegisterInstance(di.TokenLogger, logger.NewNullLogger())
	dm.RegisterInstance(di.TokenEventBus, bus)
	dm.RegisterInstance(di.TokenAgentConfig, config)
	dm.RegisterInstance(di.TokenStorageService, store)

	backend := inmemory.NewMemoryRegistry(regexp.MustCompile(`^did:mem:`))
	router := registry.NewService()
	router.Register(backend)
	dm.RegisterInstance(di.TokenRegistryService, router)
	dm.RegisterInstance(di.TokenAnonCredsIssuerService, &fakeIssuer{})

	module := revocation.NewRevocationModule()
	require.NoError(t, dm.RegisterModules([]di.Module{module}))

	ctx := corectx.NewAgentContext(corectx.AgentContextOptions{
		Context:              context.Background(),
		ContextCorrelationId: common.GenerateUUID(),
		IsRootAgentContext:   true,
		Config:               config,
	})
	ctx.SetDependencyManager(dm)
	require.NoError(t, dm.InitializeModules(ctx))
	defer func() { require.NoError(t, dm.ShutdownModules(ctx)) }()

	credDefId := e2eIssuerId + "/credDef/" + common.GenerateUUID()
	credDefRepo := anoncredsrepo.NewCredentialDefinitionRepository(store)
	require.NoError(t, credDefRepo.Save(ctx.Context, anoncredsrepo.NewCredentialDefinitionRecord(credDefId, registry.CredentialDefinition{
		Id:                 credDefId,
		Tag:                "default",
		SchemaId:           e2eIssuerId + "/schema/1",
		IssuerId:           e2eIssuerId,
		SupportsRevocation: true,
	}, "memory")))

	// A finished registry whose initial list creation never happened
	revRegDefId := e2eIssuerId + "/revReg/" + common.GenerateUUID()
	definition := registry.RevocationRegistryDefinition{
		Id:           revRegDefId,
		IssuerId:     e2eIssuerId,
		RevocDefType: "CL_ACCUM",
		CredDefId:    credDefId,
		Tag:          "0",
		Value: registry.RevocationRegistryDefinitionValue{
			MaxCredNum: 5,
			TailsHash:  "orphanhash",
		},
	}
	_, err := backend.RegisterRevocationRegistryDefinition(registry.RegisterRevocationRegistryDefinitionOptions{
		RevocationRegistryDefinition: definition,
	})
	require.NoError(t, err)

	repo := records.NewRevocationRepository(store)
	orphan := records.NewRevocationRegistryDefinitionRecord(revRegDefId, credDefId, definition)
	orphan.SetState(records.RegistryStateFinished)
	orphan.TailsUploaded = true
	require.NoError(t, repo.SaveDefinition(ctx.Context, orphan))

	private := records.NewRevocationRegistryPrivateRecord(credDefId, "orphanhash", map[string]interface{}{"accumKey": common.GenerateUUID()})
	private.AssignRegistryId(revRegDefId)
	require.NoError(t, repo.SavePrivate(ctx.Context, private))

	bus.PublishWithMetadata(events.EventRevocationListCreateRequest, &services.ListCreateRequestPayload{
		RevocationRegistryDefinitionId: revRegDefId,
	}, events.EventMetadata{ContextCorrelationId: ctx.GetCorrelationId()})

	waitFor(t, 10*time.Second, func() bool {
		list, err := repo.GetListByRegistryId(ctx.Context, revRegDefId)
		return err == nil && list.NextIndex == 1
	})
}

func waitFor(t *testing.T, timeout time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}
