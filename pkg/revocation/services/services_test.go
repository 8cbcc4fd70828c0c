package services_test

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

	"github.com/stretchr/testify/require"

	"github.com/ajna-inc/revreg/pkg/anoncreds/registry"
	"github.com/ajna-inc/revreg/pkg/anoncreds/registry/inmemory"
	anoncredsrepo "github.com/ajna-inc/revreg/pkg/anoncreds/repository"
	anoncredssvc "github.com/ajna-inc/revreg/pkg/anoncreds/services"
	"github.com/ajna-inc/revreg/pkg/core/common"
	corectx "github.com/ajna-inc/revreg/pkg/core/context"
	"github.com/ajna-inc/revreg/pkg/core/events"
	"github.com/ajna-inc/revreg/pkg/core/logger"
	"github.com/ajna-inc/revreg/pkg/core/storage/memory"
	"github.com/ajna-inc/revreg/pkg/core/utils"
	"github.com/ajna-inc/revreg/pkg/revocation/records"
	"github.com/ajna-inc/revreg/pkg/revocation/services"
	"github.com/ajna-inc/revreg/pkg/revocation/tails"
)

const testIssuerId = "did:mem:test-issuer"

// stubIssuer is a deterministic stand-in for the native anoncreds bindings.
// It writes a real tails file so the upload path is exercised for real.
type stubIssuer struct{}

func (s *stubIssuer) CreateRevocationRegistryDefinition(ctx *corectx.AgentContext, options *anoncredssvc.CreateRevocationRegistryDefinitionOptions) (*anoncredssvc.CreateRevocationRegistryDefinitionReturn, error) {
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

func (s *stubIssuer) CreateRevocationStatusList(ctx *corectx.AgentContext, options *anoncredssvc.CreateRevocationStatusListOptions) (registry.RevocationStatusList, error) {
	return registry.RevocationStatusList{
		RevRegDefId:        options.RevocationRegistryDefinitionId,
		IssuerId:           options.IssuerId,
		RevocationList:     make([]int, options.RevocationRegistryDefinition.Value.MaxCredNum+1),
		CurrentAccumulator: "accum-0",
		Timestamp:          options.Timestamp,
	}, nil
}

func (s *stubIssuer) UpdateRevocationStatusList(ctx *corectx.AgentContext, options *anoncredssvc.UpdateRevocationStatusListOptions) (registry.RevocationStatusList, error) {
	updated := options.CurrentList
	updated.RevocationList = append([]int(nil), options.CurrentList.RevocationList...)
	for _, idx := range options.RevokedIndexes {
		if idx < 0 || idx >= len(updated.RevocationList) {
			return registry.RevocationStatusList{}, fmt.Errorf("revocation index out of bounds: %d", idx)
		}
		updated.RevocationList[idx] = 1
	}
	for _, idx := range options.IssuedIndexes {
		if idx >= 0 && idx < len(updated.RevocationList) {
			updated.RevocationList[idx] = 0
		}
	}
	updated.CurrentAccumulator = "accum-" + common.GenerateUUID()
	updated.Timestamp = options.Timestamp
	return updated, nil
}

// tailsServerControl drives the in-memory tails server from tests: uploads
// can be made to fail and stored files inspected
type tailsServerControl struct {
	mu          sync.Mutex
	files       map[string][]byte
	failUploads bool
}

func (c *tailsServerControl) setFailUploads(fail bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failUploads = fail
}

func (c *tailsServerControl) has(hash string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.files[hash]
	return ok
}

// newTailsTestServer serves an in-memory tails store speaking the hash-addressed
// upload/download protocol
func newTailsTestServer(t *testing.T) (*httptest.Server, *tailsServerControl) {
	t.Helper()
	ctl := &tailsServerControl{files: make(map[string][]byte)}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hash := filepath.Base(r.URL.Path)
		switch r.Method {
		case http.MethodPut:
			ctl.mu.Lock()
			failing := ctl.failUploads
			ctl.mu.Unlock()
			if failing {
				http.Error(w, "tails server unavailable", http.StatusServiceUnavailable)
				return
			}
			file, _, err := r.FormFile("tails")
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			data, err := io.ReadAll(file)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			ctl.mu.Lock()
			ctl.files[hash] = data
			ctl.mu.Unlock()
			fmt.Fprintf(w, "http://%s/hash/%s", r.Host, hash)
		case http.MethodGet:
			ctl.mu.Lock()
			data, ok := ctl.files[hash]
			ctl.mu.Unlock()
			if !ok {
				http.NotFound(w, r)
				return
			}
			w.Write(data)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, ctl
}

// testEngine wires the full revocation engine over in-memory collaborators
type testEngine struct {
	ctx         *corectx.AgentContext
	store       *memory.MemoryStorageService
	repo        *records.RevocationRepository
	bus         *events.SimpleBus
	backend     *inmemory.MemoryRegistry
	tailsCtl    *tailsServerControl
	registrySvc *services.RevocationRegistryService
	listSvc     *services.RevocationListService
	rotationSvc *services.RevocationRotationService
	credDefId   string
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()

	tailsDir := t.TempDir()
	srv, tailsCtl := newTailsTestServer(t)

	cfg := &corectx.AgentConfig{
		Label:                  "test",
		TailsServerBaseUrl:     srv.URL,
		TailsDirectory:         tailsDir,
		TailsUploadMaxAttempts: 2,
		TailsUploadInterval:    time.Millisecond,
	}
	ctx := corectx.NewAgentContext(corectx.AgentContextOptions{
		Context:              context.Background(),
		ContextCorrelationId: common.GenerateUUID(),
		Config:               cfg,
	})

	store := memory.NewMemoryStorageService()
	repo := records.NewRevocationRepository(store)
	bus := events.NewSimpleBus()
	log := logger.NewNullLogger()
	emitter := events.NewEmitter(bus)

	backend := inmemory.NewMemoryRegistry(regexp.MustCompile(`^did:mem:`))
	router := registry.NewService()
	router.Register(backend)

	tailsClient := tails.NewClient(tails.NewHttpTailsServer(srv.URL, nil), srv.Client(), log)
	credDefRepo := anoncredsrepo.NewCredentialDefinitionRepository(store)
	issuer := &stubIssuer{}

	credDefId := testIssuerId + "/credDef/" + common.GenerateUUID()
	credDef := registry.CredentialDefinition{
		Id:                 credDefId,
		Tag:                "default",
		SchemaId:           testIssuerId + "/schema/1",
		IssuerId:           testIssuerId,
		SupportsRevocation: true,
	}
	require.NoError(t, credDefRepo.Save(ctx.Context, anoncredsrepo.NewCredentialDefinitionRecord(credDefId, credDef, "memory")))

	registrySvc := services.NewRevocationRegistryService(store, repo, credDefRepo, issuer, router, tailsClient, emitter, log)
	listSvc := services.NewRevocationListService(store, repo, credDefRepo, issuer, router, tailsClient, emitter, log)
	rotationSvc := services.NewRevocationRotationService(store, repo, registrySvc, listSvc, emitter, log)

	return &testEngine{
		ctx:         ctx,
		store:       store,
		repo:        repo,
		bus:         bus,
		backend:     backend,
		tailsCtl:    tailsCtl,
		registrySvc: registrySvc,
		listSvc:     listSvc,
		rotationSvc: rotationSvc,
		credDefId:   credDefId,
	}
}

// provisionRegistry creates, registers and lists one registry; activate says
// whether it also becomes the active one
func (e *testEngine) provisionRegistry(t *testing.T, maxCredNum int, activate bool) *records.RevocationRegistryDefinitionRecord {
	t.Helper()

	record, err := e.registrySvc.CreateAndRegister(e.ctx, &services.CreateRegistryOptions{
		RequestId:               common.GenerateUUID(),
		IssuerId:                testIssuerId,
		CredentialDefinitionId:  e.credDefId,
		Tag:                     common.GenerateUUID(),
		MaximumCredentialNumber: maxCredNum,
	})
	require.NoError(t, err)
	require.Equal(t, records.RegistryStateFinished, record.State)

	_, err = e.listSvc.CreateAndRegister(e.ctx, record.RevocationRegistryDefinitionId)
	require.NoError(t, err)

	if activate {
		require.NoError(t, e.registrySvc.Activate(e.ctx, record.RevocationRegistryDefinitionId))
	}
	return record
}

// collectEvents records every event with the given name for later assertions
func (e *testEngine) collectEvents(t *testing.T, name string) *[]events.Event {
	t.Helper()
	var mu sync.Mutex
	collected := &[]events.Event{}
	unsubscribe := e.bus.Subscribe(name, func(ev events.Event) {
		mu.Lock()
		defer mu.Unlock()
		*collected = append(*collected, ev)
	})
	t.Cleanup(unsubscribe)
	return collected
}
