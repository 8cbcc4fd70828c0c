// Command revreg-setup provisions a revocation registry end to end against a
// local wallet and an in-memory registration backend: it creates and registers
// a definition, waits for the bootstrap registry to become active, allocates a
// few credential indexes and publishes a batched revocation.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/ajna-inc/revreg/pkg/anoncreds/registry"
	"github.com/ajna-inc/revreg/pkg/anoncreds/registry/inmemory"
	anoncredsrepo "github.com/ajna-inc/revreg/pkg/anoncreds/repository"
	"github.com/ajna-inc/revreg/pkg/anoncreds/services/issuer"
	"github.com/ajna-inc/revreg/pkg/askar"
	"github.com/ajna-inc/revreg/pkg/core/common"
	corectx "github.com/ajna-inc/revreg/pkg/core/context"
	"github.com/ajna-inc/revreg/pkg/core/di"
	"github.com/ajna-inc/revreg/pkg/core/events"
	"github.com/ajna-inc/revreg/pkg/core/logger"
	"github.com/ajna-inc/revreg/pkg/revocation"
	"github.com/ajna-inc/revreg/pkg/revocation/records"
	"github.com/ajna-inc/revreg/pkg/revocation/services"
)

func main() {
	tailsServer := flag.String("tails-server", "http://localhost:6543", "base URL of the tails server")
	maxCredNum := flag.Int("max-cred-num", 10, "registry capacity")
	flag.Parse()

	log := logger.NewDefaultLogger(logger.LogLevelDebug)

	if err := run(log, *tailsServer, *maxCredNum); err != nil {
		log.Errorf("revreg-setup failed: %v", err)
		os.Exit(1)
	}
}

func run(log logger.Logger, tailsServerUrl string, maxCredNum int) error {
	tailsDir := filepath.Join(os.TempDir(), "revreg-setup-tails")
	if err := os.MkdirAll(tailsDir, 0o755); err != nil {
		return err
	}

	config := &corectx.AgentConfig{
		Label: "revreg-setup",
		WalletConfig: &corectx.WalletConfig{
			ID:  "revreg-setup",
			Key: "revreg-setup-key",
		},
		TailsServerBaseUrl:   tailsServerUrl,
		TailsDirectory:       tailsDir,
		RegistryReadyTimeout: services.TimeoutFromEnv(),
	}

	dm := di.NewDependencyManager()
	bus := events.NewSimpleBus()
	dm.RegisterInstance(di.TokenLogger, log)
	dm.RegisterInstance(di.TokenEventBus, bus)
	dm.RegisterInstance(di.TokenAgentConfig, config)

	router := registry.NewService()
	router.Register(inmemory.NewMemoryRegistry(regexp.MustCompile(`^did:mem:`)))
	dm.RegisterInstance(di.TokenRegistryService, router)
	dm.RegisterInstance(di.TokenAnonCredsIssuerService, issuer.NewAnonCredsRsIssuerService())

	askarModule := askar.NewAskarModule(&askar.AskarModuleConfig{
		Store: &askar.AskarStoreConfig{
			ID:  config.WalletConfig.ID,
			Key: config.WalletConfig.Key,
		},
	})
	if err := dm.RegisterModules([]di.Module{askarModule, revocation.NewRevocationModule()}); err != nil {
		return err
	}

	ctx := corectx.NewAgentContext(corectx.AgentContextOptions{
		Context:              context.Background(),
		ContextCorrelationId: common.GenerateUUID(),
		IsRootAgentContext:   true,
		Config:               config,
	})
	ctx.SetDependencyManager(dm)
	if err := dm.InitializeModules(ctx); err != nil {
		return err
	}
	defer func() {
		if err := dm.ShutdownModules(ctx); err != nil {
			log.Warnf("Shutdown reported: %v", err)
		}
	}()

	// Seed a credential definition that supports revocation
	issuerId := "did:mem:revreg-setup-issuer"
	credDefId := fmt.Sprintf("%s/credDef/%s", issuerId, common.GenerateUUID())
	credDef := registry.CredentialDefinition{
		Id:                 credDefId,
		Tag:                "default",
		SchemaId:           fmt.Sprintf("%s/schema/demo", issuerId),
		IssuerId:           issuerId,
		SupportsRevocation: true,
	}

	credDefRepo := anoncredsrepo.NewCredentialDefinitionRepository(askarModule.StorageService())
	if err := credDefRepo.Save(ctx.Context, anoncredsrepo.NewCredentialDefinitionRecord(credDefId, credDef, "memory")); err != nil {
		return err
	}

	registrySvcAny, err := dm.Resolve(di.TokenRevocationRegistryService)
	if err != nil {
		return err
	}
	registrySvc := registrySvcAny.(*services.RevocationRegistryService)
	listSvcAny, err := dm.Resolve(di.TokenRevocationListService)
	if err != nil {
		return err
	}
	listSvc := listSvcAny.(*services.RevocationListService)
	repoAny, err := dm.Resolve(di.TokenRevocationRecordsRepository)
	if err != nil {
		return err
	}
	repo := repoAny.(*records.RevocationRepository)

	log.Infof("Creating revocation registry for %s (capacity %d)", credDefId, maxCredNum)
	record, err := registrySvc.CreateAndRegister(ctx, &services.CreateRegistryOptions{
		RequestId:               common.GenerateUUID(),
		IssuerId:                issuerId,
		CredentialDefinitionId:  credDefId,
		Tag:                     "0",
		MaximumCredentialNumber: maxCredNum,
	})
	if err != nil {
		return err
	}
	log.Infof("Registered revocation registry %s", record.RevocationRegistryDefinitionId)

	waiter := services.NewReadinessWaiter(repo, log, config.RegistryReadyTimeout)
	active, err := waiter.WaitForActive(ctx, credDefId)
	if err != nil {
		return err
	}
	log.Infof("Active registry ready: %s", active.RevocationRegistryDefinitionId)

	var indexes []int
	for i := 0; i < 3 && i < maxCredNum; i++ {
		allocation, err := listSvc.AllocateIndex(ctx, active.RevocationRegistryDefinitionId)
		if err != nil {
			return err
		}
		indexes = append(indexes, allocation.Index)
		log.Infof("Allocated credential index %d", allocation.Index)
	}

	if len(indexes) > 1 {
		if err := listSvc.MarkPending(ctx, active.RevocationRegistryDefinitionId, indexes[:len(indexes)-1]); err != nil {
			return err
		}
		result, err := listSvc.PublishPending(ctx, active.RevocationRegistryDefinitionId, nil)
		if err != nil {
			return err
		}
		log.Infof("Published revocations %v in %d attempt(s)", result.Revoked, result.Attempts)
	}

	return nil
}
