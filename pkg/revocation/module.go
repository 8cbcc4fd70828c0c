package revocation

import (
	stdcontext "context"
	"fmt"
	"net/http"
	"sync"

	anoncredsrepo "github.com/ajna-inc/revreg/pkg/anoncreds/repository"
	regsvc "github.com/ajna-inc/revreg/pkg/anoncreds/registry"
	anoncredssvc "github.com/ajna-inc/revreg/pkg/anoncreds/services"
	corectx "github.com/ajna-inc/revreg/pkg/core/context"
	"github.com/ajna-inc/revreg/pkg/core/di"
	"github.com/ajna-inc/revreg/pkg/core/events"
	"github.com/ajna-inc/revreg/pkg/core/logger"
	"github.com/ajna-inc/revreg/pkg/core/storage"
	"github.com/ajna-inc/revreg/pkg/revocation/records"
	"github.com/ajna-inc/revreg/pkg/revocation/services"
	"github.com/ajna-inc/revreg/pkg/revocation/tails"
)

// RevocationModule wires the revocation registry lifecycle engine into the
// dependency container and connects the event-driven phases: create, store,
// finish, list creation, activation and rotation.
type RevocationModule struct {
	dm           di.DependencyManager
	unsubscribes []func()

	// handlers runs detached from the triggering request so a cancelled
	// caller cannot abort a rotation already in flight
	handlers sync.WaitGroup
}

// NewRevocationModule creates the revocation module
func NewRevocationModule() *RevocationModule {
	return &RevocationModule{}
}

// Register implements di.Module
func (m *RevocationModule) Register(dm di.DependencyManager) error {
	m.dm = dm

	dm.RegisterSingleton(di.TokenRevocationRecordsRepository, func(dm di.DependencyManager) (any, error) {
		store, err := resolveStore(dm)
		if err != nil {
			return nil, err
		}
		return records.NewRevocationRepository(store), nil
	})

	dm.RegisterSingleton(di.TokenCredentialDefinitionRepository, func(dm di.DependencyManager) (any, error) {
		store, err := resolveStore(dm)
		if err != nil {
			return nil, err
		}
		return anoncredsrepo.NewCredentialDefinitionRepository(store), nil
	})

	dm.RegisterSingleton(di.TokenTailsClient, func(dm di.DependencyManager) (any, error) {
		log, err := resolveLogger(dm)
		if err != nil {
			return nil, err
		}
		cfg := agentConfig(dm)
		if cfg == nil || cfg.TailsServerBaseUrl == "" {
			return nil, fmt.Errorf("tailsServerBaseUrl is not configured")
		}
		server := tails.NewHttpTailsServer(cfg.TailsServerBaseUrl, nil)
		return tails.NewClient(server, http.DefaultClient, log), nil
	})

	dm.RegisterSingleton(di.TokenRevocationRegistryService, func(dm di.DependencyManager) (any, error) {
		deps, err := m.collaborators(dm)
		if err != nil {
			return nil, err
		}
		return services.NewRevocationRegistryService(
			deps.store, deps.repo, deps.credDefRepo, deps.issuer, deps.registry, deps.tails, deps.emitter, deps.log,
		), nil
	})

	dm.RegisterSingleton(di.TokenRevocationListService, func(dm di.DependencyManager) (any, error) {
		deps, err := m.collaborators(dm)
		if err != nil {
			return nil, err
		}
		return services.NewRevocationListService(
			deps.store, deps.repo, deps.credDefRepo, deps.issuer, deps.registry, deps.tails, deps.emitter, deps.log,
		), nil
	})

	dm.RegisterSingleton(di.TokenRevocationRotationService, func(dm di.DependencyManager) (any, error) {
		deps, err := m.collaborators(dm)
		if err != nil {
			return nil, err
		}
		registrySvc, err := resolveRegistryService(dm)
		if err != nil {
			return nil, err
		}
		listSvc, err := resolveListService(dm)
		if err != nil {
			return nil, err
		}
		return services.NewRevocationRotationService(
			deps.store, deps.repo, registrySvc, listSvc, deps.emitter, deps.log,
		), nil
	})

	return nil
}

// OnInitializeContext subscribes the event-driven phase handlers
func (m *RevocationModule) OnInitializeContext(ctx *corectx.AgentContext) error {
	bus, err := resolveBus(m.dm)
	if err != nil {
		return err
	}
	log, err := resolveLogger(m.dm)
	if err != nil {
		return err
	}
	registrySvc, err := resolveRegistryService(m.dm)
	if err != nil {
		return err
	}
	listSvc, err := resolveListService(m.dm)
	if err != nil {
		return err
	}
	rotationSvc, err := resolveRotationService(m.dm)
	if err != nil {
		return err
	}
	repo, err := resolveRepository(m.dm)
	if err != nil {
		return err
	}

	// A creation request runs the full create+register flow; the service
	// emits the single response event itself.
	m.subscribe(bus, events.EventRegistryDefinitionCreateRequest, func(ev events.Event) {
		options, ok := ev.Data.(*services.CreateRegistryOptions)
		if !ok {
			log.Warnf("Ignoring malformed registry creation request: %T", ev.Data)
			return
		}
		m.shielded(ctx, ev, func(hctx *corectx.AgentContext) {
			_, _ = registrySvc.CreateAndRegister(hctx, options)
		})
	})

	// A finished definition needs its initial revocation list
	m.subscribe(bus, events.EventRegistryDefinitionFinished, func(ev events.Event) {
		payload, ok := ev.Data.(*services.RegistryDefinitionFinishedPayload)
		if !ok {
			return
		}
		m.shielded(ctx, ev, func(hctx *corectx.AgentContext) {
			_, _ = listSvc.CreateAndRegister(hctx, payload.RevocationRegistryDefinitionId)
		})
	})

	// Explicit list creation requests, used to retry a list that never got
	// created for an otherwise finished registry
	m.subscribe(bus, events.EventRevocationListCreateRequest, func(ev events.Event) {
		payload, ok := ev.Data.(*services.ListCreateRequestPayload)
		if !ok {
			log.Warnf("Ignoring malformed list creation request: %T", ev.Data)
			return
		}
		m.shielded(ctx, ev, func(hctx *corectx.AgentContext) {
			_, _ = listSvc.CreateAndRegister(hctx, payload.RevocationRegistryDefinitionId)
		})
	})

	// The bootstrap registry activates itself once its list exists
	m.subscribe(bus, events.EventRevocationListCreateResponse, func(ev events.Event) {
		payload, ok := ev.Data.(*services.ListResponsePayload)
		if !ok || !payload.Success || !payload.FirstRegistry {
			return
		}
		m.shielded(ctx, ev, func(hctx *corectx.AgentContext) {
			if err := registrySvc.Activate(hctx, payload.RevocationRegistryDefinitionId); err != nil {
				log.Errorf("Failed to activate bootstrap registry %s: %v", payload.RevocationRegistryDefinitionId, err)
			}
		})
	})

	// Exhaustion triggers backup promotion
	m.subscribe(bus, events.EventRegistryFull, func(ev events.Event) {
		payload, ok := ev.Data.(*services.RegistryFullPayload)
		if !ok {
			return
		}
		m.shielded(ctx, ev, func(hctx *corectx.AgentContext) {
			_ = rotationSvc.HandleFullRegistry(hctx, payload.RevocationRegistryDefinitionId, payload.CredentialDefinitionId)
		})
	})

	// Activation requests from rotation
	m.subscribe(bus, events.EventRegistryActivationRequested, func(ev events.Event) {
		payload, ok := ev.Data.(*services.ActivationPayload)
		if !ok {
			return
		}
		m.shielded(ctx, ev, func(hctx *corectx.AgentContext) {
			if err := registrySvc.Activate(hctx, payload.RevocationRegistryDefinitionId); err != nil {
				log.Errorf("Failed to activate registry %s during rotation: %v", payload.RevocationRegistryDefinitionId, err)
			}
		})
	})

	// Every successful activation replenishes the standby pool
	m.subscribe(bus, events.EventRegistryActivationSucceeded, func(ev events.Event) {
		payload, ok := ev.Data.(*services.ActivationPayload)
		if !ok {
			return
		}
		m.shielded(ctx, ev, func(hctx *corectx.AgentContext) {
			promoted, err := repo.GetDefinitionByRegistryId(hctx.Context, payload.RevocationRegistryDefinitionId)
			if err != nil {
				log.Warnf("Cannot provision backup after activation of %s: %v", payload.RevocationRegistryDefinitionId, err)
				return
			}
			// Provisioning never activates, so this chain cannot recurse: the
			// standby sits inactive until a rotation promotes it
			if _, err := rotationSvc.ProvisionBackup(hctx, promoted.CredentialDefinitionId, promoted.IssuerId, promoted.MaxCredNum); err != nil {
				log.Errorf("Backup provisioning after activation of %s failed: %v", payload.RevocationRegistryDefinitionId, err)
			}
		})
	})

	return nil
}

// OnShutdown unsubscribes the handlers and waits for in-flight rotations
func (m *RevocationModule) OnShutdown(ctx *corectx.AgentContext) error {
	for _, unsubscribe := range m.unsubscribes {
		unsubscribe()
	}
	m.unsubscribes = nil
	m.handlers.Wait()
	return nil
}

func (m *RevocationModule) subscribe(bus events.Bus, name string, handler events.EventHandler) {
	m.unsubscribes = append(m.unsubscribes, bus.Subscribe(name, handler))
}

// shielded runs a handler on a context detached from the caller's
// cancellation. A rotation that already started externally must run to
// completion even when the triggering request goes away.
func (m *RevocationModule) shielded(root *corectx.AgentContext, ev events.Event, fn func(*corectx.AgentContext)) {
	detached := root.WithContext(stdcontext.WithoutCancel(root.Context))
	if ev.Metadata.ContextCorrelationId != "" {
		detached = detached.WithCorrelationId(ev.Metadata.ContextCorrelationId)
	}
	m.handlers.Add(1)
	go func() {
		defer m.handlers.Done()
		fn(detached)
	}()
}

// collaborators resolves the dependencies shared by all revocation services
type serviceDeps struct {
	store       storage.TransactionalStorageService
	repo        *records.RevocationRepository
	credDefRepo *anoncredsrepo.CredentialDefinitionRepository
	issuer      anoncredssvc.AnonCredsIssuerService
	registry    *regsvc.Service
	tails       *tails.Client
	emitter     *events.Emitter
	log         logger.Logger
}

func (m *RevocationModule) collaborators(dm di.DependencyManager) (*serviceDeps, error) {
	store, err := resolveStore(dm)
	if err != nil {
		return nil, err
	}
	txStore, ok := store.(storage.TransactionalStorageService)
	if !ok {
		return nil, fmt.Errorf("storage service does not support transactions")
	}
	repo, err := resolveRepository(dm)
	if err != nil {
		return nil, err
	}
	credDefRepoAny, err := dm.Resolve(di.TokenCredentialDefinitionRepository)
	if err != nil {
		return nil, err
	}
	issuerAny, err := dm.Resolve(di.TokenAnonCredsIssuerService)
	if err != nil {
		return nil, err
	}
	registryAny, err := dm.Resolve(di.TokenRegistryService)
	if err != nil {
		return nil, err
	}
	tailsAny, err := dm.Resolve(di.TokenTailsClient)
	if err != nil {
		return nil, err
	}
	bus, err := resolveBus(dm)
	if err != nil {
		return nil, err
	}
	log, err := resolveLogger(dm)
	if err != nil {
		return nil, err
	}

	credDefRepo, ok := credDefRepoAny.(*anoncredsrepo.CredentialDefinitionRepository)
	if !ok {
		return nil, fmt.Errorf("credential definition repository has unexpected type %T", credDefRepoAny)
	}
	issuer, ok := issuerAny.(anoncredssvc.AnonCredsIssuerService)
	if !ok {
		return nil, fmt.Errorf("anoncreds issuer service has unexpected type %T", issuerAny)
	}
	registryService, ok := registryAny.(*regsvc.Service)
	if !ok {
		return nil, fmt.Errorf("registry service has unexpected type %T", registryAny)
	}
	tailsClient, ok := tailsAny.(*tails.Client)
	if !ok {
		return nil, fmt.Errorf("tails client has unexpected type %T", tailsAny)
	}

	return &serviceDeps{
		store:       txStore,
		repo:        repo,
		credDefRepo: credDefRepo,
		issuer:      issuer,
		registry:    registryService,
		tails:       tailsClient,
		emitter:     events.NewEmitter(bus),
		log:         log,
	}, nil
}

// ---- typed resolution helpers ----

func resolveStore(dm di.DependencyManager) (storage.StorageService, error) {
	any, err := dm.Resolve(di.TokenStorageService)
	if err != nil {
		return nil, err
	}
	store, ok := any.(storage.StorageService)
	if !ok {
		return nil, fmt.Errorf("storage service has unexpected type %T", any)
	}
	return store, nil
}

func resolveBus(dm di.DependencyManager) (events.Bus, error) {
	any, err := dm.Resolve(di.TokenEventBus)
	if err != nil {
		return nil, err
	}
	bus, ok := any.(events.Bus)
	if !ok {
		return nil, fmt.Errorf("event bus has unexpected type %T", any)
	}
	return bus, nil
}

func resolveLogger(dm di.DependencyManager) (logger.Logger, error) {
	any, err := dm.Resolve(di.TokenLogger)
	if err != nil {
		return nil, err
	}
	log, ok := any.(logger.Logger)
	if !ok {
		return nil, fmt.Errorf("logger has unexpected type %T", any)
	}
	return log, nil
}

func resolveRepository(dm di.DependencyManager) (*records.RevocationRepository, error) {
	any, err := dm.Resolve(di.TokenRevocationRecordsRepository)
	if err != nil {
		return nil, err
	}
	repo, ok := any.(*records.RevocationRepository)
	if !ok {
		return nil, fmt.Errorf("revocation repository has unexpected type %T", any)
	}
	return repo, nil
}

func resolveRegistryService(dm di.DependencyManager) (*services.RevocationRegistryService, error) {
	any, err := dm.Resolve(di.TokenRevocationRegistryService)
	if err != nil {
		return nil, err
	}
	svc, ok := any.(*services.RevocationRegistryService)
	if !ok {
		return nil, fmt.Errorf("revocation registry service has unexpected type %T", any)
	}
	return svc, nil
}

func resolveListService(dm di.DependencyManager) (*services.RevocationListService, error) {
	any, err := dm.Resolve(di.TokenRevocationListService)
	if err != nil {
		return nil, err
	}
	svc, ok := any.(*services.RevocationListService)
	if !ok {
		return nil, fmt.Errorf("revocation list service has unexpected type %T", any)
	}
	return svc, nil
}

func resolveRotationService(dm di.DependencyManager) (*services.RevocationRotationService, error) {
	any, err := dm.Resolve(di.TokenRevocationRotationService)
	if err != nil {
		return nil, err
	}
	svc, ok := any.(*services.RevocationRotationService)
	if !ok {
		return nil, fmt.Errorf("revocation rotation service has unexpected type %T", any)
	}
	return svc, nil
}

func agentConfig(dm di.DependencyManager) *corectx.AgentConfig {
	if ctx := dm.GetContext(); ctx != nil {
		return ctx.Config
	}
	if any, err := dm.Resolve(di.TokenAgentConfig); err == nil {
		if cfg, ok := any.(*corectx.AgentConfig); ok {
			return cfg
		}
	}
	return nil
}
