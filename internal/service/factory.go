// File: internal/service/factory.go
package service

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/demoqa-e2e/api/schemas"
	"github.com/xkilldash9x/demoqa-e2e/internal/actor"
	"github.com/xkilldash9x/demoqa-e2e/internal/apiclient"
	"github.com/xkilldash9x/demoqa-e2e/internal/browser"
	"github.com/xkilldash9x/demoqa-e2e/internal/config"
	"github.com/xkilldash9x/demoqa-e2e/internal/fixture"
	"github.com/xkilldash9x/demoqa-e2e/internal/observability"
	"github.com/xkilldash9x/demoqa-e2e/internal/orchestrator"
	"github.com/xkilldash9x/demoqa-e2e/internal/pages"
	"github.com/xkilldash9x/demoqa-e2e/internal/session"
	"github.com/xkilldash9x/demoqa-e2e/internal/steps"
)

// ComponentFactory creates the set of components needed for a suite run.
// This abstraction is what makes the run command testable.
type ComponentFactory interface {
	Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error)
}

// concreteFactory is the production implementation of the ComponentFactory.
type concreteFactory struct {
	sessions func(cfg config.Interface, logger *zap.Logger) session.Factory
}

// NewComponentFactory creates a new production-ready component factory.
func NewComponentFactory() ComponentFactory {
	return &concreteFactory{sessions: SessionFactory}
}

// APIOptions translates the application config into HTTP client options.
func APIOptions(cfg config.Interface) apiclient.Options {
	api := cfg.API()
	return apiclient.Options{
		BaseURL:   cfg.Target().API(),
		Timeout:   api.Timeout,
		RateLimit: api.RateLimit,
		Burst:     api.Burst,
		UserAgent: api.UserAgent,
	}
}

// SessionFactory returns the production provisioners: a dedicated browser for
// interactive sessions and a bare HTTP client for api sessions.
func SessionFactory(cfg config.Interface, logger *zap.Logger) session.Factory {
	api := APIOptions(cfg)
	return func(kind session.Kind) (session.Provisioner, error) {
		switch kind {
		case session.KindInteractive:
			return browser.NewProvisioner(cfg.Browser(), api, logger), nil
		case session.KindAPI:
			return apiclient.NewProvisioner(api, logger.Named("api")), nil
		default:
			return nil, &schemas.LifecycleError{Op: "provision", State: fmt.Sprintf("unknown kind %q", kind)}
		}
	}
}

// Create handles the full dependency injection and initialization of run components.
func (f *concreteFactory) Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error) {
	components := &Components{
		Config:       cfg,
		verdictsChan: make(chan schemas.Verdict, 256),
		consumerWG:   &sync.WaitGroup{},
	}

	// Ensure cleanup happens if initialization fails midway.
	var initializationErr error
	defer func() {
		if initializationErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initializationErr))
			components.Shutdown()
		}
	}()

	if err := cfg.Validate(); err != nil {
		initializationErr = fmt.Errorf("invalid configuration: %w", err)
		return nil, initializationErr
	}

	// 1. Metrics
	components.Metrics = observability.NewMetrics()

	// 2. Verdict store (optional)
	dbStore, pool, err := InitializeStore(ctx, cfg.Database(), logger)
	if err != nil {
		initializationErr = err
		return nil, initializationErr
	}
	components.Store, components.DBPool = dbStore, pool

	// 3. Reports (optional)
	reporter, err := InitializeReporter(cfg.Report())
	if err != nil {
		initializationErr = err
		return nil, initializationErr
	}
	components.Reporter = reporter

	// 4. Verdict consumer
	var sink VerdictStore
	if dbStore != nil {
		sink = dbStore
	}
	StartVerdictConsumer(ctx, components.consumerWG, components.verdictsChan, sink, reporter, logger)
	logger.Debug("Verdict consumer started.")

	// 5. Fixture
	fixtureStore, err := fixture.NewStore(cfg.Fixture().Path, logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to open credentials fixture: %w", err)
		return nil, initializationErr
	}
	components.Fixture = fixtureStore

	// 6. Actor environment
	components.Env = actor.Env{
		Pages:       pages.NewDeps(cfg, components.Metrics, logger.Named("pages")),
		Fixture:     fixtureStore,
		PicturePath: cfg.Fixture().PicturePath,
		Logger:      logger,
	}

	// 7. Orchestrator
	engine := cfg.Engine()
	orch, err := orchestrator.New(f.sessions(cfg, logger), logger,
		orchestrator.WithConcurrency(engine.ActorConcurrency),
		orchestrator.WithTaskTimeout(engine.TaskTimeout),
		orchestrator.WithCloseTimeout(cfg.Browser().CloseTimeout),
		orchestrator.WithMetrics(components.Metrics),
		orchestrator.WithActorOptions(actor.Options{Screenshots: true, Logger: logger.Named("actor")}),
	)
	if err != nil {
		initializationErr = fmt.Errorf("failed to create orchestrator: %w", err)
		return nil, initializationErr
	}
	components.Orchestrator = orch

	// 8. Step runtime
	components.Runtime = steps.NewRuntime(components.Env, orch, logger)
	components.Runtime.OnVerdict(components.publish)

	logger.Info("All run components initialized successfully.")
	return components, nil
}
