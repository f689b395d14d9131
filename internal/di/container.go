package di

import (
	"context"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/applytrack/internal/adapters/store"
	"github.com/mikey/applytrack/internal/classifier"
	"github.com/mikey/applytrack/internal/completion"
	"github.com/mikey/applytrack/internal/config"
	"github.com/mikey/applytrack/internal/core"
	"github.com/mikey/applytrack/internal/dedup"
	"github.com/mikey/applytrack/internal/factory"
	"github.com/mikey/applytrack/internal/ingest"
	"github.com/mikey/applytrack/internal/logging"
	"github.com/mikey/applytrack/internal/notify"
	"github.com/mikey/applytrack/internal/prefilter"
	"github.com/mikey/applytrack/internal/review"
	"github.com/mikey/applytrack/internal/scheduler"
	httptransport "github.com/mikey/applytrack/internal/transport/http"
	"github.com/mikey/applytrack/internal/utils"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	if err := providePipeline(container); err != nil {
		return nil, err
	}

	// Register HTTP server
	if err := container.Provide(func(
		cfg *config.Config,
		logger *zap.Logger,
		s *store.Store,
		orchestrator *ingest.Orchestrator,
		workflow *review.Workflow,
		projector *notify.Projector,
	) *httptransport.Server {
		return httptransport.NewServer(cfg.GetServer().ListenAddress, httptransport.Dependencies{
			Ingestor: orchestrator,
			Reviewer: workflow,
			Notifier: projector,
			Tracker:  s,
			Health:   s,
			Logger:   logger,
		})
	}); err != nil {
		return nil, err
	}

	// Register scheduler
	if err := container.Provide(func(
		cfg *config.Config,
		logger *zap.Logger,
		orchestrator *ingest.Orchestrator,
	) (*scheduler.Scheduler, error) {
		sc, err := cfg.GetScheduler()
		if err != nil {
			return nil, err
		}
		return scheduler.New(orchestrator, sc.Users, sc.Interval, logger), nil
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// providePipeline registers everything below the transports. It expects
// *config.Config and *zap.Logger to be provided already.
func providePipeline(container *dig.Container) error {
	// Register factories
	if err := container.Provide(factory.NewLLMFactory); err != nil {
		return err
	}
	if err := container.Provide(factory.NewCounterFactory); err != nil {
		return err
	}
	if err := container.Provide(factory.NewFilterFactory); err != nil {
		return err
	}
	if err := container.Provide(factory.NewTextProcessorFactory); err != nil {
		return err
	}
	if err := container.Provide(factory.NewStoreFactory); err != nil {
		return err
	}
	if err := container.Provide(factory.NewMailboxFactory); err != nil {
		return err
	}

	// Register text processor
	if err := container.Provide(func(f *factory.TextProcessorFactory) *utils.TextProcessor {
		return f.CreateTextProcessor()
	}); err != nil {
		return err
	}

	// Register store
	if err := container.Provide(func(f *factory.StoreFactory) (*store.Store, error) {
		return f.CreateStore()
	}); err != nil {
		return err
	}
	if err := container.Provide(func(s *store.Store) core.Store {
		return s
	}); err != nil {
		return err
	}

	// Register counter store and limiter
	if err := container.Provide(func(f *factory.CounterFactory) (core.CounterStore, error) {
		return f.CreateCounterStore(context.Background())
	}); err != nil {
		return err
	}
	if err := container.Provide(func(f *factory.CounterFactory, counters core.CounterStore) (core.RateLimiter, error) {
		limiter, err := f.CreateLimiter(counters)
		if err != nil {
			return nil, err
		}
		return limiter, nil
	}); err != nil {
		return err
	}

	// Register completion client
	if err := container.Provide(func(f *factory.LLMFactory) (*completion.Client, error) {
		return f.CreateCompletionClient(context.Background())
	}); err != nil {
		return err
	}

	// Register pre-filter and mail provider
	if err := container.Provide(func(f *factory.FilterFactory) *prefilter.Filter {
		return f.CreateFilter()
	}); err != nil {
		return err
	}
	if err := container.Provide(func(f *factory.MailboxFactory) (core.MailProviderFactory, error) {
		return f.CreateMailProviderFactory()
	}); err != nil {
		return err
	}

	// Register resolver
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) *dedup.Resolver {
		extra := cfg.GetGenericDomains()
		if len(extra) > 0 {
			logger.Info("Loaded extra generic mail domains", zap.Strings("domains", extra))
		}
		return dedup.NewResolver(extra, logger)
	}); err != nil {
		return err
	}

	// Register classifier
	if err := container.Provide(func(
		cfg *config.Config,
		logger *zap.Logger,
		s core.Store,
		client *completion.Client,
		resolver *dedup.Resolver,
		tp *utils.TextProcessor,
	) *classifier.Classifier {
		return classifier.New(s, client, resolver, tp, cfg.GetClassifier(), logger)
	}); err != nil {
		return err
	}

	// Register review workflow
	if err := container.Provide(func(
		logger *zap.Logger,
		s core.Store,
		resolver *dedup.Resolver,
		cls *classifier.Classifier,
		limiter core.RateLimiter,
		tp *utils.TextProcessor,
	) *review.Workflow {
		return review.NewWorkflow(s, resolver, cls, limiter, tp, logger)
	}); err != nil {
		return err
	}

	// Register orchestrator
	if err := container.Provide(func(
		cfg *config.Config,
		logger *zap.Logger,
		s core.Store,
		mailboxes core.MailProviderFactory,
		filter *prefilter.Filter,
		cls *classifier.Classifier,
		limiter core.RateLimiter,
	) *ingest.Orchestrator {
		return ingest.NewOrchestrator(s, mailboxes, filter, cls, limiter,
			cfg.GetIngest(), cfg.GetClassifier().BatchSize, logger)
	}); err != nil {
		return err
	}

	// Register notification projector
	if err := container.Provide(func(s core.Store, logger *zap.Logger) *notify.Projector {
		return notify.NewProjector(s, logger)
	}); err != nil {
		return err
	}

	return nil
}
