package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mikey/applytrack/internal/adapters/store"
	"github.com/mikey/applytrack/internal/core"
	"github.com/mikey/applytrack/internal/di"
	"github.com/mikey/applytrack/internal/ports"
	"github.com/mikey/applytrack/internal/scheduler"
	httptransport "github.com/mikey/applytrack/internal/transport/http"
	"go.uber.org/zap"
)

func main() {
	// Build the dependency injection container
	container, err := di.BuildContainer()
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Run the application
	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main application function that gets all dependencies injected
func run(
	logger *zap.Logger,
	server *httptransport.Server,
	sched *scheduler.Scheduler,
	mailboxes core.MailProviderFactory,
	counters core.CounterStore,
	db *store.Store,
) error {
	defer logger.Sync()

	// Start services in dependency order; stop them in reverse
	services := []ports.Service{}
	if inbox, ok := mailboxes.(ports.Service); ok {
		services = append(services, inbox)
	}
	services = append(services, server, sched)

	var started []ports.Service
	for _, svc := range services {
		if err := svc.Start(); err != nil {
			logger.Error("Failed to start service", zap.Error(err))
			stopAll(logger, started)
			return err
		}
		started = append(started, svc)
	}

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Info("Shutting down...")

	stopAll(logger, started)

	// Stop the counter store cleanup task if needed
	if stopper, ok := counters.(interface{ Stop() }); ok {
		stopper.Stop()
	}

	if err := db.Close(); err != nil {
		logger.Error("Failed to close store", zap.Error(err))
	}

	logger.Info("Shutdown complete")
	return nil
}

func stopAll(logger *zap.Logger, started []ports.Service) {
	for i := len(started) - 1; i >= 0; i-- {
		if err := started[i].Stop(); err != nil {
			logger.Error("Failed to stop service", zap.Error(err))
		}
	}
}
