package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mikey/applytrack/internal/adapters/store"
	"github.com/mikey/applytrack/internal/cli"
	"github.com/mikey/applytrack/internal/core"
	"github.com/mikey/applytrack/internal/di"
	"github.com/mikey/applytrack/internal/ingest"
	"github.com/mikey/applytrack/internal/notify"
	"github.com/mikey/applytrack/internal/review"
	"go.uber.org/zap"
)

func main() {
	// Parse command line flags
	flags := di.ParseFlags()

	// Build the dependency injection container
	container, err := di.BuildCLIContainer(flags)
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Run the application
	if err := container.Invoke(run); err != nil {
		fmt.Printf("Error: %v\n", err)
		var ve *core.ValidationError
		if errors.As(err, &ve) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// run executes one CLI action with injected dependencies
func run(
	flags *di.CLIFlags,
	logger *zap.Logger,
	orchestrator *ingest.Orchestrator,
	workflow *review.Workflow,
	projector *notify.Projector,
	counters core.CounterStore,
	db *store.Store,
) error {
	defer logger.Sync()
	defer db.Close()
	if stopper, ok := counters.(interface{ Stop() }); ok {
		defer stopper.Stop()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := cli.NewApp(orchestrator, workflow, projector, db, cli.NewPrinter(os.Stdout, flags.Verbose), logger)
	return app.Run(ctx, cli.Command{
		User:   flags.User,
		Action: flags.Action,
		ID:     flags.ID,
		Limit:  flags.Limit,
		Edits: review.Edits{
			Company:  flags.Company,
			Position: flags.Position,
			Status:   flags.Status,
		},
	})
}
