package di

import (
	"flag"
	"os"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/applytrack/internal/config"
	"github.com/mikey/applytrack/internal/logging"
)

// CLIFlags contains all command line flags for the CLI application
type CLIFlags struct {
	User   string
	Action string
	ID     string
	Limit  int

	// edit-approve corrections
	Company  string
	Position string
	Status   string

	Verbose    bool
	JSONLog    bool
	ConfigFile string
}

// ParseFlags parses command line flags and returns a CLIFlags struct
func ParseFlags() *CLIFlags {
	return ParseFlagSet(flag.CommandLine, nil)
}

// ParseFlagSet registers the CLI flags on fs and parses args; nil args means os.Args
func ParseFlagSet(fs *flag.FlagSet, args []string) *CLIFlags {
	flags := &CLIFlags{}

	fs.StringVar(&flags.User, "user", "", "User whose mailbox and tracker to act on")
	fs.StringVar(&flags.Action, "action", "queue",
		"Action (sync, classify, queue, approve, edit-approve, reject, override, applications, notifications, runs)")
	fs.StringVar(&flags.ID, "id", "", "Message id for review actions")
	fs.IntVar(&flags.Limit, "limit", 0, "Maximum number of records to process or list")

	fs.StringVar(&flags.Company, "company", "", "Company correction for edit-approve")
	fs.StringVar(&flags.Position, "position", "", "Position correction for edit-approve")
	fs.StringVar(&flags.Status, "status", "", "Status correction for edit-approve")

	fs.BoolVar(&flags.Verbose, "verbose", false, "Enable verbose logging")
	fs.BoolVar(&flags.JSONLog, "json-log", false, "Output logs in JSON format")
	fs.StringVar(&flags.ConfigFile, "config", "", "Path to config file (default search paths otherwise)")

	if args == nil {
		args = os.Args[1:]
	}
	fs.Parse(args)
	return flags
}

// BuildCLIContainer creates and configures a dependency injection container for the CLI application
func BuildCLIContainer(flags *CLIFlags) (*dig.Container, error) {
	container := dig.New()

	// Register flags
	if err := container.Provide(func() *CLIFlags { return flags }); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(func(flags *CLIFlags) (*zap.Logger, error) {
		return logging.InitConsoleLogger(flags.Verbose, flags.JSONLog)
	}); err != nil {
		return nil, err
	}

	// Register configuration
	if err := container.Provide(func(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
		if flags.ConfigFile == "" {
			return config.New()
		}
		cfg, err := config.NewFromFile(flags.ConfigFile)
		if err != nil {
			return nil, err
		}
		logger.Debug("Loaded configuration from file", zap.String("file", flags.ConfigFile))
		return cfg, nil
	}); err != nil {
		return nil, err
	}

	if err := providePipeline(container); err != nil {
		return nil, err
	}

	return container, nil
}
