// Package cli runs one-shot pipeline and review actions from the command line.
package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/mikey/applytrack/internal/classifier"
	"github.com/mikey/applytrack/internal/core"
	"github.com/mikey/applytrack/internal/notify"
	"github.com/mikey/applytrack/internal/review"
	"go.uber.org/zap"
)

// Ingestor runs syncs and classification batches
type Ingestor interface {
	Sync(ctx context.Context, userID string) (*core.SyncRun, error)
	ClassifyPending(ctx context.Context, userID string, limit int) (*core.SyncRun, error)
	Runs(ctx context.Context, userID string, limit int) ([]core.SyncRun, error)
}

// Reviewer applies review actions
type Reviewer interface {
	Queue(ctx context.Context, userID string, limit int) ([]core.Message, error)
	Approve(ctx context.Context, userID, messageID string) (*review.Decision, error)
	EditApprove(ctx context.Context, userID, messageID string, edits review.Edits) (*review.Decision, error)
	Reject(ctx context.Context, userID, messageID string) (*core.Message, error)
	Override(ctx context.Context, userID, messageID string) (*core.Message, *classifier.Outcome, error)
}

// Notifier derives reminders
type Notifier interface {
	Project(ctx context.Context, userID string) ([]notify.Notification, error)
}

// Tracker lists application records
type Tracker interface {
	ListApplications(ctx context.Context, userID string) ([]core.Application, error)
}

// Command is one parsed CLI invocation
type Command struct {
	User   string
	Action string
	ID     string
	Limit  int
	Edits  review.Edits
}

const defaultListLimit = 50

// App dispatches commands to the pipeline
type App struct {
	ingestor Ingestor
	reviewer Reviewer
	notifier Notifier
	tracker  Tracker
	printer  *Printer
	logger   *zap.Logger
}

// NewApp creates a CLI app
func NewApp(ingestor Ingestor, reviewer Reviewer, notifier Notifier, tracker Tracker, printer *Printer, logger *zap.Logger) *App {
	return &App{
		ingestor: ingestor,
		reviewer: reviewer,
		notifier: notifier,
		tracker:  tracker,
		printer:  printer,
		logger:   logger,
	}
}

// Run executes cmd and prints its result
func (a *App) Run(ctx context.Context, cmd Command) error {
	if strings.TrimSpace(cmd.User) == "" {
		return &core.ValidationError{Field: "user", Msg: "is required"}
	}
	if needsID(cmd.Action) && cmd.ID == "" {
		return &core.ValidationError{Field: "id", Msg: "is required for " + cmd.Action}
	}
	a.logger.Debug("Running action", zap.String("user_id", cmd.User), zap.String("action", cmd.Action))

	switch cmd.Action {
	case "sync":
		run, err := a.ingestor.Sync(ctx, cmd.User)
		a.printer.Run(run)
		return err
	case "classify":
		run, err := a.ingestor.ClassifyPending(ctx, cmd.User, cmd.Limit)
		a.printer.Run(run)
		return err
	case "runs":
		runs, err := a.ingestor.Runs(ctx, cmd.User, limitOr(cmd.Limit))
		if err != nil {
			return err
		}
		a.printer.Runs(runs)
	case "queue":
		msgs, err := a.reviewer.Queue(ctx, cmd.User, limitOr(cmd.Limit))
		if err != nil {
			return err
		}
		a.printer.Queue(msgs)
	case "approve":
		d, err := a.reviewer.Approve(ctx, cmd.User, cmd.ID)
		if err != nil {
			return err
		}
		a.printer.Decision(d)
	case "edit-approve":
		d, err := a.reviewer.EditApprove(ctx, cmd.User, cmd.ID, cmd.Edits)
		if err != nil {
			return err
		}
		a.printer.Decision(d)
	case "reject":
		msg, err := a.reviewer.Reject(ctx, cmd.User, cmd.ID)
		if err != nil {
			return err
		}
		a.printer.section("Rejected")
		a.printer.Message(msg)
	case "override":
		msg, outcome, err := a.reviewer.Override(ctx, cmd.User, cmd.ID)
		if msg != nil {
			a.printer.section("Overridden")
			a.printer.Message(msg)
		}
		if err != nil {
			return err
		}
		a.printer.Outcome(outcome)
	case "applications":
		apps, err := a.tracker.ListApplications(ctx, cmd.User)
		if err != nil {
			return err
		}
		a.printer.Applications(apps)
	case "notifications":
		list, err := a.notifier.Project(ctx, cmd.User)
		if err != nil {
			return err
		}
		a.printer.Notifications(list)
	default:
		return &core.ValidationError{Field: "action", Msg: fmt.Sprintf("%q is not a known action", cmd.Action)}
	}
	return nil
}

func needsID(action string) bool {
	switch action {
	case "approve", "edit-approve", "reject", "override":
		return true
	}
	return false
}

func limitOr(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}
