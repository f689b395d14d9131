// Package ingest drives a user's mailbox sync and the classification batch,
// recording each run as a SyncRun.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mikey/applytrack/internal/classifier"
	"github.com/mikey/applytrack/internal/config"
	"github.com/mikey/applytrack/internal/core"
	"github.com/mikey/applytrack/internal/metrics"
	"github.com/mikey/applytrack/internal/prefilter"
	"github.com/mikey/applytrack/internal/ratelimit"
	"github.com/mikey/applytrack/internal/utils"
	"go.uber.org/zap"
)

const (
	DefaultMaxResults = 100
	DefaultBatchSize  = 20
	// PreviewChars is the body prefix stored as preview and seen by the pre-filter
	PreviewChars = 500
)

// Classifier classifies one stored message
type Classifier interface {
	Classify(ctx context.Context, msg *core.Message) (*classifier.Outcome, error)
}

// Orchestrator runs syncs and classification batches for one user at a time
type Orchestrator struct {
	store      core.Store
	mailboxes  core.MailProviderFactory
	filter     *prefilter.Filter
	classifier Classifier
	limiter    core.RateLimiter
	query      string
	maxResults int
	batchSize  int
	logger     *zap.Logger
	now        func() time.Time
}

// NewOrchestrator creates an orchestrator; limiter may be nil
func NewOrchestrator(
	store core.Store,
	mailboxes core.MailProviderFactory,
	filter *prefilter.Filter,
	cls Classifier,
	limiter core.RateLimiter,
	ingestCfg config.IngestConfig,
	batchSize int,
	logger *zap.Logger,
) *Orchestrator {
	if ingestCfg.MaxResults <= 0 {
		ingestCfg.MaxResults = DefaultMaxResults
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Orchestrator{
		store:      store,
		mailboxes:  mailboxes,
		filter:     filter,
		classifier: cls,
		limiter:    limiter,
		query:      ingestCfg.Query,
		maxResults: ingestCfg.MaxResults,
		batchSize:  batchSize,
		logger:     logger,
		now:        time.Now,
	}
}

// Sync fetches candidate messages, pre-filters them and stores the new ones.
// Passed messages wait as PENDING for ClassifyPending; rejected ones are
// stored SKIPPED with the reason. The returned run is always finalized, also
// when an error is returned alongside it.
func (o *Orchestrator) Sync(ctx context.Context, userID string) (run *core.SyncRun, err error) {
	if err := o.allow(ctx, userID, ratelimit.OpSync); err != nil {
		return nil, err
	}

	run, err = o.startRun(ctx, userID, core.SyncKindFetch)
	if err != nil {
		return nil, err
	}
	defer func() { err = o.finishRun(ctx, run, err) }()

	mailbox, err := o.mailboxes.ForUser(ctx, userID)
	if err != nil {
		return run, fmt.Errorf("open mailbox: %w", err)
	}

	refs, err := mailbox.ListCandidateMessages(ctx, o.query, o.maxResults)
	if err != nil {
		return run, fmt.Errorf("list messages: %w", err)
	}
	run.Fetched = len(refs)

	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return run, err
		}

		exists, err := o.store.MessageExists(ctx, userID, ref.ID)
		if err != nil {
			return run, err
		}
		if exists {
			run.Duplicates++
			continue
		}

		mail, err := mailbox.GetMessage(ctx, ref.ID)
		if err != nil {
			if core.IsFatalProviderError(err) {
				return run, fmt.Errorf("get message %s: %w", ref.ID, err)
			}
			run.Failed++
			o.logger.Warn("Failed to fetch message",
				zap.String("user_id", userID),
				zap.String("external_id", ref.ID),
				zap.Error(err))
			continue
		}

		msg := o.toMessage(userID, ref, mail)
		created, err := o.store.CreateMessage(ctx, msg)
		if err != nil {
			return run, err
		}
		if !created {
			run.Duplicates++
			continue
		}
		run.Stored++
		if msg.ReviewState == core.ReviewSkipped {
			run.Filtered++
		}
	}
	return run, nil
}

func (o *Orchestrator) toMessage(userID string, ref core.MessageRef, mail *core.MailMessage) *core.Message {
	threadID := mail.ThreadID
	if threadID == "" {
		threadID = ref.ThreadID
	}
	preview := utils.Prefix(mail.Body, PreviewChars)

	msg := &core.Message{
		UserID:     userID,
		ExternalID: ref.ID,
		ThreadID:   threadID,
		From:       mail.From,
		To:         mail.To,
		Subject:    mail.Subject,
		Preview:    preview,
		Body:       mail.Body,
		ReceivedAt: mail.ReceivedAt.UTC(),
		IsOutbound: mail.IsOutbound,
	}

	result := o.filter.Evaluate(prefilter.Input{From: mail.From, Subject: mail.Subject, Preview: preview})
	metrics.PrefilterOutcomes.WithLabelValues(string(result.Status)).Inc()
	msg.FilterStatus = result.Status
	msg.FilterReason = result.Reason
	if result.Passed {
		msg.ReviewState = core.ReviewPending
	} else {
		msg.ReviewState = core.ReviewSkipped
		o.logger.Debug("Message filtered",
			zap.String("external_id", ref.ID),
			zap.String("status", string(result.Status)),
			zap.String("reason", result.Reason))
	}
	return msg
}

// ClassifyPending classifies up to limit unclassified messages, newest first.
// A failed message is counted and skipped; a fatal provider error or a spent
// quota ends the batch.
func (o *Orchestrator) ClassifyPending(ctx context.Context, userID string, limit int) (run *core.SyncRun, err error) {
	if limit <= 0 || limit > o.batchSize {
		limit = o.batchSize
	}

	run, err = o.startRun(ctx, userID, core.SyncKindClassify)
	if err != nil {
		return nil, err
	}
	defer func() { err = o.finishRun(ctx, run, err) }()

	msgs, err := o.store.ListUnclassified(ctx, userID, limit)
	if err != nil {
		return run, err
	}
	run.Fetched = len(msgs)

	for i := range msgs {
		if err := ctx.Err(); err != nil {
			return run, err
		}
		if err := o.allow(ctx, userID, ratelimit.OpClassify); err != nil {
			return run, err
		}

		outcome, err := o.classifier.Classify(ctx, &msgs[i])
		if err != nil {
			if core.IsFatalProviderError(err) {
				return run, fmt.Errorf("classify message %s: %w", msgs[i].ID, err)
			}
			run.Failed++
			o.logger.Warn("Classification failed",
				zap.String("user_id", userID),
				zap.String("message_id", msgs[i].ID),
				zap.Error(err))
			continue
		}
		if outcome.ExtractionFailed {
			run.ExtractionFailed++
			continue
		}
		run.Classified++
	}
	return run, nil
}

func (o *Orchestrator) startRun(ctx context.Context, userID string, kind core.SyncKind) (*core.SyncRun, error) {
	run := &core.SyncRun{
		UserID:    userID,
		Kind:      kind,
		Status:    core.SyncRunning,
		StartedAt: o.now().UTC(),
	}
	if err := o.store.CreateSyncRun(ctx, run); err != nil {
		return nil, fmt.Errorf("record sync run: %w", err)
	}
	o.logger.Info("Sync run started",
		zap.String("user_id", userID),
		zap.String("run_id", run.ID),
		zap.String("kind", string(kind)))
	return run, nil
}

// finishRun stamps the terminal state. It saves on a context that survives
// the caller's cancellation so a failed run is always recorded.
func (o *Orchestrator) finishRun(ctx context.Context, run *core.SyncRun, runErr error) error {
	finished := o.now().UTC()
	run.FinishedAt = &finished
	run.Status = core.SyncCompleted
	if runErr != nil {
		run.Status = core.SyncFailed
		run.Error = runErr.Error()
	}

	saveErr := o.store.SaveSyncRun(context.WithoutCancel(ctx), run)
	metrics.SyncRuns.WithLabelValues(string(run.Kind), string(run.Status)).Inc()

	fields := []zap.Field{
		zap.String("user_id", run.UserID),
		zap.String("run_id", run.ID),
		zap.String("kind", string(run.Kind)),
		zap.String("status", string(run.Status)),
		zap.Int("fetched", run.Fetched),
		zap.Int("duplicates", run.Duplicates),
		zap.Int("stored", run.Stored),
		zap.Int("filtered", run.Filtered),
		zap.Int("classified", run.Classified),
		zap.Int("extraction_failed", run.ExtractionFailed),
		zap.Int("failed", run.Failed),
	}
	if runErr != nil {
		o.logger.Error("Sync run failed", append(fields, zap.Error(runErr))...)
	} else {
		o.logger.Info("Sync run completed", fields...)
	}

	if saveErr != nil {
		return errors.Join(runErr, fmt.Errorf("finalize sync run: %w", saveErr))
	}
	return runErr
}

func (o *Orchestrator) allow(ctx context.Context, userID, op string) error {
	if o.limiter == nil {
		return nil
	}
	return o.limiter.Allow(ctx, userID, op)
}

// Runs lists recent sync runs for a user
func (o *Orchestrator) Runs(ctx context.Context, userID string, limit int) ([]core.SyncRun, error) {
	return o.store.ListSyncRuns(ctx, userID, limit)
}
