// Package review implements the human review state machine for classified
// messages: PENDING moves to APPROVED or REJECTED, and filtered messages
// leave SKIPPED only through an explicit override.
package review

import (
	"context"
	"strings"
	"time"

	"github.com/mikey/applytrack/internal/classifier"
	"github.com/mikey/applytrack/internal/core"
	"github.com/mikey/applytrack/internal/dedup"
	"github.com/mikey/applytrack/internal/domainset"
	"github.com/mikey/applytrack/internal/metrics"
	"github.com/mikey/applytrack/internal/ratelimit"
	"github.com/mikey/applytrack/internal/utils"
	"go.uber.org/zap"
)

// draftPrefixRunes is how much of a draft must appear in the sent body
const draftPrefixRunes = 100

// Classifier is the part of the classifier used by override
type Classifier interface {
	Classify(ctx context.Context, msg *core.Message) (*classifier.Outcome, error)
}

// Edits are reviewer corrections applied on top of the classification
type Edits struct {
	Company  string `json:"company"`
	Position string `json:"position"`
	Status   string `json:"status"`
}

// Decision is the result of an approval
type Decision struct {
	Message       *core.Message     `json:"message"`
	Application   *core.Application `json:"application"`
	Created       bool              `json:"created"`
	Strategy      string            `json:"strategy,omitempty"`
	StatusChanged bool              `json:"status_changed"`
	FollowUpSent  *core.FollowUp    `json:"follow_up_sent,omitempty"`
}

// Workflow applies review actions
type Workflow struct {
	store         core.Store
	resolver      *dedup.Resolver
	classifier    Classifier
	limiter       core.RateLimiter
	textProcessor *utils.TextProcessor
	logger        *zap.Logger
	now           func() time.Time
}

// NewWorkflow creates a review workflow; limiter may be nil
func NewWorkflow(
	store core.Store,
	resolver *dedup.Resolver,
	cls Classifier,
	limiter core.RateLimiter,
	textProcessor *utils.TextProcessor,
	logger *zap.Logger,
) *Workflow {
	if textProcessor == nil {
		textProcessor = utils.NewTextProcessor(logger)
	}
	return &Workflow{
		store:         store,
		resolver:      resolver,
		classifier:    cls,
		limiter:       limiter,
		textProcessor: textProcessor,
		logger:        logger,
		now:           time.Now,
	}
}

// Queue lists classified messages awaiting review, newest first
func (w *Workflow) Queue(ctx context.Context, userID string, limit int) ([]core.Message, error) {
	return w.store.ListReviewQueue(ctx, userID, limit)
}

// Approve links the message to an application using the classification as is
func (w *Workflow) Approve(ctx context.Context, userID, messageID string) (*Decision, error) {
	return w.approve(ctx, userID, messageID, nil, "approve")
}

// EditApprove is Approve with reviewer corrections taking precedence
func (w *Workflow) EditApprove(ctx context.Context, userID, messageID string, edits Edits) (*Decision, error) {
	return w.approve(ctx, userID, messageID, &edits, "edit_approve")
}

func (w *Workflow) approve(ctx context.Context, userID, messageID string, edits *Edits, action string) (*Decision, error) {
	if err := w.allow(ctx, userID, ratelimit.OpReview); err != nil {
		return nil, err
	}

	var editStatus core.ApplicationStatus
	if edits != nil && strings.TrimSpace(edits.Status) != "" {
		st, ok := core.ParseApplicationStatus(edits.Status)
		if !ok {
			return nil, &core.ValidationError{Field: "status", Msg: "is not a known application status"}
		}
		editStatus = st
	}

	var decision *Decision
	err := w.store.Transaction(ctx, func(tx core.Repository) error {
		msg, err := tx.GetMessage(ctx, userID, messageID)
		if err != nil {
			return err
		}
		reviewedAt := w.now().UTC()
		if err := claim(ctx, tx, msg, core.ReviewApproved, reviewedAt, action); err != nil {
			return err
		}

		fields := dedup.FieldsFromClassification(msg.Classification)
		if edits != nil {
			if c := strings.TrimSpace(edits.Company); c != "" {
				fields.Company = c
			}
			if p := strings.TrimSpace(edits.Position); p != "" {
				fields.Position = p
			}
			if editStatus != "" {
				fields.Status = editStatus
			}
		}

		link, err := w.resolver.Link(ctx, tx, dedup.Candidate{
			UserID:        userID,
			MessageID:     msg.ID,
			ThreadID:      msg.ThreadID,
			SenderAddress: domainset.ExtractAddress(msg.From),
			Company:       fields.Company,
		}, fields, msg.ReceivedAt)
		if err != nil {
			return err
		}

		appID := link.Application.ID
		msg.ReviewState = core.ReviewApproved
		msg.ReviewedAt = &reviewedAt
		msg.ApplicationID = &appID
		if err := tx.SaveMessage(ctx, msg); err != nil {
			return err
		}

		decision = &Decision{
			Message:       msg,
			Application:   link.Application,
			Created:       link.Created,
			Strategy:      link.Strategy,
			StatusChanged: link.StatusChanged,
		}

		if msg.IsOutbound {
			sent, err := w.markDraftSent(ctx, tx, appID, msg)
			if err != nil {
				return err
			}
			decision.FollowUpSent = sent
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.ReviewTransitions.WithLabelValues(action).Inc()
	w.logger.Info("Message approved",
		zap.String("user_id", userID),
		zap.String("message_id", messageID),
		zap.String("application_id", decision.Application.ID),
		zap.Bool("created", decision.Created),
		zap.String("strategy", decision.Strategy))
	return decision, nil
}

// markDraftSent marks the first draft whose opening appears in the sent body
func (w *Workflow) markDraftSent(ctx context.Context, tx core.Repository, appID string, msg *core.Message) (*core.FollowUp, error) {
	drafts, err := tx.ListDraftFollowUps(ctx, appID)
	if err != nil {
		return nil, err
	}
	sent := w.textProcessor.Normalize(msg.Body)
	for i := range drafts {
		if !w.draftMatches(drafts[i].Body, sent) {
			continue
		}
		sentAt := msg.ReceivedAt
		if sentAt.IsZero() {
			sentAt = w.now().UTC()
		}
		drafts[i].Status = core.FollowUpSent
		drafts[i].SentAt = &sentAt
		if err := tx.SaveFollowUp(ctx, &drafts[i]); err != nil {
			return nil, err
		}
		w.logger.Info("Follow-up draft matched sent email",
			zap.String("follow_up_id", drafts[i].ID),
			zap.String("message_id", msg.ID))
		return &drafts[i], nil
	}
	return nil, nil
}

func (w *Workflow) draftMatches(draft, normalizedSent string) bool {
	prefix := utils.Prefix(w.textProcessor.Normalize(draft), draftPrefixRunes)
	return prefix != "" && strings.Contains(normalizedSent, prefix)
}

// Reject closes a pending message without touching applications
func (w *Workflow) Reject(ctx context.Context, userID, messageID string) (*core.Message, error) {
	if err := w.allow(ctx, userID, ratelimit.OpReview); err != nil {
		return nil, err
	}

	var msg *core.Message
	err := w.store.Transaction(ctx, func(tx core.Repository) error {
		var err error
		msg, err = tx.GetMessage(ctx, userID, messageID)
		if err != nil {
			return err
		}
		reviewedAt := w.now().UTC()
		if err := claim(ctx, tx, msg, core.ReviewRejected, reviewedAt, "reject"); err != nil {
			return err
		}
		msg.ReviewState = core.ReviewRejected
		msg.ReviewedAt = &reviewedAt
		return tx.SaveMessage(ctx, msg)
	})
	if err != nil {
		return nil, err
	}

	metrics.ReviewTransitions.WithLabelValues("reject").Inc()
	w.logger.Info("Message rejected",
		zap.String("user_id", userID),
		zap.String("message_id", messageID))
	return msg, nil
}

// Override pulls a filtered message back into the queue and classifies it
// now. A classifier failure is returned with the message left reset.
func (w *Workflow) Override(ctx context.Context, userID, messageID string) (*core.Message, *classifier.Outcome, error) {
	if err := w.allow(ctx, userID, ratelimit.OpReview); err != nil {
		return nil, nil, err
	}

	msg, err := w.store.GetMessage(ctx, userID, messageID)
	if err != nil {
		return nil, nil, err
	}
	if msg.ReviewState != core.ReviewSkipped && !msg.FilterStatus.Rejected() {
		return nil, nil, &core.InvalidStateError{ID: msg.ID, State: msg.ReviewState, Action: "override"}
	}

	msg.FilterStatus = core.FilterUserOverride
	msg.FilterReason = "overridden by user"
	msg.IsClassified = false
	msg.Classification = nil
	msg.ClassificationError = ""
	msg.ClassificationTrace = nil
	msg.ClassifiedAt = nil
	msg.SuggestedAppID = nil
	msg.SuggestedBy = ""
	msg.ReviewState = core.ReviewPending
	msg.ReviewedAt = nil
	if err := w.store.SaveMessage(ctx, msg); err != nil {
		return nil, nil, err
	}
	metrics.ReviewTransitions.WithLabelValues("override").Inc()
	w.logger.Info("Filter overridden",
		zap.String("user_id", userID),
		zap.String("message_id", messageID))

	if err := w.allow(ctx, userID, ratelimit.OpClassify); err != nil {
		return msg, nil, err
	}
	outcome, err := w.classifier.Classify(ctx, msg)
	if err != nil {
		return msg, nil, err
	}
	return msg, outcome, nil
}

// claim moves msg out of PENDING inside tx. A message that looked pending but
// was claimed by a concurrent review reports its current state.
func claim(ctx context.Context, tx core.Repository, msg *core.Message, state core.ReviewState, at time.Time, action string) error {
	if msg.ReviewState != core.ReviewPending {
		return &core.InvalidStateError{ID: msg.ID, State: msg.ReviewState, Action: action}
	}
	ok, err := tx.ClaimReview(ctx, msg.UserID, msg.ID, state, at)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	current, err := tx.GetMessage(ctx, msg.UserID, msg.ID)
	if err != nil {
		return err
	}
	return &core.InvalidStateError{ID: msg.ID, State: current.ReviewState, Action: action}
}

func (w *Workflow) allow(ctx context.Context, userID, op string) error {
	if w.limiter == nil {
		return nil
	}
	return w.limiter.Allow(ctx, userID, op)
}
