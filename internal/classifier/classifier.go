// Package classifier turns a stored message into a structured classification
// using a completion provider.
package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mikey/applytrack/internal/config"
	"github.com/mikey/applytrack/internal/core"
	"github.com/mikey/applytrack/internal/dedup"
	"github.com/mikey/applytrack/internal/domainset"
	"github.com/mikey/applytrack/internal/extract"
	"github.com/mikey/applytrack/internal/metrics"
	"github.com/mikey/applytrack/internal/redact"
	"github.com/mikey/applytrack/internal/utils"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const (
	DefaultConfidenceThreshold = 0.7
	DefaultMaxBodyChars        = 3000
)

// Outcome reports what Classify recorded on the message
type Outcome struct {
	Classification   *core.Classification `json:"classification,omitempty"`
	ExtractionFailed bool                 `json:"extraction_failed"`
	Qualified        bool                 `json:"qualified"`
	Suggestion       dedup.Match          `json:"suggestion"`
}

// Classifier runs one classification attempt per message
type Classifier struct {
	repo          core.Repository
	provider      core.CompletionProvider
	resolver      *dedup.Resolver
	redactor      *redact.Redactor
	textProcessor *utils.TextProcessor
	cfg           config.ClassifierConfig
	logger        *zap.Logger
	now           func() time.Time
}

// New creates a classifier. provider is normally a *completion.Client.
func New(
	repo core.Repository,
	provider core.CompletionProvider,
	resolver *dedup.Resolver,
	textProcessor *utils.TextProcessor,
	cfg config.ClassifierConfig,
	logger *zap.Logger,
) *Classifier {
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if cfg.MaxBodyChars <= 0 {
		cfg.MaxBodyChars = DefaultMaxBodyChars
	}
	if textProcessor == nil {
		textProcessor = utils.NewTextProcessor(logger)
	}
	return &Classifier{
		repo:          repo,
		provider:      provider,
		resolver:      resolver,
		redactor:      redact.New(),
		textProcessor: textProcessor,
		cfg:           cfg,
		logger:        logger,
		now:           time.Now,
	}
}

// Classify sends msg to the provider and records the result on it.
// A provider failure returns an error and leaves msg untouched. Unparseable
// output is recorded as classified with no result and is not an error.
func (c *Classifier) Classify(ctx context.Context, msg *core.Message) (*Outcome, error) {
	body := c.textProcessor.ProcessText(msg.Body, c.cfg.MaxBodyChars)
	email := formatEmail(msg.From, msg.To, msg.Subject, body, msg.ReceivedAt)

	var mapping redact.Mapping
	if c.cfg.RedactPII {
		email, mapping = c.redactor.Redact(email)
	}

	text, err := c.provider.Complete(ctx, buildPrompt(email))
	if err != nil {
		metrics.Classifications.WithLabelValues("error").Inc()
		return nil, err
	}

	classifiedAt := c.now().UTC()
	parsed := extract.Object(text)
	classification, convErr := toClassification(parsed, mapping)
	if convErr != nil {
		c.logger.Warn("Model output could not be parsed",
			zap.String("message_id", msg.ID),
			zap.String("provider", c.provider.Name()),
			zap.Error(convErr))

		msg.IsClassified = true
		msg.Classification = nil
		msg.ClassificationError = convErr.Error()
		msg.ClassificationTrace = datatypes.JSONMap{
			"provider":     c.provider.Name(),
			"stage":        "parse_failed",
			"placeholders": len(mapping),
		}
		msg.ClassifiedAt = &classifiedAt
		msg.SuggestedAppID = nil
		msg.SuggestedBy = ""
		if err := c.repo.SaveMessage(ctx, msg); err != nil {
			return nil, err
		}
		metrics.Classifications.WithLabelValues("extraction_failed").Inc()
		return &Outcome{ExtractionFailed: true}, nil
	}

	outcome := &Outcome{
		Classification: classification,
		Qualified:      classification.Qualifies(c.cfg.ConfidenceThreshold),
	}

	msg.IsClassified = true
	msg.Classification = classification
	msg.ClassificationError = ""
	msg.ClassificationTrace = datatypes.JSONMap{
		"provider":     c.provider.Name(),
		"stage":        parsed.Stage,
		"placeholders": len(mapping),
	}
	msg.ClassifiedAt = &classifiedAt
	msg.SuggestedAppID = nil
	msg.SuggestedBy = ""

	if outcome.Qualified && c.resolver != nil {
		match, err := c.resolver.Resolve(ctx, c.repo, dedup.Candidate{
			UserID:        msg.UserID,
			MessageID:     msg.ID,
			ThreadID:      msg.ThreadID,
			SenderAddress: domainset.ExtractAddress(msg.From),
			Company:       classification.Company,
		})
		if err != nil {
			return nil, fmt.Errorf("resolve suggestion: %w", err)
		}
		if match.Found() {
			id := match.ApplicationID
			msg.SuggestedAppID = &id
			msg.SuggestedBy = match.Strategy
		}
		outcome.Suggestion = match
	}

	if err := c.repo.SaveMessage(ctx, msg); err != nil {
		return nil, err
	}

	label := "unqualified"
	if outcome.Qualified {
		label = "qualified"
	}
	metrics.Classifications.WithLabelValues(label).Inc()

	c.logger.Info("Message classified",
		zap.String("message_id", msg.ID),
		zap.Bool("job_related", classification.IsJobRelated),
		zap.Float64("confidence", classification.Confidence),
		zap.Bool("qualified", outcome.Qualified),
		zap.String("suggested_by", outcome.Suggestion.Strategy))

	return outcome, nil
}

// toClassification restores placeholders and decodes the object into a Classification
func toClassification(parsed extract.Result[map[string]any], mapping redact.Mapping) (*core.Classification, error) {
	if parsed.ParseFailed() {
		return nil, fmt.Errorf("no JSON object in model output")
	}
	restored, _ := redact.Restore(parsed.Value, mapping).(map[string]any)

	raw, err := json.Marshal(restored)
	if err != nil {
		return nil, fmt.Errorf("re-encode model output: %w", err)
	}
	var cl core.Classification
	if err := json.Unmarshal(raw, &cl); err != nil {
		return nil, fmt.Errorf("unexpected classification shape: %w", err)
	}
	switch {
	case cl.Confidence < 0:
		cl.Confidence = 0
	case cl.Confidence > 1:
		cl.Confidence = 1
	}
	return &cl, nil
}
