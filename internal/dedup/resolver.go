// Package dedup finds the application a classified message belongs to and
// links the message to it, creating the application when nothing matches.
package dedup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mikey/applytrack/internal/core"
	"github.com/mikey/applytrack/internal/domainset"
	"go.uber.org/zap"
)

// DefaultGenericDomains are consumer mail providers excluded from domain matching.
// Regional providers are missing; matching on them only costs precision.
var DefaultGenericDomains = []string{
	"gmail.com", "googlemail.com", "outlook.com", "hotmail.com", "live.com", "msn.com",
	"yahoo.com", "ymail.com", "icloud.com", "me.com", "mac.com", "aol.com",
	"protonmail.com", "proton.me", "gmx.com", "gmx.net", "mail.com", "yandex.com",
	"zoho.com", "fastmail.com",
}

// Match is the outcome of Resolve; an empty ApplicationID means no match
type Match struct {
	ApplicationID string `json:"application_id,omitempty"`
	Strategy      string `json:"strategy,omitempty"`
}

// Found reports whether a strategy matched
func (m Match) Found() bool {
	return m.ApplicationID != ""
}

// Fields are the application values carried by a classification or a reviewer edit
type Fields struct {
	Company      string
	Position     string
	Status       core.ApplicationStatus
	ContactName  string
	ContactEmail string
	NextAction   string
	KeyDate      *time.Time
}

// FieldsFromClassification converts extracted values; unknown status text is dropped
func FieldsFromClassification(c *core.Classification) Fields {
	if c == nil {
		return Fields{}
	}
	f := Fields{
		Company:      strings.TrimSpace(c.Company),
		Position:     strings.TrimSpace(c.Position),
		ContactName:  strings.TrimSpace(c.ContactName),
		ContactEmail: strings.TrimSpace(c.ContactEmail),
		NextAction:   strings.TrimSpace(c.NextAction),
		KeyDate:      ParseKeyDate(c.KeyDate),
	}
	if st, ok := core.ParseApplicationStatus(c.Status); ok {
		f.Status = st
	}
	return f
}

var keyDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
}

// ParseKeyDate accepts the date formats models commonly produce, nil otherwise
func ParseKeyDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range keyDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// LinkResult describes what Link did
type LinkResult struct {
	Application *core.Application
	Created     bool
	Strategy    string
	// StatusChanged is set when a StatusChange row was appended to an existing application
	StatusChanged bool
}

// Resolver runs the strategies in priority order and stops at the first match
type Resolver struct {
	strategies []Strategy
	logger     *zap.Logger
	now        func() time.Time
}

// NewResolver creates the thread, domain, company chain. extraGeneric is added
// to DefaultGenericDomains.
func NewResolver(extraGeneric []string, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	generic := domainset.New(DefaultGenericDomains, logger)
	generic.Add(extraGeneric...)
	return NewResolverWithStrategies(logger,
		threadStrategy{},
		domainStrategy{generic: generic},
		companyStrategy{},
	)
}

// NewResolverWithStrategies creates a resolver over an explicit chain
func NewResolverWithStrategies(logger *zap.Logger, strategies ...Strategy) *Resolver {
	return &Resolver{strategies: strategies, logger: logger, now: time.Now}
}

// Resolve returns the first strategy match. It never writes.
func (r *Resolver) Resolve(ctx context.Context, repo core.Repository, c Candidate) (Match, error) {
	apps, err := repo.ListApplications(ctx, c.UserID)
	if err != nil {
		return Match{}, err
	}
	for _, s := range r.strategies {
		id, err := s.Match(ctx, repo, c, apps)
		if err != nil {
			return Match{}, fmt.Errorf("%s strategy: %w", s.Name(), err)
		}
		if id != "" {
			r.logger.Debug("Application resolved",
				zap.String("message_id", c.MessageID),
				zap.String("application_id", id),
				zap.String("strategy", s.Name()))
			return Match{ApplicationID: id, Strategy: s.Name()}, nil
		}
	}
	return Match{}, nil
}

// Link resolves the candidate and applies fields to the match, or creates a
// new EMAIL_DETECTED application. repo should be transactional so the lookup
// and the write are observed together.
func (r *Resolver) Link(ctx context.Context, repo core.Repository, c Candidate, f Fields, receivedAt time.Time) (*LinkResult, error) {
	match, err := r.Resolve(ctx, repo, c)
	if err != nil {
		return nil, err
	}
	if !match.Found() {
		return r.create(ctx, repo, c, f, receivedAt)
	}

	app, err := repo.GetApplication(ctx, c.UserID, match.ApplicationID)
	if err != nil {
		return nil, err
	}
	result := &LinkResult{Application: app, Strategy: match.Strategy}

	if f.Status.Valid() && f.Status != app.Status {
		if err := repo.AppendStatusChange(ctx, &core.StatusChange{
			ApplicationID: app.ID,
			FromStatus:    app.Status,
			ToStatus:      f.Status,
			Reason:        "email " + c.MessageID,
			ChangedAt:     r.now().UTC(),
		}); err != nil {
			return nil, err
		}
		r.logger.Info("Application status changed",
			zap.String("application_id", app.ID),
			zap.String("from", string(app.Status)),
			zap.String("to", string(f.Status)))
		app.Status = f.Status
		result.StatusChanged = true
	}
	mergeFields(app, f)

	if err := repo.SaveApplication(ctx, app); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *Resolver) create(ctx context.Context, repo core.Repository, c Candidate, f Fields, receivedAt time.Time) (*LinkResult, error) {
	company := f.Company
	if company == "" {
		company = strings.TrimSpace(c.Company)
	}
	if company == "" {
		return nil, &core.ValidationError{Field: "company", Msg: "is required to create an application"}
	}
	status := f.Status
	if !status.Valid() {
		status = core.StatusApplied
	}

	app := &core.Application{
		UserID:   c.UserID,
		Company:  company,
		Position: f.Position,
		Status:   status,
		Source:   core.SourceEmailDetected,
	}
	if !receivedAt.IsZero() {
		applied := receivedAt.UTC()
		app.AppliedAt = &applied
	}
	mergeFields(app, f)

	if err := repo.CreateApplication(ctx, app); err != nil {
		return nil, err
	}
	if err := repo.AppendStatusChange(ctx, &core.StatusChange{
		ApplicationID: app.ID,
		ToStatus:      status,
		Reason:        "created from email " + c.MessageID,
		ChangedAt:     r.now().UTC(),
	}); err != nil {
		return nil, err
	}

	r.logger.Info("Application created from email",
		zap.String("application_id", app.ID),
		zap.String("user_id", c.UserID),
		zap.String("status", string(status)))
	return &LinkResult{Application: app, Created: true}, nil
}

// mergeFields copies only non-empty values; an extraction never blanks a field
func mergeFields(app *core.Application, f Fields) {
	if f.Position != "" && app.Position == "" {
		app.Position = f.Position
	}
	if f.ContactName != "" {
		app.ContactName = f.ContactName
	}
	if f.ContactEmail != "" {
		app.ContactEmail = f.ContactEmail
	}
	if f.NextAction != "" {
		app.NextAction = f.NextAction
	}
	if f.KeyDate != nil {
		app.NextActionDate = f.KeyDate
	}
}
