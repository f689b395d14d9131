package dedup

import (
	"context"
	"strings"

	"github.com/mikey/applytrack/internal/core"
	"github.com/mikey/applytrack/internal/domainset"
)

// Candidate describes the message being matched against existing applications
type Candidate struct {
	UserID        string
	MessageID     string
	ThreadID      string
	SenderAddress string
	Company       string
}

// Strategy finds an existing application for a candidate. It returns the
// application id, or "" when it has no opinion.
type Strategy interface {
	Name() string
	Match(ctx context.Context, repo core.Repository, c Candidate, apps []core.Application) (string, error)
}

// threadStrategy reuses the application already linked to another message of the thread
type threadStrategy struct{}

func (threadStrategy) Name() string { return "thread" }

func (threadStrategy) Match(ctx context.Context, repo core.Repository, c Candidate, _ []core.Application) (string, error) {
	if c.ThreadID == "" {
		return "", nil
	}
	return repo.FindThreadApplication(ctx, c.UserID, c.ThreadID, c.MessageID)
}

// domainStrategy matches the sender domain against stored contact emails.
// Consumer mail providers say nothing about the employer and are skipped.
type domainStrategy struct {
	generic *domainset.Set
}

func (domainStrategy) Name() string { return "domain" }

func (s domainStrategy) Match(_ context.Context, _ core.Repository, c Candidate, apps []core.Application) (string, error) {
	_, domain, ok := domainset.SplitAddress(c.SenderAddress)
	if !ok || s.generic.Matches(domain) {
		return "", nil
	}
	for _, app := range apps {
		if app.ContactEmail != "" && strings.Contains(strings.ToLower(app.ContactEmail), domain) {
			return app.ID, nil
		}
	}
	return "", nil
}

// companyStrategy is a case-insensitive substring match on the company name
type companyStrategy struct{}

func (companyStrategy) Name() string { return "company" }

func (companyStrategy) Match(_ context.Context, _ core.Repository, c Candidate, apps []core.Application) (string, error) {
	company := strings.ToLower(strings.TrimSpace(c.Company))
	if company == "" {
		return "", nil
	}
	for _, app := range apps {
		if strings.Contains(strings.ToLower(app.Company), company) {
			return app.ID, nil
		}
	}
	return "", nil
}
