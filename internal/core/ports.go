package core

import (
	"context"
	"time"
)

// CompletionProvider is a pluggable text-completion backend
type CompletionProvider interface {
	// Name identifies the provider in logs and metrics
	Name() string

	// Complete sends one prompt and returns the raw generated text
	Complete(ctx context.Context, prompt string) (string, error)
}

// MailProvider lists and fetches messages for a single mailbox
type MailProvider interface {
	ListCandidateMessages(ctx context.Context, query string, maxResults int) ([]MessageRef, error)
	GetMessage(ctx context.Context, id string) (*MailMessage, error)
}

// MailProviderFactory opens the mailbox of a user
type MailProviderFactory interface {
	ForUser(ctx context.Context, userID string) (MailProvider, error)
}

// CounterStore holds fixed-window counters keyed by an opaque string
type CounterStore interface {
	// Increment adds one to the counter for key and returns the new value.
	// A missing or expired counter restarts at 1 with a fresh window.
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)

	// Cleanup removes expired counters
	Cleanup(ctx context.Context) error
}

// Repository is the persistence boundary for all records owned by a user
type Repository interface {
	MessageExists(ctx context.Context, userID, externalID string) (bool, error)
	// CreateMessage inserts a message; it returns false when the user already has the external id
	CreateMessage(ctx context.Context, msg *Message) (bool, error)
	GetMessage(ctx context.Context, userID, id string) (*Message, error)
	SaveMessage(ctx context.Context, msg *Message) error
	// ClaimReview flips a PENDING message to state and reports whether it was still pending
	ClaimReview(ctx context.Context, userID, id string, state ReviewState, at time.Time) (bool, error)
	ListUnclassified(ctx context.Context, userID string, limit int) ([]Message, error)
	ListReviewQueue(ctx context.Context, userID string, limit int) ([]Message, error)
	// FindThreadApplication returns the application linked to another message in the thread, or ""
	FindThreadApplication(ctx context.Context, userID, threadID, excludeMessageID string) (string, error)

	CreateApplication(ctx context.Context, app *Application) error
	GetApplication(ctx context.Context, userID, id string) (*Application, error)
	SaveApplication(ctx context.Context, app *Application) error
	ListApplications(ctx context.Context, userID string) ([]Application, error)
	AppendStatusChange(ctx context.Context, change *StatusChange) error
	ListStatusChanges(ctx context.Context, applicationID string) ([]StatusChange, error)

	CreateFollowUp(ctx context.Context, f *FollowUp) error
	SaveFollowUp(ctx context.Context, f *FollowUp) error
	ListDraftFollowUps(ctx context.Context, applicationID string) ([]FollowUp, error)
	CountFollowUps(ctx context.Context, userID string) (map[string]int, error)

	CreateSyncRun(ctx context.Context, run *SyncRun) error
	SaveSyncRun(ctx context.Context, run *SyncRun) error
	ListSyncRuns(ctx context.Context, userID string, limit int) ([]SyncRun, error)
}

// Store is a Repository that can scope work in a transaction
type Store interface {
	Repository

	// Transaction runs fn against a transactional repository; any error rolls back
	Transaction(ctx context.Context, fn func(tx Repository) error) error
}

// RateLimiter refuses calls once a user's quota for an operation is spent
type RateLimiter interface {
	// Allow counts one call and returns a *RateLimitError when over quota
	Allow(ctx context.Context, userID, operation string) error
}
