package classifier

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mikey/applytrack/internal/adapters/store"
	"github.com/mikey/applytrack/internal/config"
	"github.com/mikey/applytrack/internal/core"
	"github.com/mikey/applytrack/internal/dedup"
	"github.com/mikey/applytrack/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) Complete(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

type fixture struct {
	store    *store.Store
	provider *mockProvider
	cls      *Classifier
}

func newFixture(t *testing.T, cfg config.ClassifierConfig) *fixture {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "classifier.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	p := &mockProvider{}
	logger := zap.NewNop()
	return &fixture{
		store:    s,
		provider: p,
		cls:      New(s, p, dedup.NewResolver(nil, logger), utils.NewTextProcessor(logger), cfg, logger),
	}
}

func (f *fixture) message(t *testing.T, body string) *core.Message {
	t.Helper()
	msg := &core.Message{
		UserID:       "u1",
		ExternalID:   "ext-" + t.Name(),
		ThreadID:     "thread-1",
		From:         "Ada Recruiter <ada@acme.com>",
		To:           "me@example.com",
		Subject:      "Your interview",
		Body:         body,
		ReceivedAt:   time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC),
		FilterStatus: core.FilterPassed,
		ReviewState:  core.ReviewPending,
	}
	_, err := f.store.CreateMessage(context.Background(), msg)
	require.NoError(t, err)
	return msg
}

func TestQualifiedClassificationSuggestsApplication(t *testing.T) {
	f := newFixture(t, config.ClassifierConfig{})
	ctx := context.Background()
	app := &core.Application{UserID: "u1", Company: "Acme Inc", Status: core.StatusApplied}
	require.NoError(t, f.store.CreateApplication(ctx, app))

	msg := f.message(t, "We would like to invite you to interview.")
	f.provider.On("Complete", mock.Anything, mock.Anything).
		Return("Sure! ```json\n{\"is_job_related\":true,\"confidence\":0.92,\"company\":\"Acme\",\"status\":\"interview\"}\n```", nil).Once()

	out, err := f.cls.Classify(ctx, msg)
	require.NoError(t, err)
	assert.True(t, out.Qualified)
	assert.Equal(t, "company", out.Suggestion.Strategy)

	stored, err := f.store.GetMessage(ctx, "u1", msg.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsClassified)
	require.NotNil(t, stored.Classification)
	assert.Equal(t, "Acme", stored.Classification.Company)
	require.NotNil(t, stored.SuggestedAppID)
	assert.Equal(t, app.ID, *stored.SuggestedAppID)
	assert.Equal(t, "fenced", stored.ClassificationTrace["stage"])
	assert.Equal(t, core.ReviewPending, stored.ReviewState)

	// suggestion only: the application is not touched before review
	current, err := f.store.GetApplication(ctx, "u1", app.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusApplied, current.Status)
	changes, err := f.store.ListStatusChanges(ctx, app.ID)
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestBelowThresholdHasNoApplicationSideEffect(t *testing.T) {
	f := newFixture(t, config.ClassifierConfig{ConfidenceThreshold: 0.7})
	ctx := context.Background()
	app := &core.Application{UserID: "u1", Company: "Acme", Status: core.StatusApplied}
	require.NoError(t, f.store.CreateApplication(ctx, app))

	msg := f.message(t, "Maybe a job?")
	f.provider.On("Complete", mock.Anything, mock.Anything).
		Return(`{"is_job_related":true,"confidence":0.65,"company":"Acme","status":"SCREENING"}`, nil).Once()

	out, err := f.cls.Classify(ctx, msg)
	require.NoError(t, err)
	assert.False(t, out.Qualified)
	assert.False(t, out.Suggestion.Found())

	stored, err := f.store.GetMessage(ctx, "u1", msg.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Classification)
	assert.InDelta(t, 0.65, stored.Classification.Confidence, 1e-9)
	assert.Nil(t, stored.SuggestedAppID)

	apps, err := f.store.ListApplications(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, core.StatusApplied, apps[0].Status)
}

func TestUnparseableOutputIsRecorded(t *testing.T) {
	f := newFixture(t, config.ClassifierConfig{})
	ctx := context.Background()
	msg := f.message(t, "hello")
	f.provider.On("Complete", mock.Anything, mock.Anything).Return("I cannot help with that.", nil).Once()

	out, err := f.cls.Classify(ctx, msg)
	require.NoError(t, err)
	assert.True(t, out.ExtractionFailed)

	stored, err := f.store.GetMessage(ctx, "u1", msg.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsClassified)
	assert.Nil(t, stored.Classification)
	assert.NotEmpty(t, stored.ClassificationError)
	assert.NotNil(t, stored.ClassifiedAt)
	f.provider.AssertNumberOfCalls(t, "Complete", 1)
}

func TestProviderErrorLeavesMessageUnclassified(t *testing.T) {
	f := newFixture(t, config.ClassifierConfig{})
	ctx := context.Background()
	msg := f.message(t, "hello")
	f.provider.On("Complete", mock.Anything, mock.Anything).
		Return("", &core.ProviderError{Provider: "mock", Attempts: 2, Err: errors.New("status 503")}).Once()

	_, err := f.cls.Classify(ctx, msg)
	var pe *core.ProviderError
	require.ErrorAs(t, err, &pe)

	stored, err := f.store.GetMessage(ctx, "u1", msg.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsClassified)
}

func TestRedactionRoundTrip(t *testing.T) {
	f := newFixture(t, config.ClassifierConfig{RedactPII: true})
	ctx := context.Background()
	msg := f.message(t, "Hi Jane,\nCall me on (415) 555-0100.\nBest regards,\nAda Lovelace")

	var prompt string
	f.provider.On("Complete", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { prompt = args.String(1) }).
		Return(`{"is_job_related":true,"confidence":0.8,"company":"Acme","contact_name":"[NAME_2]","contact_email":"[EMAIL_1]","next_action":"call [PHONE_1]"}`, nil).Once()

	_, err := f.cls.Classify(ctx, msg)
	require.NoError(t, err)

	assert.NotContains(t, prompt, "ada@acme.com")
	assert.NotContains(t, prompt, "555-0100")
	assert.NotContains(t, prompt, "Ada Lovelace")
	assert.Contains(t, prompt, "[EMAIL_1]")

	stored, err := f.store.GetMessage(ctx, "u1", msg.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Classification)
	assert.Equal(t, "ada@acme.com", stored.Classification.ContactEmail)
	assert.Equal(t, "Ada Lovelace", stored.Classification.ContactName)
	assert.Equal(t, "call (415) 555-0100", stored.Classification.NextAction)
}

func TestLongBodyIsTruncated(t *testing.T) {
	f := newFixture(t, config.ClassifierConfig{MaxBodyChars: 50})
	ctx := context.Background()
	msg := f.message(t, strings.Repeat("x", 500))

	var prompt string
	f.provider.On("Complete", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { prompt = args.String(1) }).
		Return(`{"is_job_related":false,"confidence":0.9}`, nil).Once()

	_, err := f.cls.Classify(ctx, msg)
	require.NoError(t, err)
	assert.Contains(t, prompt, utils.TruncationMarker)
	assert.NotContains(t, prompt, strings.Repeat("x", 51))
}

func TestConfidenceIsClamped(t *testing.T) {
	f := newFixture(t, config.ClassifierConfig{})
	msg := f.message(t, "body")
	f.provider.On("Complete", mock.Anything, mock.Anything).
		Return(`{"is_job_related":true,"confidence":7,"company":"Nowhere"}`, nil).Once()

	out, err := f.cls.Classify(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, 1.0, out.Classification.Confidence)
	assert.True(t, out.Qualified)
	assert.False(t, out.Suggestion.Found())
}
