package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mikey/applytrack/internal/adapters/store"
	"github.com/mikey/applytrack/internal/classifier"
	"github.com/mikey/applytrack/internal/config"
	"github.com/mikey/applytrack/internal/core"
	"github.com/mikey/applytrack/internal/prefilter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeMailbox struct {
	messages map[string]*core.MailMessage
	order    []string
	listErr  error
	getErr   map[string]error
	onList   func()
	query    string
}

func (f *fakeMailbox) ListCandidateMessages(_ context.Context, query string, maxResults int) ([]core.MessageRef, error) {
	f.query = query
	if f.onList != nil {
		f.onList()
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	var refs []core.MessageRef
	for _, id := range f.order {
		if len(refs) == maxResults {
			break
		}
		refs = append(refs, core.MessageRef{ID: id, ThreadID: f.messages[id].ThreadID})
	}
	return refs, nil
}

func (f *fakeMailbox) GetMessage(_ context.Context, id string) (*core.MailMessage, error) {
	if err := f.getErr[id]; err != nil {
		return nil, err
	}
	m := *f.messages[id]
	return &m, nil
}

func (f *fakeMailbox) ForUser(context.Context, string) (core.MailProvider, error) {
	return f, nil
}

func (f *fakeMailbox) add(id, from, subject, body string, received time.Time) {
	if f.messages == nil {
		f.messages = map[string]*core.MailMessage{}
	}
	f.messages[id] = &core.MailMessage{ID: id, ThreadID: "t-" + id, From: from, Subject: subject, Body: body, ReceivedAt: received}
	f.order = append(f.order, id)
}

type mockClassifier struct {
	mock.Mock
}

func (m *mockClassifier) Classify(ctx context.Context, msg *core.Message) (*classifier.Outcome, error) {
	args := m.Called(ctx, msg)
	out, _ := args.Get(0).(*classifier.Outcome)
	return out, args.Error(1)
}

type countingLimiter struct {
	allowed int
}

func (l *countingLimiter) Allow(_ context.Context, userID, op string) error {
	if l.allowed <= 0 {
		return &core.RateLimitError{UserID: userID, Operation: op, Limit: 1, Window: time.Minute}
	}
	l.allowed--
	return nil
}

type fixture struct {
	store *store.Store
	mail  *fakeMailbox
	cls   *mockClassifier
	orch  *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "ingest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	mail := &fakeMailbox{}
	cls := &mockClassifier{}
	orch := NewOrchestrator(s, mail, prefilter.New(prefilter.DefaultRules()), cls, nil,
		config.IngestConfig{Query: "subject:interview", MaxResults: 10}, 20, zap.NewNop())
	return &fixture{store: s, mail: mail, cls: cls, orch: orch}
}

var base = time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

func TestSyncStoresAndFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mail.add("good", "Ada <ada@acme.com>", "Interview invitation", "Can we talk on Monday?", base)
	f.mail.add("auto", "noreply@company.com", "Your account update", "", base.Add(time.Hour))

	run, err := f.orch.Sync(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, core.SyncCompleted, run.Status)
	assert.Equal(t, 2, run.Fetched)
	assert.Equal(t, 2, run.Stored)
	assert.Equal(t, 1, run.Filtered)
	assert.NotNil(t, run.FinishedAt)
	assert.Equal(t, "subject:interview", f.mail.query)

	pending, err := f.store.ListUnclassified(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "good", pending[0].ExternalID)
	assert.Equal(t, core.ReviewPending, pending[0].ReviewState)
	assert.Equal(t, "t-good", pending[0].ThreadID)

	runs, err := f.orch.Runs(ctx, "u1", 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, core.SyncKindFetch, runs[0].Kind)
	assert.Equal(t, core.SyncCompleted, runs[0].Status)
}

func TestResyncIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mail.add("good", "Ada <ada@acme.com>", "Interview invitation", "Hello", base)

	_, err := f.orch.Sync(ctx, "u1")
	require.NoError(t, err)
	run, err := f.orch.Sync(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, run.Duplicates)
	assert.Equal(t, 0, run.Stored)

	msgs, err := f.store.ListUnclassified(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestSyncSameMessageForTwoUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mail.add("smtp:<abc@mail.example>", "Ada <ada@acme.com>", "Interview invitation", "Hello", base)

	for _, user := range []string{"alice", "bob"} {
		run, err := f.orch.Sync(ctx, user)
		require.NoError(t, err)
		assert.Equal(t, 1, run.Stored, user)
		assert.Equal(t, 0, run.Duplicates, user)

		pending, err := f.store.ListUnclassified(ctx, user, 10)
		require.NoError(t, err)
		assert.Len(t, pending, 1, user)
	}
}

func TestClassifyPendingSkipsReviewedMessages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mail.add("a", "Ada <ada@acme.com>", "Interview", "Hello", base)
	_, err := f.orch.Sync(ctx, "u1")
	require.NoError(t, err)

	pending, err := f.store.ListUnclassified(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	pending[0].ReviewState = core.ReviewRejected
	require.NoError(t, f.store.SaveMessage(ctx, &pending[0]))

	run, err := f.orch.ClassifyPending(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Equal(t, 0, run.Classified)
	f.cls.AssertNotCalled(t, "Classify", mock.Anything, mock.Anything)
}

func TestSyncFailureIsRecorded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mail.listErr = errors.New("mailbox unavailable")

	run, err := f.orch.Sync(ctx, "u1")
	require.Error(t, err)
	require.NotNil(t, run)
	assert.Equal(t, core.SyncFailed, run.Status)

	runs, err := f.store.ListSyncRuns(ctx, "u1", 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, core.SyncFailed, runs[0].Status)
	assert.Contains(t, runs[0].Error, "mailbox unavailable")
	assert.NotNil(t, runs[0].FinishedAt)
}

func TestSyncRecordsRunWhenCancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	f.mail.add("good", "Ada <ada@acme.com>", "Interview invitation", "Hello", base)
	f.mail.onList = cancel

	_, err := f.orch.Sync(ctx, "u1")
	assert.ErrorIs(t, err, context.Canceled)

	runs, err := f.store.ListSyncRuns(context.Background(), "u1", 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, core.SyncFailed, runs[0].Status)
}

func TestSyncSkipsBrokenMessageButAbortsOnFatal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mail.add("a", "Ada <ada@acme.com>", "Interview", "x", base)
	f.mail.add("b", "Bob <bob@acme.com>", "Interview", "y", base)
	f.mail.getErr = map[string]error{"a": &core.ProviderError{Provider: "gmail", Err: errors.New("500")}}

	run, err := f.orch.Sync(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, run.Failed)
	assert.Equal(t, 1, run.Stored)

	f.mail.add("c", "Cy <cy@acme.com>", "Interview", "z", base)
	f.mail.add("d", "Di <di@acme.com>", "Interview", "w", base)
	f.mail.getErr = map[string]error{"c": &core.ProviderError{Provider: "gmail", Err: core.ErrUnauthorized, Fatal: true}}

	run, err = f.orch.Sync(ctx, "u1")
	assert.ErrorIs(t, err, core.ErrUnauthorized)
	assert.Equal(t, core.SyncFailed, run.Status)
	exists, err := f.store.MessageExists(ctx, "u1", "d")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSyncRateLimited(t *testing.T) {
	f := newFixture(t)
	f.orch.limiter = &countingLimiter{}

	run, err := f.orch.Sync(context.Background(), "u1")
	var rl *core.RateLimitError
	require.ErrorAs(t, err, &rl)
	assert.Nil(t, run)

	runs, err := f.store.ListSyncRuns(context.Background(), "u1", 5)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func seedPending(t *testing.T, f *fixture, ids ...string) {
	t.Helper()
	for i, id := range ids {
		f.mail.add(id, "Ada <ada@acme.com>", "Interview", "Hello", base.Add(time.Duration(i)*time.Hour))
	}
	_, err := f.orch.Sync(context.Background(), "u1")
	require.NoError(t, err)
}

func externalIDOf(id string) interface{} {
	return mock.MatchedBy(func(m *core.Message) bool { return m.ExternalID == id })
}

func TestClassifyPendingCountsOutcomes(t *testing.T) {
	f := newFixture(t)
	seedPending(t, f, "oldest", "middle", "newest")

	var order []string
	record := func(args mock.Arguments) { order = append(order, args.Get(1).(*core.Message).ExternalID) }
	f.cls.On("Classify", mock.Anything, externalIDOf("newest")).Run(record).
		Return(&classifier.Outcome{Classification: &core.Classification{}}, nil).Once()
	f.cls.On("Classify", mock.Anything, externalIDOf("middle")).Run(record).
		Return(&classifier.Outcome{ExtractionFailed: true}, nil).Once()
	f.cls.On("Classify", mock.Anything, externalIDOf("oldest")).Run(record).
		Return(nil, &core.ProviderError{Provider: "mock", Attempts: 2, Err: errors.New("503")}).Once()

	run, err := f.orch.ClassifyPending(context.Background(), "u1", 0)
	require.NoError(t, err)
	assert.Equal(t, core.SyncKindClassify, run.Kind)
	assert.Equal(t, core.SyncCompleted, run.Status)
	assert.Equal(t, 3, run.Fetched)
	assert.Equal(t, 1, run.Classified)
	assert.Equal(t, 1, run.ExtractionFailed)
	assert.Equal(t, 1, run.Failed)
	assert.Equal(t, []string{"newest", "middle", "oldest"}, order)
}

func TestClassifyPendingAbortsOnFatalError(t *testing.T) {
	f := newFixture(t)
	seedPending(t, f, "a", "b", "c")

	f.cls.On("Classify", mock.Anything, externalIDOf("c")).
		Return(nil, &core.ProviderError{Provider: "mock", Attempts: 1, Err: core.ErrUnauthorized, Fatal: true}).Once()

	run, err := f.orch.ClassifyPending(context.Background(), "u1", 10)
	require.Error(t, err)
	assert.True(t, core.IsFatalProviderError(err))
	assert.Equal(t, core.SyncFailed, run.Status)
	f.cls.AssertNumberOfCalls(t, "Classify", 1)
}

func TestClassifyPendingRespectsQuota(t *testing.T) {
	f := newFixture(t)
	seedPending(t, f, "a", "b", "c")
	f.orch.limiter = &countingLimiter{allowed: 1}
	f.cls.On("Classify", mock.Anything, mock.Anything).
		Return(&classifier.Outcome{Classification: &core.Classification{}}, nil)

	run, err := f.orch.ClassifyPending(context.Background(), "u1", 10)
	var rl *core.RateLimitError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, 1, run.Classified)
	assert.Equal(t, core.SyncFailed, run.Status)
	f.cls.AssertNumberOfCalls(t, "Classify", 1)
}

func TestClassifyPendingCapsBatch(t *testing.T) {
	f := newFixture(t)
	seedPending(t, f, "a", "b", "c")
	f.orch.batchSize = 2
	f.cls.On("Classify", mock.Anything, mock.Anything).
		Return(&classifier.Outcome{Classification: &core.Classification{}}, nil)

	run, err := f.orch.ClassifyPending(context.Background(), "u1", 50)
	require.NoError(t, err)
	assert.Equal(t, 2, run.Fetched)
	f.cls.AssertNumberOfCalls(t, "Classify", 2)
}
