package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mikey/applytrack/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "applytrack.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func strPtr(s string) *string { return &s }

func TestCreateMessageIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	msg := &core.Message{UserID: "u1", ExternalID: "ext-1", Subject: "Hello", FilterStatus: core.FilterPassed}
	created, err := s.CreateMessage(ctx, msg)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, msg.ID)

	exists, err := s.MessageExists(ctx, "u1", "ext-1")
	require.NoError(t, err)
	assert.True(t, exists)

	dup := &core.Message{UserID: "u1", ExternalID: "ext-1", Subject: "Hello again"}
	created, err = s.CreateMessage(ctx, dup)
	require.NoError(t, err)
	assert.False(t, created)

	exists, err = s.MessageExists(ctx, "u1", "ext-2")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSameExternalIDForTwoUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, user := range []string{"alice", "bob"} {
		created, err := s.CreateMessage(ctx, &core.Message{UserID: user, ExternalID: "smtp:<abc@mail.example>", FilterStatus: core.FilterPassed})
		require.NoError(t, err)
		assert.True(t, created, user)
	}

	created, err := s.CreateMessage(ctx, &core.Message{UserID: "bob", ExternalID: "smtp:<abc@mail.example>"})
	require.NoError(t, err)
	assert.False(t, created)

	exists, err := s.MessageExists(ctx, "carol", "smtp:<abc@mail.example>")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestClaimReview(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	msg := &core.Message{UserID: "u1", ExternalID: "ext-1", FilterStatus: core.FilterPassed, ReviewState: core.ReviewPending}
	_, err := s.CreateMessage(ctx, msg)
	require.NoError(t, err)

	ok, err := s.ClaimReview(ctx, "u2", msg.ID, core.ReviewApproved, time.Now())
	require.NoError(t, err)
	assert.False(t, ok, "other user")

	ok, err = s.ClaimReview(ctx, "u1", msg.ID, core.ReviewApproved, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.ClaimReview(ctx, "u1", msg.ID, core.ReviewRejected, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.GetMessage(ctx, "u1", msg.ID)
	require.NoError(t, err)
	assert.Equal(t, core.ReviewApproved, got.ReviewState)
	assert.NotNil(t, got.ReviewedAt)
}

func TestGetMessageScopedByUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	msg := &core.Message{UserID: "u1", ExternalID: "ext-1"}
	_, err := s.CreateMessage(ctx, msg)
	require.NoError(t, err)

	got, err := s.GetMessage(ctx, "u1", msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "ext-1", got.ExternalID)

	_, err = s.GetMessage(ctx, "u2", msg.ID)
	var nf *core.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "message", nf.Kind)
}

func TestClassificationPersists(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	msg := &core.Message{UserID: "u1", ExternalID: "ext-1", FilterStatus: core.FilterPassed, ReviewState: core.ReviewPending}
	_, err := s.CreateMessage(ctx, msg)
	require.NoError(t, err)

	now := time.Now().UTC()
	msg.IsClassified = true
	msg.ClassifiedAt = &now
	msg.Classification = &core.Classification{IsJobRelated: true, Confidence: 0.9, Company: "Acme", Status: "SCREENING"}
	msg.ClassificationTrace = datatypes.JSONMap{"stage": "raw"}
	require.NoError(t, s.SaveMessage(ctx, msg))

	got, err := s.GetMessage(ctx, "u1", msg.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Classification)
	assert.Equal(t, "Acme", got.Classification.Company)
	assert.Equal(t, 0.9, got.Classification.Confidence)
	assert.Equal(t, "raw", got.ClassificationTrace["stage"])

	// an unparseable result is stored as classified with no payload
	other := &core.Message{UserID: "u1", ExternalID: "ext-2", FilterStatus: core.FilterPassed, IsClassified: true, ClassificationError: "unparseable"}
	_, err = s.CreateMessage(ctx, other)
	require.NoError(t, err)
	got, err = s.GetMessage(ctx, "u1", other.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Classification)
	assert.Equal(t, "unparseable", got.ClassificationError)
}

func TestListUnclassifiedAndQueue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	msgs := []*core.Message{
		{UserID: "u1", ExternalID: "a", ReceivedAt: base, FilterStatus: core.FilterPassed, ReviewState: core.ReviewPending},
		{UserID: "u1", ExternalID: "b", ReceivedAt: base.Add(time.Hour), FilterStatus: core.FilterUserOverride, ReviewState: core.ReviewPending},
		{UserID: "u1", ExternalID: "c", ReceivedAt: base.Add(2 * time.Hour), FilterStatus: core.FilterRejectedSender, ReviewState: core.ReviewSkipped},
		{UserID: "u1", ExternalID: "d", ReceivedAt: base.Add(3 * time.Hour), FilterStatus: core.FilterPassed, ReviewState: core.ReviewPending, IsClassified: true},
		{UserID: "u2", ExternalID: "e", ReceivedAt: base, FilterStatus: core.FilterPassed, ReviewState: core.ReviewPending},
		// reviewed before classification ran
		{UserID: "u1", ExternalID: "f", ReceivedAt: base.Add(4 * time.Hour), FilterStatus: core.FilterPassed, ReviewState: core.ReviewRejected},
		{UserID: "u1", ExternalID: "g", ReceivedAt: base.Add(5 * time.Hour), FilterStatus: core.FilterPassed, ReviewState: core.ReviewApproved},
	}
	for _, m := range msgs {
		_, err := s.CreateMessage(ctx, m)
		require.NoError(t, err)
	}

	pending, err := s.ListUnclassified(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "b", pending[0].ExternalID, "newest first")
	assert.Equal(t, "a", pending[1].ExternalID)

	limited, err := s.ListUnclassified(ctx, "u1", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	queue, err := s.ListReviewQueue(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, "d", queue[0].ExternalID)
}

func TestFindThreadApplication(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	linked := &core.Message{UserID: "u1", ExternalID: "a", ThreadID: "t1", ApplicationID: strPtr("app-1")}
	current := &core.Message{UserID: "u1", ExternalID: "b", ThreadID: "t1"}
	for _, m := range []*core.Message{linked, current} {
		_, err := s.CreateMessage(ctx, m)
		require.NoError(t, err)
	}

	id, err := s.FindThreadApplication(ctx, "u1", "t1", current.ID)
	require.NoError(t, err)
	assert.Equal(t, "app-1", id)

	id, err = s.FindThreadApplication(ctx, "u1", "t1", linked.ID)
	require.NoError(t, err)
	assert.Empty(t, id, "the excluded message is not its own match")

	id, err = s.FindThreadApplication(ctx, "u2", "t1", current.ID)
	require.NoError(t, err)
	assert.Empty(t, id)

	id, err = s.FindThreadApplication(ctx, "u1", "", current.ID)
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestApplicationsAndStatusChanges(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	app := &core.Application{UserID: "u1", Company: "Acme", Status: core.StatusApplied, Source: core.SourceManual}
	require.NoError(t, s.CreateApplication(ctx, app))
	require.NotEmpty(t, app.ID)

	require.NoError(t, s.AppendStatusChange(ctx, &core.StatusChange{ApplicationID: app.ID, ToStatus: core.StatusApplied, Reason: "created"}))
	require.NoError(t, s.AppendStatusChange(ctx, &core.StatusChange{
		ApplicationID: app.ID, FromStatus: core.StatusApplied, ToStatus: core.StatusScreening, Reason: "email",
		ChangedAt: time.Now().UTC().Add(time.Second),
	}))

	changes, err := s.ListStatusChanges(ctx, app.ID)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, core.StatusScreening, changes[1].ToStatus)

	_, err = s.GetApplication(ctx, "u2", app.ID)
	var nf *core.NotFoundError
	assert.ErrorAs(t, err, &nf)

	apps, err := s.ListApplications(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, apps, 1)
}

func TestFollowUps(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateFollowUp(ctx, &core.FollowUp{UserID: "u1", ApplicationID: "app-1", Body: "checking in"}))
	sent := &core.FollowUp{UserID: "u1", ApplicationID: "app-1", Body: "thanks", Status: core.FollowUpSent}
	require.NoError(t, s.CreateFollowUp(ctx, sent))
	require.NoError(t, s.CreateFollowUp(ctx, &core.FollowUp{UserID: "u1", ApplicationID: "app-2", Body: "hello"}))

	drafts, err := s.ListDraftFollowUps(ctx, "app-1")
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, core.FollowUpDraft, drafts[0].Status)

	counts, err := s.CountFollowUps(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"app-1": 2, "app-2": 1}, counts)
}

func TestTransactionRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.Transaction(ctx, func(tx core.Repository) error {
		if err := tx.CreateApplication(ctx, &core.Application{UserID: "u1", Company: "Acme"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	apps, err := s.ListApplications(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, apps)
}

func TestSyncRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	first := &core.SyncRun{UserID: "u1", Kind: core.SyncKindFetch, Status: core.SyncRunning, StartedAt: base}
	require.NoError(t, s.CreateSyncRun(ctx, first))
	first.Status = core.SyncCompleted
	first.Stored = 3
	require.NoError(t, s.SaveSyncRun(ctx, first))

	second := &core.SyncRun{UserID: "u1", Kind: core.SyncKindClassify, Status: core.SyncFailed, StartedAt: base.Add(time.Minute), Error: "provider down"}
	require.NoError(t, s.CreateSyncRun(ctx, second))

	runs, err := s.ListSyncRuns(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, core.SyncKindClassify, runs[0].Kind)
	assert.Equal(t, core.SyncCompleted, runs[1].Status)
	assert.Equal(t, 3, runs[1].Stored)
}
