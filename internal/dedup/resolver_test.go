package dedup

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/mikey/applytrack/internal/adapters/store"
	"github.com/mikey/applytrack/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "dedup.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedApp(t *testing.T, s *store.Store, app core.Application) *core.Application {
	t.Helper()
	if app.UserID == "" {
		app.UserID = "u1"
	}
	if app.Status == "" {
		app.Status = core.StatusApplied
	}
	require.NoError(t, s.CreateApplication(context.Background(), &app))
	return &app
}

func linkMessage(t *testing.T, s *store.Store, threadID, appID string) {
	t.Helper()
	_, err := s.CreateMessage(context.Background(), &core.Message{
		UserID:        "u1",
		ExternalID:    "linked-" + threadID,
		ThreadID:      threadID,
		ApplicationID: &appID,
		ReceivedAt:    time.Now(),
	})
	require.NoError(t, err)
}

func TestThreadBeatsCompany(t *testing.T) {
	s := newStore(t)
	a := seedApp(t, s, core.Application{Company: "Initech"})
	b := seedApp(t, s, core.Application{Company: "Acme Corporation"})
	linkMessage(t, s, "thread-1", a.ID)

	m, err := NewResolver(nil, nil).Resolve(context.Background(), s, Candidate{
		UserID:    "u1",
		MessageID: "new",
		ThreadID:  "thread-1",
		Company:   "Acme",
	})
	require.NoError(t, err)
	assert.Equal(t, a.ID, m.ApplicationID)
	assert.Equal(t, "thread", m.Strategy)
	assert.NotEqual(t, b.ID, m.ApplicationID)
}

func TestDomainMatch(t *testing.T) {
	s := newStore(t)
	app := seedApp(t, s, core.Application{Company: "Globex", ContactEmail: "Hiring@Globex.io"})

	m, err := NewResolver(nil, nil).Resolve(context.Background(), s, Candidate{
		UserID:        "u1",
		SenderAddress: "talent@globex.io",
		Company:       "Someone Else",
	})
	require.NoError(t, err)
	assert.Equal(t, app.ID, m.ApplicationID)
	assert.Equal(t, "domain", m.Strategy)
}

func TestGenericDomainsSkipped(t *testing.T) {
	s := newStore(t)
	seedApp(t, s, core.Application{Company: "Globex", ContactEmail: "recruiter@gmail.com"})
	seedApp(t, s, core.Application{Company: "Umbrella", ContactEmail: "hr@regional.example"})

	r := NewResolver([]string{"regional.example"}, nil)
	for _, sender := range []string{"someone@gmail.com", "other@regional.example"} {
		m, err := r.Resolve(context.Background(), s, Candidate{UserID: "u1", SenderAddress: sender})
		require.NoError(t, err)
		assert.False(t, m.Found(), sender)
	}
}

func TestCompanyMatchIsCaseInsensitiveSubstring(t *testing.T) {
	s := newStore(t)
	app := seedApp(t, s, core.Application{Company: "ACME Corporation"})

	m, err := NewResolver(nil, nil).Resolve(context.Background(), s, Candidate{UserID: "u1", Company: " acme "})
	require.NoError(t, err)
	assert.Equal(t, app.ID, m.ApplicationID)
	assert.Equal(t, "company", m.Strategy)
}

func TestResolveIsScopedToUser(t *testing.T) {
	s := newStore(t)
	seedApp(t, s, core.Application{UserID: "u2", Company: "Acme"})

	m, err := NewResolver(nil, nil).Resolve(context.Background(), s, Candidate{UserID: "u1", Company: "Acme"})
	require.NoError(t, err)
	assert.False(t, m.Found())
}

func TestLinkCreatesApplication(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	received := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)

	res, err := NewResolver(nil, nil).Link(ctx, s, Candidate{UserID: "u1", MessageID: "m1"}, Fields{
		Company:  "Acme",
		Position: "Backend Engineer",
	}, received)
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, core.SourceEmailDetected, res.Application.Source)
	assert.Equal(t, core.StatusApplied, res.Application.Status)
	require.NotNil(t, res.Application.AppliedAt)
	assert.Equal(t, received, *res.Application.AppliedAt)

	apps, err := s.ListApplications(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, apps, 1)

	changes, err := s.ListStatusChanges(ctx, res.Application.ID)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, core.ApplicationStatus(""), changes[0].FromStatus)
	assert.Equal(t, core.StatusApplied, changes[0].ToStatus)
}

func TestLinkRequiresCompanyToCreate(t *testing.T) {
	s := newStore(t)
	_, err := NewResolver(nil, nil).Link(context.Background(), s, Candidate{UserID: "u1"}, Fields{}, time.Time{})
	var ve *core.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestLinkAppendsSingleStatusChange(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	app := seedApp(t, s, core.Application{Company: "Acme", ContactName: "Ada", NextAction: "wait"})

	res, err := NewResolver(nil, nil).Link(ctx, s, Candidate{UserID: "u1", MessageID: "m2", Company: "acme"}, Fields{
		Status:      core.StatusScreening,
		ContactName: "",
		NextAction:  "Book a call",
	}, time.Now())
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.True(t, res.StatusChanged)

	changes, err := s.ListStatusChanges(ctx, app.ID)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, core.StatusApplied, changes[0].FromStatus)
	assert.Equal(t, core.StatusScreening, changes[0].ToStatus)

	stored, err := s.GetApplication(ctx, "u1", app.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusScreening, stored.Status)
	assert.Equal(t, "Ada", stored.ContactName)
	assert.Equal(t, "Book a call", stored.NextAction)
}

func TestLinkSameStatusAddsNoChange(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	app := seedApp(t, s, core.Application{Company: "Acme", Status: core.StatusInterviewing})

	res, err := NewResolver(nil, nil).Link(ctx, s, Candidate{UserID: "u1", Company: "Acme"}, Fields{Status: core.StatusInterviewing}, time.Now())
	require.NoError(t, err)
	assert.False(t, res.StatusChanged)

	changes, err := s.ListStatusChanges(ctx, app.ID)
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestFieldsFromClassification(t *testing.T) {
	f := FieldsFromClassification(&core.Classification{
		Company:  " Acme ",
		Status:   "phone screen",
		KeyDate:  "2026-10-20",
		Position: "SRE",
	})
	assert.Equal(t, "Acme", f.Company)
	assert.Equal(t, core.StatusScreening, f.Status)
	require.NotNil(t, f.KeyDate)
	assert.Equal(t, time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC), *f.KeyDate)

	assert.Nil(t, ParseKeyDate("next tuesday"))
	assert.Equal(t, Fields{}, FieldsFromClassification(nil))
}
