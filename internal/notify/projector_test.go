package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mikey/applytrack/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSource struct {
	apps      []core.Application
	followUps map[string]int
	err       error
}

func (f *fakeSource) ListApplications(context.Context, string) ([]core.Application, error) {
	return f.apps, f.err
}

func (f *fakeSource) CountFollowUps(context.Context, string) (map[string]int, error) {
	return f.followUps, nil
}

var now = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

func ago(days int) time.Time { return now.Add(-time.Duration(days) * day) }

func ptr(t time.Time) *time.Time { return &t }

func project(t *testing.T, src *fakeSource) []Notification {
	t.Helper()
	p := NewProjector(src, zap.NewNop())
	p.now = func() time.Time { return now }
	out, err := p.Project(context.Background(), "u1")
	require.NoError(t, err)
	return out
}

func TestStale(t *testing.T) {
	out := project(t, &fakeSource{
		followUps: map[string]int{"a": 1, "b": 1, "c": 1, "d": 1},
		apps: []core.Application{
			{ID: "a", Status: core.StatusScreening, UpdatedAt: ago(8)},
			{ID: "b", Status: core.StatusApplied, UpdatedAt: ago(15)},
			{ID: "c", Status: core.StatusApplied, UpdatedAt: ago(6)},
			{ID: "d", Status: core.StatusOffer, UpdatedAt: ago(30)},
		},
	})
	require.Len(t, out, 2)
	assert.Equal(t, Notification{ID: "stale:b", Type: TypeStale, Priority: PriorityHigh, ApplicationID: "b", Days: 15}, out[0])
	assert.Equal(t, PriorityMedium, out[1].Priority)
	assert.Equal(t, "a", out[1].ApplicationID)
	assert.Equal(t, 8, out[1].Days)
}

func TestUpcomingInterview(t *testing.T) {
	out := project(t, &fakeSource{
		apps: []core.Application{
			{ID: "soon", Status: core.StatusInterviewing, UpdatedAt: now, NextActionDate: ptr(now.Add(20 * time.Hour))},
			{ID: "later", Status: core.StatusInterviewing, UpdatedAt: now, NextActionDate: ptr(now.Add(60 * time.Hour))},
			{ID: "past", Status: core.StatusInterviewing, UpdatedAt: now, NextActionDate: ptr(now.Add(-time.Hour))},
			{ID: "far", Status: core.StatusInterviewing, UpdatedAt: now, NextActionDate: ptr(now.Add(4 * day))},
			{ID: "nodate", Status: core.StatusInterviewing, UpdatedAt: now},
			{ID: "wrong-status", Status: core.StatusScreening, UpdatedAt: now, NextActionDate: ptr(now.Add(time.Hour))},
		},
	})
	require.Len(t, out, 2)
	assert.Equal(t, "soon", out[0].ApplicationID)
	assert.Equal(t, PriorityHigh, out[0].Priority)
	assert.Equal(t, 0, out[0].Days)
	assert.Equal(t, "later", out[1].ApplicationID)
	assert.Equal(t, PriorityMedium, out[1].Priority)
	assert.Equal(t, 2, out[1].Days)
}

func TestFollowUpReminder(t *testing.T) {
	out := project(t, &fakeSource{
		followUps: map[string]int{"sent": 1},
		apps: []core.Application{
			{ID: "old", Status: core.StatusApplied, UpdatedAt: now, AppliedAt: ptr(ago(22))},
			{ID: "due", Status: core.StatusApplied, UpdatedAt: now, AppliedAt: ptr(ago(15))},
			{ID: "created", Status: core.StatusApplied, UpdatedAt: now, CreatedAt: ago(14)},
			{ID: "recent", Status: core.StatusApplied, UpdatedAt: now, AppliedAt: ptr(ago(3))},
			{ID: "sent", Status: core.StatusApplied, UpdatedAt: now, AppliedAt: ptr(ago(30))},
		},
	})
	require.Len(t, out, 3)
	assert.Equal(t, "old", out[0].ApplicationID)
	assert.Equal(t, PriorityHigh, out[0].Priority)
	assert.Equal(t, []string{"due", "created"}, []string{out[1].ApplicationID, out[2].ApplicationID})
	assert.Equal(t, PriorityLow, out[1].Priority)
	assert.Equal(t, TypeFollowUpReminder, out[2].Type)
}

func TestOrderingIsStableByTier(t *testing.T) {
	out := project(t, &fakeSource{
		followUps: map[string]int{"m1": 1, "m2": 1},
		apps: []core.Application{
			{ID: "low", Status: core.StatusApplied, UpdatedAt: now, AppliedAt: ptr(ago(15))},
			{ID: "m1", Status: core.StatusApplied, UpdatedAt: ago(9)},
			{ID: "h1", Status: core.StatusInterviewing, UpdatedAt: now, NextActionDate: ptr(now.Add(time.Hour))},
			{ID: "m2", Status: core.StatusScreening, UpdatedAt: ago(10)},
		},
	})
	var ids []string
	for _, n := range out {
		ids = append(ids, n.ApplicationID)
	}
	assert.Equal(t, []string{"h1", "m1", "m2", "low"}, ids)
}

func TestProjectError(t *testing.T) {
	p := NewProjector(&fakeSource{err: errors.New("db down")}, zap.NewNop())
	_, err := p.Project(context.Background(), "u1")
	assert.Error(t, err)
}

func TestNoApplications(t *testing.T) {
	out := project(t, &fakeSource{})
	assert.NotNil(t, out)
	assert.Empty(t, out)
}
