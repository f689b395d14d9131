// Package notify derives reminders from current application state. Nothing
// is stored; every call recomputes.
package notify

import (
	"context"
	"sort"
	"time"

	"github.com/mikey/applytrack/internal/core"
	"go.uber.org/zap"
)

// Type of reminder
type Type string

const (
	TypeStale             Type = "stale"
	TypeUpcomingInterview Type = "upcoming_interview"
	TypeFollowUpReminder  Type = "follow_up_reminder"
)

// Priority orders reminders; high comes first
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

var priorityRank = map[Priority]int{PriorityHigh: 0, PriorityMedium: 1, PriorityLow: 2}

const (
	day = 24 * time.Hour

	staleAfter        = 7
	staleHigh         = 14
	upcomingWindow    = 3 * day
	upcomingHigh      = 1
	followUpAfter     = 14
	followUpHighAfter = 21
)

// Notification is a derived reminder about one application
type Notification struct {
	ID            string   `json:"id"`
	Type          Type     `json:"type"`
	Priority      Priority `json:"priority"`
	ApplicationID string   `json:"application_id"`
	Company       string   `json:"company"`
	Position      string   `json:"position,omitempty"`
	// Days is days since the last change for stale and follow-up reminders,
	// days until the interview for upcoming ones
	Days int `json:"days"`
}

// Source is the read side the projector needs
type Source interface {
	ListApplications(ctx context.Context, userID string) ([]core.Application, error)
	CountFollowUps(ctx context.Context, userID string) (map[string]int, error)
}

// Projector computes notifications on demand
type Projector struct {
	source Source
	logger *zap.Logger
	now    func() time.Time
}

// NewProjector creates a projector over source
func NewProjector(source Source, logger *zap.Logger) *Projector {
	return &Projector{source: source, logger: logger, now: time.Now}
}

// Project returns the user's reminders, high priority first. Order within a
// priority follows the application listing.
func (p *Projector) Project(ctx context.Context, userID string) ([]Notification, error) {
	apps, err := p.source.ListApplications(ctx, userID)
	if err != nil {
		return nil, err
	}
	followUps, err := p.source.CountFollowUps(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := p.now().UTC()
	out := make([]Notification, 0)
	for i := range apps {
		app := &apps[i]
		if n, ok := stale(app, now); ok {
			out = append(out, n)
		}
		if n, ok := upcoming(app, now); ok {
			out = append(out, n)
		}
		if n, ok := followUpReminder(app, followUps[app.ID], now); ok {
			out = append(out, n)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return priorityRank[out[i].Priority] < priorityRank[out[j].Priority]
	})

	p.logger.Debug("Notifications projected",
		zap.String("user_id", userID),
		zap.Int("applications", len(apps)),
		zap.Int("notifications", len(out)))
	return out, nil
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

func newNotification(t Type, p Priority, app *core.Application, days int) Notification {
	return Notification{
		ID:            string(t) + ":" + app.ID,
		Type:          t,
		Priority:      p,
		ApplicationID: app.ID,
		Company:       app.Company,
		Position:      app.Position,
		Days:          days,
	}
}

// stale: still waiting on the employer and untouched for a week
func stale(app *core.Application, now time.Time) (Notification, bool) {
	if app.Status != core.StatusApplied && app.Status != core.StatusScreening {
		return Notification{}, false
	}
	days := daysBetween(app.UpdatedAt, now)
	if days < staleAfter {
		return Notification{}, false
	}
	priority := PriorityMedium
	if days >= staleHigh {
		priority = PriorityHigh
	}
	return newNotification(TypeStale, priority, app, days), true
}

func upcoming(app *core.Application, now time.Time) (Notification, bool) {
	if app.Status != core.StatusInterviewing || app.NextActionDate == nil {
		return Notification{}, false
	}
	at := app.NextActionDate.UTC()
	if at.Before(now) || at.After(now.Add(upcomingWindow)) {
		return Notification{}, false
	}
	days := daysBetween(now, at)
	priority := PriorityMedium
	if days <= upcomingHigh {
		priority = PriorityHigh
	}
	return newNotification(TypeUpcomingInterview, priority, app, days), true
}

// followUpReminder: applied, never followed up, and quiet for two weeks
func followUpReminder(app *core.Application, followUps int, now time.Time) (Notification, bool) {
	if app.Status != core.StatusApplied || followUps > 0 {
		return Notification{}, false
	}
	since := app.CreatedAt
	if app.AppliedAt != nil {
		since = *app.AppliedAt
	}
	days := daysBetween(since, now)
	if days < followUpAfter {
		return Notification{}, false
	}
	priority := PriorityLow
	if days >= followUpHighAfter {
		priority = PriorityHigh
	}
	return newNotification(TypeFollowUpReminder, priority, app, days), true
}
