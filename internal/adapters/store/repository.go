package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mikey/applytrack/internal/core"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// repo implements core.Repository on a *gorm.DB, which may be a transaction
type repo struct {
	db *gorm.DB
}

var _ core.Repository = (*repo)(nil)

// ========== Messages ==========

func (r *repo) MessageExists(ctx context.Context, userID, externalID string) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&core.Message{}).
		Where("user_id = ? AND external_id = ?", userID, externalID).Count(&n).Error; err != nil {
		return false, fmt.Errorf("check message exists: %w", err)
	}
	return n > 0, nil
}

func (r *repo) CreateMessage(ctx context.Context, msg *core.Message) (bool, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "external_id"}},
		DoNothing: true,
	}).Create(msg)
	if res.Error != nil {
		return false, fmt.Errorf("create message: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) GetMessage(ctx context.Context, userID, id string) (*core.Message, error) {
	var msg core.Message
	err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&msg).Error
	if err != nil {
		return nil, notFound(err, "message", id)
	}
	return &msg, nil
}

func (r *repo) SaveMessage(ctx context.Context, msg *core.Message) error {
	if err := r.db.WithContext(ctx).Save(msg).Error; err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

// ClaimReview moves a pending message to state. It returns false when the
// message is no longer pending, so concurrent reviews cannot both proceed.
func (r *repo) ClaimReview(ctx context.Context, userID, id string, state core.ReviewState, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&core.Message{}).
		Where("id = ? AND user_id = ? AND review_state = ?", id, userID, core.ReviewPending).
		Updates(map[string]any{"review_state": state, "reviewed_at": at})
	if res.Error != nil {
		return false, fmt.Errorf("claim review: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ListUnclassified returns pending passed or overridden messages awaiting classification, newest first
func (r *repo) ListUnclassified(ctx context.Context, userID string, limit int) ([]core.Message, error) {
	var msgs []core.Message
	q := r.db.WithContext(ctx).
		Where("user_id = ? AND is_classified = ? AND review_state = ? AND filter_status IN ?", userID, false,
			core.ReviewPending, []core.FilterStatus{core.FilterPassed, core.FilterUserOverride}).
		Order("received_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("list unclassified messages: %w", err)
	}
	return msgs, nil
}

// ListReviewQueue returns classified messages still pending review, newest first
func (r *repo) ListReviewQueue(ctx context.Context, userID string, limit int) ([]core.Message, error) {
	var msgs []core.Message
	q := r.db.WithContext(ctx).
		Where("user_id = ? AND review_state = ? AND is_classified = ?", userID, core.ReviewPending, true).
		Order("received_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("list review queue: %w", err)
	}
	return msgs, nil
}

func (r *repo) FindThreadApplication(ctx context.Context, userID, threadID, excludeMessageID string) (string, error) {
	if threadID == "" {
		return "", nil
	}
	var msgs []core.Message
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND thread_id = ? AND id <> ? AND application_id IS NOT NULL AND application_id <> ''",
			userID, threadID, excludeMessageID).
		Order("received_at DESC").
		Limit(1).
		Find(&msgs).Error
	if err != nil {
		return "", fmt.Errorf("find thread application: %w", err)
	}
	if len(msgs) == 0 || msgs[0].ApplicationID == nil {
		return "", nil
	}
	return *msgs[0].ApplicationID, nil
}

// ========== Applications ==========

func (r *repo) CreateApplication(ctx context.Context, app *core.Application) error {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	if err := r.db.WithContext(ctx).Create(app).Error; err != nil {
		return fmt.Errorf("create application: %w", err)
	}
	return nil
}

func (r *repo) GetApplication(ctx context.Context, userID, id string) (*core.Application, error) {
	var app core.Application
	err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&app).Error
	if err != nil {
		return nil, notFound(err, "application", id)
	}
	return &app, nil
}

func (r *repo) SaveApplication(ctx context.Context, app *core.Application) error {
	if err := r.db.WithContext(ctx).Save(app).Error; err != nil {
		return fmt.Errorf("save application: %w", err)
	}
	return nil
}

func (r *repo) ListApplications(ctx context.Context, userID string) ([]core.Application, error) {
	var apps []core.Application
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at ASC").Find(&apps).Error; err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	return apps, nil
}

// AppendStatusChange inserts an audit row; existing rows are never updated
func (r *repo) AppendStatusChange(ctx context.Context, change *core.StatusChange) error {
	if change.ID == "" {
		change.ID = uuid.NewString()
	}
	if change.ChangedAt.IsZero() {
		change.ChangedAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(change).Error; err != nil {
		return fmt.Errorf("append status change: %w", err)
	}
	return nil
}

func (r *repo) ListStatusChanges(ctx context.Context, applicationID string) ([]core.StatusChange, error) {
	var changes []core.StatusChange
	if err := r.db.WithContext(ctx).Where("application_id = ?", applicationID).
		Order("changed_at ASC").Find(&changes).Error; err != nil {
		return nil, fmt.Errorf("list status changes: %w", err)
	}
	return changes, nil
}

// ========== Follow-ups ==========

func (r *repo) CreateFollowUp(ctx context.Context, f *core.FollowUp) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.Status == "" {
		f.Status = core.FollowUpDraft
	}
	if err := r.db.WithContext(ctx).Create(f).Error; err != nil {
		return fmt.Errorf("create follow-up: %w", err)
	}
	return nil
}

func (r *repo) SaveFollowUp(ctx context.Context, f *core.FollowUp) error {
	if err := r.db.WithContext(ctx).Save(f).Error; err != nil {
		return fmt.Errorf("save follow-up: %w", err)
	}
	return nil
}

func (r *repo) ListDraftFollowUps(ctx context.Context, applicationID string) ([]core.FollowUp, error) {
	var drafts []core.FollowUp
	if err := r.db.WithContext(ctx).
		Where("application_id = ? AND status = ?", applicationID, core.FollowUpDraft).
		Order("created_at ASC").Find(&drafts).Error; err != nil {
		return nil, fmt.Errorf("list draft follow-ups: %w", err)
	}
	return drafts, nil
}

// CountFollowUps returns the number of follow-ups of any status per application
func (r *repo) CountFollowUps(ctx context.Context, userID string) (map[string]int, error) {
	var rows []struct {
		ApplicationID string
		Total         int
	}
	if err := r.db.WithContext(ctx).Model(&core.FollowUp{}).
		Select("application_id, COUNT(*) AS total").
		Where("user_id = ?", userID).
		Group("application_id").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("count follow-ups: %w", err)
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.ApplicationID] = row.Total
	}
	return counts, nil
}

// ========== Sync runs ==========

func (r *repo) CreateSyncRun(ctx context.Context, run *core.SyncRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("create sync run: %w", err)
	}
	return nil
}

func (r *repo) SaveSyncRun(ctx context.Context, run *core.SyncRun) error {
	if err := r.db.WithContext(ctx).Save(run).Error; err != nil {
		return fmt.Errorf("save sync run: %w", err)
	}
	return nil
}

func (r *repo) ListSyncRuns(ctx context.Context, userID string, limit int) ([]core.SyncRun, error) {
	var runs []core.SyncRun
	q := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("list sync runs: %w", err)
	}
	return runs, nil
}
