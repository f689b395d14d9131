package core

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// FilterStatus is the outcome of the pre-filter for a message
type FilterStatus string

const (
	FilterUnprocessed     FilterStatus = "UNPROCESSED"
	FilterPassed          FilterStatus = "PASSED"
	FilterRejectedSender  FilterStatus = "REJECTED_SENDER"
	FilterRejectedSubject FilterStatus = "REJECTED_SUBJECT"
	FilterRejectedContent FilterStatus = "REJECTED_CONTENT"
	FilterUserOverride    FilterStatus = "USER_OVERRIDE"
)

// Rejected reports whether the status is one of the pre-filter rejections
func (s FilterStatus) Rejected() bool {
	switch s {
	case FilterRejectedSender, FilterRejectedSubject, FilterRejectedContent:
		return true
	}
	return false
}

// ReviewState tracks a message through the review queue
type ReviewState string

const (
	ReviewPending  ReviewState = "PENDING"
	ReviewApproved ReviewState = "APPROVED"
	ReviewRejected ReviewState = "REJECTED"
	ReviewSkipped  ReviewState = "SKIPPED"
)

// ApplicationStatus is the ordered lifecycle of a job application
type ApplicationStatus string

const (
	StatusApplied      ApplicationStatus = "APPLIED"
	StatusScreening    ApplicationStatus = "SCREENING"
	StatusInterviewing ApplicationStatus = "INTERVIEWING"
	StatusOffer        ApplicationStatus = "OFFER"
	StatusAccepted     ApplicationStatus = "ACCEPTED"
	StatusRejected     ApplicationStatus = "REJECTED"
	StatusWithdrawn    ApplicationStatus = "WITHDRAWN"
)

var statusRank = map[ApplicationStatus]int{
	StatusApplied:      1,
	StatusScreening:    2,
	StatusInterviewing: 3,
	StatusOffer:        4,
	StatusAccepted:     5,
	StatusRejected:     6,
	StatusWithdrawn:    6,
}

// Rank returns the position of the status in the lifecycle, 0 if unknown
func (s ApplicationStatus) Rank() int {
	return statusRank[s]
}

// Valid reports whether s is a known status
func (s ApplicationStatus) Valid() bool {
	return s.Rank() > 0
}

// ParseApplicationStatus maps free-form status text, as produced by a model or
// typed by a reviewer, onto the status enum.
func ParseApplicationStatus(raw string) (ApplicationStatus, bool) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.NewReplacer("-", "_", " ", "_").Replace(s)
	if s == "" {
		return "", false
	}
	if st := ApplicationStatus(s); st.Valid() {
		return st, true
	}
	switch {
	case strings.Contains(s, "WITHDR"):
		return StatusWithdrawn, true
	case strings.Contains(s, "REJECT"), strings.Contains(s, "DECLIN"), strings.Contains(s, "NOT_MOVING"):
		return StatusRejected, true
	case strings.Contains(s, "ACCEPT"), strings.Contains(s, "HIRED"):
		return StatusAccepted, true
	case strings.Contains(s, "OFFER"):
		return StatusOffer, true
	case strings.Contains(s, "INTERVIEW"), strings.Contains(s, "ONSITE"), strings.Contains(s, "ASSESSMENT"):
		return StatusInterviewing, true
	case strings.Contains(s, "SCREEN"), strings.Contains(s, "RECRUITER"), strings.Contains(s, "REVIEW"):
		return StatusScreening, true
	case strings.Contains(s, "APPL"), strings.Contains(s, "SUBMIT"), strings.Contains(s, "RECEIVED"):
		return StatusApplied, true
	}
	return "", false
}

// ApplicationSource records how an application entered the tracker
type ApplicationSource string

const (
	SourceManual        ApplicationSource = "MANUAL"
	SourceEmailDetected ApplicationSource = "EMAIL_DETECTED"
)

// FollowUpStatus is the state of a follow-up note
type FollowUpStatus string

const (
	FollowUpDraft FollowUpStatus = "DRAFT"
	FollowUpSent  FollowUpStatus = "SENT"
)

// SyncKind distinguishes the fetch run from the classification batch
type SyncKind string

const (
	SyncKindFetch    SyncKind = "SYNC"
	SyncKindClassify SyncKind = "CLASSIFY"
)

// SyncStatus is the terminal state of a sync run
type SyncStatus string

const (
	SyncRunning   SyncStatus = "RUNNING"
	SyncCompleted SyncStatus = "COMPLETED"
	SyncFailed    SyncStatus = "FAILED"
)

// Classification is the structured extraction produced for a message
type Classification struct {
	IsJobRelated bool    `json:"is_job_related"`
	Confidence   float64 `json:"confidence"`
	Company      string  `json:"company"`
	Position     string  `json:"position"`
	Status       string  `json:"status"`
	ContactName  string  `json:"contact_name"`
	ContactEmail string  `json:"contact_email"`
	NextAction   string  `json:"next_action"`
	KeyDate      string  `json:"key_date"`
	Summary      string  `json:"summary"`
}

// Qualifies reports whether the classification is confident enough to touch applications
func (c *Classification) Qualifies(threshold float64) bool {
	return c != nil && c.IsJobRelated && c.Confidence >= threshold
}

// Message is one mailbox entry owned by a user
type Message struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	UserID     string    `gorm:"index;uniqueIndex:idx_messages_user_external,priority:1;not null" json:"user_id"`
	ExternalID string    `gorm:"uniqueIndex:idx_messages_user_external,priority:2;not null" json:"external_id"`
	ThreadID   string    `gorm:"index" json:"thread_id"`
	From       string    `gorm:"column:sender" json:"from"`
	To         string    `gorm:"column:recipient" json:"to"`
	Subject    string    `json:"subject"`
	Preview    string    `json:"preview"`
	Body       string    `gorm:"type:text" json:"body"`
	ReceivedAt time.Time `gorm:"index" json:"received_at"`
	IsOutbound bool      `json:"is_outbound"`

	FilterStatus FilterStatus `gorm:"size:32;index" json:"filter_status"`
	FilterReason string       `json:"filter_reason,omitempty"`

	IsClassified        bool              `json:"is_classified"`
	Classification      *Classification   `gorm:"serializer:json" json:"classification,omitempty"`
	ClassificationError string            `json:"classification_error,omitempty"`
	ClassificationTrace datatypes.JSONMap `json:"-"`
	ClassifiedAt        *time.Time        `json:"classified_at,omitempty"`
	SuggestedAppID      *string           `gorm:"column:suggested_application_id" json:"suggested_application_id,omitempty"`
	SuggestedBy         string            `json:"suggested_by,omitempty"`

	ReviewState   ReviewState `gorm:"size:16;index" json:"review_state"`
	ReviewedAt    *time.Time  `json:"reviewed_at,omitempty"`
	ApplicationID *string     `gorm:"index" json:"application_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Application is a tracked job application
type Application struct {
	ID             string            `gorm:"primaryKey;size:36" json:"id"`
	UserID         string            `gorm:"index;not null" json:"user_id"`
	Company        string            `gorm:"not null" json:"company"`
	Position       string            `json:"position"`
	Status         ApplicationStatus `gorm:"size:16" json:"status"`
	ContactName    string            `json:"contact_name,omitempty"`
	ContactEmail   string            `json:"contact_email,omitempty"`
	NextAction     string            `json:"next_action,omitempty"`
	NextActionDate *time.Time        `json:"next_action_date,omitempty"`
	Source         ApplicationSource `gorm:"size:16" json:"source"`
	AppliedAt      *time.Time        `json:"applied_at,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// StatusChange is an append-only audit record of a status transition
type StatusChange struct {
	ID            string            `gorm:"primaryKey;size:36" json:"id"`
	ApplicationID string            `gorm:"index;not null" json:"application_id"`
	FromStatus    ApplicationStatus `gorm:"size:16" json:"from_status,omitempty"`
	ToStatus      ApplicationStatus `gorm:"size:16;not null" json:"to_status"`
	Reason        string            `json:"reason"`
	ChangedAt     time.Time         `json:"changed_at"`
}

// FollowUp is a note the user intends to send (or has sent) about an application
type FollowUp struct {
	ID            string         `gorm:"primaryKey;size:36" json:"id"`
	UserID        string         `gorm:"index;not null" json:"user_id"`
	ApplicationID string         `gorm:"index;not null" json:"application_id"`
	Status        FollowUpStatus `gorm:"size:8" json:"status"`
	Body          string         `gorm:"type:text" json:"body"`
	SentAt        *time.Time     `json:"sent_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// SyncRun records one ingestion or classification run
type SyncRun struct {
	ID               string     `gorm:"primaryKey;size:36" json:"id"`
	UserID           string     `gorm:"index;not null" json:"user_id"`
	Kind             SyncKind   `gorm:"size:16" json:"kind"`
	Status           SyncStatus `gorm:"size:16" json:"status"`
	StartedAt        time.Time  `json:"started_at"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
	Fetched          int        `json:"fetched"`
	Duplicates       int        `json:"duplicates"`
	Stored           int        `json:"stored"`
	Filtered         int        `json:"filtered"`
	Classified       int        `json:"classified"`
	ExtractionFailed int        `json:"extraction_failed"`
	Failed           int        `json:"failed"`
	Error            string     `gorm:"type:text" json:"error,omitempty"`
}

// MessageRef is a listing entry returned by a mail provider
type MessageRef struct {
	ID       string
	ThreadID string
}

// MailMessage is a plain message record returned by a mail provider
type MailMessage struct {
	ID         string
	ThreadID   string
	From       string
	To         string
	Subject    string
	Body       string
	ReceivedAt time.Time
	IsOutbound bool
}

// CounterEntry is a fixed-window counter held by a CounterStore
type CounterEntry struct {
	Key       string
	Count     int64
	ExpiresAt time.Time
}
