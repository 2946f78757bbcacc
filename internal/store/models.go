package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a record does not exist or belongs to another
// owner. Callers cannot tell the two cases apart.
var ErrNotFound = errors.New("not found or not permitted")

// OwnerID identifies the user that owns a record. Every owner-scoped query
// takes one.
type OwnerID string

type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSynced  SyncStatus = "synced"
	SyncFailed  SyncStatus = "failed"
)

type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionArchived  SessionStatus = "archived"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type User struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	DisplayName    string    `json:"displayName"`
	PasswordHash   string    `json:"-"`
	NotionTargetID string    `json:"notionTargetId"`
	CreatedAt      time.Time `json:"createdAt"`
}

type Session struct {
	ID         string        `json:"id"`
	OwnerID    OwnerID       `json:"ownerId"`
	Title      string        `json:"title"`
	Status     SessionStatus `json:"status"`
	ReportDate string        `json:"reportDate"`
	CreatedAt  time.Time     `json:"createdAt"`
	UpdatedAt  time.Time     `json:"updatedAt"`
	Turns      []Turn        `json:"turns,omitempty"`
}

type Turn struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"sessionId"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	AudioKey  string    `json:"audioKey,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// ReportFields are the structured sections of a daily report.
type ReportFields struct {
	WorkContent      string `json:"workContent"`
	CompletionStatus string `json:"completionStatus"`
	Problems         string `json:"problems"`
	TomorrowPlan     string `json:"tomorrowPlan"`
	BusinessInsights string `json:"businessInsights"`
	Summary          string `json:"summary"`
}

// SyncState is the external-sync bookkeeping shared by daily and weekly reports.
type SyncState struct {
	SyncStatus  SyncStatus `json:"syncStatus"`
	ExternalID  string     `json:"externalId,omitempty"`
	ExternalURL string     `json:"externalUrl,omitempty"`
	SyncedAt    *time.Time `json:"syncedAt,omitempty"`
}

type Report struct {
	ID        string  `json:"id"`
	OwnerID   OwnerID `json:"ownerId"`
	SessionID string  `json:"sessionId,omitempty"`
	Date      string  `json:"date"`
	ReportFields
	RenderedText string `json:"renderedText"`
	SyncState
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type OkrProgress struct {
	ObjectiveID    string `json:"objectiveId"`
	ObjectiveTitle string `json:"objectiveTitle"`
	Progress       string `json:"progress"`
	RelatedWork    string `json:"relatedWork"`
}

// WeeklyFields are the structured sections of a weekly report.
type WeeklyFields struct {
	Summary      string        `json:"summary"`
	OkrProgress  []OkrProgress `json:"okrProgress"`
	Achievements []string      `json:"achievements"`
	Problems     string        `json:"problems"`
	NextWeekPlan string        `json:"nextWeekPlan"`
}

type WeeklyReport struct {
	ID        string  `json:"id"`
	OwnerID   OwnerID `json:"ownerId"`
	PeriodID  string  `json:"periodId,omitempty"`
	WeekStart string  `json:"weekStart"`
	WeekEnd   string  `json:"weekEnd"`
	Title     string  `json:"title"`
	WeeklyFields
	RenderedText    string   `json:"renderedText"`
	SourceReportIDs []string `json:"sourceReportIds"`
	SyncState
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type OkrPeriod struct {
	ID        string    `json:"id"`
	OwnerID   OwnerID   `json:"ownerId"`
	Title     string    `json:"title"`
	StartDate string    `json:"startDate"`
	EndDate   string    `json:"endDate"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Objective struct {
	ID          string      `json:"id"`
	OwnerID     OwnerID     `json:"ownerId"`
	PeriodID    string      `json:"periodId"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Position    int         `json:"position"`
	KeyResults  []KeyResult `json:"keyResults"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

type KeyResult struct {
	ID           string  `json:"id"`
	OwnerID      OwnerID `json:"ownerId"`
	ObjectiveID  string  `json:"objectiveId"`
	Title        string  `json:"title"`
	TargetValue  string  `json:"targetValue"`
	CurrentValue string  `json:"currentValue"`
	Unit         string  `json:"unit"`
	Position     int     `json:"position"`
	// ProgressPercent is derived from the value strings and never stored.
	ProgressPercent *int      `json:"progressPercent,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// OkrTree is a period with its objectives and their key results.
type OkrTree struct {
	Period     OkrPeriod   `json:"period"`
	Objectives []Objective `json:"objectives"`
}

type AudioFile struct {
	ID            string    `json:"id"`
	OwnerID       OwnerID   `json:"ownerId"`
	ObjectKey     string    `json:"objectKey"`
	FileName      string    `json:"fileName"`
	ContentType   string    `json:"contentType"`
	SizeBytes     int64     `json:"sizeBytes"`
	Transcription string    `json:"transcription"`
	CreatedAt     time.Time `json:"createdAt"`
}

// ListOptions orders list queries. OrderBy must be one of the columns the
// store whitelists; anything else falls back to created_at.
type ListOptions struct {
	OrderBy   string
	Ascending bool
	Limit     int
}

// SyncResult is the outcome written back after a sync attempt.
type SyncResult struct {
	Status      SyncStatus
	ExternalID  string
	ExternalURL string
}

// KeyResultPatch holds optional key-result updates; nil fields are left as-is.
type KeyResultPatch struct {
	Title        *string `json:"title"`
	TargetValue  *string `json:"targetValue"`
	CurrentValue *string `json:"currentValue"`
	Unit         *string `json:"unit"`
}

type ObjectivePatch struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

type PeriodPatch struct {
	Title     *string `json:"title"`
	StartDate *string `json:"startDate"`
	EndDate   *string `json:"endDate"`
}
