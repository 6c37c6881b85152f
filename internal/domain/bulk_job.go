package domain

import (
	"time"

	"gorm.io/datatypes"
)

// JobStatus represents the status of a bulk generation job.
// Values include JobStatusPending, JobStatusRunning, JobStatusCompleted, JobStatusFailed and JobStatusCancelled.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether no further transition is allowed out of s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// ActiveStatuses lists the statuses a job may still be advanced from.
var ActiveStatuses = []JobStatus{JobStatusPending, JobStatusRunning}

// BulkJob is the durable record of one bulk generation run.
// All resumable state lives here; queue messages only carry the ID.
type BulkJob struct {
	ID             string                       `gorm:"type:text;primaryKey" json:"id"`
	StoreID        string                       `gorm:"type:text;not null;index:idx_bulk_jobs_store" json:"storeId"`
	ShopDomain     string                       `gorm:"type:text;not null" json:"shopDomain"`
	AccessToken    string                       `gorm:"type:text;not null" json:"-"`
	Status         JobStatus                    `gorm:"type:text;not null;index:idx_bulk_jobs_status;default:pending" json:"status"`
	Selection      datatypes.JSONType[Selection] `gorm:"column:selection_json;not null" json:"selection"`
	Structure      datatypes.JSON               `gorm:"column:structure_json;not null" json:"structure"`
	CustomPrompt   *string                      `gorm:"type:text" json:"customPrompt"`
	Cursor         *string                      `gorm:"type:text" json:"cursor"`
	Offset         int                          `gorm:"column:offset;not null;default:0" json:"offset"`
	ProcessedCount int                          `gorm:"not null;default:0" json:"processedCount"`
	FailedCount    int                          `gorm:"not null;default:0" json:"failedCount"`
	LastError      *string                      `gorm:"type:text" json:"lastError"`
	CreatedAt      time.Time                    `json:"createdAt"`
	UpdatedAt      time.Time                    `json:"updatedAt"`
}

// TableName returns the database table name for BulkJob.
func (BulkJob) TableName() string {
	return "bulk_jobs"
}

// Position returns the job's current pagination position.
func (j *BulkJob) Position() Position {
	return Position{Cursor: j.Cursor, Offset: j.Offset}
}

// Position is where the next page starts. Cursor is meaningful for
// SelectionModeAll, Offset for SelectionModeIDs.
type Position struct {
	Cursor *string `json:"cursor"`
	Offset int     `json:"offset"`
}

// JobAdvance is the atomic progress update committed after one page.
type JobAdvance struct {
	DeltaProcessed int
	DeltaFailed    int
	Position       Position
	Status         JobStatus
}
