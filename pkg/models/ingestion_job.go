package models

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// IngestionJob tracks one uploaded batch file through the ingestion pipeline.
type IngestionJob struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	BatchID          string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"batch_id"`
	FileName         string    `gorm:"type:varchar(512);not null" json:"file_name"`
	OriginalFileName string    `gorm:"type:varchar(255);not null" json:"original_file_name"`
	FileSize         int64     `gorm:"not null" json:"file_size"`
	ContentType      string    `gorm:"type:varchar(255)" json:"content_type,omitempty"`
	UploadedBy       string    `gorm:"type:varchar(255);not null" json:"uploaded_by"`

	Status           JobStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	TotalRecords     int       `gorm:"not null;default:0" json:"total_records"`
	ProcessedRecords int       `gorm:"not null;default:0" json:"processed_records"`
	FailedRecords    int       `gorm:"not null;default:0" json:"failed_records"`
	ErrorMessage     *string   `gorm:"type:text" json:"error_message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (IngestionJob) TableName() string {
	return "ingestion_jobs"
}
