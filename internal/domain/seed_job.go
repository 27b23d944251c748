package domain

import "time"

// JobStatus represents the status of a seeding job.
// Values include JobStatusPending, JobStatusRunning, JobStatusCompleted, and JobStatusFailed.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// SeedJob represents one run of the template catalog seeder and its
// progress metadata.
type SeedJob struct {
	ID             string     `gorm:"type:text;primaryKey" json:"id"`
	CatalogPath    string     `gorm:"type:text;not null" json:"catalog_path"`
	Status         JobStatus  `gorm:"default:pending" json:"status"`
	TotalItems     int        `gorm:"default:0" json:"total_items"`
	ProcessedItems int        `gorm:"default:0" json:"processed_items"`
	SkippedItems   int        `gorm:"default:0" json:"skipped_items"`
	FailedItems    int        `gorm:"default:0" json:"failed_items"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	ErrorLog       string     `json:"error_log,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TableName returns the database table name for SeedJob.
func (SeedJob) TableName() string {
	return "seed_jobs"
}
