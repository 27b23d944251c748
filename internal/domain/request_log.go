package domain

import "time"

// RequestStatus represents the outcome of a generation request.
// Values include RequestStatusOK, RequestStatusPartial, and RequestStatusFailed.
type RequestStatus string

const (
	RequestStatusOK      RequestStatus = "ok"
	RequestStatusPartial RequestStatus = "partial"
	RequestStatusFailed  RequestStatus = "failed"
)

// RequestLog records one admitted generation request. Daily quota counting
// reads this table, so exactly one row is written per admitted request,
// including failures.
type RequestLog struct {
	ID           string        `gorm:"type:text;primaryKey" json:"id"`
	TraceID      string        `gorm:"type:text;not null;uniqueIndex:idx_request_logs_trace" json:"trace_id"`
	UserID       string        `gorm:"type:text;not null;index:idx_request_logs_user" json:"user_id"`
	Prompt       string        `gorm:"type:text" json:"prompt"`
	SourceURL    string        `gorm:"type:text" json:"source_url,omitempty"`
	Language     string        `gorm:"type:text" json:"language"`
	Tone         string        `gorm:"type:text" json:"tone,omitempty"`
	Audience     string        `gorm:"type:text" json:"audience,omitempty"`
	SafetyMode   string        `gorm:"type:text" json:"safety_mode"`
	NumRequested int           `json:"num_requested"`
	NumReturned  int           `json:"num_returned"`
	Status       RequestStatus `gorm:"type:text;index:idx_request_logs_status" json:"status"`
	Warnings     StringArray   `gorm:"type:text" json:"warnings,omitempty"`
	DurationMs   int64         `json:"duration_ms"`
	CreatedAt    time.Time     `gorm:"index:idx_request_logs_created" json:"created_at"`
}

// TableName returns the database table name for RequestLog.
func (RequestLog) TableName() string {
	return "request_logs"
}
