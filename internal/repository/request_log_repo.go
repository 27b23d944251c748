package repository

import (
	"context"
	"time"

	"github.com/memelab/memeforge/internal/domain"
	"gorm.io/gorm"
)

// RequestLogRepository handles generation request log operations.
type RequestLogRepository struct {
	db *gorm.DB
}

// NewRequestLogRepository creates a new RequestLogRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *RequestLogRepository: repository instance bound to db.
func NewRequestLogRepository(db *gorm.DB) *RequestLogRepository {
	return &RequestLogRepository{db: db}
}

// Create inserts a request log record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - rl: request log record to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *RequestLogRepository) Create(ctx context.Context, rl *domain.RequestLog) error {
	return r.db.WithContext(ctx).Create(rl).Error
}

// GetByTraceID retrieves the request log for a generation trace.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - traceID: generation trace ID.
// Returns:
//   - *domain.RequestLog: request log record if found.
//   - error: non-nil if lookup fails.
func (r *RequestLogRepository) GetByTraceID(ctx context.Context, traceID string) (*domain.RequestLog, error) {
	var rl domain.RequestLog
	if err := r.db.WithContext(ctx).First(&rl, "trace_id = ?", traceID).Error; err != nil {
		return nil, err
	}
	return &rl, nil
}

// CountForUserSince counts a user's admitted requests created at or after
// the cutoff. Daily quota enforcement calls this with the last UTC midnight.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: user identifier.
//   - since: inclusive lower bound on created_at.
// Returns:
//   - int64: number of matching request log records.
//   - error: non-nil if the query fails.
func (r *RequestLogRepository) CountForUserSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.RequestLog{}).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Count counts all request log records.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - int64: number of request log records.
//   - error: non-nil if the query fails.
func (r *RequestLogRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.RequestLog{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
