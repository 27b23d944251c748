package repository

import (
	"context"

	"github.com/memelab/memeforge/internal/domain"
	"gorm.io/gorm"
)

// CandidateRepository handles persisted meme candidate operations.
type CandidateRepository struct {
	db *gorm.DB
}

// NewCandidateRepository creates a new CandidateRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *CandidateRepository: repository instance bound to db.
func NewCandidateRepository(db *gorm.DB) *CandidateRepository {
	return &CandidateRepository{db: db}
}

// CreateBatch inserts all candidates of one trace in a single statement.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - candidates: ranked candidate records to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *CandidateRepository) CreateBatch(ctx context.Context, candidates []*domain.MemeCandidate) error {
	if len(candidates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(candidates).Error
}

// ListByTrace retrieves the candidates of a trace in rank order.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - traceID: generation trace ID.
// Returns:
//   - []*domain.MemeCandidate: candidates ordered by rank.
//   - error: non-nil if the query fails.
func (r *CandidateRepository) ListByTrace(ctx context.Context, traceID string) ([]*domain.MemeCandidate, error) {
	var candidates []*domain.MemeCandidate
	if err := r.db.WithContext(ctx).
		Where("trace_id = ?", traceID).
		Order("rank ASC").
		Find(&candidates).Error; err != nil {
		return nil, err
	}
	return candidates, nil
}

// Count counts all stored candidates.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - int64: number of candidate records.
//   - error: non-nil if the query fails.
func (r *CandidateRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.MemeCandidate{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
