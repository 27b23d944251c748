package repository

import (
	"context"

	"github.com/memelab/memeforge/internal/domain"
	"gorm.io/gorm"
)

// SeedJobRepository records seeding job progress.
type SeedJobRepository struct {
	db *gorm.DB
}

// NewSeedJobRepository creates a new SeedJobRepository.
func NewSeedJobRepository(db *gorm.DB) *SeedJobRepository {
	return &SeedJobRepository{db: db}
}

// Create inserts a new seed job record.
func (r *SeedJobRepository) Create(ctx context.Context, job *domain.SeedJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// Update saves the full seed job record.
func (r *SeedJobRepository) Update(ctx context.Context, job *domain.SeedJob) error {
	return r.db.WithContext(ctx).Save(job).Error
}

// GetByID retrieves a seed job by its ID.
func (r *SeedJobRepository) GetByID(ctx context.Context, id string) (*domain.SeedJob, error) {
	var job domain.SeedJob
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}
