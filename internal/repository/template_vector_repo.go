package repository

import (
	"context"

	"github.com/memelab/memeforge/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TemplateVectorRepository tracks which templates have vectors in which
// Qdrant collection.
type TemplateVectorRepository struct {
	db *gorm.DB
}

// NewTemplateVectorRepository creates a new TemplateVectorRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *TemplateVectorRepository: repository instance bound to db.
func NewTemplateVectorRepository(db *gorm.DB) *TemplateVectorRepository {
	return &TemplateVectorRepository{db: db}
}

// Upsert creates or updates a vector record keyed by template and collection.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - vector: vector record to persist.
// Returns:
//   - error: non-nil if the upsert fails.
func (r *TemplateVectorRepository) Upsert(ctx context.Context, vector *domain.TemplateVector) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "template_id"}, {Name: "collection"}},
		UpdateAll: true,
	}).Create(vector).Error
}

// ExistsByTemplateAndCollection checks if a vector record exists for the
// template in the collection.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - templateID: template identifier.
//   - collection: Qdrant collection name.
// Returns:
//   - bool: true if a record exists.
//   - error: non-nil if the lookup fails.
func (r *TemplateVectorRepository) ExistsByTemplateAndCollection(ctx context.Context, templateID, collection string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.TemplateVector{}).
		Where("template_id = ? AND collection = ? AND status = ?", templateID, collection, domain.TemplateVectorStatusActive).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// CountByCollection counts active vectors in a collection.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - collection: Qdrant collection name.
// Returns:
//   - int64: number of active vector records in the collection.
//   - error: non-nil if the query fails.
func (r *TemplateVectorRepository) CountByCollection(ctx context.Context, collection string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.TemplateVector{}).
		Where("collection = ? AND status = ?", collection, domain.TemplateVectorStatusActive).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
