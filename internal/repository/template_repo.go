package repository

import (
	"context"
	"fmt"

	"github.com/memelab/memeforge/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TemplateRepository handles template catalog operations.
type TemplateRepository struct {
	db *gorm.DB
}

// NewTemplateRepository creates a new TemplateRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *TemplateRepository: repository instance bound to db.
func NewTemplateRepository(db *gorm.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// Upsert creates or updates a template keyed by template_id.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - template: template record to create or update.
// Returns:
//   - error: non-nil if the upsert fails.
func (r *TemplateRepository) Upsert(ctx context.Context, template *domain.Template) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "template_id"}},
		UpdateAll: true,
	}).Create(template).Error
}

// GetByID retrieves a template by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: template ID.
// Returns:
//   - *domain.Template: template record if found.
//   - error: non-nil if lookup fails.
func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*domain.Template, error) {
	var template domain.Template
	if err := r.db.WithContext(ctx).First(&template, "template_id = ?", id).Error; err != nil {
		return nil, err
	}
	return &template, nil
}

// GetByIDs retrieves templates by a list of IDs.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - ids: list of template IDs.
// Returns:
//   - []domain.Template: matching template records.
//   - error: non-nil if the query fails.
func (r *TemplateRepository) GetByIDs(ctx context.Context, ids []string) ([]domain.Template, error) {
	if len(ids) == 0 {
		return []domain.Template{}, nil
	}
	var templates []domain.Template
	if err := r.db.WithContext(ctx).Where("template_id IN ?", ids).Find(&templates).Error; err != nil {
		return nil, fmt.Errorf("failed to get templates by IDs: %w", err)
	}
	return templates, nil
}

// List retrieves templates with an optional format filter and pagination.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - format: template format to filter by; empty means all.
//   - limit: maximum number of records to return; 0 means no limit.
//   - offset: number of records to skip.
// Returns:
//   - []domain.Template: matching template records.
//   - error: non-nil if the query fails.
func (r *TemplateRepository) List(ctx context.Context, format domain.TemplateFormat, limit, offset int) ([]domain.Template, error) {
	var templates []domain.Template
	query := r.db.WithContext(ctx)
	if format != "" {
		query = query.Where("format = ?", format)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	if err := query.Order("popularity DESC, template_id ASC").Find(&templates).Error; err != nil {
		return nil, err
	}
	return templates, nil
}

// All retrieves the full catalog, used as the selection pool.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - []domain.Template: every template record.
//   - error: non-nil if the query fails.
func (r *TemplateRepository) All(ctx context.Context) ([]domain.Template, error) {
	var templates []domain.Template
	if err := r.db.WithContext(ctx).Find(&templates).Error; err != nil {
		return nil, err
	}
	return templates, nil
}

// Count counts all templates.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - int64: number of template records.
//   - error: non-nil if the query fails.
func (r *TemplateRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Template{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// IncrementPopularity bumps a template's popularity after it produced a
// surviving candidate.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: template ID.
//   - delta: amount to add.
// Returns:
//   - error: non-nil if the update fails.
func (r *TemplateRepository) IncrementPopularity(ctx context.Context, id string, delta float64) error {
	return r.db.WithContext(ctx).Model(&domain.Template{}).
		Where("template_id = ?", id).
		UpdateColumn("popularity", gorm.Expr("popularity + ?", delta)).Error
}
