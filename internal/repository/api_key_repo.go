package repository

import (
	"context"
	"time"

	"github.com/memelab/memeforge/internal/domain"
	"gorm.io/gorm"
)

// APIKeyRepository handles API key operations. Keys are always looked up
// by hash; the raw key never reaches this layer.
type APIKeyRepository struct {
	db *gorm.DB
}

// NewAPIKeyRepository creates a new APIKeyRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *APIKeyRepository: repository instance bound to db.
func NewAPIKeyRepository(db *gorm.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// Create inserts a new API key record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - key: API key record to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *APIKeyRepository) Create(ctx context.Context, key *domain.APIKey) error {
	return r.db.WithContext(ctx).Create(key).Error
}

// GetByHash retrieves an API key by its SHA-256 hash.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - hash: hex-encoded SHA-256 of the raw key.
// Returns:
//   - *domain.APIKey: key record if found.
//   - error: non-nil if lookup fails.
func (r *APIKeyRepository) GetByHash(ctx context.Context, hash string) (*domain.APIKey, error) {
	var key domain.APIKey
	if err := r.db.WithContext(ctx).First(&key, "key_hash = ?", hash).Error; err != nil {
		return nil, err
	}
	return &key, nil
}

// ListByUser retrieves all keys belonging to a user, newest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: owning user identifier.
// Returns:
//   - []domain.APIKey: the user's key records.
//   - error: non-nil if the query fails.
func (r *APIKeyRepository) ListByUser(ctx context.Context, userID string) ([]domain.APIKey, error) {
	var keys []domain.APIKey
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&keys).Error; err != nil {
		return nil, err
	}
	return keys, nil
}

// Revoke marks a key revoked. The user ID guards against revoking another
// user's key.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: key record ID.
//   - userID: owning user identifier.
// Returns:
//   - int64: number of rows affected (0 when no matching key).
//   - error: non-nil if the update fails.
func (r *APIKeyRepository) Revoke(ctx context.Context, id, userID string) (int64, error) {
	result := r.db.WithContext(ctx).Model(&domain.APIKey{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("revoked", true)
	return result.RowsAffected, result.Error
}

// TouchLastUsed stamps the key's last_used_at.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: key record ID.
//   - at: usage timestamp.
// Returns:
//   - error: non-nil if the update fails.
func (r *APIKeyRepository) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&domain.APIKey{}).
		Where("id = ?", id).
		UpdateColumn("last_used_at", at).Error
}
