package repository

import (
	"context"

	"github.com/memelab/memeforge/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SubscriptionRepository handles billing subscription operations.
type SubscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a new SubscriptionRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *SubscriptionRepository: repository instance bound to db.
func NewSubscriptionRepository(db *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// GetByUserID retrieves a user's subscription.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: user identifier.
// Returns:
//   - *domain.Subscription: subscription record if found.
//   - error: non-nil if lookup fails.
func (r *SubscriptionRepository) GetByUserID(ctx context.Context, userID string) (*domain.Subscription, error) {
	var sub domain.Subscription
	if err := r.db.WithContext(ctx).First(&sub, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetByStripeSubscriptionID retrieves a subscription by its Stripe ID,
// used when matching webhook events back to a row.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - stripeID: Stripe subscription identifier.
// Returns:
//   - *domain.Subscription: subscription record if found.
//   - error: non-nil if lookup fails.
func (r *SubscriptionRepository) GetByStripeSubscriptionID(ctx context.Context, stripeID string) (*domain.Subscription, error) {
	var sub domain.Subscription
	if err := r.db.WithContext(ctx).First(&sub, "stripe_subscription_id = ?", stripeID).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

// Upsert creates or updates a subscription keyed by user_id.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - sub: subscription record to create or update.
// Returns:
//   - error: non-nil if the upsert fails.
func (r *SubscriptionRepository) Upsert(ctx context.Context, sub *domain.Subscription) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		UpdateAll: true,
	}).Create(sub).Error
}

// Update saves the full subscription record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - sub: subscription record with updated fields.
// Returns:
//   - error: non-nil if the update fails.
func (r *SubscriptionRepository) Update(ctx context.Context, sub *domain.Subscription) error {
	return r.db.WithContext(ctx).Save(sub).Error
}

// IncrementUsage adds units to the current billing period's usage counter
// as a single UPDATE.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: user identifier.
//   - units: usage units to add.
// Returns:
//   - error: non-nil if the update fails.
func (r *SubscriptionRepository) IncrementUsage(ctx context.Context, userID string, units int) error {
	return r.db.WithContext(ctx).Model(&domain.Subscription{}).
		Where("user_id = ?", userID).
		UpdateColumn("current_period_usage", gorm.Expr("current_period_usage + ?", units)).Error
}

// IncrementPaymentFailures bumps the payment failure counter.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - stripeID: Stripe subscription identifier.
// Returns:
//   - error: non-nil if the update fails.
func (r *SubscriptionRepository) IncrementPaymentFailures(ctx context.Context, stripeID string) error {
	return r.db.WithContext(ctx).Model(&domain.Subscription{}).
		Where("stripe_subscription_id = ?", stripeID).
		UpdateColumn("payment_failure_count", gorm.Expr("payment_failure_count + ?", 1)).Error
}
