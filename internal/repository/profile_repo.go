package repository

import (
	"context"

	"github.com/memelab/memeforge/internal/domain"
	"gorm.io/gorm"
)

// ProfileRepository handles user profile operations.
type ProfileRepository struct {
	db *gorm.DB
}

// NewProfileRepository creates a new ProfileRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *ProfileRepository: repository instance bound to db.
func NewProfileRepository(db *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// GetByUserID retrieves a profile by user ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: user identifier from the token subject.
// Returns:
//   - *domain.Profile: profile record if found.
//   - error: non-nil if lookup fails.
func (r *ProfileRepository) GetByUserID(ctx context.Context, userID string) (*domain.Profile, error) {
	var profile domain.Profile
	if err := r.db.WithContext(ctx).First(&profile, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

// GetOrCreate retrieves the profile for userID, creating a bare row on
// first sight of the user.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: user identifier from the token subject.
//   - email: email claim, stored on first creation only.
// Returns:
//   - *domain.Profile: existing or newly created profile.
//   - error: non-nil if the lookup or insert fails.
func (r *ProfileRepository) GetOrCreate(ctx context.Context, userID, email string) (*domain.Profile, error) {
	var profile domain.Profile
	err := r.db.WithContext(ctx).
		Where(domain.Profile{UserID: userID}).
		Attrs(domain.Profile{Email: email, WaitlistStatus: domain.WaitlistPending, Timezone: "UTC"}).
		FirstOrCreate(&profile).Error
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// GetByReferralCode retrieves a profile by its referral code.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - code: referral code to look up.
// Returns:
//   - *domain.Profile: profile record if found.
//   - error: non-nil if lookup fails.
func (r *ProfileRepository) GetByReferralCode(ctx context.Context, code string) (*domain.Profile, error) {
	var profile domain.Profile
	if err := r.db.WithContext(ctx).First(&profile, "referral_code = ?", code).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

// Update saves the full profile record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - profile: profile record with updated fields.
// Returns:
//   - error: non-nil if the update fails.
func (r *ProfileRepository) Update(ctx context.Context, profile *domain.Profile) error {
	return r.db.WithContext(ctx).Save(profile).Error
}

// SetReferralCode writes a referral code for the user. A duplicate code
// surfaces as gorm.ErrDuplicatedKey so the caller can retry.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: user whose code is being set.
//   - code: candidate referral code.
// Returns:
//   - error: non-nil if the update fails, including unique violations.
func (r *ProfileRepository) SetReferralCode(ctx context.Context, userID, code string) error {
	return r.db.WithContext(ctx).Model(&domain.Profile{}).
		Where("user_id = ?", userID).
		Update("referral_code", code).Error
}

// ApplyReferral links the user to the referrer and bumps the referrer's
// count. The increment is a single UPDATE so concurrent referrals never
// lose counts.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: the referred user.
//   - referrerID: the referring user.
// Returns:
//   - error: non-nil if either write fails; both roll back together.
func (r *ProfileRepository) ApplyReferral(ctx context.Context, userID, referrerID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.Profile{}).
			Where("user_id = ?", userID).
			Update("referrer_id", referrerID).Error; err != nil {
			return err
		}
		return tx.Model(&domain.Profile{}).
			Where("user_id = ?", referrerID).
			UpdateColumn("referral_count", gorm.Expr("referral_count + ?", 1)).Error
	})
}

// AddCredits adds credits to a user's balance as a single UPDATE.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: user identifier.
//   - amount: credits to add; may be negative to deduct.
// Returns:
//   - error: non-nil if the update fails.
func (r *ProfileRepository) AddCredits(ctx context.Context, userID string, amount int) error {
	return r.db.WithContext(ctx).Model(&domain.Profile{}).
		Where("user_id = ?", userID).
		UpdateColumn("credits", gorm.Expr("credits + ?", amount)).Error
}
