package domain

import "time"

// WaitlistStatus represents a user's position in the approval flow.
type WaitlistStatus string

const (
	WaitlistPending  WaitlistStatus = "PENDING"
	WaitlistApproved WaitlistStatus = "APPROVED"
	WaitlistRejected WaitlistStatus = "REJECTED"
)

// Profile represents an application user. The user ID comes from the
// identity provider's JWT subject, so there is no local credential state.
type Profile struct {
	UserID              string         `gorm:"type:text;primaryKey" json:"user_id"`
	Username            string         `gorm:"type:text" json:"username,omitempty"`
	Email               string         `gorm:"type:text;index:idx_profiles_email" json:"email,omitempty"`
	OnboardingCompleted bool           `gorm:"default:false" json:"onboarding_completed"`
	Credits             int            `gorm:"default:0" json:"credits"`
	ReferralCode        string         `gorm:"type:text;uniqueIndex:idx_profiles_referral_code" json:"referral_code,omitempty"`
	ReferrerID          string         `gorm:"type:text" json:"referrer_id,omitempty"`
	ReferralCount       int            `gorm:"default:0" json:"referral_count"`
	IsApproved          bool           `gorm:"default:false" json:"is_approved"`
	WaitlistStatus      WaitlistStatus `gorm:"type:text;default:PENDING" json:"waitlist_status"`
	Timezone            string         `gorm:"type:text;default:UTC" json:"timezone"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

// TableName returns the database table name for Profile.
func (Profile) TableName() string {
	return "profiles"
}
