package domain

import "time"

// Subscription tiers. The tier key indexes into the subscription YAML's
// tier_limits map.
const (
	TierFree = "free"
	TierPlus = "plus_tier"
)

// Subscription represents a user's billing state. Stripe identifiers are
// kept so webhook events can be matched back to a row.
type Subscription struct {
	ID                       string     `gorm:"type:text;primaryKey" json:"id"`
	UserID                   string     `gorm:"type:text;not null;uniqueIndex:idx_subscriptions_user" json:"user_id"`
	Tier                     string     `gorm:"type:text;not null;default:free" json:"tier"`
	IsActive                 bool       `gorm:"default:true" json:"is_active"`
	AutoRenew                bool       `gorm:"default:true" json:"auto_renew"`
	PaymentFailureCount      int        `gorm:"default:0" json:"payment_failure_count"`
	StripeCustomerID         string     `gorm:"type:text;index:idx_subscriptions_customer" json:"-"`
	StripeSubscriptionID     string     `gorm:"type:text;index:idx_subscriptions_stripe" json:"-"`
	StripeSubscriptionItemID string     `gorm:"type:text" json:"-"`
	CurrentPeriodUsage       int        `gorm:"default:0" json:"current_period_usage"`
	IncludedUnits            int        `gorm:"default:0" json:"included_units"`
	CurrentPeriodStart       *time.Time `json:"current_period_start,omitempty"`
	CurrentPeriodEnd         *time.Time `json:"current_period_end,omitempty"`
	CreatedAt                time.Time  `json:"created_at"`
	UpdatedAt                time.Time  `json:"updated_at"`
}

// TableName returns the database table name for Subscription.
func (Subscription) TableName() string {
	return "subscriptions"
}
