package domain

import "time"

// APIKey represents a programmatic access key. Only the SHA-256 hash of the
// raw key is stored; the prefix is kept for display so users can tell their
// keys apart.
type APIKey struct {
	ID         string     `gorm:"type:text;primaryKey" json:"id"`
	UserID     string     `gorm:"type:text;not null;index:idx_api_keys_user" json:"user_id"`
	KeyHash    string     `gorm:"type:text;not null;uniqueIndex:idx_api_keys_hash" json:"-"`
	KeyPrefix  string     `gorm:"type:text;not null" json:"key_prefix"`
	Name       string     `gorm:"type:text" json:"name"`
	Revoked    bool       `gorm:"default:false" json:"revoked"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// TableName returns the database table name for APIKey.
func (APIKey) TableName() string {
	return "api_keys"
}

// Expired reports whether the key has an expiry in the past.
func (k *APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && now.After(*k.ExpiresAt)
}
