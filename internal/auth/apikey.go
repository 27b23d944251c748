package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/memelab/memeforge/internal/domain"
	"github.com/memelab/memeforge/internal/repository"
)

const (
	apiKeyPrefix    = "mk_"
	keyPrefixLength = 8
	apiKeyBytes     = 32
)

// API key failure sentinels. The messages are surfaced verbatim as API
// error details, hence the capitalization.
var (
	ErrInvalidAPIKey  = errors.New("Invalid API key")
	ErrAPIKeyRevoked  = errors.New("API key has been revoked")
	ErrAPIKeyExpired  = errors.New("API key has expired")
	ErrAPIKeyNotFound = errors.New("API key not found")
)

// APIKeyService mints and validates programmatic access keys.
type APIKeyService struct {
	repo *repository.APIKeyRepository
}

// NewAPIKeyService creates a new API key service
func NewAPIKeyService(repo *repository.APIKeyRepository) *APIKeyService {
	return &APIKeyService{repo: repo}
}

// HashKey returns the hex-encoded SHA-256 of a raw key. Only hashes are
// stored and looked up; the raw key exists client-side only.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Mint creates a new API key for the user. The raw key value is returned
// exactly once and cannot be recovered afterwards.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: owning user.
//   - name: display name for the key (may be empty).
//   - expiresAt: optional expiry; nil means the key never expires.
//
// Returns:
//   - string: the raw key, "mk_" prefixed.
//   - *domain.APIKey: the stored record (hash, prefix, metadata).
//   - error: non-nil if generation or persistence fails.
func (s *APIKeyService) Mint(ctx context.Context, userID, name string, expiresAt *time.Time) (string, *domain.APIKey, error) {
	buf := make([]byte, apiKeyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, fmt.Errorf("failed to generate API key: %w", err)
	}
	raw := apiKeyPrefix + base64.RawURLEncoding.EncodeToString(buf)

	record := &domain.APIKey{
		ID:        uuid.New().String(),
		UserID:    userID,
		KeyHash:   HashKey(raw),
		KeyPrefix: raw[:keyPrefixLength],
		Name:      name,
		ExpiresAt: expiresAt,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return "", nil, fmt.Errorf("failed to store API key: %w", err)
	}

	return raw, record, nil
}

// Validate checks a raw key and returns its record. Valid keys get their
// last_used_at stamped.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - raw: the raw key from the X-API-KEY header.
//
// Returns:
//   - *domain.APIKey: the key record on success.
//   - error: ErrInvalidAPIKey, ErrAPIKeyRevoked, ErrAPIKeyExpired, or a
//     database failure.
func (s *APIKeyService) Validate(ctx context.Context, raw string) (*domain.APIKey, error) {
	record, err := s.repo.GetByHash(ctx, HashKey(raw))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidAPIKey
		}
		return nil, err
	}

	if record.Revoked {
		return nil, ErrAPIKeyRevoked
	}
	now := time.Now().UTC()
	if record.Expired(now) {
		return nil, ErrAPIKeyExpired
	}

	if err := s.repo.TouchLastUsed(ctx, record.ID, now); err != nil {
		return nil, fmt.Errorf("failed to update API key metadata: %w", err)
	}
	record.LastUsedAt = &now

	return record, nil
}

// List returns the user's keys, newest first. Records carry prefix and
// metadata only; hashes are never serialized.
func (s *APIKeyService) List(ctx context.Context, userID string) ([]domain.APIKey, error) {
	return s.repo.ListByUser(ctx, userID)
}

// Revoke marks one of the user's keys revoked.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: calling user; keys of other users are invisible here.
//   - keyID: key record ID.
//
// Returns:
//   - error: ErrAPIKeyNotFound if no matching key, else a database failure.
func (s *APIKeyService) Revoke(ctx context.Context, userID, keyID string) error {
	affected, err := s.repo.Revoke(ctx, keyID, userID)
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrAPIKeyNotFound
	}
	return nil
}
