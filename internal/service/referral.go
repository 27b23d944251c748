package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"gorm.io/gorm"

	"github.com/memelab/memeforge/internal/domain"
	"github.com/memelab/memeforge/internal/repository"
)

const (
	referralAlphabet       = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	referralCodeLength     = 8
	referralCodeLongLength = 12
	referralCodeRetries    = 5
)

// Referral outcome sentinels. The messages are surfaced verbatim as API
// error details, hence the capitalization.
var (
	ErrAlreadyReferred = errors.New("User already has a referrer")
	ErrInvalidReferral = errors.New("Invalid referral code")
	ErrSelfReferral    = errors.New("Cannot refer yourself")
)

// ReferralService manages referral codes and referral application.
type ReferralService struct {
	profileRepo *repository.ProfileRepository
}

// NewReferralService creates a new referral service
func NewReferralService(profileRepo *repository.ProfileRepository) *ReferralService {
	return &ReferralService{profileRepo: profileRepo}
}

// GetOrCreateCode returns the caller's profile with a referral code,
// lazily generating one on first request. Collisions with existing codes
// retry with fresh codes, then fall back to a longer code.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: authenticated caller.
//
// Returns:
//   - *domain.Profile: profile with ReferralCode populated.
//   - error: non-nil if the profile is missing or the write fails.
func (s *ReferralService) GetOrCreateCode(ctx context.Context, userID string) (*domain.Profile, error) {
	profile, err := s.profileRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile.ReferralCode != "" {
		return profile, nil
	}

	for attempt := 0; attempt < referralCodeRetries; attempt++ {
		code, err := randomReferralCode(referralCodeLength)
		if err != nil {
			return nil, err
		}

		err = s.profileRepo.SetReferralCode(ctx, userID, code)
		if err == nil {
			profile.ReferralCode = code
			return profile, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, err
		}
	}

	// Persistent collisions; 12 characters makes another one vanishingly rare.
	code, err := randomReferralCode(referralCodeLongLength)
	if err != nil {
		return nil, err
	}
	if err := s.profileRepo.SetReferralCode(ctx, userID, code); err != nil {
		return nil, err
	}
	profile.ReferralCode = code
	return profile, nil
}

// Apply links the caller to the owner of the referral code and bumps the
// owner's referral count.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: authenticated caller being referred.
//   - code: referral code supplied by the caller.
//
// Returns:
//   - error: ErrAlreadyReferred, ErrInvalidReferral, ErrSelfReferral, or a
//     database failure.
func (s *ReferralService) Apply(ctx context.Context, userID, code string) error {
	profile, err := s.profileRepo.GetByUserID(ctx, userID)
	if err != nil {
		return err
	}
	if profile.ReferrerID != "" {
		return ErrAlreadyReferred
	}

	referrer, err := s.profileRepo.GetByReferralCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvalidReferral
		}
		return err
	}
	if referrer.UserID == userID {
		return ErrSelfReferral
	}

	return s.profileRepo.ApplyReferral(ctx, userID, referrer.UserID)
}

// randomReferralCode draws length characters from the uppercase alphanumeric
// alphabet with crypto/rand.
func randomReferralCode(length int) (string, error) {
	code := make([]byte, length)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(referralAlphabet))))
		if err != nil {
			return "", fmt.Errorf("failed to generate referral code: %w", err)
		}
		code[i] = referralAlphabet[n.Int64()]
	}
	return string(code), nil
}
