// Package limits enforces per-tier daily quotas. Usage is counted from
// request_logs rows, so a request only spends quota once it is admitted.
package limits

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/memelab/memeforge/internal/config"
	"github.com/memelab/memeforge/internal/domain"
	"github.com/memelab/memeforge/internal/logger"
	"github.com/memelab/memeforge/internal/repository"
)

// LimitStatus is the state of one quota check.
type LimitStatus struct {
	Tier       string    `json:"tier"`
	LimitName  string    `json:"limit_name"`
	LimitValue int       `json:"limit_value"`
	UsedToday  int       `json:"used_today"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
}

// WithinLimit reports whether the user still has quota left.
func (s *LimitStatus) WithinLimit() bool {
	return s.UsedToday < s.LimitValue
}

// ErrorDetail is the standardized payload for limit breaches.
func (s *LimitStatus) ErrorDetail() map[string]interface{} {
	readable := strings.ReplaceAll(s.LimitName, "_", " ")
	if readable != "" {
		readable = strings.ToUpper(readable[:1]) + readable[1:]
	}
	return map[string]interface{}{
		"code":       "daily_limit_exceeded",
		"tier":       s.Tier,
		"limit":      s.LimitValue,
		"used":       s.UsedToday,
		"remaining":  s.Remaining,
		"limit_name": s.LimitName,
		"reset_at":   s.ResetAt.Format(time.RFC3339),
		"message":    fmt.Sprintf("%s limit reached. Upgrade your plan or wait until reset.", readable),
	}
}

// LimitExceededError signals a quota breach. Handlers map it onto HTTP 402
// with the status's ErrorDetail payload.
type LimitExceededError struct {
	Status *LimitStatus
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("%s limit exceeded: used %d of %d (%s tier)",
		e.Status.LimitName, e.Status.UsedToday, e.Status.LimitValue, e.Status.Tier)
}

// Checker resolves a user's tier and checks daily usage against the
// configured tier limits.
type Checker struct {
	subs    *config.SubscriptionConfig
	subRepo *repository.SubscriptionRepository
	logRepo *repository.RequestLogRepository
	logger  *logger.Logger
	enforce bool
}

// NewChecker creates a new limit checker.
// Parameters:
//   - subs: tier limits from the subscription YAML.
//   - subRepo: subscription lookups for tier resolution.
//   - logRepo: request log counts for daily usage.
//   - log: logger for enforcement warnings.
//   - enforce: when false, breaches are logged but requests proceed.
//
// Returns:
//   - *Checker: initialized checker.
func NewChecker(subs *config.SubscriptionConfig, subRepo *repository.SubscriptionRepository, logRepo *repository.RequestLogRepository, log *logger.Logger, enforce bool) *Checker {
	return &Checker{
		subs:    subs,
		subRepo: subRepo,
		logRepo: logRepo,
		logger:  log,
		enforce: enforce,
	}
}

// Ensure checks the user's daily quota for limitName.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: authenticated caller.
//   - limitName: quota key in the tier limits map (e.g. "daily_memes").
//
// Returns:
//   - *LimitStatus: the quota snapshot, also populated on breach.
//   - error: *LimitExceededError when over quota and enforcement is on, or
//     a configuration/database failure.
func (c *Checker) Ensure(ctx context.Context, userID, limitName string) (*LimitStatus, error) {
	status, err := c.Status(ctx, userID, limitName)
	if err != nil {
		return nil, err
	}

	if !status.WithinLimit() {
		c.logger.WithFields(logger.Fields{
			logger.FieldUserID: userID,
			logger.FieldTier:   status.Tier,
			"limit_name":       limitName,
			"used":             status.UsedToday,
			"limit":            status.LimitValue,
		}).Warn("Daily limit exceeded")
		if c.enforce {
			return status, &LimitExceededError{Status: status}
		}
	}

	return status, nil
}

// Status reports the user's quota snapshot without enforcing it. The usage
// endpoint uses this so a capped user can still see where they stand.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: authenticated caller.
//   - limitName: quota key in the tier limits map.
//
// Returns:
//   - *LimitStatus: the quota snapshot.
//   - error: a configuration or database failure.
func (c *Checker) Status(ctx context.Context, userID, limitName string) (*LimitStatus, error) {
	tier, err := c.resolveTier(ctx, userID)
	if err != nil {
		return nil, err
	}

	limitValue, ok := c.subs.LimitForTier(tier, limitName)
	if !ok {
		return nil, fmt.Errorf("limit %q not configured for tier %q", limitName, tier)
	}

	startOfToday := startOfTodayUTC()
	used, err := c.logRepo.CountForUserSince(ctx, userID, startOfToday)
	if err != nil {
		return nil, fmt.Errorf("failed to count daily usage: %w", err)
	}

	remaining := limitValue - int(used)
	if remaining < 0 {
		remaining = 0
	}

	return &LimitStatus{
		Tier:       tier,
		LimitName:  limitName,
		LimitValue: limitValue,
		UsedToday:  int(used),
		Remaining:  remaining,
		ResetAt:    startOfToday.Add(24 * time.Hour),
	}, nil
}

// resolveTier finds the user's tier key: active subscription row first,
// free tier otherwise.
func (c *Checker) resolveTier(ctx context.Context, userID string) (string, error) {
	sub, err := c.subRepo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.normalizeTierKey(domain.TierFree), nil
		}
		return "", fmt.Errorf("failed to resolve subscription: %w", err)
	}

	tier := sub.Tier
	if !sub.IsActive {
		tier = domain.TierFree
	}
	return c.normalizeTierKey(tier), nil
}

// normalizeTierKey maps a stored tier value onto a tier_limits key,
// tolerating the "_tier" suffix in either direction. Unknown tiers fall
// back to the configured default.
func (c *Checker) normalizeTierKey(raw string) string {
	if raw == "" {
		return c.subs.DefaultTier
	}

	normalized := strings.ToLower(raw)
	if _, ok := c.subs.TierLimits[normalized]; ok {
		return normalized
	}

	suffixed := normalized + "_tier"
	if _, ok := c.subs.TierLimits[suffixed]; ok {
		return suffixed
	}

	unsuffixed := strings.TrimSuffix(normalized, "_tier")
	if _, ok := c.subs.TierLimits[unsuffixed]; ok {
		return unsuffixed
	}

	c.logger.WithField(logger.FieldTier, raw).Warn("Unknown subscription tier, using default")
	return c.subs.DefaultTier
}

func startOfTodayUTC() time.Time {
	return time.Now().UTC().Truncate(24 * time.Hour)
}
