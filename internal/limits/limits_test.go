package limits

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/memelab/memeforge/internal/config"
	"github.com/memelab/memeforge/internal/domain"
	"github.com/memelab/memeforge/internal/logger"
	"github.com/memelab/memeforge/internal/repository"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "limits_test.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := repository.Migrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

func testSubscriptionConfig() *config.SubscriptionConfig {
	return &config.SubscriptionConfig{
		DefaultTier: "free",
		TierLimits: map[string]map[string]int{
			"free":      {"daily_memes": 2},
			"plus_tier": {"daily_memes": 100},
		},
	}
}

func newTestChecker(t *testing.T, db *gorm.DB, enforce bool) *Checker {
	t.Helper()
	return NewChecker(
		testSubscriptionConfig(),
		repository.NewSubscriptionRepository(db),
		repository.NewRequestLogRepository(db),
		logger.NewDefault(),
		enforce,
	)
}

func seedRequestLog(t *testing.T, db *gorm.DB, userID string, createdAt time.Time) {
	t.Helper()

	rl := &domain.RequestLog{
		ID:        uuid.New().String(),
		TraceID:   uuid.New().String(),
		UserID:    userID,
		Prompt:    "test prompt",
		Language:  "en",
		Status:    domain.RequestStatusOK,
		CreatedAt: createdAt,
	}
	if err := repository.NewRequestLogRepository(db).Create(context.Background(), rl); err != nil {
		t.Fatalf("failed to seed request log: %v", err)
	}
}

func TestEnsureCountsTodayOnly(t *testing.T) {
	db := openTestDB(t)
	checker := newTestChecker(t, db, true)
	ctx := context.Background()

	now := time.Now().UTC()
	seedRequestLog(t, db, "user-1", now.Add(-25*time.Hour))
	seedRequestLog(t, db, "user-1", now)
	seedRequestLog(t, db, "someone-else", now)

	status, err := checker.Ensure(ctx, "user-1", "daily_memes")
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if status.Tier != "free" {
		t.Errorf("expected free tier, got %q", status.Tier)
	}
	if status.UsedToday != 1 {
		t.Errorf("expected 1 used today, got %d", status.UsedToday)
	}
	if status.Remaining != 1 {
		t.Errorf("expected 1 remaining, got %d", status.Remaining)
	}
	if !status.WithinLimit() {
		t.Error("expected user to be within limit")
	}
	if !status.ResetAt.After(now) {
		t.Errorf("reset time %v should be in the future", status.ResetAt)
	}

	seedRequestLog(t, db, "user-1", now)

	status, err = checker.Ensure(ctx, "user-1", "daily_memes")
	var exceeded *LimitExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("expected LimitExceededError, got %v", err)
	}
	if status == nil {
		t.Fatal("status should be populated on breach")
	}
	if status.UsedToday != 2 || status.Remaining != 0 {
		t.Errorf("expected 2 used and 0 remaining, got %d and %d", status.UsedToday, status.Remaining)
	}
	if exceeded.Status != status {
		t.Error("error should carry the returned status")
	}
}

func TestEnsureTierResolution(t *testing.T) {
	db := openTestDB(t)
	checker := newTestChecker(t, db, true)
	ctx := context.Background()
	subRepo := repository.NewSubscriptionRepository(db)

	seedSub := func(userID, tier string, active bool) {
		sub := &domain.Subscription{
			ID:       uuid.New().String(),
			UserID:   userID,
			Tier:     tier,
			IsActive: active,
		}
		if err := subRepo.Upsert(ctx, sub); err != nil {
			t.Fatalf("failed to seed subscription: %v", err)
		}
	}

	seedSub("plus-user", domain.TierPlus, true)
	seedSub("shouty-user", "PLUS_TIER", true)
	seedSub("short-user", "plus", true)
	seedSub("suffixed-free-user", "free_tier", true)
	seedSub("lapsed-user", domain.TierPlus, false)
	seedSub("mystery-user", "enterprise", true)

	tests := []struct {
		name      string
		userID    string
		wantTier  string
		wantLimit int
	}{
		{name: "no subscription row", userID: "nobody", wantTier: "free", wantLimit: 2},
		{name: "active plus subscription", userID: "plus-user", wantTier: "plus_tier", wantLimit: 100},
		{name: "tier key is case insensitive", userID: "shouty-user", wantTier: "plus_tier", wantLimit: 100},
		{name: "missing tier suffix is added", userID: "short-user", wantTier: "plus_tier", wantLimit: 100},
		{name: "extra tier suffix is stripped", userID: "suffixed-free-user", wantTier: "free", wantLimit: 2},
		{name: "inactive subscription falls back to free", userID: "lapsed-user", wantTier: "free", wantLimit: 2},
		{name: "unknown tier uses default", userID: "mystery-user", wantTier: "free", wantLimit: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, err := checker.Ensure(ctx, tt.userID, "daily_memes")
			if err != nil {
				t.Fatalf("Ensure failed: %v", err)
			}
			if status.Tier != tt.wantTier {
				t.Errorf("expected tier %q, got %q", tt.wantTier, status.Tier)
			}
			if status.LimitValue != tt.wantLimit {
				t.Errorf("expected limit %d, got %d", tt.wantLimit, status.LimitValue)
			}
		})
	}
}

func TestEnsureUnknownLimitName(t *testing.T) {
	db := openTestDB(t)
	checker := newTestChecker(t, db, true)

	_, err := checker.Ensure(context.Background(), "user-1", "daily_rockets")
	if err == nil {
		t.Fatal("expected error for unconfigured limit name")
	}
	var exceeded *LimitExceededError
	if errors.As(err, &exceeded) {
		t.Fatal("configuration error should not be a limit breach")
	}
}

func TestEnsureEnforcementDisabled(t *testing.T) {
	db := openTestDB(t)
	checker := newTestChecker(t, db, false)
	ctx := context.Background()

	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		seedRequestLog(t, db, "busy-user", now)
	}

	status, err := checker.Ensure(ctx, "busy-user", "daily_memes")
	if err != nil {
		t.Fatalf("Ensure should not fail with enforcement off: %v", err)
	}
	if status.WithinLimit() {
		t.Error("status should still report the breach")
	}
	if status.UsedToday != 3 || status.Remaining != 0 {
		t.Errorf("expected 3 used and 0 remaining, got %d and %d", status.UsedToday, status.Remaining)
	}
}

func TestStatusNeverEnforces(t *testing.T) {
	db := openTestDB(t)
	checker := newTestChecker(t, db, true)
	ctx := context.Background()

	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		seedRequestLog(t, db, "busy-user", now)
	}

	status, err := checker.Status(ctx, "busy-user", "daily_memes")
	if err != nil {
		t.Fatalf("Status should report without enforcing: %v", err)
	}
	if status.WithinLimit() {
		t.Error("status should report the breach")
	}
	if status.UsedToday != 3 || status.Remaining != 0 {
		t.Errorf("expected 3 used and 0 remaining, got %d and %d", status.UsedToday, status.Remaining)
	}
}

func TestErrorDetail(t *testing.T) {
	resetAt := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	status := &LimitStatus{
		Tier:       "free",
		LimitName:  "daily_memes",
		LimitValue: 2,
		UsedToday:  2,
		Remaining:  0,
		ResetAt:    resetAt,
	}

	detail := status.ErrorDetail()
	if detail["code"] != "daily_limit_exceeded" {
		t.Errorf("unexpected code %v", detail["code"])
	}
	if detail["message"] != "Daily memes limit reached. Upgrade your plan or wait until reset." {
		t.Errorf("unexpected message %v", detail["message"])
	}
	if detail["reset_at"] != "2025-06-02T00:00:00Z" {
		t.Errorf("unexpected reset_at %v", detail["reset_at"])
	}
	if detail["limit"] != 2 || detail["used"] != 2 || detail["remaining"] != 0 {
		t.Errorf("unexpected counters in %v", detail)
	}

	msg := (&LimitExceededError{Status: status}).Error()
	want := fmt.Sprintf("daily_memes limit exceeded: used %d of %d (free tier)", 2, 2)
	if msg != want {
		t.Errorf("expected %q, got %q", want, msg)
	}
}
