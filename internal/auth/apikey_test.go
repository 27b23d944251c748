package auth

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/memelab/memeforge/internal/repository"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "auth_test.db")), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := repository.Migrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func TestMintAndValidate(t *testing.T) {
	svc := NewAPIKeyService(repository.NewAPIKeyRepository(openTestDB(t)))
	ctx := context.Background()

	raw, record, err := svc.Mint(ctx, "user-1", "ci key", nil)
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}
	if !strings.HasPrefix(raw, "mk_") {
		t.Errorf("raw key %q missing mk_ prefix", raw)
	}
	if record.KeyPrefix != raw[:keyPrefixLength] {
		t.Errorf("key prefix = %q, want %q", record.KeyPrefix, raw[:keyPrefixLength])
	}
	if record.KeyHash != HashKey(raw) {
		t.Error("stored hash does not match the raw key")
	}

	validated, err := svc.Validate(ctx, raw)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if validated.UserID != "user-1" {
		t.Errorf("user id = %q, want user-1", validated.UserID)
	}
	if validated.LastUsedAt == nil {
		t.Error("expected last_used_at to be stamped")
	}
}

func TestValidateRejections(t *testing.T) {
	db := openTestDB(t)
	svc := NewAPIKeyService(repository.NewAPIKeyRepository(db))
	ctx := context.Background()

	goodRaw, goodRecord, err := svc.Mint(ctx, "user-1", "good", nil)
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}

	past := time.Now().UTC().Add(-time.Hour)
	expiredRaw, _, err := svc.Mint(ctx, "user-1", "expired", &past)
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}

	if err := svc.Revoke(ctx, "user-1", goodRecord.ID); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}

	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{"unknown key", "mk_never-minted", ErrInvalidAPIKey},
		{"revoked key", goodRaw, ErrAPIKeyRevoked},
		{"expired key", expiredRaw, ErrAPIKeyExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Validate(ctx, tt.raw); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRevokeScopedToOwner(t *testing.T) {
	svc := NewAPIKeyService(repository.NewAPIKeyRepository(openTestDB(t)))
	ctx := context.Background()

	_, record, err := svc.Mint(ctx, "user-1", "mine", nil)
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}

	if err := svc.Revoke(ctx, "user-2", record.ID); !errors.Is(err, ErrAPIKeyNotFound) {
		t.Errorf("foreign revoke error = %v, want ErrAPIKeyNotFound", err)
	}
	if err := svc.Revoke(ctx, "user-1", "no-such-id"); !errors.Is(err, ErrAPIKeyNotFound) {
		t.Errorf("unknown id revoke error = %v, want ErrAPIKeyNotFound", err)
	}
	if err := svc.Revoke(ctx, "user-1", record.ID); err != nil {
		t.Errorf("owner revoke failed: %v", err)
	}
}
