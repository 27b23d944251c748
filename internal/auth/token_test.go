package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/memelab/memeforge/internal/config"
)

func signHS256(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestVerifyHS256(t *testing.T) {
	v := NewTokenVerifier(&config.AuthConfig{JWTSecret: "test-secret", Audience: "memeforge"})

	tests := []struct {
		name    string
		token   string
		wantID  string
		wantErr bool
	}{
		{
			name: "valid token",
			token: signHS256(t, "test-secret", jwt.MapClaims{
				"sub":   "user-42",
				"email": "u@example.com",
				"exp":   time.Now().Add(time.Hour).Unix(),
			}),
			wantID: "user-42",
		},
		{
			name: "valid token without audience claim",
			token: signHS256(t, "test-secret", jwt.MapClaims{
				"sub": "user-43",
				"exp": time.Now().Add(time.Hour).Unix(),
			}),
			wantID: "user-43",
		},
		{
			name: "wrong secret",
			token: signHS256(t, "other-secret", jwt.MapClaims{
				"sub": "user-42",
				"exp": time.Now().Add(time.Hour).Unix(),
			}),
			wantErr: true,
		},
		{
			name: "expired",
			token: signHS256(t, "test-secret", jwt.MapClaims{
				"sub": "user-42",
				"exp": time.Now().Add(-time.Hour).Unix(),
			}),
			wantErr: true,
		},
		{
			name: "missing subject",
			token: signHS256(t, "test-secret", jwt.MapClaims{
				"exp": time.Now().Add(time.Hour).Unix(),
			}),
			wantErr: true,
		},
		{
			name: "wrong audience",
			token: signHS256(t, "test-secret", jwt.MapClaims{
				"sub": "user-42",
				"aud": "other-service",
				"exp": time.Now().Add(time.Hour).Unix(),
			}),
			wantErr: true,
		},
		{
			name:    "garbage",
			token:   "not-a-jwt",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := v.Verify(context.Background(), tt.token)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Verify failed: %v", err)
			}
			if claims.UserID != tt.wantID {
				t.Errorf("user id = %q, want %q", claims.UserID, tt.wantID)
			}
		})
	}
}

func jwksFor(t *testing.T, kid string, pub *rsa.PublicKey) map[string]interface{} {
	t.Helper()
	return map[string]interface{}{
		"kid": kid,
		"kty": "RSA",
		"use": "sig",
		"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(bigEndianExponent(pub.E)),
	}
}

func bigEndianExponent(e int) []byte {
	var out []byte
	for e > 0 {
		out = append([]byte{byte(e & 0xff)}, out...)
		e >>= 8
	}
	return out
}

func TestVerifyRS256WithJWKSRotation(t *testing.T) {
	key1, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	key2, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	// The endpoint serves key-1 first and rotates to key-2 afterwards.
	var fetches int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches++
		keys := []interface{}{jwksFor(t, "key-1", &key1.PublicKey)}
		if fetches > 1 {
			keys = []interface{}{jwksFor(t, "key-2", &key2.PublicKey)}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"keys": keys})
	}))
	defer srv.Close()

	v := NewTokenVerifier(&config.AuthConfig{JWKSURL: srv.URL})

	signRS := func(key *rsa.PrivateKey, kid string) string {
		token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
			"sub": "user-42",
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		token.Header["kid"] = kid
		signed, err := token.SignedString(key)
		if err != nil {
			t.Fatalf("failed to sign token: %v", err)
		}
		return signed
	}

	claims, err := v.Verify(context.Background(), signRS(key1, "key-1"))
	if err != nil {
		t.Fatalf("Verify with key-1 failed: %v", err)
	}
	if claims.UserID != "user-42" {
		t.Errorf("user id = %q, want user-42", claims.UserID)
	}
	if fetches != 1 {
		t.Errorf("fetches = %d, want 1", fetches)
	}

	// A token signed with the rotated key forces one refresh.
	if _, err := v.Verify(context.Background(), signRS(key2, "key-2")); err != nil {
		t.Fatalf("Verify with rotated key failed: %v", err)
	}
	if fetches != 2 {
		t.Errorf("fetches = %d, want 2", fetches)
	}

	// key-1 is gone from the set now.
	if _, err := v.Verify(context.Background(), signRS(key1, "key-1")); err == nil {
		t.Fatal("expected an error for a retired kid")
	}
}
