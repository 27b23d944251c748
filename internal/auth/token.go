// Package auth verifies caller identity: JWT bearer tokens (HS256 shared
// secret or RS256 via a remote JWKS) and programmatic API keys.
package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/memelab/memeforge/internal/config"
)

// Claims carries the identity extracted from a verified token.
type Claims struct {
	UserID string
	Email  string
}

// TokenVerifier validates JWT bearer tokens. HS256 verification uses the
// configured shared secret; RS256 verification resolves signing keys from a
// JWKS endpoint, cached in memory and refreshed when an unknown kid appears.
type TokenVerifier struct {
	secret   []byte
	jwksURL  string
	issuers  []string
	audience string
	client   *resty.Client

	mu   sync.RWMutex
	keys map[string]*rsa.PublicKey
}

// NewTokenVerifier creates a new token verifier.
// Parameters:
//   - cfg: auth configuration with the HS256 secret and/or JWKS URL.
//
// Returns:
//   - *TokenVerifier: initialized verifier.
func NewTokenVerifier(cfg *config.AuthConfig) *TokenVerifier {
	client := resty.New()
	client.SetTimeout(10 * time.Second)

	var secret []byte
	if cfg.JWTSecret != "" {
		secret = []byte(cfg.JWTSecret)
	}

	return &TokenVerifier{
		secret:   secret,
		jwksURL:  cfg.JWKSURL,
		issuers:  cfg.Issuers,
		audience: cfg.Audience,
		client:   client,
		keys:     make(map[string]*rsa.PublicKey),
	}
}

// Verify validates a bearer token and returns its claims.
// Parameters:
//   - ctx: context for cancellation; bounds a JWKS refresh if one is needed.
//   - tokenString: the raw JWT.
//
// Returns:
//   - *Claims: subject and email from the verified token.
//   - error: non-nil if the signature, expiry, issuer, or audience fails.
func (v *TokenVerifier) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		switch t.Method.(type) {
		case *jwt.SigningMethodHMAC:
			if len(v.secret) == 0 {
				return nil, fmt.Errorf("HS256 tokens are not enabled")
			}
			return v.secret, nil
		case *jwt.SigningMethodRSA:
			if v.jwksURL == "" {
				return nil, fmt.Errorf("RS256 tokens are not enabled")
			}
			kid, _ := t.Header["kid"].(string)
			if kid == "" {
				return nil, fmt.Errorf("token missing kid header")
			}
			return v.signingKey(ctx, kid)
		default:
			return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
		}
	}, jwt.WithValidMethods([]string{"HS256", "RS256"}))
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	if len(v.issuers) > 0 {
		iss, err := claims.GetIssuer()
		if err != nil || !containsString(v.issuers, iss) {
			return nil, fmt.Errorf("token issuer %q is not allowed", iss)
		}
	}

	// Audience is only enforced when the token declares one; access tokens
	// from some providers omit it.
	if v.audience != "" {
		aud, err := claims.GetAudience()
		if err != nil {
			return nil, fmt.Errorf("malformed audience claim: %w", err)
		}
		if len(aud) > 0 && !containsString(aud, v.audience) {
			return nil, fmt.Errorf("token audience does not include %q", v.audience)
		}
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("token missing subject claim")
	}
	email, _ := claims["email"].(string)

	return &Claims{UserID: sub, Email: email}, nil
}

// signingKey resolves the RSA public key for kid, refreshing the cached key
// set once when the kid is unknown.
func (v *TokenVerifier) signingKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.RLock()
	key, ok := v.keys[kid]
	v.mu.RUnlock()
	if ok {
		return key, nil
	}

	// Unknown kid: the key set may have rotated.
	if err := v.refreshKeys(ctx); err != nil {
		return nil, err
	}

	v.mu.RLock()
	key, ok = v.keys[kid]
	v.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no key %q in JWKS", kid)
	}
	return key, nil
}

type jwksDocument struct {
	Keys []jwksKey `json:"keys"`
}

type jwksKey struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// refreshKeys fetches the JWKS document and replaces the cached key set.
func (v *TokenVerifier) refreshKeys(ctx context.Context) error {
	var doc jwksDocument
	resp, err := v.client.R().
		SetContext(ctx).
		SetResult(&doc).
		Get(v.jwksURL)
	if err != nil {
		return fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("JWKS endpoint returned HTTP %d", resp.StatusCode())
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		pub, err := k.publicKey()
		if err != nil {
			return fmt.Errorf("failed to parse JWKS key %s: %w", k.Kid, err)
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return fmt.Errorf("JWKS document has no usable RSA keys")
	}

	v.mu.Lock()
	v.keys = keys
	v.mu.Unlock()
	return nil
}

// publicKey converts the JWK modulus/exponent pair into an rsa.PublicKey.
func (k *jwksKey) publicKey() (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("bad modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("bad exponent: %w", err)
	}

	e := 0
	for _, b := range eBytes {
		e = e<<8 | int(b)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: e,
	}, nil
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
