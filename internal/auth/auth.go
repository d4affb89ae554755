package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"duet/internal/models"

	"github.com/c-pro/geche"
	"github.com/golang-jwt/jwt/v5"
)

const (
	DefaultTokenExpiry = 12 * time.Hour
	verifiedCacheTTL   = 5 * time.Minute
)

type Config struct {
	Secret      string        `json:"secret"`
	secretBytes []byte        `json:"-"`
	TokenExpiry time.Duration `json:"tokenExpiry"`
}

func (c *Config) Validate() error {
	if c.Secret == "" {
		return errors.New("secret is required")
	}

	var err error
	c.secretBytes, err = base64.StdEncoding.DecodeString(c.Secret)
	if err != nil {
		return fmt.Errorf("auth secret is not a valid base64: %w", err)
	}

	if c.TokenExpiry == 0 {
		c.TokenExpiry = DefaultTokenExpiry
	}

	return nil
}

type verifiedToken struct {
	userID    string
	expiresAt time.Time
}

// AuthService verifies bearer tokens. Tokens are HS256 JWTs whose subject
// is the user id. Verified tokens are remembered for a few minutes so that
// reconnect storms do not re-parse the same token.
type AuthService struct {
	Config
	verified geche.Geche[string, verifiedToken]
	now      func() time.Time
}

func NewAuthService(ctx context.Context, config Config) (*AuthService, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &AuthService{
		Config:   config,
		verified: geche.NewMapTTLCache[string, verifiedToken](ctx, verifiedCacheTTL, time.Minute),
		now:      time.Now,
	}, nil
}

// IssueToken mints a token for userID. It backs developer tooling and
// tests; end-user credential issuance lives outside this service.
func (as *AuthService) IssueToken(userID string) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, errors.New("user id is required")
	}
	now := as.now()
	expiresAt := now.Add(as.TokenExpiry)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	})

	signed, err := token.SignedString(as.secretBytes)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify returns the user id for token or an error wrapping
// models.ErrAuthentication.
func (as *AuthService) Verify(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("%w: missing token", models.ErrAuthentication)
	}

	if v, err := as.verified.Get(token); err == nil {
		if as.now().Before(v.expiresAt) {
			return v.userID, nil
		}
		_ = as.verified.Del(token)
		return "", fmt.Errorf("%w: token expired", models.ErrAuthentication)
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(t *jwt.Token) (any, error) {
			return as.secretBytes, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(as.now),
	)
	if err != nil {
		slog.Debug("token rejected", "error", err)
		return "", fmt.Errorf("%w: %v", models.ErrAuthentication, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", models.ErrAuthentication)
	}

	as.verified.Set(token, verifiedToken{
		userID:    claims.Subject,
		expiresAt: claims.ExpiresAt.Time,
	})
	return claims.Subject, nil
}
