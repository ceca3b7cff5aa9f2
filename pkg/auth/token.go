package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-core/pkg/config"
)

var (
	ErrNoSecret   = errors.New("jwt secret is required")
	ErrNoIdentity = errors.New("token carries no user id")
)

func parserOptions(cfg config.JWTConfig) []jwt.ParserOption {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	if cfg.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(cfg.Leeway))
	}
	return opts
}

// ParseAccessToken verifies an HS256 token from the identity provider and
// returns its claims. Tokens without a user id are rejected; an empty role is
// treated as a plain customer downstream.
func ParseAccessToken(cfg config.JWTConfig, raw string) (*AccessTokenClaims, error) {
	if cfg.Secret == "" {
		return nil, ErrNoSecret
	}
	key := []byte(cfg.Secret)
	claims := new(AccessTokenClaims)
	if _, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) { return key, nil }, parserOptions(cfg)...); err != nil {
		return nil, err
	}
	switch {
	case claims.UserID == uuid.Nil:
		return nil, ErrNoIdentity
	case claims.Subject != "" && claims.Subject != claims.UserID.String():
		return nil, errors.New("token subject does not match user id")
	case claims.Role != "" && !claims.Role.IsValid():
		return nil, fmt.Errorf("unknown role %q", claims.Role)
	}
	return claims, nil
}

// MintAccessToken issues a token shaped like the identity provider's. The API
// only verifies tokens; local tooling and tests use this.
func MintAccessToken(cfg config.JWTConfig, now time.Time, ttl time.Duration, payload AccessTokenPayload) (string, error) {
	switch {
	case cfg.Secret == "":
		return "", ErrNoSecret
	case cfg.Issuer == "":
		return "", errors.New("jwt issuer is required")
	case ttl <= 0:
		return "", errors.New("token ttl must be positive")
	case payload.UserID == uuid.Nil:
		return "", ErrNoIdentity
	case !payload.Role.IsValid():
		return "", fmt.Errorf("unknown role %q", payload.Role)
	}
	id := payload.JTI
	if id == "" {
		id = uuid.NewString()
	}
	registered := jwt.RegisteredClaims{
		ID:        id,
		Issuer:    cfg.Issuer,
		Subject:   payload.UserID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	if cfg.Audience != "" {
		registered.Audience = jwt.ClaimStrings{cfg.Audience}
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessTokenClaims{
		UserID:           payload.UserID,
		Role:             payload.Role,
		RegisteredClaims: registered,
	})
	return token.SignedString([]byte(cfg.Secret))
}
