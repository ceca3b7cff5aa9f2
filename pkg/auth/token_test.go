package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-core/pkg/config"
	"github.com/angelmondragon/storefront-core/pkg/enums"
)

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "storefront-identity"}

func TestMintAndParseAccessToken(t *testing.T) {
	userID := uuid.New()
	token, err := MintAccessToken(testJWT, time.Now().UTC(), 30*time.Minute, AccessTokenPayload{
		UserID: userID,
		Role:   enums.UserRoleCustomer,
		JTI:    "jti-1",
	})
	require.NoError(t, err)

	claims, err := ParseAccessToken(testJWT, token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, enums.UserRoleCustomer, claims.Role)
	assert.Equal(t, testJWT.Issuer, claims.Issuer)
	assert.Equal(t, "jti-1", claims.ID)
}

func TestParseAccessTokenRejectsExpired(t *testing.T) {
	token, err := MintAccessToken(testJWT, time.Now().Add(-2*time.Hour), time.Hour, AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.UserRoleCustomer,
	})
	require.NoError(t, err)

	_, err = ParseAccessToken(testJWT, token)
	require.Error(t, err)
}

func TestParseAccessTokenRejectsWrongIssuerOrSecret(t *testing.T) {
	token, err := MintAccessToken(testJWT, time.Now(), time.Hour, AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.UserRoleAdmin,
	})
	require.NoError(t, err)

	_, err = ParseAccessToken(config.JWTConfig{Secret: "secret", Issuer: "someone-else"}, token)
	require.Error(t, err)

	_, err = ParseAccessToken(config.JWTConfig{Secret: "other", Issuer: testJWT.Issuer}, token)
	require.Error(t, err)
}

func TestMintAccessTokenValidatesPayload(t *testing.T) {
	_, err := MintAccessToken(testJWT, time.Now(), time.Hour, AccessTokenPayload{Role: enums.UserRoleCustomer})
	require.Error(t, err)

	_, err = MintAccessToken(testJWT, time.Now(), time.Hour, AccessTokenPayload{UserID: uuid.New(), Role: "owner"})
	require.Error(t, err)
}

func TestParseAccessTokenChecksAudience(t *testing.T) {
	cfg := testJWT
	cfg.Audience = "storefront-api"
	token, err := MintAccessToken(cfg, time.Now(), time.Hour, AccessTokenPayload{UserID: uuid.New(), Role: enums.UserRoleCustomer})
	require.NoError(t, err)

	_, err = ParseAccessToken(cfg, token)
	require.NoError(t, err)

	other := cfg
	other.Audience = "back-office"
	_, err = ParseAccessToken(other, token)
	require.Error(t, err)
}

func TestParseAccessTokenHonoursLeeway(t *testing.T) {
	token, err := MintAccessToken(testJWT, time.Now().Add(-time.Hour-10*time.Second), time.Hour, AccessTokenPayload{UserID: uuid.New(), Role: enums.UserRoleCustomer})
	require.NoError(t, err)

	_, err = ParseAccessToken(testJWT, token)
	require.Error(t, err)

	lenient := testJWT
	lenient.Leeway = time.Minute
	_, err = ParseAccessToken(lenient, token)
	require.NoError(t, err)
}

func TestParseAccessTokenRequiresSecret(t *testing.T) {
	_, err := ParseAccessToken(config.JWTConfig{Issuer: "x"}, "whatever")
	assert.ErrorIs(t, err, ErrNoSecret)
}
