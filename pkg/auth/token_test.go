package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seahsky/joho-erp-sub004/pkg/config"
	"github.com/seahsky/joho-erp-sub004/pkg/enums"
)

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "joho-identity"}

func TestMintAndParseAccessToken(t *testing.T) {
	now := time.Now().UTC()
	customerID := uuid.New()

	token, err := MintAccessToken(testJWT, now, 30*time.Minute, AccessTokenPayload{
		ActorID:    "cust-user-1",
		Role:       enums.ActorRoleCustomer,
		CustomerID: &customerID,
	})
	require.NoError(t, err)

	claims, err := ParseAccessToken(testJWT, token)
	require.NoError(t, err)
	assert.Equal(t, "cust-user-1", claims.ActorID())
	assert.Equal(t, enums.ActorRoleCustomer, claims.Role)
	require.NotNil(t, claims.CustomerID)
	assert.Equal(t, customerID, *claims.CustomerID)
	assert.Equal(t, testJWT.Issuer, claims.Issuer)
	assert.NotEmpty(t, claims.ID)
}

func TestParseAccessTokenRejects(t *testing.T) {
	valid := func(t *testing.T) string {
		token, err := MintAccessToken(testJWT, time.Now(), time.Hour, AccessTokenPayload{ActorID: "m-1", Role: enums.ActorRoleManager})
		require.NoError(t, err)
		return token
	}

	t.Run("expired", func(t *testing.T) {
		token, err := MintAccessToken(testJWT, time.Now().Add(-2*time.Hour), time.Minute, AccessTokenPayload{ActorID: "staff-1", Role: enums.ActorRoleStaff})
		require.NoError(t, err)
		_, err = ParseAccessToken(testJWT, token)
		assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	})
	t.Run("wrong issuer", func(t *testing.T) {
		_, err := ParseAccessToken(config.JWTConfig{Secret: "secret", Issuer: "someone-else"}, valid(t))
		assert.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)
	})
	t.Run("wrong secret", func(t *testing.T) {
		_, err := ParseAccessToken(config.JWTConfig{Secret: "other", Issuer: testJWT.Issuer}, valid(t))
		assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
	})
	t.Run("system role", func(t *testing.T) {
		token := signRaw(t, &AccessTokenClaims{
			Role: enums.ActorRoleSystem,
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "forged",
				Issuer:    testJWT.Issuer,
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		})
		_, err := ParseAccessToken(testJWT, token)
		assert.ErrorIs(t, err, jwt.ErrTokenInvalidClaims)
		assert.ErrorContains(t, err, "invalid actor role")
	})
	t.Run("customer without customer id", func(t *testing.T) {
		token := signRaw(t, &AccessTokenClaims{
			Role: enums.ActorRoleCustomer,
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "c-1",
				Issuer:    testJWT.Issuer,
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		})
		_, err := ParseAccessToken(testJWT, token)
		assert.ErrorContains(t, err, "customer id")
	})
	t.Run("no expiry", func(t *testing.T) {
		token := signRaw(t, &AccessTokenClaims{
			Role:             enums.ActorRoleStaff,
			RegisteredClaims: jwt.RegisteredClaims{Subject: "s-1", Issuer: testJWT.Issuer},
		})
		_, err := ParseAccessToken(testJWT, token)
		assert.Error(t, err)
	})
}

func TestParseAccessTokenToleratesSkew(t *testing.T) {
	// minted by an identity service whose clock runs ten seconds ahead
	token, err := MintAccessToken(testJWT, time.Now().Add(10*time.Second), time.Hour, AccessTokenPayload{ActorID: "d-1", Role: enums.ActorRoleDriver})
	require.NoError(t, err)

	_, err = ParseAccessToken(testJWT, token)
	assert.ErrorIs(t, err, jwt.ErrTokenUsedBeforeIssued)

	skewed := testJWT
	skewed.Leeway = 30 * time.Second
	_, err = ParseAccessToken(skewed, token)
	assert.NoError(t, err)
}

func TestMintAccessTokenValidation(t *testing.T) {
	now := time.Now()
	cases := map[string]struct {
		ttl     time.Duration
		payload AccessTokenPayload
	}{
		"missing actor id":          {time.Hour, AccessTokenPayload{Role: enums.ActorRoleStaff}},
		"customer without customer": {time.Hour, AccessTokenPayload{ActorID: "c", Role: enums.ActorRoleCustomer}},
		"system role":               {time.Hour, AccessTokenPayload{ActorID: "s", Role: enums.ActorRoleSystem}},
		"zero ttl":                  {0, AccessTokenPayload{ActorID: "s", Role: enums.ActorRoleStaff}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := MintAccessToken(testJWT, now, tc.ttl, tc.payload)
			assert.Error(t, err)
		})
	}
}

func signRaw(t *testing.T, claims *AccessTokenClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWT.Secret))
	require.NoError(t, err)
	return token
}
