package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"nexchat/errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var secret = []byte("a_test_secret_long_enough_for_hs256")

func TestGenerateAndValidateToken(t *testing.T) {
	req := require.New(t)

	token, err := GenerateToken(secret, "u1", []string{"user"}, time.Hour)
	req.NoError(err)

	claims, err := ValidateToken(secret, token)
	req.NoError(err)
	req.Equal("u1", claims.UserID)
	req.Equal([]string{"user"}, claims.Roles)
	req.Equal("nexchat", claims.Issuer)
}

func TestValidateToken_Rejections(t *testing.T) {
	req := require.New(t)

	expired, err := GenerateToken(secret, "u1", nil, -time.Minute)
	req.NoError(err)

	foreign, err := GenerateToken([]byte("another_secret_another_secret_!!"), "u1", nil, time.Hour)
	req.NoError(err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, &CustomClaims{UserID: "u1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	req.NoError(err)

	anonymous, err := GenerateToken(secret, "", nil, time.Hour)
	req.NoError(err)

	tests := []struct {
		name  string
		token string
	}{
		{"Empty token", ""},
		{"Garbage", "not.a.jwt"},
		{"Expired", expired},
		{"Signed with another secret", foreign},
		{"Unsigned", none},
		{"Without user", anonymous},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateToken(secret, tt.token)
			req.ErrorIs(err, errors.ErrUnauthorized)
		})
	}
}

func TestTokenFromRequest(t *testing.T) {
	req := require.New(t)

	fromQuery := httptest.NewRequest(http.MethodGet, "/ws/general?token=abc", nil)
	fromQuery.Header.Set("Authorization", "Bearer def")
	req.Equal("abc", TokenFromRequest(fromQuery))

	fromHeader := httptest.NewRequest(http.MethodGet, "/ws/general", nil)
	fromHeader.Header.Set("Authorization", "Bearer def")
	req.Equal("def", TokenFromRequest(fromHeader))

	basic := httptest.NewRequest(http.MethodGet, "/ws/general", nil)
	basic.Header.Set("Authorization", "Basic xyz")
	req.Equal("", TokenFromRequest(basic))
}

func TestAuthenticate_Injects_Identity(t *testing.T) {
	req := require.New(t)
	token, err := GenerateToken(secret, "u42", []string{"admin"}, time.Hour)
	req.NoError(err)

	r := httptest.NewRequest(http.MethodGet, "/ws/general?token="+token, nil)
	claims, err := Authenticate(secret, r)
	req.NoError(err)

	ctx := WithClaims(context.Background(), claims)
	userID, ok := UserIDFrom(ctx)
	req.True(ok)
	req.Equal("u42", userID)

	_, ok = UserIDFrom(context.Background())
	req.False(ok)
}
