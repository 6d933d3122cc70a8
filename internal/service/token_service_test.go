package service

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sirh-sync/internal/models"
	appErrors "github.com/noah-isme/sirh-sync/pkg/errors"
)

func TestIssueAndValidateToken(t *testing.T) {
	svc := NewTokenService("secret")
	actor := models.Actor{UserID: "admin-1", Role: models.PlatformRoleAdmin}

	token, err := svc.Issue(actor, "admin@mail.fr", time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, actor, claims.Actor())
	assert.Equal(t, "admin@mail.fr", claims.Email)
}

func TestValidateTokenRejectsBadTokens(t *testing.T) {
	svc := NewTokenService("secret")
	actor := models.Actor{UserID: "admin-1"}

	other, err := NewTokenService("other").Issue(actor, "", time.Hour)
	require.NoError(t, err)
	_, err = svc.ValidateToken(other)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))

	token, err := svc.Issue(actor, "", time.Minute)
	require.NoError(t, err)
	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = svc.ValidateToken(token)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, &models.Claims{UserID: "x"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = svc.ValidateToken(none)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))

	_, err = svc.Issue(models.Actor{}, "", time.Hour)
	assert.True(t, errors.Is(err, appErrors.ErrMissingKey))
}
