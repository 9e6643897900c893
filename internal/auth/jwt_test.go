package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestIssueAndValidate(t *testing.T) {
	ti, err := NewTokenIssuer(testSecret, time.Minute)
	require.NoError(t, err)

	token, err := ti.Issue("root", true)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(token, "."))

	claims, err := ti.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "root", claims.Username)
	assert.True(t, claims.IsAdmin)
	assert.Equal(t, "root", claims.Subject)
}

func TestValidateRejectsForeignAndExpiredTokens(t *testing.T) {
	ti, err := NewTokenIssuer(testSecret, time.Minute)
	require.NoError(t, err)
	other, err := NewTokenIssuer("", time.Minute)
	require.NoError(t, err)

	foreign, err := other.Issue("root", true)
	require.NoError(t, err)
	_, err = ti.Validate(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ti.Validate("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	token, err := ti.Issue("root", true)
	require.NoError(t, err)
	ti.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = ti.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestWeakSecret(t *testing.T) {
	_, err := NewTokenIssuer("short", time.Minute)
	assert.ErrorIs(t, err, ErrWeakSecret)
}

func TestAdminCredentials(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)

	creds := AdminCredentials{Username: "admin", PasswordHash: hash}
	assert.True(t, creds.Check("admin", "s3cret"))
	assert.False(t, creds.Check("admin", "wrong"))
	assert.False(t, creds.Check("root", "s3cret"))
	assert.False(t, AdminCredentials{Username: "admin"}.Check("admin", ""))
}
