package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chiwei-platform/phost/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuth() *Authenticator {
	return New(Config{
		APIToken:      "secret-key",
		Username:      "admin",
		Password:      "hunter2",
		SessionSecret: "signing-secret",
		SessionTTL:    time.Hour,
	})
}

func TestAuthenticated_APIKey(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   bool
	}{
		{"correct key", "secret-key", true},
		{"wrong key", "nope", false},
		{"no credentials", "", false},
	}
	a := newAuth()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("X-API-Key", tt.header)
			}
			assert.Equal(t, tt.want, a.Authenticated(req))
		})
	}
}

func TestAuthenticated_OpenWhenUnconfigured(t *testing.T) {
	a := New(Config{})
	assert.True(t, a.Open())
	assert.True(t, a.Authenticated(httptest.NewRequest(http.MethodGet, "/", nil)))
}

func TestLoginIssuesUsableToken(t *testing.T) {
	a := newAuth()
	token, expires, err := a.Login("admin", "hunter2")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	assert.True(t, a.Authenticated(req))

	claims, err := a.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	a := newAuth()
	_, _, err := a.Login("admin", "wrong")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	_, _, err = New(Config{APIToken: "k"}).Login("admin", "hunter2")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	noPassword := New(Config{SessionSecret: "s3cret", Username: "admin"})
	token, _, err := noPassword.Login("admin", "")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	assert.Empty(t, token)
}

func TestExpiredTokenIsRejected(t *testing.T) {
	a := newAuth()
	a.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, err := a.IssueToken("admin")
	require.NoError(t, err)

	a.now = time.Now
	_, err = a.ParseToken(token)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	assert.False(t, a.Authenticated(req))
}

func TestTokenFromOtherSecretIsRejected(t *testing.T) {
	other := New(Config{SessionSecret: "different", Username: "admin", Password: "x"})
	token, _, err := other.IssueToken("admin")
	require.NoError(t, err)

	_, err = newAuth().ParseToken(token)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}
