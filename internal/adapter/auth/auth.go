// Package auth implements the request authentication gate: a static API key
// or a short-lived HS256 session token issued by Login.
package auth

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/chiwei-platform/phost/internal/domain"
	"github.com/chiwei-platform/phost/internal/port"
	"github.com/golang-jwt/jwt/v5"
)

const (
	apiKeyHeader = "X-API-Key"
	bearerPrefix = "Bearer "
	issuer       = "phost"
)

var _ port.Authenticator = (*Authenticator)(nil)

type Config struct {
	APIToken      string
	Username      string
	Password      string
	SessionSecret string
	SessionTTL    time.Duration
}

// SessionClaims is the payload of a session token.
type SessionClaims struct {
	Username string `json:"usr"`
	jwt.RegisteredClaims
}

type Authenticator struct {
	cfg Config
	now func() time.Time
}

func New(cfg Config) *Authenticator {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 12 * time.Hour
	}
	return &Authenticator{cfg: cfg, now: time.Now}
}

// Open reports whether no credential of any kind is configured, in which
// case every request is let through.
func (a *Authenticator) Open() bool {
	return a.cfg.APIToken == "" && a.cfg.SessionSecret == ""
}

func (a *Authenticator) Authenticated(r *http.Request) bool {
	if a.Open() {
		return true
	}
	if key := r.Header.Get(apiKeyHeader); key != "" && a.cfg.APIToken != "" {
		return subtle.ConstantTimeCompare([]byte(key), []byte(a.cfg.APIToken)) == 1
	}
	authz := r.Header.Get("Authorization")
	if !strings.HasPrefix(authz, bearerPrefix) {
		return false
	}
	_, err := a.ParseToken(strings.TrimPrefix(authz, bearerPrefix))
	return err == nil
}

// Login checks the admin credentials and issues a session token.
func (a *Authenticator) Login(username, password string) (string, time.Time, error) {
	// 未配置密码时禁用登录，否则空密码会与空配置相等。
	if a.cfg.SessionSecret == "" || a.cfg.Username == "" || a.cfg.Password == "" {
		return "", time.Time{}, fmt.Errorf("%w: login is disabled", domain.ErrUnauthenticated)
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.cfg.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(a.cfg.Password)) == 1
	if !userOK || !passOK {
		return "", time.Time{}, fmt.Errorf("%w: invalid username or password", domain.ErrUnauthenticated)
	}
	return a.IssueToken(username)
}

func (a *Authenticator) IssueToken(username string) (string, time.Time, error) {
	now := a.now()
	expires := now.Add(a.cfg.SessionTTL)
	claims := SessionClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(a.cfg.SessionSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

func (a *Authenticator) ParseToken(tokenString string) (*SessionClaims, error) {
	if a.cfg.SessionSecret == "" {
		return nil, fmt.Errorf("%w: sessions are disabled", domain.ErrUnauthenticated)
	}
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		return []byte(a.cfg.SessionSecret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
	}
	if claims, ok := token.Claims.(*SessionClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("%w: invalid session claims", domain.ErrUnauthenticated)
}
