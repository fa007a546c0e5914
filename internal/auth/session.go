package auth

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// SessionCookie is the name of the session cookie set on login.
const SessionCookie = "wt_session"

// Claims is the payload carried in the session token. Role and username are
// embedded so middleware can gate requests without a database round trip;
// handlers that need fresh user data still load it by ID.
type Claims struct {
	UserID      int64  `json:"uid"`
	Username    string `json:"username"`
	Role        string `json:"role"`
	StageAccess string `json:"stage_access"`
	jwt.RegisteredClaims
}

// Sessions issues and verifies signed session cookies.
type Sessions struct {
	secret []byte
	ttl    time.Duration
}

// NewSessions creates a session manager with the given signing secret and
// token lifetime.
func NewSessions(secret string, ttl time.Duration) *Sessions {
	return &Sessions{secret: []byte(secret), ttl: ttl}
}

// Issue signs a session token and sets it as an HTTP-only cookie.
func (s *Sessions) Issue(c *gin.Context, claims Claims) error {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return fmt.Errorf("failed to sign session token: %w", err)
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, token, int(s.ttl.Seconds()), "/", "", false, true)
	return nil
}

// Clear expires the session cookie.
func (s *Sessions) Clear(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, "", -1, "/", "", false, true)
}

// Parse validates the session cookie on the request and returns its claims.
func (s *Sessions) Parse(c *gin.Context) (*Claims, bool) {
	raw, err := c.Cookie(SessionCookie)
	if err != nil || raw == "" {
		return nil, false
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, false
	}
	return &claims, true
}
