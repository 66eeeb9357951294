package httppresentation

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/session"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"
)

const (
	cookieSession = "session_id"
	cookieAccess  = "accessToken"
	ctxSession    = "session"
	roleAdmin     = "admin"
	sessionMaxAge = 30 * 24 * time.Hour
)

// Claims is the access token shape: subject is the user id, role "admin" marks an operator.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// SessionMiddleware resolves the request scope: the session cookie (issued when absent) plus an
// optional bearer or cookie access token. An invalid token is rejected rather than ignored.
func SessionMiddleware(secret []byte, secureCookies bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sess := session.Session{}

			if ck, err := c.Cookie(cookieSession); err == nil && validSessionID(ck.Value) {
				sess.ID = ck.Value
			} else {
				sess.ID = uuid.NewString()
				c.SetCookie(&http.Cookie{
					Name:     cookieSession,
					Value:    sess.ID,
					Path:     "/",
					MaxAge:   int(sessionMaxAge.Seconds()),
					HttpOnly: true,
					Secure:   secureCookies,
					SameSite: http.SameSiteLaxMode,
				})
			}

			if raw := accessToken(c); raw != "" {
				claims, err := parseToken(raw, secret)
				if err != nil {
					return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
				}
				sess.UserID = claims.Subject
				sess.Privileged = claims.Role == roleAdmin
			}

			c.Set(ctxSession, sess)
			fields := []observability.Field{observability.F("session_id", sess.ID)}
			if sess.UserID != "" {
				fields = append(fields, observability.F("user_id", sess.UserID))
			}
			req := c.Request()
			c.SetRequest(req.WithContext(logctx.Enrich(req.Context(), nil, fields...)))
			return next(c)
		}
	}
}

// RequireAdmin stops non-operators before they reach an admin handler.
func RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		sess := sessionFrom(c)
		if sess.UserID == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
		}
		if !sess.Privileged {
			return echo.NewHTTPError(http.StatusForbidden, "admin role required")
		}
		return next(c)
	}
}

func sessionFrom(c echo.Context) session.Session {
	sess, _ := c.Get(ctxSession).(session.Session)
	return sess
}

func accessToken(c echo.Context) string {
	if h := c.Request().Header.Get(echo.HeaderAuthorization); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if ck, err := c.Cookie(cookieAccess); err == nil {
		return ck.Value
	}
	return ""
}

func parseToken(raw string, secret []byte) (*Claims, error) {
	if len(secret) == 0 {
		return nil, errors.New("token auth disabled")
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// IssueToken signs an access token; used by operator tooling and tests.
func IssueToken(secret []byte, userID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func validSessionID(v string) bool {
	_, err := uuid.Parse(v)
	return err == nil
}
