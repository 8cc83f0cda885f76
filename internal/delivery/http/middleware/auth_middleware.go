package middleware

import (
	"crypto/subtle"
	"errors"
	"strings"

	"job-recommender/internal/pkg/jwt"

	"github.com/gofiber/fiber/v3"
)

const (
	CtxUserIDKey        = "user_id"
	HeaderInternalToken = "X-Internal-Token"
)

type AuthMiddleware struct {
	jwt jwt.Service
	// allowQuery also accepts ?token=, for websocket clients that cannot set headers.
	allowQuery bool
}

func NewAuthMiddleware(jwtSvc jwt.Service) *AuthMiddleware {
	return &AuthMiddleware{jwt: jwtSvc}
}

// WithQueryToken returns a copy that also reads the token from the "token" query parameter.
func (m *AuthMiddleware) WithQueryToken() *AuthMiddleware {
	return &AuthMiddleware{jwt: m.jwt, allowQuery: true}
}

func (m *AuthMiddleware) Middleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		token, ok := bearerTokenFromHeader(c.Get("Authorization"))
		if !ok && m.allowQuery {
			token = strings.TrimSpace(c.Query("token"))
			ok = token != ""
		}
		if !ok {
			return NewAppError(fiber.StatusUnauthorized, "Unauthorized", nil, nil)
		}

		claims, err := m.jwt.ValidateToken(token)
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				return NewAppError(fiber.StatusUnauthorized, "Token expired", nil, err)
			}
			return NewAppError(fiber.StatusUnauthorized, "Invalid token", nil, err)
		}

		c.Locals(CtxUserIDKey, claims.UserID)
		return c.Next()
	}
}

// InternalToken guards operator endpoints with a shared secret. An empty secret disables them.
func InternalToken(secret string) fiber.Handler {
	secret = strings.TrimSpace(secret)
	return func(c fiber.Ctx) error {
		if secret == "" {
			return NewAppError(fiber.StatusForbidden, "Internal API disabled", nil, nil)
		}
		got := strings.TrimSpace(c.Get(HeaderInternalToken))
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			return NewAppError(fiber.StatusUnauthorized, "Invalid internal token", nil, nil)
		}
		return c.Next()
	}
}

func UserIDFromCtx(c fiber.Ctx) (int64, bool) {
	uid, ok := c.Locals(CtxUserIDKey).(int64)
	return uid, ok && uid > 0
}

func bearerTokenFromHeader(authHeader string) (string, bool) {
	authHeader = strings.TrimSpace(authHeader)
	if authHeader == "" {
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}
