// internal/api/middleware/auth.go
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ridewallet/internal/api/types"
	"ridewallet/internal/util"

	"github.com/golang-jwt/jwt/v5"
)

// Roles carried in the token's role claim.
const (
	RoleRider  = "rider"
	RoleDriver = "driver"
	RoleAdmin  = "admin"
)

type contextKey string

const (
	userIDKey contextKey = "user_id"
	roleKey   contextKey = "role"
)

var errInvalidToken = errors.New("invalid or expired token")

// Claims are the JWT claims the API relies on. Subject is the numeric user id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWTManager signs and validates HS256 bearer tokens.
type JWTManager struct {
	secretKey []byte
}

// NewJWTManager creates a new JWT manager with the given secret.
func NewJWTManager(secretKey string) *JWTManager {
	return &JWTManager{secretKey: []byte(secretKey)}
}

// Generate creates a token for userID with role, valid for ttl.
func (m *JWTManager) Generate(userID int64, role string, ttl time.Duration) (string, error) {
	switch role {
	case RoleRider, RoleDriver, RoleAdmin:
	default:
		return "", fmt.Errorf("unknown role %q", role)
	}
	if userID <= 0 || ttl <= 0 {
		return "", errors.New("user id and ttl must be positive")
	}
	now := time.Now()
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Validate parses a token and returns its claims.
func (m *JWTManager) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secretKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errInvalidToken
	}
	return claims, nil
}

// UserID returns the authenticated user id.
func UserID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok
}

// Role returns the authenticated user's role.
func Role(ctx context.Context) string {
	role, _ := ctx.Value(roleKey).(string)
	return role
}

// RequireAuth rejects requests without a valid bearer token and stores the
// caller's id and role on the request context.
func RequireAuth(jm *JWTManager, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			parts := strings.Fields(r.Header.Get("Authorization"))
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				types.WriteError(w, logger, http.StatusUnauthorized, string(util.KindUnauthorized), "authorization token required")
				return
			}
			claims, err := jm.Validate(parts[1])
			if err != nil {
				types.WriteError(w, logger, http.StatusUnauthorized, string(util.KindUnauthorized), errInvalidToken.Error())
				return
			}
			userID, err := strconv.ParseInt(claims.Subject, 10, 64)
			if err != nil || userID <= 0 {
				types.WriteError(w, logger, http.StatusUnauthorized, string(util.KindUnauthorized), "token subject is not a user id")
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			ctx = context.WithValue(ctx, roleKey, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole only admits callers holding one of roles. Admins pass every check.
func RequireRole(logger *slog.Logger, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := Role(r.Context())
			if role == RoleAdmin {
				next.ServeHTTP(w, r)
				return
			}
			for _, allowed := range roles {
				if role == allowed {
					next.ServeHTTP(w, r)
					return
				}
			}
			types.WriteError(w, logger, http.StatusForbidden, string(util.KindForbidden), "insufficient role")
		})
	}
}
