package v1

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/aurachat/aura/server/router/api/v1/chat"
	"github.com/aurachat/aura/store"
)

// authMiddleware resolves the bearer token to a user id. Session tokens are
// HS256 JWTs signed with the instance secret; personal access tokens are
// looked up by digest.
func (s *APIV1Service) authMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := extractBearerToken(c.Request())
		if token == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
		}

		if userID, ok := s.authenticateJWT(token); ok {
			c.Set(chat.UserIDContextKey, userID)
			return next(c)
		}

		user, err := s.authenticatePAT(c, token)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to verify access token")
		}
		if user == nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid access token")
		}

		c.Set(chat.UserIDContextKey, user.ID)
		return next(c)
	}
}

func (s *APIV1Service) authenticateJWT(token string) (int32, bool) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(s.Secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !parsed.Valid {
		return 0, false
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 32)
	if err != nil {
		return 0, false
	}
	return int32(userID), true
}

func (s *APIV1Service) authenticatePAT(c echo.Context, token string) (*store.User, error) {
	digest := sha256.Sum256([]byte(token))
	return s.Store.GetUserByTokenDigest(c.Request().Context(), hex.EncodeToString(digest[:]))
}

func extractBearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// currentUserID reads the authenticated user id set by the middleware.
func currentUserID(c echo.Context) (int32, bool) {
	userID, ok := c.Get(chat.UserIDContextKey).(int32)
	return userID, ok
}
