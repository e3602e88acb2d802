package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/crawlshastra-backend/internal/http/response"
	apperr "github.com/yungbote/crawlshastra-backend/internal/pkg/errors"
	"github.com/yungbote/crawlshastra-backend/internal/pkg/logger"
	"github.com/yungbote/crawlshastra-backend/internal/services"
)

const (
	tokenCookie = "token"
	// Bodies larger than this are not inspected for a token field.
	maxTokenPeekBytes = 1 << 20
)

type AuthMiddleware struct {
	log         *logger.Logger
	authService services.AuthService
}

func NewAuthMiddleware(log *logger.Logger, authService services.AuthService) *AuthMiddleware {
	return &AuthMiddleware{log: log.With("middleware", "AuthMiddleware"), authService: authService}
}

func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractTokenFromAll(c)
		if tokenString == "" {
			response.AbortError(c, http.StatusUnauthorized, "unauthorized", apperr.ErrCredentialMissing)
			return
		}
		ctx, err := am.authService.SetContextFromToken(c.Request.Context(), tokenString)
		if err != nil {
			am.log.Debug("rejected credential", "path", c.Request.URL.Path, "error", err)
			if errors.Is(err, apperr.ErrCredentialMissing) {
				response.AbortError(c, http.StatusUnauthorized, "unauthorized", apperr.ErrCredentialMissing)
				return
			}
			response.AbortError(c, http.StatusUnauthorized, "unauthorized", apperr.ErrCredentialInvalid)
			return
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// extractTokenFromAll checks the token cookie, then a JSON body field
// "token", then the Authorization bearer header.
func extractTokenFromAll(c *gin.Context) string {
	if v, err := c.Cookie(tokenCookie); err == nil && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	if v := peekBodyToken(c.Request); v != "" {
		return v
	}
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}

// peekBodyToken reads a JSON body and restores it so handlers can bind it again.
func peekBodyToken(r *http.Request) string {
	if r == nil || r.Body == nil || r.Body == http.NoBody {
		return ""
	}
	if !strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
		return ""
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxTokenPeekBytes+1))
	rest := r.Body
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(raw), rest), rest}
	if err != nil || len(raw) > maxTokenPeekBytes {
		return ""
	}
	var body struct {
		Token string `json:"token"`
	}
	if json.Unmarshal(raw, &body) != nil {
		return ""
	}
	return strings.TrimSpace(body.Token)
}
