package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/yungbote/crawlshastra-backend/internal/pkg/ctxutil"
	apperr "github.com/yungbote/crawlshastra-backend/internal/pkg/errors"
	"github.com/yungbote/crawlshastra-backend/internal/pkg/logger"
)

// JWTClaims carries the principal in Subject. Tokens minted by older issuers
// put it in "_id" instead.
type JWTClaims struct {
	LegacyID string `json:"_id,omitempty"`
	jwt.RegisteredClaims
}

func (c *JWTClaims) principal() string {
	if s := strings.TrimSpace(c.Subject); s != "" {
		return s
	}
	return strings.TrimSpace(c.LegacyID)
}

type AuthService interface {
	VerifyToken(tokenString string) (uuid.UUID, error)
	SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error)
	IssueToken(principal uuid.UUID, ttl time.Duration) (string, error)
}

type authService struct {
	log          *logger.Logger
	jwtSecretKey []byte
	now          func() time.Time
}

func NewAuthService(log *logger.Logger, jwtSecretKey string) AuthService {
	return &authService{
		log:          log.With("service", "AuthService"),
		jwtSecretKey: []byte(jwtSecretKey),
		now:          time.Now,
	}
}

func (as *authService) VerifyToken(tokenString string) (uuid.UUID, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return uuid.Nil, apperr.ErrCredentialMissing
	}
	if len(as.jwtSecretKey) == 0 {
		as.log.Error("JWT secret key not configured")
		return uuid.Nil, apperr.ErrCredentialInvalid
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return as.jwtSecretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(as.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		as.log.Debug("token rejected", "error", err)
		return uuid.Nil, fmt.Errorf("%w: %v", apperr.ErrCredentialInvalid, err)
	}
	claims, ok := parsed.Claims.(*JWTClaims)
	if !ok || !parsed.Valid {
		return uuid.Nil, apperr.ErrCredentialInvalid
	}
	userID, err := uuid.Parse(claims.principal())
	if err != nil || userID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: bad subject", apperr.ErrCredentialInvalid)
	}
	return userID, nil
}

func (as *authService) SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error) {
	userID, err := as.VerifyToken(tokenString)
	if err != nil {
		return ctx, err
	}
	return ctxutil.WithRequestData(ctx, &ctxutil.RequestData{
		TokenString: tokenString,
		UserID:      userID,
	}), nil
}

func (as *authService) IssueToken(principal uuid.UUID, ttl time.Duration) (string, error) {
	if principal == uuid.Nil {
		return "", errors.New("principal required")
	}
	if len(as.jwtSecretKey) == 0 {
		return "", errors.New("jwt secret key not configured")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	now := as.now()
	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(as.jwtSecretKey)
}
