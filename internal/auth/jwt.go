// Package auth issues and validates the operator tokens that guard the admin
// and status endpoints.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token defaults.
const (
	// DefaultOperatorTokenTTL is how long operator tokens are valid when no TTL is given.
	DefaultOperatorTokenTTL = 12 * time.Hour

	DefaultIssuer   = "stationtraffic"
	DefaultAudience = "stationtraffic-admin"
)

// Predefined JWT errors.
var (
	ErrInvalidOperatorToken = errors.New("invalid operator token")
	ErrOperatorTokenExpired = errors.New("operator token has expired")
	ErrMissingSigningKey    = errors.New("signing key is not configured")
)

// OperatorClaims are the claims carried by an operator token.
type OperatorClaims struct {
	jwt.RegisteredClaims

	// Operator names the person or automation holding the token.
	Operator string `json:"op"`
}

// JWTConfig holds configuration for the JWT service.
type JWTConfig struct {
	// SigningKey is the HS256 secret.
	SigningKey string

	// Issuer is the issuer claim. Default: DefaultIssuer
	Issuer string

	// Audience is the audience claim. Default: DefaultAudience
	Audience string
}

// JWTService creates and validates operator tokens.
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
	now        func() time.Time
}

// NewJWTService creates a new JWT service.
func NewJWTService(cfg JWTConfig) *JWTService {
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = DefaultIssuer
	}
	audience := cfg.Audience
	if audience == "" {
		audience = DefaultAudience
	}

	return &JWTService{
		signingKey: []byte(cfg.SigningKey),
		issuer:     issuer,
		audience:   audience,
		now:        time.Now,
	}
}

// GenerateOperatorToken signs a token for operator valid for ttl.
// A zero ttl uses DefaultOperatorTokenTTL.
func (s *JWTService) GenerateOperatorToken(operator string, ttl time.Duration) (string, time.Time, error) {
	if len(s.signingKey) == 0 {
		return "", time.Time{}, ErrMissingSigningKey
	}
	if operator == "" {
		return "", time.Time{}, errors.New("operator is required")
	}
	if ttl <= 0 {
		ttl = DefaultOperatorTokenTTL
	}

	now := s.now()
	expiresAt := now.Add(ttl)

	claims := OperatorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   operator,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
		Operator: operator,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing operator token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// ValidateOperatorToken validates a token and returns its claims.
func (s *JWTService) ValidateOperatorToken(tokenString string) (*OperatorClaims, error) {
	if len(s.signingKey) == 0 {
		return nil, ErrMissingSigningKey
	}

	token, err := jwt.ParseWithClaims(tokenString, &OperatorClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrOperatorTokenExpired
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidOperatorToken, err.Error())
	}

	claims, ok := token.Claims.(*OperatorClaims)
	if !ok || !token.Valid || claims.Operator == "" {
		return nil, ErrInvalidOperatorToken
	}

	return claims, nil
}
