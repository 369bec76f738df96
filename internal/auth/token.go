package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/conclave-chat/conclave/internal/chat/storage"
	apperrors "github.com/conclave-chat/conclave/internal/platform/errors"
)

// ErrInvalidToken covers malformed, forged, and revoked bearer tokens.
var ErrInvalidToken = apperrors.New(apperrors.CodeInvalidAuthToken, "invalid auth token")

// ErrExpiredToken indicates a well-formed token past its expiry.
var ErrExpiredToken = apperrors.New(apperrors.CodeExpiredAuthToken, "expired auth token")

// Claims is the JWT payload of an issued token. TokenID references the
// stored token record, which controls revocation.
type Claims struct {
	UserID  string `json:"userId"`
	TokenID string `json:"tokenId"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies signed bearer tokens. Every issued token
// has a stored record; deleting the record revokes the token regardless of
// its expiry.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	tokens storage.TokenStore
	now    func() time.Time
}

// NewTokenService builds a token service signing with the given secret.
func NewTokenService(secret []byte, ttl time.Duration, tokens storage.TokenStore) (*TokenService, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("token secret is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token ttl must be positive")
	}
	return &TokenService{
		secret: secret,
		ttl:    ttl,
		tokens: tokens,
		now:    time.Now,
	}, nil
}

// Issue signs a new token for the user and records it for revocation.
func (s *TokenService) Issue(ctx context.Context, userID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	now := s.now()
	record := storage.TokenRecord{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
	}
	if err := s.tokens.CreateToken(ctx, record); err != nil {
		return "", fmt.Errorf("record token: %w", err)
	}

	claims := Claims{
		UserID:  userID,
		TokenID: record.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify validates a signed token and checks its record still exists.
// Revoked tokens verify exactly like forged ones.
func (s *TokenService) Verify(ctx context.Context, signed string) (Claims, error) {
	if err := ctx.Err(); err != nil {
		return Claims{}, err
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(signed, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if errors.Is(err, jwt.ErrTokenExpired) {
		return Claims{}, ErrExpiredToken
	}
	if err != nil || !token.Valid {
		return Claims{}, ErrInvalidToken
	}
	if claims.UserID == "" || claims.TokenID == "" {
		return Claims{}, ErrInvalidToken
	}

	record, err := s.tokens.GetToken(ctx, claims.TokenID)
	if errors.Is(err, storage.ErrNotFound) {
		return Claims{}, ErrInvalidToken
	}
	if err != nil {
		return Claims{}, fmt.Errorf("check token record: %w", err)
	}
	if record.UserID != claims.UserID {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

// Revoke deletes the token record, invalidating every bearer of its id.
func (s *TokenService) Revoke(ctx context.Context, tokenID string) error {
	if err := s.tokens.DeleteToken(ctx, tokenID); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// StripBearer extracts the token from an Authorization header value. The
// scheme prefix is optional so websocket clients can send the raw token.
func StripBearer(value string) string {
	value = strings.TrimSpace(value)
	if len(value) >= 7 && strings.EqualFold(value[:7], "Bearer ") {
		return strings.TrimSpace(value[7:])
	}
	return value
}
