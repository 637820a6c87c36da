package services

import (
	"fmt"
	"time"

	"lapak/internal/apperrors"
	"lapak/internal/models"

	"github.com/dgrijalva/jwt-go"
)

// TokenService issues and verifies signed bearer tokens.
type TokenService struct {
	secret     []byte
	tokenDurat time.Duration // Duration for which a token is valid
}

// NewTokenService creates a TokenService with the given signing key. An empty
// key is refused outright rather than silently signing unverifiable tokens.
func NewTokenService(secret string) (*TokenService, error) {
	if secret == "" {
		return nil, fmt.Errorf("token signing key must not be empty")
	}
	return &TokenService{
		secret:     []byte(secret),
		tokenDurat: time.Hour,
	}, nil
}

// Issue produces a signed token embedding the user's identity, valid for one
// hour from issuance.
func (s *TokenService) Issue(user *models.User) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  user.ID,
		"username": user.Username,
		"email":    user.Email,
		"iat":      now.Unix(),
		"exp":      now.Add(s.tokenDurat).Unix(),
	})

	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// Verify parses and validates a token, returning its claims. Malformed,
// mis-signed and expired tokens all come back as ErrInvalidToken; callers are
// not told which.
func (s *TokenService) Verify(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, apperrors.ErrInvalidToken
	}
	return claims, nil
}
