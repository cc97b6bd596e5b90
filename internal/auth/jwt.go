package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
)

// TimeNow is swappable for expiry tests.
var TimeNow = time.Now

var (
	ErrTokenNotValid = errors.New("token is not valid")
	ErrTokenExpired  = errors.New("token expired")
)

// RoleAdmin is required to trigger a sync.
const RoleAdmin = "admin"

// Claims is the subset of token claims the service cares about.
type Claims struct {
	Subject string
	Role    string
}

// Service signs and validates the HMAC tokens issued by the dashboard's
// auth backend.
type Service struct {
	secret []byte
}

func NewService(secret []byte) *Service {
	return &Service{secret: secret}
}

// Generate issues a signed token; used by tests and operator tooling.
func (s *Service) Generate(subject, role string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":  subject,
		"role": role,
		"iat":  TimeNow().Unix(),
		"exp":  TimeNow().Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a token string.
func (s *Service) Validate(tokenStr string) (Claims, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("jwt parse: %w", ErrTokenNotValid)
	}
	if !token.Valid {
		return Claims{}, ErrTokenNotValid
	}
	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, ErrTokenNotValid
	}
	if exp, ok := mapClaims["exp"].(float64); ok && int64(exp) < TimeNow().Unix() {
		return Claims{}, ErrTokenExpired
	}
	claims := Claims{}
	if sub, ok := mapClaims["sub"].(string); ok {
		claims.Subject = sub
	}
	if role, ok := mapClaims["role"].(string); ok {
		claims.Role = role
	}
	return claims, nil
}
