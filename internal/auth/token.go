package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/VallejoLeonardo/alumnosb/types"
)

// RoleStudent is the only role issued in the current scope.
const RoleStudent = "student"

// ErrInvalidToken is returned for every verification failure: malformed,
// expired, or bad signature. Callers cannot tell which check failed.
var ErrInvalidToken = errors.New("invalid or expired token")

// Claims are the identity claims embedded in a session token.
type Claims struct {
	StudentID string `json:"student_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer creates and verifies HS256-signed session tokens. The secret
// is read-only after construction.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl}
}

// Issue signs a token for the student with the configured lifetime.
func (t *TokenIssuer) Issue(student types.Student) (string, error) {
	now := time.Now()
	claims := Claims{
		StudentID: student.Matricula,
		Name:      student.DisplayName(),
		Email:     student.Email,
		Role:      RoleStudent,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   student.Matricula,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Verify checks signature and expiry and returns the embedded claims.
func (t *TokenIssuer) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return t.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.StudentID) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
