package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"google.golang.org/api/idtoken"
)

// ErrInvalidAssertion is returned when a third-party identity assertion
// cannot be verified against the configured audience.
var ErrInvalidAssertion = errors.New("invalid identity assertion")

// IdentityClaims is the verified subset of an identity-provider payload.
type IdentityClaims struct {
	Email   string
	Name    string
	Picture string
}

// GoogleVerifier validates Google ID tokens against the configured OAuth
// client ID.
type GoogleVerifier struct {
	audience string
	timeout  time.Duration
}

func NewGoogleVerifier(clientID string, timeout time.Duration) *GoogleVerifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &GoogleVerifier{audience: clientID, timeout: timeout}
}

// Verify checks the token's signature and audience and extracts the verified
// email. Verification failures of any kind collapse into ErrInvalidAssertion.
func (g *GoogleVerifier) Verify(ctx context.Context, rawToken string) (IdentityClaims, error) {
	if strings.TrimSpace(rawToken) == "" {
		return IdentityClaims{}, ErrInvalidAssertion
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	payload, err := idtoken.Validate(ctx, rawToken, g.audience)
	if err != nil {
		return IdentityClaims{}, ErrInvalidAssertion
	}

	claims := IdentityClaims{
		Email:   stringClaim(payload.Claims, "email"),
		Name:    stringClaim(payload.Claims, "name"),
		Picture: stringClaim(payload.Claims, "picture"),
	}
	if claims.Email == "" {
		return IdentityClaims{}, ErrInvalidAssertion
	}
	return claims, nil
}

func stringClaim(claims map[string]any, key string) string {
	if value, ok := claims[key].(string); ok {
		return value
	}
	return ""
}
