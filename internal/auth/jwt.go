// Package auth provides session tokens, password hashing, Google identity
// verification and the cookie middleware for the job portal API.
//
// SESSION FLOW:
//  1. Login (password or Google) succeeds in the service layer
//  2. TokenService.Generate signs a JWT whose only claim of interest is "sub"
//  3. The handler stores it in the HttpOnly "token" cookie for SessionTTL
//  4. RequireAuth validates the cookie on protected routes and puts the
//     user ID in the request context
//
// Tokens are stateless. Logout clears the cookie on the client; a copied token
// stays valid until it expires.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// SessionTTL is the validity window of tokens minted by password and Google login.
	SessionTTL = 7 * 24 * time.Hour

	issuer = "job-portal"
)

// ErrInvalidToken is wrapped by every Validate failure.
var ErrInvalidToken = errors.New("auth: invalid token")

// TokenService handles JWT creation and validation with a process-wide HMAC secret.
type TokenService struct {
	secret []byte
}

// NewTokenService creates a TokenService with the given secret.
//
// There is no fallback secret: an empty or short secret is a startup error.
// Generate one with: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret)}, nil
}

// claims is the JWT payload. "sub" holds the internal user ID.
type claims struct {
	jwt.RegisteredClaims
}

// Generate creates and signs a session token for userID valid for SessionTTL.
func (s *TokenService) Generate(userID string) (string, error) {
	return s.GenerateWithDuration(userID, SessionTTL)
}

// GenerateWithDuration creates a token with a custom expiry duration.
// Used in tests to mint already-expired tokens.
func (s *TokenService) GenerateWithDuration(userID string, d time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("auth: token subject must not be empty")
	}

	now := time.Now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Validate parses and verifies a JWT string and returns the user ID in "sub".
//
// Signature, HS256 algorithm, issuer and expiry are all enforced by the jwt
// library; any failure is reported as ErrInvalidToken.
func (s *TokenService) Validate(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("%w: token expired", ErrInvalidToken)
		}
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("%w: unexpected claims", ErrInvalidToken)
	}
	if c.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", ErrInvalidToken)
	}

	return c.Subject, nil
}
