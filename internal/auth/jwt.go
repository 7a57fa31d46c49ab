package auth

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the payload of an access token. Workspaces lists the
// workspace ids the bearer may act on; "*" grants all of them.
type Claims struct {
	Workspaces []string `json:"workspaces"`
	jwt.RegisteredClaims
}

// Allows reports whether the claims grant access to workspaceID.
func (c *Claims) Allows(workspaceID string) bool {
	return slices.Contains(c.Workspaces, "*") || slices.Contains(c.Workspaces, workspaceID)
}

// Tokens signs and validates HS256 access tokens.
type Tokens struct {
	secret []byte
}

func NewTokens(secret string) *Tokens {
	return &Tokens{secret: []byte(secret)}
}

// Sign issues a token for subject valid for ttl.
func (t *Tokens) Sign(subject string, workspaces []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Workspaces: workspaces,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Validate parses tokenString and returns its claims.
func (t *Tokens) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if !token.Valid {
		return nil, ErrUnauthenticated
	}
	return claims, nil
}

// ExtractToken extracts the token from an Authorization header.
func ExtractToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
		return "", false
	}
	return token, true
}
