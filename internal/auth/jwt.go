package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"staffpresence/internal/directory"
)

// Token is a signed access token.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// Claims identifies the caller: the person identifier travels as the
// registered subject, alongside the role family (teacher, employee, other)
// their requests are posted under.
type Claims struct {
	Role directory.Role `json:"role"`
	jwt.RegisteredClaims
}

// Identifier is the caller's person identifier.
func (c Claims) Identifier() string {
	return c.Subject
}

// Issue signs an access token for identifier.
func Issue(identifier string, role directory.Role, issuer, key string, ttl time.Duration) (Token, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return Token{}, errors.New("identifier is required")
	}
	if key == "" {
		return Token{}, errors.New("signing key is required")
	}
	now := time.Now()
	exp := now.Add(ttl)

	claims := Claims{
		Role: directory.ParseRole(string(role)),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   identifier,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		return Token{}, err
	}
	return Token{Value: signed, ExpiresAt: exp}, nil
}

// Parse validates a token and returns claims.
func Parse(tokenStr, key, issuer string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(key), nil
	})
	if err != nil {
		return Claims{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, errors.New("invalid token")
	}
	if issuer != "" && claims.Issuer != issuer {
		return Claims{}, errors.New("issuer mismatch")
	}
	claims.Role = directory.ParseRole(string(claims.Role))
	return *claims, nil
}
