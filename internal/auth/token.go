// Package auth issues and verifies the bearer tokens that carry a caller identity across
// HTTP requests.
package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"lending/internal/identity"
)

const issuerName = "lending"

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrEmptySecret  = errors.New("auth: signing secret must not be empty")
)

// Claims is the JWT payload: the caller's role and its librarian or member id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Issuer signs and parses HS256 tokens with a shared secret.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// TTL is how long issued tokens stay valid.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue signs a token for an authenticated caller. Anonymous callers get no token.
func (i *Issuer) Issue(caller identity.Caller) (string, error) {
	if caller.IsAnonymous() {
		return "", errors.New("auth: cannot issue a token for an anonymous caller")
	}
	now := i.now()
	claims := Claims{
		Role: string(caller.Role()),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuerName,
			Subject:   strconv.FormatInt(caller.ID(), 10),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Parse verifies a token and resolves it back to the caller it was issued for.
func (i *Issuer) Parse(tokenString string) (identity.Caller, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return i.secret, nil
		},
		jwt.WithIssuer(issuerName),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return identity.Anonymous, errors.Join(ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return identity.Anonymous, ErrInvalidToken
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return identity.Anonymous, ErrInvalidToken
	}
	caller, err := identity.Parse(claims.Role, id)
	if err != nil || caller.IsAnonymous() {
		return identity.Anonymous, ErrInvalidToken
	}
	return caller, nil
}
