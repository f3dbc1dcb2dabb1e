// Package auth issues and verifies the bearer tokens used by the API
// route groups, and hashes user passwords.
package auth

import (
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/halvard-dev/storefront/internal/xerrors"
)

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

var (
	ErrInvalidToken = xerrors.New("invalid token")
	ErrNoBearer     = xerrors.New("missing bearer token")
)

// Claims are the storefront's JWT claims: the standard registered set
// plus a role for the admin route gate. Subject carries the user ID.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// UserID returns the subject as a numeric user ID.
func (c *Claims) UserID() (int64, error) {
	if c.Subject == "" {
		return 0, xerrors.New("token has empty subject")
	}
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, xerrors.Wrap(err, "token subject is not a user id")
	}
	return id, nil
}

// TokenIssuer signs and verifies HMAC-SHA256 tokens with a shared secret.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func NewTokenIssuer(secret, issuer string, ttl time.Duration) (*TokenIssuer, error) {
	if secret == "" {
		return nil, xerrors.New("auth: empty signing secret")
	}
	if issuer == "" {
		return nil, xerrors.New("auth: empty issuer")
	}
	if ttl <= 0 {
		return nil, xerrors.Newf("auth: invalid ttl %v", ttl)
	}
	return &TokenIssuer{secret: []byte(secret), issuer: issuer, ttl: ttl}, nil
}

// Issue returns a signed token for the given user.
func (t *TokenIssuer) Issue(userID int64, role string) (string, error) {
	now := time.Now()
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", xerrors.Wrap(err, "sign token")
	}
	return signed, nil
}

// Parse verifies the signature, issuer, and expiry, and returns the claims.
func (t *TokenIssuer) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, xerrors.Newf("unexpected signing method %q", token.Method.Alg())
		}
		return t.secret, nil
	}, jwt.WithIssuer(t.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, xerrors.Wrap(ErrInvalidToken, err.Error())
	}
	return claims, nil
}

// ParseBearer extracts the token from an Authorization header.
func ParseBearer(authorization string) (string, error) {
	parts := strings.Fields(strings.TrimSpace(authorization))
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", ErrNoBearer
	}
	return parts[1], nil
}
