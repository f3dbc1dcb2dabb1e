package auth

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/halvard-dev/storefront/internal/xerrors"
)

// bcrypt truncates silently beyond 72 bytes, reject instead
const maxPasswordBytes = 72

var ErrPasswordMismatch = xerrors.New("password mismatch")

// HashPassword returns a bcrypt hash of the password at the default cost.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", xerrors.New("empty password")
	}
	if len(password) > maxPasswordBytes {
		return "", xerrors.Newf("password exceeds %d bytes", maxPasswordBytes)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", xerrors.Wrap(err, "hash password")
	}
	return string(hash), nil
}

// CheckPassword compares a stored hash against a candidate password.
func CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrPasswordMismatch
	}
	return nil
}
