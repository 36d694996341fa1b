package request

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// ErrBadCredentials is returned when an Authorization header cannot be
// parsed or its credentials do not verify.
var ErrBadCredentials = errors.New("request: bad credentials")

// Credentials is the identity extracted from an Authorization header before
// request construction. Username is empty for bearer tokens until the token
// is verified.
type Credentials struct {
	Scheme   string // "Basic" or "Bearer"
	Username string
	Password string
	Token    string
}

// ParseAuthorization splits an Authorization header into credentials. Basic
// credentials are base64-decoded into username and password; Bearer tokens
// are returned opaque for VerifyJWT.
func ParseAuthorization(header string) (Credentials, error) {
	scheme, rest, ok := strings.Cut(header, " ")
	if !ok || rest == "" {
		return Credentials{}, fmt.Errorf("%w: malformed header", ErrBadCredentials)
	}

	switch {
	case strings.EqualFold(scheme, "Basic"):
		decoded, err := base64.StdEncoding.DecodeString(rest)
		if err != nil {
			return Credentials{}, fmt.Errorf("%w: %v", ErrBadCredentials, err)
		}
		username, password, ok := strings.Cut(string(decoded), ":")
		if !ok || username == "" {
			return Credentials{}, fmt.Errorf("%w: missing username", ErrBadCredentials)
		}
		return Credentials{Scheme: "Basic", Username: username, Password: password}, nil

	case strings.EqualFold(scheme, "Bearer"):
		return Credentials{Scheme: "Bearer", Token: rest}, nil
	}
	return Credentials{}, fmt.Errorf("%w: unsupported scheme %q", ErrBadCredentials, scheme)
}

// VerifyBasic checks Basic credentials against a stored bcrypt hash.
func VerifyBasic(c Credentials, passwordHash []byte) error {
	if c.Scheme != "Basic" {
		return fmt.Errorf("%w: not basic credentials", ErrBadCredentials)
	}
	if err := bcrypt.CompareHashAndPassword(passwordHash, []byte(c.Password)); err != nil {
		return fmt.Errorf("%w: %v", ErrBadCredentials, err)
	}
	return nil
}

// VerifyJWT validates a Bearer token against an HMAC key and returns the
// subject claim as the authenticated username.
func VerifyJWT(c Credentials, key []byte) (string, error) {
	if c.Scheme != "Bearer" {
		return "", fmt.Errorf("%w: not a bearer token", ErrBadCredentials)
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(c.Token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return key, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadCredentials, err)
	}
	if !token.Valid || claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrBadCredentials)
	}
	return claims.Subject, nil
}
