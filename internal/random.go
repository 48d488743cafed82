package internal

import (
	"crypto/rand"
	"encoding/base64"
)

const (
	accessTokenRawSize  = 32
	refreshTokenRawSize = 48

	// MaxTokenLength bounds any presented bearer token, opaque or signed.
	MaxTokenLength = 4096
)

func newOpaqueToken(size int) (string, error) {
	raw := make([]byte, size)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// NewAccessToken returns a 256-bit random base64url token.
func NewAccessToken() (string, error) {
	return newOpaqueToken(accessTokenRawSize)
}

// NewRefreshToken returns a 384-bit random base64url token.
func NewRefreshToken() (string, error) {
	return newOpaqueToken(refreshTokenRawSize)
}

// WellFormedToken reports whether token can be one this package or a JWT
// signer produced. It keeps arbitrary header bytes out of store keys.
func WellFormedToken(token string) bool {
	if token == "" || len(token) > MaxTokenLength {
		return false
	}
	for i := 0; i < len(token); i++ {
		c := token[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.':
		default:
			return false
		}
	}
	return true
}
