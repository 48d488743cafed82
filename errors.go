package tokenauth

import (
	"errors"

	"github.com/MrEthical07/tokenauth/store"
)

var (
	// ErrUnauthenticated is returned for a missing, malformed, expired,
	// revoked or evicted token. Maps to 401.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden is returned when an authenticated principal holds none of
	// the recognized roles. Maps to 403.
	ErrForbidden = errors.New("forbidden")
	// ErrStoreUnavailable reports an infrastructure failure or timeout of the
	// session store. It is the same value as store.ErrUnavailable so errors.Is
	// matches at every layer. Maps to 503.
	ErrStoreUnavailable = store.ErrUnavailable
	// ErrSessionPersist is returned when issuance could not write the full
	// session. The login has failed even though credentials were valid.
	ErrSessionPersist = errors.New("session persist failed")
	// ErrInvalidLoginPayload is returned for a malformed credentials body.
	ErrInvalidLoginPayload = errors.New("invalid login payload")
	// ErrUnknownLoginType is returned when no grant strategy is registered for
	// the requested login type. It wraps ErrInvalidLoginPayload.
	ErrUnknownLoginType = &wrappedError{msg: "unknown login type", parent: ErrInvalidLoginPayload}
	// ErrInvalidCredentials is returned when a grant strategy rejects the
	// credentials.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrLoginRateLimited is returned when failed logins for a username
	// exceeded the configured window.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrEngineNotReady is returned by operations on a nil or closed Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

type wrappedError struct {
	msg    string
	parent error
}

func (e *wrappedError) Error() string { return e.msg }

func (e *wrappedError) Unwrap() error { return e.parent }
