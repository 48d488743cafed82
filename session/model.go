package session

import "time"

// Session is the persisted authentication state behind one access token.
//
// It is written once at issuance and never mutated afterwards; only the TTL
// of its store entries changes.
type Session struct {
	SchemaVersion uint8

	AccessToken  string
	RefreshToken string

	UserID   string
	Username string
	Roles    []string

	ClientType int32

	// AccessExpiresIn and RefreshExpiresIn are fixed at issuance from the
	// client policy.
	AccessExpiresIn  time.Duration
	RefreshExpiresIn time.Duration

	IssuedAt int64
}

// HasRole reports whether role is one of the session roles.
func (s *Session) HasRole(role string) bool {
	for _, r := range s.Roles {
		if r == role {
			return true
		}
	}
	return false
}
