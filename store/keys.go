package store

// Namespace prefixes. Every key the subsystem writes lives under exactly one
// of these; they must stay distinct.
const (
	TokenPrefix     = "token:"
	SessionPrefix   = "session:"
	RefreshPrefix   = "refresh:"
	TokenListPrefix = "tokenlist:"
)

// TokenKey maps an access token to its username.
func TokenKey(access string) string { return TokenPrefix + access }

// SessionKey maps an access token to its encoded session.
func SessionKey(access string) string { return SessionPrefix + access }

// RefreshKey maps a refresh token to its username.
func RefreshKey(refresh string) string { return RefreshPrefix + refresh }

// TokenListKey holds the ordered active access tokens of a user.
func TokenListKey(username string) string { return TokenListPrefix + username }
