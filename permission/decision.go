package permission

// Decision is the outcome of [Policy.Decide].
type Decision uint8

const (
	// Deny means the request must not proceed.
	Deny Decision = iota
	// AllowPreflight is granted to every OPTIONS request.
	AllowPreflight
	// AllowExempt is granted by the allow list without authentication.
	AllowExempt
	// AllowRole is granted to an authenticated principal with a recognized role.
	AllowRole
)

func (d Decision) Allowed() bool { return d != Deny }

func (d Decision) String() string {
	switch d {
	case AllowPreflight:
		return "allow_preflight"
	case AllowExempt:
		return "allow_exempt"
	case AllowRole:
		return "allow_role"
	default:
		return "deny"
	}
}

// Policy combines the allow list and the recognized roles.
type Policy struct {
	Allow *AllowList
	Roles RoleSet
}

// RequiresAuthentication reports whether a request must present a valid
// session before [Policy.Decide] can allow it.
func (p Policy) RequiresAuthentication(method, requestPath string) bool {
	return !IsPreflight(method) && !p.Allow.Exempt(method, requestPath)
}

// Decide evaluates a request. authenticated and roles describe the
// principal; pass false and nil for anonymous requests.
func (p Policy) Decide(method, requestPath string, authenticated bool, roles []string) Decision {
	if IsPreflight(method) {
		return AllowPreflight
	}
	if p.Allow.Exempt(method, requestPath) {
		return AllowExempt
	}
	if authenticated && p.Roles.Intersects(roles) {
		return AllowRole
	}
	return Deny
}
