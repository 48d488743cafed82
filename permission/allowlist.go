package permission

import (
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

// AnyMethod registers a pattern for every HTTP method.
const AnyMethod = "*"

// AllowList holds path patterns exempt from authentication.
//
// Patterns are registered during setup and the list is then frozen; after
// [AllowList.Freeze] it is safe for concurrent use.
type AllowList struct {
	mu       sync.RWMutex
	byMethod map[string][]string
	any      []string
	frozen   bool
}

// NewAllowList returns an empty, unfrozen [AllowList].
func NewAllowList() *AllowList {
	return &AllowList{byMethod: make(map[string][]string)}
}

// Add registers pattern for method. An empty method or [AnyMethod] puts the
// pattern in the all-methods set.
func (a *AllowList) Add(method, pattern string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.frozen {
		return errors.New("allow list frozen")
	}
	pattern = strings.TrimSpace(pattern)
	if pattern == "" || !strings.HasPrefix(pattern, "/") {
		return fmt.Errorf("allow pattern %q must be an absolute path", pattern)
	}
	if !doublestar.ValidatePattern(pattern) {
		return fmt.Errorf("allow pattern %q is malformed", pattern)
	}

	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" || method == AnyMethod {
		a.any = append(a.any, pattern)
		return nil
	}
	a.byMethod[method] = append(a.byMethod[method], pattern)
	return nil
}

// Freeze prevents further registrations.
func (a *AllowList) Freeze() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.frozen = true
}

// Len returns the number of registered patterns across all sets.
func (a *AllowList) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	n := len(a.any)
	for _, patterns := range a.byMethod {
		n += len(patterns)
	}
	return n
}

// Exempt reports whether method and path match the method-specific set or
// the all-methods set.
func (a *AllowList) Exempt(method, requestPath string) bool {
	if a == nil {
		return false
	}
	cleaned := cleanPath(requestPath)

	a.mu.RLock()
	defer a.mu.RUnlock()

	if matchAny(a.byMethod[strings.ToUpper(method)], cleaned) {
		return true
	}
	return matchAny(a.any, cleaned)
}

func matchAny(patterns []string, p string) bool {
	for _, pattern := range patterns {
		// Patterns are validated on Add, so the error is unreachable.
		if ok, _ := doublestar.Match(pattern, p); ok {
			return true
		}
	}
	return false
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if p[0] != '/' {
		p = "/" + p
	}
	return path.Clean(p)
}

// IsPreflight reports whether method is a CORS preflight.
func IsPreflight(method string) bool {
	return strings.EqualFold(method, http.MethodOptions)
}
