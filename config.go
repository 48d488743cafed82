package tokenauth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/tokenauth/permission"
)

// Config is the full engine configuration. Build deep-copies it, so the
// caller may reuse or mutate its value afterwards.
type Config struct {
	Header        HeaderConfig
	Renewal       RenewalConfig
	Store         StoreConfig
	DefaultPolicy ClientPolicy
	Authorization AuthorizationConfig
	Tokens        TokenConfig
	Security      SecurityConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
}

/*
====================================
HEADER CONFIG
====================================
*/

// HeaderConfig names the inbound credential header and its scheme prefix.
// Scheme matching is case-insensitive; an empty scheme takes the whole
// header value as the token.
type HeaderConfig struct {
	Name   string
	Scheme string
}

/*
====================================
RENEWAL CONFIG
====================================
*/

// RenewalConfig controls sliding renewal. When the token pointer has at
// most Threshold left, a detached Extend by min(Threshold, remaining) is
// launched. Timeout bounds each Extend call; a timed-out call is retried
// once.
type RenewalConfig struct {
	Enabled   bool
	Threshold time.Duration
	Timeout   time.Duration
}

/*
====================================
STORE CONFIG
====================================
*/

// StoreBackend selects the session store implementation when no store or
// Redis client is given to the builder explicitly.
type StoreBackend string

const (
	// BackendLocal is the single-process bounded cache.
	BackendLocal StoreBackend = "local"
	// BackendRedis is the shared Redis backend. It requires WithRedis.
	BackendRedis StoreBackend = "redis"
)

// StoreConfig configures the session store.
type StoreConfig struct {
	Backend          StoreBackend
	OperationTimeout time.Duration
	KeyPrefix        string
	LocalMaxEntries  int
	LocalMaxAge      time.Duration
}

/*
====================================
AUTHORIZATION CONFIG
====================================
*/

// AllowRule exempts Pattern from authentication for Method. An empty Method
// or "*" applies to every method.
type AllowRule struct {
	Method  string
	Pattern string
}

// AuthorizationConfig is the static authorization policy.
type AuthorizationConfig struct {
	Allow []AllowRule
	Roles []string
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenFormat selects how access and refresh tokens are minted.
type TokenFormat string

const (
	// TokenOpaque mints random URL-safe tokens.
	TokenOpaque TokenFormat = "opaque"
	// TokenJWT mints signed tokens. They are still resolved through the
	// store; the signature lets forged tokens fail without a round trip.
	TokenJWT TokenFormat = "jwt"
)

// TokenConfig configures token minting.
type TokenConfig struct {
	Format TokenFormat
	JWT    JWTConfig
}

// JWTConfig holds signing settings used when Format is TokenJWT.
type JWTConfig struct {
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig configures the failed-login throttle. The throttle needs a
// Redis client and is skipped otherwise.
type SecurityConfig struct {
	EnableLoginThrottle bool
	EnableIPThrottle    bool
	MaxLoginAttempts    int
	LoginCooldown       time.Duration
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig configures the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig enables in-process counters and the authenticate latency
// histogram.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultClientPolicy is used when the policy resolver does not know a client.
func DefaultClientPolicy() ClientPolicy {
	return ClientPolicy{
		AccessExpire:         3600 * time.Second,
		RefreshExpire:        604800 * time.Second,
		ConcurrentLoginCount: 1,
	}
}

// DefaultConfig returns a configuration for a single-process deployment.
func DefaultConfig() Config {
	return Config{
		Header: HeaderConfig{
			Name:   "Authorization",
			Scheme: "Bearer",
		},
		Renewal: RenewalConfig{
			Enabled:   true,
			Threshold: 6 * time.Minute,
			Timeout:   250 * time.Millisecond,
		},
		Store: StoreConfig{
			Backend:          BackendLocal,
			OperationTimeout: 250 * time.Millisecond,
			LocalMaxEntries:  100_000,
			LocalMaxAge:      7 * 24 * time.Hour,
		},
		DefaultPolicy: DefaultClientPolicy(),
		Tokens: TokenConfig{
			Format: TokenOpaque,
			JWT: JWTConfig{
				SigningMethod: "ed25519",
			},
		},
		Security: SecurityConfig{
			EnableLoginThrottle: true,
			EnableIPThrottle:    false,
			MaxLoginAttempts:    5,
			LoginCooldown:       15 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Tokens.JWT.PrivateKey = cloneBytes(cfg.Tokens.JWT.PrivateKey)
	out.Tokens.JWT.PublicKey = cloneBytes(cfg.Tokens.JWT.PublicKey)
	out.Authorization.Allow = append([]AllowRule(nil), cfg.Authorization.Allow...)
	out.Authorization.Roles = append([]string(nil), cfg.Authorization.Roles...)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// Header
	if strings.TrimSpace(c.Header.Name) == "" {
		return errors.New("Header Name must not be empty")
	}
	if strings.ContainsAny(c.Header.Scheme, " \t") {
		return errors.New("Header Scheme must be a single word")
	}

	// Renewal
	if c.Renewal.Enabled {
		if c.Renewal.Threshold <= 0 {
			return errors.New("Renewal Threshold must be > 0 when renewal is enabled")
		}
		if c.Renewal.Timeout <= 0 {
			return errors.New("Renewal Timeout must be > 0 when renewal is enabled")
		}
	}

	// Store
	switch c.Store.Backend {
	case BackendLocal, BackendRedis:
	default:
		return fmt.Errorf("Store Backend %q is invalid", c.Store.Backend)
	}
	if c.Store.OperationTimeout <= 0 {
		return errors.New("Store OperationTimeout must be > 0")
	}
	if c.Store.Backend == BackendLocal {
		if c.Store.LocalMaxEntries <= 0 {
			return errors.New("Store LocalMaxEntries must be > 0")
		}
		if c.Store.LocalMaxAge <= 0 {
			return errors.New("Store LocalMaxAge must be > 0")
		}
	}

	// Default policy
	if err := c.DefaultPolicy.validate(); err != nil {
		return fmt.Errorf("DefaultPolicy: %w", err)
	}

	// Authorization
	if _, err := c.allowList(); err != nil {
		return fmt.Errorf("Authorization Allow: %w", err)
	}
	for _, role := range c.Authorization.Roles {
		if strings.TrimSpace(role) == "" {
			return errors.New("Authorization Roles must not contain empty names")
		}
	}

	// Tokens
	switch c.Tokens.Format {
	case TokenOpaque:
	case TokenJWT:
		if c.Tokens.JWT.SigningMethod != "ed25519" && c.Tokens.JWT.SigningMethod != "hs256" {
			return errors.New("unsupported JWT signing method")
		}
		if len(c.Tokens.JWT.PrivateKey) == 0 {
			return errors.New("JWT tokens require PrivateKey")
		}
		if c.Tokens.JWT.Leeway < 0 || c.Tokens.JWT.Leeway > 2*time.Minute {
			return errors.New("JWT Leeway must be between 0 and 2m")
		}
	default:
		return fmt.Errorf("Tokens Format %q is invalid", c.Tokens.Format)
	}

	// Security
	if c.Security.EnableLoginThrottle {
		if c.Security.MaxLoginAttempts <= 0 {
			return errors.New("Security MaxLoginAttempts must be > 0")
		}
		if c.Security.LoginCooldown <= 0 {
			return errors.New("Security LoginCooldown must be > 0")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}
	return nil
}

// allowList compiles the allow rules into a frozen [permission.AllowList].
func (c *Config) allowList() (*permission.AllowList, error) {
	allow := permission.NewAllowList()
	for _, rule := range c.Authorization.Allow {
		method := strings.ToUpper(strings.TrimSpace(rule.Method))
		if method != permission.AnyMethod && !validMethod(method) {
			return nil, fmt.Errorf("invalid method %q", rule.Method)
		}
		if err := allow.Add(method, rule.Pattern); err != nil {
			return nil, fmt.Errorf("%s %s: %w", method, rule.Pattern, err)
		}
	}
	allow.Freeze()
	return allow, nil
}

func validMethod(m string) bool {
	for _, r := range m {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
