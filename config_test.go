package tokenauth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 3600*time.Second, cfg.DefaultPolicy.AccessExpire)
	require.Equal(t, 604800*time.Second, cfg.DefaultPolicy.RefreshExpire)
	require.Equal(t, 1, cfg.DefaultPolicy.ConcurrentLoginCount)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "empty scheme takes raw header",
			mutate:    func(c *Config) { c.Header.Scheme = "" },
			wantValid: true,
		},
		{
			name:   "empty header name",
			mutate: func(c *Config) { c.Header.Name = " " },
		},
		{
			name:   "scheme with space",
			mutate: func(c *Config) { c.Header.Scheme = "Bearer token" },
		},
		{
			name:   "renewal without threshold",
			mutate: func(c *Config) { c.Renewal.Threshold = 0 },
		},
		{
			name: "renewal disabled ignores threshold",
			mutate: func(c *Config) {
				c.Renewal.Enabled = false
				c.Renewal.Threshold = 0
			},
			wantValid: true,
		},
		{
			name:   "unknown backend",
			mutate: func(c *Config) { c.Store.Backend = "memcached" },
		},
		{
			name:   "zero operation timeout",
			mutate: func(c *Config) { c.Store.OperationTimeout = 0 },
		},
		{
			name:   "local backend without capacity",
			mutate: func(c *Config) { c.Store.LocalMaxEntries = 0 },
		},
		{
			name:   "default policy refresh shorter than access",
			mutate: func(c *Config) { c.DefaultPolicy.RefreshExpire = time.Minute },
		},
		{
			name:   "default policy zero concurrent logins",
			mutate: func(c *Config) { c.DefaultPolicy.ConcurrentLoginCount = 0 },
		},
		{
			name:      "allow rule any method",
			mutate:    func(c *Config) { c.Authorization.Allow = []AllowRule{{Pattern: "/public/**"}} },
			wantValid: true,
		},
		{
			name:   "allow rule relative pattern",
			mutate: func(c *Config) { c.Authorization.Allow = []AllowRule{{Method: "GET", Pattern: "health"}} },
		},
		{
			name:   "allow rule bad method",
			mutate: func(c *Config) { c.Authorization.Allow = []AllowRule{{Method: "G3T", Pattern: "/health"}} },
		},
		{
			name:   "blank role",
			mutate: func(c *Config) { c.Authorization.Roles = []string{"user", ""} },
		},
		{
			name:   "jwt without key",
			mutate: func(c *Config) { c.Tokens.Format = TokenJWT },
		},
		{
			name: "jwt leeway too large",
			mutate: func(c *Config) {
				c.Tokens.Format = TokenJWT
				c.Tokens.JWT.PrivateKey = make([]byte, 64)
				c.Tokens.JWT.Leeway = 3 * time.Minute
			},
		},
		{
			name:   "unknown token format",
			mutate: func(c *Config) { c.Tokens.Format = "paseto" },
		},
		{
			name:   "throttle without attempts",
			mutate: func(c *Config) { c.Security.MaxLoginAttempts = 0 },
		},
		{
			name: "audit without buffer",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantValid {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}

func TestBuilderCopiesConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Authorization.Roles = []string{"user"}
	b := New().WithConfig(cfg)
	cfg.Authorization.Roles[0] = "admin"

	engine, err := b.Build()
	require.NoError(t, err)
	defer engine.Close()
	require.Equal(t, []string{"user"}, engine.Config().Authorization.Roles)
}
