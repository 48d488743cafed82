package tokenauth

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override read by [LoadConfig], for
// example TOKENAUTH_RENEWAL_THRESHOLD=2m.
const EnvPrefix = "TOKENAUTH"

// LoadConfig reads a [Config] from v on top of [DefaultConfig]. Environment
// variables named EnvPrefix_SECTION_KEY override file values. The result
// is validated.
//
// Allow rules are strings of the form "METHOD /pattern", "METHOD:/pattern"
// or "/pattern" for every method. JWT keys are read from the files named by
// tokens.jwt.private_key_file and tokens.jwt.public_key_file.
func LoadConfig(v *viper.Viper) (Config, error) {
	if v == nil {
		v = viper.New()
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setConfigDefaults(v, DefaultConfig())

	cfg := Config{
		Header: HeaderConfig{
			Name:   v.GetString("header.name"),
			Scheme: v.GetString("header.scheme"),
		},
		Renewal: RenewalConfig{
			Enabled:   v.GetBool("renewal.enabled"),
			Threshold: v.GetDuration("renewal.threshold"),
			Timeout:   v.GetDuration("renewal.timeout"),
		},
		Store: StoreConfig{
			Backend:          StoreBackend(strings.ToLower(v.GetString("store.backend"))),
			OperationTimeout: v.GetDuration("store.operation_timeout"),
			KeyPrefix:        v.GetString("store.key_prefix"),
			LocalMaxEntries:  v.GetInt("store.local_max_entries"),
			LocalMaxAge:      v.GetDuration("store.local_max_age"),
		},
		DefaultPolicy: ClientPolicy{
			AccessExpire:         v.GetDuration("policy.access_expire"),
			RefreshExpire:        v.GetDuration("policy.refresh_expire"),
			ConcurrentLoginCount: v.GetInt("policy.concurrent_login_count"),
			AutoApprove:          v.GetBool("policy.auto_approve"),
			ClientType:           v.GetInt32("policy.client_type"),
		},
		Authorization: AuthorizationConfig{
			Roles: v.GetStringSlice("authorization.roles"),
		},
		Tokens: TokenConfig{
			Format: TokenFormat(strings.ToLower(v.GetString("tokens.format"))),
			JWT: JWTConfig{
				SigningMethod: strings.ToLower(v.GetString("tokens.jwt.signing_method")),
				Issuer:        v.GetString("tokens.jwt.issuer"),
				Audience:      v.GetString("tokens.jwt.audience"),
				Leeway:        v.GetDuration("tokens.jwt.leeway"),
				KeyID:         v.GetString("tokens.jwt.key_id"),
			},
		},
		Security: SecurityConfig{
			EnableLoginThrottle: v.GetBool("security.enable_login_throttle"),
			EnableIPThrottle:    v.GetBool("security.enable_ip_throttle"),
			MaxLoginAttempts:    v.GetInt("security.max_login_attempts"),
			LoginCooldown:       v.GetDuration("security.login_cooldown"),
		},
		Audit: AuditConfig{
			Enabled:    v.GetBool("audit.enabled"),
			BufferSize: v.GetInt("audit.buffer_size"),
			DropIfFull: v.GetBool("audit.drop_if_full"),
		},
		Metrics: MetricsConfig{
			Enabled:                 v.GetBool("metrics.enabled"),
			EnableLatencyHistograms: v.GetBool("metrics.enable_latency_histograms"),
		},
	}

	for _, raw := range v.GetStringSlice("authorization.allow") {
		cfg.Authorization.Allow = append(cfg.Authorization.Allow, parseAllowRule(raw))
	}

	var err error
	if cfg.Tokens.JWT.PrivateKey, err = readKeyFile(v.GetString("tokens.jwt.private_key_file")); err != nil {
		return Config{}, err
	}
	if cfg.Tokens.JWT.PublicKey, err = readKeyFile(v.GetString("tokens.jwt.public_key_file")); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setConfigDefaults(v *viper.Viper, d Config) {
	v.SetDefault("header.name", d.Header.Name)
	v.SetDefault("header.scheme", d.Header.Scheme)

	v.SetDefault("renewal.enabled", d.Renewal.Enabled)
	v.SetDefault("renewal.threshold", d.Renewal.Threshold)
	v.SetDefault("renewal.timeout", d.Renewal.Timeout)

	v.SetDefault("store.backend", string(d.Store.Backend))
	v.SetDefault("store.operation_timeout", d.Store.OperationTimeout)
	v.SetDefault("store.key_prefix", d.Store.KeyPrefix)
	v.SetDefault("store.local_max_entries", d.Store.LocalMaxEntries)
	v.SetDefault("store.local_max_age", d.Store.LocalMaxAge)

	v.SetDefault("policy.access_expire", d.DefaultPolicy.AccessExpire)
	v.SetDefault("policy.refresh_expire", d.DefaultPolicy.RefreshExpire)
	v.SetDefault("policy.concurrent_login_count", d.DefaultPolicy.ConcurrentLoginCount)
	v.SetDefault("policy.auto_approve", d.DefaultPolicy.AutoApprove)
	v.SetDefault("policy.client_type", d.DefaultPolicy.ClientType)

	v.SetDefault("authorization.allow", []string{})
	v.SetDefault("authorization.roles", []string{})

	v.SetDefault("tokens.format", string(d.Tokens.Format))
	v.SetDefault("tokens.jwt.signing_method", d.Tokens.JWT.SigningMethod)
	v.SetDefault("tokens.jwt.issuer", "")
	v.SetDefault("tokens.jwt.audience", "")
	v.SetDefault("tokens.jwt.leeway", d.Tokens.JWT.Leeway)
	v.SetDefault("tokens.jwt.key_id", "")
	v.SetDefault("tokens.jwt.private_key_file", "")
	v.SetDefault("tokens.jwt.public_key_file", "")

	v.SetDefault("security.enable_login_throttle", d.Security.EnableLoginThrottle)
	v.SetDefault("security.enable_ip_throttle", d.Security.EnableIPThrottle)
	v.SetDefault("security.max_login_attempts", d.Security.MaxLoginAttempts)
	v.SetDefault("security.login_cooldown", d.Security.LoginCooldown)

	v.SetDefault("audit.enabled", d.Audit.Enabled)
	v.SetDefault("audit.buffer_size", d.Audit.BufferSize)
	v.SetDefault("audit.drop_if_full", d.Audit.DropIfFull)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.enable_latency_histograms", d.Metrics.EnableLatencyHistograms)
}

func parseAllowRule(raw string) AllowRule {
	raw = strings.TrimSpace(raw)
	if method, pattern, ok := strings.Cut(raw, " "); ok {
		return AllowRule{Method: method, Pattern: strings.TrimSpace(pattern)}
	}
	if method, pattern, ok := strings.Cut(raw, ":"); ok && !strings.HasPrefix(raw, "/") {
		return AllowRule{Method: method, Pattern: pattern}
	}
	return AllowRule{Pattern: raw}
}

func readKeyFile(path string) ([]byte, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	return b, nil
}
