package tokenauth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	internalaudit "github.com/MrEthical07/tokenauth/internal/audit"
	"github.com/MrEthical07/tokenauth/internal/rate"
	"github.com/MrEthical07/tokenauth/jwt"
	"github.com/MrEthical07/tokenauth/permission"
	"github.com/MrEthical07/tokenauth/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles an [Engine]. A Builder is single-use.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	store  store.Store

	strategies map[string]GrantStrategy
	resolver   PolicyResolver

	logger      *zap.Logger
	auditSink   AuditSink
	renewalHook RenewalHook
	now         func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config:     DefaultConfig(),
		strategies: make(map[string]GrantStrategy),
	}
}

// WithConfig replaces the configuration with a copy of cfg.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis selects the shared Redis backend and enables the failed-login
// throttle.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStore uses s as the session store. It takes precedence over WithRedis
// and the configured backend; a Redis client, if also given, still backs the
// login throttle.
func (b *Builder) WithStore(s store.Store) *Builder {
	b.store = s
	return b
}

// WithGrantStrategy registers s for loginType. Registering the same type
// twice replaces the earlier strategy.
func (b *Builder) WithGrantStrategy(loginType string, s GrantStrategy) *Builder {
	b.strategies[loginType] = s
	return b
}

// WithGrantStrategies registers every entry of m. The map is copied.
func (b *Builder) WithGrantStrategies(m map[string]GrantStrategy) *Builder {
	for loginType, s := range m {
		b.strategies[loginType] = s
	}
	return b
}

// WithPolicyResolver sets the client policy source.
func (b *Builder) WithPolicyResolver(r PolicyResolver) *Builder {
	b.resolver = r
	return b
}

// WithLogger sets the structured logger. The engine logs under the
// "tokenauth" name.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets the audit destination. Audit must also be enabled in
// the configuration.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithRenewalHook observes every detached renewal outcome.
func (b *Builder) WithRenewalHook(hook RenewalHook) *Builder {
	b.renewalHook = hook
	return b
}

// WithClock overrides the wall clock used by the local backend and for
// session issue times.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the authenticate latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a ready [Engine].
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("tokenauth")

	// -------- SESSION STORE --------
	var backend store.Store
	switch {
	case b.store != nil:
		backend = b.store
	case b.redis != nil:
		backend = store.NewRedis(b.redis, cfg.Store.KeyPrefix)
	case cfg.Store.Backend == BackendRedis:
		return nil, errors.New("redis backend requires a redis client")
	default:
		backend = store.NewLocal(cfg.Store.LocalMaxEntries, cfg.Store.LocalMaxAge, store.WithClock(now))
	}

	// -------- GRANT STRATEGIES --------
	strategies := make(map[string]GrantStrategy, len(b.strategies))
	for loginType, s := range b.strategies {
		loginType = strings.TrimSpace(loginType)
		if loginType == "" {
			return nil, errors.New("grant strategy login type must not be empty")
		}
		if s == nil {
			return nil, fmt.Errorf("grant strategy %q is nil", loginType)
		}
		strategies[loginType] = s
	}

	// -------- AUTHORIZATION --------
	allow, err := cfg.allowList()
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:     cfg,
		store:      backend,
		strategies: strategies,
		resolver:   b.resolver,
		policy:     permission.Policy{Allow: allow, Roles: permission.NewRoleSet(cfg.Authorization.Roles...)},
		logger:     logger,
		now:        now,
	}

	// -------- TOKENS --------
	if cfg.Tokens.Format == TokenJWT {
		jm, err := jwt.NewManager(jwt.Config{
			SigningMethod: jwt.SigningMethod(cfg.Tokens.JWT.SigningMethod),
			PrivateKey:    cloneBytes(cfg.Tokens.JWT.PrivateKey),
			PublicKey:     cloneBytes(cfg.Tokens.JWT.PublicKey),
			Issuer:        cfg.Tokens.JWT.Issuer,
			Audience:      cfg.Tokens.JWT.Audience,
			Leeway:        cfg.Tokens.JWT.Leeway,
			KeyID:         cfg.Tokens.JWT.KeyID,
		})
		if err != nil {
			return nil, err
		}
		engine.jwtManager = jm
	}

	if b.redis != nil && cfg.Security.EnableLoginThrottle {
		engine.rateLimiter = rate.New(b.redis, rate.Config{
			EnableIPThrottle:      cfg.Security.EnableIPThrottle,
			MaxLoginAttempts:      cfg.Security.MaxLoginAttempts,
			LoginCooldownDuration: cfg.Security.LoginCooldown,
			KeyPrefix:             cfg.Store.KeyPrefix,
		})
	}
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	engine.initFlows(b.renewalHook)

	b.built = true
	logger.Debug("engine built",
		zap.String("store", fmt.Sprintf("%T", backend)),
		zap.String("token_format", string(cfg.Tokens.Format)),
		zap.Int("grant_strategies", len(strategies)),
		zap.Bool("login_throttle", engine.rateLimiter != nil),
	)
	return engine, nil
}
