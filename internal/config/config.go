package config

import (
	"encoding/hex"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

var knownWeakSecrets = []string{
	"change-me", "dev-secret-change-me", "secret", "admin", "password",
}

type Config struct {
	Port                   int    `env:"PORT" envDefault:"8080"`
	IdentityDatabaseURL    string `env:"IDENTITY_DATABASE_URL,required"`
	ContentDatabaseURL     string `env:"CONTENT_DATABASE_URL,required"`
	RedisURL               string `env:"REDIS_URL"`
	SessionSecret          string `env:"SESSION_SECRET"`
	EncryptionKey          string `env:"ENCRYPTION_KEY"`
	LoginMaxFailures       int    `env:"LOGIN_MAX_FAILURES" envDefault:"5"`
	LoginWindowMinutes     int    `env:"LOGIN_WINDOW_MINUTES" envDefault:"15"`
	AttemptRetentionDays   int    `env:"ATTEMPT_RETENTION_DAYS" envDefault:"30"`
	CleanupPercent         int    `env:"CLEANUP_PERCENT" envDefault:"2"`
	SessionLifetimeMinutes int    `env:"SESSION_LIFETIME_MINUTES" envDefault:"60"`
	InvitationTTLHours     int    `env:"INVITATION_TTL_HOURS" envDefault:"48"`
	TOTPIssuer             string `env:"TOTP_ISSUER" envDefault:"Intranet"`
	RedeemLimitPerMinute   int    `env:"REDEEM_LIMIT_PER_MINUTE" envDefault:"10"`
	CookieSecure           bool   `env:"COOKIE_SECURE" envDefault:"false"`
	RunMigrations          bool   `env:"RUN_MIGRATIONS" envDefault:"true"`
	LogLevel               string `env:"LOG_LEVEL" envDefault:"info"`

	// TrustedProxies lists the proxy addresses or CIDRs whose forwarding
	// headers are believed. Empty means clients are keyed by socket address.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`
}

func (c *Config) LoginWindow() time.Duration {
	return time.Duration(c.LoginWindowMinutes) * time.Minute
}

func (c *Config) AttemptRetention() time.Duration {
	return time.Duration(c.AttemptRetentionDays) * 24 * time.Hour
}

func (c *Config) SessionLifetime() time.Duration {
	return time.Duration(c.SessionLifetimeMinutes) * time.Minute
}

func (c *Config) InvitationTTL() time.Duration {
	return time.Duration(c.InvitationTTLHours) * time.Hour
}

// CleanupChance returns the per-call probability of running the attempt sweep.
func (c *Config) CleanupChance() float64 {
	if c.CleanupPercent <= 0 {
		return 0
	}
	if c.CleanupPercent >= 100 {
		return 1
	}
	return float64(c.CleanupPercent) / 100
}

// TrustedProxyPrefixes parses TrustedProxies. Bare addresses become
// single-host prefixes.
func (c *Config) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	var prefixes []netip.Prefix
	for _, raw := range c.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("TRUSTED_PROXIES entry %q: %w", raw, err)
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("TRUSTED_PROXIES entry %q: %w", raw, err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate(isProduction bool) error {
	if c.LoginMaxFailures <= 0 {
		return fmt.Errorf("LOGIN_MAX_FAILURES must be positive")
	}
	if c.LoginWindowMinutes <= 0 {
		return fmt.Errorf("LOGIN_WINDOW_MINUTES must be positive")
	}
	if c.SessionLifetimeMinutes <= 0 {
		return fmt.Errorf("SESSION_LIFETIME_MINUTES must be positive")
	}
	if c.InvitationTTLHours <= 0 {
		return fmt.Errorf("INVITATION_TTL_HOURS must be positive")
	}

	if _, err := c.TrustedProxyPrefixes(); err != nil {
		return err
	}

	if c.EncryptionKey != "" {
		key, err := hex.DecodeString(c.EncryptionKey)
		if err != nil || len(key) != 32 {
			return fmt.Errorf("ENCRYPTION_KEY must be 64 hex characters (generate with: openssl rand -hex 32)")
		}
	}

	if isProduction {
		if err := validateSecret("SESSION_SECRET", c.SessionSecret); err != nil {
			return err
		}

		if c.RedisURL == "" {
			log.Warn().Msg("REDIS_URL is empty in production: sessions are kept in process memory and lost on restart")
		} else if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
		if c.EncryptionKey == "" {
			log.Warn().Msg("ENCRYPTION_KEY is empty in production: TOTP secrets will not be encrypted at rest")
		}
		if !c.CookieSecure {
			log.Warn().Msg("COOKIE_SECURE is false in production: session cookies may be sent over plain HTTP")
		}
	}

	return nil
}

func validateSecret(name, value string) error {
	if len(value) < 32 {
		return fmt.Errorf("%s must be at least 32 characters in production (generate with: openssl rand -base64 32)", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
