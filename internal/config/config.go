package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// DefaultJWTSecret is used when JWT_SECRET is unset. Fine for local runs only.
const DefaultJWTSecret = "dev-secret"

type Config struct {
	Port           string        `env:"PORT,            default=8080"`
	DatabaseURL    string        `env:"DATABASE_URL,    default=sqlite://scoreboard.db"`
	JWTSecret      string        `env:"JWT_SECRET,      default=dev-secret"`
	TokenTTL       time.Duration `env:"TOKEN_TTL,       default=168h"`
	ClientOrigin   string        `env:"CLIENT_ORIGIN,   default=*"`
	StaticDir      string        `env:"STATIC_DIR,      default=./public"`
	LogLevel       string        `env:"LOG_LEVEL,       default=info"`
	LogPretty      bool          `env:"LOG_PRETTY,      default=false"`
	MetricsEnabled bool          `env:"METRICS_ENABLED, default=true"`
}

// Load reads a .env file if present, then the process environment.
func Load(ctx context.Context) (*Config, error) {
	_ = godotenv.Load()
	return load(ctx, envconfig.OsLookuper())
}

func load(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return nil, fmt.Errorf("config: JWT_SECRET must not be blank")
	}
	return &cfg, nil
}

// Addr is the listen address for Port.
func (c *Config) Addr() string { return ":" + c.Port }

// Origins splits ClientOrigin on commas. "*" means any origin.
func (c *Config) Origins() []string {
	var out []string
	for _, p := range strings.Split(c.ClientOrigin, ",") {
		if o := strings.TrimRight(strings.TrimSpace(p), "/"); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// UsingDefaultSecret reports whether tokens are signed with the built-in dev secret.
func (c *Config) UsingDefaultSecret() bool { return c.JWTSecret == DefaultJWTSecret }
