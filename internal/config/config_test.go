package config

import (
	"context"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(context.Background(), envconfig.MapLookuper(map[string]string{}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" || cfg.Addr() != ":8080" {
		t.Fatalf("unexpected port %q", cfg.Port)
	}
	if cfg.DatabaseURL != "sqlite://scoreboard.db" {
		t.Fatalf("unexpected database url %q", cfg.DatabaseURL)
	}
	if cfg.TokenTTL != 7*24*time.Hour {
		t.Fatalf("unexpected ttl %v", cfg.TokenTTL)
	}
	if !cfg.UsingDefaultSecret() {
		t.Fatalf("expected default secret")
	}
	if got := cfg.Origins(); len(got) != 1 || got[0] != "*" {
		t.Fatalf("unexpected origins %v", got)
	}
	if !cfg.MetricsEnabled || cfg.LogPretty {
		t.Fatalf("unexpected flags: metrics=%v pretty=%v", cfg.MetricsEnabled, cfg.LogPretty)
	}
}

func TestLoad_Overrides(t *testing.T) {
	cfg, err := load(context.Background(), envconfig.MapLookuper(map[string]string{
		"PORT":          "9000",
		"DATABASE_URL":  "postgres://localhost/scores",
		"JWT_SECRET":    "s3cret",
		"TOKEN_TTL":     "1h",
		"CLIENT_ORIGIN": "https://a.example/, https://b.example",
		"LOG_LEVEL":     "debug",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr() != ":9000" || cfg.DatabaseURL != "postgres://localhost/scores" || cfg.TokenTTL != time.Hour {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.UsingDefaultSecret() {
		t.Fatalf("secret override ignored")
	}
	got := cfg.Origins()
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Fatalf("unexpected origins %v", got)
	}
}

func TestLoad_BadDuration(t *testing.T) {
	_, err := load(context.Background(), envconfig.MapLookuper(map[string]string{"TOKEN_TTL": "a week"}))
	if err == nil {
		t.Fatalf("expected error for unparsable TOKEN_TTL")
	}
}
