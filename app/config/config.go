package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	// this will automatically load your .env file:
	_ "github.com/joho/godotenv/autoload"
)

type Config struct {
	Logs     LogConfig
	DB       PostgresConfig
	Engine   EngineConfig
	Server   ServerConfig
	Games    GamesConfig
	Mail     MailConfig
	Auth     AuthConfig
	QueueURL string
}

type LogConfig struct {
	Style string // "console" or "json"
	Level string
}

type PostgresConfig struct {
	Username string
	Password string
	URL      string
	Port     string
	Database string
	SSLMode  string
}

type EngineConfig struct {
	Path             string
	MoveTime         int  // milliseconds, used when DepthOrTime is false
	DepthOrTime      bool //true for depth, false for time
	Depth            int  // default depth when a request carries no difficulty
	Timeout          time.Duration
	HandshakeTimeout time.Duration
}

type ServerConfig struct {
	Addr         string
	AllowOrigins []string
}

type GamesConfig struct {
	PerGameEngine bool
	MaxActive     int
	IdleTimeout   time.Duration
	ReapInterval  time.Duration
}

// AuthConfig guards the admin routes. Tokens come from any OIDC provider
// publishing a JWKS (Auth0 by default: <issuer>/.well-known/jwks.json).
type AuthConfig struct {
	Issuer   string
	Audience string
	JWKSURL  string
	Scope    string
	Disabled bool // local development only
}

type MailConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	From        string
	OwnerEmail  string
	FrontendURL string
}

// LoadConfig reads the environment (and .env, if present). Missing values
// fall back to defaults; malformed ones are reported by variable name.
func LoadConfig() (*Config, error) {
	p := parser{}

	cfg := &Config{
		QueueURL: os.Getenv("QUEUE_URL"),
		Logs: LogConfig{
			Style: envOr("LOG_STYLE", "console"),
			Level: envOr("LOG_LEVEL", "info"),
		},
		DB: PostgresConfig{
			Username: os.Getenv("POSTGRES_USER"),
			Password: os.Getenv("POSTGRES_PWD"),
			URL:      os.Getenv("POSTGRES_URL"),
			Port:     envOr("POSTGRES_PORT", "5432"),
			Database: envOr("POSTGRES_DB", "portfolio"),
			SSLMode:  envOr("POSTGRES_SSLMODE", "disable"),
		},
		Engine: EngineConfig{
			Path:             os.Getenv("ENGINE_PATH"),
			MoveTime:         p.int("ENGINE_MOVE_TIME", 1000),
			DepthOrTime:      p.bool("ENGINE_DEPTH_OR_TIME", true),
			Depth:            p.int("ENGINE_DEPTH", 5),
			Timeout:          p.millis("ENGINE_TIMEOUT_MS", 5*time.Second),
			HandshakeTimeout: p.millis("ENGINE_HANDSHAKE_TIMEOUT_MS", 3*time.Second),
		},
		Server: ServerConfig{
			Addr:         envOr("SERVER_ADDR", "0.0.0.0:8080"),
			AllowOrigins: splitList(envOr("CORS_ALLOW_ORIGINS", "*")),
		},
		Games: GamesConfig{
			PerGameEngine: p.bool("ENGINE_PER_GAME", false),
			MaxActive:     p.int("GAMES_MAX_ACTIVE", 200),
			IdleTimeout:   p.millis("GAMES_IDLE_TIMEOUT_MS", 30*time.Minute),
			ReapInterval:  p.millis("GAMES_REAP_INTERVAL_MS", time.Minute),
		},
		Mail: MailConfig{
			Host:        os.Getenv("EMAIL_HOST"),
			Port:        p.int("EMAIL_PORT", 587),
			Username:    os.Getenv("EMAIL_USER"),
			Password:    os.Getenv("EMAIL_PASS"),
			From:        os.Getenv("EMAIL_FROM"),
			OwnerEmail:  os.Getenv("EMAIL_OWNER"),
			FrontendURL: os.Getenv("FRONTEND_URL"),
		},
		Auth: AuthConfig{
			Issuer:   strings.TrimSpace(os.Getenv("ADMIN_JWT_ISSUER")),
			Audience: strings.TrimSpace(os.Getenv("ADMIN_JWT_AUDIENCE")),
			JWKSURL:  os.Getenv("ADMIN_JWKS_URL"),
			Scope:    envOr("ADMIN_SCOPE", "read:visitors"),
			Disabled: p.bool("AUTH_DISABLED", false),
		},
	}
	if cfg.Mail.From == "" {
		cfg.Mail.From = cfg.Mail.Username
	}
	if cfg.Mail.OwnerEmail == "" {
		cfg.Mail.OwnerEmail = cfg.Mail.Username
	}

	if p.err != nil {
		return nil, p.err
	}
	return cfg, nil
}

// DSN returns a lib/pq connection string, or "" when no database is configured.
func (c PostgresConfig) DSN() string {
	if c.URL == "" {
		return ""
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.Username,
		c.Password,
		c.URL,
		c.Port,
		c.Database,
		c.SSLMode,
	)
}

// parser remembers the first malformed variable.
type parser struct {
	err error
}

func (p *parser) int(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return v
}

func (p *parser) bool(key string, def bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return v
}

func (p *parser) millis(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		if err == nil {
			err = fmt.Errorf("negative duration %d", v)
		}
		p.fail(key, err)
		return def
	}
	return time.Duration(v) * time.Millisecond
}

func (p *parser) fail(key string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("config: %s: %w", key, err)
	}
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
