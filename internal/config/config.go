package config

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ListenAddr string

	DBDriver          string
	DBDSN             string
	DBPath            string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	SessionStore       string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	SessionCookieName  string
	SessionMaxAgeHours int
	SessionEncryptKey  string
	NavFromCookieName  string
	CSRFCookieName     string
	CookieSecure       bool
	TrustProxy         bool
	CORSAllowedOrigins []string

	EventsAPIBaseURL    string
	EventsAPITimeoutSec int
	EventsAPIRPS        float64
	EventsAPIBurst      int
	EventsAPIEventsPath string
	EventsAPILoginPath  string

	// Gate on credential liveness in addition to identity presence.
	NavGateChecksLiveness bool

	LoginRateLimit     int
	LoginRateWindowSec int

	HTTPReadTimeoutSec       int
	HTTPReadHeaderTimeoutSec int
	HTTPWriteTimeoutSec      int
	HTTPIdleTimeoutSec       int
}

func Load() (Config, error) {
	cfg := Config{
		ListenAddr:               env("LISTEN_ADDR", ":8080"),
		DBDriver:                 strings.ToLower(env("APP_DB_DRIVER", "sqlite")),
		DBDSN:                    env("APP_DB_DSN", ""),
		DBPath:                   env("APP_DB_PATH", "./data/eventclient.db"),
		DBMaxOpenConns:           envInt("APP_DB_MAX_OPEN_CONNS", 4),
		DBMaxIdleConns:           envInt("APP_DB_MAX_IDLE_CONNS", 2),
		DBConnMaxLifetime:        time.Duration(envInt("APP_DB_CONN_MAX_LIFETIME_MIN", 30)) * time.Minute,
		SessionStore:             strings.ToLower(env("SESSION_STORE", "sql")),
		RedisAddr:                env("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:            env("REDIS_PASSWORD", ""),
		RedisDB:                  envInt("REDIS_DB", 0),
		SessionCookieName:        env("SESSION_COOKIE_NAME", "eventclient_sid"),
		SessionMaxAgeHours:       envInt("SESSION_MAX_AGE_HOURS", 24*30),
		SessionEncryptKey:        env("SESSION_ENCRYPT_KEY", "CHANGE_ME_PRODUCTION_SESSION_KEY"),
		NavFromCookieName:        env("NAV_FROM_COOKIE_NAME", "eventclient_nav_from"),
		CSRFCookieName:           env("CSRF_COOKIE_NAME", "eventclient_csrf"),
		CookieSecure:             envBool("COOKIE_SECURE", false),
		TrustProxy:               envBool("TRUST_PROXY", false),
		CORSAllowedOrigins:       envCSV("CORS_ALLOWED_ORIGINS"),
		EventsAPIBaseURL:         strings.TrimRight(env("EVENTS_API_BASE_URL", "http://127.0.0.1:8000"), "/"),
		EventsAPITimeoutSec:      envInt("EVENTS_API_TIMEOUT_SEC", 15),
		EventsAPIRPS:             envFloat("EVENTS_API_RPS", 20),
		EventsAPIBurst:           envInt("EVENTS_API_BURST", 40),
		EventsAPIEventsPath:      env("EVENTS_API_EVENTS_PATH", "/core/event/"),
		EventsAPILoginPath:       env("EVENTS_API_LOGIN_PATH", "/authentication/login/"),
		NavGateChecksLiveness:    envBool("NAV_GATE_CHECKS_LIVENESS", false),
		LoginRateLimit:           envInt("LOGIN_RATE_LIMIT", 20),
		LoginRateWindowSec:       envInt("LOGIN_RATE_WINDOW_SEC", 60),
		HTTPReadTimeoutSec:       envInt("HTTP_READ_TIMEOUT_SEC", 10),
		HTTPReadHeaderTimeoutSec: envInt("HTTP_READ_HEADER_TIMEOUT_SEC", 5),
		HTTPWriteTimeoutSec:      envInt("HTTP_WRITE_TIMEOUT_SEC", 30),
		HTTPIdleTimeoutSec:       envInt("HTTP_IDLE_TIMEOUT_SEC", 60),
	}

	if cfg.DBMaxOpenConns <= 0 || cfg.DBMaxIdleConns < 0 {
		return Config{}, fmt.Errorf("invalid DB pool config")
	}
	switch cfg.DBDriver {
	case "sqlite":
	case "pgx", "mysql":
		if strings.TrimSpace(cfg.DBDSN) == "" && cfg.SessionStore == "sql" {
			return Config{}, fmt.Errorf("APP_DB_DSN is required when APP_DB_DRIVER=%s", cfg.DBDriver)
		}
	default:
		return Config{}, fmt.Errorf("APP_DB_DRIVER must be one of: sqlite, pgx, mysql")
	}
	switch cfg.SessionStore {
	case "sql", "redis", "memory":
	default:
		return Config{}, fmt.Errorf("SESSION_STORE must be one of: sql, redis, memory")
	}
	if cfg.SessionMaxAgeHours <= 0 {
		return Config{}, fmt.Errorf("session max age must be positive")
	}
	if cfg.EventsAPIBaseURL == "" {
		return Config{}, fmt.Errorf("EVENTS_API_BASE_URL is required")
	}
	if cfg.EventsAPITimeoutSec <= 0 {
		return Config{}, fmt.Errorf("EVENTS_API_TIMEOUT_SEC must be positive")
	}
	if cfg.EventsAPIRPS <= 0 || cfg.EventsAPIBurst <= 0 {
		return Config{}, fmt.Errorf("events API rate limit must be positive")
	}
	if cfg.LoginRateLimit <= 0 || cfg.LoginRateWindowSec <= 0 {
		return Config{}, fmt.Errorf("login rate limit must be positive")
	}
	if strings.TrimSpace(cfg.SessionEncryptKey) == "" ||
		cfg.SessionEncryptKey == "CHANGE_ME_PRODUCTION_SESSION_KEY" ||
		len(cfg.SessionEncryptKey) < 24 {
		return Config{}, fmt.Errorf("SESSION_ENCRYPT_KEY must be set to a strong non-default value (>=24 chars)")
	}
	if !cfg.CookieSecure && !isLocalListen(cfg.ListenAddr) {
		return Config{}, fmt.Errorf("COOKIE_SECURE=false is allowed only for local listen addresses")
	}
	return cfg, nil
}

func (c Config) SessionMaxAge() time.Duration {
	return time.Duration(c.SessionMaxAgeHours) * time.Hour
}

func (c Config) LoginRateWindow() time.Duration {
	return time.Duration(c.LoginRateWindowSec) * time.Second
}

func (c Config) EventsAPITimeout() time.Duration {
	return time.Duration(c.EventsAPITimeoutSec) * time.Second
}

// ResolveCookieSecure reports whether cookies set on r should carry the Secure flag.
func (c Config) ResolveCookieSecure(r *http.Request) bool {
	if c.CookieSecure {
		return true
	}
	if r == nil {
		return false
	}
	if r.TLS != nil {
		return true
	}
	return c.TrustProxy && strings.EqualFold(strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")), "https")
}

func env(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return d
	}
	return n
}

func envFloat(k string, d float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return d
	}
	return f
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return d
	}
	return b
}

func envCSV(k string) []string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isLocalListen(addr string) bool {
	a := strings.ToLower(strings.TrimSpace(addr))
	return strings.Contains(a, "127.0.0.1") || strings.Contains(a, "localhost") || strings.Contains(a, "[::1]") || strings.HasPrefix(a, ":")
}
