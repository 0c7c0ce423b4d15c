// Package config loads runtime configuration from environment
// variables. Required values halt startup when missing; tunables fall
// back to sensible defaults.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application-level settings.
type Config struct {
	Env        string        // dev | test | prod
	Port       string        // HTTP port to bind
	DBUser     string        // database username
	DBPass     string        // database password (empty allowed)
	DBHost     string        // database host
	DBPort     string        // database port
	DBName     string        // database name
	JWTSecret  string        // HS256 signing secret
	AccessTTL  time.Duration // access token lifetime
	RefreshTTL time.Duration // refresh token lifetime
	BcryptCost int           // bcrypt cost for password hashing
	CORS       []string      // allowed origins; ["*"] allows any
	LogLevel   string        // debug | info | warn | error
}

// Load reads the configuration. Database coordinates and the JWT
// secret are mandatory; everything else has a default.
func Load() Config {
	return Config{
		Env:        getenv("APP_ENV", "dev"),
		Port:       getenv("APP_PORT", "8080"),
		DBUser:     must("DB_USER"),
		DBPass:     os.Getenv("DB_PASS"),
		DBHost:     must("DB_HOST"),
		DBPort:     must("DB_PORT"),
		DBName:     must("DB_NAME"),
		JWTSecret:  must("JWT_SECRET"),
		AccessTTL:  envDur("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTTL: envDur("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		BcryptCost: envInt("BCRYPT_COST", 12),
		CORS:       splitCSV(getenv("CORS_ORIGINS", "*")),
		LogLevel:   getenv("LOG_LEVEL", "info"),
	}
}

// DSN renders the MySQL connection string.
func (c Config) DSN() string {
	return c.DBUser + ":" + c.DBPass + "@tcp(" + c.DBHost + ":" + c.DBPort + ")/" + c.DBName +
		"?parseTime=true&charset=utf8mb4&loc=UTC"
}

// must retrieves a required environment variable or halts startup.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, v)
	}
	return n
}

func envDur(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Fatalf("invalid duration for %s: %q", key, v)
	}
	return d
}

func envBool(key string, def bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return def
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
