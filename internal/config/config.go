// Package config loads the environment-variable configuration surface
// this core runs on, following the prefixed-env-var loader shape used
// throughout the reference stack (GetString/MustGetInt/GetDuration with
// a typed Validator that fails fast at startup rather than at first use).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Env is a thin, prefix-aware accessor over process environment
// variables.
type Env struct {
	prefix string
}

// NewEnv creates an Env. prefix, if non-empty, is prepended to every
// key with an underscore (e.g. prefix "REFMD" + key "PORT" -> "REFMD_PORT").
func NewEnv(prefix string) *Env {
	return &Env{prefix: prefix}
}

func (e *Env) buildKey(key string) string {
	if e.prefix == "" {
		return key
	}
	return strings.ToUpper(e.prefix) + "_" + key
}

// GetString returns the env var's value, or def if unset/empty.
func (e *Env) GetString(key, def string) string {
	if v := os.Getenv(e.buildKey(key)); v != "" {
		return v
	}
	return def
}

// MustGetString returns the env var's value, erroring if unset/empty.
func (e *Env) MustGetString(key string) (string, error) {
	v := os.Getenv(e.buildKey(key))
	if v == "" {
		return "", fmt.Errorf("config: required env var %s is not set", e.buildKey(key))
	}
	return v, nil
}

// GetInt returns the env var parsed as int, or def on unset/parse error.
func (e *Env) GetInt(key string, def int) int {
	v := os.Getenv(e.buildKey(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// GetBool returns the env var parsed as bool, or def on unset/parse error.
func (e *Env) GetBool(key string, def bool) bool {
	v := os.Getenv(e.buildKey(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// GetDuration returns the env var parsed with time.ParseDuration, or
// def on unset/parse error.
func (e *Env) GetDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(e.buildKey(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// Config is the fully assembled runtime configuration for the server
// binary, covering every environment variable the external interfaces
// section names plus the additions the expanded domain stack needs.
type Config struct {
	Port    int
	LogLevel  string
	LogFormat string

	DatabaseURL string
	RedisURL    string

	JWTSecret          string
	JWTExpiry          time.Duration
	RefreshTokenExpiry time.Duration

	UploadMaxSize int64
	UploadDir     string
	StorageRoot   string
	FrontendURL   string

	ServerSecret string

	GitSyncEnabled  bool
	GitAutoSync     bool
	GitSyncInterval time.Duration
}

// Load assembles Config from the process environment, unprefixed
// (the deployment env sets these directly per the external interfaces
// table).
func Load() (*Config, error) {
	env := NewEnv("")

	dbURL, err := env.MustGetString("DATABASE_URL")
	if err != nil {
		return nil, err
	}
	jwtSecret, err := env.MustGetString("JWT_SECRET")
	if err != nil {
		return nil, err
	}
	serverSecret, err := env.MustGetString("SERVER_SECRET")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:      env.GetInt("PORT", 8080),
		LogLevel:  env.GetString("LOG_LEVEL", "info"),
		LogFormat: env.GetString("LOG_FORMAT", "json"),

		DatabaseURL: dbURL,
		RedisURL:    env.GetString("REDIS_URL", "redis://localhost:6379/0"),

		JWTSecret:          jwtSecret,
		JWTExpiry:          env.GetDuration("JWT_EXPIRY", 15*time.Minute),
		RefreshTokenExpiry: env.GetDuration("REFRESH_TOKEN_EXPIRY", 30*24*time.Hour),

		UploadMaxSize: int64(env.GetInt("UPLOAD_MAX_SIZE", 10*1024*1024)),
		UploadDir:     env.GetString("UPLOAD_DIR", "./uploads"),
		StorageRoot:   env.GetString("STORAGE_ROOT", "./storage"),
		FrontendURL:   env.GetString("FRONTEND_URL", "http://localhost:3000"),

		ServerSecret: serverSecret,

		GitSyncEnabled:  env.GetBool("GIT_SYNC_ENABLED", false),
		GitAutoSync:     env.GetBool("GIT_AUTO_SYNC", false),
		GitSyncInterval: env.GetDuration("GIT_SYNC_INTERVAL", 300*time.Second),
	}

	v := NewValidator()
	v.RequireString("DATABASE_URL", cfg.DatabaseURL)
	v.RequireString("JWT_SECRET", cfg.JWTSecret)
	v.RequireString("SERVER_SECRET", cfg.ServerSecret)
	v.RequirePositiveInt("PORT", cfg.Port)
	v.RequireOneOf("LOG_FORMAT", cfg.LogFormat, "json", "text")
	if !v.IsValid() {
		return nil, fmt.Errorf("config: %s", v.ErrorString())
	}

	return cfg, nil
}

// Validator accumulates configuration errors so Load can report every
// problem at once instead of failing on the first one.
type Validator struct {
	errs []string
}

func NewValidator() *Validator { return &Validator{} }

func (v *Validator) RequireString(name, value string) {
	if strings.TrimSpace(value) == "" {
		v.errs = append(v.errs, fmt.Sprintf("%s is required", name))
	}
}

func (v *Validator) RequirePositiveInt(name string, value int) {
	if value <= 0 {
		v.errs = append(v.errs, fmt.Sprintf("%s must be a positive integer, got %d", name, value))
	}
}

func (v *Validator) RequireOneOf(name, value string, allowed ...string) {
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	v.errs = append(v.errs, fmt.Sprintf("%s must be one of %v, got %q", name, allowed, value))
}

func (v *Validator) IsValid() bool { return len(v.errs) == 0 }

func (v *Validator) Errors() []string { return v.errs }

func (v *Validator) ErrorString() string { return strings.Join(v.errs, "; ") }
