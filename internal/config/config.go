// Package config builds the process-wide configuration from the
// environment, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"golang.org/x/exp/slog"
)

type Config struct {
	ListenAddr     string
	DatabaseURL    string
	DatabaseName   string
	JWTSecret      string
	JWTIssuer      string
	ImagesDir      string
	MaxUploadBytes int64
	BcryptCost     int
	LogLevel       slog.Level
}

var (
	ErrMissingDatabaseURL = errors.New("config: DATABASE_URL is required")
	ErrMissingJWTSecret   = errors.New("config: JWT_KEY is required")
)

// Load reads files (default ".env") into the environment without
// overriding variables that are already set, then builds a Config.
// Missing files are ignored.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}

	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load %s: %w", f, err)
		}
	}

	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv.
func FromEnv(getenv func(string) string) (Config, error) {
	env := environment{getenv: getenv}

	cfg := Config{
		ListenAddr:     env.String("APP_HOST", "") + ":" + env.String("APP_PORT", "3000"),
		DatabaseURL:    env.String("DATABASE_URL", ""),
		DatabaseName:   env.String("DATABASE_NAME", "postboard"),
		JWTSecret:      env.String("JWT_KEY", ""),
		JWTIssuer:      env.String("JWT_ISSUER", "postboard"),
		ImagesDir:      env.String("IMAGES_DIR", "images"),
		MaxUploadBytes: int64(env.Int("MAX_UPLOAD_BYTES", 10<<20)),
		BcryptCost:     env.Int("BCRYPT_COST", 10),
		LogLevel:       env.Level("LOG_LEVEL", slog.LevelInfo),
	}

	if env.err != nil {
		return Config{}, env.err
	}

	if cfg.DatabaseURL == "" {
		return Config{}, ErrMissingDatabaseURL
	}

	if cfg.JWTSecret == "" {
		return Config{}, ErrMissingJWTSecret
	}

	return cfg, nil
}

// environment collects the first parse error so FromEnv can report it
// after reading every variable.
type environment struct {
	getenv func(string) string
	err    error
}

func (e *environment) String(key, def string) string {
	if v := strings.TrimSpace(e.getenv(key)); v != "" {
		return v
	}
	return def
}

func (e *environment) Int(key string, def int) int {
	v := e.String(key, "")
	if v == "" {
		return def
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, err)
		return def
	}

	return n
}

func (e *environment) Level(key string, def slog.Level) slog.Level {
	v := e.String(key, "")
	if v == "" {
		return def
	}

	var l slog.Level
	if err := l.UnmarshalText([]byte(v)); err != nil {
		e.fail(key, err)
		return def
	}

	return l
}

func (e *environment) fail(key string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("config: %s: %w", key, err)
	}
}
