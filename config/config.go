// Package config loads relay settings from a .env file, the environment and
// command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Defaults used when neither the environment nor a flag sets a value.
const (
	DefaultAddr           = "localhost:8080"
	DefaultDatabasePath   = "drawing-board.sqlite3"
	DefaultPersistTimeout = 5 * time.Second
)

// Config represents the relay server settings.
type Config struct {
	Addr             string
	DatabasePath     string
	JWTSecret        string
	PersistTimeout   time.Duration
	TombstoneDeletes bool
	LogLevel         slog.Level
	SeedRooms        []string
}

// LoadEnvFile loads the given .env files (".env" when none given) into the
// process environment. Missing files are ignored.
func LoadEnvFile(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
		slog.Debug("loaded environment file", "path", p)
	}
	return nil
}

// Load builds a Config from the environment and then applies args as flag
// overrides. getenv is usually os.Getenv.
func Load(args []string, getenv func(string) string) (Config, error) {
	cfg := Config{
		Addr:           DefaultAddr,
		DatabasePath:   DefaultDatabasePath,
		PersistTimeout: DefaultPersistTimeout,
		LogLevel:       slog.LevelInfo,
	}
	if v := getenv("ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := getenv("DATABASE_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	cfg.JWTSecret = getenv("JWT_SECRET")
	if v := getenv("PERSIST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid PERSIST_TIMEOUT: %w", err)
		}
		cfg.PersistTimeout = d
	}
	if v := getenv("TOMBSTONE_DELETES"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid TOMBSTONE_DELETES: %w", err)
		}
		cfg.TombstoneDeletes = b
	}
	level := getenv("LOG_LEVEL")
	seeds := getenv("SEED_ROOMS")

	flags := flag.NewFlagSet("drawing-board", flag.ContinueOnError)
	flags.SetOutput(io.Discard)
	flags.StringVar(&cfg.Addr, "addr", cfg.Addr, "the address to listen on")
	flags.StringVar(&cfg.DatabasePath, "db", cfg.DatabasePath, "path to the sqlite database")
	flags.DurationVar(&cfg.PersistTimeout, "persist-timeout", cfg.PersistTimeout, "timeout for message log writes")
	flags.BoolVar(&cfg.TombstoneDeletes, "tombstone-deletes", cfg.TombstoneDeletes, "record deletes in the message log")
	flags.StringVar(&level, "log-level", level, "debug, info, warn or error")
	flags.StringVar(&seeds, "seed-rooms", seeds, "comma separated room slugs to create on startup")
	if err := flags.Parse(args); err != nil {
		return Config{}, fmt.Errorf("failed to parse flags: %w", err)
	}

	if level != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(level)); err != nil {
			return Config{}, fmt.Errorf("invalid log level %q: %w", level, err)
		}
	}
	for _, s := range strings.Split(seeds, ",") {
		if s = strings.TrimSpace(s); s != "" {
			cfg.SeedRooms = append(cfg.SeedRooms, s)
		}
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.PersistTimeout <= 0 {
		return Config{}, fmt.Errorf("persist timeout must be positive, got %s", cfg.PersistTimeout)
	}
	return cfg, nil
}

// Logger returns a text logger on stderr at the configured level.
func (c Config) Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: c.LogLevel}))
}
