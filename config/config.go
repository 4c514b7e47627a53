// Package config reads service settings from the environment, optionally
// seeded from .env files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config is the service configuration.
type Config struct {
	Addr                string     // DUPEFY_ADDR (default ":5001")
	DatabaseURL         string     // DATABASE_URL, postgres:// or sqlite:
	ImmichURL           string     // IMMICH_URL
	ImmichAPIKey        string     // IMMICH_API_KEY
	ImmichSize          string     // IMMICH_SIZE (default "preview")
	Concurrency         int        // DUPEFY_CONCURRENCY (0 = one per CPU)
	DownloadConcurrency int        // DUPEFY_DOWNLOAD_CONCURRENCY (default 8)
	ThumbnailURL        string     // DUPEFY_THUMBNAIL_URL, one %s for the asset id
	LogLevel            slog.Level // DUPEFY_LOG_LEVEL (default info)
}

const (
	defaultAddr                = ":5001"
	defaultImmichSize          = "preview"
	defaultDownloadConcurrency = 8
	defaultThumbnailURL        = "/image-proxy.php?id=%s&type=thumbnail"
)

// Load reads the given .env files (missing files are ignored) and overlays
// the process environment, which always wins.
func Load(files ...string) (Config, error) {
	fromFiles := make(map[string]string)
	for _, f := range files {
		m, err := godotenv.Read(f)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", f, err)
		}
		for k, v := range m {
			if _, ok := fromFiles[k]; !ok {
				fromFiles[k] = v
			}
		}
	}
	return FromLookup(func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := fromFiles[key]
		return v, ok
	})
}

// FromLookup builds a Config from an arbitrary key lookup.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}

	cfg := Config{
		Addr:         get("DUPEFY_ADDR", defaultAddr),
		DatabaseURL:  get("DATABASE_URL", ""),
		ImmichURL:    get("IMMICH_URL", ""),
		ImmichAPIKey: get("IMMICH_API_KEY", ""),
		ImmichSize:   get("IMMICH_SIZE", defaultImmichSize),
		ThumbnailURL: get("DUPEFY_THUMBNAIL_URL", defaultThumbnailURL),
	}

	var err error
	if cfg.Concurrency, err = atoi("DUPEFY_CONCURRENCY", get("DUPEFY_CONCURRENCY", "0")); err != nil {
		return Config{}, err
	}
	if cfg.DownloadConcurrency, err = atoi("DUPEFY_DOWNLOAD_CONCURRENCY", get("DUPEFY_DOWNLOAD_CONCURRENCY", strconv.Itoa(defaultDownloadConcurrency))); err != nil {
		return Config{}, err
	}
	if cfg.DownloadConcurrency == 0 {
		cfg.DownloadConcurrency = defaultDownloadConcurrency
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(get("DUPEFY_LOG_LEVEL", "info"))); err != nil {
		return Config{}, fmt.Errorf("config: DUPEFY_LOG_LEVEL: %w", err)
	}

	switch cfg.ImmichSize {
	case "preview", "thumbnail", "original":
	default:
		return Config{}, fmt.Errorf("config: IMMICH_SIZE %q: want preview, thumbnail or original", cfg.ImmichSize)
	}
	if strings.Count(cfg.ThumbnailURL, "%s") != 1 {
		return Config{}, fmt.Errorf("config: DUPEFY_THUMBNAIL_URL %q: want exactly one %%s", cfg.ThumbnailURL)
	}
	return cfg, nil
}

// Validate reports settings that the HTTP service cannot run without.
func (c Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.ImmichURL == "" {
		errs = append(errs, errors.New("IMMICH_URL is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func atoi(key, v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("config: %s %q: want a non-negative integer", key, v)
	}
	return n, nil
}
