// Package config loads artgrid settings from defaults, an optional YAML or
// TOML file, an optional .env file and ARTGRID_* environment variables, in
// that order of increasing precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ironsheep/artgrid/internal/errors"
)

// Output kinds accepted by OutputKind.
const (
	KindTIFF = "tiff"
	KindIIIF = "iiif"
	KindDZI  = "dzi"
)

// Store drivers accepted by StoreConfig.Driver.
const (
	DriverFile  = "file"
	DriverRedis = "redis"
	DriverMongo = "mongo"
)

// Config holds every tunable of the artgrid tools.
type Config struct {
	OutputDir      string      `yaml:"output_dir" toml:"output_dir"`
	ThumbnailWidth int         `yaml:"thumbnail_width" toml:"thumbnail_width"`
	Ratio          float64     `yaml:"ratio" toml:"ratio"`
	OutputKind     string      `yaml:"output_kind" toml:"output_kind"`
	BaseURL        string      `yaml:"base_url" toml:"base_url"`
	Background     string      `yaml:"background" toml:"background"`
	FetchTimeout   Duration    `yaml:"fetch_timeout" toml:"fetch_timeout"`
	Concurrency    int         `yaml:"concurrency" toml:"concurrency"`
	LogLevel       string      `yaml:"log_level" toml:"log_level"`
	Store          StoreConfig `yaml:"store" toml:"store"`
}

// StoreConfig selects and configures the layout record store.
type StoreConfig struct {
	Driver     string `yaml:"driver" toml:"driver"`
	Dir        string `yaml:"dir" toml:"dir"`
	URL        string `yaml:"url" toml:"url"`
	Database   string `yaml:"database" toml:"database"`
	Collection string `yaml:"collection" toml:"collection"`
}

// Duration is a time.Duration that decodes from strings like "5s".
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	return d.parse(value.Value)
}

// UnmarshalText implements encoding.TextUnmarshaler (used by TOML).
func (d *Duration) UnmarshalText(text []byte) error {
	return d.parse(string(text))
}

func (d *Duration) parse(s string) error {
	v, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = v
	return nil
}

// Default returns the configuration used when nothing else is supplied.
func Default() Config {
	return Config{
		OutputDir:      "output",
		ThumbnailWidth: 256,
		Ratio:          9.0 / 16.0,
		OutputKind:     KindTIFF,
		Background:     "#000000",
		FetchTimeout:   Duration{5 * time.Second},
		Concurrency:    8,
		LogLevel:       "info",
		Store: StoreConfig{
			Driver:     DriverFile,
			Dir:        filepath.Join("output", "layouts"),
			Database:   "artgrid",
			Collection: "layouts",
		},
	}
}

// Load builds a Config. path may be empty; a missing .env file is ignored.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}

	_ = godotenv.Load()
	applyEnv(&cfg, os.Getenv)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(errors.CodeInput, err, "read config %s", path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return errors.Wrap(errors.CodeInput, err, "parse yaml config %s", path)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return errors.Wrap(errors.CodeInput, err, "parse toml config %s", path)
		}
	default:
		return errors.Input("unsupported config format %q (want .yaml, .yml or .toml)", filepath.Ext(path))
	}
	return nil
}

// applyEnv overlays ARTGRID_* variables. Malformed numbers are left for
// Validate to report through the zero value they would otherwise produce.
func applyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv("ARTGRID_OUTPUT_DIR"); v != "" {
		cfg.OutputDir = v
	}
	if v := getenv("ARTGRID_THUMBNAIL_WIDTH"); v != "" {
		n, _ := strconv.Atoi(v)
		cfg.ThumbnailWidth = n
	}
	if v := getenv("ARTGRID_RATIO"); v != "" {
		f, _ := strconv.ParseFloat(v, 64)
		cfg.Ratio = f
	}
	if v := getenv("ARTGRID_OUTPUT_KIND"); v != "" {
		cfg.OutputKind = v
	}
	if v := getenv("ARTGRID_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := getenv("ARTGRID_BACKGROUND"); v != "" {
		cfg.Background = v
	}
	if v := getenv("ARTGRID_FETCH_TIMEOUT"); v != "" {
		d, _ := time.ParseDuration(v)
		cfg.FetchTimeout = Duration{d}
	}
	if v := getenv("ARTGRID_CONCURRENCY"); v != "" {
		n, _ := strconv.Atoi(v)
		cfg.Concurrency = n
	}
	if v := getenv("ARTGRID_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := getenv("ARTGRID_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := getenv("ARTGRID_STORE_DIR"); v != "" {
		cfg.Store.Dir = v
	}
	if v := getenv("ARTGRID_STORE_URL"); v != "" {
		cfg.Store.URL = v
	}
}

// Validate reports the first invalid setting as a CodeInput error.
func (c Config) Validate() error {
	if c.ThumbnailWidth <= 0 {
		return errors.Input("thumbnail_width must be positive, got %d", c.ThumbnailWidth)
	}
	if c.Ratio <= 0 {
		return errors.Input("ratio must be positive, got %g", c.Ratio)
	}
	switch c.OutputKind {
	case KindTIFF, KindIIIF, KindDZI:
	default:
		return errors.Input("unknown output_kind %q", c.OutputKind)
	}
	if c.FetchTimeout.Duration <= 0 {
		return errors.Input("fetch_timeout must be positive")
	}
	if c.Concurrency <= 0 {
		return errors.Input("concurrency must be positive, got %d", c.Concurrency)
	}
	switch c.Store.Driver {
	case DriverFile:
		if c.Store.Dir == "" {
			return errors.Input("store.dir is required for the file driver")
		}
	case DriverRedis, DriverMongo:
		if c.Store.URL == "" {
			return errors.Input("store.url is required for the %s driver", c.Store.Driver)
		}
	default:
		return errors.Input("unknown store driver %q", c.Store.Driver)
	}
	return nil
}
