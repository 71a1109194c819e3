package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/oskarbraten/squire/internal/downloader"
	squirehttp "github.com/oskarbraten/squire/internal/http"
	"github.com/oskarbraten/squire/internal/registry"
)

var (
	// ErrInvalidChannel is returned when a channel is not a named track,
	// a release version or a date.
	ErrInvalidChannel = errors.New("config: invalid channel")

	// ErrInvalidTargets is returned when the targets pattern does not compile.
	ErrInvalidTargets = errors.New("config: invalid targets pattern")
)

// Config defines configuration for the squire CLI.
type Config struct {
	OutputDir         string        `yaml:"output_dir"`
	BucketURL         string        `yaml:"bucket_url"`
	Channels          []string      `yaml:"channels"`
	Targets           string        `yaml:"targets"`
	Concurrency       int           `yaml:"concurrency"`
	ValidateChecksums bool          `yaml:"validate_checksums"`
	UserAgent         string        `yaml:"user_agent"`
	Verbose           bool          `yaml:"verbose"`
	Progress          bool          `yaml:"progress"`
	Timeout           time.Duration `yaml:"timeout"`
	DistOrigin        string        `yaml:"dist_origin"`
	RegistryOrigin    string        `yaml:"registry_origin"`
	IndexURL          string        `yaml:"index_url"`
	MetricsFile       string        `yaml:"metrics_file"`
	SkipInstaller     bool          `yaml:"skip_installer"`
	SkipDist          bool          `yaml:"skip_dist"`
	SkipCrates        bool          `yaml:"skip_crates"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Channels:       []string{"stable"},
		Targets:        "x86_64",
		Concurrency:    5,
		UserAgent:      squirehttp.DefaultUserAgent,
		DistOrigin:     downloader.DistOrigin,
		RegistryOrigin: downloader.RegistryOrigin,
		IndexURL:       registry.DefaultURL,
	}
}

// yamlConfig is used for YAML unmarshaling with a string timeout.
type yamlConfig struct {
	OutputDir         string   `yaml:"output_dir"`
	BucketURL         string   `yaml:"bucket_url"`
	Channels          []string `yaml:"channels"`
	Targets           string   `yaml:"targets"`
	Concurrency       int      `yaml:"concurrency"`
	ValidateChecksums bool     `yaml:"validate_checksums"`
	UserAgent         string   `yaml:"user_agent"`
	Verbose           bool     `yaml:"verbose"`
	Progress          bool     `yaml:"progress"`
	Timeout           string   `yaml:"timeout"`
	DistOrigin        string   `yaml:"dist_origin"`
	RegistryOrigin    string   `yaml:"registry_origin"`
	IndexURL          string   `yaml:"index_url"`
	MetricsFile       string   `yaml:"metrics_file"`
	SkipInstaller     bool     `yaml:"skip_installer"`
	SkipDist          bool     `yaml:"skip_dist"`
	SkipCrates        bool     `yaml:"skip_crates"`
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()

	if yc.OutputDir != "" {
		cfg.OutputDir = yc.OutputDir
	}
	if yc.BucketURL != "" {
		cfg.BucketURL = yc.BucketURL
	}
	if len(yc.Channels) > 0 {
		cfg.Channels = yc.Channels
	}
	if yc.Targets != "" {
		cfg.Targets = yc.Targets
	}
	if yc.Concurrency != 0 {
		cfg.Concurrency = yc.Concurrency
	}
	cfg.ValidateChecksums = yc.ValidateChecksums
	if yc.UserAgent != "" {
		cfg.UserAgent = yc.UserAgent
	}
	cfg.Verbose = yc.Verbose
	cfg.Progress = yc.Progress
	if yc.Timeout != "" {
		d, err := time.ParseDuration(yc.Timeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse timeout: %w", err)
		}
		cfg.Timeout = d
	}
	if yc.DistOrigin != "" {
		cfg.DistOrigin = yc.DistOrigin
	}
	if yc.RegistryOrigin != "" {
		cfg.RegistryOrigin = yc.RegistryOrigin
	}
	if yc.IndexURL != "" {
		cfg.IndexURL = yc.IndexURL
	}
	if yc.MetricsFile != "" {
		cfg.MetricsFile = yc.MetricsFile
	}
	cfg.SkipInstaller = yc.SkipInstaller
	cfg.SkipDist = yc.SkipDist
	cfg.SkipCrates = yc.SkipCrates

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the SQUIRE_ prefix.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("SQUIRE_OUTPUT_DIR"); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv("SQUIRE_BUCKET_URL"); v != "" {
		c.BucketURL = v
	}
	if v := os.Getenv("SQUIRE_CHANNELS"); v != "" {
		c.Channels = splitList(v)
	}
	if v := os.Getenv("SQUIRE_TARGETS"); v != "" {
		c.Targets = v
	}
	if v := os.Getenv("SQUIRE_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse SQUIRE_CONCURRENCY: %w", err)
		}
		c.Concurrency = n
	}
	if v := os.Getenv("SQUIRE_VALIDATE_CHECKSUMS"); v != "" {
		c.ValidateChecksums = v == "true" || v == "1"
	}
	if v := os.Getenv("SQUIRE_USER_AGENT"); v != "" {
		c.UserAgent = v
	}
	if v := os.Getenv("SQUIRE_VERBOSE"); v != "" {
		c.Verbose = v == "true" || v == "1"
	}
	if v := os.Getenv("SQUIRE_PROGRESS"); v != "" {
		c.Progress = v == "true" || v == "1"
	}
	if v := os.Getenv("SQUIRE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse SQUIRE_TIMEOUT: %w", err)
		}
		c.Timeout = d
	}
	if v := os.Getenv("SQUIRE_DIST_ORIGIN"); v != "" {
		c.DistOrigin = v
	}
	if v := os.Getenv("SQUIRE_REGISTRY_ORIGIN"); v != "" {
		c.RegistryOrigin = v
	}
	if v := os.Getenv("SQUIRE_INDEX_URL"); v != "" {
		c.IndexURL = v
	}
	if v := os.Getenv("SQUIRE_METRICS_FILE"); v != "" {
		c.MetricsFile = v
	}
	if v := os.Getenv("SQUIRE_SKIP_INSTALLER"); v != "" {
		c.SkipInstaller = v == "true" || v == "1"
	}
	if v := os.Getenv("SQUIRE_SKIP_DIST"); v != "" {
		c.SkipDist = v == "true" || v == "1"
	}
	if v := os.Getenv("SQUIRE_SKIP_CRATES"); v != "" {
		c.SkipCrates = v == "true" || v == "1"
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.OutputDir == "" {
		return errors.New("config: output directory is required")
	}
	if c.Concurrency <= 0 {
		return errors.New("config: concurrency must be positive")
	}
	if c.Timeout < 0 {
		return errors.New("config: timeout must not be negative")
	}
	if _, err := c.TargetsPattern(); err != nil {
		return err
	}
	if len(c.Channels) == 0 {
		return errors.New("config: at least one channel is required")
	}
	for _, ch := range c.Channels {
		if err := ValidateChannel(ch); err != nil {
			return err
		}
	}
	for name, origin := range map[string]string{"dist_origin": c.DistOrigin, "registry_origin": c.RegistryOrigin} {
		u, err := url.Parse(origin)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("config: %s must be an http(s) URL, got %q", name, origin)
		}
	}
	return nil
}

// TargetsPattern compiles the architecture filter.
func (c *Config) TargetsPattern() (*regexp.Regexp, error) {
	re, err := regexp.Compile(c.Targets)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTargets, err)
	}
	return re, nil
}

// ValidateChannel accepts stable, beta and nightly, a major.minor or
// major.minor.patch release, or a YYYY-MM-DD date optionally prefixed by
// nightly- or beta-.
func ValidateChannel(ch string) error {
	switch ch {
	case "stable", "beta", "nightly":
		return nil
	}

	date := strings.TrimPrefix(strings.TrimPrefix(ch, "nightly-"), "beta-")
	if _, err := time.Parse("2006-01-02", date); err == nil {
		return nil
	}

	if dots := strings.Count(ch, "."); dots == 1 || dots == 2 {
		if v, err := semver.NewVersion(ch); err == nil && !strings.HasPrefix(ch, "v") &&
			v.Prerelease() == "" && v.Metadata() == "" {
			return nil
		}
	}

	return fmt.Errorf("%w: %q", ErrInvalidChannel, ch)
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	if override.OutputDir != "" {
		c.OutputDir = override.OutputDir
	}
	if override.BucketURL != "" {
		c.BucketURL = override.BucketURL
	}
	if len(override.Channels) > 0 {
		c.Channels = override.Channels
	}
	if override.Targets != "" {
		c.Targets = override.Targets
	}
	if override.Concurrency != 0 {
		c.Concurrency = override.Concurrency
	}
	if override.ValidateChecksums {
		c.ValidateChecksums = override.ValidateChecksums
	}
	if override.UserAgent != "" {
		c.UserAgent = override.UserAgent
	}
	if override.Verbose {
		c.Verbose = override.Verbose
	}
	if override.Progress {
		c.Progress = override.Progress
	}
	if override.Timeout != 0 {
		c.Timeout = override.Timeout
	}
	if override.DistOrigin != "" {
		c.DistOrigin = override.DistOrigin
	}
	if override.RegistryOrigin != "" {
		c.RegistryOrigin = override.RegistryOrigin
	}
	if override.IndexURL != "" {
		c.IndexURL = override.IndexURL
	}
	if override.MetricsFile != "" {
		c.MetricsFile = override.MetricsFile
	}
	if override.SkipInstaller {
		c.SkipInstaller = override.SkipInstaller
	}
	if override.SkipDist {
		c.SkipDist = override.SkipDist
	}
	if override.SkipCrates {
		c.SkipCrates = override.SkipCrates
	}
	return c
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
