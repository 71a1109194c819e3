package main

import (
	"errors"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/oskarbraten/squire/internal/config"
)

// rootOptions holds the raw flag values. Only flags the user set override
// the file and environment configuration.
type rootOptions struct {
	configFile        string
	channels          []string
	targets           string
	concurrency       int
	validateChecksums bool
	userAgent         string
	verbose           bool
	progress          bool
	timeout           time.Duration
	bucket            string
	distOrigin        string
	registryOrigin    string
	indexURL          string
	metricsFile       string
	skipInstaller     bool
	skipDist          bool
	skipCrates        bool
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	o := &rootOptions{}
	defaults := config.Default()

	cmd := &cobra.Command{
		Use:   "squire [flags] OUTPUT-DIRECTORY",
		Short: "Mirror the Rust toolchain, rustup and crates.io for offline use",
		Long: `Downloads the Rust toolchain, the crates.io package registry and rustup
into OUTPUT-DIRECTORY so they can be served without internet access.

Runs are idempotent: packages and crates already present are not downloaded
again, while channel manifests and rustup executables are always refreshed.`,
		Args: func(cmd *cobra.Command, args []string) error {
			return withExitCode(ExitInvalidArgs, cobra.MaximumNArgs(1)(cmd, args))
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.load(cmd, args)
			if err != nil {
				return withExitCode(ExitInvalidArgs, err)
			}
			return runMirror(cmd.Context(), cfg, stdout, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return withExitCode(ExitInvalidArgs, err)
	})

	f := cmd.Flags()
	f.StringVar(&o.configFile, "config", "", "YAML configuration file")
	f.StringSliceVarP(&o.channels, "channels", "d", defaults.Channels,
		"toolchain channels, versions or dates (stable|beta|nightly|<major.minor>|<major.minor.patch>|<YYYY-MM-DD>)")
	f.StringVarP(&o.targets, "targets", "t", defaults.Targets,
		"include only toolchain distributions and rustup executables whose target matches this regular expression")
	f.IntVarP(&o.concurrency, "concurrency", "c", defaults.Concurrency, "maximum number of concurrent HTTP requests")
	f.BoolVar(&o.validateChecksums, "validate-checksums", false, "re-hash existing crate files and replace the ones that do not match the index (SHA-256)")
	f.StringVar(&o.userAgent, "user-agent", defaults.UserAgent, "User-Agent sent with every request")
	f.BoolVarP(&o.verbose, "verbose", "v", false, "enable verbose logging")
	f.BoolVar(&o.progress, "progress", false, "show periodic progress per stage")
	f.DurationVar(&o.timeout, "timeout", 0, "timeout per request, including the body (0 disables)")
	f.StringVar(&o.bucket, "bucket", "", "write artifacts to this bucket URL instead of OUTPUT-DIRECTORY (file://, s3://, gs://)")
	f.StringVar(&o.distOrigin, "dist-origin", defaults.DistOrigin, "origin of the toolchain distribution and rustup")
	f.StringVar(&o.registryOrigin, "registry-origin", defaults.RegistryOrigin, "origin of crate archives")
	f.StringVar(&o.indexURL, "index-url", defaults.IndexURL, "git URL of the crate registry index")
	f.StringVar(&o.metricsFile, "metrics-file", "", "write Prometheus metrics to this file after the run")
	f.BoolVar(&o.skipInstaller, "skip-installer", false, "do not mirror rustup")
	f.BoolVar(&o.skipDist, "skip-dist", false, "do not mirror toolchain channels")
	f.BoolVar(&o.skipCrates, "skip-crates", false, "do not mirror the crate registry")

	return cmd
}

// load layers defaults, the config file, the environment, changed flags and
// the positional output directory, then validates the result.
func (o *rootOptions) load(cmd *cobra.Command, args []string) (config.Config, error) {
	cfg := config.Default()
	if o.configFile != "" {
		var err error
		if cfg, err = config.LoadFromFile(o.configFile); err != nil {
			return config.Config{}, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return config.Config{}, err
	}

	changed := cmd.Flags().Changed
	var override config.Config
	if changed("channels") {
		override.Channels = o.channels
	}
	if changed("targets") {
		override.Targets = o.targets
	}
	if changed("concurrency") {
		if o.concurrency <= 0 {
			return config.Config{}, errors.New("config: concurrency must be positive")
		}
		override.Concurrency = o.concurrency
	}
	if changed("validate-checksums") {
		cfg.ValidateChecksums = o.validateChecksums
	}
	if changed("user-agent") {
		override.UserAgent = o.userAgent
	}
	if changed("verbose") {
		cfg.Verbose = o.verbose
	}
	if changed("progress") {
		cfg.Progress = o.progress
	}
	if changed("timeout") {
		// Zero is meaningful here: it clears a configured timeout.
		cfg.Timeout = o.timeout
	}
	if changed("bucket") {
		override.BucketURL = o.bucket
	}
	if changed("dist-origin") {
		override.DistOrigin = o.distOrigin
	}
	if changed("registry-origin") {
		override.RegistryOrigin = o.registryOrigin
	}
	if changed("index-url") {
		override.IndexURL = o.indexURL
	}
	if changed("metrics-file") {
		override.MetricsFile = o.metricsFile
	}
	if changed("skip-installer") {
		cfg.SkipInstaller = o.skipInstaller
	}
	if changed("skip-dist") {
		cfg.SkipDist = o.skipDist
	}
	if changed("skip-crates") {
		cfg.SkipCrates = o.skipCrates
	}
	if len(args) == 1 {
		override.OutputDir = args[0]
	}

	cfg = cfg.Merge(override)
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
