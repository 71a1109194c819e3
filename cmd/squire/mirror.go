package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"github.com/gosuri/uitable"
	"github.com/sirupsen/logrus"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/oskarbraten/squire/internal/config"
	"github.com/oskarbraten/squire/internal/downloader"
	squirehttp "github.com/oskarbraten/squire/internal/http"
	"github.com/oskarbraten/squire/internal/metrics"
	"github.com/oskarbraten/squire/internal/mirror"
	"github.com/oskarbraten/squire/internal/registry"
)

const (
	lockFile = ".squire.lock"
	indexDir = "index"
)

// runMirror performs one mirroring run with a validated configuration.
func runMirror(ctx context.Context, cfg config.Config, stdout, stderr io.Writer) error {
	log := newLogger(stderr, cfg.Verbose)

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return withExitCode(ExitOutputLocked, fmt.Errorf("create output directory: %w", err))
	}

	// One run per output directory at a time.
	lock := flock.New(filepath.Join(cfg.OutputDir, lockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return withExitCode(ExitOutputLocked, fmt.Errorf("lock output directory: %w", err))
	}
	if !locked {
		return withExitCode(ExitOutputLocked, fmt.Errorf("output directory %s is in use by another squire run", cfg.OutputDir))
	}
	defer lock.Unlock()

	bucketURL := cfg.BucketURL
	if bucketURL == "" {
		if bucketURL, err = downloader.DirBucketURL(cfg.OutputDir); err != nil {
			return err
		}
	}
	bkt, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return fmt.Errorf("open bucket: %w", err)
	}
	defer bkt.Close()

	targets, err := cfg.TargetsPattern()
	if err != nil {
		return withExitCode(ExitInvalidArgs, err)
	}

	client := squirehttp.NewClient(squirehttp.Options{
		UserAgent:           cfg.UserAgent,
		MaxIdleConnsPerHost: cfg.Concurrency * 2,
		Timeout:             cfg.Timeout,
	})
	store := downloader.NewStore(bkt)
	origins := downloader.Origins{Dist: cfg.DistOrigin, Registry: cfg.RegistryOrigin}
	fetcher := downloader.NewFetcher(client, store, origins, log)
	scheduler := downloader.NewScheduler(fetcher, cfg.Concurrency)
	collector := metrics.NewCollector()
	index := registry.NewIndex(filepath.Join(cfg.OutputDir, indexDir), cfg.IndexURL)

	m := mirror.New(scheduler, store, index, mirror.Options{
		Channels:          cfg.Channels,
		Targets:           targets,
		DistOrigin:        cfg.DistOrigin,
		ValidateChecksums: cfg.ValidateChecksums,
		SkipInstaller:     cfg.SkipInstaller,
		SkipDist:          cfg.SkipDist,
		SkipCrates:        cfg.SkipCrates,
		Progress:          cfg.Progress,
		ProgressOutput:    stderr,
		Observer:          collector,
		Logger:            log,
	})

	runErr := m.Run(ctx)
	printSummary(stdout, m.Summaries())

	if cfg.MetricsFile != "" {
		if err := collector.WriteToTextfile(cfg.MetricsFile); err != nil {
			log.WithError(err).Warn("Unable to write metrics")
		}
	}

	if runErr != nil && ctx.Err() != nil {
		fmt.Fprintln(stderr, "[squire] Mirror interrupted, run again to resume")
	}
	return runErr
}

func newLogger(w io.Writer, verbose bool) *logrus.Logger {
	log := logrus.New()
	log.Out = w
	log.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	log.Level = logrus.InfoLevel
	if verbose {
		log.Level = logrus.DebugLevel
	}
	return log
}

func printSummary(w io.Writer, summaries []mirror.StageSummary) {
	if len(summaries) == 0 {
		return
	}

	table := uitable.New()
	table.MaxColWidth = 80
	table.Wrap = true
	table.AddRow("STAGE", "WRITTEN", "SKIPPED", "FAILED", "SIZE", "DURATION", "ERROR")
	for _, s := range summaries {
		msg := ""
		if s.Err != nil {
			msg = s.Err.Error()
		}
		table.AddRow(s.Stage, s.Written, s.Skipped, s.Failed, humanize.IBytes(uint64(s.Bytes)), s.Duration.Round(time.Millisecond), msg)
	}
	fmt.Fprintln(w, table.String())
}
