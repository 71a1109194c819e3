// Package mirror sequences the mirroring stages of a run: architecture
// discovery, the rustup installer, the toolchain distribution of every
// requested channel, and the crate registry.
package mirror

import (
	"context"
	"errors"
	"io"
	"regexp"
	"slices"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/oskarbraten/squire/internal/downloader"
	"github.com/oskarbraten/squire/internal/registry"
)

// ErrManifest is returned when a channel manifest cannot be read back after
// it was fetched.
var ErrManifest = errors.New("mirror: channel manifest unavailable")

// Stage names used in logs, summaries and metrics.
const (
	StageDiscovery = "discovery"
	StageInstaller = "installer"
	StageCrates    = "crates"
)

// DistStage returns the stage name of a channel's distribution.
func DistStage(channel string) string {
	return "dist/" + channel
}

// Registry is the crate registry index.
type Registry interface {
	RetrieveOrUpdate(ctx context.Context) error
	Walk(ctx context.Context, fn func(registry.Crate) error) error
}

// Observer receives every artifact outcome and stage duration.
// *metrics.Collector implements it.
type Observer interface {
	Observe(stage string, o downloader.Outcome)
	ObserveStage(stage string, d time.Duration)
}

// Options configures a Mirror.
type Options struct {
	// Channels lists the toolchain channels to mirror.
	Channels []string

	// Targets filters the discovered architectures. Nil keeps all of them.
	Targets *regexp.Regexp

	// DistOrigin is the origin manifest URLs must point at to be mirrored.
	// Default: downloader.DistOrigin
	DistOrigin string

	// ValidateChecksums re-hashes existing crate archives and replaces the
	// ones that do not match the index.
	ValidateChecksums bool

	SkipInstaller bool
	SkipDist      bool
	SkipCrates    bool

	// Progress enables a periodic status line per stage.
	Progress bool

	// ProgressOutput is where progress lines go.
	// Default: os.Stderr
	ProgressOutput io.Writer

	// Observer, if set, is notified of every outcome.
	Observer Observer

	// Logger receives per-artifact and per-stage logs. Nil discards them.
	Logger logrus.FieldLogger
}

// StageSummary counts the outcomes of one stage.
type StageSummary struct {
	Stage    string
	Written  int
	Skipped  int
	Failed   int
	Bytes    int64
	Duration time.Duration
	Err      error
}

// Mirror runs the mirroring stages against one output store.
type Mirror struct {
	scheduler *downloader.Scheduler
	store     *downloader.Store
	registry  Registry
	opts      Options
	log       logrus.FieldLogger

	summaries []StageSummary
}

// New creates a Mirror. reg may be nil when the crates stage is skipped.
func New(scheduler *downloader.Scheduler, store *downloader.Store, reg Registry, opts Options) *Mirror {
	if opts.DistOrigin == "" {
		opts.DistOrigin = downloader.DistOrigin
	}
	log := opts.Logger
	if log == nil {
		l := logrus.New()
		l.Out = io.Discard
		log = l
	}
	return &Mirror{
		scheduler: scheduler,
		store:     store,
		registry:  reg,
		opts:      opts,
		log:       log,
	}
}

// Run mirrors every enabled stage. Individual artifact failures are logged
// and counted but do not fail the run. A failed stage does not stop later
// independent stages; all stage errors are returned together. Failing to
// discover architectures aborts the run.
func (m *Mirror) Run(ctx context.Context) error {
	var result *multierror.Error

	if !m.opts.SkipInstaller || !m.opts.SkipDist {
		archs, err := m.discover(ctx)
		if err != nil {
			return err
		}

		if !m.opts.SkipInstaller {
			if err := m.installer(ctx, archs); err != nil {
				result = multierror.Append(result, err)
			}
		}

		if !m.opts.SkipDist {
			for _, channel := range m.opts.Channels {
				if err := ctx.Err(); err != nil {
					return multierror.Append(result, err).ErrorOrNil()
				}
				if err := m.dist(ctx, channel, archs); err != nil {
					result = multierror.Append(result, err)
				}
			}
		}
	}

	if !m.opts.SkipCrates {
		if err := ctx.Err(); err != nil {
			return multierror.Append(result, err).ErrorOrNil()
		}
		if err := m.crates(ctx); err != nil {
			result = multierror.Append(result, err)
		}
	}

	return result.ErrorOrNil()
}

// Summaries returns the summary of every stage run so far, in run order.
func (m *Mirror) Summaries() []StageSummary {
	return slices.Clone(m.summaries)
}
