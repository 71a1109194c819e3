package mirror

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oskarbraten/squire/internal/downloader"
	"github.com/oskarbraten/squire/internal/progress"
)

// stageRun accumulates the outcomes of one stage.
type stageRun struct {
	m        *Mirror
	log      logrus.FieldLogger
	summary  StageSummary
	reporter *progress.Reporter
	start    time.Time
}

func (m *Mirror) beginStage(name string) *stageRun {
	return &stageRun{
		m:       m,
		log:     m.log.WithField("stage", name),
		summary: StageSummary{Stage: name},
		start:   time.Now(),
	}
}

// track starts progress reporting once the number of artifacts is known.
// total may be 0 when it is not.
func (s *stageRun) track(total int) {
	if !s.m.opts.Progress || s.reporter != nil {
		return
	}
	s.reporter = progress.NewReporter(progress.Options{
		Stage:   s.summary.Stage,
		Total:   total,
		Workers: s.m.scheduler.Limit(),
		Output:  s.m.opts.ProgressOutput,
	})
	s.reporter.Start()
}

// run schedules jobs and records every outcome.
func (s *stageRun) run(ctx context.Context, jobs iter.Seq[downloader.Job]) {
	admitted := func(yield func(downloader.Job) bool) {
		for job := range jobs {
			if s.reporter != nil {
				s.reporter.ArtifactStarted()
			}
			if !yield(job) {
				return
			}
		}
	}
	s.m.scheduler.Each(ctx, admitted, func(_ int, o downloader.Outcome) {
		s.record(o)
	})
}

func (s *stageRun) record(o downloader.Outcome) {
	switch o.Status {
	case downloader.StatusWritten:
		s.summary.Written++
		s.summary.Bytes += o.Bytes
		if s.reporter != nil {
			s.reporter.ArtifactWritten(o.Bytes)
		}
	case downloader.StatusSkipped:
		s.summary.Skipped++
		if s.reporter != nil {
			s.reporter.ArtifactSkipped()
		}
	default:
		s.summary.Failed++
		if s.reporter != nil {
			s.reporter.ArtifactFailed()
		}
	}
	if s.m.opts.Observer != nil {
		s.m.opts.Observer.Observe(s.summary.Stage, o)
	}
}

// finish closes the stage and returns err prefixed with the stage name.
func (s *stageRun) finish(err error) error {
	if s.reporter != nil {
		s.reporter.Stop()
	}
	s.summary.Duration = time.Since(s.start)
	if s.m.opts.Observer != nil {
		s.m.opts.Observer.ObserveStage(s.summary.Stage, s.summary.Duration)
	}
	if err != nil {
		err = fmt.Errorf("%s: %w", s.summary.Stage, err)
		s.summary.Err = err
	}

	s.log.WithFields(logrus.Fields{
		"written": s.summary.Written,
		"skipped": s.summary.Skipped,
		"failed":  s.summary.Failed,
	}).Debug("Stage finished")

	s.m.summaries = append(s.m.summaries, s.summary)
	return err
}
