package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// Options configures the progress reporter.
type Options struct {
	// Stage names the mirroring stage being reported (for display).
	Stage string

	// Total is the number of artifacts in the stage, or 0 if unknown.
	Total int

	// Workers is the concurrency limit (for display).
	Workers int

	// Output is where to write progress output.
	// Default: os.Stderr
	Output io.Writer

	// UpdateInterval is how often to update the progress display.
	// Default: 2s
	UpdateInterval time.Duration
}

// Reporter outputs human-readable progress information for one stage.
type Reporter struct {
	opts Options

	mu         sync.Mutex
	written    atomic.Int64
	skipped    atomic.Int64
	failed     atomic.Int64
	inProgress atomic.Int32
	bytes      atomic.Int64
	startTime  time.Time
	stopCh     chan struct{}
	doneCh     chan struct{}
	started    bool
	stopped    bool
}

// NewReporter creates a new progress reporter.
func NewReporter(opts Options) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if opts.UpdateInterval == 0 {
		opts.UpdateInterval = 2 * time.Second
	}

	return &Reporter{
		opts:   opts,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start prints the header and begins periodic updates.
func (r *Reporter) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true
	r.startTime = time.Now()

	total := "unknown"
	if r.opts.Total > 0 {
		total = humanize.Comma(int64(r.opts.Total))
	}
	fmt.Fprintf(r.opts.Output, "[squire] %s: %s artifacts | Workers: %d\n", r.opts.Stage, total, r.opts.Workers)

	go r.updateLoop()
}

// Stop stops periodic updates and prints the final status. It waits for the
// final line to be written.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if r.stopped || !r.started {
		r.stopped = true
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()

	close(r.stopCh)
	<-r.doneCh
}

// ArtifactStarted marks an artifact as in progress.
func (r *Reporter) ArtifactStarted() {
	r.inProgress.Add(1)
}

// ArtifactWritten marks an artifact as downloaded.
func (r *Reporter) ArtifactWritten(size int64) {
	r.bytes.Add(size)
	r.written.Add(1)
	r.inProgress.Add(-1)
}

// ArtifactSkipped marks an artifact as already current.
func (r *Reporter) ArtifactSkipped() {
	r.skipped.Add(1)
	r.inProgress.Add(-1)
}

// ArtifactFailed marks an artifact as failed.
func (r *Reporter) ArtifactFailed() {
	r.failed.Add(1)
	r.inProgress.Add(-1)
}

// Snapshot is a point-in-time view of the counters.
type Snapshot struct {
	Written    int64
	Skipped    int64
	Failed     int64
	InProgress int
	Bytes      int64
}

// Done returns the number of finished artifacts.
func (s Snapshot) Done() int64 {
	return s.Written + s.Skipped + s.Failed
}

// Snapshot returns the current counters.
func (r *Reporter) Snapshot() Snapshot {
	return Snapshot{
		Written:    r.written.Load(),
		Skipped:    r.skipped.Load(),
		Failed:     r.failed.Load(),
		InProgress: int(r.inProgress.Load()),
		Bytes:      r.bytes.Load(),
	}
}

func (r *Reporter) updateLoop() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.opts.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			r.printFinalStatus()
			return
		case <-ticker.C:
			r.printProgress()
		}
	}
}

func (r *Reporter) printProgress() {
	s := r.Snapshot()
	elapsed := time.Since(r.startTime).Seconds()
	if elapsed < 0.1 {
		elapsed = 0.1
	}
	speed := float64(s.Bytes) / elapsed

	done := humanize.Comma(s.Done())
	if r.opts.Total > 0 {
		percent := float64(s.Done()) / float64(r.opts.Total) * 100
		done = fmt.Sprintf("%s/%s (%.1f%%)", done, humanize.Comma(int64(r.opts.Total)), percent)
	}

	fmt.Fprintf(r.opts.Output, "[squire] %s: %s | %d written | %d skipped | %d failed | %d in-progress | %s | %s/s\n",
		r.opts.Stage,
		done,
		s.Written,
		s.Skipped,
		s.Failed,
		s.InProgress,
		humanize.IBytes(uint64(s.Bytes)),
		humanize.IBytes(uint64(speed)),
	)
}

func (r *Reporter) printFinalStatus() {
	s := r.Snapshot()
	duration := time.Since(r.startTime)

	fmt.Fprintf(r.opts.Output, "[squire] %s: complete | %d written | %d skipped | %d failed | %s in %s\n",
		r.opts.Stage,
		s.Written,
		s.Skipped,
		s.Failed,
		humanize.IBytes(uint64(s.Bytes)),
		formatDuration(duration),
	)
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}
