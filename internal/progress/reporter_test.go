package progress

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer guards a bytes.Buffer shared with the update loop.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		input    time.Duration
		expected string
	}{
		{0, "0s"},
		{42 * time.Second, "42s"},
		{72 * time.Second, "1m 12s"},
		{2*time.Hour + 3*time.Minute + 4*time.Second, "2h 3m 4s"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, formatDuration(tt.input))
	}
}

func TestReporterArtifactTracking(t *testing.T) {
	reporter := NewReporter(Options{Stage: "crates", Total: 3, Workers: 2})

	reporter.ArtifactStarted()
	reporter.ArtifactStarted()
	assert.Equal(t, 2, reporter.Snapshot().InProgress)

	reporter.ArtifactWritten(256)
	reporter.ArtifactSkipped()
	reporter.ArtifactStarted()
	reporter.ArtifactFailed()

	s := reporter.Snapshot()
	assert.Equal(t, 0, s.InProgress)
	assert.Equal(t, int64(1), s.Written)
	assert.Equal(t, int64(1), s.Skipped)
	assert.Equal(t, int64(1), s.Failed)
	assert.Equal(t, int64(256), s.Bytes)
	assert.Equal(t, int64(3), s.Done())
}

func TestReporterStartStop(t *testing.T) {
	out := &syncBuffer{}
	reporter := NewReporter(Options{
		Stage:          "dist/stable",
		Total:          4,
		Workers:        2,
		Output:         out,
		UpdateInterval: 10 * time.Millisecond,
	})

	reporter.Start()

	reporter.ArtifactStarted()
	reporter.ArtifactWritten(1024)
	reporter.ArtifactStarted()
	reporter.ArtifactSkipped()

	time.Sleep(50 * time.Millisecond)
	reporter.Stop()

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.GreaterOrEqual(t, len(lines), 2)
	assert.Equal(t, "[squire] dist/stable: 4 artifacts | Workers: 2", lines[0])
	assert.Contains(t, lines[len(lines)-1], "dist/stable: complete | 1 written | 1 skipped | 0 failed | 1.0 KiB")
	assert.Contains(t, out.String(), "2/4 (50.0%)")
}

func TestReporterStopWithoutStart(t *testing.T) {
	out := &syncBuffer{}
	reporter := NewReporter(Options{Stage: "installer", Output: out})

	reporter.Stop()
	reporter.Stop()
	assert.Empty(t, out.String())
}

func TestReporterUnknownTotal(t *testing.T) {
	out := &syncBuffer{}
	reporter := NewReporter(Options{Stage: "crates", Workers: 5, Output: out, UpdateInterval: time.Hour})

	reporter.Start()
	reporter.Stop()

	assert.True(t, strings.HasPrefix(out.String(), "[squire] crates: unknown artifacts | Workers: 5\n"))
}
