package downloader

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gocloud.dev/blob/memblob"

	squirehttp "github.com/oskarbraten/squire/internal/http"
	"github.com/oskarbraten/squire/internal/testutils"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// Idle keep-alive connections of the shared HTTP transports.
		goleak.IgnoreAnyFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreAnyFunction("net/http.(*persistConn).writeLoop"),
		// Started by gocloud.dev/blob at init.
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

// fakeFetcher records concurrency and fails selected remote paths.
type fakeFetcher struct {
	delay    time.Duration
	failing  map[string]bool
	inFlight atomic.Int32
	maxSeen  atomic.Int32

	mu    sync.Mutex
	calls []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, job Job) Outcome {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, job.Descriptor.RemotePath)
	f.mu.Unlock()

	time.Sleep(f.delay)

	if f.failing[job.Descriptor.RemotePath] {
		return Outcome{Descriptor: job.Descriptor, Status: StatusFailed, Err: errors.New("boom")}
	}
	return Outcome{Descriptor: job.Descriptor, Status: StatusWritten}
}

func makeJobs(n int) []Job {
	jobs := make([]Job, n)
	for i := range jobs {
		jobs[i] = Job{Descriptor: NewDescriptor(fmt.Sprintf("/dist/pkg-%d.tar.xz", i+1)), Policy: FetchIfMissing()}
	}
	return jobs
}

func TestSchedulerBoundsConcurrencyAndIsolatesFailures(t *testing.T) {
	f := &fakeFetcher{
		delay:   20 * time.Millisecond,
		failing: map[string]bool{"/dist/pkg-2.tar.xz": true},
	}
	jobs := makeJobs(5)

	outcomes := NewScheduler(f, 2).Run(context.Background(), jobs)

	require.Len(t, outcomes, 5)
	failed := 0
	for i, o := range outcomes {
		assert.Equal(t, jobs[i].Descriptor, o.Descriptor)
		if o.Status == StatusFailed {
			failed++
			assert.Equal(t, "/dist/pkg-2.tar.xz", o.Descriptor.RemotePath)
		}
	}
	assert.Equal(t, 1, failed)
	assert.LessOrEqual(t, f.maxSeen.Load(), int32(2))
	assert.Equal(t, int32(2), f.maxSeen.Load(), "scheduler never used its full limit")
	assert.Len(t, f.calls, 5)
}

func TestSchedulerAttemptsEveryJobOnce(t *testing.T) {
	f := &fakeFetcher{failing: map[string]bool{}}
	jobs := makeJobs(50)
	for _, j := range jobs[:25] {
		f.failing[j.Descriptor.RemotePath] = true
	}

	outcomes := NewScheduler(f, 7).Run(context.Background(), jobs)

	require.Len(t, outcomes, 50)
	slices.Sort(f.calls)
	assert.Len(t, slices.Compact(f.calls), 50)
	assert.LessOrEqual(t, f.maxSeen.Load(), int32(7))
}

func TestSchedulerEachStreamsIndexes(t *testing.T) {
	f := &fakeFetcher{}
	jobs := makeJobs(10)

	seen := make(map[int]Status)
	NewScheduler(f, 3).Each(context.Background(), slices.Values(jobs), func(i int, o Outcome) {
		_, dup := seen[i]
		assert.False(t, dup, "index %d reported twice", i)
		seen[i] = o.Status
	})

	assert.Len(t, seen, 10)
}

func TestSchedulerNonPositiveLimit(t *testing.T) {
	f := &fakeFetcher{delay: time.Millisecond}
	s := NewScheduler(f, 0)
	assert.Equal(t, 1, s.Limit())

	outcomes := s.Run(context.Background(), makeJobs(4))
	assert.Len(t, outcomes, 4)
	assert.Equal(t, int32(1), f.maxSeen.Load())
}

func TestSchedulerCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := &fakeFetcher{delay: 50 * time.Millisecond}

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	outcomes := NewScheduler(f, 1).Run(ctx, makeJobs(10))

	require.Len(t, outcomes, 10)
	failed := 0
	for _, o := range outcomes {
		if o.Status == StatusFailed {
			failed++
			assert.ErrorIs(t, o.Err, context.Canceled)
		}
	}
	assert.Equal(t, 10, failed+len(f.calls))
	assert.Less(t, len(f.calls), 10)
}

func TestSchedulerEndToEnd(t *testing.T) {
	ctx := context.Background()
	files := map[string][]byte{
		"/dist/channel-rust-stable.toml":   []byte("manifest"),
		"/dist/2023-01-01/rustc.tar.xz":    []byte("rustc"),
		"/dist/2023-01-01/cargo.tar.xz":    []byte("cargo"),
		"/dist/2023-01-01/rust-std.tar.xz": []byte("std"),
	}
	origin := testutils.NewOrigin(t, files)

	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()
	store := NewStore(bucket)

	jobs := []Job{
		{Descriptor: NewDescriptor("/dist/channel-rust-stable.toml"), Policy: AlwaysFetch()},
		{Descriptor: NewDescriptor("/dist/2023-01-01/rustc.tar.xz"), Policy: FetchIfMissing()},
		{Descriptor: NewDescriptor("/dist/2023-01-01/cargo.tar.xz"), Policy: FetchIfMissing()},
		{Descriptor: NewDescriptor("/dist/2023-01-01/rust-std.tar.xz"), Policy: FetchIfMissing()},
	}

	run := func() []Outcome {
		client := squirehttp.NewClient(squirehttp.DefaultOptions())
		f := NewFetcher(client, store, Origins{Dist: origin.URL, Registry: origin.URL}, nil)
		return NewScheduler(f, 2).Run(ctx, jobs)
	}

	for _, o := range run() {
		assert.Equal(t, StatusWritten, o.Status, "%s: %v", o.Descriptor.Key, o.Err)
	}
	for p, data := range files {
		got, err := store.ReadAll(ctx, p[1:])
		require.NoError(t, err)
		assert.Equal(t, data, got)
	}

	second := run()
	assert.Equal(t, StatusWritten, second[0].Status)
	for _, o := range second[1:] {
		assert.Equal(t, StatusSkipped, o.Status, o.Descriptor.Key)
	}
	assert.Equal(t, 2, origin.Requests("/dist/channel-rust-stable.toml"))
	assert.Equal(t, 5, origin.TotalRequests())
}
