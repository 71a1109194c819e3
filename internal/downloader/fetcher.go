package downloader

import (
	"context"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	squirehttp "github.com/oskarbraten/squire/internal/http"
)

// Getter performs a single GET request.
type Getter interface {
	Get(ctx context.Context, url string) (*squirehttp.Response, error)
}

// Fetcher retrieves single artifacts into a Store. A Fetcher represents one
// mirroring run: each key is written at most once during its lifetime.
type Fetcher struct {
	client  Getter
	store   *Store
	origins Origins
	log     logrus.FieldLogger

	claimed sync.Map // key -> *claim
}

// claim remembers whether the first attempt for a key failed.
type claim struct {
	mu  sync.Mutex
	err error
}

func (c *claim) failure() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *claim) fail(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

// NewFetcher creates a Fetcher. A nil logger discards log output.
func NewFetcher(client Getter, store *Store, origins Origins, log logrus.FieldLogger) *Fetcher {
	if log == nil {
		l := logrus.New()
		l.Out = io.Discard
		log = l
	}
	return &Fetcher{
		client:  client,
		store:   store,
		origins: origins,
		log:     log,
	}
}

// Fetch applies the job's policy and, when needed, downloads the artifact.
// It never returns an error: failures are reported in the Outcome. A key
// whose first attempt in this run failed keeps reporting that failure.
func (f *Fetcher) Fetch(ctx context.Context, job Job) Outcome {
	d := job.Descriptor
	log := f.log.WithField("key", d.Key)

	c, loaded := f.claimed.LoadOrStore(d.Key, &claim{})
	if loaded {
		if err := c.(*claim).failure(); err != nil {
			log.WithError(err).Warn("Earlier attempt in this run failed")
			return Outcome{Descriptor: d, Status: StatusFailed, Err: err}
		}
		log.Debug("Already handled in this run")
		return Outcome{Descriptor: d, Status: StatusSkipped}
	}

	out := f.fetch(ctx, job, log)
	if out.Status == StatusFailed {
		c.(*claim).fail(out.Err)
	}
	return out
}

func (f *Fetcher) fetch(ctx context.Context, job Job, log logrus.FieldLogger) Outcome {
	d := job.Descriptor

	if !f.shouldFetch(ctx, job, log) {
		log.Debugf("Skipping %s", d.Key)
		return Outcome{Descriptor: d, Status: StatusSkipped}
	}

	url := f.origins.Resolve(d.RemotePath)
	log = log.WithField("url", url)
	log.Infof("Downloading %s...", url)

	resp, err := f.client.Get(ctx, url)
	if err != nil {
		log.Warnf("Error downloading file: %s", url)
		log.Debug(err)
		return Outcome{Descriptor: d, Status: StatusFailed, Err: err}
	}
	defer resp.Body.Close()

	log.Debugf("Writing file %s...", d.Key)
	n, err := f.store.Write(ctx, d.Key, resp.Body, d.Checksum)
	if err != nil {
		log.WithError(err).Warnf("Error writing file: %s", d.Key)
		return Outcome{Descriptor: d, Status: StatusFailed, Bytes: n, Err: err}
	}

	return Outcome{Descriptor: d, Status: StatusWritten, Bytes: n}
}

func (f *Fetcher) shouldFetch(ctx context.Context, job Job, log logrus.FieldLogger) bool {
	// Always-fetch never touches storage.
	if job.Policy.Mode() == ModeAlways {
		return true
	}

	exists, err := f.store.Exists(ctx, job.Descriptor.Key)
	if err != nil {
		log.WithError(err).Debug("Existence check failed, treating as missing")
		return true
	}

	return ShouldFetch(exists, job.Policy, func(want Digest) bool {
		ok, err := f.store.Verify(ctx, job.Descriptor.Key, want)
		if err != nil {
			log.WithError(err).Debug("Unreadable local copy")
			return false
		}
		if !ok {
			log.Infof("Checksum mismatch for %s", job.Descriptor.Key)
		}
		return ok
	})
}
