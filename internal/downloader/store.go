package downloader

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/url"
	"path/filepath"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

// DirBucketURL returns the gocloud URL of a local output directory. The
// directory is created on open, no attribute sidecar files are written, and
// temporary files live next to their final path so commits are a rename
// within one filesystem.
func DirBucketURL(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", dir, err)
	}
	u := url.URL{
		Scheme:   "file",
		Path:     filepath.ToSlash(abs),
		RawQuery: "create_dir=true&metadata=skip&no_tmp_dir=true",
	}
	return u.String(), nil
}

// Store is the mirror's output tree. Keys are slash separated paths relative
// to the output root.
type Store struct {
	bucket *blob.Bucket
}

// NewStore wraps an open bucket. The caller keeps ownership of the bucket.
func NewStore(bucket *blob.Bucket) *Store {
	return &Store{bucket: bucket}
}

// Exists reports whether an artifact is stored under key.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	return s.bucket.Exists(ctx, key)
}

// Verify hashes the stored artifact and compares it to want. A missing
// artifact does not verify.
func (s *Store) Verify(ctx context.Context, key string, want Digest) (bool, error) {
	r, err := s.bucket.NewReader(ctx, key, nil)
	if gcerrors.Code(err) == gcerrors.NotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("open %s: %w", key, err)
	}
	defer r.Close()

	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return false, fmt.Errorf("read %s: %w", key, err)
	}

	var got Digest
	copy(got[:], h.Sum(nil))
	return got == want, nil
}

// ReadAll returns the content stored under key.
func (s *Store) ReadAll(ctx context.Context, key string) ([]byte, error) {
	return s.bucket.ReadAll(ctx, key)
}

// Write streams r into key. The previous content is replaced only once the
// whole stream has been written; on any error, or when want is set and the
// payload digest differs, the write is discarded.
func (s *Store) Write(ctx context.Context, key string, r io.Reader, want *Digest) (int64, error) {
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w, err := s.bucket.NewWriter(wctx, key, &blob.WriterOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", key, err)
	}

	h := sha256.New()
	n, err := io.Copy(w, io.TeeReader(r, h))
	if err != nil {
		cancel()
		w.Close()
		return n, fmt.Errorf("write %s: %w", key, err)
	}

	if want != nil {
		var got Digest
		copy(got[:], h.Sum(nil))
		if got != *want {
			cancel()
			w.Close()
			return n, fmt.Errorf("%w: %s: expected %s, got %s", ErrChecksumMismatch, key, want, got)
		}
	}

	if err := w.Close(); err != nil {
		return n, fmt.Errorf("commit %s: %w", key, err)
	}
	return n, nil
}
