package downloader

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrChecksumMismatch is returned when downloaded or stored content does not
// hash to the digest the registry asserts for it.
var ErrChecksumMismatch = errors.New("downloader: checksum mismatch")

// Digest is a SHA-256 content digest.
type Digest [sha256.Size]byte

// ParseDigest parses a hex encoded SHA-256 digest.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return d, fmt.Errorf("downloader: parse digest: %w", err)
	}
	if len(b) != len(d) {
		return d, fmt.Errorf("downloader: parse digest: want %d bytes, got %d", len(d), len(b))
	}
	copy(d[:], b)
	return d, nil
}

// SumBytes returns the digest of b.
func SumBytes(b []byte) Digest {
	return Digest(sha256.Sum256(b))
}

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Descriptor identifies one artifact to mirror.
type Descriptor struct {
	// RemotePath is the root-relative URL path, always starting with "/".
	RemotePath string

	// Key is the storage key the artifact is written to. It mirrors
	// RemotePath without the leading slash.
	Key string

	// Checksum is the digest the registry asserts for this artifact, if any.
	// Downloads that do not match it are discarded.
	Checksum *Digest
}

// NewDescriptor creates a descriptor for a root-relative remote path.
func NewDescriptor(remotePath string) Descriptor {
	p := "/" + strings.TrimLeft(remotePath, "/")
	return Descriptor{
		RemotePath: p,
		Key:        p[1:],
	}
}

// WithChecksum returns a copy of d that expects the given digest.
func (d Descriptor) WithChecksum(sum Digest) Descriptor {
	d.Checksum = &sum
	return d
}

// Mode selects how an existing local copy is treated.
type Mode int

const (
	// ModeAlways fetches regardless of local state.
	ModeAlways Mode = iota
	// ModeIfMissing fetches only when nothing is stored under the key.
	ModeIfMissing
	// ModeIfChecksumMismatch fetches when nothing is stored or the stored
	// content does not match the expected digest.
	ModeIfChecksumMismatch
)

func (m Mode) String() string {
	switch m {
	case ModeAlways:
		return "always"
	case ModeIfMissing:
		return "if-missing"
	case ModeIfChecksumMismatch:
		return "if-checksum-mismatch"
	default:
		return "unknown"
	}
}

// Policy is the overwrite policy for a single artifact. Build one with
// AlwaysFetch, FetchIfMissing or FetchIfChecksumMismatch. The zero value
// behaves like AlwaysFetch.
type Policy struct {
	mode     Mode
	checksum Digest
}

// AlwaysFetch re-fetches unconditionally.
func AlwaysFetch() Policy {
	return Policy{mode: ModeAlways}
}

// FetchIfMissing fetches only absent artifacts.
func FetchIfMissing() Policy {
	return Policy{mode: ModeIfMissing}
}

// FetchIfChecksumMismatch fetches absent artifacts and those whose stored
// content does not hash to want.
func FetchIfChecksumMismatch(want Digest) Policy {
	return Policy{mode: ModeIfChecksumMismatch, checksum: want}
}

// Mode returns the policy variant.
func (p Policy) Mode() Mode {
	return p.mode
}

// Checksum returns the expected digest for ModeIfChecksumMismatch.
func (p Policy) Checksum() (Digest, bool) {
	if p.mode != ModeIfChecksumMismatch {
		return Digest{}, false
	}
	return p.checksum, true
}

func (p Policy) String() string {
	if p.mode == ModeIfChecksumMismatch {
		return fmt.Sprintf("%s(%s)", p.mode, p.checksum)
	}
	return p.mode.String()
}

// Job pairs a descriptor with the policy it is fetched under.
type Job struct {
	Descriptor Descriptor
	Policy     Policy
}

// Status is the result kind of one fetch attempt.
type Status int

const (
	StatusWritten Status = iota
	StatusSkipped
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusWritten:
		return "written"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome records what happened to one job.
type Outcome struct {
	Descriptor Descriptor
	Status     Status

	// Bytes is the payload size for StatusWritten.
	Bytes int64

	// Err is the cause for StatusFailed.
	Err error
}
