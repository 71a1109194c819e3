// Package registry reads a local checkout of the crate registry index.
//
// The index is a git repository with one file per crate. Each line of a
// crate file is a JSON document describing one published version:
//
//	{"name":"serde","vers":"1.0.0","deps":[],"cksum":"<sha256 hex>","features":{},"yanked":false}
//
// Files are spread over prefix directories (1/, 2/, 3/s/, se/rd/, ...); the
// root holds config.json, which is not a crate.
package registry

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/vcs"

	"github.com/oskarbraten/squire/internal/downloader"
)

// DefaultURL is the upstream git index.
const DefaultURL = "https://github.com/rust-lang/crates.io-index"

// Version is one published version of a crate.
type Version struct {
	Name   string `json:"name"`
	Vers   string `json:"vers"`
	Cksum  string `json:"cksum"`
	Yanked bool   `json:"yanked"`
}

// Checksum returns the archive digest recorded in the index.
func (v Version) Checksum() (downloader.Digest, error) {
	return downloader.ParseDigest(v.Cksum)
}

// ArchivePath returns the root-relative path of the version's archive.
func (v Version) ArchivePath() string {
	return fmt.Sprintf("/crates/%s/%s-%s%s", v.Name, v.Name, v.Vers, downloader.ArchiveSuffix)
}

// Crate is a crate with every version listed in the index.
type Crate struct {
	Name     string
	Versions []Version
}

// Index is a registry index checked out at a local path.
type Index struct {
	path string
	url  string
}

// NewIndex returns an index rooted at path, cloned from url.
func NewIndex(path, url string) *Index {
	if url == "" {
		url = DefaultURL
	}
	return &Index{path: path, url: url}
}

// Path returns the local checkout directory.
func (i *Index) Path() string {
	return i.path
}

// RetrieveOrUpdate clones the index if there is no checkout yet, and pulls
// otherwise. git runs to completion; ctx is only checked before starting.
func (i *Index) RetrieveOrUpdate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	repo, err := vcs.NewGitRepo(i.url, i.path)
	if err != nil {
		return fmt.Errorf("registry: open index %s: %w", i.path, err)
	}

	if repo.CheckLocal() {
		if err := repo.Update(); err != nil {
			return fmt.Errorf("registry: update index: %w", err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(i.path), 0o755); err != nil {
		return fmt.Errorf("registry: create index parent: %w", err)
	}
	if err := repo.Get(); err != nil {
		return fmt.Errorf("registry: clone index: %w", err)
	}
	return nil
}

// Walk calls fn for every crate in the checkout. Walking stops at the first
// error returned by fn or encountered while reading.
func (i *Index) Walk(ctx context.Context, fn func(Crate) error) error {
	err := filepath.WalkDir(i.path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if strings.HasPrefix(d.Name(), ".") && path != i.path {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || filepath.Dir(path) == filepath.Clean(i.path) {
			return nil
		}

		crate, err := readCrate(path)
		if err != nil {
			return err
		}
		return fn(crate)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("registry: walk index: %w", err)
	}
	return err
}

func readCrate(path string) (Crate, error) {
	f, err := os.Open(path)
	if err != nil {
		return Crate{}, err
	}
	defer f.Close()

	crate := Crate{Name: filepath.Base(path)}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var v Version
		if err := json.Unmarshal([]byte(text), &v); err != nil {
			return Crate{}, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		crate.Versions = append(crate.Versions, v)
	}
	if err := sc.Err(); err != nil {
		return Crate{}, fmt.Errorf("%s: %w", path, err)
	}

	if len(crate.Versions) > 0 {
		crate.Name = crate.Versions[0].Name
	}
	return crate, nil
}
