package mirror

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/oskarbraten/squire/internal/downloader"
	"github.com/oskarbraten/squire/internal/manifest"
	"github.com/oskarbraten/squire/internal/registry"
)

const (
	discoveryChannel  = "stable"
	installerManifest = "/rustup/release-stable.toml"
)

func channelManifestPath(channel string) string {
	return fmt.Sprintf("/dist/channel-rust-%s.toml", channel)
}

func installerPath(arch string) string {
	name := "rustup-init"
	if strings.Contains(arch, "windows") {
		name += ".exe"
	}
	return fmt.Sprintf("/rustup/dist/%s/%s", arch, name)
}

// withSideFiles returns path followed by its signature and checksum files.
func withSideFiles(path string) []string {
	return []string{path, path + ".asc", path + ".sha256"}
}

func job(path string, policy downloader.Policy) downloader.Job {
	return downloader.Job{Descriptor: downloader.NewDescriptor(path), Policy: policy}
}

// fetchManifest always-fetches a channel manifest, plus its side files when
// asked, and reads it back from the store. A stored copy from an earlier run
// is used when the fetch fails.
func (m *Mirror) fetchManifest(ctx context.Context, st *stageRun, channel string, sideFiles bool) (string, error) {
	path := channelManifestPath(channel)
	paths := []string{path}
	if sideFiles {
		paths = withSideFiles(path)
	}

	jobs := make([]downloader.Job, 0, len(paths))
	for _, p := range paths {
		jobs = append(jobs, job(p, downloader.AlwaysFetch()))
	}
	st.run(ctx, slices.Values(jobs))

	data, err := m.store.ReadAll(ctx, jobs[0].Descriptor.Key)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrManifest, path, err)
	}
	return string(data), nil
}

// discover returns the architectures listed in the stable manifest that
// match the targets filter.
func (m *Mirror) discover(ctx context.Context) ([]string, error) {
	st := m.beginStage(StageDiscovery)
	st.log.Infof("Getting all available architectures for the Rust toolchain [channel-%s]...", discoveryChannel)

	text, err := m.fetchManifest(ctx, st, discoveryChannel, false)
	if err != nil {
		return nil, st.finish(err)
	}

	var archs []string
	for _, arch := range manifest.Architectures(text) {
		if m.opts.Targets == nil || m.opts.Targets.MatchString(arch) {
			archs = append(archs, arch)
		}
	}
	st.log.Infof("Selected architectures [channel-%s]: %s", discoveryChannel, strings.Join(archs, ", "))

	return archs, st.finish(nil)
}

func (m *Mirror) installer(ctx context.Context, archs []string) error {
	st := m.beginStage(StageInstaller)
	st.log.Info("Downloading rustup executables...")

	jobs := []downloader.Job{job(installerManifest, downloader.AlwaysFetch())}
	for _, arch := range archs {
		jobs = append(jobs, job(installerPath(arch), downloader.AlwaysFetch()))
	}

	st.track(len(jobs))
	st.run(ctx, slices.Values(jobs))
	return st.finish(ctx.Err())
}

func (m *Mirror) dist(ctx context.Context, channel string, archs []string) error {
	st := m.beginStage(DistStage(channel))
	st.log = st.log.WithField("channel", channel)
	st.log.Infof("Downloading Rust toolchain [channel-%s]...", channel)

	text, err := m.fetchManifest(ctx, st, channel, true)
	if err != nil {
		return st.finish(err)
	}

	paths, foreign := manifest.PackagePaths(text, archs, m.opts.DistOrigin)
	for _, u := range foreign {
		st.log.Warnf("Skipping URL (%s) in channel manifest that does not have this origin: %s", u, m.opts.DistOrigin)
	}

	total := len(paths)
	st.track(total * 3)
	st.run(ctx, func(yield func(downloader.Job) bool) {
		for i, p := range paths {
			st.log.Infof("Downloading – %d/%d", i+1, total)
			for _, sp := range withSideFiles(p) {
				if !yield(job(sp, downloader.FetchIfMissing())) {
					return
				}
			}
		}
	})
	return st.finish(ctx.Err())
}

func (m *Mirror) crates(ctx context.Context) error {
	st := m.beginStage(StageCrates)
	st.log.Info("Retrieving/updating crates.io-index...")

	if err := m.registry.RetrieveOrUpdate(ctx); err != nil {
		return st.finish(err)
	}

	var walkErr error
	st.track(0)
	st.run(ctx, m.crateJobs(ctx, st, &walkErr))
	if walkErr == nil {
		walkErr = ctx.Err()
	}
	return st.finish(walkErr)
}

// crateJobs yields one job per non-yanked version of every crate that has
// at least two versions. The walk error, if any, is stored in errp once the
// sequence is exhausted.
func (m *Mirror) crateJobs(ctx context.Context, st *stageRun, errp *error) iter.Seq[downloader.Job] {
	return func(yield func(downloader.Job) bool) {
		n := 0
		stopped := false
		err := m.registry.Walk(ctx, func(c registry.Crate) error {
			if len(c.Versions) < 2 {
				return nil
			}
			for _, v := range c.Versions {
				if v.Yanked {
					continue
				}
				n++
				st.log.Infof("Checking %s-%s – %d", v.Name, v.Vers, n)
				if !yield(m.crateJob(st, v)) {
					stopped = true
					return context.Canceled
				}
			}
			return nil
		})
		if err != nil && !stopped {
			*errp = err
		}
	}
}

func (m *Mirror) crateJob(st *stageRun, v registry.Version) downloader.Job {
	d := downloader.NewDescriptor(v.ArchivePath())

	sum, err := v.Checksum()
	if err != nil {
		st.log.WithError(err).Warnf("Ignoring checksum of %s-%s", v.Name, v.Vers)
		return downloader.Job{Descriptor: d, Policy: downloader.FetchIfMissing()}
	}

	policy := downloader.FetchIfMissing()
	if m.opts.ValidateChecksums {
		policy = downloader.FetchIfChecksumMismatch(sum)
	}
	return downloader.Job{Descriptor: d.WithChecksum(sum), Policy: policy}
}
