package downloader

import "strings"

const (
	// DistOrigin serves toolchain distributions and the installer.
	DistOrigin = "https://static.rust-lang.org"

	// RegistryOrigin serves crate archives.
	RegistryOrigin = "https://static.crates.io"

	// ArchiveSuffix marks paths served by the registry origin.
	ArchiveSuffix = ".crate"
)

// Origins holds the two remote roots artifacts are fetched from.
type Origins struct {
	Dist     string
	Registry string
}

// DefaultOrigins returns the public origins.
func DefaultOrigins() Origins {
	return Origins{
		Dist:     DistOrigin,
		Registry: RegistryOrigin,
	}
}

// Resolve returns the absolute URL for a root-relative remote path.
func (o Origins) Resolve(remotePath string) string {
	origin := o.Dist
	if strings.HasSuffix(remotePath, ArchiveSuffix) {
		origin = o.Registry
	}
	return strings.TrimRight(origin, "/") + remotePath
}
