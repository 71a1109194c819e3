package manifest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const channelManifest = `manifest-version = "2"
date = "2023-01-01"

[pkg.cargo]
version = "0.67.0 (8ecd4f20a 2022-12-09)"

[pkg.cargo.target.aarch64-apple-darwin]
available = true
url = "https://static.rust-lang.org/dist/2023-01-01/cargo-0.67.0-aarch64-apple-darwin.tar.gz"
hash = "00"
xz_url = "https://static.rust-lang.org/dist/2023-01-01/cargo-0.67.0-aarch64-apple-darwin.tar.xz"
xz_hash = "00"

[pkg.cargo.target.x86_64-unknown-linux-gnu]
available = true
url = "https://static.rust-lang.org/dist/2023-01-01/cargo-0.67.0-x86_64-unknown-linux-gnu.tar.gz"
xz_url = "https://static.rust-lang.org/dist/2023-01-01/cargo-0.67.0-x86_64-unknown-linux-gnu.tar.xz"

[pkg.rust]
components = [
    { pkg = "rustc", target = "x86_64-unknown-linux-gnu" },
]

[[pkg.rust.target.x86_64-unknown-linux-gnu.components]]
pkg = "rust-std"
target = "x86_64-unknown-linux-gnu"

[[pkg.rust.target.x86_64-unknown-linux-gnu.extensions]]
pkg = "rust-std"
target = "aarch64-apple-darwin"

[pkg.rust-src.target."*"]
url = "https://static.rust-lang.org/dist/2023-01-01/rust-src-1.66.0.tar.gz"

[pkg.rustc.target.x86_64-unknown-linux-gnu]
  url = "https://mirror.example.com/dist/2023-01-01/rustc-1.66.0-x86_64-unknown-linux-gnu.tar.gz"
`

func TestArchitecturesRoundTrip(t *testing.T) {
	got := Architectures("target = \"x86_64-unknown-linux-gnu\"\nother=1\n")
	assert.Equal(t, []string{"x86_64-unknown-linux-gnu"}, got)
}

func TestArchitecturesDeduplicates(t *testing.T) {
	got := Architectures(channelManifest)
	assert.Equal(t, []string{"aarch64-apple-darwin", "x86_64-unknown-linux-gnu"}, got)
}

func TestArchitecturesIgnoresOtherLines(t *testing.T) {
	text := `targets = "nope"
# target = "commented"
target="no-spaces"
    target = "indented"
target = no-quotes
`
	assert.Equal(t, []string{"indented"}, Architectures(text))
	assert.Empty(t, Architectures(""))
}

func TestPackagePathsSingleLine(t *testing.T) {
	text := `url = "https://static.rust-lang.org/dist/2023-01-01/rustc-1.66.0-x86_64-unknown-linux-gnu.tar.xz"`

	paths, foreign := PackagePaths(text, []string{"x86_64-unknown-linux-gnu"}, "https://static.rust-lang.org")

	assert.Equal(t, []string{"/dist/2023-01-01/rustc-1.66.0-x86_64-unknown-linux-gnu.tar.xz"}, paths)
	assert.Empty(t, foreign)
}

func TestPackagePathsFiltersAndPreservesOrder(t *testing.T) {
	paths, foreign := PackagePaths(channelManifest, []string{"x86_64-unknown-linux-gnu"}, "https://static.rust-lang.org/")

	assert.Equal(t, []string{
		"/dist/2023-01-01/cargo-0.67.0-x86_64-unknown-linux-gnu.tar.gz",
		"/dist/2023-01-01/cargo-0.67.0-x86_64-unknown-linux-gnu.tar.xz",
	}, paths)
	assert.Equal(t, []string{
		"https://mirror.example.com/dist/2023-01-01/rustc-1.66.0-x86_64-unknown-linux-gnu.tar.gz",
	}, foreign)
}

func TestPackagePathsMultipleArchitectures(t *testing.T) {
	paths, _ := PackagePaths(channelManifest, []string{"aarch64-apple-darwin", "x86_64-unknown-linux-gnu"}, "https://static.rust-lang.org")
	assert.Len(t, paths, 4)
	assert.Equal(t, "/dist/2023-01-01/cargo-0.67.0-aarch64-apple-darwin.tar.gz", paths[0])
}

func TestPackagePathsNoArchitectures(t *testing.T) {
	paths, foreign := PackagePaths(channelManifest, nil, "https://static.rust-lang.org")
	assert.Empty(t, paths)
	assert.Empty(t, foreign)
}

func TestPackagePathsOriginPorts(t *testing.T) {
	text := `url = "https://static.rust-lang.org:443/dist/a-x86_64.tar.gz"
url = "http://127.0.0.1:8080/dist/b-x86_64.tar.gz"
url = "http://127.0.0.1:9090/dist/c-x86_64.tar.gz"
`
	paths, foreign := PackagePaths(text, []string{"x86_64"}, "https://static.rust-lang.org")
	assert.Equal(t, []string{"/dist/a-x86_64.tar.gz"}, paths)
	assert.Len(t, foreign, 2)

	paths, _ = PackagePaths(text, []string{"x86_64"}, "http://127.0.0.1:8080")
	assert.Equal(t, []string{"/dist/b-x86_64.tar.gz"}, paths)
}

func TestQuotedValue(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{`target = "x86_64-pc-windows-msvc"`, "x86_64-pc-windows-msvc"},
		{`url = " https://a/b "`, "https://a/b"},
		{`url = "https://a/b""`, "https://a/b"},
		{`url = https://a/b`, ""},
		{`target = ""`, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, quotedValue(tt.line), tt.line)
	}
}

func TestLongLinesDoNotHideLaterEntries(t *testing.T) {
	text := `note = "` + strings.Repeat("a", 2<<20) + `"
target = "x86_64-unknown-linux-gnu"
url = "https://static.rust-lang.org/dist/2023-01-01/cargo-0.67.0-x86_64-unknown-linux-gnu.tar.gz"
`
	archs := Architectures(text)
	assert.Equal(t, []string{"x86_64-unknown-linux-gnu"}, archs)

	paths, foreign := PackagePaths(text, archs, "https://static.rust-lang.org")
	assert.Equal(t, []string{"/dist/2023-01-01/cargo-0.67.0-x86_64-unknown-linux-gnu.tar.gz"}, paths)
	assert.Empty(t, foreign)
}
