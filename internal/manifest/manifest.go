// Package manifest pulls architecture identifiers and package URLs out of a
// channel manifest.
//
// The scan is line oriented: a line contributes when its trimmed form starts
// with a known key, and its value is whatever follows the first double quote.
// Nested tables, comments and multi-line values are not understood, and
// lines that do not match are ignored rather than reported.
package manifest

import (
	"net/url"
	"slices"
	"strings"
)

const (
	targetPrefix = "target = "
	urlPrefix    = "url"
	xzURLPrefix  = "xz_url"
)

// Architectures returns the distinct values of all `target = "..."` lines,
// sorted.
func Architectures(text string) []string {
	seen := make(map[string]struct{})
	eachLine(text, func(line string) {
		if !strings.HasPrefix(line, targetPrefix) {
			return
		}
		if v := quotedValue(line); v != "" {
			seen[v] = struct{}{}
		}
	})

	archs := make([]string, 0, len(seen))
	for a := range seen {
		archs = append(archs, a)
	}
	slices.Sort(archs)
	return archs
}

// PackagePaths returns the URL paths of all `url`/`xz_url` values that
// contain one of archs and are served from origin, in manifest order.
// Matching values served from any other origin are returned in foreign.
func PackagePaths(text string, archs []string, origin string) (paths, foreign []string) {
	want := normalizeOrigin(origin)

	eachLine(text, func(line string) {
		if !strings.HasPrefix(line, urlPrefix) && !strings.HasPrefix(line, xzURLPrefix) {
			return
		}
		v := quotedValue(line)
		if v == "" || !containsAny(v, archs) {
			return
		}

		u, err := url.Parse(v)
		if err != nil || u.Scheme == "" || u.Host == "" {
			foreign = append(foreign, v)
			return
		}
		if originOf(u) != want {
			foreign = append(foreign, v)
			return
		}
		paths = append(paths, u.EscapedPath())
	})

	return paths, foreign
}

// eachLine calls fn for every trimmed line. Lines have no length limit.
func eachLine(text string, fn func(line string)) {
	for _, line := range strings.Split(text, "\n") {
		fn(strings.TrimSpace(line))
	}
}

// quotedValue returns the text after the first double quote, without
// trailing quotes and surrounding whitespace.
func quotedValue(line string) string {
	i := strings.IndexByte(line, '"')
	if i < 0 {
		return ""
	}
	v := strings.TrimSpace(line[i+1:])
	v = strings.TrimRight(v, `"`)
	return strings.TrimSpace(v)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func normalizeOrigin(origin string) string {
	u, err := url.Parse(strings.TrimSpace(origin))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return strings.TrimRight(strings.ToLower(origin), "/")
	}
	return originOf(u)
}

// originOf serializes scheme, host and non-default port.
func originOf(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if port == "" || (scheme == "https" && port == "443") || (scheme == "http" && port == "80") {
		return scheme + "://" + host
	}
	return scheme + "://" + host + ":" + port
}
