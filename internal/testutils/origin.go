// Package testutils provides shared test infrastructure.
package testutils

import (
	"crypto/rand"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
)

// Origin is an httptest server standing in for a remote artifact origin.
// It serves registered files by URL path and counts requests per path.
type Origin struct {
	*httptest.Server

	mu         sync.Mutex
	files      map[string][]byte
	statuses   map[string]int
	truncated  map[string]bool
	requests   map[string]int
	userAgents []string
}

// NewOrigin starts an Origin serving files keyed by URL path (e.g.
// "/dist/channel-rust-stable.toml"). The server is closed on test cleanup.
func NewOrigin(t *testing.T, files map[string][]byte) *Origin {
	t.Helper()

	o := &Origin{
		files:     make(map[string][]byte),
		statuses:  make(map[string]int),
		truncated: make(map[string]bool),
		requests:  make(map[string]int),
	}
	for p, data := range files {
		o.files[p] = data
	}

	o.Server = httptest.NewServer(http.HandlerFunc(o.serve))
	t.Cleanup(o.Server.Close)
	return o
}

func (o *Origin) serve(w http.ResponseWriter, r *http.Request) {
	o.mu.Lock()
	o.requests[r.URL.Path]++
	o.userAgents = append(o.userAgents, r.Header.Get("User-Agent"))
	status, failing := o.statuses[r.URL.Path]
	truncate := o.truncated[r.URL.Path]
	data, ok := o.files[r.URL.Path]
	o.mu.Unlock()

	if failing {
		w.WriteHeader(status)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if truncate {
		// Declared length is never reached; the client sees an unexpected EOF.
		w.Write(data[:len(data)/2])
		return
	}
	w.Write(data)
}

// Set registers or replaces the file served at path.
func (o *Origin) Set(path string, data []byte) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.files[path] = data
	delete(o.statuses, path)
	delete(o.truncated, path)
}

// Fail makes requests for path answer with status.
func (o *Origin) Fail(path string, status int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses[path] = status
}

// Truncate makes requests for path stop halfway through the body.
func (o *Origin) Truncate(path string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.truncated[path] = true
}

// Requests returns how many requests were made for path.
func (o *Origin) Requests(path string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.requests[path]
}

// TotalRequests returns the number of requests across all paths.
func (o *Origin) TotalRequests() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	total := 0
	for _, n := range o.requests {
		total += n
	}
	return total
}

// UserAgents returns the User-Agent header of every request seen so far.
func (o *Origin) UserAgents() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.userAgents...)
}

// GenerateTestData returns size bytes of deterministic data, or random data
// when random is true.
func GenerateTestData(t *testing.T, size int, random bool) []byte {
	t.Helper()
	data := make([]byte, size)
	if random {
		if _, err := rand.Read(data); err != nil {
			t.Fatalf("generate random data: %v", err)
		}
		return data
	}
	for i := range data {
		data[i] = byte(i % 256)
	}
	return data
}
