// Package http provides the HTTP client used to fetch mirrored artifacts.
//
// This package handles:
//   - Connection pooling sized for the mirror's concurrency
//   - A configurable User-Agent on every request
//   - Mapping non-success status codes to sentinel errors
//
// Requests are attempted exactly once. A failed artifact is skipped for the
// current run and picked up again by the next one.
//
// # Usage
//
//	client := http.NewClient(http.Options{
//	    UserAgent: "squire (https://github.com/oskarbraten/squire)",
//	    Timeout:   5 * time.Minute,
//	})
//
//	resp, err := client.Get(ctx, "https://static.rust-lang.org/dist/channel-rust-stable.toml")
//	defer resp.Body.Close()
package http
