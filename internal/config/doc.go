// Package config defines configuration structures for the squire CLI.
//
// Configuration can be provided via:
//   - Command-line flags
//   - Environment variables (SQUIRE_ prefix)
//   - YAML configuration file
//
// Later sources override earlier ones; flags win.
//
// # Example
//
//	output_dir: /srv/rust-mirror
//	channels: [stable, nightly, "1.66"]
//	targets: "x86_64|aarch64"
//	concurrency: 8
//	validate_checksums: true
//	timeout: 10m
//	metrics_file: /var/lib/node_exporter/textfile/squire.prom
package config
