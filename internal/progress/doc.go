// Package progress provides progress reporting for mirroring stages.
//
// This package periodically writes one status line per stage with the number
// of written, skipped and failed artifacts, bytes transferred and throughput.
//
// # Usage
//
//	reporter := progress.NewReporter(progress.Options{
//	    Stage:   "dist/stable",
//	    Total:   len(jobs),
//	    Workers: 5,
//	})
//
//	reporter.Start()
//	defer reporter.Stop()
//
//	reporter.ArtifactStarted()
//	reporter.ArtifactWritten(size)
//
// # Output Format
//
//	[squire] dist/stable: 612 artifacts | Workers: 5
//	[squire] dist/stable: 200/612 (32.7%) | 12 written | 188 skipped | 0 failed | 5 in-progress | 1.2 GiB | 48 MiB/s
//	[squire] dist/stable: complete | 40 written | 572 skipped | 0 failed | 3.1 GiB in 1m 12s
package progress
