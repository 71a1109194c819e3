// Package downloader is the idempotent, bounded-concurrency download engine
// behind the mirror.
//
// A [Job] pairs a [Descriptor] (remote path, storage key and optional
// expected digest) with a [Policy]:
//   - [AlwaysFetch]: re-fetch unconditionally (manifests, installers)
//   - [FetchIfMissing]: fetch only absent artifacts (immutable archives)
//   - [FetchIfChecksumMismatch]: also re-fetch when the stored digest differs
//
// [Fetcher] evaluates the policy against a [Store], downloads when needed and
// commits the payload atomically: a failed or interrupted transfer never
// leaves a truncated file under the final key. [Scheduler] fans jobs out with
// a counting semaphore; one job's failure never cancels or blocks another,
// and nothing is retried.
//
// # Usage
//
//	store := downloader.NewStore(bucket)
//	fetcher := downloader.NewFetcher(client, store, downloader.DefaultOrigins(), log)
//	outcomes := downloader.NewScheduler(fetcher, 5).Run(ctx, []downloader.Job{
//	    {Descriptor: downloader.NewDescriptor("/dist/channel-rust-stable.toml"), Policy: downloader.AlwaysFetch()},
//	})
package downloader
