// Package repositories implements SQLite persistence for the export pipeline.
//
// Key Implementations:
//   - [SourceRepository] : registered playlists/channels with their continuation cursors
//   - [VideoRepository] : imported videos, deduplicated per user, plus every source each was seen in
//   - [QuotaRepository] : per-user, per-day quota usage with an atomic compare-and-increment
//   - [AutoResumeRepository] : auto-resume records with optimistic versioning
//   - [LeaseRepository] : time-bound per-user export leases shared by every process on the database
//
// Repositories run against a [Querier], which is either the [sql.DB] or a [sql.Tx]; WithTx rebinds a repository
// to a transaction so several writes commit together.
//
// Sequence numbers provide stable creation order independent of UUIDs and timestamps.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
