// Package tasks runs a user's export as a sequence of short, resumable batches.
//
// # Components
//
//   - [Registry] : the user's playlists and channels, each with an opaque continuation cursor
//   - [Executor] : one page for one source; stores new videos and advances the cursor in one transaction
//   - [ExportEngine] : picks the next incomplete source, reserves quota, runs the executor and reports
//     whether the caller should stop
//   - [Locker] : per-user lease in the database so only one batch runs per user at a time
//
// # Batches
//
// [ExportEngine.RunOneBatch] performs at most one page fetch. It checks the remaining quota, picks the first
// incomplete source in creation order, reserves the source's declared call cost with an atomic compare-and-increment,
// then fetches and stores the page. The returned [BatchResult] always describes a consistent state, so the operation
// is safe to call repeatedly from a human action or the auto-resume scheduler.
//
// Quota exhaustion is not an error. It comes back as ShouldStop with [StopQuota]. Remote failures wrap
// [shared.ErrTransient] or [shared.ErrFatal] and leave the source's cursor untouched.
//
// # Progress Reporting
//
// [ExportEngine.Drain] loops batches and sends [ProgressUpdate] values without blocking (select with default).
package tasks
