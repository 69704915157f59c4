// Package services defines the remote data source the export pipeline pulls from and implements it for the
// YouTube Data API v3.
//
// # SourceAPI
//
// [SourceAPI] is the only contract the pipeline depends on: list the next page of items for a source, starting at
// an opaque [models.Cursor], and declare what one such call costs against the daily quota.
//
// # YouTube Implementation
//
// [YouTubeService] uses resty for transport with a [rate.Limiter] pacing every request. Playlists are read with
// playlistItems.list and channels with search.list (newest first); each page is followed by one videos.list call
// to pick up language metadata.
//
// Authentication is either an API key (public sources) or an OAuth2 client built by [NewOAuthClient] from a token
// saved by the `auth youtube` command.
//
// # Error Handling
//
// Every failure is classified into exactly one class from the shared package:
//   - [shared.ErrTransient] : network errors, 5xx, 429 and per-user rate limiting
//   - [shared.ErrRemoteQuota] : the API's own daily quota is spent
//   - [shared.ErrFatal] : revoked credentials, missing or forbidden sources, malformed requests
package services
