// Package server exposes the export pipeline over HTTP.
//
// # API
//
// [API] serves JSON endpoints for export initialization, single batches, export status and the auto-resume
// controls. [NewRouter] wires them behind [Identity], which takes the caller's user id from the
// X-User-ID header set by the fronting auth layer and answers 401 without it.
//
//	POST /api/export/init          {"playlists":[{"id":"PL..","title":".."}],"channels":[{"id":"UC.."}]}
//	POST /api/export/batch         409 while another batch holds the user's lease
//	GET  /api/export/status
//	POST /api/auto-resume/enable
//	POST /api/auto-resume/disable
//	GET  /api/auto-resume/status   null when never enabled
//	POST /api/auto-resume/attempt
//	GET  /healthz
//
// # Router
//
// [BasicRouter] uses [http.ServeMux] method patterns. [Middleware] wraps handlers in reverse order
// (last added executes first) and only applies to routes registered after it was added.
//
// # OAuth callback
//
// [OAuthHandler] completes the Google authorization code flow for the CLI: a temporary server on the
// redirect URI's port receives one callback, checks the state token and hands the token back on a channel.
package server
