package server

import (
	"fmt"
	"html/template"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
)

// OAuthResult is the outcome of one authorization code callback.
type OAuthResult struct {
	Token *oauth2.Token
	Err   error
}

var callbackPage = template.Must(template.New("callback").Parse(`<!DOCTYPE html>
<html>
<head><title>ytexport</title>
<style>
body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif; display: flex; align-items: center;
       justify-content: center; height: 100vh; margin: 0; background: #f5f5f5; }
.box { text-align: center; background: white; padding: 2rem; border-radius: 8px; }
h1 { margin: 0 0 1rem 0; color: {{ if .OK }}#0f9d58{{ else }}#d93025{{ end }}; }
p { color: #666; margin: 0; }
</style>
</head>
<body><div class="box"><h1>{{ .Title }}</h1><p>{{ .Message }}</p></div></body>
</html>
`))

// OAuthHandler receives the Google OAuth2 redirect for the `auth youtube` command.
//
// Only the first callback is processed. It checks state, exchanges the code and delivers exactly one
// [OAuthResult] on [OAuthHandler.Result].
type OAuthHandler struct {
	config *oauth2.Config
	state  string
	result chan OAuthResult
	once   sync.Once
	mu     sync.Mutex
	hit    bool
}

// NewOAuthHandler creates a handler expecting the given state token.
func NewOAuthHandler(config *oauth2.Config, state string) *OAuthHandler {
	return &OAuthHandler{
		config: config,
		state:  state,
		result: make(chan OAuthResult, 1),
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *OAuthHandler) Routes() []string {
	return []string{"GET /callback"}
}

func (h *OAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.hit {
		h.mu.Unlock()
		http.Error(w, "Callback already processed", http.StatusBadRequest)
		return
	}
	h.hit = true
	h.mu.Unlock()

	q := r.URL.Query()
	if q.Get("state") != h.state {
		h.finish(w, http.StatusBadRequest, OAuthResult{Err: fmt.Errorf("invalid state parameter")})
		return
	}

	code := q.Get("code")
	if code == "" {
		err := fmt.Errorf("authorization failed: %s %s", q.Get("error"), q.Get("error_description"))
		h.finish(w, http.StatusBadRequest, OAuthResult{Err: err})
		return
	}

	token, err := h.config.Exchange(r.Context(), code)
	if err != nil {
		h.finish(w, http.StatusBadGateway, OAuthResult{Err: fmt.Errorf("token exchange failed: %w", err)})
		return
	}

	h.finish(w, http.StatusOK, OAuthResult{Token: token})
}

func (h *OAuthHandler) finish(w http.ResponseWriter, status int, result OAuthResult) {
	h.Send(result)

	page := struct {
		OK      bool
		Title   string
		Message string
	}{OK: result.Err == nil, Title: "Authorization successful", Message: "You can close this window and return to the terminal."}
	if result.Err != nil {
		page.Title = "Authorization failed"
		page.Message = result.Err.Error()
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = callbackPage.Execute(w, page)
}

// Send delivers result unless one was already delivered.
func (h *OAuthHandler) Send(result OAuthResult) {
	h.once.Do(func() {
		h.result <- result
		close(h.result)
	})
}

// Result receives exactly one result and is then closed.
func (h *OAuthHandler) Result() <-chan OAuthResult {
	return h.result
}
