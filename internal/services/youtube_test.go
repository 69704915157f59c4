package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"golang.org/x/oauth2"

	"github.com/desertthunder/ytexport/internal/models"
	"github.com/desertthunder/ytexport/internal/shared"
)

func writeJSON(t *testing.T, w http.ResponseWriter, status int, body any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		t.Errorf("failed to encode response: %v", err)
	}
}

func newTestService(url string) *YouTubeService {
	return NewYouTubeService(YouTubeOpts{
		BaseURL:           url,
		APIKey:            "test-key",
		RequestsPerSecond: 1000,
		RetryCount:        0,
		Logger:            shared.NewLogger(nil),
	})
}

func videosHandler(t *testing.T, w http.ResponseWriter, r *http.Request, langs map[string]string) {
	t.Helper()
	var items []map[string]any
	for _, id := range strings.Split(r.URL.Query().Get("id"), ",") {
		items = append(items, map[string]any{
			"id":      id,
			"snippet": map[string]any{"defaultAudioLanguage": langs[id]},
		})
	}
	writeJSON(t, w, http.StatusOK, map[string]any{"items": items})
}

func TestYouTubeService(t *testing.T) {
	ctx := context.Background()

	t.Run("Name and costs", func(t *testing.T) {
		svc := NewYouTubeService(YouTubeOpts{PlaylistCost: 3})
		if svc.Name() != "YouTube" {
			t.Errorf("expected name YouTube, got %s", svc.Name())
		}
		if svc.CallCost(models.SourcePlaylist) != 3 {
			t.Errorf("expected playlist cost 3, got %d", svc.CallCost(models.SourcePlaylist))
		}
		if svc.CallCost(models.SourceChannel) != 101 {
			t.Errorf("expected default channel cost 101, got %d", svc.CallCost(models.SourceChannel))
		}
		if MinCallCost(svc) != 3 {
			t.Errorf("expected min cost 3, got %d", MinCallCost(svc))
		}
	})

	t.Run("FetchPage playlist", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			if q.Get("key") != "test-key" {
				t.Errorf("expected api key on every request, got %q", q.Get("key"))
			}

			switch r.URL.Path {
			case "/playlistItems":
				if q.Get("playlistId") != "PL1" {
					t.Errorf("expected playlistId PL1, got %s", q.Get("playlistId"))
				}
				if q.Get("pageToken") != "tok-1" {
					t.Errorf("expected pageToken tok-1, got %q", q.Get("pageToken"))
				}
				if q.Get("maxResults") != "50" {
					t.Errorf("expected maxResults 50, got %s", q.Get("maxResults"))
				}
				writeJSON(t, w, http.StatusOK, map[string]any{
					"nextPageToken": "tok-2",
					"items": []map[string]any{
						{
							"snippet": map[string]any{
								"title":                  "First",
								"videoOwnerChannelId":    "UC1",
								"videoOwnerChannelTitle": "Channel One",
								"thumbnails":             map[string]any{"default": map[string]any{"url": "d.jpg"}, "high": map[string]any{"url": "h.jpg"}},
								"resourceId":             map[string]any{"videoId": "v1"},
							},
							"contentDetails": map[string]any{"videoId": "v1", "videoPublishedAt": "2024-05-01T10:00:00Z"},
						},
						{
							"snippet":        map[string]any{"title": "Second", "resourceId": map[string]any{"videoId": "v2"}},
							"contentDetails": map[string]any{"videoId": "v2"},
						},
					},
				})
			case "/videos":
				videosHandler(t, w, r, map[string]string{"v1": "en-us", "v2": "fr"})
			default:
				t.Errorf("unexpected path %s", r.URL.Path)
				w.WriteHeader(http.StatusNotFound)
			}
		}))
		defer server.Close()

		page, err := newTestService(server.URL).FetchPage(ctx, models.SourcePlaylist, "PL1", models.CursorPtr("tok-1"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if page.NextCursor == nil || *page.NextCursor != "tok-2" {
			t.Errorf("expected next cursor tok-2, got %v", page.NextCursor)
		}
		if len(page.Items) != 2 {
			t.Fatalf("expected 2 items, got %d", len(page.Items))
		}

		first := page.Items[0]
		if first.VideoID != "v1" || first.Title != "First" || first.ChannelTitle != "Channel One" {
			t.Errorf("unexpected first item %+v", first)
		}
		if first.ThumbnailURL != "h.jpg" {
			t.Errorf("expected high thumbnail, got %s", first.ThumbnailURL)
		}
		if first.Language != "en-US" {
			t.Errorf("expected normalized language en-US, got %s", first.Language)
		}
		if first.PublishedAt == nil || first.PublishedAt.Year() != 2024 {
			t.Errorf("unexpected published at %v", first.PublishedAt)
		}
		if page.Items[1].Language != "fr" || page.Items[1].PublishedAt != nil {
			t.Errorf("unexpected second item %+v", page.Items[1])
		}
	})

	t.Run("FetchPage channel last page", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			switch r.URL.Path {
			case "/search":
				if q.Get("channelId") != "UC9" || q.Get("type") != "video" || q.Get("order") != "date" {
					t.Errorf("unexpected search query %s", r.URL.RawQuery)
				}
				if q.Has("pageToken") {
					t.Error("first page must not send a pageToken")
				}
				writeJSON(t, w, http.StatusOK, map[string]any{
					"items": []map[string]any{
						{
							"id":      map[string]any{"kind": "youtube#video", "videoId": "c1"},
							"snippet": map[string]any{"title": "Upload", "channelId": "UC9", "channelTitle": "Nine", "publishedAt": "2023-01-02T03:04:05Z"},
						},
					},
				})
			case "/videos":
				videosHandler(t, w, r, map[string]string{"c1": "en"})
			}
		}))
		defer server.Close()

		page, err := newTestService(server.URL).FetchPage(ctx, models.SourceChannel, "UC9", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if page.NextCursor != nil {
			t.Errorf("last page must have no cursor, got %v", *page.NextCursor)
		}
		if len(page.Items) != 1 || page.Items[0].ChannelID != "UC9" || page.Items[0].Language != "en" {
			t.Errorf("unexpected items %+v", page.Items)
		}
	})

	t.Run("Empty page skips language lookup", func(t *testing.T) {
		var videoCalls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/videos" {
				videoCalls.Add(1)
			}
			writeJSON(t, w, http.StatusOK, map[string]any{"items": []any{}})
		}))
		defer server.Close()

		page, err := newTestService(server.URL).FetchPage(ctx, models.SourcePlaylist, "PL1", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(page.Items) != 0 || page.NextCursor != nil {
			t.Errorf("expected empty final page, got %+v", page)
		}
		if videoCalls.Load() != 0 {
			t.Error("videos.list should not be called for an empty page")
		}
	})

	t.Run("Unknown kind is fatal", func(t *testing.T) {
		_, err := newTestService("http://127.0.0.1:0").FetchPage(ctx, models.SourceKind("album"), "x", nil)
		if !errors.Is(err, shared.ErrFatal) {
			t.Errorf("expected ErrFatal, got %v", err)
		}
	})

	t.Run("Network error is transient", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := server.URL
		server.Close()

		_, err := newTestService(url).FetchPage(ctx, models.SourcePlaylist, "PL1", nil)
		if !errors.Is(err, shared.ErrTransient) {
			t.Errorf("expected ErrTransient, got %v", err)
		}
	})
}

func TestClassifyErrors(t *testing.T) {
	tc := []struct {
		name   string
		status int
		reason string
		want   error
	}{
		{name: "quota exceeded", status: 403, reason: "quotaExceeded", want: shared.ErrRemoteQuota},
		{name: "daily limit", status: 403, reason: "dailyLimitExceeded", want: shared.ErrRemoteQuota},
		{name: "user rate limit", status: 403, reason: "userRateLimitExceeded", want: shared.ErrTransient},
		{name: "forbidden", status: 403, reason: "playlistItemsNotAccessible", want: shared.ErrFatal},
		{name: "too many requests", status: 429, want: shared.ErrTransient},
		{name: "backend error", status: 503, reason: "backendError", want: shared.ErrTransient},
		{name: "unauthorized", status: 401, reason: "authError", want: shared.ErrNotAuthenticated},
		{name: "not found", status: 404, reason: "playlistNotFound", want: shared.ErrFatal},
		{name: "bad request", status: 400, reason: "invalidPageToken", want: shared.ErrFatal},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(t, w, tt.status, map[string]any{
					"error": map[string]any{
						"code":    tt.status,
						"message": "boom",
						"errors":  []map[string]any{{"reason": tt.reason, "domain": "youtube"}},
					},
				})
			}))
			defer server.Close()

			_, err := newTestService(server.URL).FetchPage(context.Background(), models.SourcePlaylist, "PL1", nil)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}

			classes := 0
			for _, class := range []error{shared.ErrTransient, shared.ErrFatal, shared.ErrRemoteQuota} {
				if errors.Is(err, class) {
					classes++
				}
			}
			if classes != 1 {
				t.Errorf("error must belong to exactly one class, got %d: %v", classes, err)
			}
		})
	}
}

func TestTokens(t *testing.T) {
	t.Run("LoadToken missing", func(t *testing.T) {
		_, err := LoadToken(filepath.Join(t.TempDir(), "token.json"))
		if !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})

	t.Run("SaveToken then LoadToken", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "token.json")
		if err := SaveToken(path, &oauth2.Token{AccessToken: "a", RefreshToken: "r"}); err != nil {
			t.Fatalf("failed to save token: %v", err)
		}
		token, err := LoadToken(path)
		if err != nil {
			t.Fatalf("failed to load token: %v", err)
		}
		if token.RefreshToken != "r" {
			t.Errorf("expected refresh token r, got %s", token.RefreshToken)
		}
	})

	t.Run("NewOAuthConfig requires client", func(t *testing.T) {
		if _, err := NewOAuthConfig(shared.YouTubeConfig{}); !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}

		config, err := NewOAuthConfig(shared.YouTubeConfig{ClientID: "id", ClientSecret: "secret"})
		if err != nil {
			t.Fatal(err)
		}
		url := AuthURL(config, "state-123")
		if !strings.Contains(url, "access_type=offline") || !strings.Contains(url, "state=state-123") {
			t.Errorf("unexpected auth url %s", url)
		}
	})
}
