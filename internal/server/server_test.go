package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/desertthunder/ytexport/internal/models"
	"github.com/desertthunder/ytexport/internal/resume"
	"github.com/desertthunder/ytexport/internal/shared"
	"github.com/desertthunder/ytexport/internal/tasks"
)

type stubExporter struct {
	initFn      func(user string, playlists, channels []models.SourceRef) (*tasks.ExportInitResult, error)
	batchErr    error
	statusCalls int
	lastUser    string
}

func (s *stubExporter) InitExport(ctx context.Context, user string, playlists, channels []models.SourceRef) (*tasks.ExportInitResult, error) {
	s.lastUser = user
	return s.initFn(user, playlists, channels)
}

func (s *stubExporter) RunOneBatch(ctx context.Context, user string) (*tasks.BatchResult, error) {
	return s.RunExportBatch(ctx, user)
}

func (s *stubExporter) RunExportBatch(ctx context.Context, user string) (*tasks.BatchResult, error) {
	s.lastUser = user
	if s.batchErr != nil {
		return nil, s.batchErr
	}
	return &tasks.BatchResult{SourceID: "P1", VideosImported: 3, HasMore: true, QuotaUsedToday: 2, QuotaCeiling: 100}, nil
}

func (s *stubExporter) Drain(ctx context.Context, progress chan<- tasks.ProgressUpdate, user string, limit int) (*tasks.DrainResult, error) {
	return &tasks.DrainResult{}, nil
}

func (s *stubExporter) Status(ctx context.Context, user string) (*tasks.ExportStatus, error) {
	s.statusCalls++
	return &tasks.ExportStatus{TotalSources: 3, QuotaCeiling: 100}, nil
}

type stubResumer struct {
	rec      *models.AutoResume
	disabled bool
}

func (s *stubResumer) Enable(ctx context.Context, user string) (*models.AutoResume, error) {
	s.rec = models.NewAutoResume(user, time.Now())
	s.rec.Status = models.ResumeActive
	return s.rec, nil
}

func (s *stubResumer) Disable(ctx context.Context, user string) error {
	s.disabled = true
	return nil
}

func (s *stubResumer) Status(ctx context.Context, user string) (*models.AutoResume, error) {
	return s.rec, nil
}

func (s *stubResumer) Attempt(ctx context.Context, user string) (*resume.AttemptResult, error) {
	return &resume.AttemptResult{Skipped: resume.SkipNoRecord}, nil
}

func newTestRouter(exp *stubExporter, res *stubResumer, ttl time.Duration) http.Handler {
	logger := shared.NewLogger(&strings.Builder{})
	return NewRouter(NewAPI(exp, res, ttl, logger), logger)
}

func do(h http.Handler, method, path, user, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthIsPublic(t *testing.T) {
	h := newTestRouter(&stubExporter{}, &stubResumer{}, 0)

	rec := do(h, http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestIdentityRequired(t *testing.T) {
	h := newTestRouter(&stubExporter{}, &stubResumer{}, 0)

	for _, path := range []string{"/api/export/status", "/api/auto-resume/status"} {
		rec := do(h, http.MethodGet, path, "", "")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", path, rec.Code)
		}
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestRouter(&stubExporter{}, &stubResumer{}, 0)

	rec := do(h, http.MethodGet, "/api/export/batch", "u1", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestInitExport(t *testing.T) {
	var gotPlaylists, gotChannels []models.SourceRef
	exp := &stubExporter{initFn: func(user string, p, c []models.SourceRef) (*tasks.ExportInitResult, error) {
		gotPlaylists, gotChannels = p, c
		if len(p)+len(c) == 0 {
			return nil, fmt.Errorf("%w: nothing selected", shared.ErrMissingArgument)
		}
		return &tasks.ExportInitResult{PlaylistSources: len(p), ChannelSources: len(c), TotalSources: len(p) + len(c)}, nil
	}}
	h := newTestRouter(exp, &stubResumer{}, 0)

	body := `{"playlists":[{"id":"P1","title":"Mix"},{"id":"P2"}],"channels":[{"id":"C1"}]}`
	rec := do(h, http.MethodPost, "/api/export/init", "u1", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}

	var got map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	want := map[string]int{"playlistSources": 2, "channelSources": 1, "totalSources": 3, "alreadyCompleted": 0}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s: expected %d, got %d", k, v, got[k])
		}
	}
	if exp.lastUser != "u1" || gotPlaylists[0].Title != "Mix" || gotChannels[0].ExternalID != "C1" {
		t.Errorf("request not passed through: user=%q playlists=%v channels=%v", exp.lastUser, gotPlaylists, gotChannels)
	}

	if rec := do(h, http.MethodPost, "/api/export/init", "u1", `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("empty selection: expected 400, got %d", rec.Code)
	}
	if rec := do(h, http.MethodPost, "/api/export/init", "u1", `{"playlists":`); rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body: expected 400, got %d", rec.Code)
	}
}

func TestRunBatchErrors(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{fmt.Errorf("%w: timeout", shared.ErrTransient), http.StatusServiceUnavailable},
		{fmt.Errorf("%w: revoked", shared.ErrFatal), http.StatusBadGateway},
		{fmt.Errorf("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		h := newTestRouter(&stubExporter{batchErr: tt.err}, &stubResumer{}, 0)
		rec := do(h, http.MethodPost, "/api/export/batch", "u1", "")
		if rec.Code != tt.want {
			t.Errorf("err=%v: expected %d, got %d", tt.err, tt.want, rec.Code)
		}
	}
}

func TestExportStatusCache(t *testing.T) {
	exp := &stubExporter{}
	h := newTestRouter(exp, &stubResumer{}, time.Minute)

	do(h, http.MethodGet, "/api/export/status", "u1", "")
	rec := do(h, http.MethodGet, "/api/export/status", "u1", "")
	if rec.Header().Get("X-Cache") != "hit" || exp.statusCalls != 1 {
		t.Fatalf("expected cached status, calls=%d", exp.statusCalls)
	}

	do(h, http.MethodGet, "/api/export/status", "u2", "")
	if exp.statusCalls != 2 {
		t.Errorf("cache must be per user, calls=%d", exp.statusCalls)
	}

	do(h, http.MethodPost, "/api/export/batch", "u1", "")
	do(h, http.MethodGet, "/api/export/status", "u1", "")
	if exp.statusCalls != 3 {
		t.Errorf("batch must invalidate the cached status, calls=%d", exp.statusCalls)
	}
}

func TestExportStatusInvalidatedOutsideAPI(t *testing.T) {
	exp := &stubExporter{}
	logger := shared.NewLogger(&strings.Builder{})
	api := NewAPI(exp, &stubResumer{}, time.Minute, logger)
	h := NewRouter(api, logger)

	do(h, http.MethodGet, "/api/export/status", "u1", "")
	do(h, http.MethodGet, "/api/export/status", "u2", "")

	api.Invalidate("u1")

	if rec := do(h, http.MethodGet, "/api/export/status", "u1", ""); rec.Header().Get("X-Cache") == "hit" {
		t.Error("status must be recomputed after an out-of-band invalidation")
	}
	if rec := do(h, http.MethodGet, "/api/export/status", "u2", ""); rec.Header().Get("X-Cache") != "hit" {
		t.Error("other users keep their cached status")
	}
	if exp.statusCalls != 3 {
		t.Errorf("expected 3 status computations, got %d", exp.statusCalls)
	}

	NewAPI(exp, &stubResumer{}, 0, logger).Invalidate("u1")
}

func TestAutoResumeEndpoints(t *testing.T) {
	res := &stubResumer{}
	h := newTestRouter(&stubExporter{}, res, 0)

	rec := do(h, http.MethodGet, "/api/auto-resume/status", "u1", "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "null" {
		t.Fatalf("expected null status, got %d %q", rec.Code, rec.Body)
	}

	rec = do(h, http.MethodPost, "/api/auto-resume/enable", "u1", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"active"`) {
		t.Fatalf("enable: got %d %s", rec.Code, rec.Body)
	}

	rec = do(h, http.MethodPost, "/api/auto-resume/attempt", "u1", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"skipped":"no_record"`) {
		t.Fatalf("attempt: got %d %s", rec.Code, rec.Body)
	}

	rec = do(h, http.MethodPost, "/api/auto-resume/disable", "u1", "")
	if rec.Code != http.StatusNoContent || !res.disabled {
		t.Fatalf("disable: got %d", rec.Code)
	}
}

func TestOAuthHandler(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"at","refresh_token":"rt","token_type":"Bearer","expires_in":3600}`)
	}))
	defer tokenServer.Close()

	config := &oauth2.Config{
		ClientID:     "id",
		ClientSecret: "secret",
		Endpoint:     oauth2.Endpoint{AuthURL: tokenServer.URL + "/auth", TokenURL: tokenServer.URL + "/token"},
	}

	t.Run("success", func(t *testing.T) {
		h := NewOAuthHandler(config, "state-1")
		router := NewBasicRouter()
		router.Handler(h)

		rec := do(router, http.MethodGet, "/callback?state=state-1&code=abc", "", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
		}
		result := <-h.Result()
		if result.Err != nil || result.Token.AccessToken != "at" {
			t.Fatalf("unexpected result: %+v", result)
		}

		if rec := do(router, http.MethodGet, "/callback?state=state-1&code=abc", "", ""); rec.Code != http.StatusBadRequest {
			t.Errorf("second callback: expected 400, got %d", rec.Code)
		}
	})

	t.Run("bad state", func(t *testing.T) {
		h := NewOAuthHandler(config, "state-1")
		rec := do(h, http.MethodGet, "/callback?state=other&code=abc", "", "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		if result := <-h.Result(); result.Err == nil {
			t.Fatal("expected an error result")
		}
	})

	t.Run("denied", func(t *testing.T) {
		h := NewOAuthHandler(config, "state-1")
		rec := do(h, http.MethodGet, "/callback?state=state-1&error=access_denied", "", "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		if result := <-h.Result(); result.Err == nil || !strings.Contains(result.Err.Error(), "access_denied") {
			t.Fatalf("unexpected result: %+v", result)
		}
	})
}

func TestServerRunStops(t *testing.T) {
	s := New("127.0.0.1", 0, http.NotFoundHandler(), shared.NewLogger(&strings.Builder{}))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
