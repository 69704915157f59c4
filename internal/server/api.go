package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/patrickmn/go-cache"

	"github.com/desertthunder/ytexport/internal/models"
	"github.com/desertthunder/ytexport/internal/resume"
	"github.com/desertthunder/ytexport/internal/shared"
	"github.com/desertthunder/ytexport/internal/tasks"
)

const maxBodyBytes = 1 << 20

// InitRequest is the body of POST /api/export/init.
type InitRequest struct {
	Playlists []models.SourceRef `json:"playlists"`
	Channels  []models.SourceRef `json:"channels"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// API serves the export and auto-resume operations as JSON.
//
// Export status snapshots are cached per user for a short TTL; any call that can change them drops the entry, and
// so does every auto-resume attempt once [API.Invalidate] is registered with the controller.
type API struct {
	exports tasks.Exporter
	resumer resume.Resumer
	status  *cache.Cache
	logger  *log.Logger
}

// NewAPI creates an API. A zero statusTTL disables status caching.
func NewAPI(exports tasks.Exporter, resumer resume.Resumer, statusTTL time.Duration, logger *log.Logger) *API {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	api := &API{
		exports: exports,
		resumer: resumer,
		logger:  shared.WithLogger(logger, "component", "api"),
	}
	if statusTTL > 0 {
		api.status = cache.New(statusTTL, 2*statusTTL)
	}
	return api
}

// NewRouter builds the full route table: /healthz is public, every /api route requires [UserHeader].
func NewRouter(api *API, logger *log.Logger) *BasicRouter {
	r := NewBasicRouter()
	r.Use(Recover(logger), RequestLogger(logger))
	r.HandleFunc(http.MethodGet, "/healthz", api.Health)

	r.Use(Identity())
	api.Register(r)
	return r
}

// Register adds the /api routes to r.
func (a *API) Register(r Router) {
	r.Handle(http.MethodPost, "/api/export/init", http.HandlerFunc(a.InitExport))
	r.Handle(http.MethodPost, "/api/export/batch", http.HandlerFunc(a.RunBatch))
	r.Handle(http.MethodGet, "/api/export/status", http.HandlerFunc(a.ExportStatus))
	r.Handle(http.MethodPost, "/api/auto-resume/enable", http.HandlerFunc(a.EnableAutoResume))
	r.Handle(http.MethodPost, "/api/auto-resume/disable", http.HandlerFunc(a.DisableAutoResume))
	r.Handle(http.MethodGet, "/api/auto-resume/status", http.HandlerFunc(a.AutoResumeStatus))
	r.Handle(http.MethodPost, "/api/auto-resume/attempt", http.HandlerFunc(a.AttemptAutoResume))
}

func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) InitExport(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFrom(r.Context())

	var req InitRequest
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	result, err := a.exports.InitExport(r.Context(), user, req.Playlists, req.Channels)
	a.Invalidate(user)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) RunBatch(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFrom(r.Context())

	result, err := a.exports.RunExportBatch(r.Context(), user)
	a.Invalidate(user)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) ExportStatus(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFrom(r.Context())

	if a.status != nil {
		if cached, ok := a.status.Get(user); ok {
			w.Header().Set("X-Cache", "hit")
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	status, err := a.exports.Status(r.Context(), user)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if a.status != nil {
		a.status.SetDefault(user, status)
	}
	writeJSON(w, http.StatusOK, status)
}

func (a *API) EnableAutoResume(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFrom(r.Context())

	rec, err := a.resumer.Enable(r.Context(), user)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) DisableAutoResume(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFrom(r.Context())

	if err := a.resumer.Disable(r.Context(), user); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AutoResumeStatus answers the record, or JSON null when the user never enabled auto-resume.
func (a *API) AutoResumeStatus(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFrom(r.Context())

	rec, err := a.resumer.Status(r.Context(), user)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) AttemptAutoResume(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFrom(r.Context())

	result, err := a.resumer.Attempt(r.Context(), user)
	a.Invalidate(user)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Invalidate drops the user's cached status. Work that runs outside the API, such as scheduler ticks, calls it
// through [resume.Controller.OnProgress].
func (a *API) Invalidate(user string) {
	if a.status != nil {
		a.status.Delete(user)
	}
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed", "path", r.URL.Path, "error", err)
	}
	writeError(w, status, err.Error())
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrMissingArgument),
		errors.Is(err, shared.ErrInvalidArgument),
		errors.Is(err, shared.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrFatal):
		return http.StatusBadGateway
	case errors.Is(err, shared.ErrTransient), errors.Is(err, shared.ErrRemoteQuota):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
