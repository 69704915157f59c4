// YouTube Data API v3 [SourceAPI] implementation
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/desertthunder/ytexport/internal/models"
	"github.com/desertthunder/ytexport/internal/shared"
)

const (
	defaultYouTubeBaseURL = "https://www.googleapis.com/youtube/v3"
	maxPageSize           = 50
)

// YouTubeOpts configures a [YouTubeService].
type YouTubeOpts struct {
	BaseURL           string
	APIKey            string
	HTTPClient        *http.Client // OAuth2 client; nil means API key only
	PageSize          int
	RequestsPerSecond float64
	Timeout           time.Duration
	RetryCount        int
	PlaylistCost      int
	ChannelCost       int
	Logger            *log.Logger
}

// YouTubeOptsFromConfig maps the application config onto [YouTubeOpts].
func YouTubeOptsFromConfig(cfg *shared.Config, client *http.Client, logger *log.Logger) YouTubeOpts {
	return YouTubeOpts{
		BaseURL:           cfg.YouTube.BaseURL,
		APIKey:            cfg.Credentials.YouTube.APIKey,
		HTTPClient:        client,
		PageSize:          cfg.YouTube.PageSize,
		RequestsPerSecond: cfg.YouTube.RequestsPerSecond,
		Timeout:           cfg.YouTube.Timeout.Duration,
		RetryCount:        cfg.YouTube.RetryCount,
		PlaylistCost:      cfg.Quota.PlaylistCost,
		ChannelCost:       cfg.Quota.ChannelCost,
		Logger:            logger,
	}
}

// YouTubeService implements [SourceAPI] for the YouTube Data API v3.
type YouTubeService struct {
	client   *resty.Client
	limiter  *rate.Limiter
	apiKey   string
	pageSize int
	costs    map[models.SourceKind]int
	logger   *log.Logger
}

// NewYouTubeService creates a client. Zero-valued options fall back to defaults.
func NewYouTubeService(opts YouTubeOpts) *YouTubeService {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultYouTubeBaseURL
	}
	if opts.PageSize <= 0 || opts.PageSize > maxPageSize {
		opts.PageSize = maxPageSize
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 5.0
	}
	if opts.Timeout <= 0 {
		opts.Timeout = shared.DefaultRequestTimeout
	}
	if opts.RetryCount < 0 {
		opts.RetryCount = 0
	}
	if opts.PlaylistCost <= 0 {
		opts.PlaylistCost = 2
	}
	if opts.ChannelCost <= 0 {
		opts.ChannelCost = 101
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	var client *resty.Client
	if opts.HTTPClient != nil {
		client = resty.NewWithClient(opts.HTTPClient)
	} else {
		client = resty.New()
	}
	client.SetBaseURL(strings.TrimSuffix(opts.BaseURL, "/"))
	client.SetTimeout(opts.Timeout)
	client.SetRetryCount(opts.RetryCount)
	client.SetRetryWaitTime(500 * time.Millisecond)
	client.SetRetryMaxWaitTime(shared.RetryMaxWait)
	client.AddRetryCondition(func(r *resty.Response, err error) bool {
		if err != nil || r == nil {
			return true
		}
		return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= http.StatusInternalServerError
	})
	client.SetHeader("Accept", "application/json")

	return &YouTubeService{
		client:   client,
		limiter:  rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		apiKey:   opts.APIKey,
		pageSize: opts.PageSize,
		costs: map[models.SourceKind]int{
			models.SourcePlaylist: opts.PlaylistCost,
			models.SourceChannel:  opts.ChannelCost,
		},
		logger: opts.Logger,
	}
}

// Name returns the service name.
func (y *YouTubeService) Name() string {
	return "YouTube"
}

// CallCost returns the quota units one page costs: the list call plus the videos.list language lookup.
func (y *YouTubeService) CallCost(kind models.SourceKind) int {
	return y.costs[kind]
}

// FetchPage lists one page of a playlist or a channel's uploads, newest first for channels.
func (y *YouTubeService) FetchPage(ctx context.Context, kind models.SourceKind, externalID string, cursor *models.Cursor) (*Page, error) {
	var (
		page *Page
		err  error
	)

	switch kind {
	case models.SourcePlaylist:
		page, err = y.playlistPage(ctx, externalID, cursor)
	case models.SourceChannel:
		page, err = y.channelPage(ctx, externalID, cursor)
	default:
		return nil, fmt.Errorf("%w: unknown source kind %q", shared.ErrFatal, kind)
	}
	if err != nil {
		return nil, err
	}

	if err := y.fillLanguages(ctx, page.Items); err != nil {
		return nil, err
	}

	y.logger.Debug("fetched page", "kind", kind, "source", externalID, "items", len(page.Items), "more", page.NextCursor != nil)
	return page, nil
}

type thumbnails map[string]struct {
	URL string `json:"url"`
}

// best picks the largest commonly available thumbnail.
func (t thumbnails) best() string {
	for _, size := range []string{"high", "medium", "default"} {
		if th, ok := t[size]; ok && th.URL != "" {
			return th.URL
		}
	}
	return ""
}

type playlistItemsResponse struct {
	NextPageToken string `json:"nextPageToken"`
	Items         []struct {
		Snippet struct {
			Title                  string     `json:"title"`
			VideoOwnerChannelID    string     `json:"videoOwnerChannelId"`
			VideoOwnerChannelTitle string     `json:"videoOwnerChannelTitle"`
			Thumbnails             thumbnails `json:"thumbnails"`
			ResourceID             struct {
				VideoID string `json:"videoId"`
			} `json:"resourceId"`
		} `json:"snippet"`
		ContentDetails struct {
			VideoID          string `json:"videoId"`
			VideoPublishedAt string `json:"videoPublishedAt"`
		} `json:"contentDetails"`
	} `json:"items"`
}

func (y *YouTubeService) playlistPage(ctx context.Context, playlistID string, cursor *models.Cursor) (*Page, error) {
	params := map[string]string{
		"part":       "snippet,contentDetails",
		"playlistId": playlistID,
		"maxResults": fmt.Sprint(y.pageSize),
	}
	if cursor != nil {
		params["pageToken"] = string(*cursor)
	}

	var resp playlistItemsResponse
	if err := y.get(ctx, "/playlistItems", params, &resp); err != nil {
		return nil, err
	}

	page := &Page{NextCursor: models.CursorPtr(resp.NextPageToken)}
	for _, it := range resp.Items {
		id := it.ContentDetails.VideoID
		if id == "" {
			id = it.Snippet.ResourceID.VideoID
		}
		if id == "" {
			continue
		}
		page.Items = append(page.Items, RawItem{
			VideoID:      id,
			Title:        it.Snippet.Title,
			ChannelID:    it.Snippet.VideoOwnerChannelID,
			ChannelTitle: it.Snippet.VideoOwnerChannelTitle,
			PublishedAt:  parseTime(it.ContentDetails.VideoPublishedAt),
			ThumbnailURL: it.Snippet.Thumbnails.best(),
		})
	}
	return page, nil
}

type searchResponse struct {
	NextPageToken string `json:"nextPageToken"`
	Items         []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			Title        string     `json:"title"`
			ChannelID    string     `json:"channelId"`
			ChannelTitle string     `json:"channelTitle"`
			PublishedAt  string     `json:"publishedAt"`
			Thumbnails   thumbnails `json:"thumbnails"`
		} `json:"snippet"`
	} `json:"items"`
}

func (y *YouTubeService) channelPage(ctx context.Context, channelID string, cursor *models.Cursor) (*Page, error) {
	params := map[string]string{
		"part":       "snippet",
		"channelId":  channelID,
		"type":       "video",
		"order":      "date",
		"maxResults": fmt.Sprint(y.pageSize),
	}
	if cursor != nil {
		params["pageToken"] = string(*cursor)
	}

	var resp searchResponse
	if err := y.get(ctx, "/search", params, &resp); err != nil {
		return nil, err
	}

	page := &Page{NextCursor: models.CursorPtr(resp.NextPageToken)}
	for _, it := range resp.Items {
		if it.ID.VideoID == "" {
			continue
		}
		page.Items = append(page.Items, RawItem{
			VideoID:      it.ID.VideoID,
			Title:        it.Snippet.Title,
			ChannelID:    it.Snippet.ChannelID,
			ChannelTitle: it.Snippet.ChannelTitle,
			PublishedAt:  parseTime(it.Snippet.PublishedAt),
			ThumbnailURL: it.Snippet.Thumbnails.best(),
		})
	}
	return page, nil
}

type videosResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			DefaultAudioLanguage string `json:"defaultAudioLanguage"`
			DefaultLanguage      string `json:"defaultLanguage"`
		} `json:"snippet"`
	} `json:"items"`
}

// fillLanguages looks up the language of every item with one videos.list call.
func (y *YouTubeService) fillLanguages(ctx context.Context, items []RawItem) error {
	if len(items) == 0 {
		return nil
	}

	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.VideoID
	}

	var resp videosResponse
	if err := y.get(ctx, "/videos", map[string]string{"part": "snippet", "id": strings.Join(ids, ",")}, &resp); err != nil {
		return err
	}

	langs := make(map[string]string, len(resp.Items))
	for _, v := range resp.Items {
		lang := v.Snippet.DefaultAudioLanguage
		if lang == "" {
			lang = v.Snippet.DefaultLanguage
		}
		langs[v.ID] = lang
	}

	for i := range items {
		items[i].Language = shared.NormalizeLanguage(langs[items[i].VideoID])
	}
	return nil
}

// youtubeErrorResponse is the error envelope returned by Google APIs.
type youtubeErrorResponse struct {
	Detail struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason string `json:"reason"`
			Domain string `json:"domain"`
		} `json:"errors"`
	} `json:"error"`
}

func (e *youtubeErrorResponse) reason() string {
	if len(e.Detail.Errors) == 0 {
		return ""
	}
	return e.Detail.Errors[0].Reason
}

// get performs a paced GET against the API and decodes the JSON body into result.
func (y *YouTubeService) get(ctx context.Context, endpoint string, params map[string]string, result any) error {
	if err := y.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limiter: %v", shared.ErrTransient, err)
	}

	var apiErr youtubeErrorResponse
	req := y.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(result).
		SetError(&apiErr)
	if y.apiKey != "" {
		req.SetQueryParam("key", y.apiKey)
	}

	resp, err := req.Get(endpoint)
	if err != nil {
		var oauthErr *oauth2.RetrieveError
		if errors.As(err, &oauthErr) {
			return fmt.Errorf("%w: %w: %v", shared.ErrFatal, shared.ErrNotAuthenticated, err)
		}
		return fmt.Errorf("%w: GET %s: %v", shared.ErrTransient, endpoint, err)
	}

	if resp.IsError() {
		return classify(resp.StatusCode(), &apiErr)
	}
	return nil
}

// classify maps an API error response onto the shared failure classes.
func classify(status int, apiErr *youtubeErrorResponse) error {
	reason := apiErr.reason()
	msg := fmt.Sprintf("youtube API error (status %d", status)
	if reason != "" {
		msg += ", reason " + reason
	}
	msg += ")"
	if apiErr.Detail.Message != "" {
		msg += ": " + apiErr.Detail.Message
	}

	switch {
	case status == http.StatusForbidden && (reason == "quotaExceeded" || reason == "dailyLimitExceeded"):
		return fmt.Errorf("%w: %s", shared.ErrRemoteQuota, msg)
	case status == http.StatusForbidden && (reason == "rateLimitExceeded" || reason == "userRateLimitExceeded"):
		return fmt.Errorf("%w: %s", shared.ErrTransient, msg)
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout, status >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %s", shared.ErrTransient, msg)
	case status == http.StatusUnauthorized:
		return fmt.Errorf("%w: %w: %s", shared.ErrFatal, shared.ErrNotAuthenticated, msg)
	default:
		return fmt.Errorf("%w: %s", shared.ErrFatal, msg)
	}
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
