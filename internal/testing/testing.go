// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/ytexport/internal/models"
	"github.com/desertthunder/ytexport/internal/services"
)

var _ services.SourceAPI = (*FakeSourceAPI)(nil)

// FakeSourceAPI is a scripted [services.SourceAPI].
//
// Pages are keyed by source and cursor; a nil cursor is the first page. Errors queued with FailNext are returned
// (once each, in order) before any page is served.
type FakeSourceAPI struct {
	mu     sync.Mutex
	pages  map[string]*services.Page
	errs   []error
	costs  map[models.SourceKind]int
	calls  []FetchCall
	before func(context.Context, FetchCall)
}

// FetchCall records one FetchPage invocation.
type FetchCall struct {
	Kind       models.SourceKind
	ExternalID string
	Cursor     *models.Cursor
}

// NewFakeSourceAPI creates a fake where every call costs the given units per kind.
func NewFakeSourceAPI(playlistCost, channelCost int) *FakeSourceAPI {
	return &FakeSourceAPI{
		pages: make(map[string]*services.Page),
		costs: map[models.SourceKind]int{
			models.SourcePlaylist: playlistCost,
			models.SourceChannel:  channelCost,
		},
	}
}

func pageKey(kind models.SourceKind, id string, cursor *models.Cursor) string {
	c := "<start>"
	if cursor != nil {
		c = string(*cursor)
	}
	return fmt.Sprintf("%s/%s/%s", kind, id, c)
}

// AddPage scripts the page served for (kind, id, cursor). next is "" for the last page.
func (f *FakeSourceAPI) AddPage(kind models.SourceKind, id, cursor, next string, videoIDs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	page := &services.Page{NextCursor: models.CursorPtr(next)}
	for _, v := range videoIDs {
		page.Items = append(page.Items, services.RawItem{
			VideoID:      v,
			Title:        "Video " + v,
			ChannelID:    "UC-" + id,
			ChannelTitle: "Channel " + id,
			Language:     "en",
		})
	}
	f.pages[pageKey(kind, id, models.CursorPtr(cursor))] = page
}

// FailNext queues err to be returned by the next FetchPage call.
func (f *FakeSourceAPI) FailNext(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, err)
}

// BeforeFetch installs a hook run at the start of every FetchPage, outside the fake's lock. The hook gets the
// caller's context; if that context is done when the hook returns, FetchPage fails with its error.
func (f *FakeSourceAPI) BeforeFetch(hook func(context.Context, FetchCall)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.before = hook
}

// Calls returns the recorded FetchPage invocations.
func (f *FakeSourceAPI) Calls() []FetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FetchCall(nil), f.calls...)
}

func (f *FakeSourceAPI) FetchPage(ctx context.Context, kind models.SourceKind, externalID string, cursor *models.Cursor) (*services.Page, error) {
	call := FetchCall{Kind: kind, ExternalID: externalID, Cursor: cursor}

	f.mu.Lock()
	hook := f.before
	f.mu.Unlock()
	if hook != nil {
		hook(ctx, call)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}

	page, ok := f.pages[pageKey(kind, externalID, cursor)]
	if !ok {
		return &services.Page{}, nil
	}
	out := &services.Page{Items: append([]services.RawItem(nil), page.Items...), NextCursor: page.NextCursor}
	return out, nil
}

func (f *FakeSourceAPI) CallCost(kind models.SourceKind) int { return f.costs[kind] }

func (f *FakeSourceAPI) Name() string { return "fake" }

// Clock is a controllable clock for tests. Its Now method satisfies shared.Clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a clock frozen at now.
func NewClock(now time.Time) *Clock {
	return &Clock{now: now.UTC()}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC()
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

var _ io.Writer = (*FWriter)(nil)

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
