// package services defines the remote data source collaborator
package services

import (
	"context"
	"time"

	"github.com/desertthunder/ytexport/internal/models"
)

// SourceAPI lists items from playlists and channels one page at a time.
type SourceAPI interface {
	// FetchPage returns the page of items for the source starting at cursor (nil means the first page).
	// The returned page's NextCursor is nil when the source has no more items.
	FetchPage(ctx context.Context, kind models.SourceKind, externalID string, cursor *models.Cursor) (*Page, error)

	// CallCost is the declared quota cost of one FetchPage call for a source of the given kind.
	CallCost(kind models.SourceKind) int

	// Name returns the name of the service (e.g., "YouTube")
	Name() string
}

// Page is one page of items from a source.
type Page struct {
	Items      []RawItem
	NextCursor *models.Cursor
}

// RawItem is one item as reported by the remote API.
type RawItem struct {
	VideoID      string
	Title        string
	ChannelID    string
	ChannelTitle string
	Language     string
	PublishedAt  *time.Time
	ThumbnailURL string
}

// MinCallCost returns the cheapest declared call cost across source kinds.
func MinCallCost(api SourceAPI) int {
	lowest := 0
	for _, kind := range []models.SourceKind{models.SourcePlaylist, models.SourceChannel} {
		if c := api.CallCost(kind); c > 0 && (lowest == 0 || c < lowest) {
			lowest = c
		}
	}
	return lowest
}
