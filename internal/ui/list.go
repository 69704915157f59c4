package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"

	"github.com/desertthunder/ytexport/internal/models"
)

var _ list.Item = sourceItem{}

// sourceItem wraps [models.Source] to implement [list.Item].
type sourceItem struct {
	source *models.Source
}

func (i sourceItem) FilterValue() string { return i.source.DisplayTitle() }
func (i sourceItem) Title() string       { return i.source.DisplayTitle() }
func (i sourceItem) Description() string {
	state := "pending"
	switch {
	case i.source.Completed:
		state = "complete"
	case i.source.LastFetchedAt != nil:
		state = "in progress"
	}
	return fmt.Sprintf("%s • %s • %d videos", i.source.Kind, state, i.source.ImportedCount)
}

func sourceItems(sources []*models.Source) []list.Item {
	items := make([]list.Item, len(sources))
	for i, s := range sources {
		items[i] = sourceItem{source: s}
	}
	return items
}
