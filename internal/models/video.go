package models

import (
	"fmt"
	"time"
)

// Video is one imported record, unique per user by VideoID.
//
// The Source* fields attribute the video to the source that first discovered it.
type Video struct {
	Entity
	UserID           string     `json:"-"`
	VideoID          string     `json:"video_id"`
	Title            string     `json:"title"`
	ChannelID        string     `json:"channel_id"`
	ChannelTitle     string     `json:"channel_title"`
	Language         string     `json:"language,omitempty"`
	IsEnglish        bool       `json:"is_english"`
	SourceID         string     `json:"-"`
	SourceKind       SourceKind `json:"source_kind"`
	SourceExternalID string     `json:"source_id"`
	SourceTitle      string     `json:"source_title"`
	PublishedAt      *time.Time `json:"published_at,omitempty"`
	ThumbnailURL     string     `json:"thumbnail_url,omitempty"`
}

// NewVideo creates a video attributed to source.
func NewVideo(source *Source, now time.Time) *Video {
	return &Video{
		Entity:           newEntity(now),
		UserID:           source.UserID,
		SourceID:         source.ID(),
		SourceKind:       source.Kind,
		SourceExternalID: source.ExternalID,
		SourceTitle:      source.DisplayTitle(),
	}
}

func (v *Video) Validate() error {
	if v.UserID == "" {
		return fmt.Errorf("video user id is required")
	}
	if v.VideoID == "" {
		return fmt.Errorf("video id is required")
	}
	if v.SourceID == "" {
		return fmt.Errorf("video %s has no source", v.VideoID)
	}
	return nil
}
