package models

import (
	"fmt"
	"time"
)

// SourceKind distinguishes playlist sources from channel uploads.
type SourceKind string

const (
	SourcePlaylist SourceKind = "playlist"
	SourceChannel  SourceKind = "channel"
)

// Valid reports whether k is a known kind.
func (k SourceKind) Valid() bool {
	return k == SourcePlaylist || k == SourceChannel
}

// Cursor is an opaque continuation token handed out by the remote API.
//
// It is stored and passed back verbatim, never parsed. A nil *Cursor means "start from the beginning"
// when read from a source and "no more pages" when returned by a fetch.
type Cursor string

// CursorPtr returns a pointer to c, or nil when c is empty.
func CursorPtr(c string) *Cursor {
	if c == "" {
		return nil
	}
	v := Cursor(c)
	return &v
}

// SourceRef names a playlist or channel selected by the user.
type SourceRef struct {
	ExternalID string `json:"id"`
	Title      string `json:"title,omitempty"`
}

// Source is a playlist or channel registered for export.
//
// Completed is true iff the most recent fetch for the source returned no continuation cursor.
type Source struct {
	Entity
	UserID        string     `json:"-"`
	Kind          SourceKind `json:"kind"`
	ExternalID    string     `json:"id"`
	Title         string     `json:"title"`
	Cursor        *Cursor    `json:"cursor,omitempty"`
	Completed     bool       `json:"completed"`
	ImportedCount int        `json:"imported_count"`
	LastFetchedAt *time.Time `json:"last_fetched_at,omitempty"`
}

// NewSource creates an incomplete source starting at the beginning of its item list.
func NewSource(userID string, kind SourceKind, ref SourceRef, now time.Time) *Source {
	return &Source{
		Entity:     newEntity(now),
		UserID:     userID,
		Kind:       kind,
		ExternalID: ref.ExternalID,
		Title:      ref.Title,
	}
}

// DisplayTitle falls back to the external id when no title is known.
func (s *Source) DisplayTitle() string {
	if s.Title != "" {
		return s.Title
	}
	return s.ExternalID
}

func (s *Source) Validate() error {
	if s.UserID == "" {
		return fmt.Errorf("source user id is required")
	}
	if !s.Kind.Valid() {
		return fmt.Errorf("invalid source kind %q", s.Kind)
	}
	if s.ExternalID == "" {
		return fmt.Errorf("source external id is required")
	}
	if s.Completed && s.Cursor != nil {
		return fmt.Errorf("completed source %s cannot hold a cursor", s.ExternalID)
	}
	return nil
}
