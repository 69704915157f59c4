// package formatter dumps a user's imported videos to JSON, CSV and Markdown
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/ytexport/internal/models"
)

// Format is an output format for [Dump].
type Format string

const (
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
)

// Ext returns the file extension for the format, without the dot.
func (f Format) Ext() string {
	if f == FormatMarkdown {
		return "md"
	}
	return string(f)
}

// ParseFormat accepts json, csv, markdown and md (case-insensitive).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unknown format %q (want json, csv or markdown)", s)
	}
}

// Dump is everything exported for one user.
type Dump struct {
	UserID      string           `json:"user_id"`
	GeneratedAt time.Time        `json:"generated_at"`
	Sources     []*models.Source `json:"sources"`
	Videos      []*models.Video  `json:"videos"`
}

// EnglishCount returns the number of videos detected as English.
func (d *Dump) EnglishCount() int {
	n := 0
	for _, v := range d.Videos {
		if v.IsEnglish {
			n++
		}
	}
	return n
}

// ExportToJSON renders the dump as indented JSON.
func ExportToJSON(dump *Dump) ([]byte, error) {
	data, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal dump: %w", err)
	}
	return append(data, '\n'), nil
}

var csvHeaders = []string{
	"video_id", "title", "channel_id", "channel_title", "language", "is_english",
	"source_kind", "source_id", "source_title", "published_at",
}

// ExportToCSV renders one row per video.
func ExportToCSV(dump *Dump) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(csvHeaders); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, v := range dump.Videos {
		published := ""
		if v.PublishedAt != nil {
			published = v.PublishedAt.UTC().Format(time.RFC3339)
		}
		record := []string{
			v.VideoID,
			v.Title,
			v.ChannelID,
			v.ChannelTitle,
			v.Language,
			strconv.FormatBool(v.IsEnglish),
			string(v.SourceKind),
			v.SourceExternalID,
			v.SourceTitle,
			published,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown renders a summary followed by one section per source.
//
// Videos are listed under the source they are attributed to, in dump order.
func ExportToMarkdown(dump *Dump) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# Export for %s\n\n", dump.UserID)
	fmt.Fprintf(&buf, "**Generated**: %s\n", dump.GeneratedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&buf, "**Sources**: %d\n", len(dump.Sources))
	fmt.Fprintf(&buf, "**Videos**: %d (%d English)\n\n", len(dump.Videos), dump.EnglishCount())

	bySource := make(map[string][]*models.Video)
	for _, v := range dump.Videos {
		key := string(v.SourceKind) + "/" + v.SourceExternalID
		bySource[key] = append(bySource[key], v)
	}

	for _, s := range dump.Sources {
		videos := bySource[string(s.Kind)+"/"+s.ExternalID]

		state := "in progress"
		if s.Completed {
			state = "complete"
		}
		fmt.Fprintf(&buf, "## %s (%s, %s)\n\n", s.DisplayTitle(), s.Kind, state)

		if len(videos) == 0 {
			buf.WriteString("_No videos attributed to this source._\n\n")
			continue
		}
		for i, v := range videos {
			lang := v.Language
			if lang == "" {
				lang = "unknown"
			}
			fmt.Fprintf(&buf, "%d. [%s](https://www.youtube.com/watch?v=%s) - %s [%s]\n",
				i+1, escapeMarkdown(v.Title), v.VideoID, escapeMarkdown(v.ChannelTitle), lang)
		}
		buf.WriteString("\n")
	}

	return buf.Bytes(), nil
}

var markdownEscaper = strings.NewReplacer("[", `\[`, "]", `\]`, "*", `\*`, "_", `\_`)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

// Render produces the dump in the given format.
func Render(dump *Dump, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return ExportToJSON(dump)
	case FormatCSV:
		return ExportToCSV(dump)
	case FormatMarkdown:
		return ExportToMarkdown(dump)
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

// Write renders the dump to w.
func Write(w io.Writer, dump *Dump, format Format) error {
	data, err := Render(dump, format)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write dump: %w", err)
	}
	return nil
}

// WriteFile renders the dump to path and returns the path written.
//
// An empty path defaults to {user}_videos.{ext} in the working directory; parent directories are created.
func WriteFile(dump *Dump, format Format, path string) (string, error) {
	if path == "" {
		path = fmt.Sprintf("%s_videos.%s", dump.UserID, format.Ext())
	}

	data, err := Render(dump, format)
	if err != nil {
		return "", err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s file: %w", format, err)
	}
	return path, nil
}
