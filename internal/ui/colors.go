package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/desertthunder/ytexport/internal/models"
)

var styles = NewPalette("#7D56F4", "#04B575", "#FF0000", "#FFA500", "#626262")

// struct Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title lipgloss.Style
	label lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
	box   lipgloss.Style
}

func NewPalette(t, s, e, w, h string) *Palette {
	return &Palette{
		title: NewBold(t).MarginBottom(1),
		label: NewBold(h).Width(14),
		ok:    NewBold(s),
		err:   NewBold(e),
		warn:  NewStyle(w),
		help:  NewEm(h),
		box:   lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color(t)).Padding(0, 1),
	}
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}

// ResumeStyle colors an auto-resume status: active green, paused orange, fatal red, disabled dim.
func ResumeStyle(rec *models.AutoResume) lipgloss.Style {
	switch {
	case rec == nil:
		return styles.help
	case rec.Status == models.ResumeActive:
		return styles.ok
	case rec.Status == models.ResumePaused:
		return styles.warn
	case rec.PausedReason == models.PausedFatalError:
		return styles.err
	default:
		return styles.help
	}
}
