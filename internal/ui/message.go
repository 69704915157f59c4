package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/ytexport/internal/models"
	"github.com/desertthunder/ytexport/internal/resume"
	"github.com/desertthunder/ytexport/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgSnapshotLoaded MsgKind = iota
	MsgBatchDone
	MsgProgressUpdate
	MsgDrainComplete
	MsgAutoResumeChanged
)

type snapshot struct {
	status  *tasks.ExportStatus
	record  *models.AutoResume
	sources []*models.Source
	err     error
}

// snapshotLoadedMsg is the constructor for [MsgSnapshotLoaded]
func snapshotLoadedMsg(s snapshot) Msg {
	return Msg{kind: MsgSnapshotLoaded, data: s}
}

type batchDone struct {
	result *tasks.BatchResult
	err    error
}

// batchDoneMsg is the constructor for [MsgBatchDone]
func batchDoneMsg(result *tasks.BatchResult, err error) Msg {
	return Msg{kind: MsgBatchDone, data: batchDone{result, err}}
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

type drainComplete struct {
	result *tasks.DrainResult
	err    error
}

// drainCompleteMsg is the constructor for [MsgDrainComplete]
func drainCompleteMsg(result *tasks.DrainResult, err error) Msg {
	return Msg{kind: MsgDrainComplete, data: drainComplete{result, err}}
}

type autoResumeChanged struct {
	record *models.AutoResume
	notice string
	err    error
}

// autoResumeChangedMsg is the constructor for [MsgAutoResumeChanged]
func autoResumeChangedMsg(record *models.AutoResume, notice string, err error) Msg {
	return Msg{kind: MsgAutoResumeChanged, data: autoResumeChanged{record, notice, err}}
}

// attemptSummary renders an attempt result as a one-line notice.
func attemptSummary(res *resume.AttemptResult) string {
	if !res.Ran {
		return "attempt skipped: " + string(res.Skipped)
	}
	return "attempt ran: " + res.Outcome
}
