package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/desertthunder/ytexport/internal/models"
	"github.com/desertthunder/ytexport/internal/resume"
	"github.com/desertthunder/ytexport/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	DashboardView ViewState = iota
	DrainView
)

// SourceLister lists a user's registered sources.
type SourceLister interface {
	List(ctx context.Context, criteria map[string]any) ([]*models.Source, error)
}

// Model represents the TUI application state.
type Model struct {
	ctx          context.Context
	userID       string
	view         ViewState
	exports      tasks.Exporter
	resumer      resume.Resumer
	sources      SourceLister
	width        int
	height       int
	sourceList   list.Model
	status       *tasks.ExportStatus
	record       *models.AutoResume
	busy         bool
	notice       string
	progressChan chan tasks.ProgressUpdate
	drainDone    chan Msg
	progress     []tasks.ProgressUpdate
	drain        *tasks.DrainResult
	err          error
	help         help.Model
	keys         keyMap
}

// NewModel creates a dashboard for userID.
func NewModel(ctx context.Context, userID string, exports tasks.Exporter, resumer resume.Resumer, sources SourceLister) *Model {
	l := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Sources"
	l.SetShowHelp(false)

	return &Model{
		ctx:        ctx,
		userID:     userID,
		view:       DashboardView,
		exports:    exports,
		resumer:    resumer,
		sources:    sources,
		sourceList: l,
		help:       help.New(),
		keys:       newKeyMap(),
	}
}

// Init loads the first snapshot.
func (m *Model) Init() tea.Cmd {
	return m.loadSnapshot()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.sourceList.SetSize(max(msg.Width-4, 0), max(msg.Height-16, 4))
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case DashboardView:
			return m.handleDashboardKeys(msg)
		case DrainView:
			return m.handleDrainKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	var cmd tea.Cmd
	m.sourceList, cmd = m.sourceList.Update(msg)
	return m, cmd
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgSnapshotLoaded:
		s := msg.data.(snapshot)
		m.busy = false
		if s.err != nil {
			m.err = s.err
			return m, nil
		}
		m.err = nil
		m.status = s.status
		m.record = s.record
		cmd := m.sourceList.SetItems(sourceItems(s.sources))
		return m, cmd

	case MsgBatchDone:
		d := msg.data.(batchDone)
		if d.err != nil {
			m.busy = false
			m.err = d.err
			return m, nil
		}
		m.notice = batchNotice(d.result)
		return m, m.loadSnapshot()

	case MsgAutoResumeChanged:
		d := msg.data.(autoResumeChanged)
		if d.err != nil {
			m.busy = false
			m.err = d.err
			return m, nil
		}
		m.notice = d.notice
		return m, m.loadSnapshot()

	case MsgProgressUpdate:
		m.progress = append(m.progress, msg.data.(tasks.ProgressUpdate))
		if len(m.progress) > 10 {
			m.progress = m.progress[len(m.progress)-10:]
		}
		return m, m.waitForProgress()

	case MsgDrainComplete:
		d := msg.data.(drainComplete)
		m.drain = d.result
		m.err = d.err
		m.progressChan = nil
		m.drainDone = nil
		m.busy = false
		return m, m.loadSnapshot()
	}
	return m, nil
}

func (m *Model) handleDashboardKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.quit) {
		return m, tea.Quit
	}
	if m.busy {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.batch):
		m.busy, m.err, m.notice = true, nil, "running one batch..."
		return m, m.runBatch()
	case key.Matches(msg, m.keys.drain):
		m.view = DrainView
		m.busy, m.err, m.drain, m.progress = true, nil, nil, nil
		return m, m.startDrain()
	case key.Matches(msg, m.keys.enable):
		m.busy, m.err = true, nil
		return m, m.enableAutoResume()
	case key.Matches(msg, m.keys.disable):
		m.busy, m.err = true, nil
		return m, m.disableAutoResume()
	case key.Matches(msg, m.keys.attempt):
		m.busy, m.err, m.notice = true, nil, "attempting..."
		return m, m.attemptAutoResume()
	case key.Matches(msg, m.keys.refresh):
		m.busy = true
		return m, m.loadSnapshot()
	}

	var cmd tea.Cmd
	m.sourceList, cmd = m.sourceList.Update(msg)
	return m, cmd
}

func (m *Model) handleDrainKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back) && !m.busy:
		m.view = DashboardView
		return m, nil
	}
	return m, nil
}

func (m *Model) loadSnapshot() tea.Cmd {
	return func() tea.Msg {
		var s snapshot
		if s.status, s.err = m.exports.Status(m.ctx, m.userID); s.err != nil {
			return snapshotLoadedMsg(s)
		}
		if s.record, s.err = m.resumer.Status(m.ctx, m.userID); s.err != nil {
			return snapshotLoadedMsg(s)
		}
		s.sources, s.err = m.sources.List(m.ctx, map[string]any{"user_id": m.userID})
		return snapshotLoadedMsg(s)
	}
}

func (m *Model) runBatch() tea.Cmd {
	return func() tea.Msg {
		return batchDoneMsg(m.exports.RunExportBatch(m.ctx, m.userID))
	}
}

func (m *Model) enableAutoResume() tea.Cmd {
	return func() tea.Msg {
		rec, err := m.resumer.Enable(m.ctx, m.userID)
		return autoResumeChangedMsg(rec, "auto-resume enabled", err)
	}
}

func (m *Model) disableAutoResume() tea.Cmd {
	return func() tea.Msg {
		err := m.resumer.Disable(m.ctx, m.userID)
		return autoResumeChangedMsg(nil, "auto-resume disabled", err)
	}
}

func (m *Model) attemptAutoResume() tea.Cmd {
	return func() tea.Msg {
		res, err := m.resumer.Attempt(m.ctx, m.userID)
		if err != nil {
			return autoResumeChangedMsg(nil, "", err)
		}
		return autoResumeChangedMsg(res.Record, attemptSummary(res), nil)
	}
}

func (m *Model) startDrain() tea.Cmd {
	progress := make(chan tasks.ProgressUpdate, 50)
	done := make(chan Msg, 1)
	m.progressChan, m.drainDone = progress, done

	go func() {
		result, err := m.exports.Drain(m.ctx, progress, m.userID, 0)
		done <- drainCompleteMsg(result, err)
	}()

	return m.waitForProgress()
}

func (m *Model) waitForProgress() tea.Cmd {
	progress, done := m.progressChan, m.drainDone
	if done == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case update := <-progress:
			return progressUpdateMsg(update)
		case msg := <-done:
			return msg
		}
	}
}

func batchNotice(res *tasks.BatchResult) string {
	switch {
	case res.LeaseHeld():
		return "another batch is already running"
	case res.ExportComplete:
		return "export complete"
	case res.QuotaExhausted():
		return "quota exhausted for today"
	default:
		return fmt.Sprintf("imported %d videos from %s", res.VideosImported, res.SourceTitle)
	}
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case DrainView:
		return m.renderDrain()
	default:
		return m.renderDashboard()
	}
}

func (m *Model) renderDashboard() string {
	var b strings.Builder
	b.WriteString(styles.title.Render("ytexport · " + m.userID))
	b.WriteString("\n")

	if m.status == nil && m.err == nil {
		b.WriteString("Loading...\n")
		return b.String()
	}

	if m.status != nil {
		b.WriteString(styles.box.Render(m.renderSummary()))
		b.WriteString("\n")
	}

	if m.err != nil {
		b.WriteString(styles.err.Render("Error: " + m.err.Error()))
		b.WriteString("\n")
	} else if m.notice != "" {
		b.WriteString(styles.help.Render(m.notice))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.sourceList.View())
	b.WriteString("\n")
	b.WriteString(m.help.ShortHelpView(m.keys.ShortHelp()))
	return b.String()
}

func (m *Model) renderSummary() string {
	s := m.status
	last := "never"
	if s.LastImportedAt != nil {
		last = s.LastImportedAt.Local().Format(time.DateTime)
	}

	rows := []string{
		row("Sources", fmt.Sprintf("%d total · %d complete · %d in progress · %d pending",
			s.TotalSources, s.CompletedSources, s.InProgressSources, s.PendingSources)),
		row("Videos", fmt.Sprintf("%d (%d English)", s.TotalVideosImported, s.EnglishVideosCount)),
		row("Quota", fmt.Sprintf("%s %d/%d · resets %s",
			quotaBar(s.QuotaUsedToday, s.QuotaCeiling, 20), s.QuotaUsedToday, s.QuotaCeiling,
			s.QuotaResetsAt.Local().Format(time.DateTime))),
		row("Last import", last),
		row("Auto-resume", ResumeStyle(m.record).Render(DescribeAutoResume(m.record))),
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func row(label, value string) string {
	return styles.label.Render(label) + value
}

func quotaBar(used, ceiling, width int) string {
	if ceiling <= 0 {
		return strings.Repeat("░", width)
	}
	filled := min(width, used*width/ceiling)
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

// DescribeAutoResume renders the record as one human-readable line.
func DescribeAutoResume(rec *models.AutoResume) string {
	if rec == nil {
		return "never enabled"
	}
	switch rec.Status {
	case models.ResumePaused:
		out := fmt.Sprintf("paused (%s) until %s", rec.PausedReason, rec.PausedUntil.Local().Format(time.DateTime))
		if rec.ConsecutiveFailures > 0 {
			out += fmt.Sprintf(" · %d consecutive failures", rec.ConsecutiveFailures)
		}
		return out
	case models.ResumeDisabled:
		if rec.PausedReason == models.PausedFatalError {
			return "disabled after fatal error: " + rec.LastError
		}
		return "disabled"
	default:
		return "active"
	}
}

func (m *Model) renderDrain() string {
	var b strings.Builder
	b.WriteString(styles.title.Render("Running export"))
	b.WriteString("\n")

	for _, u := range m.progress {
		line := u.Message
		switch u.Phase {
		case tasks.BatchFailed:
			line = styles.err.Render(line)
		case tasks.QuotaExhausted:
			line = styles.warn.Render(line)
		case tasks.ExportComplete:
			line = styles.ok.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	if m.busy {
		b.WriteString("\n")
		b.WriteString(m.help.ShortHelpView([]key.Binding{m.keys.quit}))
		return b.String()
	}

	b.WriteString("\n")
	switch {
	case m.err != nil:
		b.WriteString(styles.err.Render("Stopped: " + m.err.Error()))
	case m.drain != nil:
		b.WriteString(styles.ok.Render(fmt.Sprintf("Done: %d batches, %d new videos", m.drain.Batches, m.drain.VideosImported)))
	}
	b.WriteString("\n\n")
	b.WriteString(m.help.ShortHelpView([]key.Binding{m.keys.back, m.keys.quit}))
	return b.String()
}
