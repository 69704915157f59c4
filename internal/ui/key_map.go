package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the dashboard.
type keyMap struct {
	up      key.Binding
	down    key.Binding
	batch   key.Binding
	drain   key.Binding
	enable  key.Binding
	disable key.Binding
	attempt key.Binding
	refresh key.Binding
	back    key.Binding
	quit    key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		batch:   key.NewBinding(key.WithKeys("b"), key.WithHelp("b", "one batch")),
		drain:   key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "run until stop")),
		enable:  key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "enable auto-resume")),
		disable: key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "disable auto-resume")),
		attempt: key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "auto-resume attempt")),
		refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		back:    key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.batch, k.drain, k.enable, k.disable, k.refresh, k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.up, k.down},
		{k.batch, k.drain, k.refresh},
		{k.enable, k.disable, k.attempt},
		{k.back, k.quit},
	}
}
