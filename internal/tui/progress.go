// Package tui implements the interactive progress display for forgeline.
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// doneMsg carries the result of the background work.
type doneMsg struct {
	err error
}

// tickMsg refreshes the elapsed-time display.
type tickMsg time.Time

// progressModel shows a spinner and elapsed time while fn runs.
type progressModel struct {
	label   string
	spinner spinner.Model
	started time.Time
	fn      func() error

	finished bool
	err      error
}

func newProgressModel(label string, fn func() error) progressModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return progressModel{
		label:   label,
		spinner: sp,
		started: time.Now(),
		fn:      fn,
	}
}

func (m progressModel) Init() tea.Cmd {
	work := func() tea.Msg {
		return doneMsg{err: m.fn()}
	}
	return tea.Batch(m.spinner.Tick, tick(), work)
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case doneMsg:
		m.finished = true
		m.err = msg.err
		return m, tea.Quit

	case tickMsg:
		return m, tick()

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.finished = true
			m.err = fmt.Errorf("interrupted")
			return m, tea.Quit
		}
		return m, nil

	default:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
}

func (m progressModel) View() string {
	if m.finished {
		if m.err != nil {
			return failStyle.Render("✗ "+m.label) + "\n"
		}
		return doneStyle.Render("✓ "+m.label) + "\n"
	}

	elapsed := time.Since(m.started).Truncate(time.Second)
	return fmt.Sprintf("%s %s %s\n",
		m.spinner.View(),
		labelStyle.Render(m.label),
		elapsedStyle.Render(elapsed.String()),
	)
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// RunWithProgress executes fn while rendering a spinner. It returns fn's
// error, or the interruption error if the user quits first.
func RunWithProgress(label string, fn func() error) error {
	model := newProgressModel(label, fn)
	p := tea.NewProgram(model)

	final, err := p.Run()
	if err != nil {
		return err
	}
	if m, ok := final.(progressModel); ok {
		return m.err
	}
	return nil
}
