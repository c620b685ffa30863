package main

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	lipgloss "github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/slashmail/slashmail/internal/session"
)

type tickMsg time.Time
type doneMsg struct{}
type eventMsg session.Event

func tick() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

type folderProgress struct {
	total int
	done  int
}

// progressModel shows a spinner, an overall bar, and an ETA while an
// executor works through its batches.
type progressModel struct {
	title    string
	total    int
	prog     map[string]folderProgress
	spinner  spinner.Model
	bar      progress.Model
	started  time.Time
	finished bool
}

func newProgressModel(title string, total int) *progressModel {
	s := spinner.New()
	s.Spinner = spinner.Line
	bar := progress.New(progress.WithDefaultGradient())
	return &progressModel{
		title:   title,
		total:   total,
		prog:    map[string]folderProgress{},
		spinner: s,
		bar:     bar,
		started: time.Now(),
	}
}

func (m *progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick())
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case doneMsg:
		m.finished = true
		return m, tea.Quit
	case eventMsg:
		fp := m.prog[msg.Folder]
		if msg.Total > 0 {
			fp.total = msg.Total
		}
		if msg.Done > 0 {
			fp.done = msg.Done
		}
		m.prog[msg.Folder] = fp
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tickMsg:
		return m, tick()
	}
	return m, nil
}

func (m *progressModel) doneAll() int {
	done := 0
	for _, fp := range m.prog {
		done += fp.done
	}
	return done
}

func (m *progressModel) View() string {
	title := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")).Render("slashmail")
	done := m.doneAll()
	pct := 0.0
	if m.total > 0 {
		pct = float64(done) / float64(m.total)
	}
	s := title + "\n\n"
	s += fmt.Sprintf("%s %s %d/%d   %s\n", m.spinner.View(), m.title, done, m.total, m.eta(done))
	s += m.bar.ViewAs(pct) + "\n"
	return s
}

func (m *progressModel) eta(done int) string {
	remaining := m.total - done
	if m.total == 0 || remaining <= 0 {
		return "ETA 0s"
	}
	elapsed := time.Since(m.started).Seconds()
	if elapsed <= 0 || done == 0 {
		return "ETA --"
	}
	rate := float64(done) / elapsed
	d := time.Duration(float64(remaining)/rate) * time.Second
	switch {
	case d > 99*time.Hour:
		return "ETA >99h"
	case d >= time.Minute:
		return fmt.Sprintf("ETA %dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("ETA %ds", int(d.Seconds()))
	}
}

// withProgress runs do while feeding the session's progress events into
// a TUI. Without a terminal it just runs do.
func withProgress(s *session.Session, title string, total int, do func() (session.Result, error)) (session.Result, error) {
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return do()
	}

	p := tea.NewProgram(newProgressModel(title, total), tea.WithOutput(os.Stderr))
	var res session.Result
	var derr error
	done := make(chan struct{})
	go func() {
		for ev := range s.Events() {
			p.Send(eventMsg(ev))
		}
	}()
	go func() {
		res, derr = do()
		close(done)
		p.Send(doneMsg{})
	}()
	_, uiErr := p.Run()
	// Quitting the UI does not cancel the executor; in-flight batches are
	// never abandoned halfway. Wait for the real result either way.
	<-done
	if uiErr != nil {
		fmt.Fprintln(os.Stderr, "progress display failed:", uiErr)
	}
	return res, derr
}

type confirmModel struct {
	title   string
	summary string
	choice  *bool
}

func (m *confirmModel) Init() tea.Cmd { return nil }

func (m *confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "y", "enter":
			v := true
			m.choice = &v
			return m, tea.Quit
		case "n", "q", "esc", "ctrl+c":
			v := false
			m.choice = &v
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m *confirmModel) View() string {
	title := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")).Render(m.title)
	desc := lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Render("Press y to confirm, n to cancel")
	box := lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(1, 2).Width(78).Render(m.summary)
	return fmt.Sprintf("%s\n\n%s\n\n%s\n", title, box, desc)
}

// runConfirmTUI shows the summary box and returns true when confirmed.
func runConfirmTUI(title, summary string) (bool, error) {
	m := &confirmModel{title: title, summary: summary}
	if _, err := tea.NewProgram(m, tea.WithOutput(os.Stderr)).Run(); err != nil {
		return false, err
	}
	if m.choice == nil {
		return false, nil
	}
	return *m.choice, nil
}
