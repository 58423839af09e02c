package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// StatusModel is the live dashboard behind "catsync watch". It reloads the
// snapshot on start, on "r" and on every FileEventMsg.
type StatusModel struct {
	load     func() (Snapshot, error)
	events   <-chan FileEventMsg
	now      func() time.Time
	viewport viewport.Model
	ready    bool

	snapshot    Snapshot
	err         error
	isLoading   bool
	message     string
	messageTime time.Time
	refreshedAt time.Time
}

func NewStatusModel(load func() (Snapshot, error), events <-chan FileEventMsg) StatusModel {
	return StatusModel{
		load:      load,
		events:    events,
		now:       time.Now,
		viewport:  viewport.New(0, 0),
		isLoading: true,
	}
}

func (m StatusModel) Init() tea.Cmd {
	return tea.Batch(m.refresh, m.waitForEvent)
}

func (m StatusModel) refresh() tea.Msg {
	s, err := m.load()
	return snapshotMsg{snapshot: s, err: err}
}

func (m StatusModel) waitForEvent() tea.Msg {
	if m.events == nil {
		return nil
	}
	ev, ok := <-m.events
	if !ok {
		return nil
	}
	return ev
}

func clearMessageAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return ClearStatusMsg{} })
}

func (m StatusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width - 4
		m.viewport.Height = msg.Height - 6 // Leave space for header, help, and padding
		m.ready = true
		m.viewport.SetContent(m.body())

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "r":
			m.isLoading = true
			return m, m.refresh
		case "j", "down":
			m.viewport.ScrollDown(1)
		case "k", "up":
			m.viewport.ScrollUp(1)
		}

	case FileEventMsg:
		m.isLoading = true
		m.message = "changed: " + msg.Path
		m.messageTime = m.now()
		return m, tea.Batch(m.refresh, m.waitForEvent, clearMessageAfter(3*time.Second))

	case snapshotMsg:
		m.isLoading = false
		m.err = msg.err
		if msg.err == nil {
			m.snapshot = msg.snapshot
		}
		m.refreshedAt = m.now()
		m.viewport.SetContent(m.body())

	case ClearStatusMsg:
		if m.now().Sub(m.messageTime) >= 3*time.Second {
			m.message = ""
		}
	}

	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m StatusModel) body() string {
	if m.err != nil {
		return Failure("Error loading status: " + m.err.Error())
	}
	if m.snapshot.Status == nil {
		return ""
	}
	out := RenderStatus(m.snapshot.Status)
	if m.snapshot.Conflict != nil {
		out += "\n\n" + RenderConflicts(m.snapshot.Conflict, m.now())
	}
	return out
}

func (m StatusModel) View() string {
	if !m.ready {
		return "Loading status..."
	}

	var sections []string

	header := titleStyle.Render("catsync watch")
	switch {
	case m.isLoading:
		header += " " + mutedStyle.Render("refreshing...")
	case !m.refreshedAt.IsZero():
		header += " " + mutedStyle.Render(fmt.Sprintf("updated %s", m.refreshedAt.Format("15:04:05")))
	}
	sections = append(sections, header)
	sections = append(sections, m.viewport.View())

	if m.message != "" {
		sections = append(sections, Success(m.message))
	}
	sections = append(sections, mutedStyle.Render("r: refresh | j/k: scroll | q: quit"))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// RunStatusWatch runs the dashboard until the user quits.
func RunStatusWatch(load func() (Snapshot, error), events <-chan FileEventMsg) error {
	p := tea.NewProgram(NewStatusModel(load, events), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
