package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/corpeningc/catsync/internal/changes"
)

// ChangesViewerModel pages through record changes. n and p jump between
// files; scrolling uses the viewport key map.
type ChangesViewerModel struct {
	title    string
	files    []string
	content  string
	offsets  []int // first line of each file section
	current  int
	viewport viewport.Model
	ready    bool
}

func NewChangesViewerModel(title string, sets []*changes.ChangeSet) ChangesViewerModel {
	m := ChangesViewerModel{
		title:    title,
		viewport: viewport.New(0, 0),
	}

	var b strings.Builder
	line := 0
	for i, cs := range sets {
		section := RenderChangeSets([]*changes.ChangeSet{cs})
		if i > 0 {
			b.WriteString("\n")
			line++
		}
		m.files = append(m.files, cs.File)
		m.offsets = append(m.offsets, line)
		b.WriteString(section)
		line += strings.Count(section, "\n")
	}
	m.content = b.String()
	if len(sets) == 0 {
		m.content = RenderChangeSets(nil)
	}
	return m
}

func (m ChangesViewerModel) Init() tea.Cmd {
	return nil
}

func (m ChangesViewerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - 3 // title, file bar, help
		if !m.ready {
			m.viewport.SetContent(m.content)
			m.ready = true
		}

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "n", "tab":
			m.jump(m.current + 1)
			return m, nil
		case "p", "shift+tab":
			m.jump(m.current - 1)
			return m, nil
		case "g", "home":
			m.viewport.GotoTop()
			m.current = 0
			return m, nil
		case "G", "end":
			m.viewport.GotoBottom()
			m.current = len(m.files) - 1
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	m.syncCurrent()
	return m, cmd
}

func (m *ChangesViewerModel) jump(i int) {
	if i < 0 || i >= len(m.offsets) {
		return
	}
	m.current = i
	m.viewport.SetYOffset(m.offsets[i])
}

// syncCurrent tracks which file section is at the top after scrolling.
func (m *ChangesViewerModel) syncCurrent() {
	top := m.viewport.YOffset
	for i, off := range m.offsets {
		if off <= top {
			m.current = i
		}
	}
}

func (m ChangesViewerModel) View() string {
	if !m.ready {
		return "Loading changes..."
	}

	fileBar := ""
	if len(m.files) > 0 {
		fileBar = mutedStyle.Render(fmt.Sprintf("file %d/%d: %s", m.current+1, len(m.files), m.files[m.current]))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(m.title),
		fileBar,
		m.viewport.View(),
		mutedStyle.Render("↑/↓ j/k scroll | d/u half page | n/p next/prev file | g/G top/bottom | q quit"),
	)
}

// ShowChanges opens a full-screen pager over record changes.
func ShowChanges(title string, sets []*changes.ChangeSet) error {
	_, err := tea.NewProgram(NewChangesViewerModel(title, sets), tea.WithAltScreen()).Run()
	return err
}
