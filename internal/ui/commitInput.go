package ui

import (
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// MessageInputModel asks for a publish commit message. An empty message
// keeps the generated one.
type MessageInputModel struct {
	textInput textinput.Model
	fallback  string
	done      bool
	cancelled bool
}

func NewMessageInputModel(fallback string) MessageInputModel {
	ti := textinput.New()
	ti.Placeholder = fallback
	ti.Focus()
	ti.CharLimit = 500
	ti.Width = 60

	return MessageInputModel{
		textInput: ti,
		fallback:  fallback,
	}
}

func (m MessageInputModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m MessageInputModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "ctrl+c", "esc":
			m.cancelled = true
			return m, tea.Quit

		case "enter":
			m.done = true
			return m, tea.Quit
		}
	}

	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m MessageInputModel) View() string {
	if m.done || m.cancelled {
		return ""
	}

	var sections []string

	sections = append(sections, titleStyle.Render("Publish message"))
	sections = append(sections, "")
	sections = append(sections, m.textInput.View())
	sections = append(sections, "")
	sections = append(sections, mutedStyle.Render("enter: publish | esc: cancel"))

	return lipgloss.JoinVertical(lipgloss.Left, sections...) + "\n"
}

// Message returns the entered message, or the fallback when none was typed.
func (m MessageInputModel) Message() string {
	if v := m.textInput.Value(); v != "" {
		return v
	}
	return m.fallback
}

// PromptMessage asks for a commit message. ok is false when the user
// cancelled.
func PromptMessage(fallback string) (message string, ok bool, err error) {
	p := tea.NewProgram(NewMessageInputModel(fallback))
	model, err := p.Run()
	if err != nil {
		return "", false, err
	}

	final, _ := model.(MessageInputModel)
	if final.cancelled {
		return "", false, nil
	}
	return final.Message(), true, nil
}
