// Package tui is a terminal chat front end for the study assistant.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/poiesic/studyrag/core"
)

// Asker is the TUI-facing subset of the answer orchestrator.
type Asker interface {
	Query(ctx context.Context, question string, mode core.Mode, conversationID string) *core.Answer
}

type answerMsg struct {
	answer *core.Answer
}

type turn struct {
	question string
	mode     core.Mode
	answer   *core.Answer
}

// Model is the Bubble Tea model for the chat screen.
type Model struct {
	ctx            context.Context
	asker          Asker
	input          textinput.Model
	viewport       viewport.Model
	spinner        spinner.Model
	mode           core.Mode
	conversationID string
	turns          []turn
	waiting        bool
	ready          bool
	status         string
}

// New creates a chat model. conversationID may be empty to start a new conversation.
func New(ctx context.Context, asker Asker, conversationID string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about your documents and press Enter"
	ti.Focus()
	ti.CharLimit = 0

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		ctx:            ctx,
		asker:          asker,
		input:          ti,
		viewport:       viewport.New(0, 0),
		spinner:        sp,
		mode:           core.ModeQA,
		conversationID: conversationID,
		status:         "Tab: switch mode  Ctrl+N: new conversation  Esc: quit",
	}
}

// Init starts the cursor blinking.
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Mode returns the mode used for the next question.
func (m Model) Mode() core.Mode { return m.mode }

// ConversationID returns the id of the current conversation, empty before the first answer.
func (m Model) ConversationID() string { return m.conversationID }

// Update handles key, window and answer events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptStyle.GetFrameSize()
		_, ih := inputStyle.GetFrameSize()
		reserved := 2 + 1 + ih + th // header, status, input box
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved)
		m.refresh()
		return m, nil

	case answerMsg:
		m.waiting = false
		if n := len(m.turns); n > 0 {
			m.turns[n-1].answer = msg.answer
		}
		if msg.answer != nil && msg.answer.ConversationID != "" {
			m.conversationID = msg.answer.ConversationID
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.waiting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refresh()
		return m, cmd

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyTab:
			m.mode = nextMode(m.mode)
			return m, nil
		case tea.KeyCtrlN:
			if m.waiting {
				return m, nil
			}
			m.conversationID = ""
			m.turns = nil
			m.refresh()
			return m, nil
		case tea.KeyEnter:
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.waiting {
				return m, nil
			}
			m.input.SetValue("")
			m.turns = append(m.turns, turn{question: q, mode: m.mode})
			m.waiting = true
			m.refresh()
			return m, tea.Batch(m.spinner.Tick, m.ask(q, m.mode, m.conversationID))
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) ask(question string, mode core.Mode, conversationID string) tea.Cmd {
	return func() tea.Msg {
		return answerMsg{answer: m.asker.Query(m.ctx, question, mode, conversationID)}
	}
}

// View renders the header, transcript, input box and status line.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("Study Assistant") + "  " + modeStyle.Render("mode: "+string(m.mode))
	status := statusStyle.Render(m.status)
	if m.waiting {
		status = m.spinner.View() + " thinking..."
	}
	return header + "\n" +
		transcriptStyle.Render(m.viewport.View()) + "\n" +
		inputStyle.Render(m.input.View()) + "\n" +
		status
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) renderTranscript() string {
	if len(m.turns) == 0 {
		return "No questions yet. Upload documents, then ask away."
	}
	var b strings.Builder
	for i, t := range m.turns {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s %s\n", userStyle.Render(fmt.Sprintf("You [%s]:", t.mode)), t.question)
		if t.answer == nil {
			continue
		}
		fmt.Fprintf(&b, "%s %s\n", assistantStyle.Render("Assistant:"), t.answer.Text)
		for _, src := range t.answer.Sources {
			b.WriteString(sourceStyle.Render(fmt.Sprintf("  - %s (relevance %.2f)", src.Document, src.RelevanceScore)))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func nextMode(mode core.Mode) core.Mode {
	for i, m := range core.Modes {
		if m == mode {
			return core.Modes[(i+1)%len(core.Modes)]
		}
	}
	return core.ModeQA
}

var (
	headerStyle     = lipgloss.NewStyle().Bold(true)
	modeStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	userStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	assistantStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	sourceStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)
