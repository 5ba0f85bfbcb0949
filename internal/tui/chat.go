// Package tui is the terminal chat client for a LEMON scope.
package tui

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/lox/lemonroulette/internal/chat"
)

// Sender delivers a typed line to the gateway.
type Sender interface {
	Say(text string) error
}

// ServerMsg wraps a message received from the gateway.
type ServerMsg struct {
	Message *chat.Message
}

// DisconnectedMsg is emitted once the gateway stream ends.
type DisconnectedMsg struct{}

// Model is the bubbletea model for the chat client.
type Model struct {
	sender   Sender
	incoming <-chan *chat.Message
	logger   *log.Logger

	scope string
	name  string

	logViewport viewport.Model
	input       textinput.Model
	lines       []string

	width    int
	height   int
	quitting bool
}

// New creates a chat model reading from incoming and writing through sender.
func New(sender Sender, incoming <-chan *chat.Message, scope, name string, logger *log.Logger) *Model {
	vp := viewport.New(10, 5)
	vp.SetContent("")

	ti := textinput.New()
	ti.Placeholder = "100 к, 50 7, 10 7 ч, б, отмена"
	ti.Focus()
	ti.CharLimit = 100
	ti.Width = 60
	ti.PromptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Bold(true)
	ti.TextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FAFAFA"))
	ti.Prompt = "> "

	return &Model{
		sender:      sender,
		incoming:    incoming,
		logger:      logger.WithPrefix("tui"),
		scope:       scope,
		name:        name,
		logViewport: vp,
		input:       ti,
	}
}

// Init starts the cursor blink and the gateway listener.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.listen())
}

func (m *Model) listen() tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-m.incoming
		if !ok {
			return DisconnectedMsg{}
		}
		return ServerMsg{Message: msg}
	}
}

// Update handles keys, window resizes and gateway messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()

	case ServerMsg:
		m.handleServer(msg.Message)
		cmds = append(cmds, m.listen())

	case DisconnectedMsg:
		m.AddLine(ErrorStyle.Render("disconnected from server"))

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "enter":
			text := strings.TrimSpace(m.input.Value())
			m.input.SetValue("")
			if text == "" {
				break
			}
			if text == "/quit" {
				m.quitting = true
				return m, tea.Quit
			}
			m.AddLine(OwnLineStyle.Render(m.name + ": " + text))
			if err := m.sender.Say(text); err != nil {
				m.AddLine(ErrorStyle.Render("send failed: " + err.Error()))
			}
		case "pgup":
			m.logViewport.HalfPageUp()
		case "pgdown":
			m.logViewport.HalfPageDown()
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	m.logViewport, cmd = m.logViewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *Model) handleServer(msg *chat.Message) {
	switch msg.Type {
	case chat.MessageTypeJoined:
		var data chat.JoinedData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			m.logger.Warn("Bad joined payload", "error", err)
			return
		}
		m.AddLine(InfoStyle.Render(fmt.Sprintf("joined %s, balance %d %s, window %s",
			data.Scope, data.Balance, data.Currency, data.Window)))
	case chat.MessageTypeReply:
		var data chat.ReplyData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			m.logger.Warn("Bad reply payload", "error", err)
			return
		}
		m.AddLine(LogStyle.Render(data.Text))
	case chat.MessageTypeReport:
		var data chat.ReportData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			m.logger.Warn("Bad report payload", "error", err)
			return
		}
		m.AddLine(ReportStyle.Render(data.Text))
	case chat.MessageTypeError:
		var data chat.ErrorData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			m.logger.Warn("Bad error payload", "error", err)
			return
		}
		m.AddLine(ErrorStyle.Render(data.Code + ": " + data.Message))
	default:
		m.logger.Debug("Ignoring message", "type", msg.Type)
	}
}

// AddLine appends to the log and scrolls to the bottom.
func (m *Model) AddLine(line string) {
	m.lines = append(m.lines, line)
	m.logViewport.SetContent(strings.Join(m.lines, "\n"))
	if m.logViewport.Height > 0 && m.logViewport.Width > 0 {
		m.logViewport.GotoBottom()
	}
}

// Lines returns the log contents.
func (m *Model) Lines() []string {
	return append([]string(nil), m.lines...)
}

func (m *Model) resize() {
	// header, input and borders
	h := m.height - 6
	if h < 3 {
		h = 3
	}
	w := m.width - 4
	if w < 10 {
		w = 10
	}
	m.logViewport.Width = w
	m.logViewport.Height = h
	m.input.Width = w - 4
	m.logViewport.GotoBottom()
}

// View renders the header, log and input.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	header := HeaderStyle.Render(fmt.Sprintf(" LEMON 🎯 %s as %s ", m.scope, m.name))
	body := BorderStyle.Render(m.logViewport.View())
	return lipgloss.JoinVertical(lipgloss.Left, header, body, m.input.View())
}
