package tui

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/simon/sshmux/internal/session"
)

const (
	pollInterval = 1500 * time.Millisecond
	opTimeout    = 10 * time.Second
	previewLines = 50
)

var validHost = regexp.MustCompile(`^[A-Za-z0-9._@-]+$`)

type tickMsg time.Time

type sessionsMsg []session.Session

type sessionOpenedMsg struct {
	ID  string
	Err error
}

type previewOutputMsg struct {
	ID     string
	Output string
}

type previewState struct {
	ID     string
	Target string
	Output string
}

type confirmAction struct {
	ID     string
	Target string
}

type Model struct {
	mgr           *session.Manager
	sessions      []session.Session
	filtered      []session.Session
	cursor        int
	scrollOffset  int
	input         textinput.Model
	preview       *previewState
	confirmClose  *confirmAction
	width, height int
	AttachID      string // set when user confirms attach
	quitting      bool
	err           error
}

func NewModel(mgr *session.Manager) Model {
	ti := textinput.New()
	ti.Placeholder = "Type to filter or enter command..."
	ti.Prompt = ""
	ti.Focus()
	ti.CharLimit = 256
	ti.Width = 60

	return Model{
		mgr:   mgr,
		input: ti,
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.refreshSessions,
		tickCmd(),
	)
}

func (m Model) refreshSessions() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	sessions, err := m.mgr.ListSessions(ctx)
	if err != nil {
		return err
	}
	return sessionsMsg(sessions)
}

func (m Model) capturePreviewCmd(id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		snap, err := m.mgr.GetSnapshot(ctx, id, previewLines)
		if err != nil {
			return previewOutputMsg{ID: id, Output: "Error: " + err.Error()}
		}
		return previewOutputMsg{ID: id, Output: snap.Text}
	}
}

func (m Model) sendToSessionCmd(id, command string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		res, err := m.mgr.SendCommand(ctx, id, command, previewLines)
		if err != nil {
			return previewOutputMsg{ID: id, Output: "Error: " + err.Error()}
		}
		return previewOutputMsg{ID: id, Output: res.Snapshot.Text}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case sessionOpenedMsg:
		if msg.Err != nil {
			m.err = msg.Err
		} else {
			m.err = nil
		}
		m.input.SetValue("")
		return m, m.refreshSessions

	case sessionsMsg:
		m.sessions = msg
		m.err = nil
		if m.preview == nil {
			m.applyFilter()
		}
		return m, nil

	case error:
		m.err = msg
		return m, nil

	case tickMsg:
		cmds := []tea.Cmd{tickCmd(), m.refreshSessions}
		if m.preview != nil {
			cmds = append(cmds, m.capturePreviewCmd(m.preview.ID))
		}
		return m, tea.Batch(cmds...)

	case previewOutputMsg:
		// Ignore stale captures from a previously selected session.
		if m.preview != nil && m.preview.ID == msg.ID {
			m.preview.Output = msg.Output
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = msg.Width - 4
		return m, nil

	case tea.MouseMsg:
		return m.handleMouse(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Ctrl+C always quits
	if key.Matches(msg, keys.CtrlC) {
		m.quitting = true
		return m, tea.Quit
	}

	// Escape
	if key.Matches(msg, keys.Escape) {
		if m.confirmClose != nil {
			m.confirmClose = nil
			return m, nil
		}
		if m.preview != nil {
			m.preview = nil
			m.input.SetValue("")
			m.applyFilter()
			return m, nil
		}
		m.input.SetValue("")
		m.applyFilter()
		return m, nil
	}

	// If close confirmation is pending, only Enter proceeds
	if m.confirmClose != nil {
		if key.Matches(msg, keys.Enter) {
			return m.executeClose()
		}
		// Any other key cancels
		m.confirmClose = nil
		return m, nil
	}

	// Ctrl+K: close selected session
	if key.Matches(msg, keys.Kill) {
		if sel := m.selectedSession(); sel != nil {
			m.confirmClose = &confirmAction{
				ID:     sel.ID,
				Target: sel.Conn.Target(),
			}
		}
		return m, nil
	}

	// q quits only when input is empty and no preview
	if key.Matches(msg, keys.Quit) && m.input.Value() == "" && m.preview == nil {
		m.quitting = true
		return m, tea.Quit
	}

	if m.preview != nil {
		return m.handlePreviewKey(msg)
	}
	return m.handleNormalKey(msg)
}

func (m Model) handleNormalKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Navigation: only when input is empty
	if m.input.Value() == "" {
		if key.Matches(msg, keys.Up) {
			if m.cursor > 0 {
				m.cursor--
				m.ensureCursorVisible()
			}
			return m, nil
		}
		if key.Matches(msg, keys.Down) {
			if m.cursor < len(m.filtered)-1 {
				m.cursor++
				m.ensureCursorVisible()
			}
			return m, nil
		}
	}

	// Enter
	if key.Matches(msg, keys.Enter) {
		text := strings.TrimSpace(m.input.Value())

		// /open command: open a new session
		if cmd := m.parseOpenCommand(text); cmd != nil {
			m.input.SetValue("")
			return m, cmd
		}

		// Open preview
		sel := m.selectedSession()
		if sel == nil {
			return m, nil
		}
		m.preview = &previewState{
			ID:     sel.ID,
			Target: sel.Conn.Target(),
		}
		m.input.SetValue("")
		return m, m.capturePreviewCmd(sel.ID)
	}

	// Default: update text input and refilter
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.applyFilter()
	return m, cmd
}

func (m Model) handlePreviewKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Navigation: switch between sessions while previewing
	if m.input.Value() == "" {
		if key.Matches(msg, keys.Up) {
			if m.cursor > 0 {
				m.cursor--
				m.ensureCursorVisible()
			}
			return m.switchPreview()
		}
		if key.Matches(msg, keys.Down) {
			if m.cursor < len(m.filtered)-1 {
				m.cursor++
				m.ensureCursorVisible()
			}
			return m.switchPreview()
		}
	}

	// Enter
	if key.Matches(msg, keys.Enter) {
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			// Attach to session
			m.AttachID = m.preview.ID
			m.preview = nil
			m.quitting = true
			return m, tea.Quit
		}
		// Send text to session
		id := m.preview.ID
		m.input.SetValue("")
		return m, m.sendToSessionCmd(id, text)
	}

	// Default: update text input (no filtering in preview mode)
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) switchPreview() (tea.Model, tea.Cmd) {
	sel := m.selectedSession()
	if sel == nil {
		return m, nil
	}
	m.preview.ID = sel.ID
	m.preview.Target = sel.Conn.Target()
	m.preview.Output = ""
	return m, m.capturePreviewCmd(sel.ID)
}

func (m Model) handleMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	// Ignore all mouse events in preview mode
	if m.preview != nil {
		return m, nil
	}

	switch msg.Button {
	case tea.MouseButtonWheelUp:
		if m.cursor > 0 {
			m.cursor--
			m.ensureCursorVisible()
		}
		return m, nil
	case tea.MouseButtonWheelDown:
		if m.cursor < len(m.filtered)-1 {
			m.cursor++
			m.ensureCursorVisible()
		}
		return m, nil
	}

	return m, nil
}

func (m Model) executeClose() (Model, tea.Cmd) {
	if m.confirmClose == nil {
		return m, nil
	}
	id := m.confirmClose.ID
	m.confirmClose = nil
	m.preview = nil
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		if _, err := m.mgr.CloseSession(ctx, id); err != nil {
			return err
		}
		return m.refreshSessions()
	}
}

func (m *Model) applyFilter() {
	query := strings.TrimSpace(m.input.Value())
	// Don't filter when typing a command (starts with /)
	if query == "" || strings.HasPrefix(query, "/") {
		m.filtered = m.sessions
	} else {
		lower := strings.ToLower(query)
		m.filtered = nil
		for _, s := range m.sessions {
			if strings.Contains(strings.ToLower(s.ID), lower) ||
				strings.Contains(strings.ToLower(s.Conn.Target()), lower) {
				m.filtered = append(m.filtered, s)
			}
		}
	}
	if m.cursor >= len(m.filtered) {
		m.cursor = max(0, len(m.filtered)-1)
	}
	m.ensureCursorVisible()
}

func (m Model) maxVisibleSessions() int {
	if m.preview == nil {
		return len(m.filtered)
	}
	maxVis := m.height / 10
	if maxVis < 5 {
		maxVis = 5
	}
	if maxVis > len(m.filtered) {
		maxVis = len(m.filtered)
	}
	return maxVis
}

func (m *Model) ensureCursorVisible() {
	maxVis := m.maxVisibleSessions()
	if maxVis <= 0 {
		m.scrollOffset = 0
		return
	}
	if m.cursor < m.scrollOffset {
		m.scrollOffset = m.cursor
	}
	if m.cursor >= m.scrollOffset+maxVis {
		m.scrollOffset = m.cursor - maxVis + 1
	}
	maxOffset := len(m.filtered) - maxVis
	if maxOffset < 0 {
		maxOffset = 0
	}
	if m.scrollOffset > maxOffset {
		m.scrollOffset = maxOffset
	}
}

func (m Model) selectedSession() *session.Session {
	if len(m.filtered) == 0 {
		return nil
	}
	if m.cursor < 0 || m.cursor >= len(m.filtered) {
		return nil
	}
	s := m.filtered[m.cursor]
	return &s
}

// parseOpenCommand handles "/open <host> [user] [port]".
func (m Model) parseOpenCommand(text string) tea.Cmd {
	if !strings.HasPrefix(text, "/open ") {
		return nil
	}
	parts := strings.Fields(text)
	if len(parts) < 2 {
		return nil
	}
	host := parts[1]
	if !validHost.MatchString(host) {
		return nil
	}

	user := ""
	if len(parts) >= 3 {
		user = parts[2]
	}
	port := 0
	if len(parts) >= 4 {
		port, _ = strconv.Atoi(parts[3])
	}

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		sess, _, err := m.mgr.OpenSession(ctx, host, user, port)
		return sessionOpenedMsg{ID: sess.ID, Err: err}
	}
}
