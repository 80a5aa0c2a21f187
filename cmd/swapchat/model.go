package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/adi-253/skillswap/internal/chatclient"
	"github.com/adi-253/skillswap/internal/models"
)

type page int

const (
	pageList page = iota
	pageChat
)

const requestTimeout = 10 * time.Second

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	badgeStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("11")).Padding(0, 1)
	selectedStyle = lipgloss.NewStyle().Reverse(true)
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	ownStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	unreadDot     = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Render("●")
)

type previewsLoadedMsg struct {
	previews []models.ChatPreview
	err      error
}

type mountedMsg struct {
	controller *chatclient.Controller
	err        error
}

type controllerChangedMsg struct {
	controller *chatclient.Controller
}

type sendResultMsg struct {
	err error
}

type unreadMsg bool

type stateMsg chatclient.State

// model is the bubbletea model of the client: a chat list page and a chat page.
type model struct {
	ctx    context.Context
	api    *chatclient.API
	conn   *chatclient.Connection
	userID string
	keys   keyMap

	page       page
	previews   []models.ChatPreview
	cursor     int
	controller *chatclient.Controller

	notifier *chatclient.NotificationListener
	unread   bool
	state    chatclient.State
	status   string

	// events carries callbacks from the connection into the program
	events chan tea.Msg

	input    textinput.Model
	viewport viewport.Model
	width    int
	height   int
}

func newModel(ctx context.Context, api *chatclient.API, conn *chatclient.Connection, userID string) model {
	events := make(chan tea.Msg, 64)
	post := func(msg tea.Msg) {
		select {
		case events <- msg:
		default:
		}
	}

	input := textinput.New()
	input.Placeholder = "Type a message"
	input.CharLimit = 1000

	m := model{
		ctx:      ctx,
		api:      api,
		conn:     conn,
		userID:   userID,
		keys:     defaultKeyMap,
		events:   events,
		input:    input,
		viewport: viewport.New(80, 20),
	}
	m.notifier = chatclient.NewNotificationListener(conn, userID, func(unread bool) { post(unreadMsg(unread)) })
	conn.OnStateChange(func(state chatclient.State) { post(stateMsg(state)) })
	return m
}

// Init loads the chat list and starts listening for connection events.
func (m model) Init() tea.Cmd {
	return tea.Batch(m.loadPreviews(), listenForEvent(m.events), m.connect())
}

// listenForEvent returns a tea.Cmd that blocks until a connection event
// arrives, then delivers it to Update.
func listenForEvent(channel <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-channel
		if !ok {
			return nil
		}
		return msg
	}
}

// listenForChange waits for the next view change of controller.
func listenForChange(controller *chatclient.Controller) tea.Cmd {
	return func() tea.Msg {
		<-controller.Changes()
		return controllerChangedMsg{controller: controller}
	}
}

func (m model) connect() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, requestTimeout)
		defer cancel()
		if err := m.conn.Connect(ctx); err != nil {
			return sendResultMsg{err: err}
		}
		return nil
	}
}

func (m model) loadPreviews() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, requestTimeout)
		defer cancel()
		previews, err := m.api.Previews(ctx, m.userID)
		return previewsLoadedMsg{previews: previews, err: err}
	}
}

func mount(ctx context.Context, controller *chatclient.Controller) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		return mountedMsg{controller: controller, err: controller.Mount(ctx)}
	}
}

func unmount(ctx context.Context, controller *chatclient.Controller) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		controller.Unmount(ctx)
		return nil
	}
}

func send(ctx context.Context, controller *chatclient.Controller, content string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		return sendResultMsg{err: controller.Send(ctx, content)}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-4, 1)
		m.input.Width = max(msg.Width-4, 10)
		m.refreshViewport()
		return m, nil

	case tea.KeyMsg:
		if m.page == pageChat {
			return m.updateChat(msg)
		}
		return m.updateList(msg)

	case previewsLoadedMsg:
		if msg.err != nil {
			m.status = msg.err.Error()
			return m, nil
		}
		m.previews = msg.previews
		m.status = ""
		if m.cursor >= len(m.previews) {
			m.cursor = max(len(m.previews)-1, 0)
		}
		return m, nil

	case mountedMsg:
		if m.controller != msg.controller {
			return m, nil
		}
		if msg.err != nil {
			m.status = msg.err.Error()
		}
		m.refreshViewport()
		return m, listenForChange(msg.controller)

	case controllerChangedMsg:
		if m.controller != msg.controller {
			return m, nil
		}
		m.refreshViewport()
		return m, listenForChange(msg.controller)

	case sendResultMsg:
		if msg.err != nil {
			m.status = msg.err.Error()
			if m.controller != nil && m.input.Value() == "" {
				m.input.SetValue(m.controller.Draft())
			}
		}
		return m, nil

	case unreadMsg:
		m.unread = bool(msg)
		return m, listenForEvent(m.events)

	case stateMsg:
		m.state = chatclient.State(msg)
		return m, listenForEvent(m.events)
	}

	if m.page == pageChat {
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.previews)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Refresh):
		return m, m.loadPreviews()
	case key.Matches(msg, m.keys.Open):
		if len(m.previews) == 0 {
			return m, nil
		}
		return m.openChat(m.previews[m.cursor].ConversationID)
	}
	return m, nil
}

func (m model) openChat(conversationID string) (tea.Model, tea.Cmd) {
	controller := chatclient.NewController(m.conn, m.api, conversationID, m.userID, nil)
	m.controller = controller
	m.page = pageChat
	m.status = ""
	m.notifier.SetChatPage(true)
	m.input.Reset()
	m.refreshViewport()
	return m, tea.Batch(mount(m.ctx, controller), m.input.Focus())
}

func (m model) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.String() == "ctrl+c":
		return m, tea.Quit
	case key.Matches(msg, m.keys.Back):
		controller := m.controller
		m.controller = nil
		m.page = pageList
		m.status = ""
		m.input.Blur()
		m.notifier.SetChatPage(false)
		return m, tea.Batch(unmount(m.ctx, controller), m.loadPreviews())
	case key.Matches(msg, m.keys.Send):
		content := strings.TrimSpace(m.input.Value())
		if content == "" || m.controller == nil {
			return m, nil
		}
		m.input.Reset()
		m.status = ""
		return m, send(m.ctx, m.controller, content)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *model) refreshViewport() {
	if m.controller == nil {
		m.viewport.SetContent("")
		return
	}
	var b strings.Builder
	for _, entry := range m.controller.Entries() {
		b.WriteString(m.renderEntry(entry))
		b.WriteByte('\n')
	}
	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

func (m model) renderEntry(entry chatclient.Entry) string {
	msg := entry.Message
	stamp := mutedStyle.Render(msg.SentAt.Local().Format("15:04"))
	name := msg.SenderName
	if msg.SenderID == m.userID {
		name = ownStyle.Render("you")
	}
	line := fmt.Sprintf("%s %s: %s", stamp, name, msg.Content)
	if entry.State == chatclient.Provisional {
		line += mutedStyle.Render(" (sending)")
	} else if msg.SenderID == m.userID && msg.IsRead {
		line += mutedStyle.Render(" ✓")
	}
	return line
}

func (m model) View() string {
	if m.page == pageChat {
		return m.viewChat()
	}
	return m.viewList()
}

func (m model) header(title string) string {
	header := titleStyle.Render(title)
	if m.unread && m.page == pageList {
		header += " " + badgeStyle.Render("new messages")
	}
	if m.state == chatclient.StateReconnecting || m.state == chatclient.StateOffline {
		header += " " + errorStyle.Render(m.state.String())
	}
	return header
}

func (m model) viewList() string {
	var b strings.Builder
	b.WriteString(m.header("Chats"))
	b.WriteString("\n\n")

	if len(m.previews) == 0 {
		b.WriteString(mutedStyle.Render("No accepted skill swaps yet."))
		b.WriteByte('\n')
	}
	for i, preview := range m.previews {
		marker := " "
		if preview.HasUnreadMessages {
			marker = unreadDot
		}
		last := mutedStyle.Render("No messages yet")
		if preview.LastMessage != nil {
			last = *preview.LastMessage
		}
		row := fmt.Sprintf("%s %-20s %s", marker, preview.OtherUserName, last)
		if i == m.cursor {
			row = selectedStyle.Render(row)
		}
		b.WriteString(row)
		b.WriteByte('\n')
	}

	b.WriteByte('\n')
	if m.status != "" {
		b.WriteString(errorStyle.Render(m.status))
		b.WriteByte('\n')
	}
	b.WriteString(mutedStyle.Render("enter open · r refresh · q quit"))
	return b.String()
}

func (m model) viewChat() string {
	title := "Chat"
	if m.cursor < len(m.previews) {
		title = m.previews[m.cursor].OtherUserName
	}

	var b strings.Builder
	b.WriteString(m.header(title))
	b.WriteByte('\n')
	b.WriteString(m.viewport.View())
	b.WriteByte('\n')
	status := m.status
	if status == "" && m.controller != nil {
		status = m.controller.Err()
	}
	if status != "" {
		b.WriteString(errorStyle.Render(status))
		b.WriteByte('\n')
	}
	b.WriteString(m.input.View())
	b.WriteByte('\n')
	b.WriteString(mutedStyle.Render("enter send · esc back"))
	return b.String()
}
