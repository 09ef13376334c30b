package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"
)

const maxMonitorLines = 500

// Link is a text message channel to a gateway.
type Link interface {
	Send(text string) error
	Receive() (string, error)
	Close() error
}

// DialFunc opens a Link.
type DialFunc func(ctx context.Context, url string) (Link, error)

// WebSocketLink is a Link over a gorilla websocket connection.
type WebSocketLink struct {
	conn *websocket.Conn
}

// DialWebSocket connects to the live feed at url.
func DialWebSocket(ctx context.Context, url string) (Link, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &WebSocketLink{conn: conn}, nil
}

// Send writes a text frame.
func (l *WebSocketLink) Send(text string) error {
	return l.conn.WriteMessage(websocket.TextMessage, []byte(text))
}

// Receive blocks for the next text or binary message.
func (l *WebSocketLink) Receive() (string, error) {
	_, data, err := l.conn.ReadMessage()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Close sends a normal closure and drops the connection.
func (l *WebSocketLink) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = l.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return l.conn.Close()
}

// Messages
type linkOpenedMsg struct{ link Link }
type linkClosedMsg struct{ err error }
type receivedMsg struct{ text string }
type sentMsg struct {
	text string
	err  error
}

type monitorKeyMap struct {
	Send key.Binding
	Up   key.Binding
	Down key.Binding
	Quit key.Binding
}

func (k monitorKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Send, k.Up, k.Down, k.Quit}
}

func (k monitorKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Send, k.Up, k.Down, k.Quit}}
}

// MonitorModel shows the traffic of one live feed and lets the user send
// text to it.
type MonitorModel struct {
	URL  string
	dial DialFunc
	link Link

	Connected bool
	Err       error
	Lines     []string

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	help     help.Model
	keys     monitorKeyMap

	width  int
	height int
	now    func() time.Time
}

// NewMonitorModel creates a monitor for url. dial defaults to DialWebSocket.
func NewMonitorModel(url string, dial DialFunc) MonitorModel {
	if dial == nil {
		dial = DialWebSocket
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(PrimaryColor)

	in := textinput.New()
	in.Placeholder = "message"
	in.Prompt = "> "
	in.CharLimit = 512
	in.Focus()

	vp := viewport.New(MinTerminalWidth, 10)

	return MonitorModel{
		URL:      url,
		dial:     dial,
		viewport: vp,
		input:    in,
		spinner:  s,
		help:     help.New(),
		keys: monitorKeyMap{
			Send: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
			Up:   key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup", "scroll up")),
			Down: key.NewBinding(key.WithKeys("pgdown"), key.WithHelp("pgdn", "scroll down")),
			Quit: key.NewBinding(key.WithKeys("esc", "ctrl+c"), key.WithHelp("esc", "quit")),
		},
		width:  MinTerminalWidth,
		height: 16,
		now:    time.Now,
	}
}

// Init starts dialing.
func (m MonitorModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.open())
}

func (m MonitorModel) open() tea.Cmd {
	dial, url := m.dial, m.URL
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		link, err := dial(ctx, url)
		if err != nil {
			return linkClosedMsg{err: err}
		}
		return linkOpenedMsg{link: link}
	}
}

func receive(link Link) tea.Cmd {
	return func() tea.Msg {
		text, err := link.Receive()
		if err != nil {
			return linkClosedMsg{err: err}
		}
		return receivedMsg{text: text}
	}
}

func send(link Link, text string) tea.Cmd {
	return func() tea.Msg {
		return sentMsg{text: text, err: link.Send(text)}
	}
}

// Update handles messages
func (m MonitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-6, 3)
		m.input.Width = max(msg.Width-4, 10)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			if m.link != nil {
				_ = m.link.Close()
			}
			return m, tea.Quit
		case key.Matches(msg, m.keys.Send):
			text := strings.TrimSpace(m.input.Value())
			if text == "" || !m.Connected {
				return m, nil
			}
			m.input.Reset()
			return m, send(m.link, text)
		case key.Matches(msg, m.keys.Up), key.Matches(msg, m.keys.Down):
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case linkOpenedMsg:
		m.link = msg.link
		m.Connected = true
		m.Err = nil
		m.appendLine(HintStyle.Render("connected to " + m.URL))
		return m, receive(m.link)

	case receivedMsg:
		m.appendLine(ReceivedStyle.Render("← ") + msg.text)
		return m, receive(m.link)

	case sentMsg:
		if msg.err != nil {
			m.appendLine(ErrorMessageStyle.Render(FailureMarker + " send failed: " + msg.err.Error()))
			return m, nil
		}
		m.appendLine(SentStyle.Render("→ ") + msg.text)
		return m, nil

	case linkClosedMsg:
		m.Connected = false
		m.Err = msg.err
		if msg.err != nil {
			m.appendLine(ErrorMessageStyle.Render(FailureMarker + " " + msg.err.Error()))
		}
		return m, nil

	case spinner.TickMsg:
		if m.Connected || m.Err != nil {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *MonitorModel) appendLine(line string) {
	stamp := HintStyle.Render(m.now().Format("15:04:05"))
	m.Lines = append(m.Lines, stamp+" "+line)
	if len(m.Lines) > maxMonitorLines {
		m.Lines = m.Lines[len(m.Lines)-maxMonitorLines:]
	}
	m.refresh()
}

func (m *MonitorModel) refresh() {
	m.viewport.SetContent(strings.Join(m.Lines, "\n"))
	m.viewport.GotoBottom()
}

// View renders the monitor
func (m MonitorModel) View() string {
	var status string
	switch {
	case m.Connected:
		status = SuccessTitleStyle.Render(SuccessMarker + " connected")
	case m.Err != nil:
		status = ErrorTitleStyle.Render(FailureMarker + " disconnected")
	default:
		status = m.spinner.View() + " connecting"
	}

	header := lipgloss.JoinHorizontal(lipgloss.Top,
		TitleStyle.Render("APRSGATE MONITOR"), "  ", SubtitleStyle.Render(m.URL), "  ", status)

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		Divider(m.width),
		m.viewport.View(),
		Divider(m.width),
		m.input.View(),
		m.help.View(m.keys),
	)
}

// RunMonitor runs the monitor full screen until the user quits or ctx ends.
func RunMonitor(ctx context.Context, url string) error {
	p := tea.NewProgram(NewMonitorModel(url, DialWebSocket), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
