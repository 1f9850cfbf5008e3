package watch

import (
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/windsurf-mcp/internal/events"
)

const (
	eventLogSize   = 50
	statusInterval = 5 * time.Second
	reconnectDelay = 3 * time.Second
)

// Model is the BubbleTea model for the watch TUI.
type Model struct {
	client Client

	width  int
	height int

	health      HealthState
	operations  map[string]*OperationStats
	maintenance map[string]*MaintenanceState
	eventLog    []events.Event
	lastID      int64

	ticker   Ticker
	activity Activity
	table    table.Model
	theme    Theme
	now      func() time.Time

	stream chan events.Event

	lastError string
}

// New creates a monitor for the server at apiURL. token may be empty when the
// server runs without authentication.
func New(apiURL, token string) *Model {
	theme := NewDefaultTheme()
	return &Model{
		client: Client{
			BaseURL: apiURL,
			Token:   token,
			HTTP:    &http.Client{},
		},
		operations:  make(map[string]*OperationStats),
		maintenance: make(map[string]*MaintenanceState),
		stream:      make(chan events.Event, 100),
		ticker:      NewTicker(),
		table:       newOperationsTable(theme),
		theme:       theme,
		now:         time.Now,
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.client.subscribe(0, m.stream),
		receiveNextEvent(m.stream),
		m.client.fetchStatus,
		tick(),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetColumns(operationColumns(msg.Width - 4))

	case tickMsg:
		m.ticker.Tick()
		m.activity.Decay(time.Time(msg))
		return m, tick()

	case eventMsg:
		e := events.Event(msg)
		if e.ID != 0 && e.ID <= m.lastID {
			return m, receiveNextEvent(m.stream)
		}
		if e.ID > m.lastID {
			m.lastID = e.ID
		}

		m.eventLog = append([]events.Event{e}, m.eventLog...)
		if len(m.eventLog) > eventLogSize {
			m.eventLog = m.eventLog[:eventLogSize]
		}
		m.activity.OnEvent(m.now())

		if updateOperationStats(m.operations, e) {
			m.table.SetRows(operationRows(m.operations))
		}
		updateMaintenanceState(m.maintenance, e)

		m.health.Connected = true
		m.lastError = ""
		return m, receiveNextEvent(m.stream)

	case statusMsg:
		m.health.Status = msg.Status
		m.health.Server = msg.Server
		m.health.Version = msg.Version
		m.health.UptimeSeconds = msg.UptimeSeconds
		m.health.Operations = len(msg.Operations)
		m.health.Connected = true
		m.health.LastCheck = m.now()
		m.lastError = ""
		seedOperations(m.operations, msg.Operations)
		m.table.SetRows(operationRows(m.operations))

		return m, tea.Tick(statusInterval, func(time.Time) tea.Msg { return m.client.fetchStatus() })

	case streamClosedMsg:
		m.health.Connected = false
		m.lastError = "event stream disconnected, reconnecting..."
		// The pending receiveNextEvent keeps waiting on the same channel, so
		// the new subscription feeds it directly.
		return m, tea.Tick(reconnectDelay, func(time.Time) tea.Msg { return reconnectMsg{} })

	case reconnectMsg:
		return m, m.client.subscribe(m.lastID, m.stream)

	case errMsg:
		m.lastError = msg.Error()
		return m, tea.Tick(statusInterval, func(time.Time) tea.Msg { return m.client.fetchStatus() })
	}

	return m, nil
}

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting..."
	}

	now := m.now()
	parts := []string{
		renderHeader(m.health, m.ticker, m.activity, m.theme, m.width, now),
		renderOperations(m.table, m.theme, m.width),
		renderMaintenance(m.maintenance, m.theme, m.width, now),
		renderEventStream(m.eventLog, m.theme, m.width),
	}
	if m.lastError != "" {
		parts = append(parts, m.theme.StatusFailed.Render(fmt.Sprintf(" ⚠ %s", m.lastError)))
	}
	parts = append(parts, lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render(" [q] Quit • [↑/↓] Navigate Operations"))

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}
