package watch

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/ipfsbridge/internal/events"
)

const maxEventLog = 50

// Model is the BubbleTea model for the watch TUI.
type Model struct {
	apiURL string
	apiKey string

	width  int
	height int

	health   HealthState
	active   map[string]*ActiveDispatch
	stats    map[string]*OpStats
	eventLog []events.Event
	lastID   int64

	ticker   Ticker
	activity Activity
	theme    Theme
	paused   bool

	hubEvents chan events.Event
	lastError string

	now func() time.Time
}

// New creates a watch model for the API at apiURL.
func New(apiURL, apiKey string) *Model {
	return &Model{
		apiURL:    apiURL,
		apiKey:    apiKey,
		active:    make(map[string]*ActiveDispatch),
		stats:     make(map[string]*OpStats),
		hubEvents: make(chan events.Event, 100),
		ticker:    NewTicker(),
		theme:     NewDefaultTheme(),
		now:       time.Now,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		subscribeToEvents(m.apiURL, m.apiKey, 0, m.hubEvents),
		receiveNextEvent(m.hubEvents),
		func() tea.Msg { return fetchHealth(m.apiURL) },
		tick(),
		tea.EnterAltScreen,
	)
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "p", " ":
			m.paused = !m.paused
		case "c":
			m.eventLog = nil
			m.stats = make(map[string]*OpStats)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.ticker.Tick()
		return m, tick()

	case eventMsg:
		e := events.Event(msg)
		if e.ID > m.lastID {
			m.lastID = e.ID
		}
		m.activity.OnEvent(m.now())
		applyDispatchEvent(m.active, m.stats, e)
		if !m.paused {
			m.eventLog = append([]events.Event{e}, m.eventLog...)
			if len(m.eventLog) > maxEventLog {
				m.eventLog = m.eventLog[:maxEventLog]
			}
		}
		m.health.Connected = true
		m.lastError = ""
		return m, receiveNextEvent(m.hubEvents)

	case healthMsg:
		m.health = HealthState{
			Status:        msg.Status,
			UptimeSeconds: msg.UptimeSeconds,
			APIVersion:    msg.APIVersion,
			Runtime:       msg.Runtime,
			Serialized:    msg.Serialized,
			InFlight:      msg.InFlight,
			Subscribers:   msg.Subscribers,
			Connected:     true,
			LastCheck:     m.now(),
		}
		m.lastError = ""
		return m, tea.Tick(5*time.Second, func(time.Time) tea.Msg { return fetchHealth(m.apiURL) })

	case sseDisconnectedMsg:
		m.health.Connected = false
		m.lastError = "event stream disconnected, reconnecting..."
		return m, tea.Tick(3*time.Second, func(time.Time) tea.Msg { return reconnectMsg{} })

	case reconnectMsg:
		// The pending receiveNextEvent keeps reading the shared channel.
		return m, subscribeToEvents(m.apiURL, m.apiKey, m.lastID, m.hubEvents)

	case errMsg:
		m.lastError = msg.Error()
		return m, tea.Tick(5*time.Second, func(time.Time) tea.Msg { return fetchHealth(m.apiURL) })
	}

	return m, nil
}

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting to ipfsbridge..."
	}
	now := m.now()

	parts := []string{
		renderHeader(m.health, m.ticker, m.activity, m.theme, m.width, now),
		renderActive(m.active, m.theme, m.width, now),
		renderOpStats(m.stats, m.theme, m.width),
		renderEventStream(m.eventLog, m.theme, m.width),
	}
	if m.lastError != "" {
		parts = append(parts, m.theme.StatusFailed.Render(fmt.Sprintf(" ! %s", m.lastError)))
	}

	help := " [q] Quit • [p] Pause log • [c] Clear"
	if m.paused {
		help += " • PAUSED"
	}
	parts = append(parts, lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Render(help))

	return lipgloss.NewStyle().Margin(1, 2).Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

// Run starts the TUI and blocks until the user quits.
func Run(apiURL, apiKey string) error {
	_, err := tea.NewProgram(New(apiURL, apiKey)).Run()
	return err
}
