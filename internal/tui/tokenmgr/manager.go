// Package tokenmgr is an interactive scope picker used by
// "ipfsbridge config token" to mint API tokens.
package tokenmgr

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/ipfsbridge/internal/auth"
)

var (
	titleStyle      = lipgloss.NewStyle().MarginLeft(2)
	paginationStyle = list.DefaultStyles().PaginationStyle.PaddingLeft(4)
	helpStyle       = list.DefaultStyles().HelpStyle.PaddingLeft(4).PaddingBottom(1)
	quitTextStyle   = lipgloss.NewStyle().Margin(1, 0, 2, 4)
)

// ScopeChoices lists the scopes offered by the picker, in display order.
var ScopeChoices = []struct {
	Scope string
	Desc  string
}{
	{auth.ScopeAll, "Full administrative access (all scopes)"},
	{auth.ScopeOpsRead, "List and encode operations without running them"},
	{auth.ScopeOpsWrite, "Run operations and raw command lines"},
	{auth.ScopeHistory, "Read the dispatch history"},
	{auth.ScopeEvents, "Subscribe to the dispatch event stream (SSE)"},
	{auth.ScopeMetrics, "Reserved for metrics scrapers"},
}

type item struct {
	scope    string
	desc     string
	selected bool
}

func (i item) Title() string {
	check := "[ ]"
	if i.selected {
		check = "[x]"
	}
	return fmt.Sprintf("%s %s", check, i.scope)
}
func (i item) Description() string { return i.desc }
func (i item) FilterValue() string { return i.scope }

// Model is the BubbleTea model for the picker.
type Model struct {
	list     list.Model
	quitting bool
	done     bool
	scopes   []string
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, msg.Height)

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit

		case " ":
			if i, ok := m.list.SelectedItem().(item); ok {
				i.selected = !i.selected
				m.list.SetItem(m.list.Index(), i)
			}
			return m, nil

		case "enter":
			m.done = true
			m.scopes = nil
			for _, li := range m.list.Items() {
				if it, ok := li.(item); ok && it.selected {
					m.scopes = append(m.scopes, it.scope)
				}
			}
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.quitting {
		return quitTextStyle.Render("Cancelled.")
	}
	if m.done {
		return quitTextStyle.Render(fmt.Sprintf("Selected scopes: %s", strings.Join(m.scopes, ", ")))
	}
	return "\n" + m.list.View()
}

// New builds a picker with preselected scopes checked.
func New(preselected ...string) Model {
	pre := make(map[string]bool, len(preselected))
	for _, s := range preselected {
		pre[s] = true
	}

	items := make([]list.Item, 0, len(ScopeChoices))
	for _, s := range ScopeChoices {
		items = append(items, item{scope: s.Scope, desc: s.Desc, selected: pre[s.Scope]})
	}

	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Select Scopes (Space to toggle, Enter to confirm)"
	l.Styles.Title = titleStyle
	l.Styles.PaginationStyle = paginationStyle
	l.Styles.HelpStyle = helpStyle

	return Model{list: l}
}

// Selected returns the confirmed scopes, or false if the picker was
// cancelled.
func (m Model) Selected() ([]string, bool) {
	return m.scopes, m.done && !m.quitting
}

// Pick runs the picker and returns the confirmed scopes.
func Pick() ([]string, error) {
	final, err := tea.NewProgram(New()).Run()
	if err != nil {
		return nil, err
	}
	scopes, ok := final.(Model).Selected()
	if !ok {
		return nil, fmt.Errorf("cancelled")
	}
	if len(scopes) == 0 {
		return nil, fmt.Errorf("no scopes selected")
	}
	return scopes, nil
}

// Snippet renders an api.auth.tokens entry with a fresh random token.
func Snippet(scopes []string) (string, error) {
	entry := []map[string]any{{
		"token":  "ibt_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		"scopes": scopes,
	}}
	out, err := yaml.Marshal(map[string]any{"tokens": entry})
	if err != nil {
		return "", err
	}
	return string(out), nil
}
