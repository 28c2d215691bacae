package main

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF00FF")).
			MarginLeft(2).
			MarginTop(1)

	contentStyle = lipgloss.NewStyle().
			MarginLeft(2).
			MarginTop(1)

	statsBoxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#00FF00")).
			Padding(0, 2)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF00")).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFF00")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			MarginTop(1).
			MarginLeft(2)
)

type keyMap struct {
	Refresh key.Binding
	Pause   key.Binding
	Quit    key.Binding
	Up      key.Binding
	Down    key.Binding
}

var keys = keyMap{
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh"),
	),
	Pause: key.NewBinding(
		key.WithKeys("p", " "),
		key.WithHelp("p", "pause"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Refresh, k.Pause, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Refresh, k.Pause},
		{k.Up, k.Down},
		{k.Quit},
	}
}

type model struct {
	urls     []string
	client   *http.Client
	interval time.Duration

	table    table.Model
	help     help.Model
	keys     keyMap
	rows     []nodeStatus
	polled   time.Time
	paused   bool
	width    int
	inFlight bool
}

type tickMsg time.Time

type statusMsg []nodeStatus

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) pollCmd() tea.Cmd {
	urls, client, timeout := m.urls, m.client, m.client.Timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return statusMsg(pollAll(ctx, client, urls))
	}
}

func initialModel(urls []string, interval time.Duration) model {
	columns := []table.Column{
		{Title: "Node", Width: 6},
		{Title: "State", Width: 16},
		{Title: "Coord", Width: 6},
		{Title: "Gen", Width: 6},
		{Title: "Members", Width: 12},
		{Title: "Group", Width: 44},
		{Title: "RTT", Width: 10},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(len(urls)+1),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("#00FFFF")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(lipgloss.Color("#FF00FF")).
		Bold(false)
	t.SetStyles(s)

	return model{
		urls:     urls,
		client:   &http.Client{Timeout: interval},
		interval: interval,
		table:    t,
		help:     help.New(),
		keys:     keys,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.pollCmd(), tickCmd(m.interval))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width

	case tickMsg:
		cmds = append(cmds, tickCmd(m.interval))
		if !m.paused && !m.inFlight {
			m.inFlight = true
			cmds = append(cmds, m.pollCmd())
		}

	case statusMsg:
		m.inFlight = false
		m.rows = msg
		m.polled = time.Now()
		m.table.SetRows(tableRows(m.rows))

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Pause):
			m.paused = !m.paused
		case key.Matches(msg, m.keys.Refresh):
			if !m.inFlight {
				m.inFlight = true
				cmds = append(cmds, m.pollCmd())
			}
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func tableRows(rows []nodeStatus) []table.Row {
	out := make([]table.Row, 0, len(rows))
	for _, r := range rows {
		if r.Err != nil {
			out = append(out, table.Row{"?", "unreachable", "-", "-", "-", r.URL, "-"})
			continue
		}
		members := make([]string, 0, len(r.Info.Members))
		for _, mem := range r.Info.Members {
			members = append(members, strconv.Itoa(mem.ID))
		}
		out = append(out, table.Row{
			strconv.Itoa(r.Info.ID),
			r.Info.State.String(),
			strconv.Itoa(r.Info.Coordinator),
			strconv.FormatInt(r.Info.Generation, 10),
			strings.Join(members, ","),
			r.Info.Group,
			r.RTT.Round(time.Millisecond).String(),
		})
	}
	return out
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("pubsub replica group"))
	b.WriteString("\n")

	sum := summarize(m.rows)
	var verdict string
	switch {
	case len(m.rows) == 0:
		verdict = warnStyle.Render("waiting for first poll")
	case sum.Stable:
		verdict = successStyle.Render(fmt.Sprintf("stable, coordinator %d", sum.Coordinators[0]))
	case sum.Reachable == 0:
		verdict = errorStyle.Render("no node reachable")
	default:
		verdict = warnStyle.Render(fmt.Sprintf("converging: %d groups, coordinators %v", sum.Groups, sum.Coordinators))
	}

	stats := fmt.Sprintf("%s\nreachable %d/%d", verdict, sum.Reachable, len(m.urls))
	if !m.polled.IsZero() {
		stats += fmt.Sprintf("   polled %s", m.polled.Format("15:04:05"))
	}
	if m.paused {
		stats += "   " + warnStyle.Render("paused")
	}
	b.WriteString(contentStyle.Render(statsBoxStyle.Render(stats)))
	b.WriteString("\n")
	b.WriteString(contentStyle.Render(m.table.View()))
	b.WriteString("\n")

	for _, r := range m.rows {
		if r.Err != nil {
			b.WriteString(contentStyle.Render(errorStyle.Render(fmt.Sprintf("%s: %v", r.URL, r.Err))))
			b.WriteString("\n")
		}
	}

	b.WriteString(helpStyle.Render(m.help.View(m.keys)))
	return b.String()
}
