package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dd0wney/cluso-kmeans/pkg/collective"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF00FF")).
			MarginLeft(2).
			MarginTop(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00FFFF")).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#00FFFF")).
			Padding(0, 1)

	contentStyle = lipgloss.NewStyle().
			MarginLeft(2).
			MarginTop(1)

	statsBoxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#00FF00")).
			Padding(1, 2).
			MarginRight(2)

	centroidBoxStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.DoubleBorder()).
				BorderForeground(lipgloss.Color("#FFFF00")).
				Padding(1, 2)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF00")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			MarginTop(1).
			MarginLeft(2)
)

// Rows kept in the round table and centroid columns shown per cluster
const (
	maxRounds    = 12
	maxCentroids = 8
	maxFeatures  = 4
)

type keyMap struct {
	Quit  key.Binding
	Up    key.Binding
	Down  key.Binding
	Clear key.Binding
}

var keys = keyMap{
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
	Clear: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "clear rounds"),
	),
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Clear, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Up, k.Down}, {k.Clear, k.Quit}}
}

// eventSource yields progress events; *collective.ProgressSubscriber is one
type eventSource interface {
	Next(ctx context.Context) (*collective.ProgressEvent, error)
}

type eventMsg struct{ event *collective.ProgressEvent }

type errMsg struct{ err error }

// waitForEvent blocks on the source for one event
func waitForEvent(ctx context.Context, src eventSource) tea.Cmd {
	return func() tea.Msg {
		e, err := src.Next(ctx)
		if err != nil {
			return errMsg{err}
		}
		return eventMsg{e}
	}
}

type model struct {
	ctx      context.Context
	src      eventSource
	address  string
	spinner  spinner.Model
	progress progress.Model
	rounds   table.Model
	help     help.Model
	keys     keyMap
	width    int

	last     *collective.ProgressEvent
	history  []table.Row
	finished bool
	failure  string
	err      error
	received int
}

func initialModel(ctx context.Context, src eventSource, address string) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF00FF"))

	columns := []table.Column{
		{Title: "Round", Width: 7},
		{Title: "Changed", Width: 10},
		{Title: "Empty", Width: 7},
		{Title: "Members", Width: 10},
		{Title: "Round (ms)", Width: 12},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(maxRounds),
	)
	ts := table.DefaultStyles()
	ts.Header = ts.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("#00FFFF")).
		BorderBottom(true).
		Bold(true)
	ts.Selected = ts.Selected.
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(lipgloss.Color("#FF00FF")).
		Bold(false)
	t.SetStyles(ts)

	return model{
		ctx:      ctx,
		src:      src,
		address:  address,
		spinner:  s,
		progress: progress.New(progress.WithDefaultGradient(), progress.WithWidth(50)),
		rounds:   t,
		help:     help.New(),
		keys:     keys,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.ctx, m.src))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Clear):
			m.history = nil
			m.rounds.SetRows(nil)
			return m, nil
		}
		var cmd tea.Cmd
		m.rounds, cmd = m.rounds.Update(msg)
		return m, cmd

	case eventMsg:
		m.apply(msg.event)
		return m, waitForEvent(m.ctx, m.src)

	case errMsg:
		m.err = msg.err
		return m, nil

	case spinner.TickMsg:
		if m.finished || m.err != nil {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// apply folds one event into the model. A new run ID starts a fresh view.
func (m *model) apply(e *collective.ProgressEvent) {
	m.received++
	if m.last != nil && m.last.RunID != e.RunID {
		m.history = nil
		m.finished = false
		m.failure = ""
	}

	switch e.Kind {
	case collective.EventRound:
		row := table.Row{
			strconv.Itoa(e.Round),
			strconv.Itoa(e.Changed),
			strconv.Itoa(len(e.Empty)),
			strconv.FormatInt(e.Members, 10),
			fmt.Sprintf("%.2f", e.RoundTime*1000),
		}
		m.history = append([]table.Row{row}, m.history...)
		if len(m.history) > maxRounds {
			m.history = m.history[:maxRounds]
		}
		m.rounds.SetRows(m.history)
	case collective.EventDone:
		m.finished = true
	case collective.EventFailed:
		m.finished = true
		m.failure = e.Error
	}

	// Round events carry centroids; keep the last ones seen
	if e.Kind != collective.EventRound && m.last != nil && m.last.RunID == e.RunID {
		e.Centroids = m.last.Centroids
	}
	m.last = e
}

// fraction is the share of rounds completed
func (m model) fraction() float64 {
	if m.last == nil {
		return 0
	}
	if m.finished && m.failure == "" {
		return 1
	}
	if m.last.Iterations == 0 {
		return 0
	}
	return float64(m.last.Round) / float64(m.last.Iterations)
}

func (m model) View() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("K-Means Run Monitor"))
	s.WriteString("\n\n")

	if m.last == nil {
		s.WriteString(contentStyle.Render(fmt.Sprintf("%s Waiting for a run on %s", m.spinner.View(), m.address)))
	} else {
		s.WriteString(contentStyle.Render(m.renderRun()))
	}

	if m.err != nil {
		s.WriteString("\n\n")
		s.WriteString(errorStyle.Render("✗ " + m.err.Error()))
	}

	s.WriteString("\n\n")
	s.WriteString(helpStyle.Render(m.help.ShortHelpView(m.keys.ShortHelp())))
	return s.String()
}

func (m model) renderRun() string {
	e := m.last
	var s strings.Builder

	status := m.spinner.View() + " running"
	switch {
	case m.failure != "":
		status = errorStyle.Render("✗ failed: " + m.failure)
	case m.finished:
		status = successStyle.Render("✓ finished")
	}

	runContent := fmt.Sprintf(`Run
━━━━━━━━━━━━━━━
ID:          %s
Workers:     %d
Points:      %d
Clusters:    %d
Round:       %d / %d
Elapsed:     %s
Status:      %s`,
		e.RunID,
		e.Workers,
		e.Points,
		e.Clusters,
		e.Round, e.Iterations,
		(time.Duration(e.Elapsed * float64(time.Second))).Round(time.Millisecond),
		status,
	)

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		statsBoxStyle.Render(runContent),
		centroidBoxStyle.Render(renderCentroids(e.Centroids)),
	))
	s.WriteString("\n\n")
	s.WriteString(m.progress.ViewAs(m.fraction()))
	s.WriteString("\n\n")
	s.WriteString(headerStyle.Render("Rounds"))
	s.WriteString("\n")
	s.WriteString(m.rounds.View())
	return s.String()
}

// renderCentroids lists the first clusters and features of a centroid set
func renderCentroids(centroids []collective.WirePoint) string {
	if len(centroids) == 0 {
		return "Centroids\n━━━━━━━━━━━━━━━\nNo round finished yet"
	}

	var s strings.Builder
	s.WriteString("Centroids\n━━━━━━━━━━━━━━━\n")
	for j, c := range centroids {
		if j == maxCentroids {
			fmt.Fprintf(&s, "… and %d more\n", len(centroids)-maxCentroids)
			break
		}
		parts := make([]string, 0, maxFeatures+1)
		for d, v := range c.Features {
			if d == maxFeatures {
				parts = append(parts, "…")
				break
			}
			parts = append(parts, strconv.FormatFloat(v, 'f', 2, 64))
		}
		fmt.Fprintf(&s, "%2d  (%s)\n", j, strings.Join(parts, ", "))
	}
	return strings.TrimRight(s.String(), "\n")
}
