package live

import (
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"runwatch/internal/runstate"
)

const (
	// defaultWidth is used until the terminal reports its size.
	defaultWidth = 100
	// headerHeight covers the grid header and its bottom border.
	headerHeight = 2
	maxItemRows  = 12
)

// Model renders a live console UI using Bubble Tea.
type Model struct {
	state        State
	phases       table.Model
	items        table.Model
	snapshots    <-chan runstate.Snapshot
	onInterrupt  func()
	tickInterval time.Duration
	now          time.Time
	width        int
	noColor      bool
}

// Options configures the live UI model.
type Options struct {
	NoColor      bool
	TickInterval time.Duration
	// Profile is shown in the header.
	Profile string
	// OnInterrupt runs when the user presses ctrl+c or q before the run has
	// settled. The view keeps running so the stopped snapshot can render.
	OnInterrupt func()
}

// NewModel constructs a live UI model fed by snapshots.
func NewModel(snapshots <-chan runstate.Snapshot, opts Options) Model {
	tickInterval := opts.TickInterval
	if tickInterval <= 0 {
		tickInterval = 200 * time.Millisecond
	}
	phases := table.New(
		table.WithColumns(phaseColumns(defaultWidth)),
		table.WithRows([]table.Row{}),
		table.WithFocused(false),
		table.WithHeight(3),
	)
	phases.SetStyles(tableStyles(opts.NoColor))
	items := table.New(
		table.WithColumns(itemColumns(defaultWidth)),
		table.WithRows([]table.Row{}),
		table.WithFocused(false),
		table.WithHeight(3),
	)
	items.SetStyles(tableStyles(opts.NoColor))
	return Model{
		state:        State{Profile: opts.Profile},
		phases:       phases,
		items:        items,
		snapshots:    snapshots,
		onInterrupt:  opts.OnInterrupt,
		tickInterval: tickInterval,
		now:          time.Now(),
		width:        defaultWidth,
		noColor:      opts.NoColor,
	}
}

// State returns the current view state.
func (m Model) State() State {
	return m.state
}

// Init starts ticking and waits for the first snapshot.
func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForSnapshot(m.snapshots), tick(m.tickInterval))
}

// Update consumes snapshots, key presses and timer ticks.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.phases.SetWidth(typed.Width)
		m.phases.SetColumns(phaseColumns(typed.Width))
		m.items.SetWidth(typed.Width)
		m.items.SetColumns(itemColumns(typed.Width))
		m = m.refresh()
		return m, nil
	case tea.KeyMsg:
		switch typed.String() {
		case "ctrl+c", "q", "esc":
			if m.state.Done() || m.onInterrupt == nil {
				return m, tea.Quit
			}
			m.onInterrupt()
			m.onInterrupt = nil
			return m, nil
		}
		return m, nil
	case SnapshotMsg:
		m.state = Reduce(m.state, typed.Snapshot, m.now)
		m = m.refresh()
		return m, waitForSnapshot(m.snapshots)
	case tickMsg:
		m.now = time.Time(typed)
		return m, tick(m.tickInterval)
	}
	return m, nil
}

// View renders the live UI.
func (m Model) View() string {
	sections := []string{
		renderHeader(m.state, m.now, m.noColor),
		renderSummary(m.state, m.noColor),
	}
	if len(m.state.Snapshot.Phases) > 0 {
		sections = append(sections, m.phases.View())
	}
	if len(m.state.Snapshot.Tables) > 0 {
		sections = append(sections, m.items.View())
	}
	for _, section := range []string{
		renderLiveText(m.state, m.width, m.noColor),
		renderClarification(m.state, m.noColor),
		renderFooter(m.state, m.noColor),
	} {
		if section != "" {
			sections = append(sections, section)
		}
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// refresh rebuilds both grids from the current snapshot.
func (m Model) refresh() Model {
	s := m.state.Snapshot
	m.phases.SetRows(phaseRows(s, m.width, m.noColor))
	m.phases.SetHeight(len(s.Phases) + headerHeight)
	m.items.SetRows(itemRows(s, m.width, m.noColor))
	m.items.SetHeight(min(len(s.Tables), maxItemRows) + headerHeight)
	return m
}

// SnapshotMsg wraps a published snapshot for Bubble Tea.
type SnapshotMsg struct {
	Snapshot runstate.Snapshot
}

// tickMsg carries a clock tick for updates.
type tickMsg time.Time

// waitForSnapshot blocks until a snapshot is available.
func waitForSnapshot(snapshots <-chan runstate.Snapshot) tea.Cmd {
	return func() tea.Msg {
		if snapshots == nil {
			return nil
		}
		snapshot, ok := <-snapshots
		if !ok {
			return tea.Quit()
		}
		return SnapshotMsg{Snapshot: snapshot}
	}
}

// tick emits a periodic tick message.
func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}
