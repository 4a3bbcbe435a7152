// Package tui implements the interactive queue monitor: a board of task
// columns fed by replaying the persistent queue's event logs, refreshed on
// a timer. Read-only; mutations go through the CLI.
package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/ricmello/garra/internal/queue"
)

// screen represents which view the TUI is showing.
type screen int

const (
	screenBoard  screen = iota // Task board (main)
	screenDetail               // Single task: events and checkpoints
)

// column indices for navigation
const (
	colPending    = 0
	colClaimed    = 1
	colProcessing = 2
	colCompleted  = 3
	colFailed     = 4
	numColumns    = 5
)

var columnStatuses = [numColumns]string{
	"pending",
	"claimed",
	"processing",
	"completed",
	"failed",
}

var columnLabels = [numColumns]string{
	"PENDENTE",
	"RESERVADA",
	"EXECUTANDO",
	"CONCLUÍDA",
	"FALHOU",
}

const refreshEvery = 2 * time.Second

// Model is the top-level bubbletea model.
type Model struct {
	queue  *queue.Queue
	width  int
	height int

	currentScreen screen

	// Board state.
	columns   [numColumns][]*queue.TaskState
	cursorCol int
	cursorRow int

	// All task states cache.
	states []*queue.TaskState

	// Selected task for detail view.
	selected *queue.TaskState
	detail   viewport.Model

	spin      spinner.Model
	statusMsg string
	quitting  bool
}

// New creates a new TUI model over an open queue.
func New(q *queue.Queue) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		queue: q,
		spin:  sp,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.refreshStates(), m.spin.Tick, tickCmd())
}

type statesRefreshedMsg struct {
	states []*queue.TaskState
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(refreshEvery, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) refreshStates() tea.Cmd {
	return func() tea.Msg {
		states, _ := m.queue.ListStates()
		return statesRefreshedMsg{states: states}
	}
}

func (m *Model) rebuildColumns() {
	for i := range m.columns {
		m.columns[i] = nil
	}
	for _, st := range m.states {
		for i, status := range columnStatuses {
			if st.Status == status {
				m.columns[i] = append(m.columns[i], st)
				break
			}
		}
	}
	m.clampCursor()
}

func (m *Model) clampCursor() {
	if m.cursorCol < 0 {
		m.cursorCol = 0
	}
	if m.cursorCol >= numColumns {
		m.cursorCol = numColumns - 1
	}
	col := m.columns[m.cursorCol]
	if m.cursorRow >= len(col) {
		m.cursorRow = len(col) - 1
	}
	if m.cursorRow < 0 {
		m.cursorRow = 0
	}
}

func (m *Model) selectedFromBoard() *queue.TaskState {
	col := m.columns[m.cursorCol]
	if m.cursorRow < len(col) {
		return col[m.cursorRow]
	}
	return nil
}
