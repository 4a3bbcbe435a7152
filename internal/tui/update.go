package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/ricmello/garra/internal/queue"
)

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		vw := m.width - 4
		vh := m.height - 8
		if vw < 20 {
			vw = 20
		}
		if vh < 6 {
			vh = 6
		}
		m.detail.Width = vw
		m.detail.Height = vh
		return m, nil

	case statesRefreshedMsg:
		m.states = msg.states
		m.rebuildColumns()
		// Keep the detail view current for the selected task.
		if m.currentScreen == screenDetail && m.selected != nil {
			for _, st := range m.states {
				if st.TaskID == m.selected.TaskID {
					m.selected = st
					m.detail.SetContent(renderDetailContent(st))
					break
				}
			}
		}
		return m, nil

	case tickMsg:
		return m, tea.Batch(tickCmd(), m.refreshStates())

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if m.currentScreen == screenDetail {
		switch key {
		case "esc", "q":
			m.currentScreen = screenBoard
			m.selected = nil
			return m, nil
		case "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.detail, cmd = m.detail.Update(msg)
		return m, cmd
	}

	switch key {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "left", "h":
		m.cursorCol--
		m.clampCursor()
	case "right", "l":
		m.cursorCol++
		m.clampCursor()
	case "up", "k":
		m.cursorRow--
		m.clampCursor()
	case "down", "j":
		m.cursorRow++
		m.clampCursor()

	case "enter":
		if st := m.selectedFromBoard(); st != nil {
			m.selected = st
			m.detail.SetContent(renderDetailContent(st))
			m.detail.GotoTop()
			m.currentScreen = screenDetail
		}

	case "r", "R":
		m.statusMsg = "Atualizando..."
		return m, m.refreshStates()
	}

	return m, nil
}

func renderDetailContent(st *queue.TaskState) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Status:     %s\n", st.Status)
	fmt.Fprintf(&b, "Usuário:    %s\n", st.UserID)
	if st.WorkerID != "" {
		fmt.Fprintf(&b, "Worker:     %s\n", st.WorkerID)
	}
	if st.Recoveries > 0 {
		fmt.Fprintf(&b, "Recuperações: %d\n", st.Recoveries)
	}
	if !st.EnqueuedAt.IsZero() {
		fmt.Fprintf(&b, "Enfileirada: %s\n", st.EnqueuedAt.Local().Format("2006-01-02 15:04:05"))
	}
	if st.Error != "" {
		fmt.Fprintf(&b, "Erro:       %s\n", st.Error)
	}
	if st.Result != "" {
		fmt.Fprintf(&b, "\nResultado:\n%s\n", st.Result)
	}

	if len(st.Checkpoints) > 0 {
		b.WriteString("\nCheckpoints:\n")
		for _, cp := range st.Checkpoints {
			fmt.Fprintf(&b, "  %s  %-12s %s\n",
				cp.Timestamp.Local().Format("15:04:05"), cp.Step, cp.Version)
		}
	}

	if len(st.Events) > 0 {
		b.WriteString("\nEventos:\n")
		for _, ev := range st.Events {
			fmt.Fprintf(&b, "  %s  %s\n",
				ev.Timestamp.Local().Format("15:04:05"), ev.Type)
		}
	}

	return b.String()
}
