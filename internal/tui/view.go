package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ricmello/garra/internal/queue"
)

// --- Color palette ---
var (
	clrSubtle    = lipgloss.AdaptiveColor{Light: "#555555", Dark: "#666666"}
	clrHighlight = lipgloss.AdaptiveColor{Light: "#0F766E", Dark: "#2DD4BF"}
	clrGreen     = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	clrYellow    = lipgloss.AdaptiveColor{Light: "#B45309", Dark: "#F59E0B"}
	clrRed       = lipgloss.AdaptiveColor{Light: "#B91C1C", Dark: "#F87171"}
	clrBlue      = lipgloss.AdaptiveColor{Light: "#1D4ED8", Dark: "#60A5FA"}
	clrCyan      = lipgloss.AdaptiveColor{Light: "#0E7490", Dark: "#22D3EE"}
	clrDim       = lipgloss.AdaptiveColor{Light: "#999999", Dark: "#555555"}
)

// --- Styles ---
var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(clrHighlight)
	dimStyle    = lipgloss.NewStyle().Foreground(clrDim)
	subtleStyle = lipgloss.NewStyle().Foreground(clrSubtle)

	columnStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(clrSubtle).
			Padding(0, 1)

	columnActiveStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(clrHighlight).
				Padding(0, 1)

	footerKeyStyle  = lipgloss.NewStyle().Bold(true).Foreground(clrHighlight)
	footerDescStyle = lipgloss.NewStyle().Foreground(clrSubtle)
)

var columnColors = [numColumns]lipgloss.AdaptiveColor{
	clrDim,    // pending
	clrYellow, // claimed
	clrBlue,   // processing
	clrGreen,  // completed
	clrRed,    // failed
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	switch m.currentScreen {
	case screenDetail:
		return m.viewDetail()
	default:
		return m.viewBoard()
	}
}

func (m Model) viewBoard() string {
	var b strings.Builder

	header := titleStyle.Render("garra")
	header += dimStyle.Render(fmt.Sprintf(" — %d tarefas ", len(m.states)))
	header += m.spin.View()
	b.WriteString(header + "\n\n")

	colWidth := 24
	if m.width > 0 {
		colWidth = (m.width - numColumns*2 - 2) / numColumns
		if colWidth < 16 {
			colWidth = 16
		}
	}

	maxRows := 1
	for _, col := range m.columns {
		if len(col) > maxRows {
			maxRows = len(col)
		}
	}
	if m.height > 0 && maxRows > m.height-8 {
		maxRows = m.height - 8
	}

	var cols []string
	for i := 0; i < numColumns; i++ {
		cols = append(cols, m.renderColumn(i, colWidth, maxRows))
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cols...))
	b.WriteString("\n")

	if m.statusMsg != "" {
		b.WriteString(subtleStyle.Render("  "+m.statusMsg) + "\n")
	}

	keys := []struct{ key, desc string }{
		{"↑↓←→", "navegar"},
		{"enter", "detalhes"},
		{"r", "atualizar"},
		{"q", "sair"},
	}
	b.WriteString(renderFooter(keys))

	return b.String()
}

func (m Model) renderColumn(idx, width, maxRows int) string {
	var content strings.Builder

	label := lipgloss.NewStyle().Bold(true).Foreground(columnColors[idx]).
		Render(fmt.Sprintf("%s (%d)", columnLabels[idx], len(m.columns[idx])))
	content.WriteString(label + "\n")

	for row, st := range m.columns[idx] {
		if row >= maxRows {
			content.WriteString(dimStyle.Render(fmt.Sprintf("… +%d", len(m.columns[idx])-maxRows)) + "\n")
			break
		}

		line := renderTaskLine(st, width-4)
		if idx == m.cursorCol && row == m.cursorRow {
			line = lipgloss.NewStyle().Foreground(clrHighlight).Render("▸ ") + line
		} else {
			line = "  " + line
		}
		content.WriteString(line + "\n")
	}

	if len(m.columns[idx]) == 0 {
		content.WriteString(dimStyle.Render("  —") + "\n")
	}

	style := columnStyle.Width(width)
	if idx == m.cursorCol {
		style = columnActiveStyle.Width(width)
	}
	return style.Render(content.String())
}

func renderTaskLine(st *queue.TaskState, width int) string {
	id := lipgloss.NewStyle().Foreground(clrCyan).Render(st.TaskID)

	request := ""
	if st.Payload != nil {
		if s, ok := st.Payload["text"].(string); ok {
			request = s
		}
	}
	line := id
	if request != "" {
		room := width - lipgloss.Width(id) - 1
		if room > 4 {
			line += " " + dimStyle.Render(truncate(request, room))
		}
	}
	if st.Recoveries > 0 {
		line += lipgloss.NewStyle().Foreground(clrYellow).Render(fmt.Sprintf(" ↺%d", st.Recoveries))
	}
	return line
}

func (m Model) viewDetail() string {
	if m.selected == nil {
		return "Nenhuma tarefa selecionada"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Tarefa " + m.selected.TaskID))
	b.WriteString("  ")
	b.WriteString(dimStyle.Render("esc voltar"))
	b.WriteString("\n\n")

	b.WriteString(m.detail.View())
	b.WriteString("\n\n")

	keys := []struct{ key, desc string }{
		{"↑↓", "rolar"},
		{"esc", "voltar"},
	}
	b.WriteString(renderFooter(keys))

	return b.String()
}

func renderFooter(keys []struct{ key, desc string }) string {
	var parts []string
	for _, k := range keys {
		parts = append(parts, footerKeyStyle.Render(k.key)+" "+footerDescStyle.Render(k.desc))
	}
	return "  " + strings.Join(parts, "  ")
}

func truncate(s string, max int) string {
	if max < 1 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
