package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	// Adaptive colors for light/dark terminal backgrounds
	accentColor = lipgloss.AdaptiveColor{Light: "#D6249F", Dark: "#FF79C6"}
	greenColor  = lipgloss.AdaptiveColor{Light: "#116620", Dark: "#50FA7B"}
	redColor    = lipgloss.AdaptiveColor{Light: "#B31D28", Dark: "#FF5555"}
	dimColor    = lipgloss.AdaptiveColor{Light: "#777777", Dark: "#6272A4"}
	hlBgColor   = lipgloss.AdaptiveColor{Light: "#E8E8E8", Dark: "#333333"}
	cyanColor   = lipgloss.AdaptiveColor{Light: "#0E7490", Dark: "#8BE9FD"}

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accentColor).
			PaddingLeft(1)

	headerStyle = lipgloss.NewStyle().
			Foreground(dimColor).
			PaddingLeft(1)

	cursorStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Bold(true)

	selectedRowStyle = lipgloss.NewStyle().
				Background(hlBgColor)

	idStyle = lipgloss.NewStyle().
		Foreground(greenColor)

	targetStyle = lipgloss.NewStyle().
			Foreground(cyanColor)

	ageStyle = lipgloss.NewStyle().
			Foreground(dimColor)

	confirmLabelStyle = lipgloss.NewStyle().
				Foreground(redColor).
				Bold(true).
				PaddingLeft(1)

	confirmKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#FFFFFF", Dark: "#FFFFFF"}).
			Background(redColor).
			Bold(true).
			Padding(0, 1)

	confirmDimStyle = lipgloss.NewStyle().
			Foreground(dimColor).
			PaddingLeft(1)

	helpStyle = lipgloss.NewStyle().
			Foreground(dimColor).
			PaddingLeft(1)

	inputLabelStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Bold(true)

	previewBorderStyle = lipgloss.NewStyle().
				Foreground(dimColor)

	previewContentStyle = lipgloss.NewStyle().
				Foreground(lipgloss.AdaptiveColor{Light: "#444444", Dark: "#BBBBBB"})
)

// pad right-pads s to width with spaces (based on visual width, not byte count).
func pad(s string, width int) string {
	visual := lipgloss.Width(s)
	if visual >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visual)
}

// formatAge renders a coarse session age like "3m" or "2h".
func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

func (m Model) View() string {
	if m.quitting && m.AttachID == "" {
		return ""
	}

	var b strings.Builder

	// Title
	b.WriteString(titleStyle.Render("sshmux"))
	b.WriteString("\n\n")

	if len(m.sessions) == 0 && m.err == nil {
		b.WriteString("  No sessions. Type: /open <host>\n\n")
	} else if m.err != nil {
		b.WriteString(fmt.Sprintf("  Error: %v\n\n", m.err))
	} else {
		// Rows (windowed when previewing)
		maxVis := m.maxVisibleSessions()
		end := m.scrollOffset + maxVis
		if end > len(m.filtered) {
			end = len(m.filtered)
		}
		scrollable := len(m.filtered) > maxVis

		// Precompute cell values for visible rows
		type rowData struct {
			id, target, hostname, port, age string
		}
		rows := make([]rowData, 0, end-m.scrollOffset)
		for i := m.scrollOffset; i < end; i++ {
			s := m.filtered[i]
			age := "-"
			if !s.CreatedAt.IsZero() {
				age = formatAge(time.Since(s.CreatedAt))
			}
			rows = append(rows, rowData{
				id:       idStyle.Render(s.ID),
				target:   targetStyle.Render(s.Conn.Target()),
				hostname: s.Conn.Hostname,
				port:     strconv.Itoa(s.Conn.Port),
				age:      ageStyle.Render(age),
			})
		}

		// Measure column widths (ANSI-aware via lipgloss.Width)
		type colSpec struct {
			width  int
			header string
		}
		cols := []colSpec{
			{header: "ID"},
			{header: "TARGET"},
			{header: "HOSTNAME"},
			{header: "PORT"},
			{header: "AGE"},
		}
		for _, r := range rows {
			vals := []string{r.id, r.target, r.hostname, r.port, r.age}
			for j, v := range vals {
				if w := lipgloss.Width(v); w > cols[j].width {
					cols[j].width = w
				}
			}
		}
		for j := range cols {
			if hw := len(cols[j].header); hw > cols[j].width {
				cols[j].width = hw
			}
		}

		header := "    "
		for j, c := range cols {
			if j > 0 {
				header += "  "
			}
			header += pad(c.header, c.width)
		}
		b.WriteString(headerStyle.Render(header))
		b.WriteString("\n")

		// Reserve constant height: when scrollable, always show both indicator lines
		if scrollable {
			if m.scrollOffset > 0 {
				b.WriteString(helpStyle.Render(fmt.Sprintf("    ↑ %d more", m.scrollOffset)))
			}
			b.WriteString("\n")
		}

		for ri, r := range rows {
			i := m.scrollOffset + ri
			vals := []string{r.id, r.target, r.hostname, r.port, r.age}
			row := " "
			for j, v := range vals {
				if j > 0 {
					row += "  "
				}
				row += pad(v, cols[j].width)
			}

			if i == m.cursor {
				b.WriteString(cursorStyle.Render(" >"))
				b.WriteString(selectedRowStyle.Render(row))
			} else {
				b.WriteString("  ")
				b.WriteString(row)
			}
			b.WriteString("\n")
		}

		if scrollable {
			if end < len(m.filtered) {
				b.WriteString(helpStyle.Render(fmt.Sprintf("    ↓ %d more", len(m.filtered)-end)))
			}
			b.WriteString("\n")
		}

		b.WriteString("\n")
	}

	// Preview panel (height-limited to keep session list visible)
	if m.preview != nil {
		borderTitle := fmt.Sprintf(" ─── %s (%s) ", m.preview.ID, m.preview.Target)
		titleWidth := lipgloss.Width(borderTitle)
		remaining := m.width - titleWidth - 2
		if remaining > 0 {
			borderTitle += strings.Repeat("─", remaining)
		}
		b.WriteString(previewBorderStyle.Render(" " + borderTitle))
		b.WriteString("\n")

		if m.preview.Output != "" {
			lines := strings.Split(m.preview.Output, "\n")

			// Budget: title+blank(2) + header(1) + visible rows + scroll indicators(0 or 2) + gap(1) + borders(2) + input(1) + help(1) + safety(1)
			visibleRows := m.maxVisibleSessions()
			scrollIndicators := 0
			if len(m.filtered) > visibleRows {
				scrollIndicators = 2
			}
			overhead := 9 + visibleRows + scrollIndicators
			maxPreview := m.height - overhead
			if maxPreview < 3 {
				maxPreview = 3
			}

			// Show the last N lines (most recent output)
			start := len(lines) - maxPreview
			if start < 0 {
				start = 0
			}
			for _, line := range lines[start:] {
				b.WriteString(previewContentStyle.Render(" " + line))
				b.WriteString("\n")
			}
		} else {
			b.WriteString(previewContentStyle.Render(" Loading..."))
			b.WriteString("\n")
		}

		borderBottom := strings.Repeat("─", max(0, m.width-2))
		b.WriteString(previewBorderStyle.Render(" " + borderBottom))
		b.WriteString("\n")
	}

	// Input line (placeholder changes based on mode)
	if m.preview != nil {
		m.input.Placeholder = "Type and press enter to send a command to the session..."
	} else {
		m.input.Placeholder = "Type to filter or enter command..."
	}
	b.WriteString(inputLabelStyle.Render(" > "))
	b.WriteString(m.input.View())
	b.WriteString("\n")

	// Help bar / close confirmation (same slot to avoid layout shift)
	if m.confirmClose != nil {
		b.WriteString(confirmLabelStyle.Render(fmt.Sprintf("Close '%s'?", m.confirmClose.ID)))
		b.WriteString("  ")
		b.WriteString(confirmKeyStyle.Render("Enter"))
		b.WriteString(confirmDimStyle.Render("confirm"))
		b.WriteString("  ")
		b.WriteString(confirmKeyStyle.Render("Esc"))
		b.WriteString(confirmDimStyle.Render("cancel"))
	} else if m.preview != nil {
		b.WriteString(helpStyle.Render("enter attach  type+enter send  esc close  j/k navigate  ctrl+k close session"))
	} else if strings.HasPrefix(m.input.Value(), "/open") {
		b.WriteString(helpStyle.Render("/open <host> [user] [port]  —  open a new session"))
	} else {
		b.WriteString(helpStyle.Render("enter preview  /open  j/k navigate  ctrl+k close  q quit"))
	}
	b.WriteString("\n")

	return b.String()
}
