package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Theme defines the terminal color scheme.
type Theme struct {
	Primary lipgloss.Color
	Dim     lipgloss.Color
	Warn    lipgloss.Color
}

// DefaultTheme is the default bright green theme.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	Dim:     lipgloss.Color("#6e7681"),
	Warn:    lipgloss.Color("#ffb86c"),
}

// Styles holds all styles derived from a theme.
type Styles struct {
	Title   lipgloss.Style
	Label   lipgloss.Style
	Border  lipgloss.Style
	Help    lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Label:   lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Border:  lipgloss.NewStyle().Foreground(t.Primary),
		Help:    lipgloss.NewStyle().Foreground(t.Dim),
		Success: lipgloss.NewStyle().Foreground(t.Primary),
		Warning: lipgloss.NewStyle().Foreground(t.Warn),
	}
}

// DefaultStyles are the styles of DefaultTheme.
var DefaultStyles = NewStyles(DefaultTheme)

// Table is tabular output for FormatTable.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Tabler is implemented by results that know how to render as a table.
type Tabler interface {
	Table() Table
}

// Render draws the table with a rounded border.
func (t Table) Render(s Styles) string {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(s.Border).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return s.Label.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers(t.Headers...).
		Rows(t.Rows...).
		String()
}

// Section is one labeled block of a Panel.
type Section struct {
	Label string
	Lines []string
}

// Panel is a bordered summary box, e.g. the report printed after a
// streaming session.
type Panel struct {
	Title    string
	Status   string
	Sections []Section
	Help     string
}

// Render draws the panel at the given width. Sections longer than
// maxLines show only their last maxLines lines; maxLines <= 0 shows all.
func (p Panel) Render(s Styles, width, maxLines int) string {
	var body []string
	title := s.Title.Render(p.Title)
	if p.Status != "" {
		title += " " + s.Help.Render("["+p.Status+"]")
	}
	body = append(body, title)

	inner := max(width-4, 1)
	for _, sec := range p.Sections {
		body = append(body, "", s.Label.Render(sec.Label))
		lines := sec.Lines
		if maxLines > 0 && len(lines) > maxLines {
			lines = lines[len(lines)-maxLines:]
		}
		for _, line := range lines {
			if lipgloss.Width(line) > inner {
				line = truncateString(line, inner-1) + "…"
			}
			body = append(body, line)
		}
	}

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(s.Border.GetForeground()).
		Padding(0, 1).
		Width(max(width-2, 1)).
		Render(strings.Join(body, "\n"))
	if p.Help != "" {
		box += "\n" + s.Help.Render(p.Help)
	}
	return box
}

// truncateString truncates s to the given display width, keeping
// multi-byte characters whole.
func truncateString(s string, width int) string {
	if width <= 0 {
		return ""
	}
	current := 0
	for i, r := range s {
		w := lipgloss.Width(string(r))
		if current+w > width {
			return s[:i]
		}
		current += w
	}
	return s
}
