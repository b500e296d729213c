// Package report renders ranking runs, integrity findings and anomaly scans
// for people: a styled console table, markdown, or JSON.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/rotisserie/eris"

	"github.com/sells-group/tier-ranker/internal/model"
)

// Format selects the output representation.
type Format string

const (
	FormatTable    Format = "table"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// ParseFormat maps a flag value onto a Format. Empty selects the table.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatTable:
		return FormatTable, nil
	case FormatMarkdown, "md":
		return FormatMarkdown, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", eris.Errorf("report: unknown format %q (table, markdown, json)", s)
	}
}

// Renderer writes reports in one format.
type Renderer struct {
	format Format
	w      io.Writer
}

// New creates a Renderer writing to w.
func New(format Format, w io.Writer) *Renderer {
	if format == "" {
		format = FormatTable
	}
	return &Renderer{format: format, w: w}
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("62")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)

	severityStyles = map[model.Severity]lipgloss.Style{
		model.SeverityCritical: lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		model.SeverityHigh:     lipgloss.NewStyle().Foreground(lipgloss.Color("208")).Bold(true),
		model.SeverityMedium:   lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		model.SeverityLow:      lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	}
)

func (r *Renderer) title(s string) {
	switch r.format {
	case FormatMarkdown:
		fmt.Fprintf(r.w, "## %s\n\n", s)
	default:
		fmt.Fprintln(r.w, titleStyle.Render(s))
		fmt.Fprintln(r.w, strings.Repeat("═", 60))
	}
}

// table renders rows under headers. An empty row set prints nothing.
func (r *Renderer) table(headers []string, rows [][]string) {
	if len(rows) == 0 {
		return
	}
	if r.format == FormatMarkdown {
		fmt.Fprintf(r.w, "| %s |\n", strings.Join(headers, " | "))
		seps := make([]string, len(headers))
		for i := range seps {
			seps[i] = "---"
		}
		fmt.Fprintf(r.w, "| %s |\n", strings.Join(seps, " | "))
		for _, row := range rows {
			cells := make([]string, len(row))
			for i, c := range row {
				cells[i] = mdEscape(c)
			}
			fmt.Fprintf(r.w, "| %s |\n", strings.Join(cells, " | "))
		}
		fmt.Fprintln(r.w)
		return
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...).
		Rows(rows...)
	fmt.Fprintln(r.w, t)
}

func (r *Renderer) line(format string, args ...any) {
	if r.format == FormatMarkdown {
		fmt.Fprintf(r.w, "- "+format+"\n", args...)
		return
	}
	fmt.Fprintf(r.w, format+"\n", args...)
}

func (r *Renderer) blank() {
	fmt.Fprintln(r.w)
}

func (r *Renderer) json(v any) error {
	enc := json.NewEncoder(r.w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "report: encode json")
}

func (r *Renderer) severity(s model.Severity) string {
	if r.format == FormatMarkdown {
		return string(s)
	}
	if st, ok := severityStyles[s]; ok {
		return st.Render(string(s))
	}
	return string(s)
}

func mdEscape(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

func rankLabel(r model.Rank) string {
	if r == "" {
		return "-"
	}
	return string(r)
}
