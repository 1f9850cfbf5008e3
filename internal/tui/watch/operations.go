package watch

import (
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/windsurf-mcp/internal/events"
)

// OperationStats accumulates the outcomes seen for one operation.
type OperationStats struct {
	Name         string
	Calls        int
	Failures     int
	LastStatus   string
	LastFault    string
	LastDuration time.Duration
	LastSeen     time.Time
}

type outcomePayload struct {
	Operation  string `json:"operation"`
	Status     string `json:"status"`
	Fault      string `json:"fault"`
	DurationMS int64  `json:"duration_ms"`
}

// updateOperationStats folds an operation.* event into stats. Other events
// are ignored.
func updateOperationStats(stats map[string]*OperationStats, e events.Event) bool {
	if e.Type != events.OperationCompleted && e.Type != events.OperationFailed {
		return false
	}
	var p outcomePayload
	if err := json.Unmarshal(e.Data, &p); err != nil || p.Operation == "" {
		return false
	}

	s, ok := stats[p.Operation]
	if !ok {
		s = &OperationStats{Name: p.Operation}
		stats[p.Operation] = s
	}
	s.Calls++
	s.LastStatus = p.Status
	s.LastFault = ""
	if e.Type == events.OperationFailed {
		s.Failures++
		s.LastFault = p.Fault
	}
	s.LastDuration = time.Duration(p.DurationMS) * time.Millisecond
	s.LastSeen = e.At
	return true
}

// seedOperations adds zeroed rows for every advertised operation so idle
// operations still show up.
func seedOperations(stats map[string]*OperationStats, names []string) {
	for _, name := range names {
		if _, ok := stats[name]; !ok {
			stats[name] = &OperationStats{Name: name}
		}
	}
}

func newOperationsTable(theme Theme) table.Model {
	t := table.New(
		table.WithColumns(operationColumns(80)),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	t.SetStyles(theme.Table)
	return t
}

func operationColumns(width int) []table.Column {
	name := max(width-4-8-9-10-10-12-14, 18)
	return []table.Column{
		{Title: "Operation", Width: name},
		{Title: "Calls", Width: 8},
		{Title: "Failed", Width: 9},
		{Title: "Last", Width: 10},
		{Title: "Fault", Width: 10},
		{Title: "Took", Width: 12},
	}
}

func operationRows(stats map[string]*OperationStats) []table.Row {
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([]table.Row, 0, len(names))
	for _, name := range names {
		s := stats[name]
		last, took := "-", "-"
		if s.Calls > 0 {
			last = s.LastStatus
			took = s.LastDuration.String()
		}
		fault := s.LastFault
		if fault == "" {
			fault = "-"
		}
		rows = append(rows, table.Row{
			s.Name,
			strconv.Itoa(s.Calls),
			strconv.Itoa(s.Failures),
			last,
			fault,
			took,
		})
	}
	return rows
}

func renderOperations(t table.Model, theme Theme, width int) string {
	return theme.Border.Width(width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left, theme.Title.Render("OPERATIONS"), t.View()),
	)
}
