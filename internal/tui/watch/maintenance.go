package watch

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/windsurf-mcp/internal/events"
)

// MaintenanceState tracks one background task reported by the scheduler.
type MaintenanceState struct {
	Task      string
	Runs      int
	Failures  int
	LastError string
	LastRun   time.Time
}

func updateMaintenanceState(tasks map[string]*MaintenanceState, e events.Event) bool {
	if e.Type != events.MaintenanceCompleted && e.Type != events.MaintenanceFailed {
		return false
	}
	var p struct {
		Task  string `json:"task"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(e.Data, &p); err != nil || p.Task == "" {
		return false
	}

	s, ok := tasks[p.Task]
	if !ok {
		s = &MaintenanceState{Task: p.Task}
		tasks[p.Task] = s
	}
	s.Runs++
	s.LastRun = e.At
	s.LastError = ""
	if e.Type == events.MaintenanceFailed {
		s.Failures++
		s.LastError = p.Error
	}
	return true
}

func renderMaintenance(tasks map[string]*MaintenanceState, theme Theme, width int, now time.Time) string {
	innerWidth := width - 4

	if len(tasks) == 0 {
		return theme.Border.Width(innerWidth).Render(lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("MAINTENANCE"),
			theme.Dim.Render("  No runs yet"),
		))
	}

	names := make([]string, 0, len(tasks))
	for name := range tasks {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		s := tasks[name]
		status := theme.StatusOK.Render("ok")
		if s.LastError != "" {
			status = theme.StatusFailed.Render("failed: " + truncate(s.LastError, 40))
		}
		lines = append(lines, fmt.Sprintf("%-22s runs %-4d failed %-4d last %s ago  %s",
			s.Task, s.Runs, s.Failures,
			formatDuration(now.Sub(s.LastRun)),
			status,
		))
	}

	body := lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
	return theme.Border.Width(innerWidth).Render(
		lipgloss.JoinVertical(lipgloss.Left, theme.Title.Render("MAINTENANCE"), body),
	)
}
