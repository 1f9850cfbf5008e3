package watch

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/windsurf-mcp/internal/events"
)

func event(id int64, typ string, data string) events.Event {
	return events.Event{
		ID:   id,
		Type: typ,
		At:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Data: json.RawMessage(data),
	}
}

func TestReadStreamParsesFrames(t *testing.T) {
	stream := ": keep-alive\n\n" +
		"id: 7\nevent: operation.completed\ndata: {\"operation\":\"check_resources\"}\n\n" +
		"id: 8\nevent: maintenance.failed\ndata: {\"task\":\"expire_allocations\",\"error\":\"boom\"}\n\n" +
		"event: orphan\n\n"

	ch := make(chan events.Event, 4)
	require.NoError(t, readStream(strings.NewReader(stream), ch))
	close(ch)

	var got []events.Event
	for e := range ch {
		got = append(got, e)
	}
	require.Len(t, got, 2)
	assert.Equal(t, int64(7), got[0].ID)
	assert.Equal(t, events.OperationCompleted, got[0].Type)
	assert.JSONEq(t, `{"operation":"check_resources"}`, string(got[0].Data))
	assert.Equal(t, events.MaintenanceFailed, got[1].Type)
	assert.False(t, got[1].At.IsZero())
}

func TestUpdateOperationStats(t *testing.T) {
	stats := map[string]*OperationStats{}

	assert.True(t, updateOperationStats(stats, event(1, events.OperationCompleted,
		`{"operation":"query_database","status":"success","duration_ms":12}`)))
	assert.True(t, updateOperationStats(stats, event(2, events.OperationFailed,
		`{"operation":"query_database","status":"error","fault":"validation","message":"bad"}`)))
	assert.False(t, updateOperationStats(stats, event(3, events.MaintenanceCompleted, `{"task":"x"}`)))
	assert.False(t, updateOperationStats(stats, event(4, events.OperationCompleted, `not json`)))

	s := stats["query_database"]
	require.NotNil(t, s)
	assert.Equal(t, 2, s.Calls)
	assert.Equal(t, 1, s.Failures)
	assert.Equal(t, "error", s.LastStatus)
	assert.Equal(t, "validation", s.LastFault)

	updateOperationStats(stats, event(5, events.OperationCompleted,
		`{"operation":"query_database","status":"success","duration_ms":3}`))
	assert.Empty(t, s.LastFault)
	assert.Equal(t, 3*time.Millisecond, s.LastDuration)
}

func TestOperationRowsSortedAndSeeded(t *testing.T) {
	stats := map[string]*OperationStats{}
	seedOperations(stats, []string{"save_context", "allocate_resources"})
	updateOperationStats(stats, event(1, events.OperationCompleted,
		`{"operation":"save_context","status":"success","duration_ms":1}`))

	rows := operationRows(stats)
	require.Len(t, rows, 2)
	assert.Equal(t, "allocate_resources", rows[0][0])
	assert.Equal(t, "0", rows[0][1])
	assert.Equal(t, "-", rows[0][3])
	assert.Equal(t, "save_context", rows[1][0])
	assert.Equal(t, "1", rows[1][1])
	assert.Equal(t, "success", rows[1][3])
}

func TestUpdateMaintenanceState(t *testing.T) {
	tasks := map[string]*MaintenanceState{}
	updateMaintenanceState(tasks, event(1, events.MaintenanceFailed, `{"task":"expire_allocations","error":"db locked"}`))
	updateMaintenanceState(tasks, event(2, events.MaintenanceCompleted, `{"task":"expire_allocations","duration_ms":4}`))

	s := tasks["expire_allocations"]
	require.NotNil(t, s)
	assert.Equal(t, 2, s.Runs)
	assert.Equal(t, 1, s.Failures)
	assert.Empty(t, s.LastError)
}

func TestExtractEventDesc(t *testing.T) {
	desc := extractEventDesc(event(1, events.OperationFailed,
		`{"operation":"authenticate_user","fault":"rejected","message":"Authentication failed","duration_ms":2}`))
	assert.Equal(t, "authenticate_user 2ms [rejected] Authentication failed", desc)

	raw := extractEventDesc(event(2, "custom", `{"other":true}`))
	assert.Equal(t, `{"other":true}`, raw)
}

func TestActivityDecay(t *testing.T) {
	var a Activity
	start := time.Unix(1000, 0)
	a.OnEvent(start)
	assert.Equal(t, activityDots, a.Dots())

	a.Decay(start.Add(2500 * time.Millisecond))
	assert.Equal(t, 4, a.Dots())

	a.Decay(start.Add(11 * time.Second))
	assert.Equal(t, 0, a.Dots())
	assert.Equal(t, start, a.LastEvent())
}

func TestModelFoldsEventsOnce(t *testing.T) {
	m := *New("http://localhost:0", "")
	e := event(5, events.OperationCompleted, `{"operation":"check_resources","status":"success","duration_ms":1}`)

	next, cmd := m.Update(eventMsg(e))
	require.NotNil(t, cmd)
	m = next.(Model)
	next, _ = m.Update(eventMsg(e))
	m = next.(Model)

	assert.Equal(t, int64(5), m.lastID)
	assert.Len(t, m.eventLog, 1)
	assert.Equal(t, 1, m.operations["check_resources"].Calls)
	assert.True(t, m.health.Connected)
	assert.Len(t, m.table.Rows(), 1)
}

func TestModelStatusAndView(t *testing.T) {
	m := *New("http://localhost:0", "")
	assert.Equal(t, "Connecting...", m.View())

	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m = next.(Model)
	next, _ = m.Update(statusMsg{
		Status:        "running",
		Server:        "windsurf-mcp",
		Version:       "1.0.0",
		UptimeSeconds: 65,
		Operations:    []string{"check_resources", "execute_cli"},
	})
	m = next.(Model)

	assert.Equal(t, 2, m.health.Operations)
	assert.Len(t, m.table.Rows(), 2)

	view := m.View()
	assert.Contains(t, view, "WINDSURF MCP WATCH")
	assert.Contains(t, view, "execute_cli")
	assert.Contains(t, view, "1m 5s")
}

func TestModelQuitKeys(t *testing.T) {
	m := *New("http://localhost:0", "")
	for _, key := range []tea.KeyMsg{
		{Type: tea.KeyRunes, Runes: []rune("q")},
		{Type: tea.KeyCtrlC},
	} {
		_, cmd := m.Update(key)
		require.NotNil(t, cmd)
		assert.IsType(t, tea.QuitMsg{}, cmd())
	}
}

func TestModelStreamClosedMarksDisconnected(t *testing.T) {
	m := *New("http://localhost:0", "")
	m.health.Connected = true
	next, cmd := m.Update(streamClosedMsg{})
	m = next.(Model)
	assert.NotNil(t, cmd)
	assert.False(t, m.health.Connected)
	assert.Contains(t, m.lastError, "reconnecting")
}

func TestFetchStatusSendsBearer(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/status":
			_, _ = w.Write([]byte(`{"status":"running","server":"windsurf-mcp","version":"1.0.0"}`))
		case "/operations":
			_, _ = w.Write([]byte(`{"operations":["execute_cli"],"uptime_seconds":9}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()

	msg := Client{BaseURL: ts.URL, Token: "secret", HTTP: ts.Client()}.fetchStatus()
	status, ok := msg.(statusMsg)
	require.True(t, ok, "got %#v", msg)
	assert.Equal(t, "running", status.Status)
	assert.Equal(t, int64(9), status.UptimeSeconds)
	assert.Equal(t, []string{"execute_cli"}, status.Operations)

	msg = Client{BaseURL: ts.URL, Token: "wrong", HTTP: ts.Client()}.fetchStatus()
	errm, ok := msg.(errMsg)
	require.True(t, ok)
	assert.Contains(t, errm.Error(), "401")
}
