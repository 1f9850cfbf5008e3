package watch

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/windsurf-mcp/internal/events"
)

// --- Message types ---

type eventMsg events.Event

// statusMsg merges GET /status and GET /operations.
type statusMsg struct {
	Status        string
	Server        string
	Version       string
	UptimeSeconds int64
	Operations    []string
}

type tickMsg time.Time

type errMsg struct{ err error }

func (e errMsg) Error() string { return e.err.Error() }

type streamClosedMsg struct{}

type reconnectMsg struct{}

// Client talks to a running server on behalf of the monitor.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func (c Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(c.BaseURL, "/")+path, nil)
	if err != nil {
		return nil, err
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("GET %s: HTTP %d", path, resp.StatusCode)
	}
	return resp, nil
}

func (c Client) getJSON(ctx context.Context, path string, dst any) error {
	resp, err := c.get(ctx, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// fetchStatus polls liveness and the operation list.
func (c Client) fetchStatus() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var status struct {
		Status  string `json:"status"`
		Server  string `json:"server"`
		Version string `json:"version"`
	}
	if err := c.getJSON(ctx, "/status", &status); err != nil {
		return errMsg{err}
	}
	var ops struct {
		Operations    []string `json:"operations"`
		UptimeSeconds int64    `json:"uptime_seconds"`
	}
	if err := c.getJSON(ctx, "/operations", &ops); err != nil {
		return errMsg{err}
	}
	return statusMsg{
		Status:        status.Status,
		Server:        status.Server,
		Version:       status.Version,
		UptimeSeconds: ops.UptimeSeconds,
		Operations:    ops.Operations,
	}
}

// subscribe connects to GET /events and feeds ch until the stream ends.
// lastID resumes after events the monitor has already seen.
func (c Client) subscribe(lastID int64, ch chan<- events.Event) tea.Cmd {
	return func() tea.Msg {
		req, err := http.NewRequest(http.MethodGet, strings.TrimRight(c.BaseURL, "/")+"/events", nil)
		if err != nil {
			return errMsg{err}
		}
		if c.Token != "" {
			req.Header.Set("Authorization", "Bearer "+c.Token)
		}
		if lastID > 0 {
			req.Header.Set("Last-Event-ID", strconv.FormatInt(lastID, 10))
		}
		client := c.HTTP
		if client == nil {
			client = http.DefaultClient
		}
		resp, err := client.Do(req)
		if err != nil {
			return streamClosedMsg{}
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return errMsg{fmt.Errorf("GET /events: HTTP %d", resp.StatusCode)}
		}

		_ = readStream(resp.Body, ch)
		return streamClosedMsg{}
	}
}

// readStream parses SSE frames from r into ch. Comment lines are ignored and
// frames without data are dropped.
func readStream(r io.Reader, ch chan<- events.Event) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var cur events.Event
	var data strings.Builder
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if data.Len() > 0 {
				cur.Data = json.RawMessage(data.String())
				if cur.At.IsZero() {
					cur.At = time.Now().UTC()
				}
				ch <- cur
			}
			cur = events.Event{}
			data.Reset()
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "id: "):
			if id, err := strconv.ParseInt(line[len("id: "):], 10, 64); err == nil {
				cur.ID = id
			}
		case strings.HasPrefix(line, "event: "):
			cur.Type = line[len("event: "):]
		case strings.HasPrefix(line, "data: "):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(line[len("data: "):])
		}
	}
	return sc.Err()
}

// receiveNextEvent waits for the next streamed event.
func receiveNextEvent(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-ch)
	}
}
