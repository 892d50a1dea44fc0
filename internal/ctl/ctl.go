// Package ctl implements the CLI control client for inspecting a running
// ringbuf pipeline over its Unix socket or TCP API.
package ctl

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"

	"github.com/kahiteam/ringbuf/internal/api"
	"github.com/kahiteam/ringbuf/internal/pipeline"
)

// Client communicates with a ringbuf API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	username   string
	password   string
}

// NewUnixClient creates a client that connects via Unix socket.
func NewUnixClient(socketPath string) *Client {
	return &Client{
		httpClient: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socketPath)
				},
			},
			Timeout: 30 * time.Second,
		},
		baseURL: "http://unix",
	}
}

// NewTCPClient creates a client that connects via TCP.
func NewTCPClient(addr, username, password string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    "http://" + addr,
		username:   username,
		password:   password,
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	return req, nil
}

func (c *Client) do(method, path string) (*http.Response, error) {
	req, err := c.newRequest(context.Background(), method, path)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connection failed: %w", err)
	}
	return resp, nil
}

// doJSON performs a request and decodes a successful response into out.
func (c *Client) doJSON(method, path string, out any) error {
	resp, err := c.do(method, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return responseError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("invalid response: %w", err)
	}
	return nil
}

func responseError(resp *http.Response) error {
	var errBody map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&errBody); err != nil || errBody["error"] == "" {
		return fmt.Errorf("server error (status %d)", resp.StatusCode)
	}
	return errors.New(errBody["error"])
}

// --- Buffer inspection ---

// BufferStatus returns the pipeline status.
func (c *Client) BufferStatus() (pipeline.Status, error) {
	var st pipeline.Status
	err := c.doJSON("GET", "/api/v1/buffer", &st)
	return st, err
}

// Status retrieves and formats the pipeline status.
func (c *Client) Status(jsonOutput bool, w io.Writer) error {
	st, err := c.BufferStatus()
	if err != nil {
		return err
	}
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}
	return formatStatus(st, w, isTerminal(w))
}

func formatStatus(st pipeline.Status, w io.Writer, color bool) error {
	state := "STOPPED"
	if st.Running {
		state = "RUNNING"
	}
	if color {
		state = colorState(state)
	}

	uptime := "-"
	if st.UptimeSeconds > 0 {
		uptime = formatDuration(time.Duration(st.UptimeSeconds * float64(time.Second)))
	}

	pct := 0.0
	if st.Buffer.Capacity > 0 {
		pct = 100 * float64(st.Buffer.Used) / float64(st.Buffer.Capacity)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	rows := [][2]string{
		{"NAME", st.Name},
		{"STATE", state},
		{"MODE", st.Mode},
		{"STORAGE", st.Storage},
		{"FRAMER", st.Framer},
		{"UPTIME", uptime},
		{"CAPACITY", humanize.IBytes(uint64(st.Buffer.Capacity))},
		{"USED", fmt.Sprintf("%s (%.1f%%)", humanize.IBytes(uint64(st.Buffer.Used)), pct)},
		{"CURSORS", fmt.Sprintf("front=%d rear=%d", st.Buffer.Front, st.Buffer.Rear)},
		{"BYTES IN", humanize.Comma(st.Stats.BytesIn)},
		{"DROPPED", humanize.Comma(st.Stats.Dropped)},
		{"OVERWRITTEN", humanize.Comma(st.Stats.Overwritten)},
		{"FRAMES", fmt.Sprintf("%s (oversize %d, partial %d)", humanize.Comma(st.Stats.Frames), st.Stats.Oversize, st.Stats.Partial)},
	}
	if st.Stats.ResyncRejected > 0 {
		rows = append(rows, [2]string{"RESYNC REJECTED", humanize.Comma(st.Stats.ResyncRejected)})
	}
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\n", r[0], r[1])
	}
	return tw.Flush()
}

func colorState(state string) string {
	switch state {
	case "RUNNING":
		return "\033[32m" + state + "\033[0m"
	case "STOPPED":
		return "\033[33m" + state + "\033[0m"
	default:
		return state
	}
}

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return term.IsTerminal(int(f.Fd()))
	}
	return false
}

// Peek copies length bytes at a logical index without consuming them.
func (c *Client) Peek(index, length int) ([]byte, error) {
	var res api.PeekResult
	path := fmt.Sprintf("/api/v1/buffer/peek?index=%d&length=%d", index, length)
	if err := c.doJSON("GET", path, &res); err != nil {
		return nil, err
	}
	data, err := hex.DecodeString(res.Hex)
	if err != nil {
		return nil, fmt.Errorf("invalid response: %w", err)
	}
	return data, nil
}

// FindByte returns the logical index of the first c at or after index,
// continuing from the front when the end of the data is reached, or -1.
func (c *Client) FindByte(index int, b byte) (int, error) {
	return c.find(url.Values{
		"index": {strconv.Itoa(index)},
		"byte":  {strconv.Itoa(int(b))},
	})
}

// FindPattern returns the logical index of the first occurrence of pattern
// at or after index, or -1.
func (c *Client) FindPattern(index int, pattern []byte) (int, error) {
	if len(pattern) == 0 {
		return 0, errors.New("empty pattern")
	}
	return c.find(url.Values{
		"index": {strconv.Itoa(index)},
		"hex":   {hex.EncodeToString(pattern)},
	})
}

func (c *Client) find(q url.Values) (int, error) {
	var res api.FindResult
	if err := c.doJSON("GET", "/api/v1/buffer/find?"+q.Encode(), &res); err != nil {
		return 0, err
	}
	return res.Match, nil
}

// RunLength returns the number of bytes from index up to the next NUL.
func (c *Client) RunLength(index int) (int, error) {
	var res api.RunLengthResult
	if err := c.doJSON("GET", fmt.Sprintf("/api/v1/buffer/runlength?index=%d", index), &res); err != nil {
		return 0, err
	}
	return res.Length, nil
}

// --- Output tailing ---

// Tail copies the most recent output to w.
func (c *Client) Tail(bytes int, w io.Writer) error {
	resp, err := c.do("GET", fmt.Sprintf("/api/v1/tail?bytes=%d", bytes))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return responseError(resp)
	}
	_, err = io.Copy(w, resp.Body)
	return err
}

// Events streams pipeline events as "TYPE DATA" lines until ctx is done or
// the server closes the stream. Events the server dropped for a slow reader
// appear as "DROPPED N".
func (c *Client) Events(ctx context.Context, types []string, w io.Writer) error {
	path := "/api/v1/events/stream"
	if len(types) > 0 {
		path += "?types=" + url.QueryEscape(strings.Join(types, ","))
	}
	req, err := c.newRequest(ctx, "GET", path)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	// The stream outlives the client timeout.
	hc := *c.httpClient
	hc.Timeout = 0
	resp, err := hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("connection failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return responseError(resp)
	}

	var event string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = line[len("event: "):]
		case strings.HasPrefix(line, "data: "):
			fmt.Fprintf(w, "%s %s\n", event, line[len("data: "):])
		case strings.HasPrefix(line, ": dropped "):
			fmt.Fprintf(w, "DROPPED %s\n", line[len(": dropped "):])
		case line == "":
			event = ""
		}
	}
	if err := sc.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// --- Daemon operations ---

// Reopen asks the daemon to reopen its output file.
func (c *Client) Reopen() error {
	return c.doJSON("POST", "/api/v1/reopen", nil)
}

// Shutdown initiates daemon shutdown.
func (c *Client) Shutdown() error {
	return c.doJSON("POST", "/api/v1/shutdown", nil)
}

// Version returns daemon version info.
func (c *Client) Version() (map[string]string, error) {
	var v map[string]string
	err := c.doJSON("GET", "/api/v1/version", &v)
	return v, err
}

// --- Health checks ---

// Health checks daemon liveness.
func (c *Client) Health() (string, error) {
	return c.probe("/healthz")
}

// Ready checks whether the pipeline is consuming its source.
func (c *Client) Ready() (string, error) {
	return c.probe("/readyz")
}

func (c *Client) probe(path string) (string, error) {
	resp, err := c.do("GET", path)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("invalid response: %w", err)
	}
	return body["status"], nil
}
