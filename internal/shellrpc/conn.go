// Package shellrpc bridges the engine to a connected desktop shell over a
// websocket.
//
// The shell dials GET /shell/ws and the two sides exchange JSON text frames:
//
//   - Go → shell requests: {"id": 7, "method": "fs.read", "params": {...}}
//   - shell → Go replies:  {"id": 7, "result": {...}} or {"id": 7, "error": "..."}
//   - shell → Go events:   {"event": "user_message", "text": "..."} start
//     assistant turns
//   - Go → shell display:  {"stream": "display", "text": "..."} carries a
//     sanitized draft of the response being streamed; each frame replaces
//     the previous one
//
// A [Conn] implements every pkg/host capability interface by round-tripping
// frames with a per-call timeout, so tool handlers stay unaware of the
// transport. Pending calls are matched to replies by id. All methods are
// safe for concurrent use.
package shellrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/chatit-cloud/neuroos/internal/observe"
	"github.com/chatit-cloud/neuroos/pkg/host"
)

// Compile-time assertions that Conn provides the full capability surface.
var _ host.WindowManager = (*Conn)(nil)
var _ host.Workspace = (*Conn)(nil)
var _ host.Conversation = (*Conn)(nil)
var _ host.MemoryStore = (*Conn)(nil)
var _ host.Shell = (*Conn)(nil)
var _ host.Browser = (*Conn)(nil)

const (
	// defaultCallTimeout bounds one capability round-trip when the config
	// does not say otherwise.
	defaultCallTimeout = 10 * time.Second

	// maxFrameBytes is the read limit for a single frame from the shell.
	// File reads come back in one frame, so this is well above the
	// websocket library default.
	maxFrameBytes = 4 << 20
)

// ErrClosed is returned by capability calls made after the connection shut
// down.
var ErrClosed = errors.New("shellrpc: connection closed")

// ── Protocol frames ────────────────────────────────────────────────────────────

// request is a Go-to-shell capability call.
type request struct {
	ID     uint64 `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// response carries the shell's reply to one request.
type response struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// incoming covers every frame the shell may send: replies carry an id,
// unsolicited events carry an event name.
type incoming struct {
	ID     uint64          `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
	Event  string          `json:"event,omitempty"`
	Text   string          `json:"text,omitempty"`
}

// displayFrame streams sanitized assistant text to the shell's chat surface.
type displayFrame struct {
	Stream string `json:"stream"`
	Text   string `json:"text"`
}

// ── Conn ───────────────────────────────────────────────────────────────────────

// Conn is one connected desktop shell session.
type Conn struct {
	ws          *websocket.Conn
	logger      *slog.Logger
	metrics     *observe.Metrics
	callTimeout time.Duration
	origins     []string

	mu        sync.Mutex
	nextID    uint64
	pending   map[uint64]chan response
	onMessage func(ctx context.Context, text string)
	closed    bool

	// events carries user_message texts from the read pump to the dispatch
	// pump. The read pump owns it and closes it on exit.
	events    chan string
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// Option configures a [Conn] before the websocket upgrade.
type Option func(*Conn)

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(c *Conn) { c.logger = l }
}

// WithMetrics sets the metrics sink for the active-connections gauge.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Conn) { c.metrics = m }
}

// WithCallTimeout bounds each capability round-trip. Zero or negative keeps
// the 10 second default.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Conn) {
		if d > 0 {
			c.callTimeout = d
		}
	}
}

// WithOriginPatterns sets the origin patterns accepted for the upgrade.
// Empty means same-origin only.
func WithOriginPatterns(patterns []string) Option {
	return func(c *Conn) { c.origins = patterns }
}

// Accept upgrades an HTTP request to a shell session. The caller should
// register a user-message handler via [Conn.OnUserMessage] and then block
// in [Conn.Run].
func Accept(w http.ResponseWriter, r *http.Request, opts ...Option) (*Conn, error) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		logger:      slog.Default(),
		callTimeout: defaultCallTimeout,
		pending:     make(map[uint64]chan response),
		events:      make(chan string, 16),
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(c)
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: c.origins,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("shellrpc: accept: %w", err)
	}
	ws.SetReadLimit(maxFrameBytes)
	c.ws = ws

	if c.metrics != nil {
		c.metrics.ActiveShellConns.Add(ctx, 1)
	}
	c.logger.Info("shell connected", "remote", r.RemoteAddr)
	return c, nil
}

// OnUserMessage registers the handler invoked for each user_message event.
// Messages are dispatched one at a time in arrival order; the next message
// waits until the handler returns.
func (c *Conn) OnUserMessage(handler func(ctx context.Context, text string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = handler
}

// Run serves the session: it pumps frames off the socket and dispatches
// user messages until the shell disconnects, ctx is cancelled, or the
// connection fails. A normal shell disconnect returns nil.
func (c *Conn) Run(ctx context.Context) error {
	defer c.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.readLoop(gctx) })
	g.Go(func() error { return c.dispatchLoop(gctx) })
	return g.Wait()
}

// readLoop reads frames and routes them. It owns the events channel and
// closes it on exit so the dispatch pump drains and stops.
func (c *Conn) readLoop(ctx context.Context) error {
	defer close(c.events)

	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			if c.ctx.Err() != nil || ctx.Err() != nil {
				return nil
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				c.logger.Info("shell disconnected")
				return nil
			}
			return fmt.Errorf("shellrpc: read: %w", err)
		}

		var frame incoming
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.Warn("discarding malformed frame", "error", err)
			continue
		}

		switch {
		case frame.Event != "":
			c.handleEvent(ctx, frame)
		case frame.ID != 0:
			c.deliver(response{ID: frame.ID, Result: frame.Result, Error: frame.Error})
		default:
			c.logger.Warn("discarding frame with neither id nor event")
		}
	}
}

func (c *Conn) handleEvent(ctx context.Context, frame incoming) {
	switch frame.Event {
	case "user_message":
		select {
		case c.events <- frame.Text:
		case <-ctx.Done():
		}
	default:
		c.logger.Debug("ignoring unknown event", "event", frame.Event)
	}
}

// deliver hands a reply to the call waiting on its id. The entry is removed
// here so a duplicate reply cannot block the read pump; replies that arrive
// after the call timed out have no waiter and are dropped.
func (c *Conn) deliver(resp response) {
	c.mu.Lock()
	ch, ok := c.pending[resp.ID]
	if ok {
		delete(c.pending, resp.ID)
	}
	c.mu.Unlock()
	if !ok {
		c.logger.Debug("discarding reply for expired or duplicate call id", "id", resp.ID)
		return
	}
	ch <- resp
}

// dispatchLoop runs the user-message handler for each queued event.
func (c *Conn) dispatchLoop(ctx context.Context) error {
	for {
		select {
		case text, ok := <-c.events:
			if !ok {
				return nil
			}
			c.mu.Lock()
			handler := c.onMessage
			c.mu.Unlock()
			if handler == nil {
				c.logger.Warn("dropping user message: no handler registered")
				continue
			}
			handler(ctx, text)
		case <-ctx.Done():
			return nil
		}
	}
}

// SendDisplay pushes a sanitized draft of the in-progress response to the
// shell's chat surface. Each frame carries the full draft and replaces the
// previous one; stripping call syntax is not prefix-stable mid-stream, so
// deltas would show text the next frame has to take back. Empty drafts are
// skipped.
func (c *Conn) SendDisplay(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	return c.writeJSON(ctx, displayFrame{Stream: "display", Text: text})
}

// Close tears the session down and unblocks every in-flight call.
// Idempotent.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		c.cancel()
		_ = c.ws.Close(websocket.StatusNormalClosure, "session closed")
		if c.metrics != nil {
			c.metrics.ActiveShellConns.Add(context.Background(), -1)
		}
		c.logger.Info("shell session closed")
	})
	return nil
}

// ── Call plumbing ──────────────────────────────────────────────────────────────

// call performs one request/reply round-trip. A non-empty error field in the
// reply, the per-call timeout, and connection shutdown all surface as errors;
// otherwise the reply's result is decoded into result when both are present.
func (c *Conn) call(ctx context.Context, method string, params, result any) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("shellrpc: %s: %w", method, ErrClosed)
	}
	c.nextID++
	id := c.nextID
	ch := make(chan response, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	if err := c.writeJSON(ctx, request{ID: id, Method: method, Params: params}); err != nil {
		return fmt.Errorf("shellrpc: send %s: %w", method, err)
	}

	select {
	case resp := <-ch:
		if resp.Error != "" {
			return fmt.Errorf("shellrpc: %s: %s", method, resp.Error)
		}
		if result != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("shellrpc: decode %s result: %w", method, err)
			}
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shellrpc: %s: %w", method, ctx.Err())
	case <-c.ctx.Done():
		return fmt.Errorf("shellrpc: %s: %w", method, ErrClosed)
	}
}

// writeJSON marshals v and writes it as one text frame. Concurrent writers
// are serialized by the websocket library.
func (c *Conn) writeJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("shellrpc: marshal: %w", err)
	}
	return c.ws.Write(ctx, websocket.MessageText, data)
}

// ── WindowManager ──────────────────────────────────────────────────────────────

type windowSpecParams struct {
	App    string `json:"app"`
	Title  string `json:"title,omitempty"`
	URL    string `json:"url,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

type windowIDParams struct {
	ID string `json:"id"`
}

type windowActionParams struct {
	ID     string         `json:"id"`
	Action map[string]any `json:"action"`
}

type windowInfoFrame struct {
	ID      string `json:"id"`
	App     string `json:"app"`
	Title   string `json:"title"`
	Focused bool   `json:"focused"`
}

func (c *Conn) OpenWindow(ctx context.Context, spec host.WindowSpec) (string, error) {
	var result struct {
		ID string `json:"id"`
	}
	err := c.call(ctx, "window.open", windowSpecParams{
		App:    spec.App,
		Title:  spec.Title,
		URL:    spec.URL,
		Width:  spec.Width,
		Height: spec.Height,
	}, &result)
	if err != nil {
		return "", err
	}
	return result.ID, nil
}

func (c *Conn) CloseWindow(ctx context.Context, id string) error {
	return c.call(ctx, "window.close", windowIDParams{ID: id}, nil)
}

func (c *Conn) FocusWindow(ctx context.Context, id string) error {
	return c.call(ctx, "window.focus", windowIDParams{ID: id}, nil)
}

func (c *Conn) ListWindows(ctx context.Context) ([]host.WindowInfo, error) {
	var frames []windowInfoFrame
	if err := c.call(ctx, "window.list", nil, &frames); err != nil {
		return nil, err
	}
	windows := make([]host.WindowInfo, len(frames))
	for i, f := range frames {
		windows[i] = host.WindowInfo{ID: f.ID, App: f.App, Title: f.Title, Focused: f.Focused}
	}
	return windows, nil
}

func (c *Conn) SendWindowAction(ctx context.Context, id string, action map[string]any) error {
	return c.call(ctx, "window.action", windowActionParams{ID: id, Action: action}, nil)
}

// ── Workspace ──────────────────────────────────────────────────────────────────

type pathParams struct {
	Path string `json:"path"`
}

type writeFileParams struct {
	Path string `json:"path"`
	Data []byte `json:"data"` // base64 on the wire
}

type dirEntryFrame struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size"`
}

func (c *Conn) ReadFile(ctx context.Context, path string) ([]byte, error) {
	var result struct {
		Data []byte `json:"data"`
	}
	if err := c.call(ctx, "fs.read", pathParams{Path: path}, &result); err != nil {
		return nil, err
	}
	return result.Data, nil
}

func (c *Conn) WriteFile(ctx context.Context, path string, data []byte) error {
	return c.call(ctx, "fs.write", writeFileParams{Path: path, Data: data}, nil)
}

func (c *Conn) ListDir(ctx context.Context, path string) ([]host.DirEntry, error) {
	var frames []dirEntryFrame
	if err := c.call(ctx, "fs.list", pathParams{Path: path}, &frames); err != nil {
		return nil, err
	}
	entries := make([]host.DirEntry, len(frames))
	for i, f := range frames {
		entries[i] = host.DirEntry{Name: f.Name, IsDir: f.IsDir, Size: f.Size}
	}
	return entries, nil
}

func (c *Conn) MakeDir(ctx context.Context, path string) error {
	return c.call(ctx, "fs.mkdir", pathParams{Path: path}, nil)
}

func (c *Conn) Remove(ctx context.Context, path string) error {
	return c.call(ctx, "fs.remove", pathParams{Path: path}, nil)
}

// ── Conversation, MemoryStore ──────────────────────────────────────────────────

type appendMessageParams struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type saveFactParams struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (c *Conn) AppendMessage(ctx context.Context, role, text string) error {
	return c.call(ctx, "conversation.append", appendMessageParams{Role: role, Text: text}, nil)
}

func (c *Conn) SaveFact(ctx context.Context, key, value string) error {
	return c.call(ctx, "memory.save", saveFactParams{Key: key, Value: value}, nil)
}

// ── Shell ──────────────────────────────────────────────────────────────────────

type runShellParams struct {
	Command string `json:"command"`
	Cwd     string `json:"cwd,omitempty"`
}

type shellResultFrame struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}

func (c *Conn) RunShell(ctx context.Context, command, cwd string) (host.ShellResult, error) {
	var frame shellResultFrame
	err := c.call(ctx, "shell.run", runShellParams{Command: command, Cwd: cwd}, &frame)
	if err != nil {
		return host.ShellResult{}, err
	}
	return host.ShellResult{Stdout: frame.Stdout, Stderr: frame.Stderr, ExitCode: frame.ExitCode}, nil
}

// ── Browser ────────────────────────────────────────────────────────────────────

type fetchURLParams struct {
	URL string `json:"url"`
}

type searchParams struct {
	Query string `json:"query"`
}

type pageFrame struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

type searchResultFrame struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

func (c *Conn) FetchURL(ctx context.Context, url string) (host.Page, error) {
	var frame pageFrame
	if err := c.call(ctx, "browser.fetch", fetchURLParams{URL: url}, &frame); err != nil {
		return host.Page{}, err
	}
	return host.Page{URL: frame.URL, Title: frame.Title, Text: frame.Text}, nil
}

func (c *Conn) Search(ctx context.Context, query string) ([]host.SearchResult, error) {
	var frames []searchResultFrame
	if err := c.call(ctx, "browser.search", searchParams{Query: query}, &frames); err != nil {
		return nil, err
	}
	results := make([]host.SearchResult, len(frames))
	for i, f := range frames {
		results[i] = host.SearchResult{Title: f.Title, URL: f.URL, Snippet: f.Snippet}
	}
	return results, nil
}

// HostContext assembles the full capability bag backed by this connection.
// workspaceRoot is the shell-reported workspace path, display only.
func (c *Conn) HostContext(workspaceRoot string) *host.Context {
	return &host.Context{
		Windows:       c,
		Workspace:     c,
		Conversation:  c,
		Memory:        c,
		Shell:         c,
		Browser:       c,
		WorkspaceRoot: workspaceRoot,
	}
}
