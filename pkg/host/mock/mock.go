// Package mock provides an in-memory test double for the host capability
// surface.
//
// Host implements every interface in [pkg/host] against process-local state:
// windows are entries in a map, the workspace is a map of paths to bytes,
// facts and transcript entries accumulate in slices. It backs unit tests and
// the daemon's -demo mode, where no desktop shell is connected.
//
// The zero value is ready to use. Every method records a [Call] for
// assertion in tests, and per-method *Err fields inject failures:
//
//	h := &mock.Host{ReadFileErr: errors.New("disk on fire")}
//	_, err := h.ReadFile(ctx, "notes.txt") // returns the injected error
//
// Host is safe for concurrent use via an internal [sync.Mutex].
package mock

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/chatit-cloud/neuroos/pkg/host"
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// Message is one transcript entry recorded by AppendMessage.
type Message struct {
	// Role is the conversational role ("assistant", "tool", "system").
	Role string

	// Text is the message body.
	Text string
}

// Host is an in-memory implementation of the full capability surface.
type Host struct {
	mu sync.Mutex

	calls []Call

	// --- Window state ---

	windows  map[string]host.WindowInfo
	winOrder []string
	nextWin  int

	// --- Workspace state ---

	files map[string][]byte
	dirs  map[string]bool

	// --- Conversation / memory state ---

	transcript []Message
	facts      map[string]string

	// --- Configurable responses ---

	// Root is reported as WorkspaceRoot by [Host.Context].
	// Empty means "/workspace".
	Root string

	// RunShellResult is returned by RunShell for every command.
	RunShellResult host.ShellResult

	// Pages maps URLs to the pages FetchURL returns. A missing URL yields
	// a page whose Text is empty and whose URL echoes the request.
	Pages map[string]host.Page

	// SearchResults is returned by Search for every query.
	// When nil, Search returns an empty non-nil slice.
	SearchResults []host.SearchResult

	// --- Error injection (nil means success) ---

	OpenWindowErr       error
	CloseWindowErr      error
	FocusWindowErr      error
	ListWindowsErr      error
	SendWindowActionErr error
	ReadFileErr         error
	WriteFileErr        error
	ListDirErr          error
	MakeDirErr          error
	RemoveErr           error
	AppendMessageErr    error
	SaveFactErr         error
	RunShellErr         error
	FetchURLErr         error
	SearchErr           error
}

// ensure initialises lazily so the zero value works.
// Callers must hold h.mu.
func (h *Host) ensure() {
	if h.windows == nil {
		h.windows = make(map[string]host.WindowInfo)
	}
	if h.files == nil {
		h.files = make(map[string][]byte)
	}
	if h.dirs == nil {
		h.dirs = map[string]bool{"/": true}
	}
	if h.facts == nil {
		h.facts = make(map[string]string)
	}
}

func (h *Host) record(method string, args ...any) {
	h.calls = append(h.calls, Call{Method: method, Args: args})
}

// Context returns a capability bag whose every field is backed by h.
func (h *Host) Context() *host.Context {
	h.mu.Lock()
	root := h.Root
	h.mu.Unlock()
	if root == "" {
		root = "/workspace"
	}
	return &host.Context{
		Windows:       h,
		Workspace:     h,
		Conversation:  h,
		Memory:        h,
		Shell:         h,
		Browser:       h,
		WorkspaceRoot: root,
	}
}

// Calls returns a copy of all recorded method invocations.
func (h *Host) Calls() []Call {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Call, len(h.calls))
	copy(out, h.calls)
	return out
}

// CallCount returns how many times the named method was invoked.
func (h *Host) CallCount(method string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, c := range h.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Reset clears recorded calls and all in-memory state without altering
// response configuration.
func (h *Host) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = nil
	h.windows = nil
	h.winOrder = nil
	h.nextWin = 0
	h.files = nil
	h.dirs = nil
	h.transcript = nil
	h.facts = nil
}

// ─────────────────────────────────────────────────────────────────────────────
// WindowManager
// ─────────────────────────────────────────────────────────────────────────────

// OpenWindow implements [host.WindowManager]. The new window gets focus.
func (h *Host) OpenWindow(_ context.Context, spec host.WindowSpec) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ensure()
	h.record("OpenWindow", spec)
	if h.OpenWindowErr != nil {
		return "", h.OpenWindowErr
	}
	h.nextWin++
	id := fmt.Sprintf("win-%d", h.nextWin)
	for wid, w := range h.windows {
		w.Focused = false
		h.windows[wid] = w
	}
	h.windows[id] = host.WindowInfo{ID: id, App: spec.App, Title: spec.Title, Focused: true}
	h.winOrder = append(h.winOrder, id)
	return id, nil
}

// CloseWindow implements [host.WindowManager].
func (h *Host) CloseWindow(_ context.Context, id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ensure()
	h.record("CloseWindow", id)
	if h.CloseWindowErr != nil {
		return h.CloseWindowErr
	}
	if _, ok := h.windows[id]; !ok {
		return fmt.Errorf("mock: no window %q", id)
	}
	delete(h.windows, id)
	for i, wid := range h.winOrder {
		if wid == id {
			h.winOrder = append(h.winOrder[:i], h.winOrder[i+1:]...)
			break
		}
	}
	return nil
}

// FocusWindow implements [host.WindowManager].
func (h *Host) FocusWindow(_ context.Context, id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ensure()
	h.record("FocusWindow", id)
	if h.FocusWindowErr != nil {
		return h.FocusWindowErr
	}
	if _, ok := h.windows[id]; !ok {
		return fmt.Errorf("mock: no window %q", id)
	}
	for wid, w := range h.windows {
		w.Focused = wid == id
		h.windows[wid] = w
	}
	return nil
}

// ListWindows implements [host.WindowManager]. Windows are returned in the
// order they were opened.
func (h *Host) ListWindows(_ context.Context) ([]host.WindowInfo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ensure()
	h.record("ListWindows")
	if h.ListWindowsErr != nil {
		return nil, h.ListWindowsErr
	}
	out := make([]host.WindowInfo, 0, len(h.winOrder))
	for _, id := range h.winOrder {
		out = append(out, h.windows[id])
	}
	return out, nil
}

// SendWindowAction implements [host.WindowManager]. The action payload is
// recorded but not interpreted.
func (h *Host) SendWindowAction(_ context.Context, id string, action map[string]any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ensure()
	h.record("SendWindowAction", id, action)
	if h.SendWindowActionErr != nil {
		return h.SendWindowActionErr
	}
	if _, ok := h.windows[id]; !ok {
		return fmt.Errorf("mock: no window %q", id)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Workspace
// ─────────────────────────────────────────────────────────────────────────────

// cleanPath canonicalises p to an absolute slash path so that "notes.txt",
// "./notes.txt" and "/notes.txt" address the same entry.
func cleanPath(p string) string {
	return path.Clean("/" + strings.TrimPrefix(p, "/"))
}

// ReadFile implements [host.Workspace].
func (h *Host) ReadFile(_ context.Context, p string) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ensure()
	h.record("ReadFile", p)
	if h.ReadFileErr != nil {
		return nil, h.ReadFileErr
	}
	data, ok := h.files[cleanPath(p)]
	if !ok {
		return nil, fmt.Errorf("mock: no such file: %s", p)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// WriteFile implements [host.Workspace]. Missing parent directories are
// created implicitly.
func (h *Host) WriteFile(_ context.Context, p string, data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ensure()
	h.record("WriteFile", p, data)
	if h.WriteFileErr != nil {
		return h.WriteFileErr
	}
	cp := cleanPath(p)
	stored := make([]byte, len(data))
	copy(stored, data)
	h.files[cp] = stored
	for dir := path.Dir(cp); ; dir = path.Dir(dir) {
		h.dirs[dir] = true
		if dir == "/" {
			break
		}
	}
	return nil
}

// ListDir implements [host.Workspace]. Entries are sorted by name.
func (h *Host) ListDir(_ context.Context, p string) ([]host.DirEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ensure()
	h.record("ListDir", p)
	if h.ListDirErr != nil {
		return nil, h.ListDirErr
	}
	cp := cleanPath(p)
	if !h.dirs[cp] {
		return nil, fmt.Errorf("mock: no such directory: %s", p)
	}
	seen := make(map[string]host.DirEntry)
	for fp, data := range h.files {
		if path.Dir(fp) == cp {
			name := path.Base(fp)
			seen[name] = host.DirEntry{Name: name, Size: int64(len(data))}
		}
	}
	for dp := range h.dirs {
		if dp != "/" && path.Dir(dp) == cp && dp != cp {
			name := path.Base(dp)
			seen[name] = host.DirEntry{Name: name, IsDir: true}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]host.DirEntry, 0, len(names))
	for _, name := range names {
		out = append(out, seen[name])
	}
	return out, nil
}

// MakeDir implements [host.Workspace].
func (h *Host) MakeDir(_ context.Context, p string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ensure()
	h.record("MakeDir", p)
	if h.MakeDirErr != nil {
		return h.MakeDirErr
	}
	for dir := cleanPath(p); ; dir = path.Dir(dir) {
		h.dirs[dir] = true
		if dir == "/" {
			break
		}
	}
	return nil
}

// Remove implements [host.Workspace]. Directories are removed recursively.
func (h *Host) Remove(_ context.Context, p string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ensure()
	h.record("Remove", p)
	if h.RemoveErr != nil {
		return h.RemoveErr
	}
	cp := cleanPath(p)
	if _, ok := h.files[cp]; ok {
		delete(h.files, cp)
		return nil
	}
	if !h.dirs[cp] {
		return fmt.Errorf("mock: no such path: %s", p)
	}
	prefix := cp + "/"
	for fp := range h.files {
		if strings.HasPrefix(fp, prefix) {
			delete(h.files, fp)
		}
	}
	for dp := range h.dirs {
		if dp == cp || strings.HasPrefix(dp, prefix) {
			delete(h.dirs, dp)
		}
	}
	return nil
}

// FileContents returns the stored bytes for p, if any. Test helper.
func (h *Host) FileContents(p string) ([]byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ensure()
	data, ok := h.files[cleanPath(p)]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, true
}

// ─────────────────────────────────────────────────────────────────────────────
// Conversation / MemoryStore
// ─────────────────────────────────────────────────────────────────────────────

// AppendMessage implements [host.Conversation].
func (h *Host) AppendMessage(_ context.Context, role, text string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ensure()
	h.record("AppendMessage", role, text)
	if h.AppendMessageErr != nil {
		return h.AppendMessageErr
	}
	h.transcript = append(h.transcript, Message{Role: role, Text: text})
	return nil
}

// Transcript returns a copy of every message appended so far.
func (h *Host) Transcript() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Message, len(h.transcript))
	copy(out, h.transcript)
	return out
}

// SaveFact implements [host.MemoryStore].
func (h *Host) SaveFact(_ context.Context, key, value string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ensure()
	h.record("SaveFact", key, value)
	if h.SaveFactErr != nil {
		return h.SaveFactErr
	}
	h.facts[key] = value
	return nil
}

// Facts returns a copy of all stored facts.
func (h *Host) Facts() map[string]string {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ensure()
	out := make(map[string]string, len(h.facts))
	for k, v := range h.facts {
		out[k] = v
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Shell / Browser
// ─────────────────────────────────────────────────────────────────────────────

// RunShell implements [host.Shell]. It returns RunShellResult unchanged.
func (h *Host) RunShell(_ context.Context, command, cwd string) (host.ShellResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ensure()
	h.record("RunShell", command, cwd)
	if h.RunShellErr != nil {
		return host.ShellResult{}, h.RunShellErr
	}
	return h.RunShellResult, nil
}

// FetchURL implements [host.Browser].
func (h *Host) FetchURL(_ context.Context, url string) (host.Page, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ensure()
	h.record("FetchURL", url)
	if h.FetchURLErr != nil {
		return host.Page{}, h.FetchURLErr
	}
	if page, ok := h.Pages[url]; ok {
		return page, nil
	}
	return host.Page{URL: url}, nil
}

// Search implements [host.Browser].
func (h *Host) Search(_ context.Context, query string) ([]host.SearchResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ensure()
	h.record("Search", query)
	if h.SearchErr != nil {
		return nil, h.SearchErr
	}
	if h.SearchResults == nil {
		return []host.SearchResult{}, nil
	}
	out := make([]host.SearchResult, len(h.SearchResults))
	copy(out, h.SearchResults)
	return out, nil
}

// Compile-time interface checks.
var (
	_ host.WindowManager = (*Host)(nil)
	_ host.Workspace     = (*Host)(nil)
	_ host.Conversation  = (*Host)(nil)
	_ host.MemoryStore   = (*Host)(nil)
	_ host.Shell         = (*Host)(nil)
	_ host.Browser       = (*Host)(nil)
)
