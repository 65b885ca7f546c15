// Package host defines the capability surface the NeuroOS desktop shell
// exposes to assistant tool handlers.
//
// The engine side of NeuroOS never touches windows, files, or the network
// directly: every effect a tool produces goes through one of the interfaces
// in this package. The shell owns the implementations (window compositing,
// workspace path resolution, command sandboxing, page fetching) and supplies
// them to the engine as a [Context] bag, one fresh value per tool execution.
//
// Processes on the two sides of this boundary:
//
//  1. The shell connects and provides implementations (in production via the
//     websocket bridge, in tests via [pkg/host/mock]).
//  2. The assistant runner builds a [Context] for each tool call.
//  3. Tool handlers call capability methods and never retain the Context
//     beyond the call.
//
// All implementations must be safe for concurrent use.
package host

import "context"

// WindowSpec describes a window the shell should open.
type WindowSpec struct {
	// App is the shell application identifier, e.g. "files", "browser",
	// "terminal", "widget". The shell decides what an unknown app means.
	App string

	// Title is the initial window title. May be empty; the shell chooses
	// a default based on App.
	Title string

	// URL is the content location for content-backed apps ("browser",
	// "widget"). Ignored by apps that do not render external content.
	URL string

	// Width and Height are size hints in pixels. Zero means shell default.
	Width  int
	Height int
}

// WindowInfo describes one open window as reported by the shell.
type WindowInfo struct {
	// ID is the shell-assigned window identifier, stable for the lifetime
	// of the window.
	ID string

	// App is the application identifier the window was opened with.
	App string

	// Title is the current window title.
	Title string

	// Focused reports whether the window currently has input focus.
	Focused bool
}

// DirEntry describes a single entry returned by [Workspace.ListDir].
type DirEntry struct {
	// Name is the entry's base name, without any path components.
	Name string

	// IsDir reports whether the entry is a directory.
	IsDir bool

	// Size is the file size in bytes. Zero for directories.
	Size int64
}

// ShellResult holds the outcome of a command run via [Shell.RunShell].
type ShellResult struct {
	// Stdout is the captured standard output, possibly truncated by the shell.
	Stdout string

	// Stderr is the captured standard error, possibly truncated by the shell.
	Stderr string

	// ExitCode is the command's exit status. Zero means success.
	ExitCode int
}

// Page is a fetched web page reduced to text the model can consume.
type Page struct {
	// URL is the final URL after redirects.
	URL string

	// Title is the page title, if any.
	Title string

	// Text is the readable page content with markup stripped.
	Text string
}

// SearchResult is a single web search hit.
type SearchResult struct {
	// Title is the result's display title.
	Title string

	// URL is the result's location.
	URL string

	// Snippet is a short text excerpt around the match.
	Snippet string
}

// WindowManager controls shell windows on behalf of tool handlers.
type WindowManager interface {
	// OpenWindow asks the shell to open a window and returns its ID.
	OpenWindow(ctx context.Context, spec WindowSpec) (string, error)

	// CloseWindow closes the window with the given ID.
	// Closing an unknown ID returns an error.
	CloseWindow(ctx context.Context, id string) error

	// FocusWindow gives the window with the given ID input focus.
	FocusWindow(ctx context.Context, id string) error

	// ListWindows returns every open window in shell stacking order.
	ListWindows(ctx context.Context) ([]WindowInfo, error)

	// SendWindowAction delivers an app-specific action payload to a window,
	// e.g. {"action": "scroll", "direction": "down"} for a browser window.
	// The shell routes the payload; the engine does not interpret it.
	SendWindowAction(ctx context.Context, id string, action map[string]any) error
}

// Workspace provides file access inside the user's NeuroOS workspace.
// Path resolution (workspace-relative vs absolute, traversal rules) is the
// shell's concern; handlers pass paths through as the model produced them.
type Workspace interface {
	// ReadFile returns the contents of the file at path.
	ReadFile(ctx context.Context, path string) ([]byte, error)

	// WriteFile writes data to path, creating or truncating the file and
	// any missing parent directories.
	WriteFile(ctx context.Context, path string, data []byte) error

	// ListDir returns the entries of the directory at path.
	ListDir(ctx context.Context, path string) ([]DirEntry, error)

	// MakeDir creates a directory (and missing parents) at path.
	MakeDir(ctx context.Context, path string) error

	// Remove deletes the file or directory (recursively) at path.
	Remove(ctx context.Context, path string) error
}

// Conversation appends entries to the visible conversation transcript.
type Conversation interface {
	// AppendMessage adds a message with the given role ("assistant", "tool",
	// "system") to the transcript the user sees.
	AppendMessage(ctx context.Context, role, text string) error
}

// MemoryStore persists long-term assistant facts. Storage lives on the
// shell side; the engine only forwards key/value pairs.
type MemoryStore interface {
	// SaveFact stores value under key, overwriting any previous value.
	SaveFact(ctx context.Context, key, value string) error
}

// Shell runs user-visible commands inside the workspace sandbox.
type Shell interface {
	// RunShell executes command with cwd as working directory and returns
	// the captured result. A non-zero exit code is NOT a Go error; errors
	// are reserved for spawn or transport failures.
	RunShell(ctx context.Context, command, cwd string) (ShellResult, error)
}

// Browser fetches and searches the web on behalf of tool handlers.
type Browser interface {
	// FetchURL retrieves the page at url reduced to readable text.
	FetchURL(ctx context.Context, url string) (Page, error)

	// Search runs a web search and returns ranked hits.
	Search(ctx context.Context, query string) ([]SearchResult, error)
}

// Context is the capability bag handed to a single tool execution.
//
// The assistant runner builds one fresh Context per call via its context
// factory; handlers must not retain it. Nil fields mean the shell did not
// provide that capability — handlers are expected to fail gracefully with
// a conversational message rather than dereference blindly.
type Context struct {
	// Windows controls shell windows. Nil when the shell is headless.
	Windows WindowManager

	// Workspace provides workspace file access.
	Workspace Workspace

	// Conversation appends to the visible transcript.
	Conversation Conversation

	// Memory stores long-term facts.
	Memory MemoryStore

	// Shell runs sandboxed commands.
	Shell Shell

	// Browser fetches and searches the web.
	Browser Browser

	// WorkspaceRoot is the absolute path of the user's workspace on the
	// shell side, for display purposes only. Handlers must not assume the
	// path is locally readable.
	WorkspaceRoot string
}
