// Package ostools provides the built-in tools that drive the NeuroOS shell
// itself: launching applications and manipulating windows.
//
// Five tools are exported via [NewTools]:
//   - "open_app"           — open an application window.
//   - "close_window"       — close a window by ID.
//   - "focus_window"       — give a window input focus.
//   - "list_windows"       — list open windows in stacking order.
//   - "send_window_action" — deliver an app-specific action payload to a window.
//
// Every effect goes through the [host.WindowManager] capability supplied per
// execution; when the shell runs headless the handlers fail gracefully with
// a conversational message. All handlers are safe for concurrent use.
package ostools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chatit-cloud/neuroos/internal/engine"
	"github.com/chatit-cloud/neuroos/internal/tools"
	"github.com/chatit-cloud/neuroos/pkg/host"
)

// openAppArgs is the decoded input for the "open_app" tool.
type openAppArgs struct {
	// App is the application identifier to open.
	App string `json:"app"`

	// Title optionally overrides the initial window title.
	Title string `json:"title,omitempty"`

	// URL is the content location for browser windows.
	URL string `json:"url,omitempty"`
}

// windowIDArgs is the decoded input shared by the tools that address a
// single window.
type windowIDArgs struct {
	// WindowID is the shell-assigned window identifier.
	WindowID string `json:"window_id"`
}

// sendActionArgs is the decoded input for the "send_window_action" tool.
type sendActionArgs struct {
	WindowID string `json:"window_id"`

	// Action is the app-specific payload, passed to the shell uninterpreted.
	Action map[string]any `json:"action"`
}

func openApp(ctx context.Context, args map[string]any, hc *host.Context) (engine.ToolResult, error) {
	var a openAppArgs
	if err := tools.DecodeArgs(args, &a); err != nil {
		return engine.ToolResult{}, fmt.Errorf("ostools: open_app: %w", err)
	}
	if a.App == "" {
		return engine.ToolResult{}, errors.New(`ostools: open_app: missing required argument "app"`)
	}
	if hc.Windows == nil {
		return tools.Unavailable("window control"), nil
	}

	id, err := hc.Windows.OpenWindow(ctx, host.WindowSpec{
		App:   a.App,
		Title: a.Title,
		URL:   a.URL,
	})
	if err != nil {
		return engine.ToolResult{}, fmt.Errorf("ostools: open_app: %w", err)
	}
	return engine.ToolResult{
		Success: true,
		Message: fmt.Sprintf("Opened %s in window %s.", a.App, id),
		Data:    map[string]any{"window_id": id, "app": a.App},
	}, nil
}

func closeWindow(ctx context.Context, args map[string]any, hc *host.Context) (engine.ToolResult, error) {
	var a windowIDArgs
	if err := tools.DecodeArgs(args, &a); err != nil {
		return engine.ToolResult{}, fmt.Errorf("ostools: close_window: %w", err)
	}
	if a.WindowID == "" {
		return engine.ToolResult{}, errors.New(`ostools: close_window: missing required argument "window_id"`)
	}
	if hc.Windows == nil {
		return tools.Unavailable("window control"), nil
	}

	if err := hc.Windows.CloseWindow(ctx, a.WindowID); err != nil {
		return engine.ToolResult{}, fmt.Errorf("ostools: close_window: %w", err)
	}
	return engine.ToolResult{
		Success: true,
		Message: fmt.Sprintf("Closed window %s.", a.WindowID),
	}, nil
}

func focusWindow(ctx context.Context, args map[string]any, hc *host.Context) (engine.ToolResult, error) {
	var a windowIDArgs
	if err := tools.DecodeArgs(args, &a); err != nil {
		return engine.ToolResult{}, fmt.Errorf("ostools: focus_window: %w", err)
	}
	if a.WindowID == "" {
		return engine.ToolResult{}, errors.New(`ostools: focus_window: missing required argument "window_id"`)
	}
	if hc.Windows == nil {
		return tools.Unavailable("window control"), nil
	}

	if err := hc.Windows.FocusWindow(ctx, a.WindowID); err != nil {
		return engine.ToolResult{}, fmt.Errorf("ostools: focus_window: %w", err)
	}
	return engine.ToolResult{
		Success: true,
		Message: fmt.Sprintf("Focused window %s.", a.WindowID),
	}, nil
}

func listWindows(ctx context.Context, _ map[string]any, hc *host.Context) (engine.ToolResult, error) {
	if hc.Windows == nil {
		return tools.Unavailable("window control"), nil
	}

	infos, err := hc.Windows.ListWindows(ctx)
	if err != nil {
		return engine.ToolResult{}, fmt.Errorf("ostools: list_windows: %w", err)
	}
	if len(infos) == 0 {
		return engine.ToolResult{
			Success: true,
			Message: "No windows are open.",
			Data:    infos,
		}, nil
	}

	var b strings.Builder
	if len(infos) == 1 {
		b.WriteString("1 window is open:\n")
	} else {
		fmt.Fprintf(&b, "%d windows are open:\n", len(infos))
	}
	for _, w := range infos {
		fmt.Fprintf(&b, "- %s [%s] %q", w.ID, w.App, w.Title)
		if w.Focused {
			b.WriteString(" (focused)")
		}
		b.WriteByte('\n')
	}
	return engine.ToolResult{
		Success: true,
		Message: strings.TrimRight(b.String(), "\n"),
		Data:    infos,
	}, nil
}

func sendWindowAction(ctx context.Context, args map[string]any, hc *host.Context) (engine.ToolResult, error) {
	var a sendActionArgs
	if err := tools.DecodeArgs(args, &a); err != nil {
		return engine.ToolResult{}, fmt.Errorf("ostools: send_window_action: %w", err)
	}
	if a.WindowID == "" {
		return engine.ToolResult{}, errors.New(`ostools: send_window_action: missing required argument "window_id"`)
	}
	if len(a.Action) == 0 {
		return engine.ToolResult{}, errors.New(`ostools: send_window_action: missing required argument "action"`)
	}
	if hc.Windows == nil {
		return tools.Unavailable("window control"), nil
	}

	if err := hc.Windows.SendWindowAction(ctx, a.WindowID, a.Action); err != nil {
		return engine.ToolResult{}, fmt.Errorf("ostools: send_window_action: %w", err)
	}
	return engine.ToolResult{
		Success: true,
		Message: fmt.Sprintf("Sent the action to window %s.", a.WindowID),
		Data:    map[string]any{"window_id": a.WindowID},
	}, nil
}

// NewTools constructs the window management tool set.
func NewTools() []engine.ToolDefinition {
	return []engine.ToolDefinition{
		{
			Name:        "open_app",
			Description: "Open an application window on the desktop. Returns the new window's ID.",
			Category:    engine.CategoryOS,
			Parameters: map[string]engine.ParamSpec{
				"app": {
					Type:        engine.TypeString,
					Description: "Application to open.",
					Enum:        []string{"files", "browser", "terminal", "editor", "settings"},
				},
				"title": {
					Type:        engine.TypeString,
					Description: "Initial window title.",
					Optional:    true,
				},
				"url": {
					Type:        engine.TypeString,
					Description: "Content URL, used by browser windows.",
					Optional:    true,
				},
			},
			Handler: openApp,
		},
		{
			Name:        "close_window",
			Description: "Close an open window.",
			Category:    engine.CategoryOS,
			Parameters: map[string]engine.ParamSpec{
				"window_id": {
					Type:        engine.TypeString,
					Description: "ID of the window to close, as returned by open_app or list_windows.",
				},
			},
			Handler: closeWindow,
		},
		{
			Name:        "focus_window",
			Description: "Give an open window input focus.",
			Category:    engine.CategoryOS,
			Parameters: map[string]engine.ParamSpec{
				"window_id": {
					Type:        engine.TypeString,
					Description: "ID of the window to focus.",
				},
			},
			Handler: focusWindow,
		},
		{
			Name:        "list_windows",
			Description: "List every open window with its ID, application, title, and focus state.",
			Category:    engine.CategoryOS,
			Handler:     listWindows,
		},
		{
			Name:        "send_window_action",
			Description: "Send an app-specific action to a window, e.g. scroll or navigate commands for a browser window.",
			Category:    engine.CategoryOS,
			Parameters: map[string]engine.ParamSpec{
				"window_id": {
					Type:        engine.TypeString,
					Description: "ID of the target window.",
				},
				"action": {
					Type:        engine.TypeObject,
					Description: "Action payload the target application understands.",
				},
			},
			Handler: sendWindowAction,
		},
	}
}
