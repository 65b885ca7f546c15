// Package generatetools provides the built-in tool for generating live
// widgets: small self-contained HTML documents the shell renders in their
// own window.
//
// One tool is exported via [NewTools]:
//   - "generate_widget" — save an HTML widget into the workspace and open
//     a window onto it.
//
// The widget file goes through [host.Workspace] and the window through
// [host.WindowManager]; when the shell is headless the file is still
// written and the result says so. The handler is safe for concurrent use.
package generatetools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chatit-cloud/neuroos/internal/engine"
	"github.com/chatit-cloud/neuroos/internal/tools"
	"github.com/chatit-cloud/neuroos/pkg/host"
)

// widgetDir is the workspace folder generated widgets are saved under.
const widgetDir = "widgets"

// generateWidgetArgs is the decoded input for the "generate_widget" tool.
type generateWidgetArgs struct {
	// Name is the widget's file name without folder components; ".html" is
	// appended when missing.
	Name string `json:"name"`

	// HTML is the complete self-contained document to render.
	HTML string `json:"html"`

	// Title optionally overrides the window title. Defaults to Name.
	Title string `json:"title,omitempty"`

	// Width and Height are window size hints in pixels.
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`
}

func generateWidget(ctx context.Context, args map[string]any, hc *host.Context) (engine.ToolResult, error) {
	var a generateWidgetArgs
	if err := tools.DecodeArgs(args, &a); err != nil {
		return engine.ToolResult{}, fmt.Errorf("generatetools: generate_widget: %w", err)
	}
	if a.Name == "" {
		return engine.ToolResult{}, errors.New(`generatetools: generate_widget: missing required argument "name"`)
	}
	if strings.ContainsAny(a.Name, `/\`) || strings.Contains(a.Name, "..") {
		return engine.ToolResult{}, fmt.Errorf("generatetools: generate_widget: name %q must not contain path components", a.Name)
	}
	if a.HTML == "" {
		return engine.ToolResult{}, errors.New(`generatetools: generate_widget: missing required argument "html"`)
	}
	if hc.Workspace == nil {
		return tools.Unavailable("workspace file"), nil
	}

	name := a.Name
	if !strings.HasSuffix(name, ".html") {
		name += ".html"
	}
	path := widgetDir + "/" + name
	if err := hc.Workspace.WriteFile(ctx, path, []byte(a.HTML)); err != nil {
		return engine.ToolResult{}, fmt.Errorf("generatetools: generate_widget: %w", err)
	}

	title := a.Title
	if title == "" {
		title = a.Name
	}
	if hc.Windows == nil {
		return engine.ToolResult{
			Success: true,
			Message: fmt.Sprintf("Saved the widget to %s. Window control is unavailable, so open it from the files app.", path),
			Data:    map[string]any{"path": path},
		}, nil
	}

	id, err := hc.Windows.OpenWindow(ctx, host.WindowSpec{
		App:    "widget",
		Title:  title,
		URL:    path,
		Width:  a.Width,
		Height: a.Height,
	})
	if err != nil {
		return engine.ToolResult{}, fmt.Errorf("generatetools: generate_widget: %w", err)
	}
	return engine.ToolResult{
		Success: true,
		Message: fmt.Sprintf("Created the %q widget and opened it in window %s.", title, id),
		Data:    map[string]any{"path": path, "window_id": id},
	}, nil
}

// NewTools constructs the widget generation tool set.
func NewTools() []engine.ToolDefinition {
	return []engine.ToolDefinition{
		{
			Name:        "generate_widget",
			Description: "Save a self-contained HTML widget into the workspace and open it in its own window. Use this for clocks, counters, small dashboards, and similar live views.",
			Category:    engine.CategoryGenerate,
			Parameters: map[string]engine.ParamSpec{
				"name": {
					Type:        engine.TypeString,
					Description: "Widget file name without folders, e.g. pomodoro-timer.",
				},
				"html": {
					Type:        engine.TypeString,
					Description: "Complete HTML document, including any styles and scripts it needs.",
				},
				"title": {
					Type:        engine.TypeString,
					Description: "Window title. Defaults to the widget name.",
					Optional:    true,
				},
				"width": {
					Type:        engine.TypeInteger,
					Description: "Window width hint in pixels.",
					Optional:    true,
				},
				"height": {
					Type:        engine.TypeInteger,
					Description: "Window height hint in pixels.",
					Optional:    true,
				},
			},
			Handler: generateWidget,
		},
	}
}
