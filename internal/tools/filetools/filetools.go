// Package filetools provides the built-in tools for working with files in
// the user's NeuroOS workspace.
//
// Five tools are exported via [NewTools]:
//   - "read_file"     — read a file and return its text content.
//   - "write_file"    — write text content to a file.
//   - "list_files"    — list the entries of a folder.
//   - "create_folder" — create a folder (and missing parents).
//   - "delete_path"   — delete a file or folder; flagged for confirmation.
//
// Path resolution and sandboxing live on the shell side of the
// [host.Workspace] capability; handlers pass paths through as the model
// produced them. All handlers are safe for concurrent use.
package filetools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chatit-cloud/neuroos/internal/engine"
	"github.com/chatit-cloud/neuroos/internal/tools"
	"github.com/chatit-cloud/neuroos/pkg/host"
)

// maxInlineBytes caps how much file content or directory listing is echoed
// into the conversational message fed back to the model.
const maxInlineBytes = 8 << 10

// pathArgs is the decoded input shared by the single-path tools.
type pathArgs struct {
	// Path is the file or folder path, workspace-relative unless absolute.
	Path string `json:"path"`
}

// writeFileArgs is the decoded input for the "write_file" tool.
type writeFileArgs struct {
	Path string `json:"path"`

	// Content is the text content to write.
	Content string `json:"content"`
}

func readFile(ctx context.Context, args map[string]any, hc *host.Context) (engine.ToolResult, error) {
	var a pathArgs
	if err := tools.DecodeArgs(args, &a); err != nil {
		return engine.ToolResult{}, fmt.Errorf("filetools: read_file: %w", err)
	}
	if a.Path == "" {
		return engine.ToolResult{}, errors.New(`filetools: read_file: missing required argument "path"`)
	}
	if hc.Workspace == nil {
		return tools.Unavailable("workspace file"), nil
	}

	data, err := hc.Workspace.ReadFile(ctx, a.Path)
	if err != nil {
		return engine.ToolResult{}, fmt.Errorf("filetools: read_file: %w", err)
	}
	if len(data) == 0 {
		return engine.ToolResult{
			Success: true,
			Message: fmt.Sprintf("The file %s is empty.", a.Path),
			Data:    map[string]any{"path": a.Path, "size": 0},
		}, nil
	}
	return engine.ToolResult{
		Success: true,
		Message: fmt.Sprintf("Contents of %s:\n%s", a.Path, tools.Clip(string(data), maxInlineBytes)),
		Data:    map[string]any{"path": a.Path, "size": len(data)},
	}, nil
}

func writeFile(ctx context.Context, args map[string]any, hc *host.Context) (engine.ToolResult, error) {
	var a writeFileArgs
	if err := tools.DecodeArgs(args, &a); err != nil {
		return engine.ToolResult{}, fmt.Errorf("filetools: write_file: %w", err)
	}
	if a.Path == "" {
		return engine.ToolResult{}, errors.New(`filetools: write_file: missing required argument "path"`)
	}
	if hc.Workspace == nil {
		return tools.Unavailable("workspace file"), nil
	}

	if err := hc.Workspace.WriteFile(ctx, a.Path, []byte(a.Content)); err != nil {
		return engine.ToolResult{}, fmt.Errorf("filetools: write_file: %w", err)
	}
	return engine.ToolResult{
		Success: true,
		Message: fmt.Sprintf("Wrote %d bytes to %s.", len(a.Content), a.Path),
		Data:    map[string]any{"path": a.Path, "bytes_written": len(a.Content)},
	}, nil
}

func listFiles(ctx context.Context, args map[string]any, hc *host.Context) (engine.ToolResult, error) {
	var a pathArgs
	if err := tools.DecodeArgs(args, &a); err != nil {
		return engine.ToolResult{}, fmt.Errorf("filetools: list_files: %w", err)
	}
	if hc.Workspace == nil {
		return tools.Unavailable("workspace file"), nil
	}

	dir := a.Path
	if dir == "" {
		dir = "."
	}
	entries, err := hc.Workspace.ListDir(ctx, dir)
	if err != nil {
		return engine.ToolResult{}, fmt.Errorf("filetools: list_files: %w", err)
	}

	display := a.Path
	if display == "" || display == "." {
		display = "The workspace"
	}
	if len(entries) == 0 {
		return engine.ToolResult{
			Success: true,
			Message: fmt.Sprintf("%s is empty.", display),
			Data:    entries,
		}, nil
	}

	var b strings.Builder
	if len(entries) == 1 {
		fmt.Fprintf(&b, "%s contains 1 entry:\n", display)
	} else {
		fmt.Fprintf(&b, "%s contains %d entries:\n", display, len(entries))
	}
	for _, e := range entries {
		if e.IsDir {
			fmt.Fprintf(&b, "- %s/\n", e.Name)
		} else {
			fmt.Fprintf(&b, "- %s (%d bytes)\n", e.Name, e.Size)
		}
	}
	return engine.ToolResult{
		Success: true,
		Message: tools.Clip(strings.TrimRight(b.String(), "\n"), maxInlineBytes),
		Data:    entries,
	}, nil
}

func createFolder(ctx context.Context, args map[string]any, hc *host.Context) (engine.ToolResult, error) {
	var a pathArgs
	if err := tools.DecodeArgs(args, &a); err != nil {
		return engine.ToolResult{}, fmt.Errorf("filetools: create_folder: %w", err)
	}
	if a.Path == "" {
		return engine.ToolResult{}, errors.New(`filetools: create_folder: missing required argument "path"`)
	}
	if hc.Workspace == nil {
		return tools.Unavailable("workspace file"), nil
	}

	if err := hc.Workspace.MakeDir(ctx, a.Path); err != nil {
		return engine.ToolResult{}, fmt.Errorf("filetools: create_folder: %w", err)
	}
	return engine.ToolResult{
		Success: true,
		Message: fmt.Sprintf("Created folder %s.", a.Path),
		Data:    map[string]any{"path": a.Path},
	}, nil
}

func deletePath(ctx context.Context, args map[string]any, hc *host.Context) (engine.ToolResult, error) {
	var a pathArgs
	if err := tools.DecodeArgs(args, &a); err != nil {
		return engine.ToolResult{}, fmt.Errorf("filetools: delete_path: %w", err)
	}
	if a.Path == "" {
		return engine.ToolResult{}, errors.New(`filetools: delete_path: missing required argument "path"`)
	}
	if hc.Workspace == nil {
		return tools.Unavailable("workspace file"), nil
	}

	if err := hc.Workspace.Remove(ctx, a.Path); err != nil {
		return engine.ToolResult{}, fmt.Errorf("filetools: delete_path: %w", err)
	}
	return engine.ToolResult{
		Success: true,
		Message: fmt.Sprintf("Deleted %s.", a.Path),
		Data:    map[string]any{"path": a.Path},
	}, nil
}

// NewTools constructs the workspace file tool set.
func NewTools() []engine.ToolDefinition {
	return []engine.ToolDefinition{
		{
			Name:        "read_file",
			Description: "Read a file from the user's workspace and return its text content.",
			Category:    engine.CategoryFile,
			Parameters: map[string]engine.ParamSpec{
				"path": {
					Type:        engine.TypeString,
					Description: "Workspace-relative path of the file to read (e.g. notes/today.md).",
				},
			},
			Handler: readFile,
		},
		{
			Name:        "write_file",
			Description: "Write text content to a file in the user's workspace, creating it and any missing parent folders as needed.",
			Category:    engine.CategoryFile,
			Parameters: map[string]engine.ParamSpec{
				"path": {
					Type:        engine.TypeString,
					Description: "Workspace-relative path of the file to write.",
				},
				"content": {
					Type:        engine.TypeString,
					Description: "Text content to write. Overwrites any existing content.",
				},
			},
			Handler: writeFile,
		},
		{
			Name:        "list_files",
			Description: "List the files and folders inside a workspace folder.",
			Category:    engine.CategoryFile,
			Parameters: map[string]engine.ParamSpec{
				"path": {
					Type:        engine.TypeString,
					Description: "Folder to list. Omit for the workspace root.",
					Optional:    true,
				},
			},
			Handler: listFiles,
		},
		{
			Name:        "create_folder",
			Description: "Create a folder in the user's workspace, including missing parents.",
			Category:    engine.CategoryFile,
			Parameters: map[string]engine.ParamSpec{
				"path": {
					Type:        engine.TypeString,
					Description: "Workspace-relative path of the folder to create.",
				},
			},
			Handler: createFolder,
		},
		{
			Name:        "delete_path",
			Description: "Delete a file or folder (recursively) from the user's workspace. Ask the user before deleting anything they did not explicitly name.",
			Category:    engine.CategoryFile,
			Parameters: map[string]engine.ParamSpec{
				"path": {
					Type:        engine.TypeString,
					Description: "Workspace-relative path to delete.",
				},
			},
			RequiresConfirmation: true,
			Handler:              deletePath,
		},
	}
}
