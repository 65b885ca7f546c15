// Package shelltools provides the built-in tool for running commands inside
// the NeuroOS workspace sandbox.
//
// One tool is exported via [NewTools]:
//   - "run_command" — execute a shell command and capture its output.
//
// The command runs on the shell side of the [host.Shell] capability; a
// non-zero exit status is reported in the result, not as a Go error. The
// handler is safe for concurrent use.
package shelltools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chatit-cloud/neuroos/internal/engine"
	"github.com/chatit-cloud/neuroos/internal/tools"
	"github.com/chatit-cloud/neuroos/pkg/host"
)

// maxInlineBytes caps how much captured output is echoed into the
// conversational message fed back to the model.
const maxInlineBytes = 8 << 10

// runCommandArgs is the decoded input for the "run_command" tool.
type runCommandArgs struct {
	// Command is the command line to execute.
	Command string `json:"command"`

	// Cwd is the working directory, workspace-relative. Empty means the
	// workspace root.
	Cwd string `json:"cwd,omitempty"`
}

func runCommand(ctx context.Context, args map[string]any, hc *host.Context) (engine.ToolResult, error) {
	var a runCommandArgs
	if err := tools.DecodeArgs(args, &a); err != nil {
		return engine.ToolResult{}, fmt.Errorf("shelltools: run_command: %w", err)
	}
	if a.Command == "" {
		return engine.ToolResult{}, errors.New(`shelltools: run_command: missing required argument "command"`)
	}
	if hc.Shell == nil {
		return tools.Unavailable("command execution"), nil
	}

	res, err := hc.Shell.RunShell(ctx, a.Command, a.Cwd)
	if err != nil {
		return engine.ToolResult{}, fmt.Errorf("shelltools: run_command: %w", err)
	}

	data := map[string]any{
		"stdout":    res.Stdout,
		"stderr":    res.Stderr,
		"exit_code": res.ExitCode,
	}
	return engine.ToolResult{
		Success: res.ExitCode == 0,
		Message: formatOutcome(res),
		Data:    data,
	}, nil
}

// formatOutcome renders a captured command result for the model: exit status
// first when non-zero, then whichever streams produced output.
func formatOutcome(res host.ShellResult) string {
	var b strings.Builder
	if res.ExitCode != 0 {
		fmt.Fprintf(&b, "The command exited with status %d.", res.ExitCode)
	} else if res.Stdout == "" && res.Stderr == "" {
		return "The command completed with no output."
	}
	if res.Stdout != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(tools.Clip(strings.TrimRight(res.Stdout, "\n"), maxInlineBytes))
	}
	if res.Stderr != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("stderr:\n")
		b.WriteString(tools.Clip(strings.TrimRight(res.Stderr, "\n"), maxInlineBytes))
	}
	return b.String()
}

// NewTools constructs the command execution tool set.
func NewTools() []engine.ToolDefinition {
	return []engine.ToolDefinition{
		{
			Name:        "run_command",
			Description: "Run a shell command inside the workspace sandbox and return its output and exit status. Ask the user before running anything destructive.",
			Category:    engine.CategoryShell,
			Parameters: map[string]engine.ParamSpec{
				"command": {
					Type:        engine.TypeString,
					Description: "Command line to execute.",
				},
				"cwd": {
					Type:        engine.TypeString,
					Description: "Working directory, workspace-relative. Omit for the workspace root.",
					Optional:    true,
				},
			},
			RequiresConfirmation: true,
			Handler:              runCommand,
		},
	}
}
