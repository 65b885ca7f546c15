// Package tools holds the helpers shared by NeuroOS's built-in capability
// plugin packages. Each sub-package exports a constructor that returns a
// slice of [engine.ToolDefinition] values ready for registration; the
// helpers here cover the work every handler repeats: decoding the parsed
// argument map into a typed struct, reporting a missing shell capability,
// and clamping large payloads before they reach the model.
package tools

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/chatit-cloud/neuroos/internal/engine"
)

// DecodeArgs converts the parsed argument map of a tool call into dst, which
// must be a pointer to a struct with json tags. The conversion goes through
// a JSON round-trip so the usual decoding rules apply: unknown keys are
// ignored, missing keys leave zero values, and type mismatches (a string
// where a number is declared) surface as an error.
func DecodeArgs(args map[string]any, dst any) error {
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("tools: encode arguments: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("tools: decode arguments: %w", err)
	}
	return nil
}

// Unavailable builds the failure result a handler returns when the shell did
// not supply the capability it needs. The message is conversational because
// it is fed back to the model, which should relay the limitation rather
// than retry.
func Unavailable(capability string) engine.ToolResult {
	return engine.ToolResult{
		Success: false,
		Message: fmt.Sprintf("The shell has not granted %s access in this session, so this tool cannot run right now.", capability),
	}
}

// Clip truncates s to at most max bytes without splitting a UTF-8 sequence,
// appending a note with the number of bytes removed. Strings within the
// limit are returned unchanged. Handlers use it to keep file contents and
// command output from flooding the model's context window.
func Clip(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + fmt.Sprintf("\n[truncated %d bytes]", len(s)-cut)
}
