package engine

import (
	"encoding/json"
	"strings"
)

// scanWindow bounds every balanced-delimiter scan in bytes. Model output can
// degenerate into an endless unclosed brace soup; a window keeps extraction
// linear on pathological input. An object that does not close within the
// window produces no match for that start position.
const scanWindow = 2000

// fence delimits code blocks in model output.
const fence = "```"

// toolKey is the JSON member the scanner tier anchors on.
const toolKey = `"tool"`

// ParseToolCalls extracts every tool call embedded in text, in left-to-right
// order. It is deterministic, total, and never panics; text without calls
// yields an empty result.
//
// Extraction runs in two tiers:
//
//  1. Fenced: code blocks (triple backtick, optional language tag) whose
//     body is a single JSON object. RawMatch covers the whole block
//     including the fences.
//  2. Scanner: every occurrence of a "tool" key, resolved to its enclosing
//     object via a balanced-delimiter scan that tracks brace depth, in-string
//     state, and escape state. RawMatch covers the object only.
//
// A tier wins only when at least one of its candidates survives
// [tryParseToolCall]; a text whose fenced blocks are all malformed falls
// through to the scanner instead of reporting nothing.
func ParseToolCalls(text string) []ParsedToolCall {
	if calls := parseFencedCalls(text); len(calls) > 0 {
		return calls
	}
	return parseScannedCalls(text)
}

// ExtractionTier reports which tier produced calls: "fenced", "scanner", or
// "none" for an empty list. Fenced raw matches always begin with the fence
// delimiter; scanner matches always begin with the object's opening brace.
func ExtractionTier(calls []ParsedToolCall) string {
	if len(calls) == 0 {
		return "none"
	}
	if strings.HasPrefix(calls[0].RawMatch, fence) {
		return "fenced"
	}
	return "scanner"
}

// parseFencedCalls scans for fenced code blocks containing a single JSON
// object and returns the ones that parse into calls.
func parseFencedCalls(text string) []ParsedToolCall {
	var calls []ParsedToolCall
	pos := 0
	for {
		rel := strings.Index(text[pos:], fence)
		if rel < 0 {
			break
		}
		open := pos + rel

		// Skip the optional language tag, then whitespace. The body must
		// start with an object brace.
		j := open + len(fence)
		for j < len(text) && isTagByte(text[j]) {
			j++
		}
		for j < len(text) && isSpaceByte(text[j]) {
			j++
		}
		if j >= len(text) || text[j] != '{' {
			pos = open + len(fence)
			continue
		}

		body, ok := scanObject(text, j)
		if !ok {
			pos = open + len(fence)
			continue
		}

		// The closing fence must follow the object, whitespace aside.
		k := j + len(body)
		for k < len(text) && isSpaceByte(text[k]) {
			k++
		}
		if !strings.HasPrefix(text[k:], fence) {
			pos = open + len(fence)
			continue
		}

		raw := text[open : k+len(fence)]
		if call, parsed := tryParseToolCall(body, raw); parsed {
			calls = append(calls, call)
		}
		pos = k + len(fence)
	}
	return calls
}

// parseScannedCalls finds bare tool-call objects by anchoring on every
// "tool" key outside previously consumed matches.
func parseScannedCalls(text string) []ParsedToolCall {
	var calls []ParsedToolCall
	floor := 0 // end of the last consumed match
	searchFrom := 0
	for {
		rel := strings.Index(text[searchFrom:], toolKey)
		if rel < 0 {
			break
		}
		keyPos := searchFrom + rel
		call, end, ok := scanCallAt(text, keyPos, floor)
		if ok {
			calls = append(calls, call)
			floor = end
			searchFrom = end
		} else {
			searchFrom = keyPos + len(toolKey)
		}
	}
	return calls
}

// scanCallAt resolves the "tool" key at keyPos to its enclosing object. It
// walks candidate opening braces from nearest to farthest (never past floor
// or the scan window) and returns the first balanced object that spans the
// key and parses into a call, along with the object's end offset.
func scanCallAt(text string, keyPos, floor int) (ParsedToolCall, int, bool) {
	lo := keyPos - scanWindow
	if lo < floor {
		lo = floor
	}
	for p := keyPos; p > lo; {
		idx := strings.LastIndexByte(text[lo:p], '{')
		if idx < 0 {
			break
		}
		p = lo + idx
		raw, ok := scanObject(text, p)
		if !ok || p+len(raw) <= keyPos {
			// Either unterminated within the window or an inner object that
			// closed before the key; try the next brace out.
			continue
		}
		if call, parsed := tryParseToolCall(raw, raw); parsed {
			return call, p + len(raw), true
		}
	}
	return ParsedToolCall{}, 0, false
}

// scanObject returns the balanced JSON object starting at text[start], which
// must be '{'. Braces inside quoted strings and characters behind an
// unconsumed backslash do not affect depth. The scan gives up past the
// window or at end of text.
func scanObject(text string, start int) (string, bool) {
	if start >= len(text) || text[start] != '{' {
		return "", false
	}
	limit := start + scanWindow
	if limit > len(text) {
		limit = len(text)
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < limit; i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1], true
				}
			}
		}
	}
	return "", false
}

// tryParseToolCall normalizes candidate and parses it as a tool call.
// raw becomes the call's RawMatch. Any parse or shape failure yields
// (zero, false); nothing escapes as a panic or error.
func tryParseToolCall(candidate, raw string) (ParsedToolCall, bool) {
	payload := normalizeCandidate(candidate)
	var decoded struct {
		Tool string         `json:"tool"`
		Args map[string]any `json:"args"`
	}
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		return ParsedToolCall{}, false
	}
	if decoded.Tool == "" {
		return ParsedToolCall{}, false
	}
	if decoded.Args == nil {
		decoded.Args = map[string]any{}
	}
	return ParsedToolCall{Tool: decoded.Tool, Args: decoded.Args, RawMatch: raw}, true
}

// normalizeCandidate repairs the two JSON mistakes models make constantly:
// trailing commas before a closing delimiter and single-quoted strings.
// Already-valid payloads pass through untouched so legitimate apostrophes
// and commas inside string values are never corrupted.
func normalizeCandidate(s string) string {
	if json.Valid([]byte(s)) {
		return s
	}
	s = stripTrailingCommas(s)
	if json.Valid([]byte(s)) {
		return s
	}
	return strings.ReplaceAll(s, "'", `"`)
}

// stripTrailingCommas removes commas directly preceding a closing '}' or ']'
// (whitespace aside), skipping commas inside string literals.
func stripTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			b.WriteByte(c)
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
			b.WriteByte(c)
		case '"':
			inString = !inString
			b.WriteByte(c)
		case ',':
			if inString {
				b.WriteByte(c)
				continue
			}
			j := i + 1
			for j < len(s) && isSpaceByte(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isTagByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}
