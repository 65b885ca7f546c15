package engine

import "strings"

// StripToolCalls removes tool-call syntax from text destined for human
// display. It is pure and idempotent: applying it to its own output with an
// empty call list returns the same string.
//
// Steps, in order:
//
//  1. Remove the first occurrence of each call's RawMatch.
//  2. Streaming safety: drop a trailing unterminated fenced JSON block and
//     a trailing unterminated bare object containing a "tool" key, so a
//     call still streaming in never leaks half-finished JSON to the user.
//  3. Collapse fence pairs left empty by removal, then trim surrounding
//     whitespace.
func StripToolCalls(text string, calls []ParsedToolCall) string {
	out := text
	for _, call := range calls {
		if call.RawMatch == "" {
			continue
		}
		if i := strings.Index(out, call.RawMatch); i >= 0 {
			out = out[:i] + out[i+len(call.RawMatch):]
		}
	}

	// Dropping one dangling fragment can expose another; iterate to a fixed
	// point so a second sanitizer pass has nothing left to remove.
	for {
		before := out
		out = dropUnterminatedFence(out)
		out = dropUnterminatedBare(out)
		out = collapseEmptyFences(out)
		if out == before {
			break
		}
	}
	return strings.TrimSpace(out)
}

// dropUnterminatedFence removes a suffix consisting of an opening fence
// (optional language tag) followed by an object brace with no closing fence
// before end of text. A fence whose tag has arrived but whose body has not
// is dropped as well: closing fences are never followed by a tag, so the
// rule can only hide an opener the stream has not finished yet.
func dropUnterminatedFence(s string) string {
	i := strings.LastIndex(s, fence)
	if i < 0 {
		return s
	}
	// i is the last fence, so anything after it is by definition unclosed.
	rest := s[i+len(fence):]
	j := 0
	for j < len(rest) && isTagByte(rest[j]) {
		j++
	}
	tagLen := j
	for j < len(rest) && isSpaceByte(rest[j]) {
		j++
	}
	if j < len(rest) && rest[j] == '{' {
		return s[:i]
	}
	if tagLen > 0 && j == len(rest) {
		return s[:i]
	}
	return s
}

// dropUnterminatedBare removes a suffix that looks like a bare tool-call
// object whose closing brace has not arrived: a '{' preceding the last
// "tool" key with no balanced close before end of text.
func dropUnterminatedBare(s string) string {
	k := strings.LastIndex(s, toolKey)
	if k < 0 {
		return s
	}
	p := strings.LastIndexByte(s[:k], '{')
	if p < 0 {
		return s
	}
	if _, ok := scanObject(s, p); ok {
		// The object closes; it is not a dangling fragment.
		return s
	}
	return s[:p]
}

// collapseEmptyFences removes fence pairs whose body is empty (an optional
// language tag and whitespace only).
func collapseEmptyFences(s string) string {
	for {
		start, end, ok := findEmptyFencePair(s)
		if !ok {
			return s
		}
		s = s[:start] + s[end:]
	}
}

// findEmptyFencePair locates the first empty fence pair and returns the
// span covering both fences.
func findEmptyFencePair(s string) (start, end int, ok bool) {
	pos := 0
	for {
		rel := strings.Index(s[pos:], fence)
		if rel < 0 {
			return 0, 0, false
		}
		i := pos + rel
		j := i + len(fence)
		for j < len(s) && isTagByte(s[j]) {
			j++
		}
		for j < len(s) && isSpaceByte(s[j]) {
			j++
		}
		if strings.HasPrefix(s[j:], fence) {
			return i, j + len(fence), true
		}
		pos = i + len(fence)
	}
}
