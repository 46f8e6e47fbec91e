// internal/parser/repair.go
package parser

import (
	"strings"
	"unicode"
)

// Best-effort repair of near-valid JSON before structural parsing.
// Generated graphs and historical exports arrive with code fences, trailing
// commas, bare keys and truncated tails (LLM outputs cut by max tokens).
// Repair is a single boundary step: everything downstream assumes a strictly
// valid, typed graph and never re-checks shape.

// stripCodeFences removes common LLM wrappers: ```json ... ``` or ``` ... ```
func stripCodeFences(text string) string {
	s := strings.TrimSpace(text)
	if s == "" {
		return ""
	}
	if strings.HasPrefix(s, "```") {
		// remove first line
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = strings.TrimSpace(s[idx+1:])
		}
		// remove ending fence
		if end := strings.LastIndex(s, "```"); end >= 0 {
			s = strings.TrimSpace(s[:end])
		}
	}
	return strings.TrimSpace(s)
}

// extractJSONValueText returns the outermost JSON object or array embedded in
// raw text, tolerating prose before and after it.
func extractJSONValueText(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	objStart := strings.Index(s, "{")
	arrStart := strings.Index(s, "[")

	start := objStart
	if start < 0 || (arrStart >= 0 && arrStart < start) {
		start = arrStart
	}
	if start < 0 {
		return ""
	}

	end := strings.LastIndex(s, "}")
	if s[start] == '[' {
		end = strings.LastIndex(s, "]")
	}
	if end <= start {
		// keep the tail: truncation recovery appends the missing closers
		return strings.TrimSpace(s[start:])
	}
	return strings.TrimSpace(s[start : end+1])
}

// removeTrailingCommas drops commas that directly precede a closing brace or
// bracket. String contents are left untouched.
func removeTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			b.WriteByte(ch)
			if escaped {
				escaped = false
				continue
			}
			if ch == '\\' {
				escaped = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}
		if ch == '"' {
			inString = true
			b.WriteByte(ch)
			continue
		}
		if ch == ',' {
			// look ahead past whitespace
			j := i + 1
			for j < len(s) && isJSONSpace(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue // drop the comma
			}
		}
		b.WriteByte(ch)
	}
	return b.String()
}

// quoteBareKeys wraps unquoted object keys in double quotes:
// {next: "1-2"} becomes {"next": "1-2"}.
func quoteBareKeys(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)

	inString := false
	escaped := false
	expectKey := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			b.WriteByte(ch)
			if escaped {
				escaped = false
				continue
			}
			if ch == '\\' {
				escaped = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		switch {
		case ch == '"':
			inString = true
			expectKey = false
			b.WriteByte(ch)
		case ch == '{':
			expectKey = true
			b.WriteByte(ch)
		case ch == ',':
			expectKey = true
			b.WriteByte(ch)
		case ch == ':' || ch == '[' || ch == '}' || ch == ']':
			expectKey = false
			b.WriteByte(ch)
		case expectKey && isBareKeyStart(ch):
			// scan the bare identifier up to ':' and quote it
			j := i
			for j < len(s) && isBareKeyChar(s[j]) {
				j++
			}
			k := j
			for k < len(s) && isJSONSpace(s[k]) {
				k++
			}
			if k < len(s) && s[k] == ':' {
				b.WriteByte('"')
				b.WriteString(s[i:j])
				b.WriteByte('"')
				i = j - 1
				expectKey = false
				continue
			}
			b.WriteByte(ch)
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}

// closeTruncated recovers from output cut mid-document: it cuts back to the
// last position where a complete value ended (a dangling key, separator or
// partial literal is dropped) and appends the missing closers in nesting
// order. A document that is already balanced passes through unchanged.
func closeTruncated(s string) string {
	var stack []byte // pending closers, innermost last

	inString := false
	escaped := false
	stringIsKey := false // current string is an object key
	expectKey := false   // inside an object, next string is a key

	cut := -1 // index just past the last complete value
	var cutStack []byte

	markCut := func(end int) {
		cut = end
		cutStack = append(cutStack[:0], stack...)
	}

	litStart := -1 // start of a bare literal (number, true/false/null)
	endLiteral := func(end int) {
		if litStart < 0 {
			return
		}
		if literalIsComplete(s[litStart:end]) {
			markCut(end)
		}
		litStart = -1
	}

	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			if escaped {
				escaped = false
				continue
			}
			if ch == '\\' {
				escaped = true
				continue
			}
			if ch == '"' {
				inString = false
				if !stringIsKey {
					markCut(i + 1)
				}
			}
			continue
		}

		switch ch {
		case '"':
			endLiteral(i)
			inString = true
			stringIsKey = expectKey
			expectKey = false
		case '{':
			endLiteral(i)
			stack = append(stack, '}')
			expectKey = true
		case '[':
			endLiteral(i)
			stack = append(stack, ']')
			expectKey = false
		case '}', ']':
			endLiteral(i)
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			expectKey = len(stack) > 0 && stack[len(stack)-1] == '}'
			markCut(i + 1)
		case ',':
			endLiteral(i)
			expectKey = len(stack) > 0 && stack[len(stack)-1] == '}'
		case ':':
			endLiteral(i)
			expectKey = false
		default:
			if isJSONSpace(ch) {
				endLiteral(i)
			} else if litStart < 0 {
				litStart = i
			}
		}
	}
	if !inString {
		endLiteral(len(s))
	}

	if !inString && len(stack) == 0 {
		return s
	}
	if cut < 0 {
		return s
	}

	out := strings.TrimRightFunc(s[:cut], func(r rune) bool {
		return unicode.IsSpace(r) || r == ','
	})
	for i := len(cutStack) - 1; i >= 0; i-- {
		out += string(cutStack[i])
	}
	return out
}

// literalIsComplete reports whether a bare JSON literal parses on its own.
func literalIsComplete(tok string) bool {
	switch tok {
	case "true", "false", "null":
		return true
	case "":
		return false
	}
	// numbers: any digit run is acceptable, a cut tail still parses
	for i := 0; i < len(tok); i++ {
		ch := tok[i]
		if (ch >= '0' && ch <= '9') || ch == '-' || ch == '+' || ch == '.' || ch == 'e' || ch == 'E' {
			continue
		}
		return false
	}
	last := tok[len(tok)-1]
	return last >= '0' && last <= '9'
}

// Repair runs the full repair chain on near-valid structured text.
func Repair(raw string) string {
	s := stripCodeFences(raw)
	if extracted := extractJSONValueText(s); extracted != "" {
		s = extracted
	}
	s = quoteBareKeys(s)
	s = removeTrailingCommas(s)
	s = closeTruncated(s)
	// truncation recovery can expose new trailing commas ({"a":1,} after cut)
	s = removeTrailingCommas(s)
	return s
}

func isJSONSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}

func isBareKeyStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isBareKeyChar(ch byte) bool {
	return isBareKeyStart(ch) || (ch >= '0' && ch <= '9') || ch == '-'
}
