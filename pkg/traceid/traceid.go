// Package traceid implements the pure trace-id extraction function (spec
// §4.5): the last double-quoted substring on the line containing a match.
//
// The backward/forward walk to the enclosing line's boundaries is adapted
// from the teacher's pkg/matcher/context.go (ExtractContext/extractBefore/
// extractAfter), which performs the identical byte-by-byte newline walk to
// pull N lines of context around a match; here it is specialised to "the
// one line containing the match" and followed by a quote scan that
// ExtractContext has no need for.
package traceid

// Extract returns the contents of the last complete double-quoted
// substring on the line enclosing [start, end), or ("", false) if there is
// none. It is a no-op (never an error) when data is empty or the range is
// out of bounds (§4.5 step 1, §7).
//
// Extraction must run on chunk-local coordinates before any shift to
// global offsets (§4.5, §9 "trace-id extraction order"); callers own that
// ordering, Extract itself is range-agnostic about global vs local.
func Extract(data []byte, start, end int) (string, bool) {
	if len(data) == 0 {
		return "", false
	}
	if start < 0 || end < start || end > len(data) {
		return "", false
	}

	lineStart := lineBoundaryBefore(data, start)
	lineEnd := lineBoundaryAfter(data, end)

	return lastQuotedSubstring(data[lineStart:lineEnd])
}

// lineBoundaryBefore scans backward from pos to the byte just after the
// nearest preceding newline, or 0 if there is none.
func lineBoundaryBefore(data []byte, pos int) int {
	for i := pos - 1; i >= 0; i-- {
		if data[i] == '\n' {
			return i + 1
		}
	}
	return 0
}

// lineBoundaryAfter scans forward from pos to the nearest newline (the
// newline itself is excluded from the line), or len(data) if there is none.
func lineBoundaryAfter(data []byte, pos int) int {
	for i := pos; i < len(data); i++ {
		if data[i] == '\n' {
			return i
		}
	}
	return len(data)
}

// lastQuotedSubstring scans left-to-right collecting double-quoted
// substrings, recognising \" and \\ as escapes inside quotes, and returns
// the contents of the last *complete* one. An unterminated trailing quote
// is not counted (never returned truncated); a complete substring before
// it is still returned (§4.5 step 4).
func lastQuotedSubstring(line []byte) (string, bool) {
	var last []byte
	found := false

	i := 0
	for i < len(line) {
		if line[i] != '"' {
			i++
			continue
		}
		// line[i] is an opening quote; scan for its close.
		start := i + 1
		j := start
		closed := false
		for j < len(line) {
			switch line[j] {
			case '\\':
				if j+1 < len(line) && (line[j+1] == '"' || line[j+1] == '\\') {
					j += 2
					continue
				}
				j++
			case '"':
				closed = true
			default:
				j++
			}
			if closed {
				break
			}
		}
		if !closed {
			// Unterminated trailing quote: stop, don't count it.
			break
		}
		last = unescape(line[start:j])
		found = true
		i = j + 1
	}

	if !found {
		return "", false
	}
	return string(last), true
}

// unescape resolves \" and \\ within an already-delimited quoted substring.
func unescape(s []byte) []byte {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && (s[i+1] == '"' || s[i+1] == '\\') {
			out = append(out, s[i+1])
			i++
			continue
		}
		out = append(out, s[i])
	}
	return out
}
