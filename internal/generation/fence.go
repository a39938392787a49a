package generation

import "strings"

const fence = "```"

// StripCodeFences returns the body of the first Markdown code block in s, or
// s trimmed when it has no fence. The info string after the opening fence
// (sparql, SPARQL, sql) is dropped.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	start := strings.Index(s, fence)
	if start < 0 {
		return s
	}
	body := s[start+len(fence):]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && !strings.Contains(body[:nl], fence) {
		if info := strings.TrimSpace(body[:nl]); info == "" || isInfoString(info) {
			body = body[nl+1:]
		}
	}
	if end := strings.Index(body, fence); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

func isInfoString(s string) bool {
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			return false
		}
	}
	return true
}
