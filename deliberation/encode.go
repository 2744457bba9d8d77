package deliberation

import (
	"encoding/json"
	"strings"
)

// decodeJSON unmarshals a model response into T, tolerating markdown
// code fences around the payload.
func decodeJSON[T any](raw string) (T, error) {
	var out T
	err := json.Unmarshal([]byte(stripFences(raw)), &out)
	return out, err
}

// extractJSON finds the first balanced {...} object embedded in free
// text and decodes it. Models sometimes wrap their JSON in prose.
func extractJSON[T any](raw string) (T, bool) {
	var out T
	s := stripFences(raw)
	start := strings.Index(s, "{")
	if start < 0 {
		return out, false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				if err := json.Unmarshal([]byte(s[start:i+1]), &out); err == nil {
					return out, true
				}
				return out, false
			}
		}
	}
	return out, false
}

func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if after, ok := strings.CutPrefix(s, "```json"); ok {
		s = after
	} else if after, ok := strings.CutPrefix(s, "```"); ok {
		s = after
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
