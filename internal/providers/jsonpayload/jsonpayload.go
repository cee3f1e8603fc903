// Package jsonpayload pulls a JSON document out of model output, which often
// wraps it in a code fence or a sentence of prose.
package jsonpayload

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNoJSON means the text holds no complete JSON object or array.
var ErrNoJSON = errors.New("jsonpayload: no json document found")

// Parse decodes the first JSON document found in raw into T.
func Parse[T any](raw string) (T, error) {
	var out T
	doc := ExtractFragment(raw)
	if doc == "" {
		return out, ErrNoJSON
	}
	if err := json.Unmarshal([]byte(doc), &out); err != nil {
		return out, fmt.Errorf("jsonpayload: decode: %w", err)
	}
	return out, nil
}

// ExtractFragment returns the first balanced {...} or [...] span in raw.
// Brackets inside JSON strings are ignored. It returns "" when no span closes.
func ExtractFragment(raw string) string {
	var (
		depth    int
		start    = -1
		inString bool
		escaped  bool
	)
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			if start >= 0 {
				inString = true
			}
		case '{', '[':
			if start < 0 {
				start = i
			}
			depth++
		case '}', ']':
			if start < 0 {
				continue
			}
			depth--
			if depth == 0 {
				return raw[start : i+1]
			}
		}
	}
	return ""
}
