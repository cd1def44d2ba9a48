package patterns

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrEmptyResponse = errors.New("empty response from model")

// DecodeResponse parses the model's raw text into patterns. Models
// sometimes wrap JSON in markdown fences or add prose around it; both are
// stripped before decoding.
func DecodeResponse(raw string) ([]Pattern, error) {
	clean := cleanModelJSON(raw)
	if clean == "" {
		return nil, ErrEmptyResponse
	}

	var resp Response
	dec := json.NewDecoder(strings.NewReader(clean))
	if err := dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode model response: %w", err)
	}
	return resp.RecurringPatterns, nil
}

func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	// Handle ```json ... ``` or ``` ... ``` wrappers.
	if strings.HasPrefix(s, "```") {
		idx := strings.Index(s, "\n")
		if idx == -1 {
			return ""
		}
		s = strings.TrimSpace(s[idx+1:])
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = strings.TrimSpace(s[:idx])
	}

	// Keep only the outermost object.
	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = s[start : end+1]
		}
	}
	return strings.TrimSpace(s)
}
