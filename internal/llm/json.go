package llm

import (
	"encoding/json"
	"errors"
	"strings"
)

// CleanModelJSON strips Markdown fences and surrounding chatter from a model response.
func CleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		idx := strings.Index(s, "\n")
		if idx == -1 {
			return s
		}
		s = strings.TrimSpace(s[idx+1:])
	}

	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	return strings.TrimSpace(s)
}

// ArraySlice returns the substring from the first '[' to the last ']', if any.
func ArraySlice(s string) (string, bool) {
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start == -1 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// DecodeItems extracts a list of JSON objects from a model response. It tries
// an embedded JSON array first, then the whole body as either an array or an
// object holding the list under one of fields. Non-object elements are skipped.
func DecodeItems(raw string, fields ...string) ([]map[string]interface{}, error) {
	body := CleanModelJSON(raw)
	if body == "" {
		return nil, errors.New("empty response")
	}

	if arr, ok := ArraySlice(body); ok {
		var items []interface{}
		if err := json.Unmarshal([]byte(arr), &items); err == nil {
			return objects(items), nil
		}
	}

	var whole interface{}
	if err := json.Unmarshal([]byte(body), &whole); err != nil {
		return nil, err
	}

	switch v := whole.(type) {
	case []interface{}:
		return objects(v), nil
	case map[string]interface{}:
		for _, f := range fields {
			if list, ok := v[f].([]interface{}); ok {
				return objects(list), nil
			}
		}
		return nil, errors.New("response object has no list field")
	default:
		return nil, errors.New("response is neither an array nor an object")
	}
}

func objects(items []interface{}) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(items))
	for _, it := range items {
		if m, ok := it.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}
