package searchrequest

import (
	"encoding/json"
	"strings"
)

func tryJSONStringArray(v string) ([]string, bool) {
	var arr []string
	if err := json.Unmarshal([]byte(v), &arr); err != nil {
		return nil, false
	}
	return arr, true
}

func splitTrim(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}
