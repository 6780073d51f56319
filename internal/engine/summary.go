package engine

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// maxResponseBytes bounds how much of a downstream body is ever read.
const maxResponseBytes = 64 << 10

// maxSampleErrors caps how many error strings a summary carries.
const maxSampleErrors = 3

func readBounded(r io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, maxResponseBytes))
}

// extractSummary pulls the allow-listed fields out of a successful JSON
// response. Non-JSON or empty bodies yield no summary; unknown fields are
// dropped on the floor.
func extractSummary(body []byte) *Summary {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return nil
	}

	s := &Summary{
		Processed: intField(m, "processed"),
		Succeeded: intField(m, "succeeded"),
		Failed:    intField(m, "failed"),
		Skipped:   intField(m, "skipped"),
	}

	if raw, ok := m["errors"].([]any); ok {
		for _, v := range raw {
			if len(s.SampleErrors) >= maxSampleErrors {
				break
			}
			str, ok := v.(string)
			if !ok {
				str = fmt.Sprint(v)
			}
			str = strings.TrimSpace(str)
			if str != "" {
				s.SampleErrors = append(s.SampleErrors, str)
			}
		}
	}

	if s.Processed == 0 && s.Succeeded == 0 && s.Failed == 0 && s.Skipped == 0 && len(s.SampleErrors) == 0 {
		return nil
	}
	return s
}

// errorMessage derives a task error from a non-2xx response: the JSON
// "error" or "message" field when present, otherwise a generic status
// marker.
func errorMessage(status int, body []byte) string {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err == nil {
		if msg, ok := m["error"].(string); ok && strings.TrimSpace(msg) != "" {
			return msg
		}
		if msg, ok := m["message"].(string); ok && strings.TrimSpace(msg) != "" {
			return msg
		}
	}
	return fmt.Sprintf("HTTP %d", status)
}

func intField(m map[string]any, key string) int {
	v, ok := m[key]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	default:
		return 0
	}
}
