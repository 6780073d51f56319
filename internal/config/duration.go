package config

import (
	"fmt"
	"strings"
	"time"
)

// Duration-typed config fields (server timeouts, target.client_timeout,
// tasks[].max_duration, storage.busy_timeout) arrive as Go duration
// strings so the file stays hand-editable.

// ParseDurationField parses one such field. An empty or blank value
// means "not set" and parses to zero; negative durations are a config
// error. path names the field in the returned error.
func ParseDurationField(path, raw string) (time.Duration, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(trimmed)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	case d < 0:
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with an unset value
// resolving to def instead of zero.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
