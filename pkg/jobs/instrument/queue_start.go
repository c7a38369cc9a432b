package instrument

import (
	"fmt"
	"strings"
	"time"
)

// enqueuedAtLayouts lists the accepted enqueued_at formats, most common first.
var enqueuedAtLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05 MST",
	"2006-01-02 15:04:05 -0700",
}

// ParseEnqueuedAt parses an enqueued_at timestamp into milliseconds since epoch.
func ParseEnqueuedAt(value string) (int64, error) {
	value = strings.TrimSpace(value)
	for _, layout := range enqueuedAtLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UnixMilli(), nil
		}
	}
	return 0, fmt.Errorf("unrecognized enqueued_at timestamp %q", value)
}
