package main

import (
	"fmt"
	"strings"
)

// splitWindow parses a "start,end" flag value.
func splitWindow(s string) (start, end string, err error) {
	start, end, ok := strings.Cut(s, ",")
	start, end = strings.TrimSpace(start), strings.TrimSpace(end)
	if !ok || start == "" || end == "" {
		return "", "", fmt.Errorf("expected \"start,end\", got %q", s)
	}
	return start, end, nil
}
