package util

import (
	"strconv"
	"strings"
)

// IntOr parses s as a base-10 int, returning def when s is blank or malformed.
func IntOr(s string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return v
}
