package kv

import (
	"fmt"
	"strconv"
)

// FormatVersionstamp renders a commit counter as a fixed-width hex string so
// versionstamps compare lexicographically in commit order.
func FormatVersionstamp(n uint64) string {
	return fmt.Sprintf("%020x", n)
}

// ParseVersionstamp is the inverse of FormatVersionstamp.
func ParseVersionstamp(s string) (uint64, error) {
	n, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse versionstamp %q: %w", s, err)
	}
	return n, nil
}
