package rpc

import (
	"fmt"
	"strconv"
	"strings"
)

// HexToUint64 decodes a 0x-prefixed quantity such as "0x1b4".
func HexToUint64(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	digits := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if digits == s || digits == "" {
		return 0, fmt.Errorf("invalid hex quantity %q", s)
	}
	v, err := strconv.ParseUint(digits, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid hex quantity %q: %w", s, err)
	}
	return v, nil
}
