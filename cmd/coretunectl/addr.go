package main

import (
	"fmt"
	"strconv"
)

// parseAddr parses a physical address or size given as decimal or
// 0x-prefixed hex, matching how operators usually type addresses at a
// debugfs-style prompt.
func parseAddr(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address/size %q: %w", s, err)
	}
	return v, nil
}
