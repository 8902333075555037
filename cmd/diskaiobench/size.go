package main

import (
	"fmt"
	"strconv"
)

// parseSize reads sizes such as "512", "4k", "1.5M" or "2G". One optional
// suffix (B, K, M, G, T or P, any case) scales by powers of 1024.
func parseSize(value string) (uint64, error) {
	if value == "" {
		return 0, fmt.Errorf("invalid size %q", value)
	}
	num, suffix := value, byte(0)
	if last := value[len(value)-1]; last < '0' || last > '9' {
		num, suffix = value[:len(value)-1], last
	}

	var shift uint
	switch suffix {
	case 0, 'b', 'B':
	case 'k', 'K':
		shift = 10
	case 'm', 'M':
		shift = 20
	case 'g', 'G':
		shift = 30
	case 't', 'T':
		shift = 40
	case 'p', 'P':
		shift = 50
	default:
		return 0, fmt.Errorf("invalid size %q: use B, K, M, G, T or P suffixes", value)
	}

	f, err := strconv.ParseFloat(num, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("invalid size %q", value)
	}
	return uint64(f * float64(uint64(1)<<shift)), nil
}
