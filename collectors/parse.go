// collectors/parse.go
package collectors

import (
	"math"
	"strconv"
	"strings"
)

// Bandwidth is a download/upload pair in bits per second
type Bandwidth struct {
	Download int64 `json:"download"`
	Upload   int64 `json:"upload"`
}

// ParseBandwidthLimit parses RouterOS limit strings such as "10M/5M".
// A value without "/" applies to both directions. Malformed or empty
// input yields a zero Bandwidth.
func ParseBandwidthLimit(s string) Bandwidth {
	down, up, found := strings.Cut(strings.TrimSpace(s), "/")
	if !found {
		up = down
	}

	d, ok := parseRate(down)
	if !ok {
		return Bandwidth{}
	}
	u, ok := parseRate(up)
	if !ok {
		return Bandwidth{}
	}
	return Bandwidth{Download: d, Upload: u}
}

func parseRate(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, true
	}

	mult := 1.0
	switch s[len(s)-1] {
	case 'k', 'K':
		mult = 1e3
	case 'm', 'M':
		mult = 1e6
	case 'g', 'G':
		mult = 1e9
	}
	if mult != 1 {
		s = s[:len(s)-1]
	}

	// digits and at most one dot
	digits, dots := 0, 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '.':
			dots++
		default:
			return 0, false
		}
	}
	if digits == 0 || dots > 1 {
		return 0, false
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	// out of int64 range
	if v*mult >= math.MaxInt64 {
		return 0, false
	}
	return int64(v * mult), true
}

var durationUnits = map[byte]int64{
	'w': 7 * 24 * 3600,
	'd': 24 * 3600,
	'h': 3600,
	'm': 60,
	's': 1,
}

// ParseDurationSeconds parses RouterOS uptimes such as "1h23m45s" into
// seconds. Every component is optional; "" is 0. Malformed input is 0.
func ParseDurationSeconds(s string) int64 {
	s = strings.TrimSpace(s)

	var total, n int64
	pending := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch >= '0' && ch <= '9' {
			if n > (math.MaxInt64-9)/10 {
				return 0
			}
			n = n*10 + int64(ch-'0')
			pending = true
			continue
		}
		mult, ok := durationUnits[ch]
		if !ok || !pending {
			return 0
		}
		if n > (math.MaxInt64-total)/mult {
			return 0
		}
		total += n * mult
		n, pending = 0, false
	}
	if pending {
		return 0
	}
	return total
}
