// Package bytesize parses and formats the size values nginx accepts.
package bytesize

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	KiB int64 = 1 << 10
	MiB int64 = 1 << 20
	GiB int64 = 1 << 30
)

// unitMultipliers maps unit suffixes to their byte values, longest first.
var unitMultipliers = []struct {
	suffix string
	mult   int64
}{
	{"KB", KiB},
	{"MB", MiB},
	{"GB", GiB},
	{"K", KiB},
	{"M", MiB},
	{"G", GiB},
	{"B", 1},
}

// Parse parses a size such as "256M", "1.5GB", "512k" or "1024".
// Units are 1024-based and case-insensitive. A bare number is bytes.
func Parse(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	valueStr, mult := s, int64(1)
	for _, u := range unitMultipliers {
		if strings.HasSuffix(s, u.suffix) {
			valueStr = strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
			mult = u.mult
			break
		}
	}
	if valueStr == "" {
		return 0, fmt.Errorf("invalid size %q: missing numeric value", s)
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size value %q in %q: %w", valueStr, s, err)
	}
	if value < 0 {
		return 0, fmt.Errorf("invalid size %q: negative value not allowed", s)
	}

	result := value * float64(mult)
	if result > math.MaxInt64 {
		return 0, fmt.Errorf("size %q exceeds maximum allowed value", s)
	}
	return int64(result), nil
}

// Nginx formats n in the largest unit that represents it exactly.
func Nginx(n int64) string {
	switch {
	case n == 0:
		return "0"
	case n%GiB == 0:
		return strconv.FormatInt(n/GiB, 10) + "G"
	case n%MiB == 0:
		return strconv.FormatInt(n/MiB, 10) + "M"
	case n%KiB == 0:
		return strconv.FormatInt(n/KiB, 10) + "k"
	default:
		return strconv.FormatInt(n, 10)
	}
}
