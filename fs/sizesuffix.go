package fs

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// SizeSuffix is parsed by flag with k/M/G binary suffixes
type SizeSuffix int64

// String turns SizeSuffix into a string
func (x SizeSuffix) String() string {
	scaled, suffix := x.unit()
	if math.Floor(scaled) == scaled {
		return fmt.Sprintf("%.0f%s", scaled, suffix)
	}
	return fmt.Sprintf("%.3f%s", scaled, suffix)
}

func (x SizeSuffix) unit() (scaled float64, suffix string) {
	switch {
	case x == 0:
		return 0, ""
	case x < Kibi:
		return float64(x), ""
	case x < Mebi:
		return float64(x) / float64(Kibi), "Ki"
	case x < Gibi:
		return float64(x) / float64(Mebi), "Mi"
	}
	return float64(x) / float64(Gibi), "Gi"
}

// Set a SizeSuffix from a string like "10M" or "327680"
func (x *SizeSuffix) Set(s string) error {
	if len(s) == 0 {
		return fmt.Errorf("empty string")
	}
	suffix := s[len(s)-1]
	suffixLen := 1
	var multiplier float64
	switch suffix {
	case 'b', 'B':
		if strings.HasSuffix(s, "KiB") || strings.HasSuffix(s, "kiB") {
			suffixLen = 3
			multiplier = float64(Kibi)
		} else if strings.HasSuffix(s, "MiB") {
			suffixLen = 3
			multiplier = float64(Mebi)
		} else if strings.HasSuffix(s, "GiB") {
			suffixLen = 3
			multiplier = float64(Gibi)
		} else {
			suffixLen = 1
			multiplier = 1
		}
	case 'k', 'K':
		multiplier = float64(Kibi)
	case 'm', 'M':
		multiplier = float64(Mebi)
	case 'g', 'G':
		multiplier = float64(Gibi)
	case '0', '1', '2', '3', '4', '5', '6', '7', '8', '9', '.':
		suffixLen = 0
		multiplier = 1
	default:
		return fmt.Errorf("bad suffix %q", suffix)
	}
	s = s[:len(s)-suffixLen]
	value, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	if value < 0 {
		return fmt.Errorf("size can't be negative %q", s)
	}
	value *= multiplier
	*x = SizeSuffix(value)
	return nil
}

// Type of the value
func (x *SizeSuffix) Type() string {
	return "SizeSuffix"
}

// Scan implements the fmt.Scanner interface
func (x *SizeSuffix) Scan(s fmt.ScanState, ch rune) error {
	token, err := s.Token(true, nil)
	if err != nil {
		return err
	}
	return x.Set(string(token))
}
